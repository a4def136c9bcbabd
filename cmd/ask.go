/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/genai"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/utils"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Generate SQL from a question with Gemini and run it with recovery",
	Long: `Describes the database schema to Gemini, asks it for a query answering the
question and executes the generated query. Misspelled values in the generated
query are recovered the same way the 'run' command does.`,
	Example: `./query_recovery ask --dialect postgres --host localhost --port 5432 --username user --password pass --database dvdrental --gemini-api-key <key> --question "Which films star Penelope Guiness?" --tables "film,actor,film_actor"`,
	RunE:    runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question, _ := cmd.Flags().GetString("question")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("--question is required")
	}
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	tablesFlag, _ := cmd.Flags().GetString("tables")
	tableFilter, err := utils.ParseTablesFlag(tablesFlag)
	if err != nil {
		return fmt.Errorf("invalid tables flag: %w", err)
	}
	contextFiles, _ := cmd.Flags().GetString("context_files")
	extraContext, err := utils.ReadContextFiles(contextFiles)
	if err != nil {
		return err
	}

	cfg := config.Current()
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("a Gemini API key is required: use --gemini-api-key or GEMINI_API_KEY")
	}

	db, err := setupDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	client, err := genai.NewClient(ctx, genai.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Dialect: cfg.Database.Dialect,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.IsAPIKeyValid(ctx); err != nil {
		return err
	}

	schemas, err := collectSchema(ctx, db, tableFilter)
	if err != nil {
		return err
	}
	log.Printf("INFO: Describing %d tables to Gemini", len(schemas))

	query, err := client.GenerateSQL(ctx, question, genai.FormatSchemaContext(schemas)+extraContext)
	if err != nil {
		return fmt.Errorf("failed to generate SQL: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated query:\n%s\n\n", query)

	if sqlOnly, _ := cmd.Flags().GetBool("sql-only"); sqlOnly {
		return nil
	}
	return executeWithRecovery(cmd, db, query, format)
}

type schemaReader interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, tableName string) ([]database.ColumnInfo, error)
}

// collectSchema lists the columns of every table, or of the tables in filter
// when it is not empty. Columns named in the filter restrict the table to them.
func collectSchema(ctx context.Context, db schemaReader, filter map[string][]string) ([]genai.TableSchema, error) {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var schemas []genai.TableSchema
	for _, table := range tables {
		wanted, ok := filter[table]
		if len(filter) > 0 && !ok {
			continue
		}

		cols, err := db.ListColumns(ctx, table)
		if err != nil {
			log.Printf("WARN: Skipping table %s: %v", table, err)
			continue
		}
		if len(wanted) > 0 {
			cols = keepColumns(cols, wanted)
		}
		schemas = append(schemas, genai.TableSchema{Name: table, Columns: cols})
	}
	return schemas, nil
}

func keepColumns(cols []database.ColumnInfo, names []string) []database.ColumnInfo {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var out []database.ColumnInfo
	for _, c := range cols {
		if keep[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func init() {
	askCmd.Flags().String("question", "", "Question to answer - MANDATORY")
	askCmd.Flags().String("tables", "", "Tables (and optionally columns) described to Gemini, e.g. 'film[title,rating],actor'. Defaults to all tables")
	askCmd.Flags().String("context_files", "", "Comma separated files with extra context for Gemini")
	askCmd.Flags().Bool("sql-only", false, "Print the generated query without executing it")
	addExecutionFlags(askCmd)
}
