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
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/recovery"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/utils"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Suggest corrections for the literals of a failed query",
	Long: `Extracts the string literals of a failed or empty query, compares each one with
the values stored in its column and prints the rewritten query together with the
ranked suggestions. The rewritten query is not executed.`,
	Example: `./query_recovery recover --dialect postgres --host localhost --port 5432 --username user --password pass --database dvdrental --query "SELECT * FROM film WHERE title = 'Jurasic Park'"`,
	RunE:    runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	query, err := readQueryInput(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	errorMessage, _ := cmd.Flags().GetString("error")

	dbCfg := config.Current().Database
	log.Println("INFO: Starting recover operation",
		"dialect:", dbCfg.Dialect,
		"database:", dbCfg.DBName,
	)

	db, err := setupDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	helper, err := newHelper(db)
	if err != nil {
		return err
	}

	result := helper.Recover(cmd.Context(), query, errorMessage)
	if err := writeResult(cmd.OutOrStdout(), result, format); err != nil {
		return err
	}

	log.Println("INFO: Recover operation completed", "corrected literals:", len(result.Ordered()))
	return nil
}

// readQueryInput returns the query given by --query or --file.
func readQueryInput(cmd *cobra.Command) (string, error) {
	query, _ := cmd.Flags().GetString("query")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case query != "" && file != "":
		return "", fmt.Errorf("--query and --file are mutually exclusive")
	case file != "":
		return utils.ReadQueryFile(file)
	case strings.TrimSpace(query) != "":
		return strings.TrimSpace(query), nil
	default:
		return "", fmt.Errorf("a query is required: use --query or --file")
	}
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format: %s (only text, json are supported)", format)
	}
	return nil
}

func writeResult(w io.Writer, result *recovery.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return nil
	}
	_, err := io.WriteString(w, recovery.FormatResultAsText(result))
	return err
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("query", "q", "", "Query text")
	cmd.Flags().StringP("file", "f", "", "File containing the query")
}

func init() {
	addQueryFlags(recoverCmd)
	recoverCmd.Flags().StringP("error", "e", "", "Error message returned by the database, if any")
	recoverCmd.Flags().String("format", "text", "Output format ('text' or 'json')")
}
