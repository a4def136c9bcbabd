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
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
	_ "github.com/GoogleCloudPlatform/db-query-recovery/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/db-query-recovery/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/db-query-recovery/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/recovery"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/utils"
)

var supportedDialects = []string{"postgres", "cloudsqlpostgres", "mysql", "cloudsqlmysql", "sqlserver", "cloudsqlsqlserver"}

var (
	configFile   string
	verbose      bool
	geminiAPIKey string
	geminiModel  string

	// Database connection flags
	dialect                        string
	host                           string
	port                           int
	username                       string
	password                       string
	dbName                         string
	cloudSQLInstanceConnectionName string
	cloudSQLUsePrivateIP           bool

	// Recovery flags
	threshold  int
	maxMatches int
	casePolicy string
	columns    string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "query_recovery",
	Short: "A tool to recover SQL queries with misspelled literals",
	Long: `query_recovery is a CLI tool that repairs failed or empty SQL queries by
matching their string literals against the values actually stored in the
referenced columns and rewriting the query with the closest matches.`,
	SilenceUsage:      true,
	PersistentPreRunE: initFlagsAndConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// initFlagsAndConfig loads the config file and environment, then applies the
// flags that were set explicitly on the command line.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if cmd != nil {
		flags := cmd.Flags()
		dbCfg := &cfg.Database
		if flags.Changed("dialect") {
			dbCfg.Dialect = dialect
		}
		if flags.Changed("host") {
			dbCfg.Host = host
		}
		if flags.Changed("port") {
			dbCfg.Port = port
		}
		if flags.Changed("username") {
			dbCfg.User = username
		}
		if flags.Changed("password") {
			dbCfg.Password = password
		}
		if flags.Changed("database") {
			dbCfg.DBName = dbName
		}
		if flags.Changed("cloudsql-instance-connection-name") {
			dbCfg.CloudSQLInstanceConnectionName = cloudSQLInstanceConnectionName
		}
		if flags.Changed("cloudsql-use-private-ip") {
			dbCfg.UsePrivateIP = cloudSQLUsePrivateIP
		}

		recCfg := &cfg.Recovery
		if flags.Changed("threshold") {
			recCfg.Threshold = threshold
		}
		if flags.Changed("max-matches") {
			recCfg.MaxMatches = maxMatches
		}
		if flags.Changed("case-policy") {
			recCfg.CasePolicy = casePolicy
		}
		if flags.Changed("columns") {
			recCfg.Columns = columns
		}
		if flags.Changed("gemini-model") {
			cfg.GeminiModel = geminiModel
		}
		if flags.Changed("gemini-api-key") {
			cfg.GeminiAPIKey = geminiAPIKey
		}
	}

	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Recovery.Validate(); err != nil {
		return err
	}
	config.SetConfig(cfg)

	logger, err = newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func validateDialect(dialect string) error {
	for _, supportedDialect := range supportedDialects {
		if dialect == supportedDialect {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
}

func setupDatabase() (*database.DB, error) {
	dbConfig := config.Current().Database
	if err := validateDialect(dbConfig.Dialect); err != nil {
		return nil, err
	}
	db, err := database.New(dbConfig)
	if err != nil {
		log.Println("ERROR: Failed to connect to database:", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newHelper builds a Helper over source from the recovery configuration.
func newHelper(source recovery.ValueSource) (*recovery.Helper, error) {
	recCfg := config.Current().Recovery

	policy, err := recovery.ParseCasePolicy(recCfg.CasePolicy)
	if err != nil {
		return nil, err
	}
	rules, err := recoveryRules(recCfg.Columns)
	if err != nil {
		return nil, err
	}

	return recovery.New(source, recovery.Options{
		Rules:      rules,
		Threshold:  &recCfg.Threshold,
		MaxMatches: recCfg.MaxMatches,
		CacheTTL:   recCfg.CacheTTL,
		CasePolicy: policy,
		Logger:     logger,
	}), nil
}

// recoveryRules returns the default rules plus the rules for every column
// named in columnsFlag, e.g. "film[description],actor[first_name,last_name]".
func recoveryRules(columnsFlag string) ([]recovery.Rule, error) {
	rules := recovery.DefaultRules()
	tableColumns, err := utils.ParseTablesFlag(columnsFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid columns setting: %w", err)
	}

	tables := make([]string, 0, len(tableColumns))
	for table := range tableColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		cols := tableColumns[table]
		if len(cols) == 0 {
			log.Printf("WARN: No columns given for table %s, skipping", table)
			continue
		}
		for _, col := range cols {
			rules = append(rules, recovery.ColumnRules(table, col)...)
		}
	}
	return rules, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML, TOML or JSON config file (settings can also come from QUERY_RECOVERY_* environment variables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Database connection flags
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "", fmt.Sprintf("Database dialect (%s)", strings.Join(supportedDialects, ", ")))
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Database host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Database port")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Database username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Database password")
	rootCmd.PersistentFlags().StringVar(&dbName, "database", "", "Database name")
	rootCmd.PersistentFlags().StringVar(&cloudSQLInstanceConnectionName, "cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects) - MANDATORY for CloudSQL")
	rootCmd.PersistentFlags().BoolVar(&cloudSQLUsePrivateIP, "cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Recovery flags
	rootCmd.PersistentFlags().IntVar(&threshold, "threshold", recovery.DefaultThreshold, "Minimum similarity score (0-100) for a suggested value")
	rootCmd.PersistentFlags().IntVar(&maxMatches, "max-matches", recovery.DefaultMaxMatches, "Maximum suggestions kept per literal")
	rootCmd.PersistentFlags().StringVar(&casePolicy, "case-policy", string(recovery.CasePolicyStored), "Casing of substituted values ('stored' or 'literal')")
	rootCmd.PersistentFlags().StringVar(&columns, "columns", "", "Extra columns to recover, e.g. 'film[description],actor[first_name,last_name]'")

	// Gemini flags
	rootCmd.PersistentFlags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")
	rootCmd.PersistentFlags().StringVar(&geminiModel, "gemini-model", "", "Gemini model used by 'ask'")

	// Add subcommands
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(getValuesCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
}
