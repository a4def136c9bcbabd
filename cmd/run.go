package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/config"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/recovery"
	"github.com/GoogleCloudPlatform/db-query-recovery/internal/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a query, recovering misspelled literals when it fails",
	Long: `Executes the query. If it fails or returns no rows, the literals are matched
against the stored column values and the rewritten query is executed instead, trying
lower ranked suggestions until one returns rows or --max-attempts is reached.`,
	Example: `./query_recovery run --dialect postgres --host localhost --port 5432 --username user --password pass --database dvdrental --query "SELECT * FROM film WHERE title LIKE '%Star Warz%'" --yes`,
	RunE:    runRun,
}

// runReport is the JSON form of an execution.
type runReport struct {
	Query    string           `json:"query"`
	Attempts int              `json:"attempts"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     [][]string       `json:"rows,omitempty"`
	Recovery *recovery.Result `json:"recovery,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	query, err := readQueryInput(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}

	db, err := setupDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	return executeWithRecovery(cmd, db, query, format)
}

// executeWithRecovery runs query through an Executor and prints the outcome.
func executeWithRecovery(cmd *cobra.Command, db *database.DB, query, format string) error {
	helper, err := newHelper(db)
	if err != nil {
		return err
	}

	maxAttempts := config.Current().Recovery.MaxAttempts
	if cmd.Flags().Changed("max-attempts") {
		maxAttempts, _ = cmd.Flags().GetInt("max-attempts")
	}
	executor := recovery.NewExecutor(db, helper, maxAttempts, logger)
	if yes, _ := cmd.Flags().GetBool("yes"); !yes && format == "text" {
		executor.Confirm = utils.ConfirmAction
	}

	log.Println("INFO: Executing query", "max attempts:", maxAttempts)
	exec, execErr := executor.Execute(cmd.Context(), query)
	if exec == nil {
		return execErr
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		report := runReport{Query: exec.Query, Attempts: exec.Attempts, Recovery: exec.Recovery}
		if exec.Result != nil {
			report.Columns = exec.Result.Columns
			report.Rows = exec.Result.Rows
		}
		if execErr != nil {
			report.Error = execErr.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return execErr
	}

	if exec.Recovery.Recovered() {
		fmt.Fprint(out, recovery.FormatResultAsText(exec.Recovery))
		fmt.Fprintln(out)
	}
	if exec.Query != query {
		fmt.Fprintf(out, "Executed recovered query after %d attempts:\n%s\n\n", exec.Attempts, exec.Query)
	}
	if execErr != nil {
		return fmt.Errorf("query failed: %w", execErr)
	}
	fmt.Fprint(out, utils.FormatQueryResult(exec.Result, utils.DefaultResultRows))

	log.Println("INFO: Run operation completed")
	return nil
}

func addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-attempts", recovery.DefaultMaxAttempts, "Maximum recovered queries to execute")
	cmd.Flags().BoolP("yes", "y", false, "Run recovered queries without asking for confirmation")
	cmd.Flags().String("format", "text", "Output format ('text' or 'json')")
}

func init() {
	addQueryFlags(runCmd)
	addExecutionFlags(runCmd)
}
