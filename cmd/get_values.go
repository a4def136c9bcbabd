package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/recovery"
)

var getValuesCmd = &cobra.Command{
	Use:   "get-values",
	Short: "Print the distinct values stored in a column",
	Long: `Prints the value universe literals of a column are matched against. With --all,
loads every column known to the recovery rules and prints how many values each has.`,
	Example: `./query_recovery get-values --dialect mysql --host localhost --port 3306 --username root --password pass --database sakila --table category --column name`,
	RunE:    runGetValues,
}

func runGetValues(cmd *cobra.Command, args []string) error {
	table, _ := cmd.Flags().GetString("table")
	column, _ := cmd.Flags().GetString("column")
	all, _ := cmd.Flags().GetBool("all")
	if !all && (table == "" || column == "") {
		return fmt.Errorf("--table and --column are required unless --all is set")
	}

	db, err := setupDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	helper, err := newHelper(db)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if all {
		refs := helper.Extractor().Refs()
		log.Printf("INFO: Loading values of %d columns", len(refs))
		if err := helper.Cache().Warm(ctx, refs); err != nil {
			log.Printf("WARN: Some columns could not be loaded: %v", err)
		}
		for _, ref := range refs {
			lookup := helper.Cache().Lookup(ctx, ref)
			fmt.Fprintf(out, "%s: %d values (%s)\n", ref.Key(), len(lookup.Values), lookup.Status)
		}
		return nil
	}

	lookup := helper.Cache().Lookup(ctx, recovery.ColumnRef{Table: table, Column: column})
	if lookup.Status == recovery.FetchFailed {
		return lookup.Err
	}
	for _, v := range lookup.Values {
		fmt.Fprintln(out, v)
	}
	log.Printf("INFO: Found %d distinct values in %s.%s", len(lookup.Values), table, column)
	return nil
}

func init() {
	getValuesCmd.Flags().StringP("table", "t", "", "Table name")
	getValuesCmd.Flags().StringP("column", "c", "", "Column name")
	getValuesCmd.Flags().Bool("all", false, "Load every column known to the recovery rules")
}
