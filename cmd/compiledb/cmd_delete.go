package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteWhere string

var deleteCmd = &cobra.Command{
	Use:   "delete <table>",
	Short: "Delete rows from a table",
	Long: `Delete rows from table. With no --where, every row is removed.
--where restricts the delete to rows matching col=value exactly.

Examples:
  compiledb delete Customers --where id=1
  compiledb delete Customers`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDelete(args[0])
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteWhere, "where", "", "equality filter, col=value")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(table string) {
	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var kernelSource string
	if deleteWhere != "" {
		sc, err := db.Schema(table)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		column, value, err := parseEquality(deleteWhere)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		symbol := "delete_where_" + table
		kernelSource, err = buildEqualsKernel(symbol, sc, column, value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	result, err := db.Delete(table, kernelSource)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d row(s)\n", result.RowsAffected)
}
