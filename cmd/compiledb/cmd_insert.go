package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var insertCmd = &cobra.Command{
	Use:   "insert <table> <value>...",
	Short: "Insert a row",
	Long: `Insert a row into table. Supply one value per user-declared column,
in schema order, excluding the implicit _uuid column.

Examples:
  compiledb insert Customers 1 Ada
  compiledb insert Customers 2 Grace`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInsert(args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(insertCmd)
}

func runInsert(table string, values []string) {
	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	id, err := db.InsertRow(table, values)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(id)
}
