package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compiledb/compiledb/internal/layout"
)

var createIndexKind string

var createIndexCmd = &cobra.Command{
	Use:   "create-index <table> <column>",
	Short: "Build a btree or hash index over table.column",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runCreateIndex(args[0], args[1])
	},
}

var dropIndexCmd = &cobra.Command{
	Use:   "drop-index <table> <name>",
	Short: "Remove a previously created index by name",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runDropIndex(args[0], args[1])
	},
}

func init() {
	createIndexCmd.Flags().StringVar(&createIndexKind, "kind", "btree", "index kind: btree or hash")
	rootCmd.AddCommand(createIndexCmd)
	rootCmd.AddCommand(dropIndexCmd)
}

func runCreateIndex(table, column string) {
	var kind layout.IndexKind
	switch createIndexKind {
	case "btree":
		kind = layout.BTree
	case "hash":
		kind = layout.Hash
	default:
		fmt.Fprintf(os.Stderr, "unknown --kind %q, want btree or hash\n", createIndexKind)
		os.Exit(1)
	}

	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	def, err := db.CreateIndex(table, column, kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("created index %s on %s.%s (%s)\n", def.Name, table, column, kind)
}

func runDropIndex(table, name string) {
	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := db.DropIndex(table, name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("dropped index %s\n", name)
}
