package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/types"
)

var createTableColumns []string

var createTableCmd = &cobra.Command{
	Use:   "create-table <name>",
	Short: "Create a table",
	Long: `Create a table from one or more --column specs of the form
name:TYPE[:length][:PK], e.g. id:INT:PK or name:VARCHAR:32.

Examples:
  compiledb create-table Customers --column id:INT:PK --column name:VARCHAR:32
  compiledb create-table Events --column id:INT:PK --column happened:DATE`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCreateTable(args[0])
	},
}

func init() {
	createTableCmd.Flags().StringArrayVar(&createTableColumns, "column", nil, "column spec name:TYPE[:length][:PK] (repeatable)")
	rootCmd.AddCommand(createTableCmd)
}

func runCreateTable(table string) {
	if len(createTableColumns) == 0 {
		fmt.Fprintln(os.Stderr, "at least one --column is required")
		os.Exit(1)
	}

	cols := make([]schema.Column, 0, len(createTableColumns))
	for _, spec := range createTableColumns {
		col, err := parseColumnSpec(spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --column %q: %v\n", spec, err)
			os.Exit(1)
		}
		cols = append(cols, col)
	}

	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sc, err := db.CreateTable(table, cols)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("created table %s with %d columns\n", sc.Name, len(sc.Columns))
}

// parseColumnSpec parses "name:TYPE[:length][:PK]" into a schema.Column.
func parseColumnSpec(spec string) (schema.Column, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return schema.Column{}, fmt.Errorf("expected name:TYPE[:length][:PK]")
	}

	col := schema.Column{Name: parts[0]}
	t, err := types.ParseType(parts[1])
	if err != nil {
		return schema.Column{}, err
	}
	col.Type = t

	for _, extra := range parts[2:] {
		if strings.EqualFold(extra, "PK") {
			col.IsPrimaryKey = true
			continue
		}
		n, err := strconv.Atoi(extra)
		if err != nil {
			return schema.Column{}, fmt.Errorf("unrecognized column qualifier %q", extra)
		}
		col.Length = n
	}

	if t == types.Varchar && col.Length <= 0 {
		return schema.Column{}, fmt.Errorf("VARCHAR column %q requires a length", col.Name)
	}
	return col, nil
}
