package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compiledb/compiledb/internal/types"
)

var selectWhere string

var selectCmd = &cobra.Command{
	Use:   "select <table>",
	Short: "Scan a table's rows",
	Long: `Scan every row of table, printing one tab-separated line per row in
schema column order. --where restricts to rows matching col=value exactly.

Examples:
  compiledb select Customers
  compiledb select Customers --where id=1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSelect(args[0])
	},
}

func init() {
	selectCmd.Flags().StringVar(&selectWhere, "where", "", "equality filter, col=value")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(table string) {
	db, err := openEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sc, err := db.Schema(table)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var filterCol, filterValue string
	var filterBytes []byte
	var filterOffset, filterSize int
	var filterType types.Type
	if selectWhere != "" {
		filterCol, filterValue, err = parseEquality(selectWhere)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		colIdx, ok := sc.ColumnIndex(filterCol)
		if !ok {
			fmt.Fprintf(os.Stderr, "table %s has no column %q\n", table, filterCol)
			os.Exit(1)
		}
		col := sc.Columns[colIdx]
		filterType = col.Type
		filterOffset, err = sc.FieldOffset(colIdx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		filterSize, err = types.SizeOf(col.Type, col.Length)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		filterBytes, err = types.Parse(filterValue, col.Type, col.Length)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	cur, err := db.Scan(table)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cur.Close()

	names := make([]string, len(sc.Columns))
	for i, col := range sc.Columns {
		names[i] = col.Name
	}
	fmt.Println(strings.Join(names, "\t"))

	rows := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if !ok {
			break
		}
		rec, err := cur.Current()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		if selectWhere != "" {
			cmp, err := types.Compare(rec[filterOffset:filterOffset+filterSize], filterBytes, filterType)
			if err != nil || cmp != 0 {
				continue
			}
		}

		fields := make([]string, len(sc.Columns))
		for i, col := range sc.Columns {
			off, err := sc.FieldOffset(i)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			size, err := types.SizeOf(col.Type, col.Length)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			text, err := types.Format(rec[off:off+size], col.Type)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fields[i] = text
		}
		fmt.Println(strings.Join(fields, "\t"))
		rows++
	}
	fmt.Fprintf(os.Stderr, "(%d rows)\n", rows)
}
