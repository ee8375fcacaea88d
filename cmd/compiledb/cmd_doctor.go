package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compiledb/compiledb/internal/toolchain"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configuration loads and the native toolchain is ready",
	Run: func(cmd *cobra.Command, args []string) {
		runDoctor()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() {
	fmt.Println("compiledb System Check")
	fmt.Println("=======================")
	fmt.Println()

	cfg, err := loadConfig()
	fmt.Print("Configuration... ")
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
	fmt.Printf("  Base dir: %s\n", cfg.Database.BaseDir)
	fmt.Println()

	result := toolchain.Check(cfg)
	fmt.Print(toolchain.FormatDoctorReport(result))
	fmt.Println()

	if result.Available() {
		fmt.Println("All systems operational.")
	} else {
		fmt.Println("Toolchain unavailable: table, index, and kernel operations will fail.")
		os.Exit(1)
	}
}
