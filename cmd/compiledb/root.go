package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compiledb/compiledb/internal/engine"
	"github.com/compiledb/compiledb/internal/logging"
	"github.com/compiledb/compiledb/pkg/config"
)

var (
	// Version is set during build.
	Version = "0.1.0"

	// Global flags
	cfgFile string
	baseDir string
)

var rootCmd = &cobra.Command{
	Use:   "compiledb",
	Short: "A relational engine that compiles pages and indices to native code",
	Long: `compiledb stores each table page and index as generated C source,
compiled to a shared object and dynamically loaded at query time.

Examples:
  compiledb create-table Customers --column id:INT:PK --column name:VARCHAR:32
  compiledb insert Customers 1 Ada
  compiledb select Customers
  compiledb select Customers --where id=1
  compiledb create-index Customers id --kind btree
  compiledb delete Customers --where id=1
  compiledb doctor`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			return
		}
		logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "database base directory (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from cfgFile/the standard search path,
// applying the --base-dir override when given.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if baseDir != "" {
		cfg.Database.BaseDir = baseDir
	}
	return cfg, nil
}

// openEngine loads configuration and opens the Database it describes.
func openEngine() (*engine.Database, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg.Database.BaseDir, engine.Options{
		CC:                cfg.Compiler.CC,
		CompilerFlags:     cfg.Compiler.Flags,
		BTreeOrder:        cfg.BTree.Order,
		MaxRecordsPerPage: cfg.Page.MaxRecordsPerPage,
	})
}
