package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration.
type Config struct {
	Profile   string          `mapstructure:"profile"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Compiler  CompilerConfig  `mapstructure:"compiler"`
	Page      PageConfig      `mapstructure:"page"`
	BTree     BTreeConfig     `mapstructure:"btree"`
	HashIndex HashIndexConfig `mapstructure:"hash_index"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds the location of the on-disk database directory.
type DatabaseConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// CompilerConfig holds native toolchain invocation settings for C3.
type CompilerConfig struct {
	CC    string   `mapstructure:"cc"`    // compiler executable, e.g. "gcc"/"cc"
	Flags []string `mapstructure:"flags"` // extra flags appended after -fPIC -shared -O2 -g
}

// PageConfig holds page-store sizing (C5).
type PageConfig struct {
	MaxRecordsPerPage int `mapstructure:"max_records_per_page"` // default 5
}

// BTreeConfig holds B-tree index sizing (C7).
type BTreeConfig struct {
	Order int `mapstructure:"order"` // default 5
}

// HashIndexConfig holds hash index sizing (C8).
type HashIndexConfig struct {
	DefaultBuckets int `mapstructure:"default_buckets"` // default 101
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with spec-mandated default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".compiledb")

	cc := os.Getenv("CC")
	if cc == "" {
		cc = "gcc"
	}

	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			BaseDir: filepath.Join(configDir, "db"),
		},
		Compiler: CompilerConfig{
			CC: cc,
		},
		Page: PageConfig{
			MaxRecordsPerPage: 5,
		},
		BTree: BTreeConfig{
			Order: 5,
		},
		HashIndex: HashIndexConfig{
			DefaultBuckets: 101,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.compiledb/config.yaml (user home)
//  3. /etc/compiledb/config.yaml (system-wide)
func Load() (*Config, error) {
	return load("")
}

// LoadFrom loads configuration from an explicit file path, falling back
// to defaults if the file does not exist. Used by callers (e.g. a CLI's
// --config flag) that let the caller name the file instead of relying
// on the standard search path.
func LoadFrom(path string) (*Config, error) {
	return load(path)
}

func load(explicitPath string) (*Config, error) {
	v := viper.New()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".compiledb"))
		v.AddConfigPath("/etc/compiledb")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".compiledb")

	cc := os.Getenv("CC")
	if cc == "" {
		cc = "gcc"
	}

	v.SetDefault("profile", "default")
	v.SetDefault("database.base_dir", filepath.Join(configDir, "db"))
	v.SetDefault("compiler.cc", cc)
	v.SetDefault("page.max_records_per_page", 5)
	v.SetDefault("btree.order", 5)
	v.SetDefault("hash_index.default_buckets", 101)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.BaseDir == "" {
		return fmt.Errorf("database.base_dir is required")
	}
	if c.Compiler.CC == "" {
		return fmt.Errorf("compiler.cc is required")
	}
	if c.Page.MaxRecordsPerPage < 1 {
		return fmt.Errorf("page.max_records_per_page must be >= 1")
	}
	if c.BTree.Order < 3 {
		return fmt.Errorf("btree.order must be >= 3")
	}
	if c.HashIndex.DefaultBuckets < 1 {
		return fmt.Errorf("hash_index.default_buckets must be >= 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureBaseDir creates the database base directory if it doesn't exist.
func (c *Config) EnsureBaseDir() error {
	if err := os.MkdirAll(c.Database.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create database base directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".compiledb")
}
