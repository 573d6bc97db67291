package cli

import (
	"fmt"
	"os"

	"clipvault/internal/config"
	"clipvault/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global config object populated by file/env/flags
	cfg *config.Config

	// Flags
	cfgFile  string
	logLevel string
	dbPath   string
)

// RootCmd is the base command. All work happens in subcommands; the catalog
// has no server surface of its own.
var RootCmd = &cobra.Command{
	Use:   "clipvault",
	Short: "Video catalog and access-window store",
	Long: `clipvault maintains the video catalog (items, categories, favorites)
and the per-principal access windows behind the bot. Use 'check' to run the
startup validation sequence and 'migrate' to manage schema versions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config_path", "config.toml", "Path to the configuration file. (Env: CLIPVAULT_CONFIG_PATH)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Logging level (debug, info, warn, error). (Env: CLIPVAULT_LOG_LEVEL)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to the catalog store file. (Env: CLIPVAULT_DB_PATH)")
}

// initializeConfig loads the file, overlays environment and flags, applies
// defaults and brings up logging.
func initializeConfig() error {
	if envPath := os.Getenv("CLIPVAULT_CONFIG_PATH"); envPath != "" && cfgFile == "config.toml" {
		cfgFile = envPath
	}

	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		if os.IsNotExist(err) {
			// No file is fine, rely on env/flags/defaults.
			cfg = &config.Config{}
		} else {
			return fmt.Errorf("failed to load configuration from %s: %w", cfgFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	// CLI flags take precedence.
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := cfg.ParseAndValidate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.Init(cfg.Logging.Level)
	return nil
}
