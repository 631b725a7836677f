package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/config"
)

var (
	// Global flags
	cfgFile   string
	envFile   string
	verbose   bool
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "pricegate",
	Short: "PriceGate - guarded automatic pricing decisions",
	Long: `PriceGate decides whether externally computed price recommendations
may be applied automatically.

Every recommendation is checked against:
  - Pricing rules (confidence bands, change limits, cooldowns, daily caps)
  - Global risk controls (circuit breakers and margin protection)
  - The product's open decisions and applied price history

The outcome is an applied price, a decision waiting on a human, or a
rejection with a reason.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		_, err := cli.ParseFormat(outputFmt)
		return err
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error:"), err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus PRICEGATE_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration (default .env if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json, csv")
}

// loadEnvFile loads a dotenv file into the process environment. Variables
// already set win. Without an explicit path a missing .env is ignored.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// loadConfig initializes the process configuration.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(configSource(), err.Error())
	}
	cfg := config.GetConfig()
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func configSource() string {
	if cfgFile == "" {
		return "environment"
	}
	return cfgFile
}

func formatter() cli.Formatter {
	format, _ := cli.ParseFormat(outputFmt)
	return cli.NewFormatter(format)
}
