// Package main is the playpulse command: the presence stats server and its
// maintenance subcommands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/graaaaa/playpulse/internal/appinfo"
	"github.com/graaaaa/playpulse/internal/config"
	"github.com/graaaaa/playpulse/internal/logging"
)

var (
	configPath string
	envFile    string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           appinfo.AppName,
	Short:         "Chat presence stats server",
	Long:          `playpulse records who is playing what in a chat guild and serves live and historical stats per event.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: data dir "+appinfo.ConfigFileName+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment layer")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig applies .env, the config file and the environment, then
// configures the global logger.
func loadConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded
	logging.Init(cfg.LoggingConfig())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
