package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/compose-network/singleton-deployer/configs"
	"github.com/compose-network/singleton-deployer/internal/deploy"
	"github.com/compose-network/singleton-deployer/internal/logger"
)

const appName = "singleton-deployer"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "CLI for deterministic contract deployments through the singleton factory",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.Initialize(level)

		// Secrets such as the deployer key usually live in a .env next to
		// the binary; a missing file is fine.
		if err := godotenv.Load(); err == nil {
			slog.Debug(".env file loaded")
		}

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			viper.AddConfigPath(execDir)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		if err := viper.BindEnv("deployer.network", "NETWORK"); err != nil {
			return err
		}

		// Try to read config file, but don't fail if it doesn't exist
		// Flags can provide all necessary configuration
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		defaults, err := configs.DefaultConfig()
		if err != nil {
			return err
		}
		configs.Values = defaults

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(deploy.CMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("command failed")
		os.Exit(1)
	}
}
