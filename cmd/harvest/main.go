package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/scheduler"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "harvest",
		Short: "🌾 Record bank logins, replay them, and harvest transactions",
		Long: `spice-harvest: records how you reach your bank's transaction page, replays the
recording on demand or on a schedule, and turns whatever is on the page into
transactions reconciled against what you already have.

Passwords and one-time codes are never stored; they are asked for at playback.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/harvest/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(recipesCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkpointCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// Secrets for unattended replays usually live in .env; load it before viper
	// looks at the environment.
	if err := scheduler.LoadEnv(".env"); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(fmt.Sprintf("%s/.config/harvest", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	config.SetDefaults()

	if err := common.SetupLogger(viper.GetString("logging.level"), viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

// formatError appends the remediation hint for known failures.
func formatError(err error) string {
	msg := err.Error()
	if hint := common.Remediation(err); hint != "" && hint != msg {
		return fmt.Sprintf("Error: %s\n%s", msg, hint)
	}
	return "Error: " + msg
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "harvest version %s\n", version)
		},
	}
}
