package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/config"
	"github.com/ppiankov/triagewatch/internal/logging"
)

var (
	configPath string
	logLevel   string

	// Populated by PersistentPreRunE.
	cfg        *config.Config
	configHash string
	logger     *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.triagewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
}

var rootCmd = &cobra.Command{
	Use:           "triagewatch",
	Short:         "Triage and correlation engine for physical-security events",
	Long:          "Classifies camera and access-control events, applies standard operating procedures, and correlates access anomalies with badge activity.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func setup() error {
	c, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return err
	}
	level := c.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	l, err := logging.New(level, c.Logging.Format)
	if err != nil {
		return err
	}
	cfg, configHash, logger = c, hash, l
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
