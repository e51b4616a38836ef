// Command fuelctl drives the fill-up webhooks from a terminal: submit a
// fill-up, print the normalized history or its raw payload, and export it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fueltrack/internal/cli"
	"fueltrack/internal/config"
	"fueltrack/internal/log"
	"fueltrack/internal/webhook"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	client  *webhook.Client
	verbose bool
	timeout time.Duration
	cfgFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "fuelctl",
		Short:        "Submit and inspect fuel fill-ups through the automation webhooks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML configuration file (overrides "+config.FileEnv+")")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "Webhook timeout (default from WEBHOOK_TIMEOUT)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging on stderr")

	root.AddCommand(
		newSubmitCmd(a),
		newHistoryCmd(a),
		newRawCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) init() error {
	cli.LoadEnvFile()
	if a.cfgFile != "" {
		if err := os.Setenv(config.FileEnv, a.cfgFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.timeout > 0 {
		cfg.WebhookTimeout = a.timeout
	}

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	a.logger = cli.SetupLogger(level, os.Stderr)
	a.cfg = cfg

	wcfg := webhook.Config{
		SubmitURL:  cfg.SubmitWebhookURL,
		HistoryURL: cfg.HistoryWebhookURL,
		Timeout:    cfg.WebhookTimeout,
	}
	if err := wcfg.Validate(); err != nil {
		return fmt.Errorf("webhook configuration: %w", err)
	}
	a.client = webhook.New(wcfg, webhook.WithLogger(a.logger))
	return nil
}
