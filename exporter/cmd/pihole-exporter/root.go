package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/piholestack/pihole-exporter/exporter/internal/config"
)

// options holds the command line flags. A flag only overrides the config
// file when it was set explicitly.
type options struct {
	configPath        string
	pihole            string
	port              int
	iface             string
	auth              string
	extendedMetrics   bool
	clientQueriesMode string
	logLevel          string
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pihole-exporter",
		Short: "Prometheus exporter for Pi-hole statistics",
		Long: `pihole-exporter polls the Pi-hole admin API on every scrape and serves the
result in the Prometheus text exposition format.

Series that disappear from the Pi-hole answer are kept and exported as 0.
An endpoint that fails to answer keeps its previous values.`,
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file path (optional)")
	f.StringVarP(&opts.pihole, "pihole", "o", config.DefaultAddress, "Pi-hole host, with optional :port")
	f.IntVarP(&opts.port, "port", "p", config.DefaultPort, "port to serve metrics on")
	f.StringVarP(&opts.iface, "interface", "i", config.DefaultListenAddress, "interface to bind to")
	f.StringVarP(&opts.auth, "auth", "a", "", "Pi-hole API token (defaults to WEBPASSWORD from setupVars.conf)")
	f.BoolVarP(&opts.extendedMetrics, "extended-metrics", "e", false, "export per-client query metrics from getAllQueries")
	f.StringVar(&opts.clientQueriesMode, "client-queries-mode", "labeled", "client query aggregation: labeled or split")
	f.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// applyFlags copies the explicitly set flags onto cfg and validates it.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("pihole") {
		cfg.PiHole.Address = opts.pihole
	}
	if f.Changed("port") {
		cfg.Exporter.Port = opts.port
	}
	if f.Changed("interface") {
		cfg.Exporter.ListenAddress = opts.iface
	}
	if f.Changed("auth") {
		cfg.PiHole.Auth.Token = opts.auth
	}
	if f.Changed("extended-metrics") {
		cfg.PiHole.ExtendedMetrics = opts.extendedMetrics
	}
	if f.Changed("client-queries-mode") {
		cfg.PiHole.ClientQueries.Mode = opts.clientQueriesMode
	}
	if f.Changed("log-level") {
		cfg.Exporter.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
