package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/piholestack/pihole-exporter/exporter/internal/api"
	"github.com/piholestack/pihole-exporter/exporter/internal/collector"
	"github.com/piholestack/pihole-exporter/exporter/internal/config"
	"github.com/piholestack/pihole-exporter/exporter/internal/normalize"
	"github.com/piholestack/pihole-exporter/exporter/internal/registry"
	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
	"github.com/piholestack/pihole-exporter/exporter/internal/scraper"
	"github.com/piholestack/pihole-exporter/exporter/internal/security"
	"github.com/piholestack/pihole-exporter/exporter/internal/telemetry"
)

const (
	shutdownTimeout   = 5 * time.Second
	certCheckInterval = time.Hour
)

func run(cmd *cobra.Command, opts *options) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, opts, cfg); err != nil {
		return err
	}
	level.Set(cfg.Exporter.SlogLevel())

	table, err := schema.New(schema.Options{ClientQueriesMode: cfg.PiHole.ClientQueries.Mode})
	if err != nil {
		return err
	}
	var auth tokenState
	token, _ := auth.update(cfg.PiHole.Auth)
	client, err := scraper.New(scraper.Options{
		BaseURL:            cfg.PiHole.BaseURL(),
		Timeout:            cfg.PiHole.Timeout,
		TopItems:           cfg.PiHole.TopItems,
		ExtendedMetrics:    cfg.PiHole.ExtendedMetrics,
		InsecureSkipVerify: cfg.PiHole.TLS.InsecureSkipVerify,
		Token:              token,
	})
	if err != nil {
		return err
	}

	slog.Info("pihole-exporter starting",
		"version", Version,
		"config", opts.configPath,
		"pihole", cfg.PiHole.BaseURL(),
		"endpoints", client.Endpoints(),
		"client_queries_mode", table.Mode(),
		"strict_arity", cfg.Exporter.StrictArity,
		"authenticated", token != "",
	)

	reg := registry.New(table)
	self := telemetry.NewRegistry()
	metrics := telemetry.New(self)
	coll := collector.New(client, normalize.New(table, cfg.PiHole.ClientQueries.BlockedStatuses), reg, metrics,
		collector.Options{StrictArity: cfg.Exporter.StrictArity})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Hot reload applies the log level and the token. Everything else needs a
	// restart.
	if opts.configPath != "" {
		go func() {
			if err := config.Watch(ctx, opts.configPath, func(updated *config.Config) {
				if err := applyFlags(cmd, opts, updated); err != nil {
					slog.Error("config reload rejected", "err", err)
					return
				}
				level.Set(updated.Exporter.SlogLevel())
				if token, changed := auth.update(updated.PiHole.Auth); changed {
					client.SetToken(token)
				}
				slog.Info("config hot-reloaded", "log_level", updated.Exporter.LogLevel)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	if cfg.PiHole.Scheme == "https" {
		go security.Watch(ctx, cfg.PiHole.BaseURL(), cfg.PiHole.TLS.InsecureSkipVerify, certCheckInterval,
			func(cs *security.CertStatus) {
				if cs.Status == security.StatusUnreachable {
					slog.Warn("upstream certificate check failed", "endpoint", cs.Endpoint)
					return
				}
				metrics.UpstreamCertDays.Set(float64(cs.DaysLeft))
				if cs.Status != security.StatusValid {
					slog.Warn("upstream certificate "+cs.Status,
						"endpoint", cs.Endpoint, "days_left", cs.DaysLeft, "not_after", cs.NotAfter)
				}
			})
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Exporter.ListenAddress, strconv.Itoa(cfg.Exporter.Port)),
		Handler:           metrics.InstrumentHandler(api.New(coll, reg, self, cfg.Exporter.MetricsPath)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "metrics_path", cfg.Exporter.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("pihole-exporter shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
