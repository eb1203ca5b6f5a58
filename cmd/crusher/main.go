// Command crusher runs a set of TCP/UDP relay routes described by a YAML
// config file, each independently openable, closeable, crushable, and
// freezable through the optional admin REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydracrusher/crusher/internal/api"
	"github.com/hydracrusher/crusher/internal/config"
	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/logging"
	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
	"github.com/hydracrusher/crusher/internal/tcpproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	jsonLogs   bool
	debug      bool
	noAPI      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file (env CRUSHER_CONFIG)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.noAPI, "no-api", false, "Disable the admin REST API regardless of config")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if f.noAPI {
		cfg.API.Enabled = false
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("crusher starting", "routes", len(cfg.Routes), "api_enabled", cfg.API.Enabled)

	re, err := reactor.New(logger)
	if err != nil {
		return fmt.Errorf("failed to start reactor: %w", err)
	}

	stats := metrics.New()
	registry := crusher.NewRegistry()

	if err := buildRoutes(cfg, re, logger, stats, registry); err != nil {
		re.Close()
		return err
	}

	go re.Run()
	defer re.Close()

	if err := registry.OpenAll(); err != nil {
		return fmt.Errorf("failed to open routes: %w", err)
	}
	logger.Info("all routes open", "count", len(registry.Names()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.New(cfg, logger, registry, stats)
		logger.Info("admin API starting", "addr", apiSrv.Addr())
		go func() {
			serveErr := apiSrv.ListenAndServe()
			if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
				return
			}
			logger.Error("admin API error", "err", serveErr)
			cancel()
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := registry.CloseAll(); err != nil {
		logger.Error("error closing routes", "err", err)
	}

	return nil
}

// buildRoutes translates each configured route into a crusher.TCP or
// crusher.UDP instance and registers it under its configured name.
func buildRoutes(cfg *config.Config, re *reactor.Reactor, logger *slog.Logger, stats *metrics.Stats, registry *crusher.Registry) error {
	for _, rc := range cfg.Routes {
		name := rc.Name
		switch rc.Protocol {
		case config.ProtocolTCP:
			onCreated := func(p *tcpproxy.Pair) {
				logger.Debug("pair opened", "route", name, "inner", p.InnerAddr(), "outer", p.OuterAddr())
			}
			onClosed := func(p *tcpproxy.Pair) {
				logger.Debug("pair closed", "route", name, "inner", p.InnerAddr(), "outer", p.OuterAddr())
			}
			opts := rc.ToTCPOptions(re, logger, stats, onCreated, onClosed)
			if err := registry.Register(name, crusher.NewTCP(opts)); err != nil {
				return err
			}
		case config.ProtocolUDP:
			opts := rc.ToUDPOptions(re, logger, stats)
			if err := registry.Register(name, crusher.NewUDP(opts)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("route %q: unknown protocol %q", name, rc.Protocol)
		}
	}
	return nil
}
