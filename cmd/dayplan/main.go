package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"dayplan/internal/config"
	appLog "dayplan/internal/log"
	"dayplan/internal/planner"
	"dayplan/internal/store"
	"dayplan/internal/tz"
	"dayplan/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	exportOnce bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using INFO", "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)
	appLog.Info("dayplan starting", "version", version)

	zones, err := homeZone(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	backend, err := openStore(conf.Storage)
	if err != nil {
		appLog.Error("failed to open storage", err, "backend", conf.Storage.Backend)
		os.Exit(1)
	}
	defer backend.Close()

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", zones.Home.String(),
		"storage", conf.Storage.Backend,
		"data_dir", conf.Storage.Dir,
		"export_path", conf.Export.Path,
		"export_cron", conf.Export.Cron,
		"export_once", flags.exportOnce,
	)

	svc := planner.New(backend, zones)
	job := &exportJob{svc: svc, zones: zones, path: conf.Export.Path, days: conf.Export.Days, now: time.Now}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.exportOnce {
		if err := job.run(ctx); err != nil {
			appLog.Error("calendar export failed", err, "path", conf.Export.Path)
			backend.Close()
			os.Exit(1)
		}
		return
	}

	if conf.Export.Path != "" {
		c := startExportCron(ctx, conf.Export.Cron, job)
		defer func() { <-c.Stop().Done() }()
	}

	server := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc, zones).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server forced to shut down", err)
	}
	appLog.Info("dayplan exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./dayplan.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional .env file with DAYPLAN_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.exportOnce, "export-once", false, "Write the ICS export to export.path and exit")

	flag.Parse()

	return cfg
}

// homeZone resolves the configured zone that "local" stands for.
func homeZone(name string) (tz.Resolver, error) {
	if name == "" {
		return tz.Resolver{Home: time.Local}, nil
	}
	loc, err := tz.Default.Resolve(name)
	if err != nil {
		return tz.Resolver{}, err
	}
	return tz.Resolver{Home: loc}, nil
}

func openStore(c config.StorageConfig) (store.Store, error) {
	switch c.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(c.SQLitePath), 0o700); err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(c.SQLitePath)
	case config.BackendFile:
		return store.NewFileStore(c.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}
