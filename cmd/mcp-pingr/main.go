// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/notify"
	"github.com/jolks/mcp-pingr/internal/scheduler"
	"github.com/jolks/mcp-pingr/internal/server"
	"github.com/jolks/mcp-pingr/internal/storage"
	"github.com/jolks/mcp-pingr/internal/tasks"
	"github.com/jolks/mcp-pingr/internal/timeref"
)

var (
	// buildVersion is set at build time via -ldflags "-X main.buildVersion=<version>"
	buildVersion   = "dev"
	workDir        = flag.String("work-dir", "", "Working directory (default: ~/.mcp-pingr)")
	configPath     = flag.String("config", "", "Path to a YAML config file (default: <work-dir>/config.yaml if present)")
	address        = flag.String("address", "", "The address to bind the server to")
	port           = flag.Int("port", 0, "The port to bind the server to")
	transport      = flag.String("transport", "", "Transport mode: sse or stdio")
	logLevel       = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	showVersion    = flag.Bool("version", false, "Show version information and exit")
	storageBackend = flag.String("storage-backend", "", "Storage backend to use: json or memory (default: json)")
	storageWatch   = flag.Bool("storage-watch", false, "Reload tasks when the storage file is edited externally")
	notifierKind   = flag.String("notifier", "", "Comma separated notifiers: desktop, webhook, log (default: desktop)")
	webhookURL     = flag.String("webhook-url", "", "URL the webhook notifier posts reminders to")
	defaultHour    = flag.Int("default-hour", -1, "Hour of day used when a day keyword has no time (default: 8)")
	exportPath     = flag.String("export", "", "Write all tasks to this file and exit")
	importPath     = flag.String("import", "", "Replace all tasks with the snapshot in this file and exit")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if buildVersion != "" {
		cfg.Server.Version = buildVersion
	}

	if *showVersion {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	if _, err := server.ConfigureLogging(cfg); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Create a context that will be cancelled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if done, err := app.runSnapshotCommand(ctx, *exportPath, *importPath); done {
		_ = app.backend.Close()
		if err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	waitForSignal(cancel, app)
}

// resolveWorkDir returns the work directory, creating it if needed
func resolveWorkDir() string {
	wd := *workDir
	if wd == "" {
		home := os.Getenv("HOME")
		if home == "" {
			// Fallback to current directory if HOME is unset
			home, _ = os.Getwd()
		}
		wd = filepath.Join(home, ".mcp-pingr")
	}
	_ = os.MkdirAll(wd, 0o755)
	return wd
}

// loadConfig layers defaults, the YAML file, environment variables and
// command line flags, in that order
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	wd := resolveWorkDir()
	cfg.Storage.JSONPath = filepath.Join(wd, "tasks.json")
	cfg.Logging.FilePath = filepath.Join(wd, "mcp-pingr.log")

	path := *configPath
	if path == "" {
		if candidate := filepath.Join(wd, "config.yaml"); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	config.FromEnv(cfg)

	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transport != "" {
		cfg.Server.TransportMode = *transport
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *storageBackend != "" {
		cfg.Storage.Backend = *storageBackend
	}
	// only set if the flag was passed explicitly
	if flagPassed("storage-watch") {
		cfg.Storage.Watch = *storageWatch
	}
	if *notifierKind != "" {
		cfg.Notifier.Kind = *notifierKind
	}
	if *webhookURL != "" {
		cfg.Notifier.WebhookURL = *webhookURL
	}
	if *defaultHour >= 0 {
		cfg.Scheduler.DefaultHour = *defaultHour
	}
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Application represents the running application
type Application struct {
	backend   storage.Storage
	store     *tasks.Store
	scheduler scheduler.Scheduler
	server    *server.MCPServer
	logger    *logging.Logger
	watch     bool
}

// newBackend creates the durable storage selected by cfg
func newBackend(cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "json", "":
		return storage.NewFileStorage(cfg.JSONPath)
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// createApp creates a new application instance
func createApp(cfg *config.Config) (*Application, error) {
	logger := logging.GetDefaultLogger()

	backend, err := newBackend(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}
	store := tasks.NewStore(backend,
		tasks.WithClock(clk),
		tasks.WithResolver(timeref.NewResolver(cfg.Scheduler.DefaultHour)),
		tasks.WithLogger(logger),
	)

	notifier, err := notify.FromConfig(cfg.Notifier, cfg.Scheduler.NotificationTitle, clk, logger)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.NewScheduler(&cfg.Scheduler, store, notifier, clk, logger)
	if err != nil {
		return nil, err
	}

	mcpServer, err := server.NewMCPServer(cfg, store, clk)
	if err != nil {
		return nil, err
	}

	// Every change made outside the tool handlers bumps the listed revision
	sched.OnTasksChanged(mcpServer.TasksChanged)
	store.OnReload(mcpServer.TasksChanged)

	return &Application{
		backend:   backend,
		store:     store,
		scheduler: sched,
		server:    mcpServer,
		logger:    logger,
		watch:     cfg.Storage.Watch,
	}, nil
}

// runSnapshotCommand handles -export and -import. It reports whether one of
// them ran, in which case the process should exit.
func (a *Application) runSnapshotCommand(ctx context.Context, exportTo, importFrom string) (bool, error) {
	switch {
	case importFrom != "":
		data, err := os.ReadFile(importFrom)
		if err != nil {
			return true, fmt.Errorf("read snapshot: %w", err)
		}
		if err := a.store.Import(ctx, data); err != nil {
			return true, fmt.Errorf("import snapshot: %w", err)
		}
		a.logger.Infof("Imported tasks from %s", importFrom)
		return true, nil
	case exportTo != "":
		data, err := a.store.Export(ctx)
		if err != nil {
			return true, fmt.Errorf("export tasks: %w", err)
		}
		if err := os.WriteFile(exportTo, data, 0o644); err != nil {
			return true, fmt.Errorf("write snapshot: %w", err)
		}
		a.logger.Infof("Exported tasks to %s", exportTo)
		return true, nil
	default:
		return false, nil
	}
}

// Start starts the application
func (a *Application) Start(ctx context.Context) error {
	if a.watch {
		if err := a.store.Watch(ctx); err != nil {
			a.logger.Warnf("Storage watch disabled: %v", err)
		} else {
			a.logger.Infof("Watching storage for external changes")
		}
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("Notification scheduler started")

	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("MCP server started")

	return nil
}

// Stop stops the application
func (a *Application) Stop() error {
	if err := a.scheduler.Stop(); err != nil {
		return err
	}
	a.logger.Infof("Notification scheduler stopped")

	if err := a.server.Stop(); err != nil {
		a.logger.Errorf("Error stopping MCP server: %v", err)
		return err
	}
	a.logger.Infof("MCP server stopped")

	if err := a.backend.Close(); err != nil {
		a.logger.Warnf("Error closing storage: %v", err)
	}
	_ = a.logger.Sync()
	return nil
}

// waitForSignal waits for termination signals and performs cleanup
func waitForSignal(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh
	app.logger.Infof("Received termination signal, shutting down...")

	// Cancel the context to initiate shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
