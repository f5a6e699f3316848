package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/netdash/internal/alerts"
	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/config"
	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/devicestore"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/inventory"
	"github.com/HerbHall/netdash/internal/metrics"
	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/internal/server"
	"github.com/HerbHall/netdash/internal/services"
	"github.com/HerbHall/netdash/internal/settings"
	"github.com/HerbHall/netdash/internal/store"
	"github.com/HerbHall/netdash/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(v, logger); err != nil {
		logger.Fatal("netdash exited", zap.Error(err))
	}
}

// newLogger builds a production logger at the configured level, or a
// development logger when log.development is set.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if v.GetBool("log.development") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(v *viper.Viper, logger *zap.Logger) error {
	logger.Info("NetDash starting", zap.String("version", version.Short()))

	m := metrics.New()
	client, err := backend.New(backend.Config{
		BaseURL:   v.GetString("backend.base_url"),
		Timeout:   v.GetDuration("backend.timeout"),
		RateLimit: v.GetFloat64("backend.rate_limit"),
		Burst:     v.GetInt("backend.burst"),
		Logger:    logger.Named("backend"),
		Observer:  m,
	})
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	devices := devicestore.New(client, logger.Named("devicestore"))
	defer devices.Close()

	bus := event.NewBus(logger.Named("bus"))
	corr := correlator.New(devices, logger.Named("correlator"),
		correlator.WithCaps(v.GetInt("plugins.alerts.global_cap"), v.GetInt("plugins.alerts.device_cap")),
		correlator.WithPublisher(bus),
		correlator.WithObserver(m),
	)

	repo, closeRepo, err := openSettings(v.GetString("database.path"), logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	registry := plugin.NewRegistry(logger)
	plugins := []plugin.Plugin{
		inventory.New(inventory.Deps{
			Store:    devices,
			Groups:   client,
			Alerts:   corr,
			Bus:      bus,
			Observer: m,
		}),
		alerts.New(alerts.Deps{
			Correlator: corr,
			WhiteList:  client,
			Bus:        bus,
			StreamURL:  client.StreamURL(),
			Observer:   m,
		}),
	}
	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			return fmt.Errorf("register plugin: %w", err)
		}
	}
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("validate plugins: %w", err)
	}
	if err := registry.InitAll(v); err != nil {
		return fmt.Errorf("initialize plugins: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("start plugins: %w", err)
	}

	addr := net.JoinHostPort(v.GetString("server.host"), v.GetString("server.port"))
	srv := server.New(addr, registry, logger,
		server.WithMetrics(m.Handler()),
		server.WithRoutes(settings.NewHandler(repo, logger.Named("settings")).RegisterRoutes),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()
	logger.Info("NetDash ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	registry.StopAll()
	cancel()

	logger.Info("NetDash stopped")
	return nil
}

// openSettings opens the SQLite preferences store at path. An empty path
// keeps preferences in memory for the life of the process.
func openSettings(path string, logger *zap.Logger) (services.SettingsRepository, func(), error) {
	if path == "" {
		logger.Warn("database.path is empty; preferences will not persist")
		return services.NewMemorySettingsRepository(), func() {}, nil
	}
	db, err := store.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	repo, err := services.NewSQLiteSettingsRepository(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("settings repository: %w", err)
	}
	return repo, func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}, nil
}
