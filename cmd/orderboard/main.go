// orderboard connects to the order feed, keeps today's NEW and COMPLETED
// orders reconciled, plays a sound for new orders and serves the board over
// HTTP.
// Usage: go run ./cmd/orderboard --config configs/orderboard.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/orderboard/internal/audio"
	"github.com/rickgao/orderboard/internal/config"
	"github.com/rickgao/orderboard/internal/connection"
	"github.com/rickgao/orderboard/internal/database"
	"github.com/rickgao/orderboard/internal/display"
	"github.com/rickgao/orderboard/internal/journal"
	"github.com/rickgao/orderboard/internal/orders"
	"github.com/rickgao/orderboard/internal/router"
	"github.com/rickgao/orderboard/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/orderboard.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger until the configured one is available
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting orderboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("orderboard failed", "error", err)
		os.Exit(1)
	}

	logger.Info("orderboard stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Display.Location()
	if err != nil {
		return err
	}

	endpoint, err := connection.Endpoint(cfg.API.BaseURL, cfg.API.SocketPath)
	if err != nil {
		return fmt.Errorf("derive feed endpoint: %w", err)
	}

	logger.Info("configuration loaded",
		"endpoint", endpoint,
		"namespace", cfg.API.Namespace,
		"timezone", loc.String(),
	)

	// Connection Manager
	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  endpoint,
		Namespace:            cfg.API.Namespace,
		HandshakeTimeout:     cfg.Connection.HandshakeTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		ReconnectBaseWait:    cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxWait:     cfg.Connection.ReconnectMaxDelay,
		ReconnectJitter:      cfg.Connection.ReconnectJitter,
		MaxReconnectAttempts: cfg.Connection.MaxAttempts,
		BufferSize:           cfg.Connection.BufferSize,
	}, logger.With("component", "connection"))

	// Reconciliation Engine and Presentation Adapter
	engine := orders.NewEngine(orders.WithLocation(loc))
	store := display.NewStore(
		display.WithReconnector(mgr),
		display.WithLogger(logger.With("component", "display")),
	)

	serverOpts := []display.ServerOption{
		display.WithKeepAlive(cfg.HTTP.SSEKeepAlive),
		display.WithDetail("connection", func() any { return mgr.Status() }),
		display.WithDetail("build", func() any { return version.Info() }),
	}

	// Audio Capability Negotiator
	var routerOpts []router.Option
	if notifier := newNotifier(cfg.Audio, logger.With("component", "audio")); notifier != nil {
		routerOpts = append(routerOpts, router.WithNotifier(notifier))
		serverOpts = append(serverOpts, display.WithDetail("audio", func() any {
			sel, ok := notifier.Selected()
			return map[string]any{"ready": notifier.Ready(), "playable": ok, "format": sel.Format}
		}))
	}

	// Event Journal
	routerCfg := router.RouterConfig{
		RolloverInterval: cfg.Display.RolloverCheckInterval,
		Location:         loc,
	}
	var pool *pgxpool.Pool
	if cfg.Journal.Enabled {
		pool = openJournal(ctx, cfg.Journal, logger)
		if pool != nil {
			defer pool.Close()
			routerCfg.JournalBufferSize = cfg.Journal.BufferSize
			serverOpts = append(serverOpts, display.WithHealthCheck("journal_db", database.HealthCheck(pool)))
		}
	}

	// Event Router
	rtr := router.NewRouter(routerCfg, mgr, engine, store, logger.With("component", "router"), routerOpts...)
	serverOpts = append(serverOpts, display.WithDetail("router", func() any { return rtr.Stats() }))

	var writer *journal.Writer
	if buf := rtr.Journal(); buf != nil {
		writer = journal.NewWriter(journal.WriterConfig{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, buf, pool, logger.With("component", "journal"))
		serverOpts = append(serverOpts, display.WithDetail("journal", func() any { return writer.Stats() }))
	}

	// HTTP server
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           display.NewServer(store, logger.With("component", "http"), serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if writer != nil {
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start journal writer: %w", err)
		}
	}
	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		httpServer.Shutdown(shutdownCtx)
		mgr.Close(shutdownCtx)
		rtr.Stop(shutdownCtx)
		if writer != nil {
			writer.Stop(shutdownCtx)
		}
		return nil
	})

	logger.Info("orderboard running",
		"instance_id", cfg.Instance.ID,
		"board_url", fmt.Sprintf("http://localhost:%d/api/orders", cfg.HTTP.Port),
	)

	return g.Wait()
}

// newNotifier builds the new-order notifier, or nil when audio is off or
// no player is available.
func newNotifier(cfg config.AudioConfig, logger *slog.Logger) *audio.Notifier {
	if !cfg.Enabled {
		logger.Info("audio disabled")
		return nil
	}

	player, err := audio.NewCommandPlayer(cfg.PlayerCommand, cfg.PlayerFormats)
	if err != nil {
		logger.Warn("audio player unavailable, notifications will be silent", "error", err)
		return nil
	}

	negotiator := audio.NewNegotiator(audio.Config{
		AssetBaseURL: cfg.AssetBaseURL,
		SoundName:    cfg.SoundName,
		Formats:      cfg.Formats,
		ProbeTimeout: cfg.ProbeTimeout,
		PlayTimeout:  cfg.PlayTimeout,
	}, player, audio.WithLogger(logger))

	return audio.NewNotifier(negotiator, player, logger)
}

// openJournal connects to the journal database. Failures disable the
// journal instead of stopping the board.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("connecting to journal database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, cfg.Database)
	if err != nil {
		logger.Error("journal database unavailable, journal disabled", "error", err)
		return nil
	}
	if err := journal.EnsureSchema(connectCtx, pool); err != nil {
		logger.Error("journal schema setup failed, journal disabled", "error", err)
		pool.Close()
		return nil
	}

	logger.Info("journal database connected")
	return pool
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
