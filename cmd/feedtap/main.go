// feedtap connects to the order feed and prints every received event with a
// timestamp. It touches no board state.
// Usage: go run ./cmd/feedtap --config configs/orderboard.yaml
//
// Use --url to tap a feed without a config file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/orderboard/internal/config"
	"github.com/rickgao/orderboard/internal/connection"
)

func main() {
	configPath := flag.String("config", "configs/orderboard.example.yaml", "path to config file")
	baseURL := flag.String("url", "", "feed base URL (overrides api.base_url)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := &config.Config{}
	if *baseURL == "" {
		var err error
		cfg, err = config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	} else {
		cfg.API.BaseURL = *baseURL
		cfg.API.SocketPath = config.DefaultSocketPath
		cfg.API.Namespace = config.DefaultNamespace
	}

	endpoint, err := connection.Endpoint(cfg.API.BaseURL, cfg.API.SocketPath)
	if err != nil {
		logger.Error("invalid feed url", "error", err)
		os.Exit(1)
	}

	runID := uuid.New()
	logger = logger.With("run_id", runID.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.URL = endpoint
	if cfg.API.Namespace != "" {
		mgrCfg.Namespace = cfg.API.Namespace
	}
	if cfg.Connection.HandshakeTimeout > 0 {
		mgrCfg.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	}
	mgr := connection.NewManager(mgrCfg, logger)

	logger.Info("connecting", "endpoint", endpoint, "namespace", mgrCfg.Namespace)
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mgr.Status()
				logger.Info("stats",
					"connected", st.Connected,
					"generation", st.Generation,
					"attempt", st.Attempt,
					"session_id", st.SessionID,
				)
			}
		}
	}()

	logger.Info("tapping feed - press Ctrl+C to stop")

	events := mgr.Events()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			mgr.Close(shutdownCtx)
			shutdownCancel()
			logger.Info("shutdown complete")
			return
		case ev := <-events:
			printEvent(ev, *verbose)
		}
	}
}

func printEvent(ev connection.Event, verbose bool) {
	meta := ev.Metadata()
	ts := meta.ReceivedAt.Format("15:04:05.000")

	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("%s [%s] gen=%d %s\n", ts, ev.Name(), meta.Generation, data)
		return
	}

	switch e := ev.(type) {
	case connection.SnapshotReceived:
		fmt.Printf("%s [%s] gen=%d orders=%d\n", ts, ev.Name(), meta.Generation, len(e.Orders))
	case connection.OrderCreated:
		fmt.Printf("%s [%s] gen=%d id=%d status=%s\n", ts, ev.Name(), meta.Generation, orderID(e), e.Order.Status)
	case connection.OrderStatusChanged:
		fmt.Printf("%s [%s] gen=%d id=%d status=%s by=%s\n", ts, ev.Name(), meta.Generation, int64(e.Update.OrderID), e.Update.Status, e.Update.UpdatedBy)
	case connection.MalformedEvent:
		fmt.Printf("%s [%s] gen=%d event=%s err=%v\n", ts, ev.Name(), meta.Generation, e.Event, e.Err)
	case connection.ConnectionError:
		fmt.Printf("%s [%s] gen=%d err=%v\n", ts, ev.Name(), meta.Generation, e.Err)
	case connection.Disconnected:
		fmt.Printf("%s [%s] gen=%d reason=%s\n", ts, ev.Name(), meta.Generation, e.Reason)
	default:
		fmt.Printf("%s [%s] gen=%d session=%s\n", ts, ev.Name(), meta.Generation, meta.SessionID)
	}
}

func orderID(e connection.OrderCreated) int64 {
	if id := int64(e.Order.OrderID); id != 0 {
		return id
	}
	return int64(e.Order.ID)
}
