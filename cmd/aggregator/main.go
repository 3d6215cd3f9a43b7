package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting presence aggregator service")

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Ensure the PRESENCE stream exists before attaching a consumer.
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Error("ensure nats streams", "error", err)
		os.Exit(1)
	}

	aggregator := attendance.NewAggregator(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume closed sessions and persist them as presence events.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeClosedSessions(ctx, "attendance-aggregator", func(ctx context.Context, msg jetstream.Msg) error {
		var closed engine.ClosedSession
		if err := json.Unmarshal(msg.Data(), &closed); err != nil {
			// Malformed payloads never become valid; drop instead of redeliver.
			slog.Error("malformed closed session, dropping", "error", err, "subject", msg.Subject())
			return nil
		}
		return aggregator.Persist(ctx, closed)
	})
	if err != nil {
		slog.Error("start closed-session consumer", "error", err)
		os.Exit(1)
	}

	// Nightly rollup of the previous day.
	go aggregator.RunNightly(ctx, cfg.Attendance.RollupHour, cfg.Attendance.RollupMinute)

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("aggregator metrics listening", "addr", ":8081")
		if err := http.ListenAndServe(":8081", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down aggregator...")
	cancel()
	slog.Info("aggregator stopped")
}
