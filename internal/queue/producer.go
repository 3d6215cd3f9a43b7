package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/presence/internal/engine"
)

const (
	PresenceStreamName  = "PRESENCE"
	PresenceSubjectBase = "presence.closed"

	// DetectorControlSubject carries admin commands to the detector over raw
	// NATS (no JetStream): reload embeddings after identity changes.
	DetectorControlSubject = "detector.control"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the PRESENCE JetStream stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        PresenceStreamName,
		Subjects:    []string{PresenceSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Closed presence sessions for the attendance pipeline",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishClosedSession publishes a closed-session record. The record id
// doubles as the JetStream message id, so a re-publish inside the duplicate
// window collapses server-side.
func (p *Producer) PublishClosedSession(ctx context.Context, closed engine.ClosedSession) error {
	payload, err := json.Marshal(closed)
	if err != nil {
		return fmt.Errorf("marshal closed session: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", PresenceSubjectBase, closed.Kind)
	_, err = p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(closed.ID.String()))
	if err != nil {
		return fmt.Errorf("publish closed session: %w", err)
	}
	return nil
}

// PublishControl publishes a detector command via raw NATS (not JetStream).
func (p *Producer) PublishControl(data []byte) error {
	return p.nc.Publish(DetectorControlSubject, data)
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
