package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/observability"
)

// State is the supervisor connection state:
// Disconnected -> Connecting -> Connected -> (Stale|Closed) -> Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStale
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStale:
		return "stale"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives each raw message delivered on the push channel.
type Handler func(ctx context.Context, raw []byte)

// Supervisor owns the detector push-channel connection lifecycle: dial,
// heartbeat, staleness detection, and reconnect with bounded exponential
// backoff. No missed events are buffered across a disconnect; the onConnect
// hook resyncs authoritative state from the persistence store instead.
type Supervisor struct {
	url          string
	heartbeat    time.Duration
	staleTimeout time.Duration
	minWait      time.Duration
	maxWait      time.Duration

	handler   Handler
	onConnect func(ctx context.Context) error

	dialer *websocket.Dialer
	state  atomic.Int32
}

func NewSupervisor(cfg config.DetectorConfig, handler Handler, onConnect func(ctx context.Context) error) *Supervisor {
	return &Supervisor{
		url:          cfg.WSURL,
		heartbeat:    cfg.HeartbeatInterval,
		staleTimeout: cfg.StaleTimeout,
		minWait:      cfg.ReconnectMinWait,
		maxWait:      cfg.ReconnectMaxWait,
		handler:      handler,
		onConnect:    onConnect,
		dialer:       websocket.DefaultDialer,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Run connects and re-connects until ctx is cancelled. Events already read
// are always delivered to the handler before a reconnect cycle starts.
func (s *Supervisor) Run(ctx context.Context) {
	wait := s.minWait
	first := true

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}
		if !first {
			observability.DetectorReconnects.Inc()
		}
		first = false

		s.setState(StateConnecting)
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.setState(StateDisconnected)
			slog.Warn("detector dial failed", "url", s.url, "error", err, "retry_in", wait.String())
			if !sleepCtx(ctx, wait) {
				return
			}
			wait = nextWait(wait, s.maxWait)
			continue
		}

		s.setState(StateConnected)
		slog.Info("detector push channel connected", "url", s.url)
		wait = s.minWait

		if s.onConnect != nil {
			if err := s.onConnect(ctx); err != nil {
				// Stay connected on a stale view; the next reconnect retries.
				slog.Warn("post-connect resync failed", "error", err)
			}
		}

		end := s.serve(ctx, conn)
		s.setState(end)
		conn.Close()
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		slog.Warn("detector push channel lost", "reason", end.String(), "retry_in", wait.String())
		if !sleepCtx(ctx, wait) {
			return
		}
		wait = nextWait(wait, s.maxWait)
	}
}

// serve pumps messages until the connection dies, returning Stale when the
// read deadline fired with no traffic and Closed for any other transport end.
func (s *Supervisor) serve(ctx context.Context, conn *websocket.Conn) State {
	done := make(chan struct{})
	defer close(done)

	// Heartbeat: a bare text ping on a fixed interval keeps the transport
	// alive. The far end never acks it meaningfully and that is fine.
	go func() {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
				observability.HeartbeatsSent.Inc()
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.staleTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return StateClosed
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return StateStale
			}
			return StateClosed
		}
		if len(raw) == 0 {
			continue
		}
		s.handler(ctx, raw)
	}
}

func nextWait(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
