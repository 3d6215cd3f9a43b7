package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/presence/internal/config"
)

var upgrader = websocket.Upgrader{}

func detectorConfig(url string) config.DetectorConfig {
	return config.DetectorConfig{
		WSURL:             "ws" + strings.TrimPrefix(url, "http"),
		HeartbeatInterval: 20 * time.Millisecond,
		StaleTimeout:      time.Second,
		ReconnectMinWait:  10 * time.Millisecond,
		ReconnectMaxWait:  50 * time.Millisecond,
	}
}

func TestSupervisorDeliversMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"known"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unknown"}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 2)
	sup := NewSupervisor(detectorConfig(srv.URL), func(_ context.Context, raw []byte) {
		mu.Lock()
		got = append(got, string(raw))
		mu.Unlock()
		received <- struct{}{}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) < 2 || got[0] != `{"type":"known"}` || got[1] != `{"type":"unknown"}` {
		t.Errorf("delivered = %v", got)
	}
}

func TestSupervisorSendsHeartbeat(t *testing.T) {
	pings := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case pings <- string(raw):
		default:
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sup := NewSupervisor(detectorConfig(srv.URL), func(context.Context, []byte) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	select {
	case got := <-pings:
		if got != "ping" {
			t.Errorf("heartbeat payload = %q, want %q", got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestSupervisorReconnectsAndResyncs(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)
		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var resyncs atomic.Int32
	connected := make(chan struct{}, 4)
	sup := NewSupervisor(detectorConfig(srv.URL), func(context.Context, []byte) {}, func(context.Context) error {
		resyncs.Add(1)
		select {
		case connected <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	// Two resyncs means the first connection dropped and a second succeeded.
	for i := 0; i < 2; i++ {
		select {
		case <-connected:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for connect %d", i+1)
		}
	}

	if got := dials.Load(); got < 2 {
		t.Errorf("dials = %d, want >= 2", got)
	}
	if got := resyncs.Load(); got < 2 {
		t.Errorf("resyncs = %d, want >= 2", got)
	}
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	connected := make(chan struct{}, 1)
	sup := NewSupervisor(detectorConfig(srv.URL), func(context.Context, []byte) {}, func(context.Context) error {
		select {
		case connected <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := sup.State(); got != StateDisconnected {
		t.Errorf("State() = %v after shutdown", got)
	}
}

func TestNextWaitBackoffBounded(t *testing.T) {
	if got := nextWait(time.Second, 30*time.Second); got != 2*time.Second {
		t.Errorf("nextWait(1s) = %v", got)
	}
	if got := nextWait(20*time.Second, 30*time.Second); got != 30*time.Second {
		t.Errorf("nextWait(20s) = %v, want capped at 30s", got)
	}
}
