package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
)

type fakeDirectory struct {
	mu       sync.Mutex
	unknowns map[string]models.UnknownSighting
	approved []string
	err      error
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{unknowns: make(map[string]models.UnknownSighting)}
	for _, id := range ids {
		d.unknowns[id] = models.UnknownSighting{ID: id, FirstSeen: time.Now()}
	}
	return d
}

func (d *fakeDirectory) ApproveUnknown(_ context.Context, unknownID, name, note string) (uuid.UUID, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return uuid.Nil, false, d.err
	}
	if _, ok := d.unknowns[unknownID]; !ok {
		return uuid.Nil, false, nil
	}
	delete(d.unknowns, unknownID)
	d.approved = append(d.approved, unknownID)
	return uuid.New(), true, nil
}

func (d *fakeDirectory) MarkBadPerson(_ context.Context, unknownID, name, reason string) (uuid.UUID, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return uuid.Nil, false, d.err
	}
	if _, ok := d.unknowns[unknownID]; !ok {
		return uuid.Nil, false, nil
	}
	delete(d.unknowns, unknownID)
	return uuid.New(), true, nil
}

func (d *fakeDirectory) DeleteUnknown(_ context.Context, unknownID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.unknowns[unknownID]; !ok {
		return false, nil
	}
	delete(d.unknowns, unknownID)
	return true, nil
}

func (d *fakeDirectory) ListUnknowns(_ context.Context, _ int) ([]models.UnknownSighting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]models.UnknownSighting, 0, len(d.unknowns))
	for _, u := range d.unknowns {
		out = append(out, u)
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	closed []ClosedSession
	err    error
}

func (p *fakePublisher) PublishClosedSession(_ context.Context, closed ClosedSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.closed = append(p.closed, closed)
	return nil
}

func (p *fakePublisher) published() []ClosedSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ClosedSession(nil), p.closed...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	deltas   []Delta
	queued   []QueuedUnknown
	removed  []string
	alerts   []BadAlert
	resyncs  int
}

func (n *recordingNotifier) SessionDelta(d Delta) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deltas = append(n.deltas, d)
}

func (n *recordingNotifier) UnknownQueued(e QueuedUnknown) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, e)
}

func (n *recordingNotifier) UnknownRemoved(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, id)
}

func (n *recordingNotifier) BadAlert(a BadAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) Resynced() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resyncs++
}

func newTestReconciler(dir *fakeDirectory) (*Reconciler, *SessionStore, *UnknownQueue, *fakePublisher, *recordingNotifier) {
	store := NewSessionStore()
	unknowns := NewUnknownQueue()
	pub := &fakePublisher{}
	notify := &recordingNotifier{}
	rec := NewReconciler(store, unknowns, dir, pub, notify)
	return rec, store, unknowns, pub, notify
}

func TestKnownLifecyclePublishesClosedSession(t *testing.T) {
	rec, store, _, pub, _ := newTestReconciler(newFakeDirectory())
	ctx := context.Background()
	userID := uuid.New().String()
	entry := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	rec.Apply(ctx, KnownSighting{UserID: userID, Name: "Alice", FirstSeen: entry, LastSeen: entry})
	rec.Apply(ctx, KnownSighting{UserID: userID, LastSeen: entry.Add(10 * time.Minute)})

	if _, ok := store.Get(KnownKey(userID)); !ok {
		t.Fatal("session missing after sightings")
	}

	rec.Apply(ctx, PresenceEnd{Key: KnownKey(userID)})

	if store.Len() != 0 {
		t.Errorf("Len() = %d after presence_end", store.Len())
	}
	got := pub.published()
	if len(got) != 1 {
		t.Fatalf("published %d closed sessions, want 1", len(got))
	}
	if got[0].SubjectID != userID || got[0].Kind != KindKnown {
		t.Errorf("closed = %+v", got[0])
	}
	if got[0].DurationSeconds != 600 {
		t.Errorf("DurationSeconds = %v, want 600", got[0].DurationSeconds)
	}
	if got[0].Name != "Alice" {
		t.Errorf("Name = %q", got[0].Name)
	}
}

func TestPresenceEndLeavesUnknownQueued(t *testing.T) {
	rec, store, unknowns, _, _ := newTestReconciler(newFakeDirectory())
	ctx := context.Background()
	seen := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", ImagePath: "unknowns/u_1.jpg", FirstSeen: seen, LastSeen: seen})
	rec.Apply(ctx, PresenceEnd{Key: UnknownKey("u_1")})

	if store.Len() != 0 {
		t.Errorf("session survived presence_end")
	}
	// Leaving view closes the interval but not the identity question.
	if unknowns.Len() != 1 {
		t.Errorf("queue len = %d, want 1", unknowns.Len())
	}
}

func TestDoublePresenceEndPublishesOnce(t *testing.T) {
	rec, _, _, pub, _ := newTestReconciler(newFakeDirectory())
	ctx := context.Background()
	userID := uuid.New().String()
	seen := time.Now().UTC()

	rec.Apply(ctx, KnownSighting{UserID: userID, FirstSeen: seen, LastSeen: seen})
	rec.Apply(ctx, PresenceEnd{Key: KnownKey(userID)})
	rec.Apply(ctx, PresenceEnd{Key: KnownKey(userID)})

	if got := pub.published(); len(got) != 1 {
		t.Errorf("published %d closed sessions, want 1", len(got))
	}
}

func TestApproveRekeysLiveSession(t *testing.T) {
	dir := newFakeDirectory("u_1")
	rec, store, unknowns, _, notify := newTestReconciler(dir)
	ctx := context.Background()
	entry := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", ImagePath: "unknowns/u_1.jpg", FirstSeen: entry, LastSeen: entry})

	userID, err := rec.Approve(ctx, "u_1", "Alice", "eng")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if userID == uuid.Nil {
		t.Fatal("Approve() returned nil user id")
	}

	if _, ok := store.Get(UnknownKey("u_1")); ok {
		t.Error("unknown session survived approve")
	}
	sess, ok := store.Get(KnownKey(userID.String()))
	if !ok {
		t.Fatal("known session not created by approve")
	}
	if !sess.EntryTime.Equal(entry) {
		t.Errorf("EntryTime = %v, want carried-over %v", sess.EntryTime, entry)
	}
	if sess.Name != "Alice" {
		t.Errorf("Name = %q", sess.Name)
	}
	if unknowns.Len() != 0 {
		t.Errorf("queue len = %d after approve", unknowns.Len())
	}

	notify.mu.Lock()
	removed := append([]string(nil), notify.removed...)
	notify.mu.Unlock()
	if len(removed) != 1 || removed[0] != "u_1" {
		t.Errorf("UnknownRemoved notifications = %v", removed)
	}
}

func TestLateSightingCannotResurrectResolvedUnknown(t *testing.T) {
	dir := newFakeDirectory("u_1")
	rec, store, unknowns, _, _ := newTestReconciler(dir)
	ctx := context.Background()
	seen := time.Now().UTC()

	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", FirstSeen: seen, LastSeen: seen})
	if _, err := rec.Approve(ctx, "u_1", "Alice", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// An in-flight sighting applied after the resolution must be dropped.
	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", LastSeen: seen.Add(time.Second)})

	if _, ok := store.Get(UnknownKey("u_1")); ok {
		t.Error("late sighting resurrected resolved unknown session")
	}
	if unknowns.Len() != 0 {
		t.Errorf("queue len = %d, want 0", unknowns.Len())
	}
}

func TestIgnoreCleansUpWhenRemoteAlreadyGone(t *testing.T) {
	dir := newFakeDirectory() // u_1 not present remotely
	rec, store, unknowns, _, _ := newTestReconciler(dir)
	ctx := context.Background()
	seen := time.Now().UTC()

	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", FirstSeen: seen, LastSeen: seen})

	if err := rec.Ignore(ctx, "u_1"); err != nil {
		t.Fatalf("Ignore() error = %v, want nil for remotely-absent id", err)
	}
	if _, ok := store.Get(UnknownKey("u_1")); ok {
		t.Error("session survived ignore")
	}
	if unknowns.Len() != 0 {
		t.Errorf("queue len = %d", unknowns.Len())
	}
}

func TestResolutionFailsClosedOnStoreError(t *testing.T) {
	dir := newFakeDirectory("u_1")
	dir.err = errors.New("pg down")
	rec, store, unknowns, _, _ := newTestReconciler(dir)
	ctx := context.Background()
	seen := time.Now().UTC()

	rec.Apply(ctx, UnknownSighting{UnknownID: "u_1", FirstSeen: seen, LastSeen: seen})
	dirErrLen := unknowns.Len()

	if _, err := rec.Approve(ctx, "u_1", "Alice", ""); err == nil {
		t.Fatal("Approve() error = nil, want failure")
	}
	// Local state untouched when the write never committed.
	if _, ok := store.Get(UnknownKey("u_1")); !ok {
		t.Error("session removed despite failed approve")
	}
	if unknowns.Len() != dirErrLen {
		t.Errorf("queue mutated despite failed approve")
	}
}

func TestResyncRebuildsQueueAndClearsSessions(t *testing.T) {
	dir := newFakeDirectory("u_a", "u_b")
	rec, store, unknowns, _, notify := newTestReconciler(dir)
	ctx := context.Background()
	seen := time.Now().UTC()

	rec.Apply(ctx, KnownSighting{UserID: uuid.New().String(), FirstSeen: seen, LastSeen: seen})
	rec.Apply(ctx, UnknownSighting{UnknownID: "u_stale", FirstSeen: seen, LastSeen: seen})

	if err := rec.Resync(ctx); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("store len = %d after resync", store.Len())
	}
	if unknowns.Len() != 2 {
		t.Errorf("queue len = %d, want 2 from directory", unknowns.Len())
	}
	if unknowns.Remove("u_stale") {
		t.Error("stale local unknown survived resync")
	}

	notify.mu.Lock()
	resyncs := notify.resyncs
	notify.mu.Unlock()
	if resyncs != 1 {
		t.Errorf("Resynced notifications = %d, want 1", resyncs)
	}
}

func TestHandleMessageDropsGarbage(t *testing.T) {
	rec, store, _, _, _ := newTestReconciler(newFakeDirectory())
	ctx := context.Background()

	rec.HandleMessage(ctx, []byte(`not json at all`))
	rec.HandleMessage(ctx, []byte(`{"type":"telemetry"}`))

	if store.Len() != 0 {
		t.Errorf("store len = %d, want 0", store.Len())
	}
}

func TestBadAlertForwardedWithoutSession(t *testing.T) {
	rec, store, _, _, notify := newTestReconciler(newFakeDirectory())
	ctx := context.Background()

	rec.HandleMessage(ctx, []byte(`{"type":"alert_bad","bad_id":"b_1","name":"N","last_seen":"2025-03-02T09:00:00Z"}`))

	if store.Len() != 0 {
		t.Errorf("bad alert created a session")
	}
	notify.mu.Lock()
	alerts := len(notify.alerts)
	notify.mu.Unlock()
	if alerts != 1 {
		t.Errorf("alerts forwarded = %d, want 1", alerts)
	}
}
