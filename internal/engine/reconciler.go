package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
)

// Directory is the persistence collaborator for identity resolution. The
// boolean result reports whether the unknown still existed remotely; a
// vanished id means the remote side already considers it resolved.
type Directory interface {
	ApproveUnknown(ctx context.Context, unknownID, name, note string) (uuid.UUID, bool, error)
	MarkBadPerson(ctx context.Context, unknownID, name, reason string) (uuid.UUID, bool, error)
	DeleteUnknown(ctx context.Context, unknownID string) (bool, error)
	ListUnknowns(ctx context.Context, limit int) ([]models.UnknownSighting, error)
}

// Publisher hands closed sessions to the attendance pipeline.
type Publisher interface {
	PublishClosedSession(ctx context.Context, closed ClosedSession) error
}

// Notifier receives observable state changes for the rendering layer.
type Notifier interface {
	SessionDelta(delta Delta)
	UnknownQueued(entry QueuedUnknown)
	UnknownRemoved(unknownID string)
	BadAlert(alert BadAlert)
	Resynced()
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) SessionDelta(Delta)          {}
func (NopNotifier) UnknownQueued(QueuedUnknown) {}
func (NopNotifier) UnknownRemoved(string)       {}
func (NopNotifier) BadAlert(BadAlert)           {}
func (NopNotifier) Resynced()                   {}

const keyShards = 64

// tombstoneTTL is how long a resolved unknown id keeps rejecting late
// sightings. By then the detector has deleted the cluster (and, on approve,
// re-recognizes the face as the new user).
const tombstoneTTL = time.Minute

// Reconciler applies decoded push-channel events and operator resolutions to
// the session store and unknown queue. All mutations for one subject key run
// under that key's shard lock, so a merge can never interleave with a close
// or a resolution for the same subject; different keys proceed in parallel.
type Reconciler struct {
	store    *SessionStore
	unknowns *UnknownQueue
	dir      Directory
	pub      Publisher
	notify   Notifier

	keymu [keyShards]sync.Mutex

	tmu        sync.Mutex
	tombstones map[string]time.Time

	now func() time.Time
}

func NewReconciler(store *SessionStore, unknowns *UnknownQueue, dir Directory, pub Publisher, notify Notifier) *Reconciler {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Reconciler{
		store:      store,
		unknowns:   unknowns,
		dir:        dir,
		pub:        pub,
		notify:     notify,
		tombstones: make(map[string]time.Time),
		now:        time.Now,
	}
}

func (r *Reconciler) shard(key SubjectKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &r.keymu[h.Sum32()%keyShards]
}

// HandleMessage decodes and applies one raw push-channel message. Malformed
// payloads are dropped with a warning; they never reach the store.
func (r *Reconciler) HandleMessage(ctx context.Context, raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		observability.EventsDropped.Inc()
		slog.Warn("dropping malformed push message", "error", err)
		return
	}
	r.Apply(ctx, ev)
}

// Apply runs one decoded event through the transition table.
func (r *Reconciler) Apply(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case KnownSighting:
		observability.EventsDecoded.WithLabelValues("known").Inc()
		r.applyKnown(ev)
	case UnknownSighting:
		observability.EventsDecoded.WithLabelValues("unknown").Inc()
		r.applyUnknown(ev)
	case PresenceEnd:
		observability.EventsDecoded.WithLabelValues("presence_end").Inc()
		r.applyEnd(ctx, ev)
	case BadAlert:
		observability.EventsDecoded.WithLabelValues("alert_bad").Inc()
		r.notify.BadAlert(ev)
	default:
		observability.EventsDropped.Inc()
		slog.Warn("dropping event of unexpected type", "event", fmt.Sprintf("%T", ev))
	}
}

func (r *Reconciler) applyKnown(ev KnownSighting) {
	key := KnownKey(ev.UserID)
	mu := r.shard(key)
	mu.Lock()
	delta := r.store.Observe(key, ev.FirstSeen, ev.LastSeen, ev.Snapshot, ev.Name, ev.Note)
	mu.Unlock()

	if delta.Op == DeltaCreated {
		observability.ActiveSessions.WithLabelValues(string(KindKnown)).Inc()
	}
	r.notify.SessionDelta(delta)
}

func (r *Reconciler) applyUnknown(ev UnknownSighting) {
	key := UnknownKey(ev.UnknownID)
	mu := r.shard(key)
	mu.Lock()
	if r.isTombstoned(ev.UnknownID) {
		mu.Unlock()
		slog.Debug("dropping sighting for resolved unknown", "unknown_id", ev.UnknownID)
		return
	}
	delta := r.store.Observe(key, ev.FirstSeen, ev.LastSeen, ev.ImagePath, "", "")
	entry := r.unknowns.Upsert(ev.UnknownID, ev.ImagePath, delta.Session.EntryTime)
	mu.Unlock()

	if delta.Op == DeltaCreated {
		observability.ActiveSessions.WithLabelValues(string(KindUnknown)).Inc()
	}
	observability.UnknownQueueDepth.Set(float64(r.unknowns.Len()))
	r.notify.SessionDelta(delta)
	r.notify.UnknownQueued(entry)
}

func (r *Reconciler) applyEnd(ctx context.Context, ev PresenceEnd) {
	mu := r.shard(ev.Key)
	mu.Lock()
	delta, closed, ok := r.store.End(ev.Key, ev.ExitTime, ev.DurationSeconds)
	mu.Unlock()
	if !ok {
		// Already closed or never observed. Not an error.
		return
	}

	observability.ActiveSessions.WithLabelValues(string(ev.Key.Kind)).Dec()
	observability.SessionsClosed.WithLabelValues(string(ev.Key.Kind)).Inc()
	r.notify.SessionDelta(delta)

	// A presence_end closes the interval but does not resolve identity: an
	// unknown subject stays in the queue until an operator decides.
	if err := r.pub.PublishClosedSession(ctx, *closed); err != nil {
		slog.Error("publish closed session", "key", ev.Key.String(), "error", err)
	}
}

// Approve turns an unknown sighting into a user. The store write commits
// first; only then is local state mutated, with the queue removal ordered
// after the session removal so renders never see a sighting without a backing
// session. The live session is re-keyed under the new user id with its entry
// time carried over.
func (r *Reconciler) Approve(ctx context.Context, unknownID, name, note string) (uuid.UUID, error) {
	userID, found, err := r.dir.ApproveUnknown(ctx, unknownID, name, note)
	if err != nil {
		return uuid.Nil, fmt.Errorf("approve unknown %s: %w", unknownID, err)
	}
	if !found {
		// Already resolved remotely; clean up whatever is left locally.
		slog.Debug("approve: unknown already resolved", "unknown_id", unknownID)
	}

	prev, had := r.removeResolved(unknownID)
	observability.Resolutions.WithLabelValues("approved").Inc()

	if found && had {
		key := KnownKey(userID.String())
		mu := r.shard(key)
		mu.Lock()
		delta := r.store.Adopt(key, prev, name, note)
		mu.Unlock()
		observability.ActiveSessions.WithLabelValues(string(KindKnown)).Inc()
		r.notify.SessionDelta(delta)
	}
	return userID, nil
}

// MarkBad flags an unknown sighting as a bad person.
func (r *Reconciler) MarkBad(ctx context.Context, unknownID, name, reason string) (uuid.UUID, error) {
	badID, found, err := r.dir.MarkBadPerson(ctx, unknownID, name, reason)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mark bad %s: %w", unknownID, err)
	}
	if !found {
		slog.Debug("mark-bad: unknown already resolved", "unknown_id", unknownID)
	}

	r.removeResolved(unknownID)
	observability.Resolutions.WithLabelValues("marked_bad").Inc()
	return badID, nil
}

// Ignore discards an unknown sighting. A remotely-absent id counts as
// success: the remote side already resolved it, so local cleanup proceeds
// rather than retrying against a resource that is confirmed gone.
func (r *Reconciler) Ignore(ctx context.Context, unknownID string) error {
	found, err := r.dir.DeleteUnknown(ctx, unknownID)
	if err != nil {
		return fmt.Errorf("ignore unknown %s: %w", unknownID, err)
	}
	if !found {
		slog.Debug("ignore: unknown already removed remotely, cleaning up anyway", "unknown_id", unknownID)
	}

	r.removeResolved(unknownID)
	observability.Resolutions.WithLabelValues("ignored").Inc()
	return nil
}

// removeResolved removes the unknown's session and queue entry atomically
// with respect to concurrent sightings for the same key, and tombstones the
// id so an in-flight sighting applied afterwards cannot resurrect it.
func (r *Reconciler) removeResolved(unknownID string) (Session, bool) {
	key := UnknownKey(unknownID)
	mu := r.shard(key)
	mu.Lock()
	r.addTombstone(unknownID)
	prev, had := r.store.Remove(key)
	r.unknowns.Remove(unknownID)
	mu.Unlock()

	if had {
		observability.ActiveSessions.WithLabelValues(string(KindUnknown)).Dec()
		r.notify.SessionDelta(Delta{Op: DeltaRemoved, Session: prev})
	}
	observability.UnknownQueueDepth.Set(float64(r.unknowns.Len()))
	r.notify.UnknownRemoved(unknownID)
	return prev, had
}

func (r *Reconciler) addTombstone(unknownID string) {
	now := r.now()
	r.tmu.Lock()
	for id, t := range r.tombstones {
		if now.Sub(t) > tombstoneTTL {
			delete(r.tombstones, id)
		}
	}
	r.tombstones[unknownID] = now
	r.tmu.Unlock()
}

func (r *Reconciler) isTombstoned(unknownID string) bool {
	r.tmu.Lock()
	t, ok := r.tombstones[unknownID]
	r.tmu.Unlock()
	return ok && r.now().Sub(t) <= tombstoneTTL
}

// Resync discards the live view and rebuilds the unknown queue from the
// persistence collaborator. Called after every (re)connect of the push
// channel: nothing is replayed, the live session store repopulates from the
// detector's continuous re-emission of sightings still in view.
func (r *Reconciler) Resync(ctx context.Context) error {
	unknowns, err := r.dir.ListUnknowns(ctx, 0)
	if err != nil {
		return fmt.Errorf("resync unknowns: %w", err)
	}

	dropped := r.store.Clear()
	for _, sess := range dropped {
		r.notify.SessionDelta(Delta{Op: DeltaRemoved, Session: sess})
	}

	entries := make([]QueuedUnknown, 0, len(unknowns))
	for _, u := range unknowns {
		entries = append(entries, QueuedUnknown{
			UnknownID: u.ID,
			ImagePath: u.ImageKey,
			FirstSeen: u.FirstSeen,
		})
	}
	r.unknowns.Replace(entries)

	observability.ActiveSessions.WithLabelValues(string(KindKnown)).Set(0)
	observability.ActiveSessions.WithLabelValues(string(KindUnknown)).Set(0)
	observability.UnknownQueueDepth.Set(float64(len(entries)))
	observability.Resyncs.Inc()

	r.notify.Resynced()
	slog.Info("resynced engine state", "dropped_sessions", len(dropped), "unknowns", len(entries))
	return nil
}
