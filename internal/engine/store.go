package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the live record of a subject currently considered in view.
// Invariant: EntryTime <= LastSeen.
type Session struct {
	Key       SubjectKey
	EntryTime time.Time
	LastSeen  time.Time
	Snapshot  string
	Name      string
	Note      string
}

type DeltaOp string

const (
	DeltaCreated DeltaOp = "created"
	DeltaUpdated DeltaOp = "updated"
	DeltaRemoved DeltaOp = "removed"
)

// Delta describes a single session store transition for incremental
// rendering. Session is a copy of the post-transition state (the final state
// for removals).
type Delta struct {
	Op      DeltaOp
	Session Session
}

// ClosedSession is the record handed to the attendance pipeline when a
// presence interval ends. ID is assigned once at close time so redelivery
// downstream stays idempotent.
type ClosedSession struct {
	ID              uuid.UUID `json:"id"`
	Kind            Kind      `json:"kind"`
	SubjectID       string    `json:"subject_id"`
	Name            string    `json:"name,omitempty"`
	EntryTime       time.Time `json:"entry_time"`
	ExitTime        time.Time `json:"exit_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Snapshot        string    `json:"snapshot,omitempty"`
}

// SessionStore maps subject keys to active presence sessions. A session
// exists here if and only if the subject is currently considered present.
//
// The store's own mutex makes each operation atomic; compound transitions
// (resolution removing a session and its queue entry together) are linearized
// per key by the Reconciler's key locks.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[SubjectKey]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[SubjectKey]*Session)}
}

// Observe creates or refreshes the session for key. On create, EntryTime is
// anchored to the sighting's first_seen (or the event time when absent). On
// merge, LastSeen only advances (out-of-order refreshes cannot move it
// backwards), EntryTime never changes, and snapshot/name/note fill in only if
// previously unset: names resolve lazily and stick.
func (s *SessionStore) Observe(key SubjectKey, first, last time.Time, snapshot, name, note string) Delta {
	eventTime := last
	if eventTime.IsZero() {
		eventTime = first
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		entry := first
		if entry.IsZero() {
			entry = eventTime
		}
		lastSeen := eventTime
		if lastSeen.Before(entry) {
			lastSeen = entry
		}
		sess = &Session{
			Key:       key,
			EntryTime: entry,
			LastSeen:  lastSeen,
			Snapshot:  snapshot,
			Name:      name,
			Note:      note,
		}
		s.sessions[key] = sess
		return Delta{Op: DeltaCreated, Session: *sess}
	}

	if eventTime.After(sess.LastSeen) {
		sess.LastSeen = eventTime
	}
	if sess.Snapshot == "" {
		sess.Snapshot = snapshot
	}
	if sess.Name == "" {
		sess.Name = name
	}
	if sess.Note == "" {
		sess.Note = note
	}
	return Delta{Op: DeltaUpdated, Session: *sess}
}

// End removes the session for key and produces its closed-session record.
// Ending an absent key is a no-op, not an error: the interval was already
// closed or never observed. Wire-provided exit time and duration win over
// computed values; a missing exit time falls back to the last sighting.
func (s *SessionStore) End(key SubjectKey, exitTime *time.Time, duration *float64) (Delta, *ClosedSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return Delta{}, nil, false
	}
	delete(s.sessions, key)

	exit := sess.LastSeen
	if exitTime != nil && !exitTime.IsZero() {
		exit = *exitTime
	}
	if exit.Before(sess.EntryTime) {
		exit = sess.EntryTime
	}
	dur := exit.Sub(sess.EntryTime).Seconds()
	if duration != nil && *duration >= 0 {
		dur = *duration
	}

	closed := &ClosedSession{
		ID:              uuid.New(),
		Kind:            key.Kind,
		SubjectID:       key.ID,
		Name:            sess.Name,
		EntryTime:       sess.EntryTime,
		ExitTime:        exit,
		DurationSeconds: dur,
		Snapshot:        sess.Snapshot,
	}
	return Delta{Op: DeltaRemoved, Session: *sess}, closed, true
}

// Remove deletes the session for key without emitting a closed-session
// record (operator resolutions end identity, not attendance). Returns the
// removed session when one existed.
func (s *SessionStore) Remove(key SubjectKey) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, key)
	return *sess, true
}

// Adopt installs a session under a new key carrying over the timeline of a
// resolved unknown session (approve re-keys unknown -> known).
func (s *SessionStore) Adopt(key SubjectKey, from Session, name, note string) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		Key:       key,
		EntryTime: from.EntryTime,
		LastSeen:  from.LastSeen,
		Snapshot:  from.Snapshot,
		Name:      name,
		Note:      note,
	}
	s.sessions[key] = sess
	return Delta{Op: DeltaCreated, Session: *sess}
}

// Get returns a copy of the session for key.
func (s *SessionStore) Get(key SubjectKey) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Snapshot returns copies of all active sessions, most recently seen first.
func (s *SessionStore) Snapshot() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear discards every session and returns the discarded set. Used by resync
// after a reconnect: the live view is rebuilt from the detector's re-emitted
// sightings, never replayed from the channel.
func (s *SessionStore) Clear() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.sessions = make(map[SubjectKey]*Session)
	return out
}
