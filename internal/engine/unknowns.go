package engine

import (
	"sort"
	"sync"
	"time"
)

// QueuedUnknown is one unresolved unknown sighting awaiting an operator
// decision.
type QueuedUnknown struct {
	UnknownID string    `json:"unknown_id"`
	ImagePath string    `json:"image_path"`
	FirstSeen time.Time `json:"first_seen"`
}

// UnknownQueue holds still-unresolved unknown sightings, at most one entry
// per unknown_id. Ordering is presentation-only (newest first); resolution is
// addressed by id, never by position.
type UnknownQueue struct {
	mu      sync.RWMutex
	entries map[string]*QueuedUnknown
}

func NewUnknownQueue() *UnknownQueue {
	return &UnknownQueue{entries: make(map[string]*QueuedUnknown)}
}

// Upsert inserts or refreshes the entry for a sighting. first_seen stays
// stable across re-emissions and the image only fills in when none was
// recorded yet.
func (q *UnknownQueue) Upsert(id, imagePath string, firstSeen time.Time) QueuedUnknown {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		e = &QueuedUnknown{UnknownID: id, ImagePath: imagePath, FirstSeen: firstSeen}
		q.entries[id] = e
		return *e
	}
	if e.ImagePath == "" {
		e.ImagePath = imagePath
	}
	if e.FirstSeen.IsZero() {
		e.FirstSeen = firstSeen
	}
	return *e
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (q *UnknownQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return false
	}
	delete(q.entries, id)
	return true
}

// List returns the queued sightings ordered by first_seen descending.
func (q *UnknownQueue) List() []QueuedUnknown {
	q.mu.RLock()
	out := make([]QueuedUnknown, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].UnknownID < out[j].UnknownID
		}
		return out[i].FirstSeen.After(out[j].FirstSeen)
	})
	return out
}

// Len returns the number of unresolved sightings.
func (q *UnknownQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Replace swaps the queue contents wholesale (resync from the persistence
// store after a reconnect).
func (q *UnknownQueue) Replace(entries []QueuedUnknown) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = make(map[string]*QueuedUnknown, len(entries))
	for i := range entries {
		e := entries[i]
		q.entries[e.UnknownID] = &e
	}
}
