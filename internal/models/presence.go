package models

import (
	"time"

	"github.com/google/uuid"
)

// UnknownSighting is an unmatched face cluster reported by the detector.
// The detector owns the row; this service lists it for the resolution queue
// and deletes it when an operator approves, ignores, or marks it bad.
type UnknownSighting struct {
	ID        string    `json:"unknown_id" db:"id"`
	ImageKey  string    `json:"image_key" db:"image_key"`
	Embedding []float32 `json:"-" db:"embedding"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
}

// PresenceEvent is a closed presence interval persisted for history and
// attendance aggregation. The ID is assigned by the engine at close time so
// redelivered close records collapse to a single row.
type PresenceEvent struct {
	ID              uuid.UUID `json:"id" db:"id"`
	SubjectKind     string    `json:"subject_kind" db:"subject_kind"`
	SubjectID       string    `json:"subject_id" db:"subject_id"`
	SubjectName     string    `json:"subject_name,omitempty" db:"subject_name"`
	EntryTime       time.Time `json:"entry_time" db:"entry_time"`
	ExitTime        time.Time `json:"exit_time" db:"exit_time"`
	DurationSeconds float64   `json:"duration_seconds" db:"duration_seconds"`
	SnapshotKey     string    `json:"snapshot_key,omitempty" db:"snapshot_key"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// AttendanceLog is one subject's rollup for one calendar date.
// TotalDurationSeconds is nil when no closed interval exists for the date;
// the presentation layer renders that as "-", never as a zero duration.
type AttendanceLog struct {
	Date                 string    `json:"date" db:"date"`
	SubjectID            string    `json:"subject_id" db:"subject_id"`
	SubjectName          string    `json:"subject_name" db:"subject_name"`
	TotalDurationSeconds *float64  `json:"total_duration_seconds" db:"total_duration_seconds"`
	FirstSeen            time.Time `json:"first_seen" db:"first_seen"`
	LastSeen             time.Time `json:"last_seen" db:"last_seen"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// DetectorCommand is published on the raw NATS control subject for the
// detector (reload embeddings after user/bad-person changes).
type DetectorCommand struct {
	Action string `json:"action"` // reload_embeddings
}
