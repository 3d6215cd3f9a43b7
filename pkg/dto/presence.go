package dto

import "github.com/google/uuid"

// SessionResponse is one live presence session.
type SessionResponse struct {
	Kind        string `json:"kind"`
	SubjectID   string `json:"subject_id"`
	Name        string `json:"name,omitempty"`
	Note        string `json:"note,omitempty"`
	EntryTime   string `json:"entry_time"`
	LastSeen    string `json:"last_seen"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

type LiveResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

// UnknownResponse is one unresolved unknown sighting in the queue.
type UnknownResponse struct {
	UnknownID string `json:"unknown_id"`
	ImageURL  string `json:"image_url,omitempty"`
	FirstSeen string `json:"first_seen"`
}

type UnknownListResponse struct {
	Unknowns []UnknownResponse `json:"unknowns"`
	Total    int               `json:"total"`
}

type PresenceEventResponse struct {
	ID              uuid.UUID `json:"id"`
	SubjectKind     string    `json:"subject_kind"`
	SubjectID       string    `json:"subject_id"`
	SubjectName     string    `json:"subject_name,omitempty"`
	EntryTime       string    `json:"entry_time"`
	ExitTime        string    `json:"exit_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	SnapshotURL     string    `json:"snapshot_url,omitempty"`
}

type PresenceEventListResponse struct {
	Events []PresenceEventResponse `json:"events"`
	Total  int                     `json:"total"`
}

type ApproveUnknownRequest struct {
	Name string `json:"name" binding:"required"`
	Note string `json:"note"`
}

type MarkBadRequest struct {
	Name   string `json:"name" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// RollupEntry is one subject's attendance for a date. TotalDurationSeconds
// stays nil (never zero) for subjects with no closed interval that day; the
// dashboard renders nil as "-".
type RollupEntry struct {
	Date                 string   `json:"date"`
	SubjectID            string   `json:"subject_id"`
	SubjectName          string   `json:"subject_name"`
	TotalDurationSeconds *float64 `json:"total_duration_seconds"`
	FirstSeen            string   `json:"first_seen,omitempty"`
	LastSeen             string   `json:"last_seen,omitempty"`
}

type RollupResponse struct {
	Date    string        `json:"date"`
	Entries []RollupEntry `json:"entries"`
}
