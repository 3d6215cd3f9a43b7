package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates durable user identities from ephemeral detector-assigned
// unknown clusters.
type Kind string

const (
	KindKnown   Kind = "known"
	KindUnknown Kind = "unknown"
)

// SubjectKey uniquely addresses one presence session.
type SubjectKey struct {
	Kind Kind
	ID   string
}

func (k SubjectKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// KnownKey returns the session key for a durable user id.
func KnownKey(userID string) SubjectKey {
	return SubjectKey{Kind: KindKnown, ID: userID}
}

// UnknownKey returns the session key for a detector-assigned unknown id.
func UnknownKey(unknownID string) SubjectKey {
	return SubjectKey{Kind: KindUnknown, ID: unknownID}
}

// ClassifyID infers the subject kind from the shape of an identifier.
// Durable user ids are UUIDs; detector-assigned unknown ids are not. The wire
// protocol does not carry a kind field on presence_end, so the identifier
// shape is the only discriminator. This is a known fragility kept for
// compatibility with the detector; the real fix is an explicit kind field.
func ClassifyID(id string) Kind {
	if _, err := uuid.Parse(id); err == nil {
		return KindKnown
	}
	return KindUnknown
}

// ErrUnrecognized marks a push-channel message that does not decode into any
// known event. Callers drop such messages with a logged warning.
var ErrUnrecognized = errors.New("unrecognized event")

// Event is the closed set of typed push-channel events.
type Event interface {
	isEvent()
}

// KnownSighting reports a recognized user in view. LastSeen is zero on the
// initial sighting; Name and Snapshot may be absent on refresh messages.
type KnownSighting struct {
	UserID    string
	Name      string
	Note      string
	FirstSeen time.Time
	LastSeen  time.Time
	Snapshot  string
}

func (KnownSighting) isEvent() {}

// UnknownSighting reports an unmatched face cluster. Refresh messages carry
// only the id and last_seen.
type UnknownSighting struct {
	UnknownID string
	ImagePath string
	FirstSeen time.Time
	LastSeen  time.Time
}

func (UnknownSighting) isEvent() {}

// PresenceEnd closes the session for a subject. Duration and ExitTime are
// optional on the wire; absent values are computed from the session itself.
type PresenceEnd struct {
	Key             SubjectKey
	DurationSeconds *float64
	ExitTime        *time.Time
}

func (PresenceEnd) isEvent() {}

// BadAlert is advisory only: it is forwarded to dashboard clients and counted
// but never touches the session store.
type BadAlert struct {
	BadID     string
	Name      string
	Reason    string
	Snapshot  string
	FirstSeen time.Time
	LastSeen  time.Time
	Update    bool
}

func (BadAlert) isEvent() {}

// envelope covers the union of all wire fields; Type discriminates.
type envelope struct {
	Type            string   `json:"type"`
	UserID          string   `json:"user_id"`
	UnknownID       string   `json:"unknown_id"`
	BadID           string   `json:"bad_id"`
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Note            string   `json:"note"`
	Reason          string   `json:"reason"`
	Snapshot        string   `json:"snapshot"`
	ImagePath       string   `json:"image_path"`
	FirstSeen       string   `json:"first_seen"`
	LastSeen        string   `json:"last_seen"`
	ExitTime        string   `json:"exit_time"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

// Decode validates and normalizes a raw push-channel message into a typed
// event. Malformed payloads yield ErrUnrecognized; decoding never panics or
// propagates partial events.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	switch env.Type {
	case "known":
		if env.UserID == "" {
			return nil, fmt.Errorf("%w: known event without user_id", ErrUnrecognized)
		}
		first, last, err := parseSightingTimes(env.FirstSeen, env.LastSeen)
		if err != nil {
			return nil, err
		}
		return KnownSighting{
			UserID:    env.UserID,
			Name:      env.Name,
			Note:      env.Note,
			FirstSeen: first,
			LastSeen:  last,
			Snapshot:  env.Snapshot,
		}, nil

	case "unknown":
		if env.UnknownID == "" {
			return nil, fmt.Errorf("%w: unknown event without unknown_id", ErrUnrecognized)
		}
		first, last, err := parseSightingTimes(env.FirstSeen, env.LastSeen)
		if err != nil {
			return nil, err
		}
		return UnknownSighting{
			UnknownID: env.UnknownID,
			ImagePath: env.ImagePath,
			FirstSeen: first,
			LastSeen:  last,
		}, nil

	case "presence_end":
		if env.ID == "" {
			return nil, fmt.Errorf("%w: presence_end without id", ErrUnrecognized)
		}
		ev := PresenceEnd{
			Key:             SubjectKey{Kind: ClassifyID(env.ID), ID: env.ID},
			DurationSeconds: env.DurationSeconds,
		}
		if env.ExitTime != "" {
			t, err := parseTimestamp(env.ExitTime)
			if err != nil {
				return nil, fmt.Errorf("%w: bad exit_time %q", ErrUnrecognized, env.ExitTime)
			}
			ev.ExitTime = &t
		}
		return ev, nil

	case "alert_bad", "alert_bad_update":
		first, last, err := parseSightingTimes(env.FirstSeen, env.LastSeen)
		if err != nil {
			return nil, err
		}
		return BadAlert{
			BadID:     env.BadID,
			Name:      env.Name,
			Reason:    env.Reason,
			Snapshot:  env.Snapshot,
			FirstSeen: first,
			LastSeen:  last,
			Update:    env.Type == "alert_bad_update",
		}, nil
	}

	return nil, fmt.Errorf("%w: type %q", ErrUnrecognized, env.Type)
}

// parseSightingTimes requires at least one of first_seen/last_seen.
func parseSightingTimes(firstStr, lastStr string) (first, last time.Time, err error) {
	if firstStr == "" && lastStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: sighting without timestamp", ErrUnrecognized)
	}
	if firstStr != "" {
		if first, err = parseTimestamp(firstStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad first_seen %q", ErrUnrecognized, firstStr)
		}
	}
	if lastStr != "" {
		if last, err = parseTimestamp(lastStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad last_seen %q", ErrUnrecognized, lastStr)
		}
	}
	return first, last, nil
}

// timestampLayouts: the detector emits naive ISO8601 (no zone, UTC implied)
// alongside standard RFC3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
