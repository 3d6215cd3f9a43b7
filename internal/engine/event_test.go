package engine

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeKnownSighting(t *testing.T) {
	raw := []byte(`{
		"type": "known",
		"user_id": "8a6f2f4e-9c1d-4f0a-b2de-55a1c3f0aa11",
		"name": "Alice",
		"note": "engineering",
		"first_seen": "2025-03-02T08:15:00",
		"last_seen": "2025-03-02T08:25:00",
		"snapshot": "snapshots/abc.jpg"
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ks, ok := ev.(KnownSighting)
	if !ok {
		t.Fatalf("Decode() = %T, want KnownSighting", ev)
	}
	if ks.UserID != "8a6f2f4e-9c1d-4f0a-b2de-55a1c3f0aa11" {
		t.Errorf("UserID = %q", ks.UserID)
	}
	if ks.Name != "Alice" || ks.Note != "engineering" {
		t.Errorf("Name/Note = %q/%q", ks.Name, ks.Note)
	}
	wantFirst := time.Date(2025, 3, 2, 8, 15, 0, 0, time.UTC)
	if !ks.FirstSeen.Equal(wantFirst) {
		t.Errorf("FirstSeen = %v, want %v", ks.FirstSeen, wantFirst)
	}
	if ks.Snapshot != "snapshots/abc.jpg" {
		t.Errorf("Snapshot = %q", ks.Snapshot)
	}
}

func TestDecodeNaiveTimestampIsUTC(t *testing.T) {
	raw := []byte(`{"type":"unknown","unknown_id":"u_42","last_seen":"2025-03-02T08:15:00.123456"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	us := ev.(UnknownSighting)
	want := time.Date(2025, 3, 2, 8, 15, 0, 123456000, time.UTC)
	if !us.LastSeen.Equal(want) {
		t.Errorf("LastSeen = %v, want %v", us.LastSeen, want)
	}
	if us.LastSeen.Location() != time.UTC {
		t.Errorf("LastSeen location = %v, want UTC", us.LastSeen.Location())
	}
}

func TestDecodeUnknownRefreshWithoutImage(t *testing.T) {
	raw := []byte(`{"type":"unknown","unknown_id":"u_42","last_seen":"2025-03-02T08:20:00Z"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	us := ev.(UnknownSighting)
	if us.UnknownID != "u_42" {
		t.Errorf("UnknownID = %q", us.UnknownID)
	}
	if us.ImagePath != "" {
		t.Errorf("ImagePath = %q, want empty", us.ImagePath)
	}
	if !us.FirstSeen.IsZero() {
		t.Errorf("FirstSeen = %v, want zero", us.FirstSeen)
	}
}

func TestDecodePresenceEndKindFromIDShape(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want Kind
	}{
		{"uuid maps to known", "8a6f2f4e-9c1d-4f0a-b2de-55a1c3f0aa11", KindKnown},
		{"cluster id maps to unknown", "u_20250302_081500_3", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"type":"presence_end","id":"` + tt.id + `","duration_seconds":600}`)
			ev, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			pe := ev.(PresenceEnd)
			if pe.Key.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", pe.Key.Kind, tt.want)
			}
			if pe.DurationSeconds == nil || *pe.DurationSeconds != 600 {
				t.Errorf("DurationSeconds = %v, want 600", pe.DurationSeconds)
			}
		})
	}
}

func TestDecodePresenceEndOptionalFields(t *testing.T) {
	raw := []byte(`{"type":"presence_end","id":"u_1"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	pe := ev.(PresenceEnd)
	if pe.DurationSeconds != nil {
		t.Errorf("DurationSeconds = %v, want nil", pe.DurationSeconds)
	}
	if pe.ExitTime != nil {
		t.Errorf("ExitTime = %v, want nil", pe.ExitTime)
	}
}

func TestDecodeBadAlert(t *testing.T) {
	raw := []byte(`{"type":"alert_bad_update","bad_id":"b_7","name":"N","reason":"banned","last_seen":"2025-03-02T09:00:00Z"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	alert := ev.(BadAlert)
	if !alert.Update {
		t.Error("Update = false, want true")
	}
	if alert.BadID != "b_7" || alert.Reason != "banned" {
		t.Errorf("BadID/Reason = %q/%q", alert.BadID, alert.Reason)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `ping`},
		{"unknown type", `{"type":"telemetry"}`},
		{"known without user_id", `{"type":"known","last_seen":"2025-03-02T08:15:00Z"}`},
		{"unknown without unknown_id", `{"type":"unknown","last_seen":"2025-03-02T08:15:00Z"}`},
		{"presence_end without id", `{"type":"presence_end"}`},
		{"sighting without timestamps", `{"type":"known","user_id":"8a6f2f4e-9c1d-4f0a-b2de-55a1c3f0aa11"}`},
		{"garbage timestamp", `{"type":"known","user_id":"8a6f2f4e-9c1d-4f0a-b2de-55a1c3f0aa11","last_seen":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); !errors.Is(err, ErrUnrecognized) {
				t.Errorf("Decode() error = %v, want ErrUnrecognized", err)
			}
		})
	}
}

func TestSubjectKeyString(t *testing.T) {
	if got := KnownKey("abc").String(); got != "known:abc" {
		t.Errorf("String() = %q", got)
	}
	if got := UnknownKey("u_1").String(); got != "unknown:u_1" {
		t.Errorf("String() = %q", got)
	}
}
