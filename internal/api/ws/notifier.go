package ws

import (
	"time"

	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/pkg/dto"
)

// EngineNotifier bridges engine state changes onto the dashboard hub.
type EngineNotifier struct {
	hub *Hub
}

func NewEngineNotifier(hub *Hub) *EngineNotifier {
	return &EngineNotifier{hub: hub}
}

func (n *EngineNotifier) SessionDelta(delta engine.Delta) {
	n.hub.Broadcast(&dto.WSMessage{
		Type:    "session_" + string(delta.Op),
		Session: sessionResponse(delta.Session),
	})
}

func (n *EngineNotifier) UnknownQueued(entry engine.QueuedUnknown) {
	n.hub.Broadcast(&dto.WSMessage{
		Type: "unknown_queued",
		Unknown: &dto.UnknownResponse{
			UnknownID: entry.UnknownID,
			ImageURL:  SnapshotURL(entry.ImagePath),
			FirstSeen: entry.FirstSeen.Format(time.RFC3339),
		},
	})
}

func (n *EngineNotifier) UnknownRemoved(unknownID string) {
	n.hub.Broadcast(&dto.WSMessage{Type: "unknown_removed", UnknownID: unknownID})
}

func (n *EngineNotifier) BadAlert(alert engine.BadAlert) {
	msgType := "alert_bad"
	if alert.Update {
		msgType = "alert_bad_update"
	}
	n.hub.Broadcast(&dto.WSMessage{
		Type: msgType,
		Alert: &dto.BadAlertPayload{
			BadID:       alert.BadID,
			Name:        alert.Name,
			Reason:      alert.Reason,
			SnapshotURL: SnapshotURL(alert.Snapshot),
			FirstSeen:   formatOptional(alert.FirstSeen),
			LastSeen:    formatOptional(alert.LastSeen),
		},
	})
}

func (n *EngineNotifier) Resynced() {
	n.hub.Broadcast(&dto.WSMessage{Type: "resync"})
}

// SnapshotURL maps a stored object key to its API proxy URL.
func SnapshotURL(key string) string {
	if key == "" {
		return ""
	}
	return "/v1/snapshots/" + key
}

func sessionResponse(sess engine.Session) *dto.SessionResponse {
	return &dto.SessionResponse{
		Kind:        string(sess.Key.Kind),
		SubjectID:   sess.Key.ID,
		Name:        sess.Name,
		Note:        sess.Note,
		EntryTime:   sess.EntryTime.Format(time.RFC3339),
		LastSeen:    sess.LastSeen.Format(time.RFC3339),
		SnapshotURL: SnapshotURL(sess.Snapshot),
	}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
