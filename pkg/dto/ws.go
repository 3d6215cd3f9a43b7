package dto

// WSMessage is a dashboard WebSocket message. Type is one of:
// session_created, session_updated, session_removed, unknown_queued,
// unknown_removed, alert_bad, alert_bad_update, resync.
type WSMessage struct {
	Type      string           `json:"type"`
	Session   *SessionResponse `json:"session,omitempty"`
	Unknown   *UnknownResponse `json:"unknown,omitempty"`
	UnknownID string           `json:"unknown_id,omitempty"`
	Alert     *BadAlertPayload `json:"alert,omitempty"`
}

type BadAlertPayload struct {
	BadID       string `json:"bad_id"`
	Name        string `json:"name,omitempty"`
	Reason      string `json:"reason,omitempty"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
	FirstSeen   string `json:"first_seen,omitempty"`
	LastSeen    string `json:"last_seen,omitempty"`
}
