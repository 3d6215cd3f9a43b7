package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

type PresenceHandler struct {
	store *engine.SessionStore
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewPresenceHandler(store *engine.SessionStore, db *storage.PostgresStore, minio *storage.MinIOStore) *PresenceHandler {
	return &PresenceHandler{store: store, db: db, minio: minio}
}

// Live returns the current in-memory presence sessions, newest activity
// first. This is the same state the WebSocket deltas mutate, so a client can
// fetch it once and apply deltas from there.
func (h *PresenceHandler) Live(c *gin.Context) {
	sessions := h.store.Snapshot()

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, dto.SessionResponse{
			Kind:        string(s.Key.Kind),
			SubjectID:   s.Key.ID,
			Name:        s.Name,
			Note:        s.Note,
			EntryTime:   s.EntryTime.Format(timeLayout),
			LastSeen:    s.LastSeen.Format(timeLayout),
			SnapshotURL: ws.SnapshotURL(s.Snapshot),
		})
	}

	c.JSON(http.StatusOK, dto.LiveResponse{Sessions: resp, Total: len(resp)})
}

// Events lists closed presence intervals from history, newest first.
func (h *PresenceHandler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.ListPresenceEvents(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PresenceEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.PresenceEventResponse{
			ID:              ev.ID,
			SubjectKind:     ev.SubjectKind,
			SubjectID:       ev.SubjectID,
			SubjectName:     ev.SubjectName,
			EntryTime:       ev.EntryTime.Format(timeLayout),
			ExitTime:        ev.ExitTime.Format(timeLayout),
			DurationSeconds: ev.DurationSeconds,
			SnapshotURL:     ws.SnapshotURL(ev.SnapshotKey),
		})
	}

	c.JSON(http.StatusOK, dto.PresenceEventListResponse{Events: resp, Total: total})
}

// Snapshot proxies a stored snapshot image out of object storage.
func (h *PresenceHandler) Snapshot(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot key required"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
