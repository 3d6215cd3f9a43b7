package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/pkg/dto"
)

type UnknownHandler struct {
	queue      *engine.UnknownQueue
	reconciler *engine.Reconciler
	producer   *queue.Producer
}

func NewUnknownHandler(q *engine.UnknownQueue, rec *engine.Reconciler, producer *queue.Producer) *UnknownHandler {
	return &UnknownHandler{queue: q, reconciler: rec, producer: producer}
}

func (h *UnknownHandler) List(c *gin.Context) {
	entries := h.queue.List()

	resp := make([]dto.UnknownResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.UnknownResponse{
			UnknownID: e.UnknownID,
			ImageURL:  ws.SnapshotURL(e.ImagePath),
			FirstSeen: e.FirstSeen.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, dto.UnknownListResponse{Unknowns: resp, Total: len(resp)})
}

func (h *UnknownHandler) Approve(c *gin.Context) {
	unknownID := c.Param("id")

	var req dto.ApproveUnknownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := h.reconciler.Approve(c.Request.Context(), unknownID, req.Name, req.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reloadEmbeddings()
	c.JSON(http.StatusOK, gin.H{"status": "approved", "user_id": userID})
}

func (h *UnknownHandler) MarkBad(c *gin.Context) {
	unknownID := c.Param("id")

	var req dto.MarkBadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	badID, err := h.reconciler.MarkBad(c.Request.Context(), unknownID, req.Name, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reloadEmbeddings()
	c.JSON(http.StatusOK, gin.H{"status": "marked_bad", "bad_id": badID})
}

func (h *UnknownHandler) Ignore(c *gin.Context) {
	unknownID := c.Param("id")

	if err := h.reconciler.Ignore(c.Request.Context(), unknownID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

// reloadEmbeddings tells the detector to pick up directory changes after a
// resolution. Failure is non-fatal: the detector also reloads on its own
// schedule.
func (h *UnknownHandler) reloadEmbeddings() {
	cmd := models.DetectorCommand{Action: "reload_embeddings"}
	data, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(data); err != nil {
		slog.Warn("publish reload_embeddings failed", "error", err)
	}
}
