package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/stream"
)

type SystemHandler struct {
	db         *storage.PostgresStore
	minio      *storage.MinIOStore
	producer   *queue.Producer
	supervisor *stream.Supervisor
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer, supervisor *stream.Supervisor) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer, supervisor: supervisor}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	// Check Postgres
	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	// Check MinIO
	if err := h.minio.Ping(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	// Check NATS
	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	// Detector link state is reported but does not gate readiness: the API
	// stays useful for history and directory work while the detector is down.
	if h.supervisor != nil {
		checks["detector"] = h.supervisor.State().String()
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

// ReloadEmbeddings asks the detector to reload its identity directory.
func (h *SystemHandler) ReloadEmbeddings(c *gin.Context) {
	cmd := models.DetectorCommand{Action: "reload_embeddings"}
	data, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(data); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "requested"})
}
