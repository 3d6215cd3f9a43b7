package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

type BadPersonHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewBadPersonHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *BadPersonHandler {
	return &BadPersonHandler{db: db, minio: minio}
}

func (h *BadPersonHandler) List(c *gin.Context) {
	people, err := h.db.ListBadPeople(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.BadPersonResponse, 0, len(people))
	for _, p := range people {
		resp = append(resp, dto.BadPersonResponse{
			ID:        p.ID,
			Name:      p.Name,
			Reason:    p.Reason,
			ImageURL:  ws.SnapshotURL(p.ImageKey),
			CreatedAt: p.CreatedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"bad_people": resp, "total": len(resp)})
}

func (h *BadPersonHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req dto.UpdateBadPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.UpdateBadPerson(c.Request.Context(), id, req.Name, req.Reason); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *BadPersonHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.db.DeleteBadPerson(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
