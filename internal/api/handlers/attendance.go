package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

const dateLayout = "2006-01-02"

type AttendanceHandler struct {
	db *storage.PostgresStore
}

func NewAttendanceHandler(db *storage.PostgresStore) *AttendanceHandler {
	return &AttendanceHandler{db: db}
}

// Get returns the per-user attendance rollup for one date. Every user
// appears; users with no closed interval that day carry a nil total.
func (h *AttendanceHandler) Get(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}

	rows, err := h.db.AttendanceRollup(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dateStr := date.Format(dateLayout)
	entries := make([]dto.RollupEntry, 0, len(rows))
	for _, row := range rows {
		entry := dto.RollupEntry{
			Date:                 dateStr,
			SubjectID:            row.SubjectID,
			SubjectName:          row.SubjectName,
			TotalDurationSeconds: row.TotalDurationSeconds,
		}
		if row.FirstSeen != nil {
			entry.FirstSeen = row.FirstSeen.Format(timeLayout)
		}
		if row.LastSeen != nil {
			entry.LastSeen = row.LastSeen.Format(timeLayout)
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, dto.RollupResponse{Date: dateStr, Entries: entries})
}

// Generate recomputes a date's rollup from closed presence events, replacing
// any previous rollup for that date.
func (h *AttendanceHandler) Generate(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}

	count, err := h.db.GenerateAttendance(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "generated", "date": date.Format(dateLayout), "rows": count})
}
