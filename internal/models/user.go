package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a known, durable identity managed by operators.
// Embeddings live alongside the record but are consumed only by the
// detector; this service never runs matching itself.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Note      string    `json:"note" db:"note"`
	ImageKey  string    `json:"image_key" db:"image_key"`
	Embedding []float32 `json:"-" db:"embedding"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BadPerson is a flagged identity; detections of one raise advisory alerts
// on the push channel but never create attendance records.
type BadPerson struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Reason    string    `json:"reason" db:"reason"`
	ImageKey  string    `json:"image_key" db:"image_key"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
