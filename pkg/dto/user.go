package dto

import "github.com/google/uuid"

type CreateUserRequest struct {
	Name string `json:"name" binding:"required"`
	Note string `json:"note"`
}

type UpdateUserRequest struct {
	Name string `json:"name" binding:"required"`
	Note string `json:"note"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Note      string    `json:"note,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	FirstSeen string    `json:"first_seen,omitempty"`
	LastSeen  string    `json:"last_seen,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type UpdateBadPersonRequest struct {
	Name   string `json:"name" binding:"required"`
	Reason string `json:"reason"`
}

type BadPersonResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt string    `json:"created_at"`
}
