package model

import "time"

// User represents a user in the system. Each user installation edits
// through one replica id, but the two are distinct concepts: the
// replica identifies the machine's copy of the project.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Not exposed in API responses
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
