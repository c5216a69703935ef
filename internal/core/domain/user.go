package domain

import "time"

type UserID string

// User is an immutable identity record. PassHash is a bcrypt digest
// with embedded salt; it never leaves the repository layer.
type User struct {
	ID        UserID
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// PresenceEntry is derived state, never stored: one row of the
// presence snapshot sent to every live stream.
type PresenceEntry struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}
