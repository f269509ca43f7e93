package domain

import "time"

const RefreshTokenDocType = "refresh_token"

// RefreshToken is the stored record of an issued refresh token. Only the
// SHA-256 of the token value is persisted; the value itself goes to the client
// once.
type RefreshToken struct {
	TokenHash string    `json:"token_hash"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
