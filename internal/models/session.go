package models

import "time"

// Session represents one outstanding refresh token and its issuing context.
// The list owned by a user is append-only except for targeted removal.
type Session struct {
	TokenID      string    `json:"token_id"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// User is the credential aggregate owning the session list.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}
