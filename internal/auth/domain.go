package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of the signed-in user.
type Profile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Partner   bool   `json:"partner"`
	CSRFToken string `json:"csrfToken,omitempty"`
}
