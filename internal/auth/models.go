package auth

import "time"

// User is a platform participant with rating state.
type User struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	CurrentRating int       `json:"current_rating"`
	MaxRating     int       `json:"max_rating"`
	Title         string    `json:"title"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// RoleAdmin marks users allowed to create contests and questions.
const RoleAdmin = "admin"

// Session binds a user to one device. At most one session per user is
// active at a time.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"-"`
	PushToken        *string   `json:"push_token,omitempty"`
	IsActive         bool      `json:"is_active"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastActive       time.Time `json:"last_active"`
	CreatedAt        time.Time `json:"created_at"`
}
