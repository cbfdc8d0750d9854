package auth

import (
	"time"
)

// ObserverLoginRequest requests a token for an observer connection
type ObserverLoginRequest struct {
	ObserverID string `json:"observer_id" validate:"required,min=3,max=32,alphanumunicode"`
	Password   string `json:"password"`
}

// TokenResponse represents a token response
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	ObserverID  string    `json:"observer_id"`
	Role        string    `json:"role"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
