package token

import (
	"fmt"
	"time"
)

// AccessToken is a short-lived bearer token for one tenant. Tokens are
// superseded on refresh, never mutated.
type AccessToken struct {
	TenantID  string
	Value     string
	ExpiresAt time.Time
}

// AuthError is a terminal credential failure from the token exchange. The
// caller has to fix the credential set; retrying does not help.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token exchange failed: %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("token exchange failed (status %d): %s", e.Status, e.Message)
}
