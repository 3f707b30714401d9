package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned when no access token is held at all.
	ErrNoCredential = errors.New("no credential held")
	// ErrExpiredCredential is returned when the access token is expired and
	// no refresh token is available to renew it.
	ErrExpiredCredential = errors.New("credential expired and no refresh token held")
)

// ExchangeError indicates the token endpoint rejected an authorization code
// exchange with a non-success status.
type ExchangeError struct {
	Status  int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange failed: status %d: %s", e.Status, e.Message)
}

// RefreshError indicates a token refresh failed. Any held credential state is
// cleared when it is raised, forcing re-authentication.
type RefreshError struct {
	Status  int
	Message string
}

func (e *RefreshError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token refresh failed: %s", e.Message)
	}
	return fmt.Sprintf("token refresh failed: status %d: %s", e.Status, e.Message)
}
