package auth

import (
	"context"
	"time"
)

// Credential is the OAuth2 token pair held for the signed-in user.
// RefreshToken may be empty when the provider withheld offline access.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ExpiresWithin reports whether the access token expires within d of now.
func (c Credential) ExpiresWithin(d time.Duration) bool {
	return time.Until(c.Expiry) <= d
}

// TokenStore persists the credential across process restarts. Implementations
// keep three durable entries (access token, refresh token, expiry) and this is
// the only durable state in the system.
type TokenStore interface {
	// Save overwrites the persisted credential.
	Save(ctx context.Context, cred Credential) error
	// Load returns the persisted credential and whether one was found.
	Load(ctx context.Context) (Credential, bool, error)
	// Clear removes the persisted credential.
	Clear(ctx context.Context) error
}
