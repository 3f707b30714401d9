// Package tokenstore provides durable backends for the credential manager.
// The persisted layout is three string entries: access token, refresh token
// (absent when the provider withheld one) and expiry as epoch milliseconds.
package tokenstore

const (
	keyAccessToken  = "google_access_token"
	keyRefreshToken = "google_refresh_token"
	keyExpiry       = "google_token_expiry"
)
