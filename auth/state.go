package auth

import (
	"strings"

	"github.com/google/uuid"
)

// newState builds the anti-forgery state token embedded in the authorization
// redirect: random, alphanumeric and comfortably over twenty characters.
func newState() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
