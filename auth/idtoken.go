package auth

import (
	"errors"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

// GoogleJWKSURL serves the signing keys for Google-issued ID tokens.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// Verifier validates provider-issued ID tokens against a JWKS and extracts
// the signed-in user's profile from the claims.
type Verifier struct {
	jwks     *keyfunc.JWKS
	audience string
	issuer   string
	parser   *jwt.Parser
}

// NewVerifier creates a Verifier. The audience is the OAuth client id; the
// issuer defaults to the Google accounts origin when empty.
func NewVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	if issuer == "" {
		issuer = "https://accounts.google.com"
	}
	return &Verifier{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()),
	}
}

// Profile verifies the token and maps its claims to the local user shape.
func (v *Verifier) Profile(idToken string) (domain.User, error) {
	if v.jwks == nil {
		return domain.User{}, errors.New("jwks not configured")
	}
	token, err := v.parser.Parse(idToken, v.jwks.Keyfunc)
	if err != nil {
		return domain.User{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.User{}, errors.New("id token expired")
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, false) {
		return domain.User{}, errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(v.issuer, false) {
		return domain.User{}, errors.New("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.User{}, errors.New("missing sub")
	}

	user := domain.User{ID: sub}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if picture, ok := claims["picture"].(string); ok {
		user.ImageURL = picture
	}
	return user, nil
}
