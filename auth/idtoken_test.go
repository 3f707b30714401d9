package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

func signedIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-kid"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey, audience string) *Verifier {
	t.Helper()
	given := keyfunc.NewGivenRSACustomWithOptions(&key.PublicKey, keyfunc.GivenKeyOptions{Algorithm: "RS256"})
	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{"test-kid": given})
	return NewVerifier(jwks, audience, "")
}

func TestVerifierProfile(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestVerifier(t, key, "abc")

	idToken := signedIDToken(t, key, jwt.MapClaims{
		"iss":     "https://accounts.google.com",
		"aud":     "abc",
		"sub":     "user-1",
		"name":    "Ada",
		"email":   "ada@x.test",
		"picture": "https://x.test/ada.png",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	user, err := v.Profile(idToken)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.ID != "user-1" || user.Name != "Ada" || user.Email != "ada@x.test" || user.ImageURL != "https://x.test/ada.png" {
		t.Fatalf("unexpected user: %#v", user)
	}
}

func TestVerifierRejectsExpired(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestVerifier(t, key, "abc")
	idToken := signedIDToken(t, key, jwt.MapClaims{
		"iss": "https://accounts.google.com",
		"aud": "abc",
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Profile(idToken); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestVerifier(t, key, "abc")
	idToken := signedIDToken(t, key, jwt.MapClaims{
		"iss": "https://accounts.google.com",
		"aud": "someone-else",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Profile(idToken); err == nil {
		t.Fatal("expected audience mismatch to be rejected")
	}
}
