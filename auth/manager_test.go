package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type memStore struct {
	mu     sync.Mutex
	cred   Credential
	has    bool
	saves  int
	clears int
}

func (s *memStore) Save(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.has = true
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, s.has, nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	s.has = false
	s.clears++
	return nil
}

func (s *memStore) snapshot() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, s.has
}

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.PanicLevel)
	return logger
}

func newTestManager(t *testing.T, tokenURL string, store TokenStore) *Manager {
	t.Helper()
	if store == nil {
		store = &memStore{}
	}
	cfg := Config{
		ClientID:     "abc",
		ClientSecret: "secret",
		RedirectURI:  "https://x.test",
		TokenURL:     tokenURL,
	}
	return NewManager(cfg, store, testLogger())
}

func TestAuthorizationURL(t *testing.T) {
	m := newTestManager(t, "http://unused", nil)
	raw := m.AuthorizationURL()

	if !strings.Contains(raw, "client_id=abc&redirect_uri=https%3A%2F%2Fx.test") {
		t.Fatalf("missing client/redirect pair: %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" || q.Get("access_type") != "offline" {
		t.Fatalf("unexpected flow params: %v", q)
	}
	if q.Get("include_granted_scopes") != "true" || q.Get("prompt") != "consent" {
		t.Fatalf("unexpected consent params: %v", q)
	}
	scopes := strings.Fields(q.Get("scope"))
	if len(scopes) != 3 {
		t.Fatalf("expected three scopes, got %v", scopes)
	}
	state := q.Get("state")
	if len(state) < 20 {
		t.Fatalf("state too short: %q", state)
	}
	for _, r := range state {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			t.Fatalf("state not alphanumeric: %q", state)
		}
	}
	if !m.VerifyState(state) {
		t.Fatal("issued state did not verify")
	}
	if m.VerifyState(state) {
		t.Fatal("state verified twice")
	}
}

func TestCompleteAuthorization(t *testing.T) {
	var posts int
	var gotCode, gotGrant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotCode = r.PostFormValue("code")
		gotGrant = r.PostFormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","expires_in":3600,"token_type":"Bearer","scope":"s","refresh_token":"rt-1"}`))
	}))
	defer srv.Close()

	store := &memStore{}
	m := newTestManager(t, srv.URL, store)
	cred, err := m.CompleteAuthorization(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	if posts != 1 {
		t.Fatalf("expected exactly one token post, got %d", posts)
	}
	if gotCode != "XYZ" || gotGrant != "authorization_code" {
		t.Fatalf("unexpected form: code=%q grant=%q", gotCode, gotGrant)
	}
	if cred.AccessToken != "at-1" || cred.RefreshToken != "rt-1" {
		t.Fatalf("unexpected credential: %#v", cred)
	}
	if until := time.Until(cred.Expiry); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("unexpected expiry: %v", cred.Expiry)
	}
	if saved, has := store.snapshot(); !has || saved.AccessToken != "at-1" {
		t.Fatalf("credential not persisted: %#v", saved)
	}
	if !m.IsAuthenticated() {
		t.Fatal("expected authenticated after exchange")
	}
}

func TestCompleteAuthorizationNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad code", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	_, err := m.CompleteAuthorization(context.Background(), "nope")
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) || exchangeErr.Status != http.StatusBadRequest {
		t.Fatalf("expected ExchangeError with 400, got %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatal("must not be authenticated after failed exchange")
	}
}

func TestValidTokenNoCredential(t *testing.T) {
	m := newTestManager(t, "http://unused", nil)
	if _, err := m.ValidToken(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestValidTokenExpiredWithoutRefreshToken(t *testing.T) {
	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", Expiry: time.Now().Add(-time.Minute)})
	m := newTestManager(t, "http://unused", store)
	m.RestoreFromStorage(context.Background())
	if _, err := m.ValidToken(context.Background()); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestValidTokenRefreshWindow(t *testing.T) {
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostFormValue("grant_type") != "refresh_token" || r.PostFormValue("refresh_token") != "rt" {
			t.Fatalf("unexpected refresh form: %v", r.PostForm)
		}
		w.Write([]byte(`{"access_token":"at-new","expires_in":3600,"token_type":"Bearer","scope":"s"}`))
	}))
	defer srv.Close()

	// Expiry well in the future: no refresh.
	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(5 * time.Minute)})
	m := newTestManager(t, srv.URL, store)
	m.RestoreFromStorage(context.Background())
	token, err := m.ValidToken(context.Background())
	if err != nil || token != "at" {
		t.Fatalf("expected current token, got %q err %v", token, err)
	}
	if refreshes != 0 {
		t.Fatalf("expected zero refreshes, got %d", refreshes)
	}

	// Expiry within the window: exactly one refresh, refreshed token returned.
	store = &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(30 * time.Second)})
	m = newTestManager(t, srv.URL, store)
	m.RestoreFromStorage(context.Background())
	token, err = m.ValidToken(context.Background())
	if err != nil || token != "at-new" {
		t.Fatalf("expected refreshed token, got %q err %v", token, err)
	}
	if refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", refreshes)
	}
	// The provider omitted the refresh token; the prior one is retained.
	if saved, _ := store.snapshot(); saved.RefreshToken != "rt" {
		t.Fatalf("refresh token not retained: %#v", saved)
	}
}

func TestRefreshFailureClearsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
	}))
	defer srv.Close()

	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(10 * time.Second)})
	m := newTestManager(t, srv.URL, store)
	m.RestoreFromStorage(context.Background())

	_, err := m.ValidToken(context.Background())
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || refreshErr.Status != http.StatusBadRequest {
		t.Fatalf("expected RefreshError with 400, got %v", err)
	}
	if _, has := store.snapshot(); has {
		t.Fatal("persisted credential not cleared after refresh failure")
	}
	if _, err := m.ValidToken(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential after forced sign-out, got %v", err)
	}
}

func TestConcurrentRefreshSingleFlight(t *testing.T) {
	var mu sync.Mutex
	refreshes := 0
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refreshes++
		mu.Unlock()
		<-release
		w.Write([]byte(`{"access_token":"at-new","expires_in":3600,"token_type":"Bearer","scope":"s","refresh_token":"rt-new"}`))
	}))
	defer srv.Close()

	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(10 * time.Second)})
	m := newTestManager(t, srv.URL, store)
	m.RestoreFromStorage(context.Background())

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.ValidToken(context.Background())
		}(i)
	}
	// Let all callers pile onto the in-flight refresh before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil || tokens[i] != "at-new" {
			t.Fatalf("caller %d: token %q err %v", i, tokens[i], errs[i])
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if refreshes != 1 {
		t.Fatalf("expected a single shared refresh, got %d", refreshes)
	}
}

func TestRestoreFromStorage(t *testing.T) {
	m := newTestManager(t, "http://unused", &memStore{})
	if m.RestoreFromStorage(context.Background()) {
		t.Fatal("expected no stored credential")
	}

	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", Expiry: time.Now().Add(time.Hour)})
	m = newTestManager(t, "http://unused", store)
	if !m.RestoreFromStorage(context.Background()) {
		t.Fatal("expected stored credential to restore")
	}
	if !m.IsAuthenticated() {
		t.Fatal("expected authenticated after restore")
	}
}

func TestRestoreFromStorageExpiredTriggersBackgroundRefresh(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		w.Write([]byte(`{"access_token":"at-new","expires_in":3600,"token_type":"Bearer","scope":"s"}`))
	}))
	defer srv.Close()

	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute)})
	m := newTestManager(t, srv.URL, store)
	if !m.RestoreFromStorage(context.Background()) {
		t.Fatal("expected restore to report success when a refresh token exists")
	}
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never reached the token endpoint")
	}
}

func TestSignOut(t *testing.T) {
	store := &memStore{}
	store.Save(context.Background(), Credential{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)})
	m := newTestManager(t, "http://unused", store)
	m.RestoreFromStorage(context.Background())

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatal("still authenticated after sign out")
	}
	if _, has := store.snapshot(); has {
		t.Fatal("persisted credential survived sign out")
	}
}
