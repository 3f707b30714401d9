package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// refreshWindow is how close to expiry ValidToken refreshes proactively.
	refreshWindow = 60 * time.Second

	maxTokenResponse = 1 << 20
)

var defaultScopes = []string{
	"https://www.googleapis.com/auth/tasks",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Config holds the OAuth2 client settings. Endpoint URLs default to the
// Google provider and are overridable for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	Scopes       []string
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = defaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.UserinfoURL == "" {
		c.UserinfoURL = defaultUserinfoURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = defaultScopes
	}
	return c
}

// Manager owns the credential lifecycle for the one signed-in identity of
// this process. It is constructed once in main and injected into the gateway.
type Manager struct {
	cfg      Config
	store    TokenStore
	http     *http.Client
	log      *log.Logger
	verifier *Verifier

	mu        sync.Mutex
	cred      Credential
	hasCred   bool
	idToken   string
	lastState string

	refreshMu  sync.Mutex
	refreshing *refreshCall
}

// refreshCall is shared by all callers that hit an in-flight refresh, so the
// token endpoint sees one request no matter how many gateway calls raced.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.http = c }
}

// WithVerifier enables ID-token based profile extraction.
func WithVerifier(v *Verifier) Option {
	return func(m *Manager) { m.verifier = v }
}

// NewManager creates a credential manager backed by the given durable store.
func NewManager(cfg Config, store TokenStore, logger *log.Logger, opts ...Option) *Manager {
	if store == nil {
		panic("auth.NewManager: token store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &Manager{
		cfg:   cfg.withDefaults(),
		store: store,
		http:  http.DefaultClient,
		log:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AuthorizationURL builds the provider consent URL with a fresh anti-forgery
// state token. The caller performs the navigation; parameter order follows
// the provider documentation.
func (m *Manager) AuthorizationURL() string {
	state := newState()
	m.mu.Lock()
	m.lastState = state
	m.mu.Unlock()

	params := []struct{ k, v string }{
		{"client_id", m.cfg.ClientID},
		{"redirect_uri", m.cfg.RedirectURI},
		{"scope", strings.Join(m.cfg.Scopes, " ")},
		{"response_type", "code"},
		{"access_type", "offline"},
		{"include_granted_scopes", "true"},
		{"state", state},
		{"prompt", "consent"},
	}
	var b strings.Builder
	b.WriteString(m.cfg.AuthURL)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// VerifyState consumes the last issued state token and reports whether the
// callback value matches it.
func (m *Manager) VerifyState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := state != "" && state == m.lastState
	m.lastState = ""
	return ok
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// CompleteAuthorization exchanges an authorization code for a token pair and
// stores the resulting credential.
func (m *Manager) CompleteAuthorization(ctx context.Context, code string) (Credential, error) {
	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {m.cfg.RedirectURI},
	}
	status, body, err := m.postForm(ctx, form)
	if err != nil {
		return Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	if status/100 != 2 {
		return Credential{}, &ExchangeError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	var tr tokenResponse
	if err := sonic.ConfigStd.Unmarshal(body, &tr); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	return m.setCredential(ctx, tr, ""), nil
}

// RestoreFromStorage loads a previously persisted credential. When the access
// token is expired but a refresh token exists the refresh happens in the
// background; the caller must not block on it.
func (m *Manager) RestoreFromStorage(ctx context.Context) bool {
	cred, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.WithError(err).Error("load stored credential")
		return false
	}
	if !ok || cred.AccessToken == "" {
		return false
	}
	m.mu.Lock()
	m.cred = cred
	m.hasCred = true
	m.mu.Unlock()

	if time.Now().Before(cred.Expiry) {
		return true
	}
	if cred.RefreshToken != "" {
		go func() {
			if err := m.Refresh(context.Background()); err != nil {
				m.log.WithError(err).Warn("background refresh of stored credential failed")
			}
		}()
		return true
	}
	return false
}

// ValidToken returns a non-expired bearer token, refreshing first when the
// current one expires within the refresh window.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.hasCred || m.cred.AccessToken == "" {
		m.mu.Unlock()
		return "", ErrNoCredential
	}
	cred := m.cred
	m.mu.Unlock()

	if !cred.ExpiresWithin(refreshWindow) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", ErrExpiredCredential
	}
	if err := m.Refresh(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	token := m.cred.AccessToken
	m.mu.Unlock()
	return token, nil
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share a single in-flight request. On failure all credential state is
// cleared, forcing re-authentication.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	if m.refreshing != nil {
		call := m.refreshing
		m.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.refreshing = call
	m.refreshMu.Unlock()

	call.err = m.doRefresh(ctx)
	close(call.done)

	m.refreshMu.Lock()
	m.refreshing = nil
	m.refreshMu.Unlock()
	return call.err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.cred.RefreshToken
	m.mu.Unlock()
	if refreshToken == "" {
		return ErrExpiredCredential
	}

	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	status, body, err := m.postForm(ctx, form)
	if err != nil {
		m.clear(ctx)
		return &RefreshError{Message: err.Error()}
	}
	if status/100 != 2 {
		m.clear(ctx)
		return &RefreshError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	var tr tokenResponse
	if err := sonic.ConfigStd.Unmarshal(body, &tr); err != nil {
		m.clear(ctx)
		return &RefreshError{Message: err.Error()}
	}
	// The provider may omit the refresh token on renewal; keep the prior one.
	m.setCredential(ctx, tr, refreshToken)
	return nil
}

func (m *Manager) setCredential(ctx context.Context, tr tokenResponse, priorRefresh string) Credential {
	cred := Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = priorRefresh
	}
	m.mu.Lock()
	m.cred = cred
	m.hasCred = true
	if tr.IDToken != "" {
		m.idToken = tr.IDToken
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, cred); err != nil {
		m.log.WithError(err).Error("persist credential")
	}
	return cred
}

// IsAuthenticated reports whether a usable, non-expired token is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasCred && m.cred.AccessToken != "" && time.Now().Before(m.cred.Expiry)
}

// SignOut clears in-memory and persisted credential state unconditionally.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.clear(ctx)
}

func (m *Manager) clear(ctx context.Context) error {
	m.mu.Lock()
	m.cred = Credential{}
	m.hasCred = false
	m.idToken = ""
	m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		m.log.WithError(err).Error("clear persisted credential")
		return err
	}
	return nil
}

type userinfoResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Profile returns the signed-in user's profile. A verified ID token is the
// fast path; otherwise the userinfo endpoint is queried with a valid bearer.
func (m *Manager) Profile(ctx context.Context) (domain.User, error) {
	m.mu.Lock()
	idToken := m.idToken
	m.mu.Unlock()
	if m.verifier != nil && idToken != "" {
		user, err := m.verifier.Profile(idToken)
		if err == nil {
			return user, nil
		}
		m.log.WithError(err).Debug("id token rejected, falling back to userinfo")
	}

	token, err := m.ValidToken(ctx)
	if err != nil {
		return domain.User{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.UserinfoURL, nil)
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := m.http.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return domain.User{}, fmt.Errorf("userinfo: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return domain.User{}, fmt.Errorf("userinfo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var ui userinfoResponse
	if err := sonic.ConfigStd.Unmarshal(body, &ui); err != nil {
		return domain.User{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return domain.User{ID: ui.ID, Name: ui.Name, Email: ui.Email, ImageURL: ui.Picture}, nil
}

func (m *Manager) postForm(ctx context.Context, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := m.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
