package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/isearch-project/musebag/internal/log"
)

// CookieName is the session cookie carrying the opaque session token.
const CookieName = "sid"

// cookieMaxAge is the session cookie lifetime in seconds (30 days).
const cookieMaxAge = 30 * 24 * 3600

// extSessionIDLength is how many trailing characters of the session token
// feed into the external session id.
const extSessionIDLength = 32

// Manager ties session tokens in cookies to stored profiles. It is the
// single entry point handlers use for identity: guest bootstrap, external
// session id assignment and logout.
type Manager struct {
	store  Store
	isDev  bool
	logger log.Logger
}

// NewManager creates a session manager. isDev disables the Secure cookie
// flag for plain-HTTP development setups.
func NewManager(store Store, isDev bool, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{store: store, isDev: isDev, logger: logger}
}

// Token returns the session token from the request cookie, if present.
func (m *Manager) Token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// EnsureToken returns the request's session token, issuing a new one (and
// setting the cookie) on first contact.
func (m *Manager) EnsureToken(w http.ResponseWriter, r *http.Request) string {
	if token, ok := m.Token(r); ok {
		return token
	}

	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   !m.isDev,
		SameSite: http.SameSiteLaxMode,
	})
	m.logger.Debug("session token issued", "token", token)
	return token
}

// Profile returns the session's profile. Sessions without stored state
// read as a fresh guest profile; reads never write to the store.
func (m *Manager) Profile(ctx context.Context, token string) (*Profile, error) {
	p, err := m.store.Get(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return NewGuestProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session profile: %w", err)
	}
	return p, nil
}

// Update applies fn to the session's profile under the store's lock.
func (m *Manager) Update(ctx context.Context, token string, fn func(*Profile) error) (*Profile, error) {
	return m.store.Update(ctx, token, fn)
}

// ExternalSessionID returns the identifier shared with external services,
// assigning it exactly once per session: the last 32 characters of the
// session token joined with the query counter at assignment time. Repeated
// calls return the cached value while the counter keeps advancing.
func (m *Manager) ExternalSessionID(ctx context.Context, token string) (string, error) {
	p, err := m.store.Update(ctx, token, func(p *Profile) error {
		if p.ExtSessionID == "" {
			p.ExtSessionID = deriveExternalID(token, p.QueryCounter)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("assigning external session id: %w", err)
	}
	return p.ExtSessionID, nil
}

// Destroy removes the session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, token string, w http.ResponseWriter) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !m.isDev,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// deriveExternalID builds the external session id from the token suffix
// and the query counter value at assignment time.
func deriveExternalID(token string, counter int) string {
	suffix := token
	if len(suffix) > extSessionIDLength {
		suffix = suffix[len(suffix)-extSessionIDLength:]
	}
	return suffix + "-" + strconv.Itoa(counter)
}
