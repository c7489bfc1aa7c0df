// Package session keeps the visitor id and the in-progress plan in a signed, encrypted cookie.
package session

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/mazira-designs/api/internal/configurator"
	"github.com/mazira-designs/api/internal/platform/requestctx"
)

const (
	defaultCookieName = "mazira_plan"
	defaultMaxAge     = 30 * 24 * time.Hour
	minSecretLength   = 32

	visitorKey = "vid"
	planKey    = "plan"
)

// ErrInvalidConfig indicates the store was initialised with a missing or weak secret.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config controls cookie encoding.
type Config struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	NewID      func() string
}

// Store wraps a gorilla CookieStore.
type Store struct {
	cookies *sessions.CookieStore
	name    string
	newID   func() string
}

// NewStore derives the signing and encryption keys from cfg.Secret.
func NewStore(cfg Config) (*Store, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d characters", ErrInvalidConfig, minSecretLength)
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = defaultCookieName
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	hashKey := sha256.Sum256([]byte("hash:" + secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))
	cookies := sessions.NewCookieStore(hashKey[:], blockKey[:])
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	cookies.MaxAge(int(maxAge / time.Second))
	return &Store{cookies: cookies, name: name, newID: newID}, nil
}

// Middleware assigns a visitor id to every request and exposes it through requestctx.
// Cookies that fail to decode are replaced.
func (s *Store) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := s.session(r)
			id, _ := sess.Values[visitorKey].(string)
			if id == "" {
				id = s.newID()
				sess.Values[visitorKey] = id
				if err := sess.Save(r, w); err != nil {
					requestctx.Logger(r.Context()).Warn("session save failed")
				}
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithVisitorID(r.Context(), id)))
		})
	}
}

// LoadPlan returns the stored plan state. A missing or unreadable plan yields an empty state.
func (s *Store) LoadPlan(r *http.Request) configurator.State {
	raw, _ := s.session(r).Values[planKey].(string)
	if raw == "" {
		return configurator.State{}
	}
	var state configurator.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return configurator.State{}
	}
	return state
}

// SavePlan stores state in the cookie.
func (s *Store) SavePlan(w http.ResponseWriter, r *http.Request, state configurator.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encode plan: %w", err)
	}
	sess := s.session(r)
	sess.Values[planKey] = string(payload)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// ClearPlan removes the plan but keeps the visitor id.
func (s *Store) ClearPlan(w http.ResponseWriter, r *http.Request) error {
	sess := s.session(r)
	delete(sess.Values, planKey)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (s *Store) session(r *http.Request) *sessions.Session {
	sess, err := s.cookies.Get(r, s.name)
	if err != nil || sess == nil {
		sess = sessions.NewSession(s.cookies, s.name)
		opts := *s.cookies.Options
		sess.Options = &opts
		sess.IsNew = true
	}
	return sess
}
