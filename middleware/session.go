package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	// SessionName is the key for the cookie session.
	SessionName = "imagestudio-session"
	// clientIDKey is the session value holding the client id.
	clientIDKey = "client_id"
	// DefaultSessionSecret is the insecure development secret.
	DefaultSessionSecret = "a_very_long_and_random_secret_string"
)

type clientIDContextKey struct{}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	Secret string `yaml:"secret" json:"secret"`
	MaxAge int    `yaml:"max_age" json:"max_age"`
	Secure bool   `yaml:"secure" json:"secure"`
}

// DefaultSessionConfig keeps the cookie for 30 days.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Secret: DefaultSessionSecret,
		MaxAge: 86400 * 30,
	}
}

// Sessions assigns every browser a stable client id stored in a signed cookie.
// The id only scopes settings and gallery; it authenticates nothing.
type Sessions struct {
	store  *sessions.CookieStore
	logger *zap.Logger
}

// NewSessions initializes the cookie store.
func NewSessions(cfg SessionConfig, logger *zap.Logger) *Sessions {
	if cfg.Secret == "" || cfg.Secret == DefaultSessionSecret {
		logger.Warn("SESSION_SECRET is not set or is the default; using an insecure key. Set a strong secret for production.")
		cfg.Secret = DefaultSessionSecret
	}
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store, logger: logger.With(zap.String("component", "sessions"))}
}

// Middleware loads or creates the client id and stores it in the request context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.store.Get(r, SessionName)
		if err != nil {
			// This could happen if the cookie secret changes; start over with a fresh session.
			s.logger.Debug("session cookie rejected, issuing a new one", zap.Error(err))
		}

		id, ok := session.Values[clientIDKey].(string)
		if !ok || id == "" {
			id = uuid.NewString()
			session.Values[clientIDKey] = id
			if err := session.Save(r, w); err != nil {
				s.logger.Error("failed to save session", zap.Error(err))
			}
		}

		next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), id)))
	})
}

// WithClientID returns a context carrying the client id.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, id)
}

// ClientIDFromContext returns the client id set by the session middleware.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDContextKey{}).(string)
	return id, ok && id != ""
}
