package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ahoge-moe/Shiden/internal/config"
)

// MsgNotAuthorized is the body of every 401 response.
const MsgNotAuthorized = "Not authorized"

type callerKey struct{}

// Authenticator matches the Authorization header against named keys.
type Authenticator struct {
	keys   map[string]config.Secret
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator. An empty key map denies everything.
func NewAuthenticator(keys map[string]config.Secret, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{keys: keys, logger: logger}
}

// Identify returns the name of the caller owning key.
func (a *Authenticator) Identify(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	found := ""
	for name, k := range a.keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = name
		}
	}
	return found, found != ""
}

// Middleware rejects requests without a known key with 401 and stores the
// caller name in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := a.Identify(r.Header.Get("Authorization"))
		if !ok {
			a.logger.WarnContext(r.Context(), "request denied",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, MsgNotAuthorized, http.StatusUnauthorized)
			return
		}

		a.logger.InfoContext(r.Context(), "request authorized", slog.String("caller", caller))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// CallerFromContext returns the authenticated caller name, if any.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
