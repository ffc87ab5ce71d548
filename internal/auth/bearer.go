// Package auth guards the local station API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Guard checks the Authorization header against a configured token.
// An empty token disables the check.
type Guard struct {
	token []byte
	open  map[string]bool
}

// NewGuard returns a Guard for token. Requests whose path is in open
// pass without a token.
func NewGuard(token string, open ...string) *Guard {
	g := &Guard{token: []byte(token), open: make(map[string]bool)}
	for _, p := range open {
		g.open[p] = true
	}
	return g
}

// Check returns nil when r carries the token.
func (g *Guard) Check(r *http.Request) error {
	if len(g.token) == 0 || g.open[r.URL.Path] {
		return nil
	}
	header := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || got == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(got), g.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects unauthenticated requests with 401.
func (g *Guard) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="station"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"` + err.Error() + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
