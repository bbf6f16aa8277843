package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"form990/internal/logger"
)

// Middleware rejects requests whose credential does not match the stored
// secret. The credential is read from "Authorization: Bearer <token>" or the
// X-API-Key header.
type Middleware struct {
	store  *SecretStore
	realm  string
	logger *logger.Logger
}

// NewMiddleware creates the authentication middleware. A nil logger disables logging.
func NewMiddleware(store *SecretStore, realm string, log *logger.Logger) *Middleware {
	if log == nil {
		log = logger.Discard()
	}

	return &Middleware{store: store, realm: realm, logger: log}
}

// Wrap protects next. CORS preflight requests pass through unauthenticated.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)

			return
		}

		secret, err := m.store.Secret()
		if err != nil {
			m.logger.Error("Shared secret unavailable", "error", err)
			http.Error(w, "Authentication is not available", http.StatusServiceUnavailable)

			return
		}

		token := Credential(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			m.logger.Warn("Rejected unauthenticated request",
				"path", r.URL.Path, "remote", r.RemoteAddr, "credential", token != "")
			m.challenge(w)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", m.realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// Credential extracts the presented credential from r: a Bearer token, else
// the X-API-Key header.
func Credential(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
