package admin

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
)

// apiKeyHeader is the header remote clients present their API key in.
const apiKeyHeader = "X-API-Key"

// actorContextKey carries the authenticated actor name in the request context.
type actorContextKey struct{}

// localActor identifies loopback requests in the change journal.
const localActor = "localhost"

// actorFrom returns the actor name recorded during authentication.
// Falls back to "unknown" if the middleware did not run.
func actorFrom(r *http.Request) string {
	if actor, ok := r.Context().Value(actorContextKey{}).(string); ok {
		return actor
	}
	return "unknown"
}

// isLocalhost checks if the request originates from a loopback address.
// It parses the host portion from r.RemoteAddr and checks for 127.0.0.1,
// ::1, or localhost. X-Forwarded-For is intentionally NOT trusted for
// security (an attacker could spoof it).
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// authMiddleware enforces access control on the admin API. Loopback requests
// are always accepted and journaled as "localhost". Remote requests must
// present a configured API key; the key's name becomes the journal actor.
func (h *AdminHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), actorContextKey{}, localActor)))
			return
		}

		rawKey := r.Header.Get(apiKeyHeader)
		if rawKey == "" {
			h.recordAuthFailure()
			h.respondError(w, http.StatusUnauthorized, "API key required for non-localhost access")
			return
		}

		for _, k := range h.apiKeys {
			match, err := verifyKey(rawKey, k.KeyHash)
			if err != nil {
				h.logger.Warn("skipping malformed key hash", "key_name", k.Name, "error", err)
				continue
			}
			if match {
				next.ServeHTTP(w, r.WithContext(
					context.WithValue(r.Context(), actorContextKey{}, k.Name)))
				return
			}
		}

		h.recordAuthFailure()
		h.respondError(w, http.StatusUnauthorized, "invalid API key")
	})
}

func (h *AdminHandler) recordAuthFailure() {
	if h.metrics != nil {
		h.metrics.AuthFailures.Inc()
	}
}

// verifyKey verifies a raw key against a stored hash. Supports argon2id
// (PHC format) and "sha256:<hex>" hashes.
func verifyKey(rawKey, storedHash string) (bool, error) {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return safeArgon2idCompare(rawKey, storedHash)
	}
	if digest, ok := strings.CutPrefix(storedHash, "sha256:"); ok {
		sum := sha256.Sum256([]byte(rawKey))
		computed := hex.EncodeToString(sum[:])
		// Constant-time comparison to prevent timing attacks.
		return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
	}
	return false, errors.New("unrecognized key hash format")
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed hashes with
// invalid parameters (e.g., t=0 rounds); convert those to errors so
// verifyKey never panics.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
