package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/txsociety/ton-agent/pkg/core"
)

// withPanicGuard answers 500 when a handler panics instead of dropping the connection.
func withPanicGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("api handler panicked",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
			}
		}()
		next(w, r)
	}
}

// requireAgentToken admits requests that carry the agent API token as a bearer credential.
// An empty token admits nothing.
func requireAgentToken(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r.Header.Get("Authorization"), token) {
			slog.Warn("api request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"reason", "bad agent token")
			writeError(w, http.StatusUnauthorized, "missing or invalid agent token")
			return
		}
		next(w, r)
	}
}

// allow rejects every method but method.
func allow(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, r.Method+" is not allowed, use "+method)
			return
		}
		next(w, r)
	}
}

func bearerMatches(header, token string) bool {
	if token == "" {
		return false
	}
	scheme, credential, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(token)) == 1
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, errorResponse{Error: message})
}
