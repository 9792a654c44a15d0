package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/rs/zerolog/hlog"
)

// UserIDHeader is set by the upstream auth gateway once a session token has
// been verified. Requests without it are anonymous.
const UserIDHeader = "X-User-ID"

type ctxKey int

const identityKey ctxKey = iota

// IdentityMiddleware resolves the caller's identity from UserIDHeader.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := domain.Anonymous()
		if raw := r.Header.Get(UserIDHeader); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				respondError(w, http.StatusUnauthorized, "invalid_identity", "malformed user identity")
				return
			}
			identity = domain.User(userID)
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return id
	}
	return domain.Anonymous()
}

// RequireUser rejects anonymous callers.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFromContext(r.Context()).IsAnonymous() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
