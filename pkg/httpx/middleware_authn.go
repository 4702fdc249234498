package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/quokkaworks/todo-sso/pkg/jwtx"
	"github.com/quokkaworks/todo-sso/pkg/slogx"
)

// AuthnMiddleware is the bearer-token guard in front of every protected
// route. A missing or malformed Authorization header is rejected before the
// verifier (and therefore any key fetch) is ever invoked, and every
// verification failure collapses into the same 401 so callers can't probe
// the difference between "expired" and "bad signature".
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w)
				return
			}

			// One verification attempt per request, no retries.
			claims, err := v.Verify(ctx, raw)
			if err != nil {
				// Internal detail stays in the logs. Never the token
				// itself, only its length.
				log.Warn("token verification failed", "err", err, "token_len", len(raw))
				writeBearerError(w)
				return
			}

			log.Debug("request authenticated", "sub", claims.Subject)
			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an exact `Bearer <token>` header.
func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyScopes, c.ScopeList())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth. One uniform message
// for every failure mode.
func writeBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": "missing or invalid bearer token",
	})
}
