package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quokkaworks/todo-sso/pkg/httpx"
	"github.com/quokkaworks/todo-sso/pkg/jwtx"
)

// countingVerifier records how often the guard actually calls Verify.
type countingVerifier struct {
	calls  int
	claims jwtx.Claims
	err    error
}

func (v *countingVerifier) Verify(_ context.Context, _ string) (jwtx.Claims, error) {
	v.calls++
	return v.claims, v.err
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthnRejectsWithoutCallingVerifier(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bare token", "sometokenwithoutscheme"},
		{"empty token", "Bearer "},
		{"bearer only", "Bearer"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &countingVerifier{}
			var hit bool
			h := httpx.Chain(okHandler(&hit), httpx.AuthnMiddleware(v))

			req := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Zero(t, v.calls, "verifier must not run for malformed headers")
			require.False(t, hit)
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		})
	}
}

func TestAuthnCollapsesAllVerifierFailures(t *testing.T) {
	for _, verr := range []error{
		jwtx.ErrExpired,
		jwtx.ErrInvalidSig,
		jwtx.ErrMalformed,
		jwtx.ErrKeyUnavailable,
		errors.New("something else entirely"),
	} {
		v := &countingVerifier{err: verr}
		var hit bool
		h := httpx.Chain(okHandler(&hit), httpx.AuthnMiddleware(v))

		req := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
		req.Header.Set("Authorization", "Bearer some.jwt.token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		// Uniform 401 regardless of the internal failure kind. Never a 500
		// for key-fetch trouble.
		require.Equal(t, http.StatusUnauthorized, rec.Code, "err=%v", verr)
		require.Equal(t, 1, v.calls)
		require.False(t, hit)
	}
}

func TestAuthnAttachesClaims(t *testing.T) {
	claims := jwtx.NewClaims("u1", "iss", nil, "alice", "", "openid todo:write",
		time.Hour, time.Now().UTC())
	v := &countingVerifier{claims: claims}

	var gotSub string
	var gotScopes []string
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = httpx.UserIDFromContext(r.Context())
		c, ok := httpx.ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotScopes = c.ScopeList()
		w.WriteHeader(http.StatusOK)
	}), httpx.AuthnMiddleware(v))

	req := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1", gotSub)
	require.Contains(t, gotScopes, "todo:write")
}

func TestRequireAnyScope(t *testing.T) {
	claims := jwtx.NewClaims("u1", "iss", nil, "", "", "todo:read",
		time.Hour, time.Now().UTC())
	v := &countingVerifier{claims: claims}

	t.Run("scope present", func(t *testing.T) {
		var hit bool
		h := httpx.Chain(okHandler(&hit),
			httpx.AuthnMiddleware(v),
			httpx.RequireAnyScope("todo:read", "admin"),
		)

		req := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
		req.Header.Set("Authorization", "Bearer some.jwt.token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, hit)
	})

	t.Run("scope missing", func(t *testing.T) {
		var hit bool
		h := httpx.Chain(okHandler(&hit),
			httpx.AuthnMiddleware(v),
			httpx.RequireAnyScope("todo:write"),
		)

		req := httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
		req.Header.Set("Authorization", "Bearer some.jwt.token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.False(t, hit)
	})
}
