package ssosdk

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectCallback(t *testing.T) {
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	t.Run("plain url has no markers", func(t *testing.T) {
		cb := detectCallback(parse("https://app.example.com/list?filter=open"))
		require.Equal(t, callbackNone, cb.kind)
	})

	t.Run("authorization code in query", func(t *testing.T) {
		cb := detectCallback(parse("https://app.example.com/?code=abc&state=st&session_state=ss"))
		require.Equal(t, callbackCode, cb.kind)
		require.Equal(t, "abc", cb.code)
		require.Equal(t, "st", cb.state)
	})

	t.Run("implicit tokens in fragment", func(t *testing.T) {
		cb := detectCallback(parse(
			"https://app.example.com/#access_token=AAA&id_token=BBB&token_type=bearer&expires_in=300"))
		require.Equal(t, callbackImplicit, cb.kind)
		require.Equal(t, "AAA", cb.accessToken)
		require.Equal(t, "BBB", cb.idToken)
		require.Equal(t, 300, cb.expiresIn)
	})

	t.Run("error beats tokens", func(t *testing.T) {
		cb := detectCallback(parse(
			"https://app.example.com/?error=access_denied&error_description=nope"))
		require.Equal(t, callbackError, cb.kind)
		require.Equal(t, "access_denied", cb.errCode)
		require.Equal(t, "nope", cb.errDesc)
	})

	t.Run("error in fragment", func(t *testing.T) {
		cb := detectCallback(parse("https://app.example.com/#error=login_required"))
		require.Equal(t, callbackError, cb.kind)
		require.Equal(t, "login_required", cb.errCode)
	})
}

func TestStripCallback(t *testing.T) {
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	t.Run("removes code flow params, keeps app params", func(t *testing.T) {
		got := stripCallback(parse(
			"https://app.example.com/list?filter=open&code=abc&state=st&session_state=ss"))
		require.Equal(t, "https://app.example.com/list?filter=open", got)
	})

	t.Run("removes implicit fragment", func(t *testing.T) {
		got := stripCallback(parse(
			"https://app.example.com/#access_token=AAA&id_token=BBB&token_type=bearer&expires_in=300"))
		require.NotContains(t, got, "access_token")
		require.NotContains(t, got, "AAA")
		require.NotContains(t, got, "id_token")
	})

	t.Run("plain url is unchanged", func(t *testing.T) {
		got := stripCallback(parse("https://app.example.com/list?filter=open"))
		require.Equal(t, "https://app.example.com/list?filter=open", got)
	})

	t.Run("spa hash route is untouched", func(t *testing.T) {
		got := stripCallback(parse("https://app.example.com/#/todos/open"))
		require.Equal(t, "https://app.example.com/#/todos/open", got)
	})

	t.Run("app fragment params survive marker removal", func(t *testing.T) {
		got := stripCallback(parse(
			"https://app.example.com/#access_token=AAA&tab=active"))
		require.NotContains(t, got, "access_token")
		require.Contains(t, got, "tab=active")
	})

	t.Run("fragment with only markers is dropped entirely", func(t *testing.T) {
		got := stripCallback(parse(
			"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300"))
		require.Equal(t, "https://app.example.com/", got)
	})
}

func TestDecodeDisplayClaims(t *testing.T) {
	t.Run("valid jwt payload", func(t *testing.T) {
		// header {"alg":"RS256"}, payload with sub and preferred_username.
		token := "eyJhbGciOiJSUzI1NiJ9." +
			"eyJzdWIiOiJ1MSIsInByZWZlcnJlZF91c2VybmFtZSI6ImFsaWNlIiwiZXhwIjoxNzAwMDAwMDAwfQ" +
			".sig"
		c, err := decodeDisplayClaims(token)
		require.NoError(t, err)
		require.Equal(t, "u1", c.Subject)
		require.Equal(t, "alice", c.PreferredUsername)
		require.Equal(t, int64(1700000000), c.ExpiresAt)
	})

	t.Run("opaque token is rejected", func(t *testing.T) {
		_, err := decodeDisplayClaims("not-a-jwt")
		require.Error(t, err)
	})
}
