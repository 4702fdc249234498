package ssosdk

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// callbackKind classifies what, if anything, a page URL carries back from
// the provider.
type callbackKind int

const (
	callbackNone callbackKind = iota
	callbackCode
	callbackImplicit
	callbackError
)

// callback holds the provider response parsed out of a page URL.
type callback struct {
	kind callbackKind

	// code flow
	code  string
	state string

	// implicit flow
	accessToken string
	idToken     string
	expiresIn   int

	// error response
	errCode string
	errDesc string
}

// Query and fragment parameters the provider may append to the redirect
// URI. Stripping removes exactly these and leaves application parameters
// alone.
var callbackParams = []string{
	"code", "state", "session_state", "iss",
	"access_token", "id_token", "token_type", "expires_in", "scope",
	"error", "error_description",
}

// detectCallback parses a page URL for provider-callback markers. The
// query is checked for an authorization code, the fragment for
// implicit-flow tokens; an error response in either wins over nothing.
func detectCallback(pageURL *url.URL) callback {
	q := pageURL.Query()
	frag, _ := url.ParseQuery(pageURL.Fragment)

	if e := q.Get("error"); e != "" {
		return callback{kind: callbackError, errCode: e, errDesc: q.Get("error_description")}
	}
	if e := frag.Get("error"); e != "" {
		return callback{kind: callbackError, errCode: e, errDesc: frag.Get("error_description")}
	}

	if code := q.Get("code"); code != "" {
		return callback{kind: callbackCode, code: code, state: q.Get("state")}
	}

	if at := frag.Get("access_token"); at != "" {
		expires, _ := strconv.Atoi(frag.Get("expires_in"))
		return callback{
			kind:        callbackImplicit,
			accessToken: at,
			idToken:     frag.Get("id_token"),
			expiresIn:   expires,
		}
	}

	return callback{kind: callbackNone}
}

// stripCallback returns pageURL with all provider-callback parameters
// removed from both query and fragment, so a reload of the cleaned URL
// does not replay the handshake.
func stripCallback(pageURL *url.URL) string {
	clean := *pageURL

	q := clean.Query()
	for _, p := range callbackParams {
		q.Del(p)
	}
	clean.RawQuery = q.Encode()

	// Only rewrite the fragment when it actually carries callback
	// parameters. SPA hash routes like #/todos/open parse as query pairs
	// too, so an unconditional re-encode would mangle them.
	if clean.Fragment != "" {
		frag, err := url.ParseQuery(clean.Fragment)
		if err == nil {
			removed := false
			for _, p := range callbackParams {
				if frag.Has(p) {
					frag.Del(p)
					removed = true
				}
			}
			if removed {
				clean.RawFragment = frag.Encode()
				clean.Fragment, _ = url.PathUnescape(clean.RawFragment)
			}
		}
	}

	return clean.String()
}

// UserInfo is the subset of token claims the session surfaces to the
// host UI. Decoded without signature verification; the API is the only
// party that verifies.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	ExpiresAt         int64  `json:"exp"`
}

// decodeDisplayClaims extracts the payload of a JWT for display purposes
// only. No signature check happens here.
func decodeDisplayClaims(token string) (UserInfo, error) {
	var c UserInfo

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return c, fmt.Errorf("ssosdk: token is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return c, fmt.Errorf("ssosdk: decode token payload: %w", err)
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("ssosdk: parse token payload: %w", err)
	}
	return c, nil
}

// expiryFrom picks the access token expiry: the exp claim when the token
// parses as a JWT, else now+expiresIn, else a conservative minute.
func expiryFrom(token string, expiresIn int, now time.Time) time.Time {
	if c, err := decodeDisplayClaims(token); err == nil && c.ExpiresAt > 0 {
		return time.Unix(c.ExpiresAt, 0)
	}
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	return now.Add(time.Minute)
}
