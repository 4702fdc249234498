/*
Package ssosdk is the client half of the SSO todo sample: it manages an
identity-provider session and calls the todo API with a bearer token
attached.

# Overview

The package is organized around two main types:

  - Client: talks to the identity provider (discovery, code exchange,
    refresh, end-session) and knows nothing about application state
  - Session: owns the client-side session state machine and the todo API
    calls made on its behalf

A Session is constructed explicitly by the application's composition root
and passed to whatever needs it; there is no package-level singleton.

	session, err := ssosdk.New(ssosdk.Config{
		IssuerURL:   "https://sso.example.com/realms/todo",
		ClientID:    "todo-web",
		RedirectURI: "https://todo.example.com/",
		APIBaseURL:  "https://api.todo.example.com",
		Storages:    []ssosdk.Storage{local, cookies},
	})

# Session lifecycle

On page load (or process start) the host calls Initialize with the current
URL. The bootstrap detects provider-callback markers — an authorization
code, or implicit-flow tokens in the fragment — completes the handshake,
and hands back a cleaned URL with the markers stripped so a refresh does
not repeat the token fetch:

	cleaned, state, err := session.Initialize(ctx, pageURL)

With no markers present a silent session check runs against a stored
refresh token, bounded by a short timeout; a negative result simply leaves
the session unauthenticated.

Login is a full redirect: LoginURL returns the provider's authorization
URL (PKCE verifier persisted to storage) and the host navigates there.
Logout clears all session state and every configured storage area
best-effort, then returns the provider's end-session URL.

While authenticated a background loop refreshes the token shortly before
expiry. A refresh that completes after logout is discarded.

# Trust boundary

Claims decoded client-side are for display only. The todo API re-verifies
every token against the provider's signing keys; nothing in this package
is an authorization decision.
*/
package ssosdk
