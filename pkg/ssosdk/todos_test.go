package ssosdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-process todo API that records the bearer tokens it sees.
func fakeAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()

	var seen []string
	mux := http.NewServeMux()

	record := func(r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
	}

	mux.HandleFunc("GET /v1/todos", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		json.NewEncoder(w).Encode([]Todo{{ID: "t1", Title: "buy milk"}})
	})
	mux.HandleFunc("POST /v1/todos", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var body struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Todo{ID: "t2", Title: body.Title})
	})
	mux.HandleFunc("DELETE /v1/todos/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestTodoCallsCarryBearerToken(t *testing.T) {
	p := newFakeProvider(t)
	api, seen := fakeAPI(t)

	s, err := New(Config{
		IssuerURL:   p.srv.URL,
		ClientID:    "todo-web",
		RedirectURI: "https://app.example.com/",
		APIBaseURL:  api.URL,
	})
	require.NoError(t, err)

	_, state, err := s.Initialize(context.Background(),
		"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, state)

	todos, err := s.ListTodos(context.Background())
	require.NoError(t, err)
	require.Len(t, todos, 1)

	created, err := s.CreateTodo(context.Background(), "walk dog")
	require.NoError(t, err)
	require.Equal(t, "walk dog", created.Title)

	require.NoError(t, s.DeleteTodo(context.Background(), created.ID))

	require.Len(t, *seen, 3)
	for _, h := range *seen {
		require.Equal(t, "Bearer AAA", h)
	}
}

func TestTodoCallsFailWithoutSession(t *testing.T) {
	p := newFakeProvider(t)
	api, seen := fakeAPI(t)

	s, err := New(Config{
		IssuerURL:   p.srv.URL,
		ClientID:    "todo-web",
		RedirectURI: "https://app.example.com/",
		APIBaseURL:  api.URL,
	})
	require.NoError(t, err)

	_, err = s.ListTodos(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Empty(t, *seen, "no request leaves the client without a session")
}
