package ssosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

// ListTodos fetches the caller's todos, newest first.
func (s *Session) ListTodos(ctx context.Context) ([]Todo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/todos", nil, nil)
	if err != nil {
		return nil, err
	}

	var todos []Todo
	if err := decodeJSON(resp, &todos, http.StatusOK); err != nil {
		return nil, err
	}
	return todos, nil
}

// CreateTodo adds a todo with the given title.
func (s *Session) CreateTodo(ctx context.Context, title string) (*Todo, error) {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/todos",
		bytes.NewReader(body), jsonHeaders)
	if err != nil {
		return nil, err
	}

	var todo Todo
	if err := decodeJSON(resp, &todo, http.StatusCreated); err != nil {
		return nil, err
	}
	return &todo, nil
}

// ToggleTodo flips a todo's completed flag.
func (s *Session) ToggleTodo(ctx context.Context, id string) (*Todo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost,
		"/v1/todos/"+id+"/toggle", nil, nil)
	if err != nil {
		return nil, err
	}

	var todo Todo
	if err := decodeJSON(resp, &todo, http.StatusOK); err != nil {
		return nil, err
	}
	return &todo, nil
}

// UpdateTodo replaces a todo's title.
func (s *Session) UpdateTodo(ctx context.Context, id, title string) (*Todo, error) {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPatch, "/v1/todos/"+id,
		bytes.NewReader(body), jsonHeaders)
	if err != nil {
		return nil, err
	}

	var todo Todo
	if err := decodeJSON(resp, &todo, http.StatusOK); err != nil {
		return nil, err
	}
	return &todo, nil
}

// DeleteTodo removes a todo.
func (s *Session) DeleteTodo(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/todos/"+id, nil, nil)
	if err != nil {
		return err
	}

	return checkStatusNoContent(resp)
}
