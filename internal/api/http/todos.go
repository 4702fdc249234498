package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quokkaworks/todo-sso/internal/api/domain"
	"github.com/quokkaworks/todo-sso/internal/api/service"
	"github.com/quokkaworks/todo-sso/pkg/httpx"
	"github.com/quokkaworks/todo-sso/pkg/slogx"
	"github.com/quokkaworks/todo-sso/pkg/ssosdk"
)

type TodosHandler struct {
	TodoService *service.TodoService
}

type createBody struct {
	Title string `json:"title"`
}

type updateBody struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

func toAPITodo(t domain.Todo) ssosdk.Todo {
	return ssosdk.Todo{
		ID:        t.ID,
		Title:     t.Title,
		Completed: t.Completed,
	}
}

// HandleList returns the caller's todos, newest first.
func (h *TodosHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	todos, err := h.TodoService.List(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		log.Error("failed to list todos", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Failed to retrieve todos")
		return
	}

	out := make([]ssosdk.Todo, len(todos))
	for i, t := range todos {
		out[i] = toAPITodo(t)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleCreate adds a todo for the caller.
func (h *TodosHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Request body must be JSON with a title field")
		return
	}

	todo, err := h.TodoService.Create(ctx, httpx.UserIDFromContext(ctx), body.Title)
	if err != nil {
		writeTodoError(w, log, err, "failed to create todo")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toAPITodo(todo))
}

// HandleToggle flips a todo's completed flag.
func (h *TodosHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	todo, err := h.TodoService.Toggle(ctx, httpx.UserIDFromContext(ctx), r.PathValue("id"))
	if err != nil {
		writeTodoError(w, log, err, "failed to toggle todo")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toAPITodo(todo))
}

// HandleUpdate replaces a todo's title.
func (h *TodosHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Request body must be JSON")
		return
	}

	todo, err := h.TodoService.Update(ctx, httpx.UserIDFromContext(ctx), r.PathValue("id"),
		body.Title, body.Completed)
	if err != nil {
		writeTodoError(w, log, err, "failed to update todo")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toAPITodo(todo))
}

// HandleDelete removes a todo.
func (h *TodosHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.TodoService.Delete(ctx, httpx.UserIDFromContext(ctx), r.PathValue("id")); err != nil {
		writeTodoError(w, log, err, "failed to delete todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeTodoError maps service errors onto HTTP responses.
func writeTodoError(w http.ResponseWriter, log *slog.Logger, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrTodoNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "No such todo")
	case errors.Is(err, domain.ErrEmptyTitle):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Title must not be empty")
	default:
		log.Error(logMsg, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Unexpected error")
	}
}
