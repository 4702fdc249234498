package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quokkaworks/todo-sso/internal/api/domain"
	"github.com/quokkaworks/todo-sso/pkg/idx"
)

// TodoService keeps todos in memory, partitioned by owner. Each owner's
// list is ordered newest first.
type TodoService struct {
	mu      sync.RWMutex
	byOwner map[string][]domain.Todo
}

func NewTodoService() *TodoService {
	return &TodoService{byOwner: make(map[string][]domain.Todo)}
}

// List returns the owner's todos, newest first.
func (s *TodoService) List(ctx context.Context, ownerID string) ([]domain.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.byOwner[ownerID]
	out := make([]domain.Todo, len(items))
	copy(out, items)
	return out, nil
}

// Create adds a todo at the front of the owner's list.
func (s *TodoService) Create(ctx context.Context, ownerID, title string) (domain.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Todo{}, domain.ErrEmptyTitle
	}

	todo := domain.Todo{
		ID:        idx.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byOwner[ownerID] = append([]domain.Todo{todo}, s.byOwner[ownerID]...)
	return todo, nil
}

// Toggle flips a todo's completed flag.
func (s *TodoService) Toggle(ctx context.Context, ownerID, id string) (domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.byOwner[ownerID]
	for i := range items {
		if items[i].ID == id {
			items[i].Completed = !items[i].Completed
			return items[i], nil
		}
	}
	return domain.Todo{}, domain.ErrTodoNotFound
}

// Update mutates a todo in place. Nil fields are left untouched; a
// present title must be non-blank.
func (s *TodoService) Update(ctx context.Context, ownerID, id string, title *string, completed *bool) (domain.Todo, error) {
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return domain.Todo{}, domain.ErrEmptyTitle
		}
		title = &trimmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.byOwner[ownerID]
	for i := range items {
		if items[i].ID == id {
			if title != nil {
				items[i].Title = *title
			}
			if completed != nil {
				items[i].Completed = *completed
			}
			return items[i], nil
		}
	}
	return domain.Todo{}, domain.ErrTodoNotFound
}

// Delete removes a todo from the owner's list.
func (s *TodoService) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.byOwner[ownerID]
	for i := range items {
		if items[i].ID == id {
			s.byOwner[ownerID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return domain.ErrTodoNotFound
}
