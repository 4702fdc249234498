package domain

import (
	"errors"
	"time"
)

var (
	ErrTodoNotFound = errors.New("todo not found")
	ErrEmptyTitle   = errors.New("todo title must not be empty")
)

// Todo is a single todo item owned by one user. Ownership is the token
// subject; users never see each other's items.
type Todo struct {
	ID        string
	OwnerID   string
	Title     string
	Completed bool
	CreatedAt time.Time
}
