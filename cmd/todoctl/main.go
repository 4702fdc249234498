package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/quokkaworks/todo-sso/pkg/ssosdk"
)

const usage = `todoctl - todo client with SSO login

Usage:
  todoctl login            start a browser login, then paste the redirect URL back
  todoctl logout           end the session locally and print the provider logout URL
  todoctl whoami           show the signed-in user
  todoctl list             list todos
  todoctl add <title>      add a todo
  todoctl toggle <id>      toggle a todo's completed flag
  todoctl rm <id>          delete a todo

Environment:
  SSO_ISSUER_URL   identity provider base URL (required)
  SSO_CLIENT_ID    OAuth2 client id (default: todoctl)
  SSO_REDIRECT_URI redirect URI registered for the client (default: http://localhost:9090/)
  TODO_API_URL     todo API base URL (default: http://localhost:8080)
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	ctx := context.Background()

	store, err := newFileStorage()
	if err != nil {
		return err
	}

	session, err := ssosdk.New(ssosdk.Config{
		IssuerURL:   os.Getenv("SSO_ISSUER_URL"),
		ClientID:    envOr("SSO_CLIENT_ID", "todoctl"),
		RedirectURI: envOr("SSO_REDIRECT_URI", "http://localhost:9090/"),
		APIBaseURL:  envOr("TODO_API_URL", "http://localhost:8080"),
		Storages:    []ssosdk.Storage{store},
	})
	if err != nil {
		return err
	}

	switch cmd {
	case "login":
		return login(ctx, session)
	case "logout":
		return logout(ctx, session)
	case "whoami":
		return whoami(ctx, session)
	case "list":
		return list(ctx, session)
	case "add":
		if len(args) == 0 {
			return fmt.Errorf("add needs a title")
		}
		return add(ctx, session, strings.Join(args, " "))
	case "toggle":
		if len(args) != 1 {
			return fmt.Errorf("toggle needs a todo id")
		}
		return toggle(ctx, session, args[0])
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("rm needs a todo id")
		}
		return remove(ctx, session, args[0])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// resume initializes the session without callback markers, relying on the
// stored refresh token.
func resume(ctx context.Context, s *ssosdk.Session) error {
	_, state, err := s.Initialize(ctx, "http://localhost/")
	if err != nil {
		return err
	}
	if state != ssosdk.StateAuthenticated {
		return fmt.Errorf("not signed in, run: todoctl login")
	}
	return nil
}

func login(ctx context.Context, s *ssosdk.Session) error {
	loginURL, err := s.LoginURL(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in a browser and sign in:")
	fmt.Println()
	fmt.Println("  " + loginURL)
	fmt.Println()
	fmt.Print("Paste the URL you were redirected to: ")

	reader := bufio.NewReader(os.Stdin)
	pasted, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read redirect url: %w", err)
	}

	_, state, err := s.Initialize(ctx, strings.TrimSpace(pasted))
	if err != nil {
		return err
	}
	if state != ssosdk.StateAuthenticated {
		return fmt.Errorf("login did not complete (state: %s)", state)
	}

	if user, ok := s.User(); ok && user.PreferredUsername != "" {
		fmt.Println("Signed in as", user.PreferredUsername)
	} else {
		fmt.Println("Signed in")
	}
	return nil
}

func logout(ctx context.Context, s *ssosdk.Session) error {
	// Resume first so the provider gets an id_token_hint; a dead session
	// still logs out locally.
	_, _, _ = s.Initialize(ctx, "http://localhost/")

	endURL, err := s.Logout(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Signed out locally.")
	if endURL != "" {
		fmt.Println("To end the provider session too, open:")
		fmt.Println("  " + endURL)
	}
	return nil
}

func whoami(ctx context.Context, s *ssosdk.Session) error {
	if err := resume(ctx, s); err != nil {
		return err
	}

	user, _ := s.User()
	fmt.Println("subject: ", user.Subject)
	if user.PreferredUsername != "" {
		fmt.Println("username:", user.PreferredUsername)
	}
	if user.Email != "" {
		fmt.Println("email:   ", user.Email)
	}
	return nil
}

func list(ctx context.Context, s *ssosdk.Session) error {
	if err := resume(ctx, s); err != nil {
		return err
	}

	todos, err := s.ListTodos(ctx)
	if err != nil {
		return err
	}
	if len(todos) == 0 {
		fmt.Println("No todos.")
		return nil
	}

	for _, t := range todos {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Printf("[%s] %s  %s\n", mark, t.ID, t.Title)
	}
	return nil
}

func add(ctx context.Context, s *ssosdk.Session, title string) error {
	if err := resume(ctx, s); err != nil {
		return err
	}

	todo, err := s.CreateTodo(ctx, title)
	if err != nil {
		return err
	}
	fmt.Println("Added", todo.ID)
	return nil
}

func toggle(ctx context.Context, s *ssosdk.Session, id string) error {
	if err := resume(ctx, s); err != nil {
		return err
	}

	todo, err := s.ToggleTodo(ctx, id)
	if err != nil {
		return err
	}
	if todo.Completed {
		fmt.Println("Done:", todo.Title)
	} else {
		fmt.Println("Reopened:", todo.Title)
	}
	return nil
}

func remove(ctx context.Context, s *ssosdk.Session, id string) error {
	if err := resume(ctx, s); err != nil {
		return err
	}

	if err := s.DeleteTodo(ctx, id); err != nil {
		return err
	}
	fmt.Println("Deleted", id)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// fileStorage persists session material to a JSON file in the user's home
// directory so a session survives between todoctl invocations.
type fileStorage struct {
	mu   sync.Mutex
	path string
}

func newFileStorage() (*fileStorage, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &fileStorage{path: filepath.Join(home, ".todoctl.json")}, nil
}

func (f *fileStorage) load() (map[string]string, error) {
	data := make(map[string]string)
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *fileStorage) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}

func (f *fileStorage) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", err
	}
	return data[key], nil
}

func (f *fileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *fileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	delete(data, key)
	return f.save(data)
}
