package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-app/internal/config"
	"go-todo-app/internal/event"
	"go-todo-app/internal/handler"
	"go-todo-app/internal/metrics"
	"go-todo-app/internal/middleware"
	"go-todo-app/internal/model"
	"go-todo-app/internal/service"
	"go-todo-app/internal/todo"
	"go-todo-app/internal/web"
	"go-todo-app/internal/websocket"
)

type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]model.User
	byID    map[string]model.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]model.User{}, byID: map[string]model.User{}}
}

func (s *memoryUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUsers) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUsers) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return model.ErrUserAlreadyExists
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	return nil
}

type healthOK struct{ err error }

func (h healthOK) Health(context.Context) error { return h.err }

// remoteState tracks what the fake remote API has seen so gate tests
// can assert that rejected writes never reached it.
type remoteState struct {
	mu      sync.Mutex
	deletes []int
	creates int
}

func newTestStack(t *testing.T) (http.Handler, *remoteState) {
	t.Helper()

	state := &remoteState{}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			todos := make([]model.Todo, 20)
			for i := range todos {
				todos[i] = model.Todo{ID: i + 1, Title: fmt.Sprintf("todo %d", i+1), UserID: 1}
			}
			json.NewEncoder(w).Encode(todos)
		case r.Method == http.MethodPost:
			state.mu.Lock()
			state.creates++
			state.mu.Unlock()
			var body model.Todo
			json.NewDecoder(r.Body).Decode(&body)
			body.ID = 201
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodDelete:
			var id int
			fmt.Sscanf(r.URL.Path, "/todos/%d", &id)
			state.mu.Lock()
			state.deletes = append(state.deletes, id)
			state.mu.Unlock()
			w.Write([]byte("{}"))
		default:
			var body model.Todo
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(remote.Close)

	cfg := &config.Config{
		RequestTimeout:  5 * time.Second,
		CORSOrigins:     []string{"*"},
		TodoAPIBaseURL:  remote.URL,
		TodoCacheSize:   16,
		DefaultPageSize: 10,
	}

	users := newMemoryUsers()
	authService, err := service.NewAuthService("integration-secret", time.Hour, users)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := todo.NewClient(remote.Client(), remote.URL, logger)
	cache, err := todo.NewPageCache(cfg.TodoCacheSize)
	require.NoError(t, err)

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	go hub.Run()

	todoService := todo.NewService(client, cache, bus, collector, cfg.DefaultPageSize)

	webHandler, err := web.NewHandler(todoService)
	require.NoError(t, err)

	handlers := Handlers{
		Auth: handler.NewAuthHandler(authService, collector),
		Todo: handler.NewTodoHandler(todoService),
		Web:  webHandler,
	}

	authMiddleware := middleware.NewAuthMiddleware(authService)
	return New(cfg, authMiddleware, collector, registry, handlers, hub, healthOK{}), state
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, name, email, role string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "password123", "role": role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func signIn(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Token string     `json:"token"`
			User  model.User `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Data.Token)
	return envelope.Data.Token
}

func TestRegisterAndSignIn(t *testing.T) {
	h, _ := newTestStack(t)

	register(t, h, "Ann Admin", "ann@example.com", "admin")

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
			"name": "Ann Again", "email": "ann@example.com", "password": "password123", "role": "user",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
			"name": "Bad Role", "email": "bad@example.com", "password": "password123", "role": "root",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sign-in returns a session with the stored role", func(t *testing.T) {
		token := signIn(t, h, "ann@example.com")

		rec := doJSON(t, h, http.MethodGet, "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var envelope struct {
			Data model.AuthUser `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		assert.Equal(t, "ann@example.com", envelope.Data.Email)
		assert.Equal(t, model.RoleAdmin, envelope.Data.Role)
	})

	t.Run("wrong password is distinct from unknown email", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "ann@example.com", "password": "wrongpass",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "WRONG_PASSWORD")

		rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "ghost@example.com", "password": "password123",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestTodoGate(t *testing.T) {
	h, state := newTestStack(t)

	register(t, h, "Ann Admin", "ann@example.com", "admin")
	register(t, h, "Bob User", "bob@example.com", "user")
	adminToken := signIn(t, h, "ann@example.com")
	userToken := signIn(t, h, "bob@example.com")

	t.Run("unauthenticated request never reaches the handler", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/todos", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("any authenticated user can list", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/todos?page=1&limit=5", userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var envelope struct {
			Data []model.Todo `json:"data"`
			Meta model.Meta   `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		assert.Len(t, envelope.Data, 5)
		assert.Equal(t, 20, envelope.Meta.Total)
		assert.Equal(t, 4, envelope.Meta.TotalPages)
	})

	t.Run("user role cannot delete", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/todos/5", userToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

		state.mu.Lock()
		defer state.mu.Unlock()
		assert.Empty(t, state.deletes, "the remote must never see the rejected delete")
	})

	t.Run("user role cannot create", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/todos", userToken, map[string]any{
			"title": "should not exist",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)

		state.mu.Lock()
		defer state.mu.Unlock()
		assert.Zero(t, state.creates)
	})

	t.Run("admin can create and delete", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/todos", adminToken, map[string]any{
			"title": "admin-created item", "userId": 2,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var envelope struct {
			Data model.Todo `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		assert.True(t, envelope.Data.Provisional)

		rec = doJSON(t, h, http.MethodDelete, "/api/todos/5", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		state.mu.Lock()
		defer state.mu.Unlock()
		assert.Contains(t, state.deletes, 5)
	})

	t.Run("malformed id is rejected before the remote", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/todos/abc", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebSocketTodoEvents(t *testing.T) {
	h, _ := newTestStack(t)
	server := httptest.NewServer(h)
	defer server.Close()

	register(t, h, "Ann Admin", "ann@example.com", "admin")
	adminToken := signIn(t, h, "ann@example.com")

	t.Run("upgrade requires a session", func(t *testing.T) {
		wsURL := strings.Replace(server.URL, "http", "ws", 1) + "/ws"
		_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	wsURL := strings.Replace(server.URL, "http", "ws", 1) + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + adminToken}}
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err, "upgrade must succeed through the full middleware chain")
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// Give the hub a moment to register the connection before mutating.
	time.Sleep(100 * time.Millisecond)

	rec := doJSON(t, h, http.MethodPost, "/api/todos", adminToken, map[string]any{
		"title": "announce me", "userId": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err, "the create must be pushed to the socket")

	var e event.Event
	require.NoError(t, json.Unmarshal(message, &e))
	assert.Equal(t, event.TypeTodoCreated, e.Type)
	assert.NotEmpty(t, e.ActorID)

	payload, err := json.Marshal(e.Payload)
	require.NoError(t, err)
	var created model.Todo
	require.NoError(t, json.Unmarshal(payload, &created))
	assert.Equal(t, "announce me", created.Title)
}

func TestSessionCookieAuth(t *testing.T) {
	h, _ := newTestStack(t)
	register(t, h, "Ann Admin", "ann@example.com", "admin")

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "login must set the session cookie")
	assert.True(t, sessionCookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(sessionCookie)
	cookieRec := httptest.NewRecorder()
	h.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusOK, cookieRec.Code)
}

func TestPageGateRedirects(t *testing.T) {
	h, _ := newTestStack(t)

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/signin", rec.Header().Get("Location"))
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestStack(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthDegraded(t *testing.T) {
	// A failing checker must flip the endpoint to 503.
	cfg := &config.Config{RequestTimeout: time.Second, CORSOrigins: []string{"*"}}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	users := newMemoryUsers()
	authService, err := service.NewAuthService("integration-secret", time.Hour, users)
	require.NoError(t, err)
	cache, err := todo.NewPageCache(4)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := todo.NewClient(http.DefaultClient, "http://127.0.0.1:0", logger)
	todoService := todo.NewService(client, cache, nil, collector, 10)
	webHandler, err := web.NewHandler(todoService)
	require.NoError(t, err)
	hub := websocket.NewHub(event.NewBus())
	go hub.Run()

	degraded := New(cfg, middleware.NewAuthMiddleware(authService), collector, registry, Handlers{
		Auth: handler.NewAuthHandler(authService, collector),
		Todo: handler.NewTodoHandler(todoService),
		Web:  webHandler,
	}, hub, healthOK{err: errors.New("db unreachable")})

	rec := httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", rec.Body.String())
}
