package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"go-todo-app/internal/config"
	"go-todo-app/internal/handler"
	"go-todo-app/internal/metrics"
	"go-todo-app/internal/middleware"
	"go-todo-app/internal/web"
	"go-todo-app/internal/websocket"
)

type Handlers struct {
	Auth *handler.AuthHandler
	Todo *handler.TodoHandler
	Web  *web.Handler
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	handlers Handlers,
	hub *websocket.Hub,
	health HealthChecker,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(collector.Middleware)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := health.Health(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", metrics.Handler(gatherer).ServeHTTP)

	// Browser pages. The gate matcher covers /todos; the auth screens
	// stay open.
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/todos", http.StatusSeeOther)
	})
	r.Get("/auth/signin", handlers.Web.SignIn)
	r.Get("/auth/register", handlers.Web.Register)
	r.With(authMiddleware.RequirePage).Get("/todos", handlers.Web.Todos)

	r.With(authMiddleware.RequireAuth).Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWS(hub, w, req)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/register", handlers.Auth.Register)
			auth.Post("/logout", handlers.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", handlers.Auth.Me)
		})

		// The RBAC gate: every /api/todos request needs a session, and
		// write methods additionally need the admin role.
		api.Route("/todos", func(todos chi.Router) {
			todos.Use(authMiddleware.RequireAuth)
			todos.Use(authMiddleware.RequireTodoWrite)

			todos.Get("/", handlers.Todo.List)
			todos.Post("/", handlers.Todo.Create)
			todos.Put("/{id}", handlers.Todo.Update)
			todos.Patch("/{id}", handlers.Todo.Update)
			todos.Delete("/{id}", handlers.Todo.Delete)
		})
	})

	return r
}
