package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go-todo-app/internal/config"
	"go-todo-app/internal/database"
	"go-todo-app/internal/event"
	"go-todo-app/internal/handler"
	"go-todo-app/internal/metrics"
	"go-todo-app/internal/middleware"
	"go-todo-app/internal/repository"
	"go-todo-app/internal/router"
	"go-todo-app/internal/service"
	"go-todo-app/internal/todo"
	"go-todo-app/internal/web"
	"go-todo-app/internal/websocket"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db := database.New(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	if count, err := userRepo.Count(context.Background()); err != nil {
		slog.Warn("database ready, user count unavailable", "error", err)
	} else {
		slog.Info("database ready", "user_accounts", count)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTTTL, userRepo)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService, collector)

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	go hub.Run()

	todoClient := todo.NewClient(
		&http.Client{Timeout: cfg.TodoAPITimeout},
		cfg.TodoAPIBaseURL,
		slog.Default(),
	)
	todoCache, err := todo.NewPageCache(cfg.TodoCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize todo cache: %w", err)
	}
	todoService := todo.NewService(todoClient, todoCache, bus, collector, cfg.DefaultPageSize)
	todoHandler := handler.NewTodoHandler(todoService)

	webHandler, err := web.NewHandler(todoService)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize web handler: %w", err)
	}

	appRouter := router.New(cfg, authMiddleware, collector, registry, router.Handlers{
		Auth: authHandler,
		Todo: todoHandler,
		Web:  webHandler,
	}, hub, db)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				db.Close()
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
