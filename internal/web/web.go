// Package web renders the browser UI: sign-in and registration screens
// and the paginated todo table. All data operations go through the JSON
// API; these pages only bootstrap the views and hide privileged
// controls from non-admin sessions.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"go-todo-app/internal/middleware"
	"go-todo-app/internal/model"
	"go-todo-app/internal/todo"
)

//go:embed templates/*.html
var templateFS embed.FS

type Handler struct {
	todos *todo.Service
	tmpl  *template.Template
}

func NewHandler(todos *todo.Service) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{todos: todos, tmpl: tmpl}, nil
}

type pageData struct {
	Title string
	User  *model.AuthClaims
	Todos model.TodoPage
	Pages []int
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signin.html", pageData{Title: "Sign in"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html", pageData{Title: "Register"})
}

// Todos renders the table page. The claim is resolved by the page
// middleware; write controls are rendered only for admins, and the
// server-side gate enforces the same rule regardless.
func (h *Handler) Todos(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/auth/signin", http.StatusSeeOther)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.todos.List(r.Context(), page, limit)
	if err != nil {
		slog.Error("failed to load todos for page render", "error", err)
		http.Error(w, "failed to load todos", http.StatusBadGateway)
		return
	}

	totalPages := result.Total / result.Limit
	if result.Total%result.Limit != 0 {
		totalPages++
	}
	pages := make([]int, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		pages = append(pages, i)
	}

	h.render(w, "todos.html", pageData{
		Title: "Todos",
		User:  claims,
		Todos: result,
		Pages: pages,
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template render failed", "template", name, "error", err)
	}
}
