// Package handler provides the HTTP surface of the recipe service.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/stevemurr/recipe-kv-server/recipe"
)

// DefaultMaxBodyBytes caps request bodies when New is given no limit.
const DefaultMaxBodyBytes = 1 << 20

// Recipes is the set of recipe operations the handler routes to.
type Recipes interface {
	List(ctx context.Context) ([]recipe.Recipe, error)
	Get(ctx context.Context, id string) (*recipe.Recipe, error)
	Create(ctx context.Context, r *recipe.Recipe) (string, error)
	Update(ctx context.Context, id string, r *recipe.Recipe) error
	Delete(ctx context.Context, id string) error
}

// Handler routes recipe requests. Routes match on exact path segments:
//
//	GET    /health
//	GET    /api/recipes
//	GET    /api/recipes/{id}
//	POST   /api/recipes
//	PUT    /api/recipes/{id}
//	DELETE /api/recipes/{id}
//
// Methods other than GET, POST, PUT and DELETE get 405 on every path; an
// unmatched path under a handled method gets 404.
type Handler struct {
	recipes Recipes
	log     *slog.Logger
	maxBody int64
}

// New creates a Handler. A nil logger uses slog.Default(); maxBody <= 0 uses
// DefaultMaxBodyBytes.
func New(recipes Recipes, logger *slog.Logger, maxBody int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{recipes: recipes, log: logger, maxBody: maxBody}
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := segments(r.URL)

	switch r.Method {
	case http.MethodGet:
		h.routeGet(w, r, path)
	case http.MethodPost:
		h.routePost(w, r, path)
	case http.MethodPut:
		h.routePut(w, r, path)
	case http.MethodDelete:
		h.routeDelete(w, r, path)
	default:
		writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// segments splits the escaped path on "/" and drops empty segments, then
// unescapes each one, so an ID may contain an encoded slash.
func segments(u *url.URL) []string {
	var out []string
	for _, s := range strings.Split(u.EscapedPath(), "/") {
		if s == "" {
			continue
		}
		if v, err := url.PathUnescape(s); err == nil {
			s = v
		}
		out = append(out, s)
	}
	return out
}

// recipeID reports whether path is /api/recipes (id == "") or
// /api/recipes/{id}.
func recipeID(path []string) (id string, ok bool) {
	if len(path) < 2 || path[0] != "api" || path[1] != "recipes" {
		return "", false
	}
	switch len(path) {
	case 2:
		return "", true
	case 3:
		return path[2], true
	}
	return "", false
}

func (h *Handler) routeGet(w http.ResponseWriter, r *http.Request, path []string) {
	if len(path) == 1 && path[0] == "health" {
		h.respond(w, r, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	id, ok := recipeID(path)
	switch {
	case !ok:
		notFound(w)
	case id == "":
		h.list(w, r)
	default:
		h.get(w, r, id)
	}
}

func (h *Handler) routePost(w http.ResponseWriter, r *http.Request, path []string) {
	if id, ok := recipeID(path); ok && id == "" {
		h.create(w, r)
		return
	}
	notFound(w)
}

func (h *Handler) routePut(w http.ResponseWriter, r *http.Request, path []string) {
	if id, ok := recipeID(path); ok && id != "" {
		h.update(w, r, id)
		return
	}
	notFound(w)
}

func (h *Handler) routeDelete(w http.ResponseWriter, r *http.Request, path []string) {
	if id, ok := recipeID(path); ok && id != "" {
		h.delete(w, r, id)
		return
	}
	notFound(w)
}

// ---------- operations ----------

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.List(r.Context())
	if err != nil {
		h.fail(w, r, "list", "", err)
		return
	}
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	h.respond(w, r, http.StatusOK, recipes)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.recipes.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get", id, err)
		return
	}
	h.respond(w, r, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.readRecipe(w, r, "create", "")
	if !ok {
		return
	}
	id, err := h.recipes.Create(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "create", rec.ID, err)
		return
	}
	h.respond(w, r, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := h.readRecipe(w, r, "update", id)
	if !ok {
		return
	}
	if err := h.recipes.Update(r.Context(), id, rec); err != nil {
		h.fail(w, r, "update", id, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.recipes.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete", id, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// readRecipe reads and decodes the request body. On failure it has already
// written the 400 response.
func (h *Handler) readRecipe(w http.ResponseWriter, r *http.Request, op, id string) (*recipe.Recipe, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.log.WarnContext(r.Context(), "failed to read body", "op", op, "id", id, "error", err)
		writeText(w, http.StatusBadRequest, "Failed to read body")
		return nil, false
	}
	rec, err := recipe.Decode(body)
	if err != nil {
		h.fail(w, r, op, id, err)
		return nil, false
	}
	return rec, true
}

// fail maps an operation error onto a response. Internal details are logged,
// never returned.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	switch {
	case errors.Is(err, recipe.ErrNotFound):
		writeText(w, http.StatusNotFound, "Recipe not found")
	case errors.Is(err, recipe.ErrInvalidPayload):
		h.log.WarnContext(r.Context(), "invalid JSON", "op", op, "id", id, "error", err)
		writeText(w, http.StatusBadRequest, "Invalid JSON")
	default:
		h.log.ErrorContext(r.Context(), "recipe operation failed", "op", op, "id", id, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
