package handler_test

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/recipe-kv-server/handler"
	"github.com/stevemurr/recipe-kv-server/recipe"
	"github.com/stevemurr/recipe-kv-server/store"
)

const now = 1700000000

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	recipes := recipe.NewStore(s, recipe.Options{
		Now:    func() time.Time { return time.Unix(now, 0) },
		Logger: quietLogger,
	})
	ts := httptest.NewServer(handler.New(recipes, quietLogger, 0))
	t.Cleanup(ts.Close)
	return ts, s
}

func recipeBody(id, name string) string {
	return fmt.Sprintf(`{"id":%q,"name":%q,"description":null,
		"ingredients":[{"name":"Rice","amount":1.5,"unit":"cup","optional":false,"notes":null}],
		"instructions":[{"order":1,"instruction":"Cook","duration_mins":15}],
		"servings":2,"prep_time_mins":5,"cook_time_mins":15,"difficulty":"easy",
		"tags":["side"],"dietary_info":["vegan"],"created_at":1,"updated_at":2}`, id, name)
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func snapshot(t *testing.T, s store.Store, keys ...string) map[string]string {
	t.Helper()
	b, err := s.Open(context.Background(), recipe.BucketName)
	require.NoError(t, err)
	out := map[string]string{}
	for _, k := range keys {
		v, err := b.Get(context.Background(), k)
		require.NoError(t, err)
		if v != nil {
			out[k] = string(v)
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "healthy"}, body)
}

func TestRecipesCRUD(t *testing.T) {
	ts, _ := setup(t)

	// GET /api/recipes - empty
	resp := do(t, "GET", ts.URL+"/api/recipes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []recipe.Recipe
	decodeJSON(t, resp, &list)
	assert.Empty(t, list)

	// POST /api/recipes
	resp = do(t, "POST", ts.URL+"/api/recipes", recipeBody("rice", "Rice"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	decodeJSON(t, resp, &created)
	assert.Equal(t, map[string]string{"id": "rice"}, created)

	// GET /api/recipes/rice
	resp = do(t, "GET", ts.URL+"/api/recipes/rice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got recipe.Recipe
	decodeJSON(t, resp, &got)
	assert.Equal(t, "rice", got.ID)
	assert.Equal(t, "Rice", got.Name)
	assert.Equal(t, uint64(now), got.CreatedAt)
	assert.Equal(t, uint64(now), got.UpdatedAt)
	assert.Equal(t, []string{"vegan"}, got.DietaryInfo)

	// PUT /api/recipes/rice with a different body id
	resp = do(t, "PUT", ts.URL+"/api/recipes/rice", recipeBody("other", "Brown rice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]string
	decodeJSON(t, resp, &status)
	assert.Equal(t, "updated", status["status"])

	resp = do(t, "GET", ts.URL+"/api/recipes/rice", "")
	decodeJSON(t, resp, &got)
	assert.Equal(t, "rice", got.ID)
	assert.Equal(t, "Brown rice", got.Name)
	assert.Equal(t, uint64(1), got.CreatedAt)

	// GET /api/recipes - one
	resp = do(t, "GET", ts.URL+"/api/recipes", "")
	decodeJSON(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "rice", list[0].ID)

	// DELETE /api/recipes/rice
	resp = do(t, "DELETE", ts.URL+"/api/recipes/rice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &status)
	assert.Equal(t, "deleted", status["status"])

	// GET should return 404
	resp = do(t, "GET", ts.URL+"/api/recipes/rice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Recipe not found", readBody(t, resp))
	assert.NotEqual(t, "application/json", resp.Header.Get("Content-Type"))

	resp = do(t, "GET", ts.URL+"/api/recipes", "")
	decodeJSON(t, resp, &list)
	assert.Empty(t, list)
}

func TestCreateWithoutID(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "POST", ts.URL+"/api/recipes", recipeBody("", "Anon"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	decodeJSON(t, resp, &created)
	assert.Equal(t, fmt.Sprintf("recipe_%d", now), created["id"])
}

func TestListJSONLayout(t *testing.T) {
	ts, _ := setup(t)
	do(t, "POST", ts.URL+"/api/recipes", recipeBody("a", "A <b>"))
	do(t, "POST", ts.URL+"/api/recipes", recipeBody("b", "B"))

	resp := do(t, "GET", ts.URL+"/api/recipes?page=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.True(t, strings.HasPrefix(body, `[{"id":"a","name":"A <b>","description":null,`), body)
	assert.Contains(t, body, `{"id":"b",`)
}

func TestDeleteUnknownSucceeds(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "DELETE", ts.URL+"/api/recipes/nope", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateUnknownCreatesUnlistedRecord(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "PUT", ts.URL+"/api/recipes/ghost", recipeBody("", "Ghost"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, "GET", ts.URL+"/api/recipes/ghost", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, "GET", ts.URL+"/api/recipes", "")
	var list []recipe.Recipe
	decodeJSON(t, resp, &list)
	assert.Empty(t, list)
}

func TestMalformedBodyLeavesStoreUnchanged(t *testing.T) {
	ts, s := setup(t)
	do(t, "POST", ts.URL+"/api/recipes", recipeBody("keep", "Keep"))
	keys := []string{recipe.IndexKey, recipe.RecordKey("keep"), recipe.RecordKey("bad")}
	before := snapshot(t, s, keys...)

	bodies := []string{
		"",
		"not json",
		`{"name":"missing everything"}`,
		`{"name":"x","servings":"two","ingredients":[],"instructions":[],"prep_time_mins":0,"cook_time_mins":0,"difficulty":"","tags":[],"dietary_info":[]}`,
		strings.Replace(recipeBody("bad", "Bad"), `"Bad"`, "\"B\xffd\"", 1),
	}
	for _, body := range bodies {
		resp := do(t, "POST", ts.URL+"/api/recipes", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "Invalid JSON", readBody(t, resp))

		resp = do(t, "PUT", ts.URL+"/api/recipes/keep", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	assert.Equal(t, before, snapshot(t, s, keys...))
}

func TestOversizedBody(t *testing.T) {
	recipes := recipe.NewStore(store.NewMemoryStore(), recipe.Options{Logger: quietLogger})
	ts := httptest.NewServer(handler.New(recipes, quietLogger, 64))
	defer ts.Close()

	resp := do(t, "POST", ts.URL+"/api/recipes", recipeBody("big", strings.Repeat("x", 200)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Failed to read body", readBody(t, resp))
}

func TestRouting(t *testing.T) {
	ts, _ := setup(t)

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{"GET", "/nope", http.StatusNotFound, "Not Found"},
		{"GET", "/", http.StatusNotFound, "Not Found"},
		{"GET", "/api", http.StatusNotFound, "Not Found"},
		{"GET", "/api/recipes/a/b", http.StatusNotFound, "Not Found"},
		{"GET", "/health/extra", http.StatusNotFound, "Not Found"},
		{"POST", "/api/recipes/x", http.StatusNotFound, "Not Found"},
		{"POST", "/health", http.StatusNotFound, "Not Found"},
		{"PUT", "/api/recipes", http.StatusNotFound, "Not Found"},
		{"DELETE", "/api/recipes", http.StatusNotFound, "Not Found"},
		{"PATCH", "/api/recipes/1", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"PATCH", "/nope", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"OPTIONS", "/api/recipes", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"HEAD", "/health", http.StatusMethodNotAllowed, ""},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := do(t, tc.method, ts.URL+tc.path, "")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.body, readBody(t, resp))
		})
	}
}

func TestPathNormalization(t *testing.T) {
	ts, _ := setup(t)
	do(t, "POST", ts.URL+"/api/recipes", recipeBody("a/b c", "Odd"))

	resp := do(t, "GET", ts.URL+"//api//recipes/a%2Fb%20c/?x=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got recipe.Recipe
	decodeJSON(t, resp, &got)
	assert.Equal(t, "a/b c", got.ID)
}

// failingRecipes fails every operation with err.
type failingRecipes struct{ err error }

func (f failingRecipes) List(context.Context) ([]recipe.Recipe, error) { return nil, f.err }
func (f failingRecipes) Get(context.Context, string) (*recipe.Recipe, error) {
	return nil, f.err
}
func (f failingRecipes) Create(context.Context, *recipe.Recipe) (string, error) { return "", f.err }
func (f failingRecipes) Update(context.Context, string, *recipe.Recipe) error  { return f.err }
func (f failingRecipes) Delete(context.Context, string) error                  { return f.err }

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	secret := fmt.Errorf("%w: dial tcp 10.0.0.7:6379: connection refused", recipe.ErrStoreUnavailable)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ts := httptest.NewServer(handler.New(failingRecipes{err: secret}, logger, 0))
	defer ts.Close()

	requests := []struct{ method, path, body string }{
		{"GET", "/api/recipes", ""},
		{"GET", "/api/recipes/x", ""},
		{"POST", "/api/recipes", recipeBody("x", "X")},
		{"PUT", "/api/recipes/x", recipeBody("x", "X")},
		{"DELETE", "/api/recipes/x", ""},
	}
	for _, rq := range requests {
		resp := do(t, rq.method, ts.URL+rq.path, rq.body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, rq.method+" "+rq.path)
		assert.Equal(t, "Internal Server Error", readBody(t, resp))
	}

	assert.Contains(t, logs.String(), "op=delete")
	assert.Contains(t, logs.String(), "id=x")
	assert.Contains(t, logs.String(), "connection refused")
}

func TestDecodeErrorIsInternal(t *testing.T) {
	ts := httptest.NewServer(handler.New(failingRecipes{err: fmt.Errorf("%w: recipe:x", recipe.ErrDecode)}, quietLogger, 0))
	defer ts.Close()

	resp := do(t, "GET", ts.URL+"/api/recipes/x", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStrictUpdateNotFound(t *testing.T) {
	recipes := recipe.NewStore(store.NewMemoryStore(), recipe.Options{StrictUpdate: true, Logger: quietLogger})
	ts := httptest.NewServer(handler.New(recipes, quietLogger, 0))
	defer ts.Close()

	resp := do(t, "PUT", ts.URL+"/api/recipes/ghost", recipeBody("", "Ghost"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	h := handler.CORS(handler.New(failingRecipes{err: errors.New("unused")}, quietLogger, 0), []string{"https://a.example", " https://b.example"})
	ts := httptest.NewServer(h)
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/api/recipes", nil)
	req.Header.Set("Origin", "https://b.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://b.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	// Plain OPTIONS is not a preflight and reaches the router.
	resp = do(t, "OPTIONS", ts.URL+"/api/recipes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLogRequests(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := handler.LogRequests(logger)(handler.New(failingRecipes{}, quietLogger, 0))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/nope", line["path"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestResponseWriteFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := handler.New(failingRecipes{}, logger, 0)

	w := brokenWriter{httptest.NewRecorder()}
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logs.String(), "writing response")
	assert.Contains(t, logs.String(), "connection reset by peer")
	assert.Contains(t, logs.String(), "path=/health")
}
