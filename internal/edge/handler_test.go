package edge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage/memory"
)

type brokenStore struct{}

func (brokenStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return errors.New("unavailable")
}

func (brokenStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	return nil, errors.New("connection reset")
}

func newTestHandler(t *testing.T, mode string, store storage.Store) *Handler {
	t.Helper()
	r, err := NewResolver(mode)
	require.NoError(t, err)
	return NewHandler(r, store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func seed(t *testing.T, store *memory.Store, key, body, contentType string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), contentType))
}

func TestServeStreamsStoredBytes(t *testing.T) {
	store := memory.New()
	seed(t, store, "__outputs/calm-red-fox/index.html", "<h1>hello</h1>", "text/html; charset=utf-8")
	seed(t, store, "__outputs/calm-red-fox/a/b.js", "console.log(1)", "text/javascript; charset=utf-8")
	h := newTestHandler(t, "subdomain", store)

	for path, want := range map[string]string{"/": "<h1>hello</h1>", "": "<h1>hello</h1>", "/a/b.js": "console.log(1)"} {
		req := httptest.NewRequest(http.MethodGet, "http://calm-red-fox.localhost:8000/", nil)
		req.URL.Path = path
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "path %q", path)
		assert.Equal(t, want, rec.Body.String())
		assert.Equal(t, strconv.Itoa(len(want)), rec.Header().Get("Content-Length"))
	}

	req := httptest.NewRequest(http.MethodGet, "http://calm-red-fox.localhost:8000/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestServeAcceptsOnlyGet(t *testing.T) {
	store := memory.New()
	seed(t, store, "__outputs/calm-red-fox/index.html", "<h1>hello</h1>", "text/html")
	h := newTestHandler(t, "subdomain", store)

	for _, method := range []string{http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions} {
		req := httptest.NewRequest(method, "http://calm-red-fox.localhost/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "GET", rec.Header().Get("Allow"), method)
	}
}

func TestServeMissingObjectIs404(t *testing.T) {
	h := newTestHandler(t, "subdomain", memory.New())
	req := httptest.NewRequest(http.MethodGet, "http://calm-red-fox.localhost/missing.css", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStorageFaultIs502(t *testing.T) {
	h := newTestHandler(t, "subdomain", brokenStore{})
	req := httptest.NewRequest(http.MethodGet, "http://calm-red-fox.localhost/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeRejectsWrites(t *testing.T) {
	h := newTestHandler(t, "subdomain", memory.New())
	req := httptest.NewRequest(http.MethodPost, "http://calm-red-fox.localhost/", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestServePathModeRedirectsProjectRoot(t *testing.T) {
	store := memory.New()
	seed(t, store, "__outputs/calm-red-fox/index.html", "home", "text/html")
	h := newTestHandler(t, "path", store)

	req := httptest.NewRequest(http.MethodGet, "http://deploy.example.com/calm-red-fox", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/calm-red-fox/", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "http://deploy.example.com/calm-red-fox/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", rec.Body.String())
}

func TestHealthPath(t *testing.T) {
	h := newTestHandler(t, "subdomain", memory.New())
	req := httptest.NewRequest(http.MethodGet, "http://edge.localhost"+HealthPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
