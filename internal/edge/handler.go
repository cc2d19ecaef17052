package edge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
)

// HealthPath is answered by the edge itself and never resolved to a project.
const HealthPath = "/__healthz"

const healthCheckTimeout = 2 * time.Second

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler streams stored objects for resolved requests.
type Handler struct {
	resolver Resolver
	store    storage.Store
	logger   *slog.Logger
	metrics  *edgeMetrics
}

// NewHandler builds the edge handler. reg may be nil.
func NewHandler(resolver Resolver, store storage.Store, logger *slog.Logger, reg prometheus.Registerer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, store: store, logger: logger, metrics: newEdgeMetrics(reg)}
}

// ServeHTTP answers GET only. A missing object or project is a 404, any
// other storage fault a 502.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &responseRecorder{ResponseWriter: w}
	h.serve(rec, req)
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	duration := time.Since(start)
	h.metrics.observe(req.Method, status, rec.bytes, duration)

	fields := []any{
		"method", req.Method,
		"host", req.Host,
		"path", req.URL.Path,
		"status", status,
		"bytes", rec.bytes,
		"duration_ms", duration.Milliseconds(),
	}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("edge_request", fields...)
	case status >= http.StatusBadRequest:
		h.logger.Warn("edge_request", fields...)
	default:
		h.logger.Info("edge_request", fields...)
	}
}

func (h *Handler) serve(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == HealthPath {
		h.health(w, req)
		return
	}
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target, err := h.resolver.Resolve(req.Host, req.URL.Path)
	if err != nil {
		http.NotFound(w, req)
		return
	}
	if target.Redirect != "" {
		http.Redirect(w, req, target.Redirect, http.StatusMovedPermanently)
		return
	}

	obj, err := h.store.Get(req.Context(), target.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, req)
			return
		}
		h.logger.Error("edge storage fetch failed", "project_id", target.ProjectID, "key", target.Key, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer obj.Body.Close()

	header := w.Header()
	setIfPresent(header, "Content-Type", obj.ContentType)
	setIfPresent(header, "Cache-Control", obj.CacheControl)
	setIfPresent(header, "Content-Encoding", obj.ContentEncoding)
	setIfPresent(header, "Content-Disposition", obj.ContentDisposition)
	if obj.Size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("edge stream interrupted", "project_id", target.ProjectID, "key", target.Key, "error", err)
	}
}

func (h *Handler) health(w http.ResponseWriter, req *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := h.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, `{"status":"`+status+`"}`)
}

func setIfPresent(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}
