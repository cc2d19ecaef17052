// Package httpx exposes the orchestrator API and the live log endpoints.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/service/project"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/ws"
)

const (
	healthCheckTimeout  = 2 * time.Second
	subscribeTimeout    = 10 * time.Second
	sseKeepAliveIdle    = 15 * time.Second
	maxProjectBodyBytes = 64 << 10
)

// ProjectService admits and describes projects.
type ProjectService interface {
	Create(ctx context.Context, sourceURL string) (project.Created, error)
	Get(ctx context.Context, projectID string) (*domain.Project, error)
	URL(projectID string) string
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Options configures a Router.
type Options struct {
	CORSOrigins []string
	// CreateLimiter admits POST /project per client; nil disables limiting.
	CreateLimiter CreateLimiter
	HealthChecks  map[string]HealthCheck
	// Registerer receives the API metrics; nil disables registration.
	Registerer prometheus.Registerer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	handler    http.Handler
	logger     *slog.Logger
	projects   ProjectService
	relay      *ws.Relay
	upgrader   websocket.Upgrader
	corsPolicy corsPolicy
	metrics    *apiMetrics
	opts       Options
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, projects ProjectService, relay *ws.Relay, opts Options) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		projects: projects,
		relay:    relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		corsPolicy: newCORSPolicy(opts.CORSOrigins),
		metrics:    newAPIMetrics(opts.Registerer),
		opts:       opts,
	}
	r.register()
	r.handler = r.cors(r.mux)
	return r
}

// ServeHTTP delegates to the CORS-wrapped mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases the create limiter.
func (r *Router) Close() {
	if r.opts.CreateLimiter != nil {
		if err := r.opts.CreateLimiter.Close(); err != nil {
			r.logger.Warn("close create limiter", "error", err)
		}
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/project", r.audit("project", r.limitCreates(r.handleProject)))
	r.mux.HandleFunc("/project/", r.audit("project_get", r.handleProjectGet))
	r.mux.HandleFunc("/logs/", r.audit("logs_stream", r.handleLogsSSE))
	r.mux.HandleFunc("/ws", r.audit("ws", r.handleLogsWS))
	r.mux.HandleFunc("/", r.audit("root", r.handleRoot))
}

// handleRoot accepts websocket upgrades on "/" so clients of the original
// single-port deployment keep working.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if websocket.IsWebSocketUpgrade(req) {
		r.handleLogsWS(w, req)
		return
	}
	r.notFound(w)
}

type createProjectRequest struct {
	GitURL string `json:"gitURL"`
}

type projectData struct {
	ProjectID  string    `json:"project_id"`
	URL        string    `json:"url"`
	WSSChannel string    `json:"wss_channel"`
	GitURL     string    `json:"git_url,omitempty"`
	Build      string    `json:"build_status,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload createProjectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxProjectBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := r.projects.Create(req.Context(), payload.GitURL)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrInvalidSourceURL):
			r.metrics.projects.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "gitURL is required")
		case errors.Is(err, project.ErrMalformedSourceURL):
			r.metrics.projects.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "gitURL is not a valid git repository URL")
		default:
			r.metrics.projects.WithLabelValues("failed").Inc()
			r.logger.Error("create project failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create project")
		}
		return
	}
	r.metrics.projects.WithLabelValues("queued").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": string(domain.StatusQueued),
		"data": projectData{
			ProjectID:  created.Project.ID,
			URL:        created.URL,
			WSSChannel: created.Channel,
		},
	})
}

func (r *Router) handleProjectGet(w http.ResponseWriter, req *http.Request) {
	projectID := strings.Trim(strings.TrimPrefix(req.URL.Path, "/project/"), "/")
	if projectID == "" || strings.Contains(projectID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	p, err := r.projects.Get(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data": projectData{
			ProjectID:  p.ID,
			URL:        r.projects.URL(p.ID),
			WSSChannel: domain.LogChannel(p.ID),
			GitURL:     p.SourceURL,
			Build:      string(p.Status),
			CreatedAt:  p.CreatedAt,
		},
	})
}

// handleLogsWS upgrades the connection. The first text frame names the channel
// to follow; later frames are answered with an error and otherwise ignored.
func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	go func() {
		defer func() {
			r.relay.Unsubscribe(client)
			client.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			r.subscribeWS(client, parseChannel(data))
		}
	}()
}

func (r *Router) subscribeWS(client *ws.Client, channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	err := r.relay.Subscribe(ctx, client, channel)
	switch {
	case err == nil:
		r.logger.Info("log channel subscribed", "channel", channel)
		return
	case errors.Is(err, ws.ErrChannelInUse):
		_ = client.Send(errorFrame("Channel already in use", ""))
	case errors.Is(err, ws.ErrInvalidChannel):
		_ = client.Send(errorFrame("invalid channel", ""))
	default:
		r.logger.Warn("log channel subscribe failed", "channel", channel, "error", err)
		_ = client.Send(errorFrame("Failed to subscribe", err.Error()))
	}
}

// parseChannel accepts a bare channel name or {"channel": "..."}.
func parseChannel(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var msg struct {
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil {
			return strings.TrimSpace(msg.Channel)
		}
	}
	return trimmed
}

func errorFrame(msg, details string) []byte {
	frame := map[string]string{"error": msg}
	if details != "" {
		frame["details"] = details
	}
	data, _ := json.Marshal(frame)
	return data
}

// handleLogsSSE streams /logs/<project-id> as Server-Sent Events until the
// client goes away.
func (r *Router) handleLogsSSE(w http.ResponseWriter, req *http.Request) {
	projectID := strings.Trim(strings.TrimPrefix(req.URL.Path, "/logs/"), "/")
	channel := domain.LogChannel(projectID)
	if _, ok := domain.ProjectFromChannel(channel); !ok {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	ctx, cancel := context.WithTimeout(req.Context(), subscribeTimeout)
	err := r.relay.Subscribe(ctx, client, channel)
	cancel()
	if err != nil {
		r.logger.Warn("sse subscribe failed", "channel", channel, "error", err)
		_ = client.Send(errorFrame("Failed to subscribe", err.Error()))
		return
	}
	defer func() {
		r.relay.Unsubscribe(client)
		client.Close()
	}()

	// Keep-alive frames go out only after sseKeepAliveIdle without a write.
	ticker := time.NewTicker(sseKeepAliveIdle / 3)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if _, err := client.KeepAlive(sseKeepAliveIdle); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.opts.HealthChecks))
	for name := range r.opts.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.opts.HealthChecks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{"status": "down", "error": err.Error()}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		if recorder.hijacked {
			status = http.StatusSwitchingProtocols
		}
		duration := time.Since(start)
		r.metrics.observe(route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int
	hijacked bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.hijacked = true
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
