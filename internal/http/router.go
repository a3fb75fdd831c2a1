package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/service/alerting"
	"github.com/splax/slaguard/internal/service/sla"
	"github.com/splax/slaguard/internal/ws"
)

// EvaluationRunner runs one alert evaluation pass.
type EvaluationRunner interface {
	RunEvaluation(ctx context.Context) (alerting.EvaluationResult, error)
}

// RuleManager reads and writes the alert rule configuration.
type RuleManager interface {
	Load(ctx context.Context) (alerting.RuleSet, alerting.RuleSource, error)
	Save(ctx context.Context, set alerting.RuleSet) (alerting.RuleSet, error)
	Reset(ctx context.Context) error
}

// DefinitionProvisioner creates and versions SLA definitions.
type DefinitionProvisioner interface {
	CreateDefaultSLA(ctx context.Context, serviceID string) (*domain.SLADefinition, error)
	Supersede(ctx context.Context, definitionID string, input sla.SupersedeInput) (*domain.SLADefinition, error)
}

// SnapshotGenerator computes daily snapshots on demand.
type SnapshotGenerator interface {
	GenerateDailySnapshot(ctx context.Context, definitionID string, day time.Time) (*domain.SLASnapshot, error)
	GenerateForDate(ctx context.Context, day time.Time) ([]sla.Outcome, error)
}

// SnapshotLister reads stored snapshots.
type SnapshotLister interface {
	ListSLASnapshots(ctx context.Context, definitionID string, window domain.TimeRange) ([]domain.SLASnapshot, error)
}

// ReportBuilder aggregates snapshots into compliance reports.
type ReportBuilder interface {
	Report(ctx context.Context, definitionID string, asOf time.Time) (*sla.Report, error)
}

// Services are the handlers' collaborators. Nil members disable their routes.
type Services struct {
	Evaluations EvaluationRunner
	Rules       RuleManager
	Definitions DefinitionProvisioner
	Snapshots   SnapshotGenerator
	History     SnapshotLister
	Reports     ReportBuilder
	Hub         *ws.Hub
}

// Options configure authentication, rate limiting and health reporting.
// X-Forwarded-For is honoured only from TrustedProxies (CIDRs or addresses).
type Options struct {
	AdminToken         string
	RateLimitPerMinute int
	Limiter            RateLimiter
	TrustedProxies     []string
	DBHealth           func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	svc        Services
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	clients    peerResolver
	adminToken string
	rateLimit  int
	dbHealth   func(context.Context) error
	now        func() time.Time

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svc Services, opts Options) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		svc:    svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    opts.Limiter,
		adminToken: strings.TrimSpace(opts.AdminToken),
		rateLimit:  opts.RateLimitPerMinute,
		dbHealth:   opts.DBHealth,
		now:        time.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.clients = newPeerResolver(opts.TrustedProxies, r.logger)
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	admin := Budget{Limit: r.rateLimit, Window: rateWindowDefault}
	stream := Budget{Limit: rateLimitStream, Window: rateWindowRealtime}

	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/evaluations/run", r.audit(r.adminRate("/evaluations/run", admin, r.handleRunEvaluation)))
	r.mux.HandleFunc("/alert-rules", r.audit(r.adminRate("/alert-rules", admin, r.handleAlertRules)))
	r.mux.HandleFunc("/sla-definitions/", r.audit(r.adminRate("/sla-definitions", admin, r.handleDefinitionSubroutes)))
	r.mux.HandleFunc("/snapshots/run", r.audit(r.adminRate("/snapshots/run", admin, r.handleRunSnapshots)))
	r.mux.HandleFunc("/ws/incidents", r.audit(r.adminRate("/ws/incidents", stream, r.handleIncidentsWS)))
	r.mux.HandleFunc("/incidents/stream", r.audit(r.adminRate("/incidents/stream", stream, r.handleIncidentsSSE)))
}

func (r *Router) handleRunEvaluation(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.svc.Evaluations == nil {
		r.notFound(w)
		return
	}
	result, err := r.svc.Evaluations.RunEvaluation(req.Context())
	payload := map[string]any{"result": result}
	if err != nil {
		r.logger.Warn("manual evaluation finished with errors", "error", err)
		payload["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleAlertRules(w http.ResponseWriter, req *http.Request) {
	if r.svc.Rules == nil {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		set, source, err := r.svc.Rules.Load(req.Context())
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": source, "version": set.Version, "rules": set.Rules})
	case http.MethodPut:
		raw, err := readBody(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read body")
			return
		}
		set, err := alerting.DecodeRuleSet(raw)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		saved, err := r.svc.Rules.Save(req.Context(), set)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": alerting.SourceConfigured, "version": saved.Version, "rules": saved.Rules})
	case http.MethodDelete:
		if err := r.svc.Rules.Reset(req.Context()); err != nil {
			r.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.svc.Hub != nil {
		components["incident_stream"] = map[string]any{"subscribers": r.svc.Hub.Subscribers(ws.TopicIncidents)}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  r.now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeLabel(req.URL.Path), status, duration)

		actor := "anonymous"
		if isAdmin(ctx) {
			actor = "admin"
		}
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"actor", actor,
		}
		fields = append(fields, "ip", r.clients.resolve(req))
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

// routeLabel collapses definition ids so metric cardinality stays bounded.
func routeLabel(path string) string {
	if rest, ok := strings.CutPrefix(path, "/sla-definitions/"); ok {
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) == 2 {
			return "/sla-definitions/{id}/" + parts[1]
		}
		return "/sla-definitions/" + parts[0]
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
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

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
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
