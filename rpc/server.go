package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"yieldledger/core/events"
	"yieldledger/native/accrual"
	"yieldledger/observability"
)

const maxPageSize = 500

// Ledger is the read side of the accrual engine served over HTTP.
type Ledger interface {
	Claim(id uint64) (*accrual.ClaimView, error)
	Claims() ([]*accrual.ClaimView, error)
	MintedAt(hour uint64) (uint64, error)
	Watermark() (uint64, error)
	VestingSchedule() (*accrual.VestingSchedule, error)
	Totals() (accrual.Totals, error)
	SaleStart() (time.Time, error)
	CurrentHour() (uint64, error)
	Halted() error
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger   Ledger
	Events   *events.Buffer
	Metrics  *observability.HTTPMetrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Limit    RateLimit
}

// Server exposes ledger state as JSON. It never mutates the ledger.
type Server struct {
	ledger   Ledger
	events   *events.Buffer
	metrics  *observability.HTTPMetrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	limiter  *rateLimiter

	router http.Handler
}

// New constructs the reporting router.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("rpc: ledger required")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := &Server{
		ledger:   cfg.Ledger,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
	if cfg.Limit.RequestsPerMinute > 0 {
		srv.limiter = newRateLimiter(cfg.Limit)
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), "yieldledger.rpc")
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Get("/healthz", s.health)
	r.Route("/v1", func(api chi.Router) {
		api.Get("/stats", s.stats)
		api.Get("/claims", s.listClaims)
		api.Get("/claims/{id}", s.getClaim)
		api.Get("/mint/{hour}", s.mintAt)
		api.Get("/vesting", s.vesting)
		if s.events != nil {
			api.Get("/events", s.recentEvents)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
		s.metrics.Observe(route, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatsResponse summarises the ledger.
type StatsResponse struct {
	SaleStarted bool           `json:"saleStarted"`
	SaleStart   *time.Time     `json:"saleStart,omitempty"`
	CurrentHour *uint64        `json:"currentHour,omitempty"`
	Watermark   uint64         `json:"watermark"`
	Totals      accrual.Totals `json:"totals"`
	YieldDust   string         `json:"yieldDust"`
	Halted      string         `json:"halted,omitempty"`
}

// ClaimsResponse is one page of live claims.
type ClaimsResponse struct {
	Claims []*accrual.ClaimView `json:"claims"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
}

// MintResponse reports the cumulative principal active during an hour.
type MintResponse struct {
	Hour       uint64 `json:"hour"`
	Cumulative uint64 `json:"cumulative"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Halted(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Kind: accrual.Kind(err)})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.ledger.Totals()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	watermark, err := s.ledger.Watermark()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := StatsResponse{Watermark: watermark, Totals: totals, YieldDust: totals.YieldDust().String()}
	start, err := s.ledger.SaleStart()
	switch {
	case err == nil:
		resp.SaleStarted = true
		resp.SaleStart = &start
		if hour, err := s.ledger.CurrentHour(); err == nil {
			resp.CurrentHour = &hour
		}
	case errors.Is(err, accrual.ErrSaleNotStarted):
	default:
		s.writeError(w, r, err)
		return
	}
	if halted := s.ledger.Halted(); halted != nil {
		resp.Halted = halted.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listClaims(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	claims, err := s.ledger.Claims()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ClaimsResponse{Claims: []*accrual.ClaimView{}, Total: len(claims), Offset: offset}
	if offset < len(claims) {
		end := offset + limit
		if end > len(claims) {
			end = len(claims)
		}
		resp.Claims = claims[offset:end]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.ledger.Claim(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) mintAt(w http.ResponseWriter, r *http.Request) {
	hour, err := pathUint(r, "hour")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cumulative, err := s.ledger.MintedAt(hour)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MintResponse{Hour: hour, Cumulative: cumulative})
}

func (s *Server) vesting(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.ledger.VestingSchedule()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.events.Records())
}

var errBadParam = fmt.Errorf("%w: malformed request parameter", accrual.ErrValidation)

func pathUint(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w (%s)", errBadParam, name)
	}
	return value, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w (%s)", errBadParam, name)
	}
	return value, nil
}

// StatusFor maps an engine error onto an HTTP status code.
func StatusFor(err error) int {
	switch accrual.Kind(err) {
	case "ok":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "permission":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "state":
		return http.StatusConflict
	case "arithmetic":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("rpc request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: accrual.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
