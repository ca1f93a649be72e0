// Package httpapi exposes the query service over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/internal/domain/query/mode"
	"github.com/datalith-io/lakeq/internal/logger"
	"github.com/datalith-io/lakeq/internal/metrics"
	"github.com/datalith-io/lakeq/internal/usecase/search"
	"github.com/datalith-io/lakeq/table"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes search requests to the query service.
type Server struct {
	search        *search.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc *search.Service, logger *zap.Logger) *Server {
	s := &Server{search: svc, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrTypeMismatch, http.StatusBadRequest, "type_mismatch"),
		sentinelHandler(domain.ErrPreconditionFailed, http.StatusPreconditionFailed, "precondition_failed"),
		sentinelHandler(domain.ErrConfiguration, http.StatusNotImplemented, "not_configured"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrUpstream, http.StatusBadGateway, "upstream_error"),
	}
	return s
}

// Routes mounts the API on a fresh chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(s.requestLogger())
	r.Post("/api/v1/search", s.Search)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	return r
}

// searchRequest is the JSON body of POST /api/v1/search. Query accepts
// a string, a vector, a list of vectors, or a [vector, text] pair.
type searchRequest struct {
	Query        json.RawMessage `json:"query"`
	Mode         string          `json:"mode"`
	Limit        *int            `json:"limit"`
	Filter       string          `json:"filter"`
	Prefilter    bool            `json:"prefilter"`
	Columns      []string        `json:"columns"`
	Metric       string          `json:"metric"`
	NProbes      int             `json:"nprobes"`
	RefineFactor int             `json:"refine_factor"`
	WithRowID    bool            `json:"with_row_id"`
	VectorColumn string          `json:"vector_column"`
	Phrase       bool            `json:"phrase"`
	Normalize    string          `json:"normalize"`
}

type searchResponse struct {
	Items []map[string]any `json:"items"`
	Count int              `json:"count"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	raw, err := decodeQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	m := mode.Auto
	if req.Mode != "" {
		m = mode.Mode(req.Mode)
	}
	norm := search.NormalizeScore
	if req.Normalize != "" {
		norm = search.NormalizeMode(req.Normalize)
	}

	limit := query.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	columns, err := query.NewProjection(req.Columns)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	d, err := query.New(query.Params{
		Filter:       req.Filter,
		Prefilter:    req.Prefilter,
		Limit:        limit,
		Metric:       query.Metric(req.Metric),
		Columns:      columns,
		NProbes:      req.NProbes,
		RefineFactor: req.RefineFactor,
		WithRowID:    req.WithRowID,
		VectorColumn: req.VectorColumn,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.search.Execute(r.Context(), raw, m, d, search.Options{
		Normalize: norm,
		Phrase:    req.Phrase,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QueriesTotal.WithLabelValues(string(m), status).Inc()
	metrics.QueryDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Items: tableToItems(result),
		Count: result.NumRows(),
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeQuery maps the raw JSON query value onto the shapes the
// resolver accepts. JSON numbers arrive as float64.
func decodeQuery(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid query value: %w", err)
	}
	switch q := v.(type) {
	case string:
		return q, nil
	case []any:
		return coerceQueryList(q)
	}
	return nil, fmt.Errorf("query must be a string or an array, got %T", v)
}

func coerceQueryList(list []any) (any, error) {
	if len(list) == 0 {
		return nil, errors.New("query array must not be empty")
	}
	switch list[0].(type) {
	case float64:
		vec, err := toVector(list)
		if err != nil {
			return nil, err
		}
		return vec, nil
	case []any:
		// Either a batch of vectors or a [vector, text] hybrid pair.
		if len(list) == 2 {
			if text, ok := list[1].(string); ok {
				vec, err := toVector(list[0].([]any))
				if err != nil {
					return nil, err
				}
				return []any{vec, text}, nil
			}
		}
		batch := make([][]float32, len(list))
		for i, item := range list {
			inner, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("query element %d is %T, want a vector", i, item)
			}
			vec, err := toVector(inner)
			if err != nil {
				return nil, err
			}
			batch[i] = vec
		}
		return batch, nil
	}
	return nil, fmt.Errorf("query array elements must be numbers or vectors, got %T", list[0])
}

func toVector(list []any) ([]float32, error) {
	vec := make([]float32, len(list))
	for i, item := range list {
		n, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("vector element %d is %T, want a number", i, item)
		}
		vec[i] = float32(n)
	}
	return vec, nil
}

func tableToItems(t *table.Table) []map[string]any {
	items := make([]map[string]any, t.NumRows())
	for i := range items {
		items[i] = t.Row(i)
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrTypeMismatch,
		domain.ErrPreconditionFailed,
		domain.ErrConfiguration,
		domain.ErrRateLimited,
		domain.ErrUpstream,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// requestLogger emits a canonical log line per request and propagates X-Request-ID.
func (s *Server) requestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}
			reqLogger := s.logger.With(zap.String("request_id", requestID))
			r = r.WithContext(logger.ContextWith(r.Context(), reqLogger))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
