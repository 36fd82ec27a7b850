package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/services"
	"srf-carbon/internal/species"
	"srf-carbon/internal/woodland"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// maxBodyBytes bounds request bodies; fit requests carry the most data
const maxBodyBytes = 1 << 20

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the species and simulation API
type Handler struct {
	speciesService    *services.SpeciesService
	simulationService *services.SimulationService
	health            HealthChecker
	logger            *logging.StructuredLogger
	metrics           *metrics.Collector
}

// NewHandler creates the API handler. health may be nil when the service
// runs without a database.
func NewHandler(
	speciesService *services.SpeciesService,
	simulationService *services.SimulationService,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *Handler {
	return &Handler{
		speciesService:    speciesService,
		simulationService: simulationService,
		health:            health,
		logger:            logger,
		metrics:           metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Code        int      `json:"code"`
	Field       string   `json:"field,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RegisterRoutes registers all API routes. limit wraps the simulation
// endpoint and may be nil.
func (h *Handler) RegisterRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	router.HandleFunc("/api/species", h.ListSpecies).Methods("GET")
	router.HandleFunc("/api/species/{name}", h.GetSpecies).Methods("GET")
	router.HandleFunc("/api/species/{name}/curve", h.GetCurve).Methods("GET")
	router.HandleFunc("/api/species/{name}/fit", h.FitSpecies).Methods("POST")

	var simulate http.Handler = http.HandlerFunc(h.RunSimulation)
	if limit != nil {
		simulate = limit(simulate)
	}
	router.Handle("/api/simulations", simulate).Methods("POST")

	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "disabled",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.health != nil {
		if err := h.health.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK] Database unreachable", logging.Fields{
				"error": err.Error(),
			})
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// observe records the request duration for endpoint when the returned
// func runs
func (h *Handler) observe(endpoint string) func() {
	start := time.Now()
	return func() {
		h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return &models.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

// sendJSON sends a JSON response
func (h *Handler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) sendOK(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, data, http.StatusOK)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, endpoint string, resp ErrorResponse) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(resp.Code))
	resp.Error = http.StatusText(resp.Code)
	h.sendJSON(w, resp, resp.Code)
}

// handleError maps service errors onto HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	ctx := r.Context()

	var (
		validation *models.ValidationError
		config     *woodland.ConfigError
		unknown    *species.NotFoundError
		missing    *repository.NotFoundError
		growthErr  *growth.Error
	)

	switch {
	case errors.As(err, &validation):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusBadRequest, Message: validation.Message, Field: validation.Field})

	case errors.As(err, &config):
		resp := ErrorResponse{Code: http.StatusUnprocessableEntity, Message: err.Error(), Field: config.Field}
		if errors.As(err, &unknown) {
			resp.Suggestions = unknown.Suggestions
		}
		h.metrics.RecordAPIError("invalid_configuration", endpoint)
		h.sendError(w, r, endpoint, resp)

	case errors.As(err, &unknown):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusNotFound, Message: err.Error(), Suggestions: unknown.Suggestions})

	case errors.As(err, &missing):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusNotFound, Message: err.Error()})

	case errors.Is(err, growth.ErrInvalidDomain):
		h.metrics.RecordAPIError("invalid_domain", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusBadRequest, Message: err.Error()})

	case errors.As(err, &growthErr):
		h.metrics.RecordAPIError("growth_error", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusUnprocessableEntity, Message: err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		h.metrics.RecordAPIError("timeout", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusGatewayTimeout, Message: "request timed out"})

	case services.IsCancellation(err):
		h.metrics.RecordAPIError("cancelled", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusServiceUnavailable, Message: "request cancelled"})

	default:
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"method":   r.Method,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, ErrorResponse{Code: http.StatusInternalServerError, Message: "internal server error"})
	}
}
