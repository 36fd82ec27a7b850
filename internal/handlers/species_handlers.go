package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"srf-carbon/internal/models"
	"srf-carbon/pkg/logging"
)

const (
	defaultCurveMaxAge = 150
	defaultCurveStep   = 1
	maxCurvePoints     = 10000
)

// ListSpecies handles GET /api/species
func (h *Handler) ListSpecies(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/species"
	defer h.observe(endpoint)()

	h.sendOK(w, r, endpoint, h.speciesService.List(r.Context()))
}

// GetSpecies handles GET /api/species/{name}
func (h *Handler) GetSpecies(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/species/{name}"
	defer h.observe(endpoint)()

	resp, err := h.speciesService.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, resp)
}

// GetCurve handles GET /api/species/{name}/curve
func (h *Handler) GetCurve(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/species/{name}/curve"
	defer h.observe(endpoint)()

	maxAge, err := floatParam(r, "max_age", defaultCurveMaxAge)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	step, err := floatParam(r, "step", defaultCurveStep)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	if step > 0 && maxAge/step > maxCurvePoints {
		h.handleError(w, r, endpoint, &models.ValidationError{
			Field:   "step",
			Value:   strconv.FormatFloat(step, 'g', -1, 64),
			Message: "curve would exceed 10000 points; use a larger step",
		})
		return
	}

	resp, err := h.speciesService.Curve(r.Context(), mux.Vars(r)["name"], maxAge, step)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, resp)
}

// FitSpecies handles POST /api/species/{name}/fit
func (h *Handler) FitSpecies(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/species/{name}/fit"
	defer h.observe(endpoint)()
	ctx := r.Context()

	var req models.FitRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	resp, err := h.speciesService.Fit(ctx, mux.Vars(r)["name"], &req)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.logger.Info(ctx, "[API_FIT] Growth curve fitted", logging.Fields{
		"species": resp.Species,
		"points":  len(req.Points),
		"cached":  resp.Cached,
		"stored":  resp.Stored,
	})
	h.sendOK(w, r, endpoint, resp)
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Value: raw, Message: name + " must be a number"}
	}
	return v, nil
}
