package handlers

import (
	"net/http"

	"srf-carbon/internal/models"
	"srf-carbon/pkg/logging"
)

// RunSimulation handles POST /api/simulations. An empty body runs the
// default scenario.
func (h *Handler) RunSimulation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/simulations"
	defer h.observe(endpoint)()
	ctx := r.Context()

	var req models.SimulationRequest
	if err := h.decode(w, r, &req, true); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	resp, err := h.simulationService.Run(ctx, &req)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.logger.Info(ctx, "[API_SIMULATION] Simulation served", logging.Fields{
		"run_id": resp.RunID,
		"years":  len(resp.Years),
		"trees":  resp.Planting.Planted,
	})
	h.sendOK(w, r, endpoint, resp)
}
