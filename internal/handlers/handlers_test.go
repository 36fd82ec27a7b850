package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"srf-carbon/internal/cache"
	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/services"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newTestRouter(t *testing.T, health HealthChecker, limit func(http.Handler) http.Handler) *mux.Router {
	t.Helper()
	logger := logging.Nop()
	collector := metrics.NewCollector("srf_test", prometheus.NewRegistry())
	registry := species.Default()

	speciesService := services.NewSpeciesService(registry, nil, cache.NewMemoryCache(0), growth.Fitter{}, logger, collector)
	simulationService := services.NewSimulationService(registry, services.SimulationLimits{
		DefaultSeed: 42,
		MaxHorizon:  200,
		MaxTrees:    100000,
		Workers:     1,
	}, logger, collector)

	router := mux.NewRouter()
	NewHandler(speciesService, simulationService, health, logger, collector).RegisterRoutes(router, limit)
	return router
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		health   HealthChecker
		wantCode int
		wantDB   string
	}{
		{"no database", nil, http.StatusOK, "disabled"},
		{"database ok", fakeHealth{}, http.StatusOK, "ok"},
		{"database down", fakeHealth{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestRouter(t, tt.health, nil), "GET", "/health", "")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", body["database"], tt.wantDB)
			}
		})
	}
}

func TestListSpecies(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), "GET", "/api/species", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body []models.SpeciesResponse
	decodeBody(t, rec, &body)
	if len(body) != len(species.Builtin()) {
		t.Errorf("len(species) = %d, want %d", len(body), len(species.Builtin()))
	}
	for _, s := range body {
		if s.Parameters == nil {
			t.Errorf("%s has no parameters", s.Name)
		}
	}
}

func TestGetSpecies(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := do(router, "GET", "/api/species/Silver%20Birch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var body models.SpeciesResponse
	decodeBody(t, rec, &body)
	if body.Name != "Betula pendula" {
		t.Errorf("Name = %q, want Betula pendula", body.Name)
	}

	rec = do(router, "GET", "/api/species/birc", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown species status = %d, want 404", rec.Code)
	}
	var errBody ErrorResponse
	decodeBody(t, rec, &errBody)
	if len(errBody.Suggestions) == 0 || errBody.Suggestions[0] != "Betula pendula" {
		t.Errorf("Suggestions = %v, want Betula pendula first", errBody.Suggestions)
	}
}

func TestGetCurve(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name       string
		target     string
		wantCode   int
		wantPoints int
	}{
		{"defaults", "/api/species/oak/curve", http.StatusOK, 151},
		{"custom range", "/api/species/oak/curve?max_age=20&step=5", http.StatusOK, 5},
		{"bad number", "/api/species/oak/curve?step=abc", http.StatusBadRequest, 0},
		{"zero step", "/api/species/oak/curve?step=0", http.StatusBadRequest, 0},
		{"too many points", "/api/species/oak/curve?max_age=1000&step=0.01", http.StatusBadRequest, 0},
		{"unknown species", "/api/species/baobab/curve", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, "GET", tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body models.CurveResponse
			decodeBody(t, rec, &body)
			if len(body.Points) != tt.wantPoints {
				t.Errorf("len(Points) = %d, want %d", len(body.Points), tt.wantPoints)
			}
		})
	}
}

func TestFitSpecies(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	points := `{"points":[{"age":0,"rate":1},{"age":10,"rate":2.386294361},{"age":20,"rate":3.197224577},{"age":30,"rate":3.772588722},{"age":40,"rate":4.218875825}]}`

	rec := do(router, "POST", "/api/species/ash/fit", points)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var first models.FitResponse
	decodeBody(t, rec, &first)
	if first.Species != "Fraxinus excelsior" || first.Cached {
		t.Errorf("first fit = %+v, want uncached ash fit", first)
	}

	rec = do(router, "POST", "/api/species/ash/fit", points)
	var second models.FitResponse
	decodeBody(t, rec, &second)
	if !second.Cached {
		t.Error("second fit was not served from cache")
	}

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
	}{
		{"malformed body", "/api/species/ash/fit", `{"points":`, http.StatusBadRequest},
		{"unknown field", "/api/species/ash/fit", `{"pts":[]}`, http.StatusBadRequest},
		{"no points", "/api/species/ash/fit", `{"points":[]}`, http.StatusBadRequest},
		{"same rate", "/api/species/ash/fit", `{"points":[{"age":1,"rate":2},{"age":5,"rate":2}]}`, http.StatusUnprocessableEntity},
		{"unknown species", "/api/species/baobab/fit", points, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, "POST", tt.target, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
		})
	}
}

func TestRunSimulation(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := do(router, "POST", "/api/simulations", `{"seed":7,"horizon_years":25,"area_ha":0.1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var body models.SimulationResponse
	decodeBody(t, rec, &body)
	if body.Seed != 7 || len(body.Years) != 25 {
		t.Errorf("seed = %d, years = %d, want 7 and 25", body.Seed, len(body.Years))
	}
	if body.Planting.Planted != 444 {
		t.Errorf("Planted = %d, want 444", body.Planting.Planted)
	}

	rec = do(router, "POST", "/api/simulations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	decodeBody(t, rec, &body)
	if len(body.Years) != 151 {
		t.Errorf("default years = %d, want 151", len(body.Years))
	}

	rec = do(router, "POST", "/api/simulations", `{"horizon_years":5,"mix":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty mix status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var empty models.SimulationResponse
	decodeBody(t, rec, &empty)
	if empty.Planting.Planted != 0 || len(empty.Years) != 5 {
		t.Errorf("empty mix planted = %d, years = %d, want 0 and 5", empty.Planting.Planted, len(empty.Years))
	}
}

func TestRunSimulation_Errors(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{"malformed", `{"seed":`, http.StatusBadRequest, "body"},
		{"horizon above limit", `{"horizon_years":1000}`, http.StatusBadRequest, "horizon_years"},
		{"both footprints", `{"footprint_ha":0.01,"footprint_m2":100}`, http.StatusBadRequest, "footprint"},
		{"negative price", `{"processing":{"credit_per_co2_tonne":-1}}`, http.StatusBadRequest, "processing"},
		{"zero rotation", `{"rotation_years":0}`, http.StatusUnprocessableEntity, "rotation_years"},
		{"fractions above one", `{"mix":[{"species":"oak","fraction":0.7},{"species":"ash","fraction":0.7}]}`, http.StatusUnprocessableEntity, "mix"},
		{"unknown species", `{"mix":[{"species":"alderr","fraction":1}]}`, http.StatusUnprocessableEntity, "mix[0].species"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, "POST", "/api/simulations", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			var body ErrorResponse
			decodeBody(t, rec, &body)
			if body.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", body.Field, tt.wantField)
			}
			if body.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", body.Code, tt.wantCode)
			}
		})
	}
}

func TestRunSimulation_UnknownSpeciesSuggests(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), "POST", "/api/simulations", `{"mix":[{"species":"alderr","fraction":1}]}`)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	if len(body.Suggestions) == 0 || body.Suggestions[0] != "Alnus glutinosa" {
		t.Errorf("Suggestions = %v, want Alnus glutinosa first", body.Suggestions)
	}
}

func TestRunSimulation_Limited(t *testing.T) {
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		})
	}
	router := newTestRouter(t, nil, blocked)

	if rec := do(router, "POST", "/api/simulations", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("simulation status = %d, want 429", rec.Code)
	}
	if rec := do(router, "GET", "/api/species", ""); rec.Code != http.StatusOK {
		t.Errorf("species status = %d, want 200", rec.Code)
	}
}

func TestDocs(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := do(router, "GET", "/api/docs/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var spec map[string]interface{}
	decodeBody(t, rec, &spec)
	paths, _ := spec["paths"].(map[string]interface{})
	for _, p := range []string{"/api/species", "/api/species/{name}/fit", "/api/simulations"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi paths missing %s", p)
		}
	}

	rec = do(router, "GET", "/api/docs", "")
	if !strings.Contains(rec.Body.String(), "SRF Carbon API Documentation") {
		t.Error("swagger page missing title")
	}
}

func TestHandleError_Cancelled(t *testing.T) {
	collector := metrics.NewCollector("srf_test", prometheus.NewRegistry())
	h := &Handler{logger: logging.Nop(), metrics: collector}

	tests := []struct {
		err  error
		want int
	}{
		{context.Canceled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.handleError(rec, httptest.NewRequest("POST", "/api/simulations", nil), "/api/simulations", tt.err)
		if rec.Code != tt.want {
			t.Errorf("handleError(%v) status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
