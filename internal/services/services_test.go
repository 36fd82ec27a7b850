package services

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"srf-carbon/internal/cache"
	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/revenue"
	"srf-carbon/internal/species"
	"srf-carbon/internal/woodland"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// fakeRepo is an in-memory SpeciesRepository
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*models.SpeciesRecord
	points  map[string][]models.GrowthPointRecord
	nextID  int64
	failOn  string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[string]*models.SpeciesRecord),
		points:  make(map[string][]models.GrowthPointRecord),
	}
}

func (f *fakeRepo) UpsertSpecies(_ context.Context, rec *models.SpeciesRecord, points []models.GrowthPointRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.Name == f.failOn {
		return errors.New("disk full")
	}
	if old, ok := f.records[rec.Name]; ok {
		rec.ID = old.ID
	} else {
		f.nextID++
		rec.ID = f.nextID
	}
	copied := *rec
	f.records[rec.Name] = &copied
	f.points[rec.Name] = append([]models.GrowthPointRecord(nil), points...)
	return nil
}

func (f *fakeRepo) GetSpecies(_ context.Context, name string) (*models.SpeciesRecord, []models.GrowthPointRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	if !ok {
		return nil, nil, &repository.NotFoundError{Resource: "species", ID: name}
	}
	return rec, f.points[name], nil
}

func (f *fakeRepo) ListSpecies(context.Context) ([]*models.SpeciesRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.SpeciesRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) LoadDefinitions(ctx context.Context) ([]species.Definition, error) {
	records, _ := f.ListSpecies(ctx)
	defs := make([]species.Definition, 0, len(records))
	for _, rec := range records {
		defs = append(defs, rec.Definition(f.points[rec.Name]))
	}
	return defs, nil
}

func (f *fakeRepo) UpdateParameters(_ context.Context, name string, params growth.Parameters, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	if !ok {
		return &repository.NotFoundError{Resource: "species", ID: name}
	}
	rec.SetParameters(params, source)
	return nil
}

func (f *fakeRepo) HealthCheck(context.Context) error { return nil }

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector("srf_test", prometheus.NewRegistry())
}

// exactPoints lie on 2*ln(0.1*age + 1) + 1.
func exactPoints() []growth.Point {
	var pts []growth.Point
	for age := 0.0; age <= 50; age += 10 {
		pts = append(pts, growth.Point{Age: age, Rate: 2*math.Log(0.1*age+1) + 1})
	}
	return pts
}

func ptr[T any](v T) *T { return &v }

func TestSimulationService_Run(t *testing.T) {
	svc := NewSimulationService(species.Default(), SimulationLimits{
		DefaultSeed: 42, MaxHorizon: 500, MaxTrees: 100000, Workers: 1,
	}, logging.Nop(), newTestMetrics())

	req := &models.SimulationRequest{HorizonYears: ptr(30)}
	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := uuid.Parse(resp.RunID); err != nil {
		t.Errorf("RunID = %q, want UUID", resp.RunID)
	}
	if resp.Seed != 42 {
		t.Errorf("Seed = %d, want default 42", resp.Seed)
	}
	if len(resp.Years) != 30 {
		t.Fatalf("len(Years) = %d, want 30", len(resp.Years))
	}
	if resp.Planting.Planted != 4444 {
		t.Errorf("Planting.Planted = %d, want 4444", resp.Planting.Planted)
	}
	if resp.Summary.Years != 30 {
		t.Errorf("Summary.Years = %d, want 30", resp.Summary.Years)
	}

	p := resp.Processing
	for _, y := range resp.Years {
		if math.Abs(y.NetIncome-p.NetIncome(y.Biomass)) > 1e-9 {
			t.Errorf("year %d net income = %v, want %v", y.Year, y.NetIncome, p.NetIncome(y.Biomass))
		}
	}

	again, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(resp.Years, again.Years) {
		t.Error("Run() with the same seed produced different years")
	}
	if resp.RunID == again.RunID {
		t.Error("Run() reused a run ID")
	}
}

func TestSimulationService_RunErrors(t *testing.T) {
	svc := NewSimulationService(species.Default(), SimulationLimits{
		DefaultSeed: 1, MaxHorizon: 200, MaxTrees: 10000, Workers: 2,
	}, logging.Nop(), newTestMetrics())

	tests := []struct {
		name       string
		req        *models.SimulationRequest
		wantErrIs  error
		validation bool
	}{
		{"horizon above limit", &models.SimulationRequest{HorizonYears: ptr(201)}, nil, true},
		{"too many trees", &models.SimulationRequest{AreaHa: ptr(10.0)}, nil, true},
		{"negative price", &models.SimulationRequest{Processing: &revenue.Processing{CreditPerCO2Tonne: -1}}, nil, true},
		{"negative rotation", &models.SimulationRequest{RotationYears: ptr(-5.0)}, woodland.ErrInvalidConfiguration, false},
		{
			name:      "unknown species",
			req:       &models.SimulationRequest{Mix: []woodland.MixEntry{{Species: "Quercus rubber", Fraction: 1}}},
			wantErrIs: woodland.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Run() error = nil, want error")
			}
			if tt.validation {
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Run() error = %v (%T), want *models.ValidationError", err, err)
				}
			}
			if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErrIs)
			}
		})
	}
}

func TestSimulationService_Cancelled(t *testing.T) {
	svc := NewSimulationService(species.Default(), SimulationLimits{MaxHorizon: 500, Workers: 1}, logging.Nop(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, &models.SimulationRequest{})
	if !IsCancellation(err) {
		t.Errorf("Run() error = %v, want cancellation", err)
	}
}

func TestSpeciesService_FitCaches(t *testing.T) {
	registry := species.Default()
	memCache := cache.NewMemoryCache(0)
	svc := NewSpeciesService(registry, nil, memCache, growth.Fitter{}, logging.Nop(), newTestMetrics())

	req := &models.FitRequest{Points: exactPoints()}
	first, err := svc.Fit(context.Background(), "oak", req)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if first.Cached {
		t.Error("first Fit() reported a cache hit")
	}
	if first.Species != "Quercus robur" {
		t.Errorf("Species = %q, want Quercus robur", first.Species)
	}
	if first.ResidualSS > 1e-6 {
		t.Errorf("ResidualSS = %v, want exact fit", first.ResidualSS)
	}

	second, err := svc.Fit(context.Background(), "Quercus robur", req)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !second.Cached {
		t.Error("second Fit() missed the cache")
	}
	if second.Parameters != first.Parameters {
		t.Errorf("cached parameters = %+v, want %+v", second.Parameters, first.Parameters)
	}
	if memCache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", memCache.Len())
	}
}

func TestSpeciesService_FitStores(t *testing.T) {
	registry := species.Default()
	repo := newFakeRepo()
	svc := NewSpeciesService(registry, repo, nil, growth.Fitter{}, logging.Nop(), newTestMetrics())

	resp, err := svc.Fit(context.Background(), "birch", &models.FitRequest{Points: exactPoints(), Store: true})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !resp.Stored {
		t.Error("Stored = false, want true")
	}

	rec, points, err := repo.GetSpecies(context.Background(), "Betula pendula")
	if err != nil {
		t.Fatalf("GetSpecies() error = %v", err)
	}
	if rec.ParameterSource != models.SourceFitted || len(points) != len(exactPoints()) {
		t.Errorf("stored record = %+v with %d points, want fitted with %d points", rec, len(points), len(exactPoints()))
	}

	m, err := registry.Model("birch")
	if err != nil {
		t.Fatalf("Model() error = %v", err)
	}
	if m.Parameters() != resp.Parameters {
		t.Errorf("registry parameters = %+v, want refitted %+v", m.Parameters(), resp.Parameters)
	}
}

// TestSpeciesService_FitKeepsCurveValid stores fits whose data would pull an
// unconstrained curve outside its domain near age 0. Whatever the fit
// returns, oak must keep a usable model and the default scenario must run.
func TestSpeciesService_FitKeepsCurveValid(t *testing.T) {
	tests := []struct {
		name   string
		points []growth.Point
	}{
		{name: "late start", points: []growth.Point{{Age: 10, Rate: 0}, {Age: 20, Rate: 5}, {Age: 40, Rate: 8}, {Age: 80, Rate: 10}}},
		{name: "declining", points: []growth.Point{{Age: 0, Rate: 10}, {Age: 10, Rate: 9}, {Age: 20, Rate: 7}, {Age: 30, Rate: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := species.Default()
			repo := newFakeRepo()
			ctx := context.Background()
			svc := NewSpeciesService(registry, repo, cache.NewMemoryCache(0), growth.Fitter{}, logging.Nop(), newTestMetrics())

			before, err := registry.Model("oak")
			if err != nil {
				t.Fatalf("Model() error = %v", err)
			}

			resp, err := svc.Fit(ctx, "oak", &models.FitRequest{Points: tt.points, Store: true})
			if err != nil {
				if !errors.Is(err, growth.ErrFitDivergence) && !errors.Is(err, growth.ErrInvalidParameters) {
					t.Fatalf("Fit() error = %v, want a fit divergence or invalid parameters", err)
				}
				if _, _, err := repo.GetSpecies(ctx, "Quercus robur"); err == nil {
					t.Error("failed fit was stored")
				}
				after, err := registry.Model("oak")
				if err != nil {
					t.Fatalf("Model() error = %v", err)
				}
				if after.Parameters() != before.Parameters() {
					t.Errorf("registry parameters = %+v, want unchanged %+v", after.Parameters(), before.Parameters())
				}
			} else if err := resp.Parameters.Validate(); err != nil {
				t.Fatalf("Fit() stored invalid parameters %+v: %v", resp.Parameters, err)
			}

			if _, err := svc.Get(ctx, "oak"); err != nil {
				t.Errorf("Get() error = %v", err)
			}
			sim := NewSimulationService(registry, SimulationLimits{
				DefaultSeed: 1, MaxHorizon: 500, MaxTrees: 100000, Workers: 1,
			}, logging.Nop(), newTestMetrics())
			if _, err := sim.Run(ctx, &models.SimulationRequest{HorizonYears: ptr(10)}); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func TestSpeciesService_RefitsInvalidCachedCurve(t *testing.T) {
	memCache := cache.NewMemoryCache(0)
	collector := newTestMetrics()
	svc := NewSpeciesService(species.Default(), nil, memCache, growth.Fitter{}, logging.Nop(), collector)
	ctx := context.Background()

	key := cache.Key(exactPoints(), 0)
	if err := memCache.Set(ctx, key, growth.Parameters{Scale: 1, Rate: 0.1, Offset: -1}); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Fit(ctx, "oak", &models.FitRequest{Points: exactPoints()})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if resp.Cached {
		t.Error("Fit() returned the invalid cached curve")
	}
	if err := resp.Parameters.Validate(); err != nil {
		t.Errorf("Fit() parameters %+v: %v", resp.Parameters, err)
	}

	cached, ok, err := memCache.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), want stored entry", ok, err)
	}
	if cached != resp.Parameters {
		t.Errorf("cache holds %+v, want refitted %+v", cached, resp.Parameters)
	}
	if got := testutil.ToFloat64(collector.CacheLookups.WithLabelValues("invalid")); got != 1 {
		t.Errorf("cache lookups{result=invalid} = %v, want 1", got)
	}
}

func TestSpeciesService_FitErrors(t *testing.T) {
	svc := NewSpeciesService(species.Default(), nil, nil, growth.Fitter{}, logging.Nop(), newTestMetrics())
	ctx := context.Background()

	_, err := svc.Fit(ctx, "oak", &models.FitRequest{Points: []growth.Point{{Age: 10, Rate: 1}, {Age: 10, Rate: 2}}})
	if !errors.Is(err, growth.ErrInsufficientData) {
		t.Errorf("Fit(same ages) error = %v, want ErrInsufficientData", err)
	}

	_, err = svc.Fit(ctx, "Nonexistus", &models.FitRequest{Points: exactPoints()})
	var notFound *species.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Fit(unknown) error = %v, want *species.NotFoundError", err)
	}

	_, err = svc.Fit(ctx, "oak", &models.FitRequest{})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Fit(no points) error = %v, want *models.ValidationError", err)
	}
}

func TestSpeciesService_CatalogAndQueries(t *testing.T) {
	repo := newFakeRepo()
	params := growth.Parameters{Scale: 2, Rate: 0.1, Offset: 1, Shift: 1}
	rec, points := models.NewSpeciesRecord(species.Definition{
		Name:       "Salix viminalis",
		Aliases:    []string{"osier"},
		Parameters: &params,
	})
	if err := repo.UpsertSpecies(context.Background(), rec, points); err != nil {
		t.Fatal(err)
	}

	registry := species.Default()
	svc := NewSpeciesService(registry, repo, nil, growth.Fitter{}, logging.Nop(), newTestMetrics())

	n, err := svc.LoadCatalog(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("LoadCatalog() = (%d, %v), want (1, nil)", n, err)
	}

	got, err := svc.Get(context.Background(), "osier")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Salix viminalis" || got.MAIAt0 == nil || *got.MAIAt0 != 1 {
		t.Errorf("Get() = %+v, want willow with MAI(0) = 1", got)
	}

	if list := svc.List(context.Background()); len(list) != len(species.Builtin())+1 {
		t.Errorf("len(List()) = %d, want %d", len(list), len(species.Builtin())+1)
	}

	curve, err := svc.Curve(context.Background(), "osier", 10, 5)
	if err != nil {
		t.Fatalf("Curve() error = %v", err)
	}
	if len(curve.Points) != 3 {
		t.Errorf("len(Curve().Points) = %d, want 3", len(curve.Points))
	}
}

func TestCatalogService_IngestDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"willow.toml": `
name = "Salix viminalis"
aliases = ["osier"]

[[points]]
age = 0.0
rate = 0.0

[[points]]
age = 2.0
rate = 6.0

[[points]]
age = 4.0
rate = 10.0

[[points]]
age = 8.0
rate = 12.0
`,
		"hazel.toml": `
name = "Corylus avellana"

[parameters]
scale = 2.0
rate = 0.1
offset = 1.0
shift = 1.0
`,
		"broken.toml": `name = `,
		"flat.toml": `
name = "Planus planus"

[[points]]
age = 1.0
rate = 3.0

[[points]]
age = 5.0
rate = 3.0
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	repo := newFakeRepo()
	svc := NewCatalogService(repo, growth.Fitter{}, logging.Nop(), newTestMetrics())

	result, err := svc.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if result.TotalFiles != 4 || result.Stored != 2 || result.Fitted != 1 || result.Failed != 2 {
		t.Errorf("result = %+v, want 4 files, 2 stored, 1 fitted, 2 failed", result)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", result.Errors)
	}

	rec, _, err := repo.GetSpecies(context.Background(), "Salix viminalis")
	if err != nil {
		t.Fatalf("GetSpecies() error = %v", err)
	}
	if rec.Parameters() == nil || rec.ParameterSource != models.SourceFitted {
		t.Errorf("willow record = %+v, want fitted parameters", rec)
	}
}

func TestCatalogService_IngestBuiltin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCatalogService(repo, growth.Fitter{}, logging.Nop(), newTestMetrics())

	result, err := svc.IngestBuiltin(context.Background())
	if err != nil {
		t.Fatalf("IngestBuiltin() error = %v", err)
	}
	if result.Stored != len(species.Builtin()) || result.Failed != 0 {
		t.Errorf("result = %+v, want all built-ins stored", result)
	}
}

func TestCatalogService_EmptyDirectory(t *testing.T) {
	svc := NewCatalogService(newFakeRepo(), growth.Fitter{}, logging.Nop(), newTestMetrics())
	if _, err := svc.IngestDirectory(context.Background(), t.TempDir()); err == nil {
		t.Error("IngestDirectory() on empty dir error = nil, want error")
	}
}
