package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"srf-carbon/internal/cache"
	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// SpeciesService serves the species catalog and curve fitting
type SpeciesService struct {
	registry *species.Registry
	repo     repository.SpeciesRepository
	fitCache cache.FitCache
	fitter   growth.Fitter
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewSpeciesService creates a new species service. repo and fitCache may be
// nil, in which case catalog persistence or fit caching is skipped.
func NewSpeciesService(registry *species.Registry, repo repository.SpeciesRepository, fitCache cache.FitCache, fitter growth.Fitter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SpeciesService {
	return &SpeciesService{
		registry: registry,
		repo:     repo,
		fitCache: fitCache,
		fitter:   fitter,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// FitHook reports registry fits through logs and metrics
func FitHook(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) species.FitHook {
	return func(name string, res *growth.FitResult) {
		metricsCollector.RecordFit("ok", res.Evaluations)
		logger.Info(context.Background(), "[FIT_COMPLETE] Growth curve fitted", logging.Fields{
			"species":     name,
			"scale":       res.Parameters.Scale,
			"rate":        res.Parameters.Rate,
			"offset":      res.Parameters.Offset,
			"shift":       res.Parameters.Shift,
			"iterations":  res.Iterations,
			"evaluations": res.Evaluations,
			"residual_ss": res.ResidualSS,
		})
	}
}

// LoadCatalog registers every stored species on top of the built-ins
func (s *SpeciesService) LoadCatalog(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	defs, err := s.repo.LoadDefinitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load species catalog: %w", err)
	}

	loaded := 0
	for _, def := range defs {
		if err := s.registry.Register(def); err != nil {
			s.logger.Warn(ctx, "[CATALOG_SKIP] Stored species rejected", logging.Fields{
				"species": def.Name,
				"error":   err.Error(),
			})
			continue
		}
		loaded++
	}

	s.logger.Info(ctx, "[CATALOG_LOADED] Species catalog loaded", logging.Fields{
		"stored": len(defs),
		"loaded": loaded,
	})
	return loaded, nil
}

// Model resolves a species to its growth model
func (s *SpeciesService) Model(name string) (*growth.Model, error) {
	return s.registry.Model(name)
}

// List returns every known species ordered by name
func (s *SpeciesService) List(ctx context.Context) []models.SpeciesResponse {
	defs := s.registry.Definitions()
	out := make([]models.SpeciesResponse, 0, len(defs))
	for _, def := range defs {
		m, err := s.Model(def.Name)
		if err != nil {
			s.logger.Warn(ctx, "[SPECIES_MODEL] Species has no usable curve", logging.Fields{
				"species": def.Name,
				"error":   err.Error(),
			})
		}
		out = append(out, models.NewSpeciesResponse(def, m))
	}
	return out
}

// Get returns one species by name or alias
func (s *SpeciesService) Get(ctx context.Context, name string) (*models.SpeciesResponse, error) {
	def, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	m, err := s.Model(def.Name)
	if err != nil {
		return nil, err
	}
	resp := models.NewSpeciesResponse(def, m)
	return &resp, nil
}

// Curve samples the MAI curve of a species from age 0 to maxAge
func (s *SpeciesService) Curve(ctx context.Context, name string, maxAge, step float64) (*models.CurveResponse, error) {
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	points, err := m.Curve(maxAge, step)
	if err != nil {
		return nil, err
	}
	return &models.CurveResponse{Species: m.Species(), Parameters: m.Parameters(), Points: points}, nil
}

// Fit fits a curve to req.Points for an existing species. When req.Store
// is set the points and curve replace the species' stored data.
func (s *SpeciesService) Fit(ctx context.Context, name string, req *models.FitRequest) (*models.FitResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	def, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	resp, err := s.fit(ctx, def.Name, def.Conversion(), req.Points)
	if err != nil {
		return nil, err
	}

	if req.Store {
		params := resp.Parameters
		def.Points = append([]growth.Point(nil), req.Points...)
		def.Parameters = &params
		if err := def.Validate(); err != nil {
			return nil, err
		}

		if s.repo != nil {
			rec, points := models.NewSpeciesRecord(def)
			rec.SetParameters(params, models.SourceFitted)
			if err := s.repo.UpsertSpecies(ctx, rec, points); err != nil {
				return nil, fmt.Errorf("failed to store fitted species: %w", err)
			}
		}
		if err := s.registry.Register(def); err != nil {
			return nil, err
		}
		resp.Stored = true
	}

	return resp, nil
}

// fit returns a curve that NewModel accepts for the species' conversion
// factor. Cached entries that no longer pass are refitted.
func (s *SpeciesService) fit(ctx context.Context, name string, conversion float64, points []growth.Point) (*models.FitResponse, error) {
	key := cache.Key(points, s.fitter.MaxEvaluations)

	if s.fitCache != nil {
		params, ok, err := s.fitCache.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.RecordCacheLookup("error")
			s.logger.Warn(ctx, "[FIT_CACHE] Cache lookup failed", logging.Fields{
				"species": name,
				"error":   err.Error(),
			})
		case ok:
			if _, err := growth.NewModel(name, params, conversion); err != nil {
				s.metrics.RecordCacheLookup("invalid")
				s.logger.Warn(ctx, "[FIT_CACHE] Cached curve rejected", logging.Fields{
					"species": name,
					"error":   err.Error(),
				})
				break
			}
			s.metrics.RecordCacheLookup("hit")
			return &models.FitResponse{Species: name, Parameters: params, Cached: true}, nil
		default:
			s.metrics.RecordCacheLookup("miss")
		}
	}

	start := time.Now()
	res, err := s.fitter.Fit(points)
	s.metrics.FitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordFit(fitOutcome(err), 0)
		s.logger.Warn(ctx, "[FIT_FAILED] Growth curve fit failed", logging.Fields{
			"species": name,
			"points":  len(points),
			"error":   err.Error(),
		})
		return nil, err
	}
	if _, err := growth.NewModel(name, res.Parameters, conversion); err != nil {
		s.metrics.RecordFit(fitOutcome(err), res.Evaluations)
		s.logger.Warn(ctx, "[FIT_FAILED] Fitted curve rejected", logging.Fields{
			"species": name,
			"points":  len(points),
			"error":   err.Error(),
		})
		return nil, err
	}
	s.metrics.RecordFit("ok", res.Evaluations)

	if s.fitCache != nil {
		if err := s.fitCache.Set(ctx, key, res.Parameters); err != nil {
			s.logger.Warn(ctx, "[FIT_CACHE] Cache store failed", logging.Fields{
				"species": name,
				"error":   err.Error(),
			})
		}
	}

	s.logger.Info(ctx, "[FIT_COMPLETE] Growth curve fitted", logging.Fields{
		"species":     name,
		"points":      len(points),
		"iterations":  res.Iterations,
		"evaluations": res.Evaluations,
		"residual_ss": res.ResidualSS,
	})

	return &models.FitResponse{
		Species:     name,
		Parameters:  res.Parameters,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		ResidualSS:  res.ResidualSS,
	}, nil
}

func fitOutcome(err error) string {
	switch {
	case errors.Is(err, growth.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, growth.ErrFitDivergence):
		return "divergence"
	case errors.Is(err, growth.ErrInvalidParameters):
		return "invalid_parameters"
	default:
		return "error"
	}
}
