package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// CatalogService loads species catalog files into the repository
type CatalogService struct {
	repo    repository.SpeciesRepository
	fitter  growth.Fitter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// CatalogResult contains catalog ingestion statistics
type CatalogResult struct {
	TotalFiles int
	Stored     int
	Fitted     int
	Failed     int
	Duration   time.Duration
	Errors     []string
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.SpeciesRepository, fitter growth.Fitter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CatalogService {
	return &CatalogService{
		repo:    repo,
		fitter:  fitter,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestBuiltin stores the built-in reference species
func (s *CatalogService) IngestBuiltin(ctx context.Context) (*CatalogResult, error) {
	start := time.Now()
	result := &CatalogResult{Errors: make([]string, 0)}

	for _, def := range species.Builtin() {
		s.ingestDefinition(ctx, def, "builtin", result)
	}

	result.Duration = time.Since(start)
	s.logComplete(ctx, result)
	return result, nil
}

// IngestDirectory stores every *.toml species file found in dir. Files
// that fail to parse, fit or store are reported and skipped.
func (s *CatalogService) IngestDirectory(ctx context.Context, dir string) (*CatalogResult, error) {
	start := time.Now()

	s.logger.Info(ctx, "[CATALOG_START] Starting catalog ingestion", logging.Fields{
		"catalog_dir": dir,
		"stage":       "INITIALIZATION",
	})

	files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no species files found in %s", dir)
	}

	result := &CatalogResult{TotalFiles: len(files), Errors: make([]string, 0)}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		def, err := species.LoadFile(path)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to parse %s: %v", path, err))
			s.metrics.RecordCatalogError("parse_error")
			s.logger.Error(ctx, "[CATALOG_FILE_ERROR] Species file rejected", logging.Fields{
				"file_path": path,
				"stage":     "FILE_PROCESSING",
			}, err)
			continue
		}

		s.ingestDefinition(ctx, def, path, result)
	}

	result.Duration = time.Since(start)
	s.logComplete(ctx, result)
	return result, nil
}

func (s *CatalogService) ingestDefinition(ctx context.Context, def species.Definition, origin string, result *CatalogResult) {
	rec, points := models.NewSpeciesRecord(def)

	if def.Parameters == nil {
		res, err := s.fitter.Fit(def.Points)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to fit %s: %v", def.Name, err))
			s.metrics.RecordFit(fitOutcome(err), 0)
			s.metrics.RecordCatalogError("fit_error")
			s.logger.Error(ctx, "[CATALOG_FIT_ERROR] Growth curve fit failed", logging.Fields{
				"species": def.Name,
				"origin":  origin,
			}, err)
			return
		}
		if _, err := growth.NewModel(def.Name, res.Parameters, def.Conversion()); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("invalid fitted parameters for %s: %v", def.Name, err))
			s.metrics.RecordFit(fitOutcome(err), res.Evaluations)
			s.metrics.RecordCatalogError("parameter_error")
			return
		}
		s.metrics.RecordFit("ok", res.Evaluations)
		rec.SetParameters(res.Parameters, models.SourceFitted)
		result.Fitted++
	} else if _, err := growth.NewModel(def.Name, *def.Parameters, def.Conversion()); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("invalid parameters for %s: %v", def.Name, err))
		s.metrics.RecordCatalogError("parameter_error")
		return
	}

	if err := s.repo.UpsertSpecies(ctx, rec, points); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("failed to store %s: %v", def.Name, err))
		s.metrics.RecordCatalogError("store_error")
		s.logger.Error(ctx, "[CATALOG_STORE_ERROR] Species not stored", logging.Fields{
			"species": def.Name,
			"origin":  origin,
		}, err)
		return
	}

	result.Stored++
	s.metrics.CatalogSpeciesTotal.Inc()
	s.logger.Info(ctx, "[CATALOG_SPECIES_STORED] Species stored", logging.Fields{
		"species":          def.Name,
		"origin":           origin,
		"points":           len(points),
		"parameter_source": rec.ParameterSource,
	})
}

func (s *CatalogService) logComplete(ctx context.Context, result *CatalogResult) {
	s.logger.Info(ctx, "[CATALOG_COMPLETE] Catalog ingestion completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"stored":           result.Stored,
		"fitted":           result.Fitted,
		"failed":           result.Failed,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
		"stage":            "COMPLETE",
	})
}
