package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/database"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// SpeciesRepository provides data access for the species catalog
type SpeciesRepository interface {
	UpsertSpecies(ctx context.Context, rec *models.SpeciesRecord, points []models.GrowthPointRecord) error
	GetSpecies(ctx context.Context, name string) (*models.SpeciesRecord, []models.GrowthPointRecord, error)
	ListSpecies(ctx context.Context) ([]*models.SpeciesRecord, error)
	LoadDefinitions(ctx context.Context) ([]species.Definition, error)
	UpdateParameters(ctx context.Context, name string, params growth.Parameters, source string) error
	HealthCheck(ctx context.Context) error
}

// speciesRepository implements SpeciesRepository
type speciesRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSpeciesRepository creates a new species repository
func NewSpeciesRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SpeciesRepository {
	return &speciesRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const speciesColumns = `
	id, name, common_name, aliases, conversion_factor,
	scale, rate, curve_offset, shift, parameter_source,
	created_at, updated_at`

// UpsertSpecies inserts or replaces a species together with its points
func (r *speciesRepository) UpsertSpecies(ctx context.Context, rec *models.SpeciesRecord, points []models.GrowthPointRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err := r.db.WithTx(ctx, "upsert_species", func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO species (
				name, common_name, aliases, conversion_factor,
				scale, rate, curve_offset, shift, parameter_source,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (name) DO UPDATE SET
				common_name = EXCLUDED.common_name,
				aliases = EXCLUDED.aliases,
				conversion_factor = EXCLUDED.conversion_factor,
				scale = EXCLUDED.scale,
				rate = EXCLUDED.rate,
				curve_offset = EXCLUDED.curve_offset,
				shift = EXCLUDED.shift,
				parameter_source = EXCLUDED.parameter_source,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at
		`,
			rec.Name,
			rec.CommonName,
			rec.Aliases,
			rec.ConversionFactor,
			rec.Scale,
			rec.Rate,
			rec.Offset,
			rec.Shift,
			rec.ParameterSource,
			rec.CreatedAt,
			rec.UpdatedAt,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert species: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM species_growth_points WHERE species_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("failed to clear growth points: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO species_growth_points (species_id, age_years, rate_m3)
			VALUES ($1, $2, $3)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range points {
			points[i].SpeciesID = rec.ID
			if _, err := stmt.ExecContext(ctx, rec.ID, points[i].AgeYears, points[i].RateM3); err != nil {
				return fmt.Errorf("failed to insert growth point: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_SPECIES] Species stored", logging.Fields{
		"species":          rec.Name,
		"points":           len(points),
		"parameter_source": rec.ParameterSource,
	})
	return nil
}

// GetSpecies retrieves a species and its growth points by Latin name
func (r *speciesRepository) GetSpecies(ctx context.Context, name string) (*models.SpeciesRecord, []models.GrowthPointRecord, error) {
	var rec models.SpeciesRecord
	err := r.db.GetContext(ctx, "get_species", &rec,
		`SELECT`+speciesColumns+` FROM species WHERE name = $1`, name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &NotFoundError{
			Resource: "species",
			ID:       name,
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get species: %w", err)
	}

	var points []models.GrowthPointRecord
	err = r.db.SelectContext(ctx, "get_growth_points", &points, `
		SELECT species_id, age_years, rate_m3
		FROM species_growth_points
		WHERE species_id = $1
		ORDER BY age_years
	`, rec.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get growth points: %w", err)
	}

	return &rec, points, nil
}

// ListSpecies retrieves every stored species ordered by name
func (r *speciesRepository) ListSpecies(ctx context.Context) ([]*models.SpeciesRecord, error) {
	var records []*models.SpeciesRecord
	err := r.db.SelectContext(ctx, "list_species", &records,
		`SELECT`+speciesColumns+` FROM species ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}
	return records, nil
}

// LoadDefinitions reads the whole catalog as registry definitions
func (r *speciesRepository) LoadDefinitions(ctx context.Context) ([]species.Definition, error) {
	records, err := r.ListSpecies(ctx)
	if err != nil {
		return nil, err
	}

	var points []models.GrowthPointRecord
	err = r.db.SelectContext(ctx, "list_growth_points", &points, `
		SELECT species_id, age_years, rate_m3
		FROM species_growth_points
		ORDER BY species_id, age_years
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list growth points: %w", err)
	}

	bySpecies := make(map[int64][]models.GrowthPointRecord, len(records))
	for _, p := range points {
		bySpecies[p.SpeciesID] = append(bySpecies[p.SpeciesID], p)
	}

	defs := make([]species.Definition, 0, len(records))
	for _, rec := range records {
		defs = append(defs, rec.Definition(bySpecies[rec.ID]))
	}
	return defs, nil
}

// UpdateParameters stores a curve for an existing species
func (r *speciesRepository) UpdateParameters(ctx context.Context, name string, params growth.Parameters, source string) error {
	result, err := r.db.ExecContext(ctx, "update_species_parameters", `
		UPDATE species
		SET scale = $2, rate = $3, curve_offset = $4, shift = $5,
			parameter_source = $6, updated_at = $7
		WHERE name = $1
	`, name, params.Scale, params.Rate, params.Offset, params.Shift, source, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update species parameters: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Resource: "species", ID: name}
	}
	return nil
}

// HealthCheck verifies database connectivity
func (r *speciesRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as a missing row will not appear on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}
