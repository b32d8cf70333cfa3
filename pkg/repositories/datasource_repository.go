// Package repositories provides data access for the engine's own metadata
// store. Connection configs are stored as encrypted TEXT; encryption and
// decryption happen in the service layer, never here.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/database"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// DatasourceRepository defines data access for registered sources.
type DatasourceRepository interface {
	// Create inserts a new datasource. Returns ErrConflict if the name is taken.
	Create(ctx context.Context, ds *models.Datasource, encryptedConfig string) error

	// GetByID retrieves a datasource and its encrypted config.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Datasource, string, error)

	// GetByName retrieves a datasource by name.
	GetByName(ctx context.Context, name string) (*models.Datasource, string, error)

	// List retrieves all datasources with their encrypted configs.
	List(ctx context.Context) ([]*models.Datasource, []string, error)

	// Update replaces the mutable fields of a datasource.
	Update(ctx context.Context, id uuid.UUID, name, dsType, encryptedConfig string) error

	// UpdateStatus persists a health transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus) error

	// Delete removes a datasource by ID.
	Delete(ctx context.Context, id uuid.UUID) error
}

type datasourceRepository struct {
	db *database.DB
}

// NewDatasourceRepository creates a datasource repository backed by the
// metadata store.
func NewDatasourceRepository(db *database.DB) DatasourceRepository {
	return &datasourceRepository{db: db}
}

func (r *datasourceRepository) Create(ctx context.Context, ds *models.Datasource, encryptedConfig string) error {
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	if ds.Status == "" {
		ds.Status = models.StatusHealthy
	}

	query := `
		INSERT INTO engine_datasources (name, datasource_type, datasource_config, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		ds.Name,
		ds.DatasourceType,
		encryptedConfig,
		ds.Status,
		ds.CreatedAt,
		ds.UpdatedAt,
	).Scan(&ds.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: datasource %q already exists", apperrors.ErrConflict, ds.Name)
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}
	return nil
}

func (r *datasourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Datasource, string, error) {
	query := `
		SELECT id, name, datasource_type, datasource_config, status, created_at, updated_at
		FROM engine_datasources
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *datasourceRepository) GetByName(ctx context.Context, name string) (*models.Datasource, string, error) {
	query := `
		SELECT id, name, datasource_type, datasource_config, status, created_at, updated_at
		FROM engine_datasources
		WHERE name = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, name))
}

func (r *datasourceRepository) scanOne(row pgx.Row) (*models.Datasource, string, error) {
	var ds models.Datasource
	var encryptedConfig string

	err := row.Scan(&ds.ID, &ds.Name, &ds.DatasourceType, &encryptedConfig, &ds.Status, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get datasource: %w", err)
	}
	return &ds, encryptedConfig, nil
}

func (r *datasourceRepository) List(ctx context.Context) ([]*models.Datasource, []string, error) {
	query := `
		SELECT id, name, datasource_type, datasource_config, status, created_at, updated_at
		FROM engine_datasources
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Datasource
	var configs []string
	for rows.Next() {
		var ds models.Datasource
		var encryptedConfig string
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.DatasourceType, &encryptedConfig, &ds.Status, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan datasource: %w", err)
		}
		sources = append(sources, &ds)
		configs = append(configs, encryptedConfig)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate datasources: %w", err)
	}
	return sources, configs, nil
}

func (r *datasourceRepository) Update(ctx context.Context, id uuid.UUID, name, dsType, encryptedConfig string) error {
	query := `
		UPDATE engine_datasources
		SET name = $2, datasource_type = $3, datasource_config = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, name, dsType, encryptedConfig, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: datasource %q already exists", apperrors.ErrConflict, name)
		}
		return fmt.Errorf("failed to update datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus) error {
	query := `
		UPDATE engine_datasources
		SET status = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update datasource status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM engine_datasources WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
