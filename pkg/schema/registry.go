// Package schema maintains the per-source identifier allow-list. Schemas
// are discovered on registration and on explicit refresh, never per-query;
// the query builder validates every user-supplied table and column name
// against this registry before any SQL is constructed.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// Registry caches discovered schemas keyed by source id.
type Registry struct {
	mu      sync.RWMutex
	schemas map[uuid.UUID]*models.SourceSchema
	pools   *datasource.PoolManager
	logger  *zap.Logger
}

// NewRegistry creates a schema registry backed by the pool manager.
func NewRegistry(pools *datasource.PoolManager, logger *zap.Logger) *Registry {
	return &Registry{
		schemas: make(map[uuid.UUID]*models.SourceSchema),
		pools:   pools,
		logger:  logger,
	}
}

// Refresh re-discovers the schema for one source and replaces the cached
// entry. Called on registration and on explicit refresh requests.
func (r *Registry) Refresh(ctx context.Context, sourceID uuid.UUID) (*models.SourceSchema, error) {
	discoverer, err := r.pools.SchemaDiscoverer(sourceID)
	if err != nil {
		return nil, err
	}

	tables, err := discoverer.DiscoverSchema(ctx)
	if err != nil {
		r.logger.Error("schema discovery failed",
			zap.String("source_id", sourceID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("discover schema for source %s: %w", sourceID, err)
	}

	byName := make(map[string]models.TableSchema, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	s := &models.SourceSchema{
		SourceID:    sourceID,
		Tables:      byName,
		RefreshedAt: time.Now(),
	}

	r.mu.Lock()
	r.schemas[sourceID] = s
	r.mu.Unlock()

	r.logger.Info("refreshed schema",
		zap.String("source_id", sourceID.String()),
		zap.Int("tables", len(byName)),
	)
	return s, nil
}

// Get returns the cached schema for a source.
func (r *Registry) Get(sourceID uuid.UUID) (*models.SourceSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[sourceID]
	if !ok {
		return nil, fmt.Errorf("schema for source %s: %w", sourceID, apperrors.ErrNotFound)
	}
	return s, nil
}

// Remove drops the cached schema for a source. Called on deregistration.
func (r *Registry) Remove(sourceID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, sourceID)
}

// Set replaces a cached schema directly. Used by tests and by callers that
// discovered a schema out of band.
func (r *Registry) Set(s *models.SourceSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.SourceID] = s
}
