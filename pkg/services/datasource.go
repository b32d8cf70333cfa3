// Package services holds the business logic between the HTTP handlers and
// the storage, pool, and cache layers.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/cache"
	"github.com/fedsearch-io/fedsearch-engine/pkg/crypto"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
	"github.com/fedsearch-io/fedsearch-engine/pkg/repositories"
	"github.com/fedsearch-io/fedsearch-engine/pkg/schema"
)

// DatasourceService manages the lifecycle of registered sources: encrypted
// persistence, pool creation and teardown, schema discovery, and cache
// invalidation when a source changes.
type DatasourceService struct {
	repo      repositories.DatasourceRepository
	encryptor *crypto.Encryptor
	pools     *datasource.PoolManager
	schemas   *schema.Registry
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewDatasourceService wires the datasource lifecycle service.
func NewDatasourceService(
	repo repositories.DatasourceRepository,
	encryptor *crypto.Encryptor,
	pools *datasource.PoolManager,
	schemas *schema.Registry,
	responseCache *cache.Cache,
	logger *zap.Logger,
) *DatasourceService {
	return &DatasourceService{
		repo:      repo,
		encryptor: encryptor,
		pools:     pools,
		schemas:   schemas,
		cache:     responseCache,
		logger:    logger.Named("datasource-service"),
	}
}

// Register validates connectivity, persists the source with an encrypted
// config, builds its pool, and discovers its schema. Any step failing rolls
// the registration back so no half-registered source remains.
func (s *DatasourceService) Register(ctx context.Context, name, dsType string, dsConfig map[string]any) (*models.Datasource, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if !datasource.IsRegistered(dsType) {
		return nil, fmt.Errorf("%w: unsupported datasource type %q", apperrors.ErrValidation, dsType)
	}

	if err := s.testConnection(ctx, dsType, dsConfig); err != nil {
		return nil, fmt.Errorf("%w: connection test failed: %v", apperrors.ErrValidation, err)
	}

	encryptedConfig, err := s.encryptConfig(dsConfig)
	if err != nil {
		return nil, err
	}

	ds := &models.Datasource{
		Name:           name,
		DatasourceType: dsType,
		Status:         models.StatusHealthy,
	}
	if err := s.repo.Create(ctx, ds, encryptedConfig); err != nil {
		return nil, err
	}

	if err := s.pools.RegisterSource(ctx, ds.ID, dsType, dsConfig); err != nil {
		if delErr := s.repo.Delete(ctx, ds.ID); delErr != nil {
			s.logger.Error("failed to roll back datasource row after pool failure",
				zap.String("source_id", ds.ID.String()),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := s.schemas.Refresh(ctx, ds.ID); err != nil {
		s.pools.DeregisterSource(ds.ID)
		if delErr := s.repo.Delete(ctx, ds.ID); delErr != nil {
			s.logger.Error("failed to roll back datasource row after schema failure",
				zap.String("source_id", ds.ID.String()),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to discover schema: %w", err)
	}

	s.logger.Info("registered datasource",
		zap.String("source_id", ds.ID.String()),
		zap.String("name", name),
		zap.String("type", dsType))
	return ds, nil
}

// Get returns a datasource without its connection config.
func (s *DatasourceService) Get(ctx context.Context, id uuid.UUID) (*models.Datasource, error) {
	ds, _, err := s.repo.GetByID(ctx, id)
	return ds, err
}

// List returns all registered datasources without their connection configs.
func (s *DatasourceService) List(ctx context.Context) ([]*models.Datasource, error) {
	sources, _, err := s.repo.List(ctx)
	return sources, err
}

// Update replaces a source's config, rebuilds its pool, re-discovers its
// schema, and invalidates every cached response that references it.
func (s *DatasourceService) Update(ctx context.Context, id uuid.UUID, name string, dsConfig map[string]any) (*models.Datasource, error) {
	existing, encryptedConfig, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = existing.Name
	}
	if dsConfig == nil {
		dsConfig, err = s.decryptConfig(encryptedConfig)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.testConnection(ctx, existing.DatasourceType, dsConfig); err != nil {
			return nil, fmt.Errorf("%w: connection test failed: %v", apperrors.ErrValidation, err)
		}
		encryptedConfig, err = s.encryptConfig(dsConfig)
		if err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, id, name, existing.DatasourceType, encryptedConfig); err != nil {
		return nil, err
	}

	// Rebuild the pool against the new config.
	s.pools.DeregisterSource(id)
	if err := s.pools.RegisterSource(ctx, id, existing.DatasourceType, dsConfig); err != nil {
		return nil, fmt.Errorf("failed to rebuild connection pool: %w", err)
	}
	if _, err := s.schemas.Refresh(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to refresh schema: %w", err)
	}
	s.invalidateCache(ctx, id)

	return s.Get(ctx, id)
}

// Remove deletes a source and cascades pool teardown, schema removal, and
// cache invalidation.
func (s *DatasourceService) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.pools.DeregisterSource(id)
	s.schemas.Remove(id)
	s.invalidateCache(ctx, id)

	s.logger.Info("removed datasource", zap.String("source_id", id.String()))
	return nil
}

// TestConnection verifies reachability with the supplied config without
// persisting anything.
func (s *DatasourceService) TestConnection(ctx context.Context, dsType string, dsConfig map[string]any) error {
	if !datasource.IsRegistered(dsType) {
		return fmt.Errorf("%w: unsupported datasource type %q", apperrors.ErrValidation, dsType)
	}
	return s.testConnection(ctx, dsType, dsConfig)
}

// RefreshSchema re-discovers a source's schema and invalidates its cached
// responses, for callers that know the source's tables changed.
func (s *DatasourceService) RefreshSchema(ctx context.Context, id uuid.UUID) (*models.SourceSchema, error) {
	refreshed, err := s.schemas.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, id)
	return refreshed, nil
}

// Health runs an active health check and persists the resulting status.
func (s *DatasourceService) Health(ctx context.Context, id uuid.UUID) (models.Health, error) {
	health, err := s.pools.HealthCheck(ctx, id)
	if err != nil {
		return models.Health{}, err
	}
	if err := s.repo.UpdateStatus(ctx, id, health.Status); err != nil {
		s.logger.Warn("failed to persist datasource status",
			zap.String("source_id", id.String()),
			zap.Error(err))
	}
	return health, nil
}

// RestoreAll rebuilds pools and schemas for every persisted source at
// startup. A source that fails to restore is logged and skipped; it stays
// registered and the probe loop will pick it up if it recovers.
func (s *DatasourceService) RestoreAll(ctx context.Context) error {
	sources, configs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasources: %w", err)
	}

	for i, ds := range sources {
		dsConfig, err := s.decryptConfig(configs[i])
		if err != nil {
			s.logger.Error("failed to decrypt datasource config, skipping",
				zap.String("source_id", ds.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.pools.RegisterSource(ctx, ds.ID, ds.DatasourceType, dsConfig); err != nil {
			s.logger.Warn("failed to restore datasource pool, skipping",
				zap.String("source_id", ds.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		if _, err := s.schemas.Refresh(ctx, ds.ID); err != nil {
			s.logger.Warn("failed to restore datasource schema",
				zap.String("source_id", ds.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
		}
	}

	s.logger.Info("restored datasources", zap.Int("count", len(sources)))
	return nil
}

func (s *DatasourceService) testConnection(ctx context.Context, dsType string, dsConfig map[string]any) error {
	tester, err := datasource.NewTester(ctx, dsType, dsConfig)
	if err != nil {
		return err
	}
	defer tester.Close()
	return tester.TestConnection(ctx)
}

func (s *DatasourceService) encryptConfig(dsConfig map[string]any) (string, error) {
	raw, err := json.Marshal(dsConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	encrypted, err := s.encryptor.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt config: %w", err)
	}
	return encrypted, nil
}

func (s *DatasourceService) decryptConfig(encryptedConfig string) (map[string]any, error) {
	raw, err := s.encryptor.Decrypt(encryptedConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config: %w", err)
	}
	var dsConfig map[string]any
	if err := json.Unmarshal([]byte(raw), &dsConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return dsConfig, nil
}

func (s *DatasourceService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if _, err := s.cache.InvalidateSource(ctx, id); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String("source_id", id.String()),
			zap.Error(err))
	}
}
