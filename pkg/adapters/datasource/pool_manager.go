package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/metrics"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
	"github.com/fedsearch-io/fedsearch-engine/pkg/retry"
)

// PoolManager owns one bounded connection pool per registered source.
// Pools are created on registration with decrypted credentials (decryption
// happens exactly once, in the service layer, before config reaches here)
// and torn down on removal. A background probe re-pings unhealthy sources
// at a fixed interval.
type PoolManager struct {
	mu       sync.RWMutex
	pools    map[uuid.UUID]*managedPool
	cfg      config.DatasourceConfig
	logger   *zap.Logger
	stopChan chan struct{}
	stopped  bool
}

type managedPool struct {
	db      *sql.DB
	dsType  string
	tracker *HealthTracker
}

// NewPoolManager creates a pool manager and starts its health probe
// goroutine, which runs until Shutdown.
func NewPoolManager(cfg config.DatasourceConfig, logger *zap.Logger) *PoolManager {
	m := &PoolManager{
		pools:    make(map[uuid.UUID]*managedPool),
		cfg:      withDefaults(cfg),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	go m.probeLoop()
	return m
}

func withDefaults(cfg config.DatasourceConfig) config.DatasourceConfig {
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = 10
	}
	if cfg.PoolMaxIdle <= 0 {
		cfg.PoolMaxIdle = 2
	}
	if cfg.AcquireTimeoutMs <= 0 {
		cfg.AcquireTimeoutMs = 3000
	}
	if cfg.ConnMaxLifetimeMinutes <= 0 {
		cfg.ConnMaxLifetimeMinutes = 30
	}
	if cfg.ConnMaxIdleMinutes <= 0 {
		cfg.ConnMaxIdleMinutes = 5
	}
	if cfg.HealthWindowSize <= 0 {
		cfg.HealthWindowSize = 20
	}
	if cfg.ProbeIntervalSeconds <= 0 {
		cfg.ProbeIntervalSeconds = 30
	}
	return cfg
}

// RegisterSource builds the pool for a source from its decrypted config and
// verifies it with an initial ping. Construction fails closed: a ping or
// decryption failure leaves no partial pool behind.
func (m *PoolManager) RegisterSource(ctx context.Context, sourceID uuid.UUID, dsType string, dsConfig map[string]any) error {
	reg, ok := lookup(dsType)
	if !ok {
		return fmt.Errorf("unsupported datasource type: %s", dsType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("pool manager is shut down")
	}
	if _, exists := m.pools[sourceID]; exists {
		return fmt.Errorf("source %s: %w", sourceID, apperrors.ErrConflict)
	}

	db, err := reg.OpenPool(dsConfig)
	if err != nil {
		m.logger.Error("failed to open pool",
			zap.String("source_id", sourceID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return fmt.Errorf("open pool for source %s: %w", sourceID, err)
	}

	db.SetMaxOpenConns(m.cfg.PoolMaxConns)
	db.SetMaxIdleConns(m.cfg.PoolMaxIdle)
	db.SetConnMaxLifetime(time.Duration(m.cfg.ConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(m.cfg.ConnMaxIdleMinutes) * time.Minute)

	// Initial ping with retry for transient startup failures.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := retry.Do(pingCtx, retry.DefaultConfig(), func() error {
		return db.PingContext(pingCtx)
	}); err != nil {
		db.Close()
		m.logger.Error("initial ping failed, pool not created",
			zap.String("source_id", sourceID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return fmt.Errorf("initial ping for source %s: %w", sourceID, err)
	}

	m.pools[sourceID] = &managedPool{
		db:      db,
		dsType:  dsType,
		tracker: NewHealthTracker(m.cfg.HealthWindowSize),
	}
	metrics.RegisteredPools.Inc()

	m.logger.Info("created connection pool",
		zap.String("source_id", sourceID.String()),
		zap.String("type", dsType),
		zap.Int("max_conns", m.cfg.PoolMaxConns),
	)
	return nil
}

// DeregisterSource tears down a source's pool. Idempotent.
func (m *PoolManager) DeregisterSource(sourceID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pool, exists := m.pools[sourceID]; exists {
		pool.db.Close()
		delete(m.pools, sourceID)
		metrics.RegisteredPools.Dec()
		m.logger.Info("removed connection pool",
			zap.String("source_id", sourceID.String()),
		)
	}
}

// Acquire checks out one connection from a source's pool, blocking up to
// the configured acquire timeout before failing with ErrPoolExhausted.
// Callers must Release the connection when done; a cancelled caller context
// releases it back to the pool rather than leaking it.
func (m *PoolManager) Acquire(ctx context.Context, sourceID uuid.UUID) (*sql.Conn, error) {
	m.mu.RLock()
	pool, exists := m.pools[sourceID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout())
	defer cancel()

	conn, err := pool.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrPoolExhausted)
		}
		return nil, fmt.Errorf("acquire connection for source %s: %w", sourceID, err)
	}
	return conn, nil
}

// Release returns a connection to its pool.
func (m *PoolManager) Release(conn *sql.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

// Observe feeds one execution outcome into a source's health window.
// Unknown sources are ignored.
func (m *PoolManager) Observe(sourceID uuid.UUID, latency time.Duration, failed bool) {
	m.mu.RLock()
	pool, exists := m.pools[sourceID]
	m.mu.RUnlock()

	if exists {
		pool.tracker.Observe(latency, failed)
	}
}

// Health returns the current health grade for a source.
func (m *PoolManager) Health(sourceID uuid.UUID) (models.Health, error) {
	m.mu.RLock()
	pool, exists := m.pools[sourceID]
	m.mu.RUnlock()

	if !exists {
		return models.Health{}, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}
	return pool.tracker.Health(), nil
}

// HealthCheck actively pings a source, records the observation, and
// returns the updated grade.
func (m *PoolManager) HealthCheck(ctx context.Context, sourceID uuid.UUID) (models.Health, error) {
	m.mu.RLock()
	pool, exists := m.pools[sourceID]
	m.mu.RUnlock()

	if !exists {
		return models.Health{}, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}

	start := time.Now()
	err := pool.db.PingContext(ctx)
	pool.tracker.Observe(time.Since(start), err != nil)
	if err != nil {
		m.logger.Warn("health check ping failed",
			zap.String("source_id", sourceID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	return pool.tracker.Health(), nil
}

// SchemaDiscoverer returns a discoverer bound to the source's own pool,
// keeping raw connections inside this package.
func (m *PoolManager) SchemaDiscoverer(sourceID uuid.UUID) (SchemaDiscoverer, error) {
	m.mu.RLock()
	pool, exists := m.pools[sourceID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}
	reg, ok := lookup(pool.dsType)
	if !ok || reg.NewSchemaDiscoverer == nil {
		return nil, fmt.Errorf("schema discovery not supported for type %s", pool.dsType)
	}
	return reg.NewSchemaDiscoverer(pool.db), nil
}

// Registered returns the ids of all sources with live pools.
func (m *PoolManager) Registered() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	return ids
}

// probeLoop re-pings unhealthy sources at a fixed interval so they can
// rejoin fan-out after recovery.
func (m *PoolManager) probeLoop() {
	ticker := time.NewTicker(m.cfg.ProbeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probeUnhealthy()
		case <-m.stopChan:
			return
		}
	}
}

func (m *PoolManager) probeUnhealthy() {
	m.mu.RLock()
	candidates := make(map[uuid.UUID]*managedPool)
	for id, pool := range m.pools {
		if pool.tracker.Health().Status == models.StatusUnhealthy {
			candidates[id] = pool
		}
	}
	m.mu.RUnlock()

	for id, pool := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		start := time.Now()
		err := pool.db.PingContext(ctx)
		cancel()

		if err == nil {
			// Recovery: clear the window so stale failures stop dragging
			// the grade down.
			pool.tracker.Reset()
			pool.tracker.Observe(time.Since(start), false)
			m.logger.Info("source recovered",
				zap.String("source_id", id.String()),
			)
		} else {
			pool.tracker.Observe(time.Since(start), true)
			m.logger.Debug("probe still failing",
				zap.String("source_id", id.String()),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
	}
}

// Shutdown closes all pools and stops the probe goroutine. Idempotent.
func (m *PoolManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopChan)

	for id, pool := range m.pools {
		pool.db.Close()
		delete(m.pools, id)
		metrics.RegisteredPools.Dec()
	}
	m.logger.Info("pool manager shut down")
}
