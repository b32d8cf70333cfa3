package search

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
)

func newExecutorPool(t *testing.T, sourceID uuid.UUID, respond respondFunc) *datasource.PoolManager {
	t.Helper()

	pools := datasource.NewPoolManager(config.DatasourceConfig{
		PoolMaxConns:         2,
		PoolMaxIdle:          2,
		AcquireTimeoutMs:     500,
		HealthWindowSize:     8,
		ProbeIntervalSeconds: 3600,
	}, zap.NewNop())
	t.Cleanup(pools.Shutdown)

	adapterType := "exec-stub-" + sourceID.String()
	connector := &queryConnector{respond: respond}
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Type: adapterType, DisplayName: "Stub"},
		OpenPool: func(map[string]any) (*sql.DB, error) {
			return sql.OpenDB(connector), nil
		},
	})
	require.NoError(t, pools.RegisterSource(context.Background(), sourceID, adapterType, nil))
	return pools
}

func executorStatement(sourceID uuid.UUID) Statement {
	return Statement{
		SourceID:     sourceID,
		Table:        "articles",
		MatchColumns: []string{"title", "body"},
		PKColumn:     "id",
		SQL:          "SELECT 1",
	}
}

func TestExecuteRetriesStatementTimeoutOnce(t *testing.T) {
	sourceID := uuid.New()

	var calls atomic.Int32
	pools := newExecutorPool(t, sourceID, func(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
		if calls.Add(1) == 1 {
			// First attempt runs into the per-statement timeout.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return articleRows(1.0), nil
	})

	e := NewExecutor(pools, 50*time.Millisecond, zap.NewNop())

	rows, err := e.Execute(context.Background(), executorStatement(sourceID))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecuteDoesNotRetryExpiredCallerDeadline(t *testing.T) {
	sourceID := uuid.New()

	var calls atomic.Int32
	pools := newExecutorPool(t, sourceID, func(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	e := NewExecutor(pools, 5*time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, executorStatement(sourceID))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteDoesNotRetryQueryErrors(t *testing.T) {
	sourceID := uuid.New()

	var calls atomic.Int32
	pools := newExecutorPool(t, sourceID, func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		calls.Add(1)
		return nil, errors.New("Error 1064: You have an error in your SQL syntax")
	})

	e := NewExecutor(pools, time.Second, zap.NewNop())

	_, err := e.Execute(context.Background(), executorStatement(sourceID))
	require.Error(t, err)

	var srcErr *apperrors.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, apperrors.StageExecute, srcErr.Stage)
	assert.Equal(t, int32(1), calls.Load())
}
