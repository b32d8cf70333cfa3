package search

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/metrics"
	"github.com/fedsearch-io/fedsearch-engine/pkg/retry"
)

// Executor runs one statement against one source's pool with a per-execution
// timeout. A transient connection failure triggers exactly one retry with a
// fresh acquisition; query errors surface immediately.
type Executor struct {
	pools   *datasource.PoolManager
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutor creates a source executor. timeout bounds each statement
// execution independently of the orchestrator's overall deadline.
func NewExecutor(pools *datasource.PoolManager, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		pools:   pools,
		timeout: timeout,
		logger:  logger.Named("executor"),
	}
}

// Execute runs the statement and returns the raw rows as column-name maps.
// Errors are wrapped as SourceError with the stage that failed.
func (e *Executor) Execute(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	rows, err := e.executeOnce(ctx, stmt)
	if err == nil {
		return rows, nil
	}

	var srcErr *apperrors.SourceError
	if errors.As(err, &srcErr) && isTransient(ctx, srcErr.Err) {
		e.logger.Debug("retrying statement after transient error",
			zap.String("source_id", stmt.SourceID.String()),
			zap.String("table", stmt.Table),
			zap.String("error", logging.SanitizeError(srcErr.Err)))
		return e.executeOnce(ctx, stmt)
	}
	return nil, err
}

// isTransient reports whether a failure warrants the single retry with a
// fresh acquisition. Pool exhaustion and connection-level faults qualify;
// query errors never do. A per-statement timeout surfaces as
// DeadlineExceeded from the execution context, so it only counts when the
// caller's own context is still live, otherwise the overall deadline
// elapsed and a retry could not finish either.
func isTransient(ctx context.Context, err error) bool {
	if errors.Is(err, apperrors.ErrPoolExhausted) || retry.IsRetryable(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

func (e *Executor) executeOnce(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	conn, err := e.pools.Acquire(ctx, stmt.SourceID)
	if err != nil {
		metrics.SourceFailures.WithLabelValues(string(apperrors.StageAcquire)).Inc()
		return nil, &apperrors.SourceError{
			SourceID: stmt.SourceID.String(),
			Table:    stmt.Table,
			Stage:    apperrors.StageAcquire,
			Err:      err,
		}
	}
	defer e.pools.Release(conn)

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.queryRows(execCtx, conn, stmt)
	elapsed := time.Since(start)
	e.pools.Observe(stmt.SourceID, elapsed, err != nil)

	if err != nil {
		metrics.SourceFailures.WithLabelValues(string(apperrors.StageExecute)).Inc()
		e.logger.Warn("statement execution failed",
			zap.String("source_id", stmt.SourceID.String()),
			zap.String("table", stmt.Table),
			zap.Duration("elapsed", elapsed),
			zap.String("query", logging.SanitizeStatement(stmt.SQL)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &apperrors.SourceError{
			SourceID: stmt.SourceID.String(),
			Table:    stmt.Table,
			Stage:    apperrors.StageExecute,
			Err:      err,
		}
	}

	e.logger.Debug("statement executed",
		zap.String("source_id", stmt.SourceID.String()),
		zap.String("table", stmt.Table),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed))
	return rows, nil
}

func (e *Executor) queryRows(ctx context.Context, conn *sql.Conn, stmt Statement) ([]map[string]any, error) {
	rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			// The MySQL driver returns text columns as []byte.
			if b, ok := val.([]byte); ok {
				if isTextType(columnTypes[i].DatabaseTypeName()) {
					val = string(b)
				}
			}
			rowMap[col] = val
		}
		result = append(result, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isTextType(databaseType string) bool {
	switch databaseType {
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT",
		"JSON", "ENUM", "SET", "DECIMAL", "DATE", "DATETIME", "TIMESTAMP", "TIME":
		return true
	}
	return false
}
