package search

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/ai"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/cache"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
	"github.com/fedsearch-io/fedsearch-engine/pkg/schema"
)

// In-memory driver that answers full-text statements with canned rows, so
// orchestrator tests exercise the real pool and executor without a server.

type respondFunc func(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)

type queryConnector struct{ respond respondFunc }

func (c *queryConnector) Connect(context.Context) (driver.Conn, error) {
	return &queryConn{respond: c.respond}, nil
}

func (c *queryConnector) Driver() driver.Driver { return queryDriver{} }

type queryDriver struct{}

func (queryDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use connector") }

type queryConn struct{ respond respondFunc }

func (c *queryConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *queryConn) Close() error                        { return nil }
func (c *queryConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }
func (c *queryConn) Ping(context.Context) error          { return nil }

func (c *queryConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.respond(ctx, query, args)
}

type stubRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func articleRows(scores ...float64) driver.Rows {
	rows := make([][]driver.Value, len(scores))
	for i, s := range scores {
		rows[i] = []driver.Value{
			int64(i + 1),
			fmt.Sprintf("title %d", i+1),
			"body about mysql performance",
			s,
		}
	}
	return &stubRows{
		columns: []string{"id", "title", "body", "_fedsearch_score"},
		rows:    rows,
	}
}

func articleSchema(sourceID uuid.UUID) *models.SourceSchema {
	return &models.SourceSchema{
		SourceID: sourceID,
		Tables: map[string]models.TableSchema{
			"articles": {
				Name: "articles",
				Columns: []models.ColumnSchema{
					{Name: "id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "title", DataType: "varchar"},
					{Name: "body", DataType: "text"},
				},
				FullTextIndexes: []models.FullTextIndex{
					{Name: "ft_title_body", Columns: []string{"title", "body"}},
				},
			},
		},
		RefreshedAt: time.Now(),
	}
}

type harness struct {
	pools   *datasource.PoolManager
	schemas *schema.Registry
	orch    *Orchestrator
}

func newHarness(t *testing.T, sources map[uuid.UUID]respondFunc, optimizer ai.QueryOptimizer) *harness {
	t.Helper()

	pools := datasource.NewPoolManager(config.DatasourceConfig{
		PoolMaxConns:           2,
		PoolMaxIdle:            2,
		AcquireTimeoutMs:       500,
		ConnMaxLifetimeMinutes: 1,
		HealthWindowSize:       8,
		ProbeIntervalSeconds:   3600,
	}, zap.NewNop())
	t.Cleanup(pools.Shutdown)

	schemas := schema.NewRegistry(pools, zap.NewNop())
	for sourceID, respond := range sources {
		adapterType := "orch-stub-" + sourceID.String()
		connector := &queryConnector{respond: respond}
		datasource.Register(datasource.Registration{
			Info: datasource.AdapterInfo{Type: adapterType, DisplayName: "Stub"},
			OpenPool: func(map[string]any) (*sql.DB, error) {
				return sql.OpenDB(connector), nil
			},
		})
		require.NoError(t, pools.RegisterSource(context.Background(), sourceID, adapterType, nil))
		schemas.Set(articleSchema(sourceID))
	}

	cfg := &config.Config{
		Search: config.SearchConfig{
			MaxConcurrency:         4,
			OverallDeadlineSeconds: 5,
			SourceTimeoutSeconds:   5,
			DefaultLimit:           20,
			MaxLimit:               200,
			SnippetLength:          200,
			SemanticBlendWeight:    0.3,
		},
		AI: config.AIConfig{MinConfidence: 0.5},
	}

	orch := NewOrchestrator(cfg, pools, NewBuilder(schemas), cache.New(nil, zap.NewNop()), optimizer, zap.NewNop())
	return &harness{pools: pools, schemas: schemas, orch: orch}
}

func respondWith(rows func() driver.Rows) respondFunc {
	return func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		return rows(), nil
	}
}

func respondErr(err error) respondFunc {
	return func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		return nil, err
	}
}

func searchQuery(sources ...uuid.UUID) *models.SearchQuery {
	return &models.SearchQuery{
		RawText: "mysql performance",
		Mode:    models.ModeNatural,
		Sources: sources,
		Tables:  []string{"articles"},
		Limit:   20,
	}
}

func TestSearchMergesAcrossSources(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(2.0, 1.0) }),
		b: respondWith(func() driver.Rows { return articleRows(1.5) }),
	}, nil)

	resp, err := h.orch.Search(context.Background(), searchQuery(a, b))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.TotalCount)
	require.Len(t, resp.Results, 3)
	assert.InDelta(t, 2.0, resp.Results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 1.5, resp.Results[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 1.0, resp.Results[2].RelevanceScore, 1e-9)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, resp.SourcesQueried)
	assert.Empty(t, resp.SourcesFailed)
	assert.False(t, resp.Cached)
}

func TestSearchPartialFailure(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(1.0) }),
		b: respondErr(errors.New("Error 1017: can't find file")),
	}, nil)

	resp, err := h.orch.Search(context.Background(), searchQuery(a, b))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, []uuid.UUID{a}, resp.SourcesQueried)
	require.Len(t, resp.SourcesFailed, 1)
	assert.Equal(t, b, resp.SourcesFailed[0].SourceID)
	assert.Equal(t, "execute", resp.SourcesFailed[0].Stage)
}

func TestSearchAllSourcesFailed(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondErr(errors.New("Error 1064: syntax error")),
		b: respondErr(errors.New("Error 1064: syntax error")),
	}, nil)

	_, err := h.orch.Search(context.Background(), searchQuery(a, b))
	assert.ErrorIs(t, err, apperrors.ErrAllSourcesFailed)
}

func TestSearchExcludesUnhealthySource(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(1.0) }),
		b: respondWith(func() driver.Rows { return articleRows(3.0) }),
	}, nil)

	// Push b unhealthy before dispatch; it is excluded rather than failed.
	for i := 0; i < 8; i++ {
		h.pools.Observe(b, 10*time.Millisecond, true)
	}

	resp, err := h.orch.Search(context.Background(), searchQuery(a, b))
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{a}, resp.SourcesQueried)
	assert.Empty(t, resp.SourcesFailed)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestSearchUnknownSourceReportedAsFailure(t *testing.T) {
	a := uuid.New()
	unknown := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(1.0) }),
	}, nil)

	resp, err := h.orch.Search(context.Background(), searchQuery(a, unknown))
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{a}, resp.SourcesQueried)
	require.Len(t, resp.SourcesFailed, 1)
	assert.Equal(t, unknown, resp.SourcesFailed[0].SourceID)
}

func TestSearchInvalidTableRejectedBeforeDispatch(t *testing.T) {
	a := uuid.New()

	var dispatched bool
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
			dispatched = true
			return articleRows(1.0), nil
		},
	}, nil)

	q := searchQuery(a)
	q.Tables = []string{"no_such_table"}

	_, err := h.orch.Search(context.Background(), q)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)
	assert.False(t, dispatched, "no network call may reach a source that fails identifier validation")
}

func TestSearchDeadlineReturnsSettledPartials(t *testing.T) {
	fast := uuid.New()
	slow := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		fast: respondWith(func() driver.Rows { return articleRows(1.0) }),
		slow: func(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, nil)
	h.orch.cfg.OverallDeadlineSeconds = 1

	resp, err := h.orch.Search(context.Background(), searchQuery(fast, slow))
	require.NoError(t, err)

	// The fast source settled before the deadline, so its results come back
	// with the slow source reported as failed.
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, []uuid.UUID{fast}, resp.SourcesQueried)
	require.Len(t, resp.SourcesFailed, 1)
	assert.Equal(t, slow, resp.SourcesFailed[0].SourceID)
}

func TestSearchDeadlineWithNothingSettled(t *testing.T) {
	slow := uuid.New()

	h := newHarness(t, map[uuid.UUID]respondFunc{
		slow: func(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, nil)
	h.orch.cfg.OverallDeadlineSeconds = 1

	_, err := h.orch.Search(context.Background(), searchQuery(slow))
	assert.ErrorIs(t, err, apperrors.ErrDeadlineExceeded)
}

func TestSearchValidation(t *testing.T) {
	a := uuid.New()
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(1.0) }),
	}, nil)

	tests := []struct {
		name   string
		mutate func(*models.SearchQuery)
	}{
		{"empty text", func(q *models.SearchQuery) { q.RawText = "   " }},
		{"unknown mode", func(q *models.SearchQuery) { q.Mode = "fuzzy" }},
		{"no sources", func(q *models.SearchQuery) { q.Sources = nil }},
		{"negative offset", func(q *models.SearchQuery) { q.Offset = -1 }},
		{"negative limit", func(q *models.SearchQuery) { q.Limit = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := searchQuery(a)
			tt.mutate(q)
			_, err := h.orch.Search(context.Background(), q)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestSearchAppliesDefaultAndMaxLimit(t *testing.T) {
	a := uuid.New()
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: respondWith(func() driver.Rows { return articleRows(1.0) }),
	}, nil)

	q := searchQuery(a)
	q.Limit = 0
	_, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 20, q.Limit)

	q = searchQuery(a)
	q.Limit = 10000
	_, err = h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 200, q.Limit)
}

func capturingRespond(mu *sync.Mutex, captured *[][]driver.NamedValue) respondFunc {
	return func(_ context.Context, _ string, args []driver.NamedValue) (driver.Rows, error) {
		mu.Lock()
		*captured = append(*captured, args)
		mu.Unlock()
		return articleRows(1.0), nil
	}
}

func TestSemanticModeUsesRewrite(t *testing.T) {
	a := uuid.New()

	var mu sync.Mutex
	var captured [][]driver.NamedValue
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: capturingRespond(&mu, &captured),
	}, &ai.MockOptimizer{Result: &ai.RewriteResult{
		RewrittenText: "mysql performance tuning optimization",
		Confidence:    0.9,
	}})

	q := searchQuery(a)
	q.Mode = models.ModeSemantic

	resp, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	args := captured[0]
	require.Len(t, args, 4)
	assert.Equal(t, "mysql performance tuning optimization", args[0].Value)
	assert.Equal(t, "mysql performance", args[1].Value)
}

func TestSemanticModeFallsBackOnOptimizerError(t *testing.T) {
	a := uuid.New()

	var mu sync.Mutex
	var captured [][]driver.NamedValue
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: capturingRespond(&mu, &captured),
	}, &ai.MockOptimizer{Err: errors.New("provider down")})

	q := searchQuery(a)
	q.Mode = models.ModeSemantic

	resp, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	// Optimizer failure falls back to the unmodified text.
	assert.Equal(t, "mysql performance", captured[0][0].Value)
}

func TestSemanticModeFallsBackOnLowConfidence(t *testing.T) {
	a := uuid.New()

	var mu sync.Mutex
	var captured [][]driver.NamedValue
	h := newHarness(t, map[uuid.UUID]respondFunc{
		a: capturingRespond(&mu, &captured),
	}, &ai.MockOptimizer{Result: &ai.RewriteResult{
		RewrittenText: "unrelated drift",
		Confidence:    0.2,
	}})

	q := searchQuery(a)
	q.Mode = models.ModeSemantic

	_, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	assert.Equal(t, "mysql performance", captured[0][0].Value)
}
