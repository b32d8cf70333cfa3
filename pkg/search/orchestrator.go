package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	"github.com/fedsearch-io/fedsearch-engine/pkg/ai"
	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/cache"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/metrics"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// Orchestrator coordinates a search request: cache lookup, optional AI
// rewrite, bounded fan-out to every selected healthy source, merge, and
// cache write-through.
type Orchestrator struct {
	cfg           config.SearchConfig
	minConfidence float64
	pools         *datasource.PoolManager
	builder       *Builder
	executor      *Executor
	normalizer    *Normalizer
	cache         *cache.Cache
	optimizer     ai.QueryOptimizer
	logger        *zap.Logger
}

// NewOrchestrator wires the search pipeline. optimizer may be nil when no
// AI endpoint is configured; semantic mode then runs as natural mode on
// the unmodified text.
func NewOrchestrator(
	cfg *config.Config,
	pools *datasource.PoolManager,
	builder *Builder,
	responseCache *cache.Cache,
	optimizer ai.QueryOptimizer,
	logger *zap.Logger,
) *Orchestrator {
	sc := cfg.Search
	return &Orchestrator{
		cfg:           sc,
		minConfidence: cfg.AI.MinConfidence,
		pools:         pools,
		builder:       builder,
		executor:      NewExecutor(pools, time.Duration(sc.SourceTimeoutSeconds)*time.Second, logger),
		normalizer:    NewNormalizer(sc.SnippetLength, sc.SemanticBlendWeight),
		cache:         responseCache,
		optimizer:     optimizer,
		logger:        logger.Named("orchestrator"),
	}
}

// sourceOutcome is one settled fan-out sub-task.
type sourceOutcome struct {
	sourceID uuid.UUID
	results  []models.SearchResult
	failure  *models.SourceFailure
}

// Search executes a federated search and returns the merged, ranked
// response. Per-source failures are contained and reported in the response;
// the request fails only when every selected source fails or the overall
// deadline elapses before any source settles.
func (o *Orchestrator) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if err := o.validate(q); err != nil {
		return nil, err
	}

	start := time.Now()

	if resp, ok := o.cache.Get(ctx, q); ok {
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		metrics.SearchDuration.WithLabelValues(string(q.Mode), "true").Observe(time.Since(start).Seconds())
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.OverallDeadlineSeconds)*time.Second)
	defer cancel()

	searchText, confidence := o.optimize(ctx, q)

	var (
		queried  []uuid.UUID
		failures []models.SourceFailure
		outcomes []sourceOutcome
	)

	dispatch := o.selectSources(q, &failures)

	// Statements are built before dispatch so an invalid identifier is
	// rejected without a single network call to that source.
	plans, firstBuildErr := o.buildPlans(q, dispatch, searchText, &failures)
	if len(plans) == 0 {
		if firstBuildErr != nil {
			return nil, firstBuildErr
		}
		if len(failures) > 0 {
			return nil, fmt.Errorf("%w: no dispatchable sources", apperrors.ErrAllSourcesFailed)
		}
		return nil, fmt.Errorf("%w: no healthy sources selected", apperrors.ErrAllSourcesFailed)
	}

	outcomes = o.fanOut(ctx, q, plans, confidence)

	var merged []models.SearchResult
	settled := false
	for _, out := range outcomes {
		if out.failure != nil {
			failures = append(failures, *out.failure)
			continue
		}
		settled = true
		queried = append(queried, out.sourceID)
		merged = append(merged, out.results...)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !settled {
		return nil, fmt.Errorf("%w: no source settled within %ds", apperrors.ErrDeadlineExceeded, o.cfg.OverallDeadlineSeconds)
	}
	if !settled {
		return nil, fmt.Errorf("%w: %d sources failed", apperrors.ErrAllSourcesFailed, len(failures))
	}

	page, total := Merge(merged, q.Limit, q.Offset)

	resp := &models.SearchResponse{
		Results:         page,
		TotalCount:      total,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		SourcesQueried:  queried,
		SourcesFailed:   failures,
		Cached:          false,
	}

	// Partial responses are not cached; a TTL of degraded coverage would
	// mask sources that have already recovered.
	if len(failures) == 0 {
		o.cache.Set(ctx, q, resp)
	}

	metrics.SearchDuration.WithLabelValues(string(q.Mode), "false").Observe(time.Since(start).Seconds())
	return resp, nil
}

// InvalidateCache removes cached responses. With a source id it removes
// only entries referencing that source; without one it flushes everything.
func (o *Orchestrator) InvalidateCache(ctx context.Context, sourceID *uuid.UUID) (int64, error) {
	if sourceID != nil {
		return o.cache.InvalidateSource(ctx, *sourceID)
	}
	return o.cache.Flush(ctx)
}

func (o *Orchestrator) validate(q *models.SearchQuery) error {
	if strings.TrimSpace(q.RawText) == "" {
		return fmt.Errorf("%w: search text is required", apperrors.ErrValidation)
	}
	if !q.Mode.Valid() {
		return fmt.Errorf("%w: unknown search mode %q", apperrors.ErrValidation, q.Mode)
	}
	if len(q.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", apperrors.ErrValidation)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative", apperrors.ErrValidation)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative", apperrors.ErrValidation)
	}
	if q.Limit == 0 {
		q.Limit = o.cfg.DefaultLimit
	}
	if q.Limit > o.cfg.MaxLimit {
		q.Limit = o.cfg.MaxLimit
	}
	return nil
}

// optimize runs the AI rewrite for semantic mode. Any failure, timeout, or
// low-confidence rewrite falls back to the unmodified text; the returned
// confidence is negative when no blending should happen.
func (o *Orchestrator) optimize(ctx context.Context, q *models.SearchQuery) (string, float64) {
	if q.Mode != models.ModeSemantic || o.optimizer == nil {
		return q.RawText, -1
	}

	result, err := o.optimizer.OptimizeQuery(ctx, q.RawText, o.searchContext(q))
	if err != nil {
		o.logger.Warn("query rewrite unavailable, using original text",
			zap.String("error", logging.SanitizeError(err)))
		return q.RawText, -1
	}
	if result.Confidence < o.minConfidence {
		o.logger.Debug("query rewrite below confidence floor, using original text",
			zap.Float64("confidence", result.Confidence),
			zap.Float64("floor", o.minConfidence))
		return q.RawText, -1
	}

	return result.RewrittenText, result.Confidence
}

func (o *Orchestrator) searchContext(q *models.SearchQuery) string {
	var parts []string
	if len(q.Tables) > 0 {
		parts = append(parts, "tables: "+strings.Join(q.Tables, ", "))
	}
	if len(q.Columns) > 0 {
		parts = append(parts, "columns: "+strings.Join(q.Columns, ", "))
	}
	return strings.Join(parts, "; ")
}

// selectSources filters the requested sources down to the dispatchable set.
// Unhealthy sources are excluded silently per the health contract; sources
// the engine does not know about are reported as failures.
func (o *Orchestrator) selectSources(q *models.SearchQuery, failures *[]models.SourceFailure) []uuid.UUID {
	var dispatch []uuid.UUID
	for _, sourceID := range q.Sources {
		health, err := o.pools.Health(sourceID)
		if err != nil {
			*failures = append(*failures, models.SourceFailure{
				SourceID: sourceID,
				Stage:    string(apperrors.StageAcquire),
				Reason:   "source not registered",
			})
			continue
		}
		if !health.Status.ServesTraffic() {
			o.logger.Debug("excluding unhealthy source from fan-out",
				zap.String("source_id", sourceID.String()))
			continue
		}
		dispatch = append(dispatch, sourceID)
	}
	return dispatch
}

// sourcePlan is the built statement set for one dispatchable source.
type sourcePlan struct {
	sourceID   uuid.UUID
	statements []Statement
}

// buildPlans constructs statements for every dispatchable source. A source
// whose build fails is recorded as a failure and never dispatched; the
// first build error is returned so a request that is invalid against every
// source surfaces the validation error itself.
func (o *Orchestrator) buildPlans(q *models.SearchQuery, sources []uuid.UUID, searchText string, failures *[]models.SourceFailure) ([]sourcePlan, error) {
	var plans []sourcePlan
	var firstErr error

	for _, sourceID := range sources {
		statements, err := o.builder.Build(q, sourceID, searchText, q.RawText)
		if err != nil {
			metrics.SourceFailures.WithLabelValues(string(apperrors.StageBuild)).Inc()
			if firstErr == nil {
				firstErr = err
			}
			*failures = append(*failures, models.SourceFailure{
				SourceID: sourceID,
				Stage:    string(apperrors.StageBuild),
				Reason:   logging.SanitizeError(err),
			})
			continue
		}
		plans = append(plans, sourcePlan{sourceID: sourceID, statements: statements})
	}
	return plans, firstErr
}

// fanOut dispatches one sub-task per source with bounded concurrency and
// waits for all of them to settle or the deadline to fire. Sub-task errors
// never cancel siblings.
func (o *Orchestrator) fanOut(ctx context.Context, q *models.SearchQuery, plans []sourcePlan, confidence float64) []sourceOutcome {
	concurrency := o.cfg.MaxConcurrency
	if concurrency <= 0 || concurrency > config.HardConcurrencyCeiling {
		concurrency = config.HardConcurrencyCeiling
	}

	var (
		mu       sync.Mutex
		outcomes = make([]sourceOutcome, 0, len(plans))
	)

	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for _, plan := range plans {
		plan := plan
		g.Go(func() error {
			out := o.searchSource(ctx, q, plan, confidence)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}

	// Sub-tasks always return nil; Wait only blocks until all settle.
	_ = g.Wait()
	return outcomes
}

// searchSource runs every statement for one source and normalizes the rows.
// The first statement failure marks the whole source failed; its rows are
// excluded so the response never mixes complete and truncated coverage for
// one source.
func (o *Orchestrator) searchSource(ctx context.Context, q *models.SearchQuery, plan sourcePlan, confidence float64) sourceOutcome {
	var results []models.SearchResult
	for _, stmt := range plan.statements {
		rows, err := o.executor.Execute(ctx, stmt)
		if err != nil {
			stage := apperrors.StageExecute
			var srcErr *apperrors.SourceError
			if errors.As(err, &srcErr) {
				stage = srcErr.Stage
			}
			return sourceOutcome{
				sourceID: plan.sourceID,
				failure: &models.SourceFailure{
					SourceID: plan.sourceID,
					Stage:    string(stage),
					Reason:   logging.SanitizeError(err),
				},
			}
		}
		results = append(results, o.normalizer.Normalize(rows, stmt, q, confidence)...)
	}

	return sourceOutcome{sourceID: plan.sourceID, results: results}
}
