package recovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

// DefaultMaxAttempts bounds the rewritten executions tried after a failure.
const DefaultMaxAttempts = 3

// QueryRunner executes a read query. *database.DB implements it.
type QueryRunner interface {
	ExecuteQuery(ctx context.Context, query string) (*database.QueryResult, error)
}

// Execution describes the last query executed.
type Execution struct {
	Query    string
	Result   *database.QueryResult
	Recovery *Result // nil when the original query returned rows
	Attempts int     // executions, the original one included
}

// Executor runs a query and, if it fails or returns no rows, retries it with
// recovered literals. Rank 0 candidates are tried first, then rank 1 and so on,
// for at most maxAttempts rewritten executions.
type Executor struct {
	runner      QueryRunner
	helper      *Helper
	maxAttempts int
	logger      *zap.Logger

	// Confirm, when set, is asked before each rewritten query runs. A false
	// answer stops the retries.
	Confirm func(original, rewritten string) bool
}

func NewExecutor(runner QueryRunner, helper *Helper, maxAttempts int, logger *zap.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{runner: runner, helper: helper, maxAttempts: maxAttempts, logger: logger}
}

// Execute returns the first execution that produced rows. Otherwise it returns
// the last execution that succeeded, or the last error if none did.
func (e *Executor) Execute(ctx context.Context, query string) (*Execution, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("query runner not initialized")
	}

	res, err := e.runner.ExecuteQuery(ctx, query)
	exec := &Execution{Query: query, Result: res, Attempts: 1}
	if err == nil && res.RowCount() > 0 {
		return exec, nil
	}
	if e.helper == nil {
		return exec, err
	}

	reason := "query returned no rows"
	if err != nil {
		reason = err.Error()
	}
	e.logger.Info("query needs recovery", zap.String("reason", reason))

	exec.Recovery = e.helper.Recover(ctx, query, reason)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return exec, ctxErr
	}
	if !exec.Recovery.Recovered() {
		return exec, err
	}

	lastErr := err
	tried := map[string]bool{query: true}
	rewrites := 0
	for rank := 0; rank < exec.Recovery.Ranks() && rewrites < e.maxAttempts; rank++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exec, ctxErr
		}

		rewritten := e.helper.RewriteRank(query, exec.Recovery, rank)
		if tried[rewritten] {
			continue
		}
		tried[rewritten] = true

		if e.Confirm != nil && !e.Confirm(query, rewritten) {
			e.logger.Info("rewritten query declined", zap.Int("rank", rank))
			break
		}

		rewrites++
		exec.Attempts++
		res, err := e.runner.ExecuteQuery(ctx, rewritten)
		if err != nil {
			e.logger.Warn("rewritten query failed", zap.Int("rank", rank), zap.Error(err))
			if lastErr != nil {
				lastErr = err
			}
			continue
		}

		exec.Query, exec.Result, lastErr = rewritten, res, nil
		if res.RowCount() > 0 {
			return exec, nil
		}
		e.logger.Info("rewritten query returned no rows", zap.Int("rank", rank))
	}
	return exec, lastErr
}
