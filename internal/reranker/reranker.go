// Package reranker re-scores fused retrieval candidates with a cross-encoder.
//
// A cross-encoder sees the query and one document together, which is more
// accurate than the independent vectors used upstream but costs a model call
// per pair. Reranking therefore runs on a bounded candidate list, with each
// document truncated, and a deadline on the scoring call.
//
// Reranking never fails a search. Without a model, on timeout, or on any
// scorer error the fusion order is kept, and Result.Outcome says which path
// was taken.
package reranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/knoguchi/insight/internal/metrics"
	"github.com/knoguchi/insight/internal/vectorstore"
)

const (
	// DefaultTimeout bounds one scoring call.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxChars is the per-document character budget sent to the model.
	DefaultMaxChars = 512
)

// ErrScoreCount is returned when a scorer yields a different number of
// scores than it was given pairs.
var ErrScoreCount = errors.New("scorer returned wrong number of scores")

// Pair is one (query, document text) input to a cross-encoder.
type Pair struct {
	Query string
	Text  string
}

// Scorer predicts a relevance score for every pair, in input order.
type Scorer interface {
	Predict(ctx context.Context, pairs []Pair) ([]float32, error)

	// ModelName returns the model identifier for logging.
	ModelName() string
}

// ScoredResult is a candidate with its rerank score. When a call falls
// back to fusion order RerankerScore carries the fusion score.
type ScoredResult struct {
	vectorstore.SearchResult
	RerankerScore float32
}

// Outcome records which path a Rerank call took.
type Outcome string

const (
	OutcomeReranked Outcome = "reranked"
	OutcomeNoModel  Outcome = "no_model"
	OutcomeEmpty    Outcome = "empty"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeError    Outcome = "error"
)

// Result is the output of Rerank.
type Result struct {
	Results []ScoredResult
	Outcome Outcome
	Err     error
}

// Fallback reports whether Results are in fusion order.
func (r Result) Fallback() bool {
	return r.Outcome != OutcomeReranked
}

// Reranker applies a Scorer to fused candidates.
type Reranker struct {
	scorer   Scorer
	timeout  time.Duration
	maxChars int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithTimeout sets the scoring deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Reranker) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxChars sets the per-document truncation length.
func WithMaxChars(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.maxChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records outcomes and scoring latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reranker) {
		r.metrics = m
	}
}

// New creates a Reranker. A nil scorer is allowed and makes every call
// return fusion order.
func New(scorer Scorer, opts ...Option) *Reranker {
	r := &Reranker{
		scorer:   scorer,
		timeout:  DefaultTimeout,
		maxChars: DefaultMaxChars,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether a scoring model is configured.
func (r *Reranker) Available() bool {
	return r != nil && r.scorer != nil
}

// Rerank scores candidates (in fusion order) against query and returns the
// top k by score. See the package doc for the fallback rules.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []vectorstore.SearchResult, k int) Result {
	if len(candidates) == 0 {
		return Result{Results: []ScoredResult{}, Outcome: OutcomeEmpty}
	}
	if !r.Available() {
		return Result{Results: fusionOrder(candidates, k), Outcome: OutcomeNoModel}
	}

	start := time.Now()
	scores, err := r.predict(ctx, query, candidates)
	elapsed := time.Since(start)

	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		r.logger.Warn("reranking failed, using fusion order",
			"outcome", string(outcome),
			"model", r.scorer.ModelName(),
			"candidate_count", len(candidates),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		r.metrics.Rerank(string(outcome), elapsed)
		return Result{Results: fusionOrder(candidates, k), Outcome: outcome, Err: err}
	}

	results := make([]ScoredResult, len(candidates))
	for i, c := range candidates {
		results[i] = ScoredResult{SearchResult: c, RerankerScore: scores[i]}
	}
	// Stable so equal scores keep fusion order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankerScore > results[j].RerankerScore
	})

	r.logger.Debug("reranking completed",
		"model", r.scorer.ModelName(),
		"candidate_count", len(candidates),
		"duration_ms", elapsed.Milliseconds(),
	)
	r.metrics.Rerank(string(OutcomeReranked), elapsed)
	return Result{Results: topK(results, k), Outcome: OutcomeReranked}
}

type prediction struct {
	scores []float32
	err    error
}

// predict runs the scorer on its own goroutine so a slow model is abandoned
// at the deadline. The channel is buffered so the goroutine can always
// deliver and exit after the caller has gone.
func (r *Reranker) predict(ctx context.Context, query string, candidates []vectorstore.SearchResult) ([]float32, error) {
	pairs := make([]Pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = Pair{Query: query, Text: truncate(c.Content, r.maxChars)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan prediction, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- prediction{err: fmt.Errorf("scorer panic: %v", p)}
			}
		}()
		scores, err := r.scorer.Predict(ctx, pairs)
		done <- prediction{scores: scores, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-done:
		if p.err != nil {
			return nil, p.err
		}
		if len(p.scores) != len(pairs) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrScoreCount, len(p.scores), len(pairs))
		}
		return p.scores, nil
	}
}

func fusionOrder(candidates []vectorstore.SearchResult, k int) []ScoredResult {
	results := make([]ScoredResult, len(candidates))
	for i, c := range candidates {
		results[i] = ScoredResult{SearchResult: c, RerankerScore: c.Score}
	}
	return topK(results, k)
}

func topK(results []ScoredResult, k int) []ScoredResult {
	if k < 0 {
		k = 0
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// truncate cuts s to at most n characters (runes, not bytes).
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
