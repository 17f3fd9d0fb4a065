package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// rerankRequest is the request payload for the cross-encoder service.
type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type rerankResponseResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResponseResult `json:"results"`
	Model   string                 `json:"model"`
}

// HTTPScorerConfig configures an HTTPScorer.
type HTTPScorerConfig struct {
	// BaseURL of the cross-encoder service (e.g. http://reranker:8001).
	BaseURL string

	// Model is the cross-encoder model name sent with each request.
	Model string

	// Timeout for the underlying HTTP client. The Reranker deadline still
	// applies through the request context.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens
	// the circuit (default 5).
	FailureThreshold uint32

	// OpenTimeout is how long the circuit stays open before probing (default 30s).
	OpenTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPScorer implements Scorer by calling a cross-encoder service at
// POST <BaseURL>/v1/rerank. Calls go through a circuit breaker so an
// unreachable service is skipped instead of waited on.
type HTTPScorer struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]float32]
	logger  *slog.Logger
}

// NewHTTPScorer creates a new HTTP cross-encoder client.
func NewHTTPScorer(cfg HTTPScorerConfig) *HTTPScorer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	s := &HTTPScorer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  client,
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "cross-encoder",
		MaxRequests: 1,
		Timeout:     openTimeout,
		// A caller abandoning its request says nothing about the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("reranker circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return s
}

// ModelName returns the configured model.
func (s *HTTPScorer) ModelName() string {
	return s.model
}

// Predict scores every pair. All pairs must share one query, which is how
// the service API is shaped.
func (s *HTTPScorer) Predict(ctx context.Context, pairs []Pair) ([]float32, error) {
	if len(pairs) == 0 {
		return []float32{}, nil
	}
	query := pairs[0].Query
	texts := make([]string, len(pairs))
	for i, p := range pairs {
		if p.Query != query {
			return nil, errors.New("http scorer requires a single query per batch")
		}
		texts[i] = p.Text
	}

	return s.breaker.Execute(func() ([]float32, error) {
		return s.call(ctx, query, texts)
	})
}

func (s *HTTPScorer) call(ctx context.Context, query string, texts []string) ([]float32, error) {
	body, err := json.Marshal(rerankRequest{
		Query:      query,
		Candidates: texts,
		Model:      s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	// The service may return results sorted by score; map back to input order.
	scores := make([]float32, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(texts))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing score for candidate %d", ErrScoreCount, i)
		}
	}
	return scores, nil
}

var _ Scorer = (*HTTPScorer)(nil)
