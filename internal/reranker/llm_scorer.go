package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/knoguchi/insight/internal/llm"
)

// LLMScorer asks a generative model to grade query-document pairs. It is a
// stand-in for a dedicated cross-encoder when only an LLM endpoint is
// available: slower, but it still sees query and document together.
type LLMScorer struct {
	llmClient llm.LLM
	model     string
}

// LLMScorerOption is a functional option for configuring LLMScorer.
type LLMScorerOption func(*LLMScorer)

// WithModel sets the model to use for scoring. Without it the client's own
// model is used.
func WithModel(model string) LLMScorerOption {
	return func(s *LLMScorer) {
		s.model = model
	}
}

// NewLLMScorer creates a new LLM-based scorer.
func NewLLMScorer(llmClient llm.LLM, opts ...LLMScorerOption) *LLMScorer {
	s := &LLMScorer{llmClient: llmClient}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelName returns the LLM model used for scoring.
func (s *LLMScorer) ModelName() string {
	if s.model != "" {
		return s.model
	}
	if m, ok := s.llmClient.(interface{ Model() string }); ok {
		return m.Model()
	}
	return "llm"
}

type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
}

type scoreResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Predict grades all pairs in one prompt. Pairs are grouped by query so
// the model sees each query once.
func (s *LLMScorer) Predict(ctx context.Context, pairs []Pair) ([]float32, error) {
	scores := make([]float32, len(pairs))
	if len(pairs) == 0 {
		return scores, nil
	}

	groups := make(map[string][]int)
	var order []string
	for i, p := range pairs {
		if _, ok := groups[p.Query]; !ok {
			order = append(order, p.Query)
		}
		groups[p.Query] = append(groups[p.Query], i)
	}

	for _, query := range order {
		idx := groups[query]
		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = pairs[i].Text
		}

		response, err := s.llmClient.Generate(ctx, buildScorePrompt(query, texts), llm.GenerateOptions{
			Model:       s.model,
			Temperature: 0,
			MaxTokens:   1024,
			JSON:        true,
		})
		if err != nil {
			return nil, fmt.Errorf("llm scoring failed: %w", err)
		}

		groupScores, err := parseScoreResponse(response, len(texts))
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			scores[i] = groupScores[j]
		}
	}
	return scores, nil
}

func buildScorePrompt(query string, texts []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system for market research documents.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments to score:\n")
	for i, text := range texts {
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, text)
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}]}

Irrelevant documents score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.`)

	return sb.String()
}

// parseScoreResponse extracts per-document scores, tolerating markdown
// fences around the JSON. Missing documents get 0.5; scores are clamped
// to [0,1].
func parseScoreResponse(response string, n int) ([]float32, error) {
	response = strings.TrimSpace(response)
	if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if strings.HasPrefix(response[start:], "json") {
			start += 4
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse score response: %w", err)
	}

	scores := make([]float32, n)
	for i := range scores {
		scores[i] = 0.5
	}
	for _, sc := range parsed.Scores {
		if sc.DocIndex < 0 || sc.DocIndex >= n {
			continue
		}
		scores[sc.DocIndex] = min(max(sc.Score, 0), 1)
	}
	return scores, nil
}

var _ Scorer = (*LLMScorer)(nil)
