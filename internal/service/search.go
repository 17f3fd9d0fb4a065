package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/insight/internal/cache"
	"github.com/knoguchi/insight/internal/embedder"
	"github.com/knoguchi/insight/internal/fusion"
	"github.com/knoguchi/insight/internal/metrics"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/reranker"
	"github.com/knoguchi/insight/internal/vectorstore"
)

// Metadata keys added to search results.
const (
	MetaRerankScore  = "rerank_score"
	MetaGraphRelated = "graph_related"
)

// DefaultGraphRelatedLimit caps the related documents attached per result.
const DefaultGraphRelatedLimit = 5

// SearchConfig holds search defaults and limits.
type SearchConfig struct {
	DefaultK            int
	MaxK                int
	DefaultAlpha        float64
	CandidateMultiplier int
}

// SearchRequest is one hybrid search. K == 0 and a nil Alpha select the
// configured defaults.
type SearchRequest struct {
	Query        string
	K            int
	Alpha        *float64
	IncludeGraph bool
}

// SearchResponse carries the documents plus how they were produced.
// RerankOutcome is empty on a cache hit.
type SearchResponse struct {
	Documents     []vectorstore.Document
	CacheKey      string
	CacheStatus   cache.Status
	RerankOutcome reranker.Outcome
}

// SearchService runs cache lookup, fusion retrieval, reranking, graph
// enrichment and cache write.
type SearchService struct {
	cfg      SearchConfig
	embedder embedder.Embedder
	sparse   embedder.SparseVectorizer
	store    vectorstore.VectorStore
	cache    *cache.ResultCache
	reranker *reranker.Reranker
	graph    repository.GraphRepository
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// SearchOption is a functional option for configuring SearchService.
type SearchOption func(*SearchService)

// WithGraphEnrichment attaches related documents from the graph when a
// request asks for it.
func WithGraphEnrichment(graph repository.GraphRepository) SearchOption {
	return func(s *SearchService) {
		s.graph = graph
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(s *SearchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSearchMetrics records search counts and latency.
func WithSearchMetrics(m *metrics.Metrics) SearchOption {
	return func(s *SearchService) {
		s.metrics = m
	}
}

// NewSearchService creates a new SearchService
func NewSearchService(
	cfg SearchConfig,
	emb embedder.Embedder,
	sparse embedder.SparseVectorizer,
	store vectorstore.VectorStore,
	resultCache *cache.ResultCache,
	rr *reranker.Reranker,
	opts ...SearchOption,
) *SearchService {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 1
	}

	s := &SearchService{
		cfg:      cfg,
		embedder: emb,
		sparse:   sparse,
		store:    store,
		cache:    resultCache,
		reranker: rr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search answers a query from the cache or, on a miss, from the knowledge
// base. Cache and reranker failures degrade the answer but never fail it;
// embedding and vector store failures do.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	k, alpha, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	key := cache.DeriveKey(req.Query, k, alpha, req.IncludeGraph)
	lookup := s.cache.Get(ctx, key)
	if lookup.Hit() {
		s.metrics.Search("cache_hit", time.Since(start))
		return &SearchResponse{Documents: lookup.Documents, CacheKey: key, CacheStatus: lookup.Status}, nil
	}

	candidates, err := s.retrieve(ctx, req.Query, alpha, k*s.cfg.CandidateMultiplier)
	if err != nil {
		s.metrics.Search("error", time.Since(start))
		return nil, err
	}

	ranked := s.reranker.Rerank(ctx, req.Query, candidates, k)

	docs := make([]vectorstore.Document, len(ranked.Results))
	for i, r := range ranked.Results {
		docs[i] = r.Document()
		if !ranked.Fallback() {
			docs[i].Metadata[MetaRerankScore] = formatScore(r.RerankerScore)
		}
	}

	if req.IncludeGraph && s.graph != nil {
		s.enrich(ctx, docs)
	}

	s.cache.Set(ctx, key, docs)

	s.metrics.Search("ok", time.Since(start))
	s.logger.Debug("search completed",
		"cache_key", key,
		"cache_status", lookup.Status.String(),
		"rerank_outcome", string(ranked.Outcome),
		"candidates", len(candidates),
		"results", len(docs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &SearchResponse{
		Documents:     docs,
		CacheKey:      key,
		CacheStatus:   lookup.Status,
		RerankOutcome: ranked.Outcome,
	}, nil
}

func (s *SearchService) validate(req SearchRequest) (int, float64, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, 0, invalidf("query is required")
	}

	k := req.K
	if k == 0 {
		k = s.cfg.DefaultK
	}
	if k < 0 || k > s.cfg.MaxK {
		return 0, 0, invalidf("k must be between 1 and %d", s.cfg.MaxK)
	}

	alpha := s.cfg.DefaultAlpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	if alpha < 0 || alpha > 1 || alpha != alpha {
		return 0, 0, invalidf("alpha must be within [0, 1]")
	}
	return k, alpha, nil
}

// retrieve runs dense and sparse search concurrently and fuses them.
func (s *SearchService) retrieve(ctx context.Context, query string, alpha float64, limit int) ([]vectorstore.SearchResult, error) {
	var dense, sparse []vectorstore.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	if alpha > 0 {
		g.Go(func() error {
			vector, err := s.embedder.Embed(gctx, query)
			if err != nil {
				return fmt.Errorf("failed to embed query: %w", err)
			}
			dense, err = s.store.DenseSearch(gctx, vector, limit)
			if err != nil {
				return fmt.Errorf("dense search: %w", err)
			}
			return nil
		})
	}
	if alpha < 1 && s.sparse != nil {
		g.Go(func() error {
			var err error
			sparse, err = s.store.SparseSearch(gctx, s.sparse.Vectorize(query), limit)
			if err != nil {
				return fmt.Errorf("sparse search: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fusion.Fuse(dense, sparse, alpha, limit), nil
}

// enrich adds related document IDs from the graph. Failures leave the
// documents as they are.
func (s *SearchService) enrich(ctx context.Context, docs []vectorstore.Document) {
	seen := make(map[string]bool, len(docs))
	var ids []string
	for _, d := range docs {
		id := d.Metadata[vectorstore.MetaDocumentID]
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	related, err := s.graph.Related(ctx, ids, DefaultGraphRelatedLimit)
	if err != nil {
		s.logger.Warn("graph enrichment failed", "error", err)
		return
	}
	for _, d := range docs {
		if rel := related[d.Metadata[vectorstore.MetaDocumentID]]; len(rel) > 0 {
			d.Metadata[MetaGraphRelated] = strings.Join(rel, ",")
		}
	}
}

func formatScore(score float32) string {
	return strconv.FormatFloat(float64(score), 'f', -1, 32)
}
