package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knoguchi/insight/internal/ingestion"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/vectorstore"
)

// DocumentIndexer writes a document into the knowledge base.
type DocumentIndexer interface {
	Index(ctx context.Context, req ingestion.IndexRequest) (*ingestion.IndexResult, error)
}

// RelatedDocument is a graph edge declared while indexing.
type RelatedDocument struct {
	DocumentID string
	Relation   string
	Weight     float64
}

// IndexDocumentRequest adds or replaces a knowledge-base document.
type IndexDocumentRequest struct {
	DocumentID string
	Title      string
	Source     string
	Content    string
	Metadata   map[string]string
	Related    []RelatedDocument
}

// DocumentService indexes documents and keeps their registry and graph
// edges in Postgres.
type DocumentService struct {
	indexer DocumentIndexer
	store   vectorstore.VectorStore
	docs    repository.DocumentRepository
	graph   repository.GraphRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewDocumentService creates a new DocumentService. graph may be nil.
func NewDocumentService(
	indexer DocumentIndexer,
	store vectorstore.VectorStore,
	docs repository.DocumentRepository,
	graph repository.GraphRepository,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		indexer: indexer,
		store:   store,
		docs:    docs,
		graph:   graph,
		logger:  logger,
		now:     time.Now,
	}
}

// Index chunks and embeds the document, records it and stores its edges.
func (s *DocumentService) Index(ctx context.Context, req IndexDocumentRequest) (*repository.Document, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, invalidf("content is required")
	}
	for _, rel := range req.Related {
		if rel.DocumentID == "" {
			return nil, invalidf("related document id is required")
		}
		if rel.Weight < 0 {
			return nil, invalidf("related document weight must be non-negative")
		}
	}

	res, err := s.indexer.Index(ctx, ingestion.IndexRequest{
		DocumentID: req.DocumentID,
		Title:      req.Title,
		Source:     req.Source,
		Content:    req.Content,
		Metadata:   req.Metadata,
	})
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyDocument) {
			return nil, invalidf("document has no indexable text")
		}
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	now := s.now().UTC()
	doc := &repository.Document{
		ID:          res.DocumentID,
		Title:       req.Title,
		Source:      req.Source,
		ContentHash: contentHash(req.Content),
		ChunkCount:  res.Chunks,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	if len(req.Related) > 0 && s.graph != nil {
		edges := make([]repository.GraphEdge, len(req.Related))
		for i, rel := range req.Related {
			relation := rel.Relation
			if relation == "" {
				relation = "related"
			}
			weight := rel.Weight
			if weight == 0 {
				weight = 1
			}
			edges[i] = repository.GraphEdge{SourceID: doc.ID, TargetID: rel.DocumentID, Relation: relation, Weight: weight}
		}
		if err := s.graph.AddEdges(ctx, edges); err != nil {
			return nil, fmt.Errorf("failed to store document relations: %w", err)
		}
	}

	s.logger.Info("document recorded",
		"document_id", doc.ID,
		"chunks", doc.ChunkCount,
		"relations", len(req.Related),
	)
	return doc, nil
}

// Get returns a document registry entry.
func (s *DocumentService) Get(ctx context.Context, id string) (*repository.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// List returns a page of documents and the total count.
func (s *DocumentService) List(ctx context.Context, page Page) ([]*repository.Document, int, error) {
	page = page.Normalize()
	return s.docs.List(ctx, page.Limit, page.Offset)
}

// Delete removes the document's chunks and its registry entry. Cached
// search results that include it expire with the cache TTL.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return s.docs.Delete(ctx, id)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
