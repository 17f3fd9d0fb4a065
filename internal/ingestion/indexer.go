package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/insight/internal/embedder"
	"github.com/knoguchi/insight/internal/vectorstore"
)

// ErrEmptyDocument is returned when a document has no indexable text.
var ErrEmptyDocument = errors.New("document has no content")

// chunkNamespace derives stable chunk point IDs from document ID and index.
var chunkNamespace = uuid.MustParse("6f1c3a52-2c55-4c1e-9d1e-7d0f3b6f0a11")

// IndexRequest is one document to add to the knowledge base.
type IndexRequest struct {
	DocumentID string // Generated when empty
	Title      string
	Source     string
	Content    string
	Metadata   map[string]string
}

// IndexResult reports what was written.
type IndexResult struct {
	DocumentID string
	Chunks     int
	Duration   time.Duration
}

// Indexer chunks, embeds and upserts documents.
type Indexer struct {
	chunker  *Chunker
	embedder embedder.Embedder
	sparse   embedder.SparseVectorizer
	store    vectorstore.VectorStore
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. Chunk sizes follow the embedding model's
// limits.
func NewIndexer(emb embedder.Embedder, sparse embedder.SparseVectorizer, store vectorstore.VectorStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	model := embedder.GetModelConfig(emb.ModelName())
	return &Indexer{
		chunker: NewChunker(ChunkerConfig{
			TargetWords:  model.TargetChunkWords,
			MaxWords:     model.MaxChunkWords,
			OverlapWords: model.TargetChunkWords / 8,
		}),
		embedder: emb,
		sparse:   sparse,
		store:    store,
		logger:   logger,
	}
}

// Index replaces any chunks already stored for the document.
func (ix *Indexer) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	start := time.Now()

	chunks := ix.chunker.Chunk(req.Content)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	points := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]string, len(req.Metadata)+len(c.Metadata)+3)
		for k, v := range req.Metadata {
			meta[k] = v
		}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["chunk_index"] = strconv.Itoa(c.Index)
		if req.Title != "" {
			meta["title"] = req.Title
		}
		if req.Source != "" {
			meta["source"] = req.Source
		}

		points[i] = vectorstore.Chunk{
			ID:         ChunkID(docID, c.Index),
			DocumentID: docID,
			Content:    c.Content,
			Vector:     vectors[i],
			Metadata:   meta,
		}
		if ix.sparse != nil {
			points[i].SparseVector = ix.sparse.Vectorize(c.Content)
		}
	}

	if err := ix.store.DeleteDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	if err := ix.store.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	res := &IndexResult{DocumentID: docID, Chunks: len(points), Duration: time.Since(start)}
	ix.logger.Info("document indexed",
		"document_id", docID,
		"chunks", res.Chunks,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// ChunkID returns the deterministic point ID of a document chunk.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(index))).String()
}
