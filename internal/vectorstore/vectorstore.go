// Package vectorstore provides the knowledge-base index used by hybrid search.
package vectorstore

import (
	"context"
	"strconv"
)

// Metadata keys written alongside every indexed chunk.
const (
	MetaChunkID    = "chunk_id"
	MetaDocumentID = "document_id"
	MetaScore      = "score"
)

// SparseVector represents a sparse vector with indices and values
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Chunk represents a document chunk with its dense and sparse vectors
type Chunk struct {
	ID           string
	DocumentID   string
	Content      string
	Vector       []float32
	SparseVector *SparseVector
	Metadata     map[string]string
}

// SearchResult represents a scored chunk returned by a search
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32
	Metadata   map[string]string
}

// Document is the cache and API form of a search result.
type Document struct {
	PageContent string            `json:"page_content"`
	Metadata    map[string]string `json:"metadata"`
}

// Document converts the result into its serializable form. Chunk id,
// document id and score are folded into the metadata.
func (r SearchResult) Document() Document {
	meta := make(map[string]string, len(r.Metadata)+3)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	if r.ID != "" {
		meta[MetaChunkID] = r.ID
	}
	if r.DocumentID != "" {
		meta[MetaDocumentID] = r.DocumentID
	}
	meta[MetaScore] = strconv.FormatFloat(float64(r.Score), 'f', -1, 32)
	return Document{PageContent: r.Content, Metadata: meta}
}

// VectorStore defines the operations hybrid search and indexing need
type VectorStore interface {
	// EnsureCollection creates the hybrid collection if it does not exist
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates chunks
	Upsert(ctx context.Context, chunks []Chunk) error

	// DenseSearch ranks chunks by dense vector similarity
	DenseSearch(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)

	// SparseSearch ranks chunks by sparse (keyword) similarity
	SparseSearch(ctx context.Context, vector *SparseVector, limit int) ([]SearchResult, error)

	// DeleteDocument removes all chunks of a document
	DeleteDocument(ctx context.Context, documentID string) error
}
