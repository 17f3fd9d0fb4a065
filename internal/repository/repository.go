// Package repository defines domain models and data access interfaces for
// projects, personas, knowledge-base documents and the document graph.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/insight/internal/persona"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Project is a research project that personas are generated for.
type Project struct {
	ID                 uuid.UUID
	Name               string
	Description        string
	TargetDemographics persona.Distribution
	PersonalitySkew    map[string]float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Persona is one synthetic respondent.
type Persona struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Demographics persona.Demographics
	Personality  persona.PersonalityProfile
	Cultural     persona.CulturalProfile
	Background   string
	CreatedAt    time.Time
}

// Document is the registry entry of an indexed knowledge-base document.
// Its chunks live in the vector store.
type Document struct {
	ID          string
	Title       string
	Source      string
	ContentHash string
	ChunkCount  int
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GraphEdge links two knowledge-base documents.
type GraphEdge struct {
	SourceID string
	TargetID string
	Relation string
	Weight   float64
}

// ProjectRepository defines operations for project persistence
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context, limit, offset int) ([]*Project, int, error)
	Update(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PersonaRepository defines operations for persona persistence
type PersonaRepository interface {
	CreateBatch(ctx context.Context, personas []*Persona) error
	GetByID(ctx context.Context, id uuid.UUID) (*Persona, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*Persona, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentRepository defines operations for the document registry
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, limit, offset int) ([]*Document, int, error)
	Delete(ctx context.Context, id string) error
}

// GraphRepository reads and writes document relations
type GraphRepository interface {
	AddEdges(ctx context.Context, edges []GraphEdge) error

	// Related returns, per source document, up to limit related document
	// IDs ordered by edge weight descending. Documents without edges are
	// absent from the map.
	Related(ctx context.Context, documentIDs []string, limit int) (map[string][]string, error)
}
