package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/knoguchi/insight/internal/ingestion"
	"github.com/knoguchi/insight/internal/llm"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/reranker"
	"github.com/knoguchi/insight/internal/vectorstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) EnsureCollection(ctx context.Context, dimension int) error {
	return m.Called(ctx, dimension).Error(0)
}

func (m *mockStore) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	return m.Called(ctx, chunks).Error(0)
}

func (m *mockStore) DenseSearch(ctx context.Context, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	args := m.Called(ctx, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SearchResult), args.Error(1)
}

func (m *mockStore) SparseSearch(ctx context.Context, vector *vectorstore.SparseVector, limit int) ([]vectorstore.SearchResult, error) {
	args := m.Called(ctx, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SearchResult), args.Error(1)
}

func (m *mockStore) DeleteDocument(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int    { return 2 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubSparse struct{}

func (stubSparse) Vectorize(text string) *vectorstore.SparseVector {
	return &vectorstore.SparseVector{Indices: []uint32{1}, Values: []float32{1}}
}

// scoreByText scores each pair by its document text.
type scoreByText map[string]float32

func (s scoreByText) Predict(ctx context.Context, pairs []reranker.Pair) ([]float32, error) {
	out := make([]float32, len(pairs))
	for i, p := range pairs {
		out[i] = s[p.Text]
	}
	return out, nil
}

func (s scoreByText) ModelName() string { return "stub-cross-encoder" }

type failingScorer struct{ err error }

func (f failingScorer) Predict(ctx context.Context, pairs []reranker.Pair) ([]float32, error) {
	return nil, f.err
}

func (f failingScorer) ModelName() string { return "broken" }

type mockGraph struct {
	mock.Mock
}

func (m *mockGraph) AddEdges(ctx context.Context, edges []repository.GraphEdge) error {
	return m.Called(ctx, edges).Error(0)
}

func (m *mockGraph) Related(ctx context.Context, documentIDs []string, limit int) (map[string][]string, error) {
	args := m.Called(ctx, documentIDs, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}

type mockProjects struct {
	mock.Mock
}

func (m *mockProjects) Create(ctx context.Context, p *repository.Project) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProjects) GetByID(ctx context.Context, id uuid.UUID) (*repository.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Project), args.Error(1)
}

func (m *mockProjects) List(ctx context.Context, limit, offset int) ([]*repository.Project, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*repository.Project), args.Int(1), args.Error(2)
}

func (m *mockProjects) Update(ctx context.Context, p *repository.Project) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProjects) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockPersonas struct {
	mock.Mock
}

func (m *mockPersonas) CreateBatch(ctx context.Context, personas []*repository.Persona) error {
	return m.Called(ctx, personas).Error(0)
}

func (m *mockPersonas) GetByID(ctx context.Context, id uuid.UUID) (*repository.Persona, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Persona), args.Error(1)
}

func (m *mockPersonas) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*repository.Persona, int, error) {
	args := m.Called(ctx, projectID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*repository.Persona), args.Int(1), args.Error(2)
}

func (m *mockPersonas) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockDocuments struct {
	mock.Mock
}

func (m *mockDocuments) Upsert(ctx context.Context, doc *repository.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockDocuments) GetByID(ctx context.Context, id string) (*repository.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Document), args.Error(1)
}

func (m *mockDocuments) List(ctx context.Context, limit, offset int) ([]*repository.Document, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*repository.Document), args.Int(1), args.Error(2)
}

func (m *mockDocuments) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockIndexer struct {
	mock.Mock
}

func (m *mockIndexer) Index(ctx context.Context, req ingestion.IndexRequest) (*ingestion.IndexResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IndexResult), args.Error(1)
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}
