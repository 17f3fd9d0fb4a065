package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/insight/internal/cache"
	"github.com/knoguchi/insight/internal/health"
	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/reranker"
	"github.com/knoguchi/insight/internal/service"
	"github.com/knoguchi/insight/internal/vectorstore"
)

type fakeSearcher struct {
	got  service.SearchRequest
	resp *service.SearchResponse
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeProjects struct {
	projects map[uuid.UUID]*repository.Project
}

func (f *fakeProjects) Create(ctx context.Context, req service.CreateProjectRequest) (*repository.Project, error) {
	if req.Name == "" {
		return nil, errors.Join(service.ErrInvalidArgument, errors.New("name is required"))
	}
	p := &repository.Project{ID: uuid.New(), Name: req.Name, TargetDemographics: req.TargetDemographics}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeProjects) Get(ctx context.Context, id uuid.UUID) (*repository.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProjects) List(ctx context.Context, page service.Page) ([]*repository.Project, int, error) {
	var out []*repository.Project
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeProjects) Update(ctx context.Context, id uuid.UUID, req service.UpdateProjectRequest) (*repository.Project, error) {
	p, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	return p, nil
}

func (f *fakeProjects) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

type fakePersonas struct {
	gotSeed *uint64
}

func (f *fakePersonas) Generate(ctx context.Context, projectID uuid.UUID, req service.GenerateRequest) ([]*repository.Persona, error) {
	f.gotSeed = req.Seed
	out := make([]*repository.Persona, req.Count)
	for i := range out {
		out[i] = &repository.Persona{
			ID:           uuid.New(),
			ProjectID:    projectID,
			Demographics: persona.Demographics{Gender: "female"},
		}
	}
	return out, nil
}

func (f *fakePersonas) Get(ctx context.Context, id uuid.UUID) (*repository.Persona, error) {
	return nil, repository.ErrNotFound
}

func (f *fakePersonas) List(ctx context.Context, projectID uuid.UUID, page service.Page) ([]*repository.Persona, int, error) {
	return nil, 0, nil
}

func (f *fakePersonas) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

type fakeDocuments struct {
	got service.IndexDocumentRequest
	err error
}

func (f *fakeDocuments) Index(ctx context.Context, req service.IndexDocumentRequest) (*repository.Document, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &repository.Document{ID: req.DocumentID, Title: req.Title, ChunkCount: 3}, nil
}

func (f *fakeDocuments) Get(ctx context.Context, id string) (*repository.Document, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDocuments) List(ctx context.Context, page service.Page) ([]*repository.Document, int, error) {
	return []*repository.Document{{ID: "a"}, {ID: "b"}}, 7, nil
}

func (f *fakeDocuments) Delete(ctx context.Context, id string) error {
	return nil
}

type testEnv struct {
	handler   http.Handler
	search    *fakeSearcher
	projects  *fakeProjects
	personas  *fakePersonas
	documents *fakeDocuments
}

func newTestEnv(probe *health.Probe) *testEnv {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	env := &testEnv{
		search:    &fakeSearcher{},
		projects:  &fakeProjects{projects: map[uuid.UUID]*repository.Project{}},
		personas:  &fakePersonas{},
		documents: &fakeDocuments{},
	}
	srv := NewHTTPServer(HTTPServerConfig{
		Logger: logger,
		API: &API{
			Search:    env.search,
			Projects:  env.projects,
			Personas:  env.personas,
			Documents: env.documents,
			Logger:    logger,
		},
		Probe:    probe,
		Gatherer: prometheus.NewRegistry(),
	})
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSearch(t *testing.T) {
	env := newTestEnv(nil)
	env.search.resp = &service.SearchResponse{
		Documents: []vectorstore.Document{
			{PageContent: "oat milk", Metadata: map[string]string{"rerank_score": "0.9"}},
		},
		CacheKey:      "hybrid_search:abc:3:0.5",
		CacheStatus:   cache.StatusMiss,
		RerankOutcome: reranker.OutcomeReranked,
	}

	rec := env.do(http.MethodPost, "/v1/search", `{"query":"dairy","k":3,"alpha":0.5,"include_graph":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[searchResponse](t, rec)
	assert.Equal(t, "oat milk", body.Documents[0].PageContent)
	assert.Equal(t, "reranked", body.RerankOutcome)
	assert.Equal(t, cache.StatusMiss.String(), body.CacheStatus)

	assert.Equal(t, "dairy", env.search.got.Query)
	assert.Equal(t, 3, env.search.got.K)
	require.NotNil(t, env.search.got.Alpha)
	assert.Equal(t, 0.5, *env.search.got.Alpha)
	assert.True(t, env.search.got.IncludeGraph)
}

func TestSearch_EmptyDocumentsIsArray(t *testing.T) {
	env := newTestEnv(nil)
	env.search.resp = &service.SearchResponse{CacheStatus: cache.StatusHit}

	rec := env.do(http.MethodPost, "/v1/search", `{"query":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":[]`)
	assert.NotContains(t, rec.Body.String(), "rerank_outcome")
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", `{"query":`, nil, http.StatusBadRequest},
		{"unknown field", `{"question":"x"}`, nil, http.StatusBadRequest},
		{"invalid argument", `{"query":""}`, service.ErrInvalidArgument, http.StatusBadRequest},
		{"backend failure", `{"query":"x"}`, errors.New("qdrant unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(nil)
			env.search.err = tt.err

			rec := env.do(http.MethodPost, "/v1/search", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "qdrant")
		})
	}
}

func TestProjects_Lifecycle(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodPost, "/v1/projects", `{"name":"Snacks","target_demographics":{"gender":{"female":1}}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[projectJSON](t, rec)
	assert.Equal(t, "Snacks", created.Name)
	assert.Equal(t, 1.0, created.TargetDemographics[persona.AttrGender]["female"])

	path := "/v1/projects/" + created.ID.String()

	rec = env.do(http.MethodPut, path, `{"name":"Savory snacks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Savory snacks", decode[projectJSON](t, rec).Name)

	rec = env.do(http.MethodGet, "/v1/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[projectJSON]](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 20, list.Limit)

	rec = env.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjects_BadInput(t *testing.T) {
	env := newTestEnv(nil)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/v1/projects/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/v1/projects?limit=ten", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/projects", `{}`).Code)
}

func TestPersonas_Generate(t *testing.T) {
	env := newTestEnv(nil)
	projectID := uuid.New()

	rec := env.do(http.MethodPost, "/v1/projects/"+projectID.String()+"/personas", `{"count":2,"seed":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode[map[string][]personaJSON](t, rec)
	require.Len(t, body["personas"], 2)
	assert.Equal(t, projectID, body["personas"][0].ProjectID)
	assert.Equal(t, "female", body["personas"][0].Demographics.Gender)
	require.NotNil(t, env.personas.gotSeed)
	assert.Equal(t, uint64(7), *env.personas.gotSeed)
}

func TestPersonas_GetMissing(t *testing.T) {
	env := newTestEnv(nil)
	rec := env.do(http.MethodGet, "/v1/personas/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodPost, "/v1/documents",
		`{"document_id":"r1","title":"Panel","content":"text","related":[{"document_id":"r0","relation":"cites"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 3, decode[documentJSON](t, rec).ChunkCount)
	assert.Equal(t, []service.RelatedDocument{{DocumentID: "r0", Relation: "cites"}}, env.documents.got.Related)

	rec = env.do(http.MethodGet, "/v1/documents?limit=2&offset=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[documentJSON]](t, rec)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, 7, list.Total)
	assert.Equal(t, 4, list.Offset)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/documents/zzz", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/documents/r1", "").Code)
}

func TestProbes(t *testing.T) {
	healthy := newTestEnv(health.NewProbe(map[string]health.Checker{
		"database": health.CheckFunc(func(context.Context) error { return nil }),
	}, nil))
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/readyz", "").Code)

	broken := newTestEnv(health.NewProbe(map[string]health.Checker{
		"cache": health.CheckFunc(func(context.Context) error { return errors.New("down") }),
	}, slog.New(slog.NewJSONHandler(io.Discard, nil))))
	rec := broken.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decode[health.Report](t, rec).Checks["cache"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(nil)
	rec := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(nil)
	rec := env.do(http.MethodOptions, "/v1/search", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
