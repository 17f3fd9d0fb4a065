package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/service"
	"github.com/knoguchi/insight/internal/vectorstore"
)

const maxBodyBytes = 8 << 20

// Searcher runs hybrid search.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
}

// ProjectManager manages research projects.
type ProjectManager interface {
	Create(ctx context.Context, req service.CreateProjectRequest) (*repository.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*repository.Project, error)
	List(ctx context.Context, page service.Page) ([]*repository.Project, int, error)
	Update(ctx context.Context, id uuid.UUID, req service.UpdateProjectRequest) (*repository.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PersonaManager generates and serves personas.
type PersonaManager interface {
	Generate(ctx context.Context, projectID uuid.UUID, req service.GenerateRequest) ([]*repository.Persona, error)
	Get(ctx context.Context, id uuid.UUID) (*repository.Persona, error)
	List(ctx context.Context, projectID uuid.UUID, page service.Page) ([]*repository.Persona, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentManager indexes knowledge-base documents.
type DocumentManager interface {
	Index(ctx context.Context, req service.IndexDocumentRequest) (*repository.Document, error)
	Get(ctx context.Context, id string) (*repository.Document, error)
	List(ctx context.Context, page service.Page) ([]*repository.Document, int, error)
	Delete(ctx context.Context, id string) error
}

// API holds the JSON handlers mounted under /v1.
type API struct {
	Search    Searcher
	Projects  ProjectManager
	Personas  PersonaManager
	Documents DocumentManager
	Logger    *slog.Logger
}

// Routes builds the /v1 router.
func (a *API) Routes() http.Handler {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Post("/search", a.search)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", a.indexDocument)
		r.Get("/", a.listDocuments)
		r.Get("/{id}", a.getDocument)
		r.Delete("/{id}", a.deleteDocument)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", a.createProject)
		r.Get("/", a.listProjects)
		r.Get("/{id}", a.getProject)
		r.Put("/{id}", a.updateProject)
		r.Delete("/{id}", a.deleteProject)
		r.Post("/{id}/personas", a.generatePersonas)
		r.Get("/{id}/personas", a.listPersonas)
	})

	r.Get("/personas/{id}", a.getPersona)
	r.Delete("/personas/{id}", a.deletePersona)
	return r
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T, S any](items []S, total int, page service.Page, convert func(S) T) listResponse[T] {
	page = page.Normalize()
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = convert(item)
	}
	return listResponse[T]{Items: out, Total: total, Limit: page.Limit, Offset: page.Offset}
}

// writeError maps service errors onto status codes. Internal errors are
// logged and hidden from the caller.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: reqID})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", RequestID: reqID})
	case errors.Is(err, context.Canceled):
		writeJSON(w, 499, errorResponse{Error: "request canceled", RequestID: reqID})
	default:
		a.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", RequestID: reqID})
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("malformed request body: %v", err)
	}
	return nil
}

func pathUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, badRequest("invalid id")
	}
	return id, nil
}

func pageFromQuery(r *http.Request) (service.Page, error) {
	var page service.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, badRequest("%s must be an integer", name)
		}
		*dst = n
	}
	return page, nil
}

// Search

type searchRequest struct {
	Query        string   `json:"query"`
	K            int      `json:"k"`
	Alpha        *float64 `json:"alpha"`
	IncludeGraph bool     `json:"include_graph"`
}

type searchResponse struct {
	Documents     []vectorstore.Document `json:"documents"`
	CacheKey      string                 `json:"cache_key"`
	CacheStatus   string                 `json:"cache_status"`
	RerankOutcome string                 `json:"rerank_outcome,omitempty"`
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := a.Search.Search(r.Context(), service.SearchRequest{
		Query:        req.Query,
		K:            req.K,
		Alpha:        req.Alpha,
		IncludeGraph: req.IncludeGraph,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	docs := resp.Documents
	if docs == nil {
		docs = []vectorstore.Document{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Documents:     docs,
		CacheKey:      resp.CacheKey,
		CacheStatus:   resp.CacheStatus.String(),
		RerankOutcome: string(resp.RerankOutcome),
	})
}

// Documents

type relatedJSON struct {
	DocumentID string  `json:"document_id"`
	Relation   string  `json:"relation,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
}

type indexDocumentRequest struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Source     string            `json:"source"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Related    []relatedJSON     `json:"related"`
}

type documentJSON struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Source      string            `json:"source"`
	ContentHash string            `json:"content_hash"`
	ChunkCount  int               `json:"chunk_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toDocumentJSON(d *repository.Document) documentJSON {
	return documentJSON{
		ID:          d.ID,
		Title:       d.Title,
		Source:      d.Source,
		ContentHash: d.ContentHash,
		ChunkCount:  d.ChunkCount,
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (a *API) indexDocument(w http.ResponseWriter, r *http.Request) {
	var req indexDocumentRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	related := make([]service.RelatedDocument, len(req.Related))
	for i, rel := range req.Related {
		related[i] = service.RelatedDocument{DocumentID: rel.DocumentID, Relation: rel.Relation, Weight: rel.Weight}
	}

	doc, err := a.Documents.Index(r.Context(), service.IndexDocumentRequest{
		DocumentID: req.DocumentID,
		Title:      req.Title,
		Source:     req.Source,
		Content:    req.Content,
		Metadata:   req.Metadata,
		Related:    related,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentJSON(doc))
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	docs, total, err := a.Documents.List(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(docs, total, page, toDocumentJSON))
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.Documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentJSON(doc))
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := a.Documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Projects

type projectRequest struct {
	Name               *string              `json:"name"`
	Description        *string              `json:"description"`
	TargetDemographics persona.Distribution `json:"target_demographics"`
	PersonalitySkew    map[string]float64   `json:"personality_skew"`
}

type projectJSON struct {
	ID                 uuid.UUID            `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	TargetDemographics persona.Distribution `json:"target_demographics"`
	PersonalitySkew    map[string]float64   `json:"personality_skew"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func toProjectJSON(p *repository.Project) projectJSON {
	return projectJSON{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		TargetDemographics: p.TargetDemographics,
		PersonalitySkew:    p.PersonalitySkew,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.Projects.Create(r.Context(), service.CreateProjectRequest{
		Name:               deref(req.Name),
		Description:        deref(req.Description),
		TargetDemographics: req.TargetDemographics,
		PersonalitySkew:    req.PersonalitySkew,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectJSON(p))
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	projects, total, err := a.Projects.List(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(projects, total, page, toProjectJSON))
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.Projects.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectJSON(p))
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req projectRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.Projects.Update(r.Context(), id, service.UpdateProjectRequest{
		Name:               req.Name,
		Description:        req.Description,
		TargetDemographics: req.TargetDemographics,
		PersonalitySkew:    req.PersonalitySkew,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectJSON(p))
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Projects.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Personas

type generateRequest struct {
	Count          int     `json:"count"`
	Seed           *uint64 `json:"seed"`
	WithBackground bool    `json:"with_background"`
}

type personaJSON struct {
	ID           uuid.UUID                  `json:"id"`
	ProjectID    uuid.UUID                  `json:"project_id"`
	Demographics persona.Demographics       `json:"demographics"`
	Personality  persona.PersonalityProfile `json:"personality"`
	Cultural     persona.CulturalProfile    `json:"cultural"`
	Background   string                     `json:"background,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

func toPersonaJSON(p *repository.Persona) personaJSON {
	return personaJSON{
		ID:           p.ID,
		ProjectID:    p.ProjectID,
		Demographics: p.Demographics,
		Personality:  p.Personality,
		Cultural:     p.Cultural,
		Background:   p.Background,
		CreatedAt:    p.CreatedAt,
	}
}

func (a *API) generatePersonas(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	personas, err := a.Personas.Generate(r.Context(), projectID, service.GenerateRequest{
		Count:          req.Count,
		Seed:           req.Seed,
		WithBackground: req.WithBackground,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out := make([]personaJSON, len(personas))
	for i, p := range personas {
		out[i] = toPersonaJSON(p)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"personas": out})
}

func (a *API) listPersonas(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	personas, total, err := a.Personas.List(r.Context(), projectID, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(personas, total, page, toPersonaJSON))
}

func (a *API) getPersona(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.Personas.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonaJSON(p))
}

func (a *API) deletePersona(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Personas.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
