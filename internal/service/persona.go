package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/insight/internal/llm"
	"github.com/knoguchi/insight/internal/metrics"
	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
)

const backgroundConcurrency = 4

// GenerateRequest asks for Count new personas. A set Seed makes the sampled
// attributes reproducible.
type GenerateRequest struct {
	Count          int
	Seed           *uint64
	WithBackground bool
}

// PersonaService samples, stores and serves synthetic personas.
type PersonaService struct {
	projects repository.ProjectRepository
	personas repository.PersonaRepository
	llm      llm.LLM
	maxBatch int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// PersonaOption is a functional option for configuring PersonaService.
type PersonaOption func(*PersonaService)

// WithBackgroundWriter lets Generate ask an LLM for a short biography.
func WithBackgroundWriter(client llm.LLM) PersonaOption {
	return func(s *PersonaService) {
		s.llm = client
	}
}

// WithPersonaLogger sets the logger.
func WithPersonaLogger(logger *slog.Logger) PersonaOption {
	return func(s *PersonaService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPersonaMetrics counts generated personas.
func WithPersonaMetrics(m *metrics.Metrics) PersonaOption {
	return func(s *PersonaService) {
		s.metrics = m
	}
}

// NewPersonaService creates a new PersonaService
func NewPersonaService(projects repository.ProjectRepository, personas repository.PersonaRepository, maxBatch int, opts ...PersonaOption) *PersonaService {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	s := &PersonaService{
		projects: projects,
		personas: personas,
		maxBatch: maxBatch,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate samples personas for a project using its target demographics and
// personality skew, then stores them.
func (s *PersonaService) Generate(ctx context.Context, projectID uuid.UUID, req GenerateRequest) ([]*repository.Persona, error) {
	if req.Count < 1 || req.Count > s.maxBatch {
		return nil, invalidf("count must be between 1 and %d", s.maxBatch)
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if req.Seed != nil {
		rng = rand.New(rand.NewPCG(*req.Seed, *req.Seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	now := s.now().UTC()
	personas := make([]*repository.Persona, req.Count)
	for i := range personas {
		personas[i] = &repository.Persona{
			ID:           uuid.New(),
			ProjectID:    project.ID,
			Demographics: persona.SampleDemographics(rng, project.TargetDemographics),
			Personality:  persona.SampleBigFive(rng, project.PersonalitySkew),
			Cultural:     persona.SampleCulturalDimensions(rng),
			CreatedAt:    now,
		}
	}

	if req.WithBackground && s.llm != nil {
		s.writeBackgrounds(ctx, project, personas)
	}

	if err := s.personas.CreateBatch(ctx, personas); err != nil {
		return nil, fmt.Errorf("failed to store personas: %w", err)
	}

	s.metrics.PersonasGenerated(len(personas))
	s.logger.Info("personas generated",
		"project_id", project.ID.String(),
		"count", len(personas),
		"seeded", req.Seed != nil,
	)
	return personas, nil
}

// writeBackgrounds fills Background concurrently. A failed call leaves the
// persona without one.
func (s *PersonaService) writeBackgrounds(ctx context.Context, project *repository.Project, personas []*repository.Persona) {
	var g errgroup.Group
	g.SetLimit(backgroundConcurrency)

	for _, p := range personas {
		g.Go(func() error {
			text, err := s.llm.Generate(ctx, backgroundPrompt(project, p), llm.GenerateOptions{
				SystemPrompt: "You write short, realistic biographies of survey respondents.",
				Temperature:  0.8,
				MaxTokens:    200,
			})
			if err != nil {
				s.logger.Warn("persona background generation failed",
					"persona_id", p.ID.String(),
					"error", err,
				)
				return nil
			}
			p.Background = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()
}

func backgroundPrompt(project *repository.Project, p *repository.Persona) string {
	profile, _ := json.Marshal(struct {
		Demographics persona.Demographics       `json:"demographics"`
		Personality  persona.PersonalityProfile `json:"personality"`
		Cultural     persona.CulturalProfile    `json:"cultural"`
	}{p.Demographics, p.Personality, p.Cultural})

	var b strings.Builder
	fmt.Fprintf(&b, "Research project: %s\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "Project description: %s\n", project.Description)
	}
	fmt.Fprintf(&b, "Respondent profile (trait scores are 0 to 1):\n%s\n\n", profile)
	b.WriteString("Write a 2-3 sentence background for this respondent: occupation, household, ")
	b.WriteString("and one habit relevant to the project. Reply with the background only.")
	return b.String()
}

// Get returns a persona by ID.
func (s *PersonaService) Get(ctx context.Context, id uuid.UUID) (*repository.Persona, error) {
	return s.personas.GetByID(ctx, id)
}

// List returns a page of a project's personas and the total count.
func (s *PersonaService) List(ctx context.Context, projectID uuid.UUID, page Page) ([]*repository.Persona, int, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	return s.personas.ListByProject(ctx, projectID, page.Limit, page.Offset)
}

// Delete removes a persona.
func (s *PersonaService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.personas.Delete(ctx, id)
}
