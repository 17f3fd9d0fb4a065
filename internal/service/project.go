package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
)

// CreateProjectRequest creates a project.
type CreateProjectRequest struct {
	Name               string
	Description        string
	TargetDemographics persona.Distribution
	PersonalitySkew    map[string]float64
}

// UpdateProjectRequest changes the fields that are set.
type UpdateProjectRequest struct {
	Name               *string
	Description        *string
	TargetDemographics persona.Distribution
	PersonalitySkew    map[string]float64
}

// ProjectService manages research projects.
type ProjectService struct {
	repo repository.ProjectRepository
	now  func() time.Time
}

// NewProjectService creates a new ProjectService
func NewProjectService(repo repository.ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo, now: time.Now}
}

// Create validates and stores a new project.
func (s *ProjectService) Create(ctx context.Context, req CreateProjectRequest) (*repository.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidf("name is required")
	}
	if err := validateDistribution(req.TargetDemographics); err != nil {
		return nil, err
	}
	if err := validateSkew(req.PersonalitySkew); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &repository.Project{
		ID:                 uuid.New(),
		Name:               name,
		Description:        req.Description,
		TargetDemographics: req.TargetDemographics,
		PersonalitySkew:    req.PersonalitySkew,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// Get returns a project by ID.
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*repository.Project, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of projects and the total count.
func (s *ProjectService) List(ctx context.Context, page Page) ([]*repository.Project, int, error) {
	page = page.Normalize()
	return s.repo.List(ctx, page.Limit, page.Offset)
}

// Update applies the set fields of req.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, req UpdateProjectRequest) (*repository.Project, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalidf("name cannot be empty")
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.TargetDemographics != nil {
		if err := validateDistribution(req.TargetDemographics); err != nil {
			return nil, err
		}
		p.TargetDemographics = req.TargetDemographics
	}
	if req.PersonalitySkew != nil {
		if err := validateSkew(req.PersonalitySkew); err != nil {
			return nil, err
		}
		p.PersonalitySkew = req.PersonalitySkew
	}

	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a project and its personas.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func validateDistribution(dist persona.Distribution) error {
	for attr, weights := range dist {
		if !isDemographicAttribute(attr) {
			return invalidf("unknown demographic attribute %q", attr)
		}
		for category, w := range weights {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return invalidf("weight for %s=%s must be a non-negative number", attr, category)
			}
		}
	}
	return nil
}

// validateSkew accepts any finite mean; the sampler clips it to [0,1].
func validateSkew(skew map[string]float64) error {
	for trait, v := range skew {
		if _, ok := (persona.PersonalityProfile{}).Get(trait); !ok {
			return invalidf("unknown personality trait %q", trait)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidf("skew for %s must be a finite number", trait)
		}
	}
	return nil
}

func isDemographicAttribute(attr string) bool {
	for _, a := range persona.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}
