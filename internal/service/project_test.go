package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
)

func TestProjectService_Create(t *testing.T) {
	repo := new(mockProjects)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(p *repository.Project) bool {
		return p.Name == "Gen Z snacking" && p.ID != uuid.Nil && !p.CreatedAt.IsZero()
	})).Return(nil)

	svc := NewProjectService(repo)
	p, err := svc.Create(context.Background(), CreateProjectRequest{
		Name:               "  Gen Z snacking ",
		TargetDemographics: persona.Distribution{persona.AttrAgeGroup: {"18-24": 1}},
		PersonalitySkew:    map[string]float64{persona.Openness: 1.5},
	})

	require.NoError(t, err)
	assert.Equal(t, "Gen Z snacking", p.Name)
	repo.AssertExpectations(t)
}

func TestProjectService_Create_Invalid(t *testing.T) {
	svc := NewProjectService(new(mockProjects))

	tests := []struct {
		name string
		req  CreateProjectRequest
	}{
		{"missing name", CreateProjectRequest{Name: " "}},
		{"unknown attribute", CreateProjectRequest{Name: "x", TargetDemographics: persona.Distribution{"shoe_size": {"42": 1}}}},
		{"negative weight", CreateProjectRequest{Name: "x", TargetDemographics: persona.Distribution{persona.AttrGender: {"male": -1}}}},
		{"unknown trait", CreateProjectRequest{Name: "x", PersonalitySkew: map[string]float64{"charisma": 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestProjectService_Update_Partial(t *testing.T) {
	id := uuid.New()
	existing := &repository.Project{ID: id, Name: "old", Description: "keep me"}

	repo := new(mockProjects)
	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(p *repository.Project) bool {
		return p.Name == "new" && p.Description == "keep me"
	})).Return(nil)

	name := "new"
	p, err := NewProjectService(repo).Update(context.Background(), id, UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "new", p.Name)
	repo.AssertExpectations(t)
}

func TestProjectService_Get_NotFound(t *testing.T) {
	id := uuid.New()
	repo := new(mockProjects)
	repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := NewProjectService(repo).Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectService_List_ClampsPage(t *testing.T) {
	repo := new(mockProjects)
	repo.On("List", mock.Anything, 100, 0).Return([]*repository.Project{}, 0, nil)

	_, _, err := NewProjectService(repo).List(context.Background(), Page{Limit: 500, Offset: -3})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
