package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/insight/internal/persona"
	"github.com/knoguchi/insight/internal/repository"
)

func testProject() *repository.Project {
	return &repository.Project{
		ID:                 uuid.New(),
		Name:               "Plant-based dairy",
		TargetDemographics: persona.Distribution{persona.AttrLocation: {"urban": 1}},
		PersonalitySkew:    map[string]float64{persona.Openness: 1.5},
	}
}

func TestPersonaService_Generate(t *testing.T) {
	project := testProject()

	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	personas := new(mockPersonas)
	personas.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)

	svc := NewPersonaService(projects, personas, 50, WithPersonaLogger(quietLogger()))
	got, err := svc.Generate(context.Background(), project.ID, GenerateRequest{Count: 30})

	require.NoError(t, err)
	require.Len(t, got, 30)
	for _, p := range got {
		assert.Equal(t, project.ID, p.ProjectID)
		assert.Equal(t, "urban", p.Demographics.Location)
		assert.LessOrEqual(t, p.Personality.Openness, 1.0)
		assert.GreaterOrEqual(t, p.Personality.Openness, 0.0)
		assert.Empty(t, p.Background)
	}
	personas.AssertExpectations(t)
}

func TestPersonaService_Generate_Seeded(t *testing.T) {
	project := testProject()

	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	personas := new(mockPersonas)
	personas.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)

	svc := NewPersonaService(projects, personas, 50, WithPersonaLogger(quietLogger()))
	seed := uint64(2024)

	a, err := svc.Generate(context.Background(), project.ID, GenerateRequest{Count: 5, Seed: &seed})
	require.NoError(t, err)
	b, err := svc.Generate(context.Background(), project.ID, GenerateRequest{Count: 5, Seed: &seed})
	require.NoError(t, err)

	for i := range a {
		assert.NotEqual(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Demographics, b[i].Demographics)
		assert.Equal(t, a[i].Personality, b[i].Personality)
		assert.Equal(t, a[i].Cultural, b[i].Cultural)
	}
}

func TestPersonaService_Generate_CountLimits(t *testing.T) {
	svc := NewPersonaService(new(mockProjects), new(mockPersonas), 10)

	_, err := svc.Generate(context.Background(), uuid.New(), GenerateRequest{Count: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.Generate(context.Background(), uuid.New(), GenerateRequest{Count: 11})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPersonaService_Generate_ProjectNotFound(t *testing.T) {
	id := uuid.New()
	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	svc := NewPersonaService(projects, new(mockPersonas), 10)
	_, err := svc.Generate(context.Background(), id, GenerateRequest{Count: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPersonaService_Generate_Backgrounds(t *testing.T) {
	project := testProject()

	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	personas := new(mockPersonas)
	personas.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)

	llmClient := new(mockLLM)
	llmClient.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("  Nurse in Porto, two kids.  ", nil).Once()
	llmClient.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	svc := NewPersonaService(projects, personas, 10,
		WithBackgroundWriter(llmClient),
		WithPersonaLogger(quietLogger()),
	)
	got, err := svc.Generate(context.Background(), project.ID, GenerateRequest{Count: 3, WithBackground: true})
	require.NoError(t, err)

	written := 0
	for _, p := range got {
		if p.Background != "" {
			assert.Equal(t, "Nurse in Porto, two kids.", p.Background)
			written++
		}
	}
	assert.Equal(t, 1, written)
	llmClient.AssertNumberOfCalls(t, "Generate", 3)
}

func TestPersonaService_Generate_StoreFailure(t *testing.T) {
	project := testProject()

	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, project.ID).Return(project, nil)
	personas := new(mockPersonas)
	personas.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	svc := NewPersonaService(projects, personas, 10, WithPersonaLogger(quietLogger()))
	_, err := svc.Generate(context.Background(), project.ID, GenerateRequest{Count: 2})
	assert.Error(t, err)
}

func TestPersonaService_List_ChecksProject(t *testing.T) {
	id := uuid.New()
	projects := new(mockProjects)
	projects.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	svc := NewPersonaService(projects, new(mockPersonas), 10)
	_, _, err := svc.List(context.Background(), id, Page{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBackgroundPrompt(t *testing.T) {
	p := &repository.Persona{Demographics: persona.Demographics{AgeGroup: "35-44"}}
	prompt := backgroundPrompt(testProject(), p)
	assert.Contains(t, prompt, "Plant-based dairy")
	assert.Contains(t, prompt, `"age_group":"35-44"`)
}
