package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/insight/internal/repository"
)

// ProjectRepo implements repository.ProjectRepository
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a new project repository
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

const projectColumns = `id, name, description, target_demographics, personality_skew, created_at, updated_at`

// Create creates a new project
func (r *ProjectRepo) Create(ctx context.Context, p *repository.Project) error {
	demographicsJSON, skewJSON, err := marshalProjectJSON(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, demographicsJSON, skewJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List retrieves projects newest first with pagination
func (r *ProjectRepo) List(ctx context.Context, limit, offset int) ([]*repository.Project, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*repository.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, total, nil
}

// Update updates a project
func (r *ProjectRepo) Update(ctx context.Context, p *repository.Project) error {
	demographicsJSON, skewJSON, err := marshalProjectJSON(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET name = $2, description = $3, target_demographics = $4, personality_skew = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, demographicsJSON, skewJSON, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a project and, by cascade, its personas
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func marshalProjectJSON(p *repository.Project) ([]byte, []byte, error) {
	demographicsJSON, err := json.Marshal(p.TargetDemographics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal target demographics: %w", err)
	}
	skewJSON, err := json.Marshal(p.PersonalitySkew)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal personality skew: %w", err)
	}
	return demographicsJSON, skewJSON, nil
}

func scanProject(row pgx.Row) (*repository.Project, error) {
	var p repository.Project
	var demographicsJSON, skewJSON []byte

	if err := row.Scan(&p.ID, &p.Name, &p.Description, &demographicsJSON, &skewJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(demographicsJSON) > 0 {
		if err := json.Unmarshal(demographicsJSON, &p.TargetDemographics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target demographics: %w", err)
		}
	}
	if len(skewJSON) > 0 {
		if err := json.Unmarshal(skewJSON, &p.PersonalitySkew); err != nil {
			return nil, fmt.Errorf("failed to unmarshal personality skew: %w", err)
		}
	}
	return &p, nil
}

var _ repository.ProjectRepository = (*ProjectRepo)(nil)
