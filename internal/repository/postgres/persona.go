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

// PersonaRepo implements repository.PersonaRepository
type PersonaRepo struct {
	db *DB
}

// NewPersonaRepo creates a new persona repository
func NewPersonaRepo(db *DB) *PersonaRepo {
	return &PersonaRepo{db: db}
}

const personaColumns = `id, project_id, demographics, personality, cultural, background, created_at`

// CreateBatch inserts personas in one transaction
func (r *PersonaRepo) CreateBatch(ctx context.Context, personas []*repository.Persona) error {
	if len(personas) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `INSERT INTO personas (` + personaColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, p := range personas {
		demographicsJSON, err := json.Marshal(p.Demographics)
		if err != nil {
			return fmt.Errorf("failed to marshal demographics: %w", err)
		}
		personalityJSON, err := json.Marshal(p.Personality)
		if err != nil {
			return fmt.Errorf("failed to marshal personality: %w", err)
		}
		culturalJSON, err := json.Marshal(p.Cultural)
		if err != nil {
			return fmt.Errorf("failed to marshal cultural profile: %w", err)
		}

		if _, err := tx.Exec(ctx, query,
			p.ID, p.ProjectID, demographicsJSON, personalityJSON, culturalJSON, p.Background, p.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert persona: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit personas: %w", err)
	}
	return nil
}

// GetByID retrieves a persona by ID
func (r *PersonaRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE id = $1`

	p, err := scanPersona(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	return p, nil
}

// ListByProject retrieves a project's personas oldest first with pagination
func (r *PersonaRepo) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*repository.Persona, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM personas WHERE project_id = $1`, projectID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count personas: %w", err)
	}

	query := `SELECT ` + personaColumns + ` FROM personas WHERE project_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	var personas []*repository.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan persona: %w", err)
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate personas: %w", err)
	}
	return personas, total, nil
}

// Delete deletes a persona
func (r *PersonaRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM personas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanPersona(row pgx.Row) (*repository.Persona, error) {
	var p repository.Persona
	var demographicsJSON, personalityJSON, culturalJSON []byte

	err := row.Scan(&p.ID, &p.ProjectID, &demographicsJSON, &personalityJSON, &culturalJSON, &p.Background, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(demographicsJSON, &p.Demographics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal demographics: %w", err)
	}
	if err := json.Unmarshal(personalityJSON, &p.Personality); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personality: %w", err)
	}
	if err := json.Unmarshal(culturalJSON, &p.Cultural); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cultural profile: %w", err)
	}
	return &p, nil
}

var _ repository.PersonaRepository = (*PersonaRepo)(nil)
