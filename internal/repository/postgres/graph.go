package postgres

import (
	"context"
	"fmt"

	"github.com/knoguchi/insight/internal/repository"
)

// GraphRepo implements repository.GraphRepository on the graph_edges table
type GraphRepo struct {
	db *DB
}

// NewGraphRepo creates a new graph repository
func NewGraphRepo(db *DB) *GraphRepo {
	return &GraphRepo{db: db}
}

// AddEdges inserts edges, overwriting the weight of an existing
// (source, target, relation) edge.
func (r *GraphRepo) AddEdges(ctx context.Context, edges []repository.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO graph_edges (source_id, target_id, relation, weight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, target_id, relation) DO UPDATE SET weight = EXCLUDED.weight
	`
	for _, e := range edges {
		if _, err := tx.Exec(ctx, query, e.SourceID, e.TargetID, e.Relation, e.Weight); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit edges: %w", err)
	}
	return nil
}

// Related returns the top related documents per source, strongest first.
// A target reachable through several relations counts once, at its highest
// weight.
func (r *GraphRepo) Related(ctx context.Context, documentIDs []string, limit int) (map[string][]string, error) {
	related := make(map[string][]string)
	if len(documentIDs) == 0 || limit <= 0 {
		return related, nil
	}

	query := `
		SELECT source_id, target_id
		FROM (
			SELECT source_id, target_id,
				ROW_NUMBER() OVER (PARTITION BY source_id ORDER BY MAX(weight) DESC, target_id) AS rn
			FROM graph_edges
			WHERE source_id = ANY($1) AND target_id <> source_id
			GROUP BY source_id, target_id
		) ranked
		WHERE rn <= $2
		ORDER BY source_id, rn
	`
	rows, err := r.db.Pool.Query(ctx, query, documentIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query related documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		related[source] = append(related[source], target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return related, nil
}

var _ repository.GraphRepository = (*GraphRepo)(nil)
