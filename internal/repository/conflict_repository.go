package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/collab/internal/domain"
)

// conflictRepository implements ConflictRepository on Postgres
type conflictRepository struct {
	pool *pgxpool.Pool
}

// NewConflictRepository creates a Postgres-backed conflict repository
func NewConflictRepository(pool *pgxpool.Pool) ConflictRepository {
	return &conflictRepository{pool: pool}
}

const conflictColumns = `id, entity_type, entity_id, workspace_id, current_version, incoming_version,
	current_data, incoming_data, detected_at, resolved_at, resolution, resolved_by`

// Create stores a new unresolved conflict
func (r *conflictRepository) Create(ctx context.Context, conflict domain.EntityConflict) (domain.EntityConflict, error) {
	currentJSON, err := json.Marshal(conflict.CurrentData)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to marshal current data: %w", err)
	}
	incomingJSON, err := json.Marshal(conflict.IncomingData)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to marshal incoming data: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO entity_conflicts (id, entity_type, entity_id, workspace_id, current_version, incoming_version, current_data, incoming_data, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		conflict.ID, conflict.EntityType, conflict.EntityID, conflict.WorkspaceID,
		conflict.CurrentVersion, conflict.IncomingVersion, currentJSON, incomingJSON, conflict.DetectedAt,
	)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to create conflict: %w", err)
	}

	return conflict, nil
}

// GetByID returns a conflict by id
func (r *conflictRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EntityConflict, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conflictColumns+` FROM entity_conflicts WHERE id = $1`, id)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityConflict{}, domain.NewNotFoundError("conflict", id.String())
		}
		return domain.EntityConflict{}, err
	}

	return conflict, nil
}

// GetUnresolvedByEntity returns the open conflict for an entity
func (r *conflictRepository) GetUnresolvedByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityConflict, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conflictColumns+` FROM entity_conflicts
		WHERE entity_type = $1 AND entity_id = $2 AND resolved_at IS NULL`,
		entityType, entityID)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", entityID.String())
		}
		return domain.EntityConflict{}, err
	}

	return conflict, nil
}

// Refresh updates both sides of an open conflict
func (r *conflictRepository) Refresh(ctx context.Context, id uuid.UUID, currentVersion int64, currentData map[string]any, incomingVersion int64, incomingData map[string]any) (domain.EntityConflict, error) {
	currentJSON, err := json.Marshal(currentData)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to marshal current data: %w", err)
	}
	incomingJSON, err := json.Marshal(incomingData)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to marshal incoming data: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE entity_conflicts
		SET current_version = $2, current_data = $3, incoming_version = $4, incoming_data = $5, detected_at = $6
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING `+conflictColumns,
		id, currentVersion, currentJSON, incomingVersion, incomingJSON, time.Now(),
	)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", id.String())
		}
		return domain.EntityConflict{}, err
	}

	return conflict, nil
}

// ListUnresolved returns all open conflicts in a workspace, oldest first
func (r *conflictRepository) ListUnresolved(ctx context.Context, workspaceID uuid.UUID) ([]domain.EntityConflict, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+conflictColumns+` FROM entity_conflicts
		WHERE workspace_id = $1 AND resolved_at IS NULL
		ORDER BY detected_at ASC`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []domain.EntityConflict{}
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conflicts: %w", err)
	}

	return conflicts, nil
}

// MarkResolved records the terminal transition of a conflict
func (r *conflictRepository) MarkResolved(ctx context.Context, id uuid.UUID, resolution domain.Resolution, resolvedBy uuid.UUID) (domain.EntityConflict, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE entity_conflicts
		SET resolved_at = $2, resolution = $3, resolved_by = $4
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING `+conflictColumns,
		id, time.Now(), resolution, resolvedBy,
	)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", id.String())
		}
		return domain.EntityConflict{}, err
	}

	return conflict, nil
}

func scanConflict(row pgx.Row) (domain.EntityConflict, error) {
	var (
		conflict     domain.EntityConflict
		currentJSON  []byte
		incomingJSON []byte
		resolution   *string
	)
	err := row.Scan(
		&conflict.ID, &conflict.EntityType, &conflict.EntityID, &conflict.WorkspaceID,
		&conflict.CurrentVersion, &conflict.IncomingVersion,
		&currentJSON, &incomingJSON,
		&conflict.DetectedAt, &conflict.ResolvedAt, &resolution, &conflict.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityConflict{}, err
		}
		return domain.EntityConflict{}, fmt.Errorf("failed to scan conflict: %w", err)
	}

	if resolution != nil {
		res := domain.Resolution(*resolution)
		conflict.Resolution = &res
	}
	if len(currentJSON) > 0 {
		if err := json.Unmarshal(currentJSON, &conflict.CurrentData); err != nil {
			return domain.EntityConflict{}, fmt.Errorf("failed to decode current data for conflict %s: %w", conflict.ID, err)
		}
	}
	if len(incomingJSON) > 0 {
		if err := json.Unmarshal(incomingJSON, &conflict.IncomingData); err != nil {
			return domain.EntityConflict{}, fmt.Errorf("failed to decode incoming data for conflict %s: %w", conflict.ID, err)
		}
	}

	return conflict, nil
}
