package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/collab/internal/domain"
)

// uniqueViolation is the Postgres error code raised by the
// (entity_type, entity_id, version_number) unique constraint.
const uniqueViolation = "23505"

// versionRepository implements VersionRepository on Postgres
type versionRepository struct {
	pool *pgxpool.Pool
}

// NewVersionRepository creates a Postgres-backed version repository
func NewVersionRepository(pool *pgxpool.Pool) VersionRepository {
	return &versionRepository{pool: pool}
}

// Append stores a new entity version row
func (r *versionRepository) Append(ctx context.Context, version domain.EntityVersion) (domain.EntityVersion, error) {
	snapshotJSON, err := json.Marshal(version.Snapshot)
	if err != nil {
		return domain.EntityVersion{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO entity_versions (id, entity_type, entity_id, workspace_id, version_number, snapshot, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		version.ID, version.EntityType, version.EntityID, version.WorkspaceID,
		version.VersionNumber, snapshotJSON, version.ChangedBy, version.ChangedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.EntityVersion{}, &domain.VersionConflictError{
				EntityType:    version.EntityType,
				EntityID:      version.EntityID.String(),
				VersionNumber: version.VersionNumber,
			}
		}
		return domain.EntityVersion{}, fmt.Errorf("failed to append entity version: %w", err)
	}

	return version, nil
}

// History returns up to limit versions of an entity, newest first
func (r *versionRepository) History(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.EntityVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, workspace_id, version_number, snapshot, changed_by, changed_at
		FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version_number DESC
		LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity versions: %w", err)
	}
	defer rows.Close()

	versions := []domain.EntityVersion{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entity versions: %w", err)
	}

	return versions, nil
}

// Current returns the newest version of an entity
func (r *versionRepository) Current(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityVersion, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entity_type, entity_id, workspace_id, version_number, snapshot, changed_by, changed_at
		FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version_number DESC
		LIMIT 1`,
		entityType, entityID,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityVersion{}, domain.NewNotFoundError("entity", entityID.String())
		}
		return domain.EntityVersion{}, err
	}

	return version, nil
}

// CurrentNumber returns the newest version number of an entity, 0 when absent
func (r *versionRepository) CurrentNumber(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (int64, error) {
	var number int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0)
		FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version number: %w", err)
	}
	return number, nil
}

// CurrentMany returns the newest version of each listed entity of one type
func (r *versionRepository) CurrentMany(ctx context.Context, entityType domain.EntityType, entityIDs []uuid.UUID) ([]domain.EntityVersion, error) {
	if len(entityIDs) == 0 {
		return []domain.EntityVersion{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (entity_id)
			id, entity_type, entity_id, workspace_id, version_number, snapshot, changed_by, changed_at
		FROM entity_versions
		WHERE entity_type = $1 AND entity_id = ANY($2)
		ORDER BY entity_id, version_number DESC`,
		entityType, entityIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query current versions: %w", err)
	}
	defer rows.Close()

	versions := []domain.EntityVersion{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read current versions: %w", err)
	}

	return versions, nil
}

func scanVersion(row pgx.Row) (domain.EntityVersion, error) {
	var (
		version      domain.EntityVersion
		snapshotJSON []byte
	)
	err := row.Scan(
		&version.ID, &version.EntityType, &version.EntityID, &version.WorkspaceID,
		&version.VersionNumber, &snapshotJSON, &version.ChangedBy, &version.ChangedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityVersion{}, err
		}
		return domain.EntityVersion{}, fmt.Errorf("failed to scan entity version: %w", err)
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &version.Snapshot); err != nil {
			return domain.EntityVersion{}, fmt.Errorf("failed to decode snapshot for version %s: %w", version.ID, err)
		}
	}

	return version, nil
}
