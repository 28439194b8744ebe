package versionloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/repository"
)

// VersionLoader batches current-version lookups so that materializing a list
// of conflicts costs one query per entity type instead of one per conflict.
type VersionLoader struct {
	Loader *dataloader.Loader
}

// Key builds the loader key for one entity.
func Key(entityType domain.EntityType, entityID uuid.UUID) dataloader.Key {
	return dataloader.StringKey(string(entityType) + ":" + entityID.String())
}

func parseKey(key string) (domain.EntityType, uuid.UUID, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return "", uuid.Nil, fmt.Errorf("malformed loader key %q", key)
	}
	entityType, err := domain.ParseEntityType(parts[0])
	if err != nil {
		return "", uuid.Nil, err
	}
	entityID, err := uuid.Parse(parts[1])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid UUID in loader key: %w", err)
	}
	return entityType, entityID, nil
}

// NewVersionLoader creates a loader over the version repository.
func NewVersionLoader(repo repository.VersionRepository) *VersionLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Group requested entities by type; one bulk query per type.
		byType := make(map[domain.EntityType][]uuid.UUID)
		refs := make([]struct {
			entityType domain.EntityType
			entityID   uuid.UUID
		}, len(keys))
		for i, k := range keys {
			entityType, entityID, err := parseKey(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			refs[i].entityType = entityType
			refs[i].entityID = entityID
			byType[entityType] = append(byType[entityType], entityID)
		}

		current := make(map[string]domain.EntityVersion)
		for entityType, ids := range byType {
			versions, err := repo.CurrentMany(ctx, entityType, ids)
			if err != nil {
				for i := range results {
					if results[i] == nil {
						results[i] = &dataloader.Result{Error: err}
					}
				}
				return results
			}
			for _, version := range versions {
				current[Key(version.EntityType, version.EntityID).String()] = version
			}
		}

		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			if version, ok := current[k.String()]; ok {
				results[i] = &dataloader.Result{Data: version}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &VersionLoader{Loader: loader}
}
