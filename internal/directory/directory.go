// Package directory is the class/org lookup collaborator. Class rows are
// always read fresh in one batched query; the org tree changes rarely and is
// served from a short-lived redis snapshot when redis is configured.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/hierarchy"
)

const treeCacheKey = "directory:org_tree"

type Directory struct {
	store   *db.Store
	redis   *redis.Client
	treeTTL time.Duration
}

func New(store *db.Store, redisClient *redis.Client, treeTTL time.Duration) *Directory {
	return &Directory{store: store, redis: redisClient, treeTTL: treeTTL}
}

func (d *Directory) ClassesByIDs(ctx context.Context, ids []uuid.UUID) ([]db.Class, error) {
	classes, err := d.store.GetClassesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("directory: get classes: %w", err)
	}
	return classes, nil
}

type orgTree struct {
	Kelompok []db.KelompokNode `json:"kelompok"`
	Desa     []db.DesaNode     `json:"desa"`
}

// BuildIndex resolves the given classes against the org tree into a
// per-request hierarchy index.
func (d *Directory) BuildIndex(ctx context.Context, classIDs []uuid.UUID) (*hierarchy.Index, error) {
	classes, err := d.ClassesByIDs(ctx, classIDs)
	if err != nil {
		return nil, err
	}
	tree, err := d.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	return hierarchy.Build(classes, tree.Kelompok, tree.Desa), nil
}

func (d *Directory) loadTree(ctx context.Context) (orgTree, error) {
	if d.redis != nil {
		if value, err := d.redis.Get(ctx, treeCacheKey).Result(); err == nil {
			var tree orgTree
			if err := json.Unmarshal([]byte(value), &tree); err == nil {
				return tree, nil
			}
			// Unreadable snapshot falls through to the database.
		}
	}

	kelompok, err := d.store.ListKelompok(ctx)
	if err != nil {
		return orgTree{}, fmt.Errorf("directory: list kelompok: %w", err)
	}
	desa, err := d.store.ListDesa(ctx)
	if err != nil {
		return orgTree{}, fmt.Errorf("directory: list desa: %w", err)
	}
	tree := orgTree{Kelompok: kelompok, Desa: desa}

	if d.redis != nil && d.treeTTL > 0 {
		if data, err := json.Marshal(tree); err == nil {
			_ = d.redis.Set(ctx, treeCacheKey, data, d.treeTTL).Err()
		}
	}
	return tree, nil
}
