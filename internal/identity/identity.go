// Package identity resolves viewer profiles for the engine.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
)

var ErrProfileNotFound = errors.New("profile not found")

type Profiles struct {
	store *db.Store
}

func New(store *db.Store) *Profiles {
	return &Profiles{store: store}
}

func (p *Profiles) GetViewerProfile(ctx context.Context, userID uuid.UUID) (db.Profile, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Profile{}, fmt.Errorf("user %s: %w", userID, ErrProfileNotFound)
	}
	if err != nil {
		return db.Profile{}, fmt.Errorf("identity: get profile: %w", err)
	}
	return profile, nil
}
