package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/domain"
)

// RegisterWork inserts or replaces a local catalog entry.
func (r *Repository) RegisterWork(ctx context.Context, work domain.Work) error {
	if strings.TrimSpace(work.ID) == "" || strings.TrimSpace(work.OwnerID) == "" {
		return domain.ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO works(work_id, owner_id, artist_id, live, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			artist_id = excluded.artist_id,
			live = excluded.live,
			updated_at = excluded.updated_at
	`,
		work.ID,
		work.OwnerID,
		work.ArtistID,
		work.Live,
		ts(work.CreatedAt),
		ts(work.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert work: %w", err)
	}
	return nil
}

// GetWork returns one catalog entry.
func (r *Repository) GetWork(ctx context.Context, workID string) (domain.Work, error) {
	var (
		work       domain.Work
		createdRaw string
		updatedRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT work_id, owner_id, artist_id, live, created_at, updated_at
		FROM works
		WHERE work_id = ?
	`, workID).Scan(&work.ID, &work.OwnerID, &work.ArtistID, &work.Live, &createdRaw, &updatedRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Work{}, app.ErrNotFound
		}
		return domain.Work{}, err
	}
	work.CreatedAt = parseTS(createdRaw)
	work.UpdatedAt = parseTS(updatedRaw)
	return work, nil
}

// ResolveOwner implements app.Catalog.
func (r *Repository) ResolveOwner(ctx context.Context, workID string) (string, error) {
	work, err := r.GetWork(ctx, workID)
	if err != nil {
		return "", err
	}
	return work.OwnerID, nil
}

// IsLive implements app.Catalog.
func (r *Repository) IsLive(ctx context.Context, workID string) (bool, error) {
	work, err := r.GetWork(ctx, workID)
	if err != nil {
		return false, err
	}
	return work.Live, nil
}

// WorksFor implements app.Catalog. A subject that is not a registered artist is
// treated as a work id.
func (r *Repository) WorksFor(ctx context.Context, subject string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT work_id FROM works WHERE artist_id = ? ORDER BY work_id ASC`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var workID string
		if err := rows.Scan(&workID); err != nil {
			return nil, err
		}
		out = append(out, workID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		out = append(out, subject)
	}
	return out, nil
}

// SetHolderTier records whether holderID is on a paying plan.
func (r *Repository) SetHolderTier(ctx context.Context, holderID string, paying bool, now time.Time) error {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return domain.ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holders(holder_id, paying, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(holder_id) DO UPDATE SET paying = excluded.paying, updated_at = excluded.updated_at
	`, holderID, paying, ts(now))
	if err != nil {
		return fmt.Errorf("upsert holder tier: %w", err)
	}
	return nil
}

// IsPaying implements app.TierResolver. Unknown holders are on the free tier.
func (r *Repository) IsPaying(ctx context.Context, holderID string) (bool, error) {
	var paying bool
	err := r.db.QueryRowContext(ctx, `SELECT paying FROM holders WHERE holder_id = ?`, holderID).Scan(&paying)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return paying, nil
}
