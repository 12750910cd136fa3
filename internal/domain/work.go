package domain

import (
	"strings"
	"time"
)

// Work is one catalog entry the ledger allocates splits for.
type Work struct {
	ID       string
	OwnerID  string
	ArtistID string
	// Live reports whether the work has been delivered to stores.
	Live      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewWork validates and normalizes a catalog entry.
func NewWork(id, ownerID, artistID string, live bool, now time.Time) (Work, error) {
	id = strings.TrimSpace(id)
	ownerID = strings.TrimSpace(ownerID)
	if id == "" || ownerID == "" {
		return Work{}, ErrInvalidID
	}
	return Work{
		ID:        id,
		OwnerID:   ownerID,
		ArtistID:  strings.TrimSpace(artistID),
		Live:      live,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}
