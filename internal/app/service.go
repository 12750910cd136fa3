package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/splitledger/internal/domain"
)

// DefaultExpirationWindow is how long a delivered invitation may go unanswered.
const DefaultExpirationWindow = 30 * 24 * time.Hour

// DefaultReaperConcurrency bounds how many works one expiry sweep handles at once.
const DefaultReaperConcurrency = 4

// TokenGenerator returns a fresh invitation token.
type TokenGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	ExpirationWindow  time.Duration
	ReaperConcurrency int
	IntegrityGuard    bool
	Advances          AdvanceCanceller
	Publisher         EventPublisher
	Policy            AllocationPolicy
	Logger            Logger
}

// Service runs the split ledger's commands against a repository.
type Service struct {
	repo              Repository
	catalog           Catalog
	tokens            TokenGenerator
	clock             Clock
	expiration        time.Duration
	reaperConcurrency int
	integrityGuard    bool
	advances          AdvanceCanceller
	publisher         EventPublisher
	policy            AllocationPolicy
	logger            Logger
}

// NewService constructs a new value for this package.
func NewService(repo Repository, catalog Catalog, tokens TokenGenerator, clock Clock, cfg ServiceConfig) *Service {
	if tokens == nil {
		tokens = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.ExpirationWindow <= 0 {
		cfg.ExpirationWindow = DefaultExpirationWindow
	}
	if cfg.ReaperConcurrency <= 0 {
		cfg.ReaperConcurrency = DefaultReaperConcurrency
	}
	if cfg.Policy == nil {
		cfg.Policy = AllowAllPolicy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}
	return &Service{
		repo:              repo,
		catalog:           catalog,
		tokens:            tokens,
		clock:             clock,
		expiration:        cfg.ExpirationWindow,
		reaperConcurrency: cfg.ReaperConcurrency,
		integrityGuard:    cfg.IntegrityGuard,
		advances:          cfg.Advances,
		publisher:         cfg.Publisher,
		policy:            cfg.Policy,
		logger:            cfg.Logger,
	}
}

// ExpirationWindow returns the configured invitation expiration window.
func (s *Service) ExpirationWindow() time.Duration {
	return s.expiration
}

// History returns the ordered revision history of a work.
func (s *Service) History(ctx context.Context, workID string) (domain.History, error) {
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return nil, domain.ErrInvalidID
	}
	splits, err := s.repo.ListSplits(ctx, workID, SplitFilter{})
	if err != nil {
		return nil, err
	}
	return domain.NewHistory(splits), nil
}

// Invitations lists a work's invitations.
func (s *Service) Invitations(ctx context.Context, workID string) ([]domain.Invitation, error) {
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListInvitations(ctx, workID, InvitationFilter{})
}

// Events lists a work's most recent ledger events, newest first.
func (s *Service) Events(ctx context.Context, workID string, limit int) ([]domain.Event, error) {
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListEvents(ctx, workID, limit)
}

// VerifyWork runs the integrity checks against a work's stored history.
func (s *Service) VerifyWork(ctx context.Context, workID string) ([]domain.Violation, error) {
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return nil, domain.ErrInvalidID
	}
	ownerID, err := s.catalog.ResolveOwner(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner of %s: %w", workID, err)
	}
	live, err := s.catalog.IsLive(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("resolve release state of %s: %w", workID, err)
	}
	splits, err := s.repo.ListSplits(ctx, workID, SplitFilter{})
	if err != nil {
		return nil, err
	}
	violations := domain.CheckIntegrity(splits, domain.IntegrityOptions{OwnerID: ownerID, Live: live})
	for _, v := range violations {
		s.logger.Warn("split integrity violation", "work_id", workID, "revision", v.Revision, "code", v.Code, "detail", v.Detail)
	}
	return violations, nil
}

// normalizeSplitIDs drops sentinel ids, removes duplicates and sorts the rest.
func normalizeSplitIDs(ids []int64) []int64 {
	seen := map[int64]struct{}{}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
