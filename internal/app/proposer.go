package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hylla/splitledger/internal/domain"
)

// ProposeRevisionInput holds input values for propose revision operations.
type ProposeRevisionInput struct {
	WorkID      string
	RequesterID string
	Entries     []domain.AllocationEntry
}

// ProposalResult reports the revision written by a proposal.
type ProposalResult struct {
	// Revision is the number the proposal was written under. When the proposal
	// activated immediately, Activation.Revision holds its final number.
	Revision    int
	SplitIDs    []int64
	Invitations []domain.Invitation
	Activation  ActivationResult
}

// CreateInitialAllocation writes revision 1 for a work that has no splits yet.
// Invitations are created undelivered until MarkInvitationSent records a delivery.
func (s *Service) CreateInitialAllocation(ctx context.Context, in ProposeRevisionInput) (ProposalResult, error) {
	return s.propose(ctx, in, true)
}

// ProposeRevision writes a new draft revision for a work, superseding any earlier draft.
// Invitations are created as delivered at the current time.
func (s *Service) ProposeRevision(ctx context.Context, in ProposeRevisionInput) (ProposalResult, error) {
	return s.propose(ctx, in, false)
}

// propose validates and writes one revision, then runs activation in the same scope.
func (s *Service) propose(ctx context.Context, in ProposeRevisionInput, initial bool) (ProposalResult, error) {
	in.WorkID = strings.TrimSpace(in.WorkID)
	in.RequesterID = strings.TrimSpace(in.RequesterID)
	if in.WorkID == "" || in.RequesterID == "" {
		return ProposalResult{}, domain.ErrInvalidID
	}
	entries := make([]domain.AllocationEntry, 0, len(in.Entries))
	for _, entry := range in.Entries {
		entry.HolderID = strings.TrimSpace(entry.HolderID)
		entries = append(entries, entry)
	}

	ownerID, err := s.catalog.ResolveOwner(ctx, in.WorkID)
	if err != nil {
		return ProposalResult{}, fmt.Errorf("resolve owner of %s: %w", in.WorkID, err)
	}
	if err := domain.ValidateAllocation(entries, ownerID); err != nil {
		return ProposalResult{}, err
	}
	if err := s.policy.Allow(ctx, AllocationRequest{
		WorkID:      in.WorkID,
		RequesterID: in.RequesterID,
		OwnerID:     ownerID,
		Entries:     entries,
		Initial:     initial,
	}); err != nil {
		return ProposalResult{}, err
	}

	var result ProposalResult
	err = s.mutateWork(ctx, in.WorkID, func(scope *workScope) error {
		history, err := scope.history(ctx)
		if err != nil {
			return err
		}
		if initial && len(history) > 0 {
			return fmt.Errorf("%w: %s has %d revisions", ErrConflict, in.WorkID, len(history))
		}
		if history.HasLocked() {
			return fmt.Errorf("%w: %s", ErrLockedSplits, in.WorkID)
		}

		superseded := make([]int, 0)
		for _, draft := range history.Drafts() {
			if err := scope.deleteRevision(ctx, draft); err != nil {
				return err
			}
			superseded = append(superseded, draft.Number)
			s.logger.Info("draft revision superseded", "work_id", in.WorkID, "revision", draft.Number, "split_ids", draft.SplitIDs())
		}
		result.Revision = history.MaxNumberExcluding(superseded...) + 1

		for _, entry := range entries {
			splitID, invitation, err := s.writeEntry(ctx, scope, in.RequesterID, ownerID, result.Revision, entry, initial)
			if err != nil {
				return err
			}
			result.SplitIDs = append(result.SplitIDs, splitID)
			if invitation != nil {
				result.Invitations = append(result.Invitations, *invitation)
			}
		}
		s.logger.Info("revision proposed", "work_id", in.WorkID, "revision", result.Revision, "split_ids", result.SplitIDs, "invitations", len(result.Invitations))

		result.Activation, err = s.activate(ctx, scope)
		return err
	})
	if err != nil {
		return ProposalResult{}, err
	}
	return result, nil
}

// writeEntry creates one split and, for parties other than the requester and the
// owner, its invitation.
func (s *Service) writeEntry(ctx context.Context, scope *workScope, requesterID, ownerID string, revision int, entry domain.AllocationEntry, initial bool) (int64, *domain.Invitation, error) {
	isOwner := entry.HolderID == ownerID
	self := entry.HolderID != "" && (entry.HolderID == requesterID || isOwner)
	split := domain.Split{
		WorkID:    scope.workID,
		HolderID:  entry.HolderID,
		Rate:      entry.Rate,
		Revision:  revision,
		Status:    domain.SplitStatusPending,
		IsOwner:   isOwner,
		CreatedAt: scope.now,
	}
	if self {
		split.Status = domain.SplitStatusConfirmed
	}
	splitID, err := scope.CreateSplit(ctx, split)
	if err != nil {
		return 0, nil, fmt.Errorf("create split: %w", err)
	}
	if self {
		return splitID, nil, nil
	}

	invitation := domain.Invitation{
		SplitID:   splitID,
		WorkID:    scope.workID,
		InviterID: requesterID,
		InviteeID: entry.HolderID,
		Invitee:   entry.Invite,
		Token:     s.tokens(),
		Status:    domain.InvitationStatusCreated,
		CreatedAt: scope.now,
	}
	if !initial {
		if err := invitation.MarkSent(scope.now); err != nil {
			return 0, nil, err
		}
	}
	invitation.ID, err = scope.CreateInvitation(ctx, invitation)
	if err != nil {
		return 0, nil, fmt.Errorf("create invitation for split %d: %w", splitID, err)
	}
	if err := scope.emit(ctx, domain.Event{
		Kind:     domain.EventInvitationCreated,
		ActorID:  requesterID,
		Revision: revision,
		SplitIDs: []int64{splitID},
		Metadata: map[string]string{
			"invitation_id": strconv.FormatInt(invitation.ID, 10),
			"invitee_id":    invitation.InviteeID,
			"invitee_name":  invitation.Invitee.Name,
			"invitee_email": invitation.Invitee.Email,
			"invitee_phone": invitation.Invitee.Phone,
			"token":         invitation.Token,
			"rate":          entry.Rate.String(),
		},
	}); err != nil {
		return 0, nil, err
	}
	return splitID, &invitation, nil
}

// MarkInvitationSent records that the notification collaborator delivered, or
// re-delivered, an invitation. The expiration window restarts from now.
func (s *Service) MarkInvitationSent(ctx context.Context, invitationID int64) (domain.Invitation, error) {
	if invitationID <= 0 {
		return domain.Invitation{}, domain.ErrInvalidID
	}
	found, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.Invitation{}, err
	}
	var out domain.Invitation
	err = s.mutateWork(ctx, found.WorkID, func(scope *workScope) error {
		invitations, err := scope.ListInvitations(ctx, InvitationFilter{IDs: []int64{invitationID}})
		if err != nil {
			return err
		}
		if len(invitations) == 0 {
			return ErrNotFound
		}
		out = invitations[0]
		if err := out.MarkSent(scope.now); err != nil {
			return fmt.Errorf("invitation %d: %w", invitationID, err)
		}
		return scope.UpdateInvitation(ctx, out)
	})
	if err != nil {
		return domain.Invitation{}, err
	}
	return out, nil
}
