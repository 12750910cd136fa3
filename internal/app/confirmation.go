package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hylla/splitledger/internal/domain"
)

// ConfirmResult reports a confirmed split and the activation pass that followed it.
type ConfirmResult struct {
	SplitID    int64
	WorkID     string
	Revision   int
	Activation ActivationResult
}

// ConfirmSplit binds accepterID to the split behind token and marks it confirmed, then
// runs activation for the work as a separate step.
func (s *Service) ConfirmSplit(ctx context.Context, token, accepterID string) (ConfirmResult, error) {
	token = strings.TrimSpace(token)
	accepterID = strings.TrimSpace(accepterID)
	if accepterID == "" {
		return ConfirmResult{}, domain.ErrInvalidID
	}
	if token == "" {
		return ConfirmResult{}, ErrInvalidToken
	}
	found, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ConfirmResult{}, ErrInvalidToken
		}
		return ConfirmResult{}, err
	}

	result := ConfirmResult{WorkID: found.WorkID}
	err = s.mutateWork(ctx, found.WorkID, func(scope *workScope) error {
		invitations, err := scope.ListInvitations(ctx, InvitationFilter{IDs: []int64{found.ID}})
		if err != nil {
			return err
		}
		if len(invitations) == 0 || !invitations[0].Outstanding() {
			return ErrInvalidToken
		}
		invitation := invitations[0]
		if invitation.InviteeID != "" && invitation.InviteeID != accepterID {
			return fmt.Errorf("%w: invitation is addressed to another holder", ErrInvalidToken)
		}

		splits, err := scope.ListSplits(ctx, SplitFilter{IDs: []int64{invitation.SplitID}})
		if err != nil {
			return err
		}
		if len(splits) == 0 {
			return ErrInvalidToken
		}
		split := splits[0]
		if split.Status != domain.SplitStatusPending {
			return ErrInvalidToken
		}
		siblings, err := scope.ListSplits(ctx, SplitFilter{Revision: split.Revision})
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID != split.ID && sibling.HolderID == accepterID {
				return fmt.Errorf("%w: %s already holds split %d", domain.ErrDuplicateHolder, accepterID, sibling.ID)
			}
		}

		if err := split.Confirm(accepterID); err != nil {
			return err
		}
		if err := scope.UpdateSplit(ctx, split); err != nil {
			return fmt.Errorf("confirm split %d: %w", split.ID, err)
		}
		if err := invitation.Accept(accepterID); err != nil {
			return err
		}
		if err := scope.UpdateInvitation(ctx, invitation); err != nil {
			return fmt.Errorf("accept invitation %d: %w", invitation.ID, err)
		}
		result.SplitID = split.ID
		result.Revision = split.Revision
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventSplitConfirmed,
			ActorID:  accepterID,
			Revision: split.Revision,
			SplitIDs: []int64{split.ID},
			Metadata: map[string]string{
				"invitation_id": strconv.FormatInt(invitation.ID, 10),
				"holder_id":     accepterID,
			},
		})
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	s.logger.Info("split confirmed", "work_id", result.WorkID, "split_id", result.SplitID, "revision", result.Revision)

	result.Activation, err = s.RunActivation(ctx, result.WorkID)
	if err != nil {
		// The confirmation is committed; activation is idempotent and can be rerun.
		s.logger.Warn("activation after confirmation failed", "work_id", result.WorkID, "err", err)
		return result, fmt.Errorf("run activation after confirmation: %w", err)
	}
	return result, nil
}
