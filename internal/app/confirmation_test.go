package app

import (
	"context"
	"errors"
	"testing"

	"github.com/hylla/splitledger/internal/domain"
)

// proposeWithInvite writes revision 2 for w1 with x and one invited party at half each.
func (l *testLedger) proposeWithInvite(t *testing.T, entry domain.AllocationEntry) ProposalResult {
	t.Helper()
	entry.Rate = rate("0.5")
	proposal, err := l.svc.ProposeRevision(context.Background(), ProposeRevisionInput{
		WorkID:      "w1",
		RequesterID: "x",
		Entries:     []domain.AllocationEntry{{HolderID: "x", Rate: rate("0.5")}, entry},
	})
	if err != nil {
		t.Fatalf("ProposeRevision() error = %v", err)
	}
	return proposal
}

// TestConfirmSplitRejections verifies tokens only confirm for the right party.
func TestConfirmSplitRejections(t *testing.T) {
	cases := []struct {
		name     string
		entry    domain.AllocationEntry
		token    func(ProposalResult) string
		accepter string
		want     error
	}{
		{
			name:     "unknown token",
			entry:    domain.AllocationEntry{HolderID: "z"},
			token:    func(ProposalResult) string { return "nope" },
			accepter: "z",
			want:     ErrInvalidToken,
		},
		{
			name:     "blank token",
			entry:    domain.AllocationEntry{HolderID: "z"},
			token:    func(ProposalResult) string { return " " },
			accepter: "z",
			want:     ErrInvalidToken,
		},
		{
			name:     "blank accepter",
			entry:    domain.AllocationEntry{HolderID: "z"},
			token:    func(p ProposalResult) string { return p.Invitations[0].Token },
			accepter: "",
			want:     domain.ErrInvalidID,
		},
		{
			name:     "addressed to another holder",
			entry:    domain.AllocationEntry{HolderID: "z"},
			token:    func(p ProposalResult) string { return p.Invitations[0].Token },
			accepter: "q",
			want:     ErrInvalidToken,
		},
		{
			name:     "accepter already holds a split",
			entry:    domain.AllocationEntry{Invite: domain.InviteInfo{Email: "z@example.com"}},
			token:    func(p ProposalResult) string { return p.Invitations[0].Token },
			accepter: "x",
			want:     domain.ErrDuplicateHolder,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t)
			l.seedSoleOwner("w1", "x")
			proposal := l.proposeWithInvite(t, tc.entry)

			_, err := l.svc.ConfirmSplit(context.Background(), tc.token(proposal), tc.accepter)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := len(l.repo.eventsOf(domain.EventSplitConfirmed)); got != 0 {
				t.Fatalf("expected no confirmation events, got %d", got)
			}
		})
	}
}

// TestConfirmSplitBindsEmailInvitee verifies an invitation without a holder binds to whoever accepts it.
func TestConfirmSplitBindsEmailInvitee(t *testing.T) {
	l := newTestLedger(t)
	l.seedSoleOwner("w1", "x")
	proposal := l.proposeWithInvite(t, domain.AllocationEntry{Invite: domain.InviteInfo{Email: "z@example.com"}})
	ctx := context.Background()

	result, err := l.svc.ConfirmSplit(ctx, proposal.Invitations[0].Token, "z")
	if err != nil {
		t.Fatalf("ConfirmSplit() error = %v", err)
	}
	if result.SplitID != proposal.SplitIDs[1] || !result.Activation.Activated {
		t.Fatalf("unexpected confirm result %#v", result)
	}
	active, ok := l.history(t, "w1").Active()
	if !ok || !active.HoldsSplit("z") {
		t.Fatalf("expected z to hold a split in the active revision, got %#v", active)
	}

	if _, err := l.svc.ConfirmSplit(ctx, proposal.Invitations[0].Token, "z"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected accepted token to be spent, got %v", err)
	}
	invitations, err := l.svc.Invitations(ctx, "w1")
	if err != nil {
		t.Fatalf("Invitations() error = %v", err)
	}
	if invitations[0].Status != domain.InvitationStatusAccepted || invitations[0].InviteeID != "z" {
		t.Fatalf("unexpected invitation %#v", invitations[0])
	}
}
