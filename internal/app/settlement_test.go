package app

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/hylla/splitledger/internal/domain"
)

// seedInitialDraft writes revision 1 for workID owned by x, with y confirmed and z still pending.
func (l *testLedger) seedInitialDraft(t *testing.T, workID string) ProposalResult {
	t.Helper()
	ctx := context.Background()
	l.catalog.owners[workID] = "x"
	l.catalog.live[workID] = true
	proposal, err := l.svc.CreateInitialAllocation(ctx, ProposeRevisionInput{
		WorkID:      workID,
		RequesterID: "x",
		Entries: []domain.AllocationEntry{
			{HolderID: "x", Rate: rate("0.5")},
			{HolderID: "y", Rate: rate("0.2")},
			{HolderID: "z", Rate: rate("0.3")},
		},
	})
	if err != nil {
		t.Fatalf("CreateInitialAllocation() error = %v", err)
	}
	if len(proposal.Invitations) != 2 {
		t.Fatalf("expected invitations for y and z, got %#v", proposal.Invitations)
	}
	if _, err := l.svc.ConfirmSplit(ctx, proposal.Invitations[0].Token, "y"); err != nil {
		t.Fatalf("ConfirmSplit() error = %v", err)
	}
	return proposal
}

// TestSettleInitialAllocationsFoldsPendingIntoOwner verifies pending shares return to the owner on release.
func TestSettleInitialAllocationsFoldsPendingIntoOwner(t *testing.T) {
	l := newTestLedger(t)
	proposal := l.seedInitialDraft(t, "w1")
	ctx := context.Background()

	report, err := l.svc.SettleInitialAllocations(ctx, l.now)
	if err != nil {
		t.Fatalf("SettleInitialAllocations() error = %v", err)
	}
	if !slices.Equal(report.Settled, []string{"w1"}) || len(report.Failed) != 0 || report.BatchID == "" {
		t.Fatalf("unexpected report %#v", report)
	}

	history := l.history(t, "w1")
	if len(history) != 1 || history[0].Number != 1 || history[0].Class() != domain.RevisionClassActive {
		t.Fatalf("expected one active revision 1, got %#v", history)
	}
	if !history[0].RateSum().Equal(domain.FullRate) {
		t.Fatalf("expected rates to sum to 1, got %s", history[0].RateSum())
	}
	if history[0].StartDate() != nil {
		t.Fatalf("expected revision 1 without start date, got %v", history[0].StartDate())
	}
	owner, ok := history[0].Owner()
	if !ok || owner.HolderID != "x" || !owner.Rate.Equal(rate("0.8")) {
		t.Fatalf("expected owner x at 0.8, got %#v", owner)
	}
	if !history[0].HoldsSplit("y") || history[0].HoldsSplit("z") || len(history[0].Splits) != 2 {
		t.Fatalf("expected confirmed y kept and pending z released, got %#v", history[0].Splits)
	}

	pendingSplit := proposal.Invitations[1].SplitID
	invitations, err := l.svc.Invitations(ctx, "w1")
	if err != nil {
		t.Fatalf("Invitations() error = %v", err)
	}
	for _, inv := range invitations {
		if inv.SplitID == pendingSplit || inv.Outstanding() {
			t.Fatalf("expected no outstanding invitation left, got %#v", inv)
		}
	}
	activated := l.repo.eventsOf(domain.EventRevisionActivated)
	if len(activated) != 1 || activated[0].Revision != 1 || activated[0].Metadata["batch_id"] != report.BatchID {
		t.Fatalf("expected one activation event for revision 1, got %#v", activated)
	}
	l.assertInvariants(t, "w1")

	again, err := l.svc.SettleInitialAllocations(ctx, l.now)
	if err != nil {
		t.Fatalf("SettleInitialAllocations() error = %v", err)
	}
	if again.Count() != 0 || len(l.repo.eventsOf(domain.EventRevisionActivated)) != 1 {
		t.Fatalf("expected rerun to settle nothing, got %#v", again)
	}
}

// TestSettleInitialAllocationsSkips verifies works the settlement must leave alone.
func TestSettleInitialAllocationsSkips(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*testing.T, *testLedger)
	}{
		{
			name: "not live",
			setup: func(t *testing.T, l *testLedger) {
				l.seedInitialDraft(t, "w1")
				l.catalog.live["w1"] = false
			},
		},
		{
			name: "locked collateral",
			setup: func(t *testing.T, l *testLedger) {
				l.catalog.owners["w1"] = "x"
				l.catalog.live["w1"] = true
				l.repo.put(domain.Split{WorkID: "w1", HolderID: "x", Rate: rate("0.5"), Revision: 1, Status: domain.SplitStatusConfirmed, IsOwner: true, IsLocked: true, CreatedAt: l.now})
				pending := l.seedSplit("w1", "z", "0.5", 1, domain.SplitStatusPending, false, nil, nil)
				l.repo.putInvitation(domain.Invitation{SplitID: pending.ID, WorkID: "w1", InviterID: "x", InviteeID: "z", Token: "tok-z", Status: domain.InvitationStatusCreated, CreatedAt: l.now})
			},
		},
		{
			name: "later revision pending",
			setup: func(t *testing.T, l *testLedger) {
				l.seedSoleOwner("w1", "x")
				l.proposeDelivered(t, "w1")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t)
			tc.setup(t, l)
			before := l.history(t, "w1")

			report, err := l.svc.SettleInitialAllocations(context.Background(), l.now)
			if err != nil {
				t.Fatalf("SettleInitialAllocations() error = %v", err)
			}
			if report.Count() != 0 || len(report.Failed) != 0 {
				t.Fatalf("expected nothing settled, got %#v", report)
			}
			after := l.history(t, "w1")
			if len(after) != len(before) || after[len(after)-1].Class() != before[len(before)-1].Class() {
				t.Fatalf("expected history unchanged, got %#v", after)
			}
		})
	}
}

// TestSettleInitialAllocationsIsolatesFailures verifies one failing work does not stop the others.
func TestSettleInitialAllocationsIsolatesFailures(t *testing.T) {
	l := newTestLedger(t)
	for _, workID := range []string{"w1", "w2", "w3"} {
		l.seedInitialDraft(t, workID)
	}
	boom := errors.New("storage unavailable")
	l.repo.failFor["w2"] = boom

	report, err := l.svc.SettleInitialAllocations(context.Background(), l.now)
	if err != nil {
		t.Fatalf("SettleInitialAllocations() error = %v", err)
	}
	if !slices.Equal(report.Settled, []string{"w1", "w3"}) {
		t.Fatalf("expected w1 and w3 settled, got %v", report.Settled)
	}
	if !errors.Is(report.Failed["w2"], boom) {
		t.Fatalf("expected w2 failure recorded, got %#v", report.Failed)
	}
}
