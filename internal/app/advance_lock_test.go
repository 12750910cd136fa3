package app

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/hylla/splitledger/internal/domain"
)

// seedSharedActive stores active revision 1 of w1 with owner x as split 10 and y as split 11.
func (l *testLedger) seedSharedActive() {
	l.catalog.owners["w1"] = "x"
	l.catalog.live["w1"] = true
	l.repo.put(domain.Split{ID: 10, WorkID: "w1", HolderID: "x", Rate: rate("0.5"), Revision: 1, Status: domain.SplitStatusActive, IsOwner: true})
	l.repo.put(domain.Split{ID: 11, WorkID: "w1", HolderID: "y", Rate: rate("0.5"), Revision: 1, Status: domain.SplitStatusActive})
}

// lockedIDs returns the ids of every locked split on w1.
func (l *testLedger) lockedIDs(t *testing.T) []int64 {
	t.Helper()
	out := make([]int64, 0)
	for _, rev := range l.history(t, "w1") {
		for _, split := range rev.Splits {
			if split.IsLocked {
				out = append(out, split.ID)
			}
		}
	}
	return out
}

// TestLockForAdvanceMismatch verifies a partial match locks nothing and cancels the advance once.
func TestLockForAdvanceMismatch(t *testing.T) {
	l := newTestLedger(t)
	l.seedSharedActive()

	_, err := l.svc.LockForAdvance(context.Background(), AdvanceLockInput{
		HolderID:  "x",
		WorkID:    "w1",
		AdvanceID: "adv-1",
		SplitIDs:  []int64{10, 11},
	})
	if !errors.Is(err, ErrLockMismatch) {
		t.Fatalf("expected ErrLockMismatch, got %v", err)
	}
	if locked := l.lockedIDs(t); len(locked) != 0 {
		t.Fatalf("expected no locked splits, got %v", locked)
	}
	if len(l.canceller.calls) != 1 {
		t.Fatalf("expected one cancellation, got %d", len(l.canceller.calls))
	}
	call := l.canceller.calls[0]
	if call.AdvanceID != "adv-1" || !slices.Equal(call.Requested, []int64{10, 11}) || !slices.Equal(call.Resolved, []int64{10}) {
		t.Fatalf("unexpected cancellation %#v", call)
	}
}

// TestLockForAdvanceLocksAndUnlocks verifies the lock round trip over exactly the owner split.
func TestLockForAdvanceLocksAndUnlocks(t *testing.T) {
	l := newTestLedger(t)
	l.seedSharedActive()
	ctx := context.Background()
	in := AdvanceLockInput{HolderID: "x", WorkID: "w1", AdvanceID: "adv-1", SplitIDs: []int64{10, 10, 0}}

	locked, err := l.svc.LockForAdvance(ctx, in)
	if err != nil {
		t.Fatalf("LockForAdvance() error = %v", err)
	}
	if !slices.Equal(locked.SplitIDs, []int64{10}) || !slices.Equal(l.lockedIDs(t), []int64{10}) {
		t.Fatalf("expected split 10 locked, got %#v", locked)
	}
	if _, err := l.svc.LockForAdvance(ctx, in); !errors.Is(err, ErrLockMismatch) {
		t.Fatalf("expected relock to mismatch, got %v", err)
	}

	unlocked, err := l.svc.UnlockAdvance(ctx, in)
	if err != nil {
		t.Fatalf("UnlockAdvance() error = %v", err)
	}
	if unlocked.Mismatch || !slices.Equal(unlocked.SplitIDs, []int64{10}) || len(l.lockedIDs(t)) != 0 {
		t.Fatalf("unexpected unlock %#v", unlocked)
	}
	if got := len(l.repo.eventsOf(domain.EventAdvanceSplitsUnlocked)); got != 1 {
		t.Fatalf("expected one unlock event, got %d", got)
	}
}

// TestLockForAdvanceEmptyRequest verifies an empty request changes nothing.
func TestLockForAdvanceEmptyRequest(t *testing.T) {
	l := newTestLedger(t)
	l.seedSharedActive()
	result, err := l.svc.LockForAdvance(context.Background(), AdvanceLockInput{HolderID: "x", WorkID: "w1"})
	if err != nil {
		t.Fatalf("LockForAdvance() error = %v", err)
	}
	if len(result.SplitIDs) != 0 || len(l.canceller.calls) != 0 {
		t.Fatalf("expected no-op, got %#v", result)
	}
}

// TestUnlockAdvanceMismatchKeepsLocks verifies a mismatching unlock is reported without releasing anything.
func TestUnlockAdvanceMismatchKeepsLocks(t *testing.T) {
	l := newTestLedger(t)
	l.seedSharedActive()
	ctx := context.Background()
	if _, err := l.svc.LockForAdvance(ctx, AdvanceLockInput{HolderID: "x", WorkID: "w1", SplitIDs: []int64{10}}); err != nil {
		t.Fatalf("LockForAdvance() error = %v", err)
	}

	result, err := l.svc.UnlockAdvance(ctx, AdvanceLockInput{HolderID: "x", WorkID: "w1", SplitIDs: []int64{10, 11}})
	if err != nil {
		t.Fatalf("UnlockAdvance() error = %v", err)
	}
	if !result.Mismatch {
		t.Fatal("expected mismatch to be reported")
	}
	if !slices.Equal(l.lockedIDs(t), []int64{10}) {
		t.Fatalf("expected split 10 to stay locked, got %v", l.lockedIDs(t))
	}
}

// TestUnlockAdvanceReleasesDeferredActivation verifies a revision confirmed under lock activates on unlock.
func TestUnlockAdvanceReleasesDeferredActivation(t *testing.T) {
	l := newTestLedger(t)
	l.seedSharedActive()
	ctx := context.Background()

	proposal, err := l.svc.ProposeRevision(ctx, ProposeRevisionInput{
		WorkID:      "w1",
		RequesterID: "x",
		Entries:     []domain.AllocationEntry{{HolderID: "x", Rate: rate("0.4")}, {HolderID: "y", Rate: rate("0.6")}},
	})
	if err != nil {
		t.Fatalf("ProposeRevision() error = %v", err)
	}
	if _, err := l.svc.LockForAdvance(ctx, AdvanceLockInput{HolderID: "x", WorkID: "w1", SplitIDs: []int64{10}}); err != nil {
		t.Fatalf("LockForAdvance() error = %v", err)
	}
	confirmed, err := l.svc.ConfirmSplit(ctx, proposal.Invitations[0].Token, "y")
	if err != nil {
		t.Fatalf("ConfirmSplit() error = %v", err)
	}
	if confirmed.Activation.Activated {
		t.Fatal("expected activation to be deferred while split 10 is locked")
	}

	unlocked, err := l.svc.UnlockAdvance(ctx, AdvanceLockInput{HolderID: "x", WorkID: "w1"})
	if err != nil {
		t.Fatalf("UnlockAdvance() error = %v", err)
	}
	if !unlocked.Activation.Activated || unlocked.Activation.Revision != 2 {
		t.Fatalf("expected revision 2 activated after unlock, got %#v", unlocked.Activation)
	}
	l.assertInvariants(t, "w1")
}
