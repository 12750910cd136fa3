package domain

import (
	"errors"
	"testing"
	"time"
)

// TestSplitLifecycle verifies confirm, activate and archive transitions.
func TestSplitLifecycle(t *testing.T) {
	split := Split{ID: 1, WorkID: "w1", Rate: rate("0.4"), Revision: 2, Status: SplitStatusPending}
	if err := split.Confirm(" "); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Confirm(blank) error = %v, want ErrInvalidID", err)
	}
	if err := split.Confirm("y"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if split.Status != SplitStatusConfirmed || split.HolderID != "y" {
		t.Fatalf("unexpected confirmed split %#v", split)
	}
	if err := split.Confirm("z"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("second Confirm() error = %v, want ErrInvalidStatus", err)
	}

	start := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	split.Activate(&start)
	if split.Status != SplitStatusActive || !split.StartDate.Equal(DateOf(start)) {
		t.Fatalf("unexpected active split %#v", split)
	}
	split.Archive(start.AddDate(0, 0, 5))
	if split.Status != SplitStatusArchived || split.EndDate == nil {
		t.Fatalf("expected archived split with end date, got %#v", split)
	}
	if got := split.EndDate.Format(time.DateOnly); got != "2026-03-15" {
		t.Fatalf("unexpected end date %s", got)
	}
}

// TestGroupRevisionsOrdersByRevisionThenID verifies the canonical result order.
func TestGroupRevisionsOrdersByRevisionThenID(t *testing.T) {
	splits := []Split{
		{ID: 7, WorkID: "w1", Revision: 2, Status: SplitStatusPending},
		{ID: 3, WorkID: "w1", Revision: 1, Status: SplitStatusActive},
		{ID: 5, WorkID: "w1", Revision: 2, Status: SplitStatusConfirmed},
		{ID: 2, WorkID: "w1", Revision: 1, Status: SplitStatusActive},
	}
	history := NewHistory(splits)
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if got := history[0].SplitIDs(); got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected revision 1 order %v", got)
	}
	if got := history[1].SplitIDs(); got[0] != 5 || got[1] != 7 {
		t.Fatalf("unexpected revision 2 order %v", got)
	}
	if history[1].Class() != RevisionClassDraft {
		t.Fatalf("expected pending+confirmed to be a draft, got %q", history[1].Class())
	}
	if history[1].Ready() {
		t.Fatal("expected draft with a pending split to be unready")
	}
	active, ok := history.Active()
	if !ok || active.Number != 1 {
		t.Fatalf("unexpected active revision %#v ok=%t", active, ok)
	}
	if splits[0].ID != 7 {
		t.Fatal("expected NewHistory to leave its input untouched")
	}
}

// TestInvitationExpiry verifies the expiration window arithmetic.
func TestInvitationExpiry(t *testing.T) {
	sent := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * 24 * time.Hour
	inv := Invitation{Status: InvitationStatusCreated}
	if inv.Expired(window, sent.AddDate(1, 0, 0)) {
		t.Fatal("expected undelivered invitation to never expire")
	}
	if err := inv.MarkSent(sent); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if inv.Expired(window, sent.Add(window)) {
		t.Fatal("expected invitation to be live exactly at the window edge")
	}
	if !inv.Expired(window, sent.Add(window+time.Second)) {
		t.Fatal("expected invitation past the window to be expired")
	}
	if err := inv.Accept("y"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if inv.Expired(window, sent.AddDate(1, 0, 0)) {
		t.Fatal("expected accepted invitation to never expire")
	}
	if err := inv.Accept("y"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("second Accept() error = %v, want ErrInvalidStatus", err)
	}
}
