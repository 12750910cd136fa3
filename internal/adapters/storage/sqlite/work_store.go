package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/domain"
)

// workStore is the WorkStore bound to one open work transaction.
type workStore struct {
	tx     *sql.Tx
	workID string
}

// ListSplits lists the scoped work's splits.
func (w *workStore) ListSplits(ctx context.Context, filter app.SplitFilter) ([]domain.Split, error) {
	return listSplits(ctx, w.tx, w.workID, filter)
}

// ListInvitations lists the scoped work's invitations.
func (w *workStore) ListInvitations(ctx context.Context, filter app.InvitationFilter) ([]domain.Invitation, error) {
	return listInvitations(ctx, w.tx, w.workID, filter)
}

// CreateSplit inserts split under the scoped work and returns its id.
func (w *workStore) CreateSplit(ctx context.Context, split domain.Split) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO splits(work_id, holder_id, rate, revision, status, is_owner, is_locked, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		w.workID,
		split.HolderID,
		split.Rate.String(),
		split.Revision,
		string(split.Status),
		split.IsOwner,
		split.IsLocked,
		nullableDate(split.StartDate),
		nullableDate(split.EndDate),
		ts(split.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert split: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSplit rewrites the mutable fields of split.
func (w *workStore) UpdateSplit(ctx context.Context, split domain.Split) error {
	res, err := w.tx.ExecContext(ctx, `
		UPDATE splits
		SET holder_id = ?, rate = ?, revision = ?, status = ?, is_owner = ?, is_locked = ?, start_date = ?, end_date = ?
		WHERE id = ? AND work_id = ?
	`,
		split.HolderID,
		split.Rate.String(),
		split.Revision,
		string(split.Status),
		split.IsOwner,
		split.IsLocked,
		nullableDate(split.StartDate),
		nullableDate(split.EndDate),
		split.ID,
		w.workID,
	)
	if err != nil {
		return fmt.Errorf("update split %d: %w", split.ID, err)
	}
	return translateNoRows(res)
}

// DeleteSplits removes splits and their invitations.
func (w *workStore) DeleteSplits(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, w.workID)
	for _, id := range ids {
		args = append(args, id)
	}
	marks := placeholders(len(ids))
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM invitations WHERE work_id = ? AND split_id IN (`+marks+`)`, args...); err != nil {
		return fmt.Errorf("delete invitations: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM splits WHERE work_id = ? AND id IN (`+marks+`)`, args...); err != nil {
		return fmt.Errorf("delete splits: %w", err)
	}
	return nil
}

// CreateInvitation inserts invitation and returns its id.
func (w *workStore) CreateInvitation(ctx context.Context, invitation domain.Invitation) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO invitations(split_id, work_id, inviter_id, invitee_id, invitee_name, invitee_email, invitee_phone, token, status, last_sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		invitation.SplitID,
		w.workID,
		invitation.InviterID,
		invitation.InviteeID,
		invitation.Invitee.Name,
		invitation.Invitee.Email,
		invitation.Invitee.Phone,
		invitation.Token,
		string(invitation.Status),
		nullableTS(invitation.LastSentAt),
		ts(invitation.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert invitation: %w", err)
	}
	return res.LastInsertId()
}

// UpdateInvitation rewrites the mutable fields of invitation.
func (w *workStore) UpdateInvitation(ctx context.Context, invitation domain.Invitation) error {
	res, err := w.tx.ExecContext(ctx, `
		UPDATE invitations
		SET invitee_id = ?, status = ?, last_sent_at = ?
		WHERE id = ? AND work_id = ?
	`,
		invitation.InviteeID,
		string(invitation.Status),
		nullableTS(invitation.LastSentAt),
		invitation.ID,
		w.workID,
	)
	if err != nil {
		return fmt.Errorf("update invitation %d: %w", invitation.ID, err)
	}
	return translateNoRows(res)
}

// AppendEvent writes event to the ledger_events outbox.
func (w *workStore) AppendEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.WorkID = w.workID
	id, err := insertLedgerEvent(ctx, w.tx, event)
	if err != nil {
		return domain.Event{}, err
	}
	event.ID = id
	return event, nil
}

// insertLedgerEvent inserts an outbox record.
func insertLedgerEvent(ctx context.Context, execer execerContext, event domain.Event) (int64, error) {
	splitIDs := event.SplitIDs
	if splitIDs == nil {
		splitIDs = []int64{}
	}
	splitIDsJSON, err := json.Marshal(splitIDs)
	if err != nil {
		return 0, fmt.Errorf("encode ledger event split ids: %w", err)
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode ledger event metadata: %w", err)
	}
	res, err := execer.ExecContext(ctx, `
		INSERT INTO ledger_events(work_id, kind, actor_id, revision, split_ids_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.WorkID,
		string(event.Kind),
		event.ActorID,
		event.Revision,
		string(splitIDsJSON),
		string(metadataJSON),
		ts(event.OccurredAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert ledger event: %w", err)
	}
	return res.LastInsertId()
}
