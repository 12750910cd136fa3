package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// DefaultLockWait bounds how long a mutation waits for another scope on the same work.
const DefaultLockWait = 5 * time.Second

// dateLayout is the stored form of split start and end dates.
const dateLayout = "2006-01-02"

// Options tunes a repository.
type Options struct {
	LockWait time.Duration
}

// Repository stores the split ledger in sqlite.
type Repository struct {
	db    *sql.DB
	locks *workLocks
}

// Open opens the ledger database at path with default options.
func Open(path string) (*Repository, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens the ledger database at path.
func OpenWithOptions(path string, opts Options) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db, opts)
}

// OpenInMemory opens a private in-memory ledger database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db, Options{})
}

// newRepository pins db to one connection and migrates it.
func newRepository(db *sql.DB, opts Options) (*Repository, error) {
	// sqlite serializes writers anyway; one connection keeps per-connection pragmas and
	// in-memory databases consistent.
	db.SetMaxOpenConns(1)
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	repo := &Repository{db: db, locks: newWorkLocks(opts.LockWait)}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS works (
			work_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			artist_id TEXT NOT NULL DEFAULT '',
			live INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS holders (
			holder_id TEXT PRIMARY KEY,
			paying INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS splits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_id TEXT NOT NULL,
			holder_id TEXT NOT NULL DEFAULT '',
			rate TEXT NOT NULL,
			revision INTEGER NOT NULL,
			status TEXT NOT NULL,
			is_owner INTEGER NOT NULL DEFAULT 0,
			is_locked INTEGER NOT NULL DEFAULT 0,
			start_date TEXT,
			end_date TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invitations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			split_id INTEGER NOT NULL,
			work_id TEXT NOT NULL,
			inviter_id TEXT NOT NULL,
			invitee_id TEXT NOT NULL DEFAULT '',
			invitee_name TEXT NOT NULL DEFAULT '',
			invitee_email TEXT NOT NULL DEFAULT '',
			invitee_phone TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			last_sent_at TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY(split_id) REFERENCES splits(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			revision INTEGER NOT NULL DEFAULT 0,
			split_ids_json TEXT NOT NULL DEFAULT '[]',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_splits_work_revision ON splits(work_id, revision, id);`,
		`CREATE INDEX IF NOT EXISTS idx_invitations_work ON invitations(work_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_invitations_split ON invitations(split_id);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_work_id ON ledger_events(work_id, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_works_artist ON works(artist_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// WithinWork runs fn in the work's exclusive scope: an in-process lock on the work id
// followed by one transaction. The transaction commits only when fn returns nil.
func (r *Repository) WithinWork(ctx context.Context, workID string, fn func(app.WorkStore) error) (err error) {
	release, err := r.locks.acquire(ctx, workID)
	if err != nil {
		return err
	}
	defer release()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin work tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&workStore{tx: tx, workID: workID}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit work tx: %w", err)
	}
	return nil
}

// GetInvitation returns one invitation by id.
func (r *Repository) GetInvitation(ctx context.Context, id int64) (domain.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
	return scanInvitation(row)
}

// GetInvitationByToken returns the invitation carrying token.
func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token)
	return scanInvitation(row)
}

// ListWorksWithOutstandingInvitations lists works with created or pending invitations in work id order.
func (r *Repository) ListWorksWithOutstandingInvitations(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT work_id
		FROM invitations
		WHERE status IN (?, ?)
		ORDER BY work_id ASC
	`, string(domain.InvitationStatusCreated), string(domain.InvitationStatusPending))
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
	return out, rows.Err()
}

// ListSplits lists a work's splits outside any scope.
func (r *Repository) ListSplits(ctx context.Context, workID string, filter app.SplitFilter) ([]domain.Split, error) {
	return listSplits(ctx, r.db, workID, filter)
}

// ListInvitations lists a work's invitations outside any scope.
func (r *Repository) ListInvitations(ctx context.Context, workID string, filter app.InvitationFilter) ([]domain.Invitation, error) {
	return listInvitations(ctx, r.db, workID, filter)
}

// ListEvents lists a work's most recent ledger events, newest first.
func (r *Repository) ListEvents(ctx context.Context, workID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, work_id, kind, actor_id, revision, split_ids_json, metadata_json, created_at
		FROM ledger_events
		WHERE work_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, workID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		var (
			event       domain.Event
			kind        string
			splitIDsRaw string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.WorkID, &kind, &event.ActorID, &event.Revision, &splitIDsRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Kind = domain.EventKind(kind)
		event.OccurredAt = parseTS(createdRaw)
		if err := json.Unmarshal([]byte(orDefault(splitIDsRaw, "[]")), &event.SplitIDs); err != nil {
			return nil, fmt.Errorf("decode ledger_events.split_ids_json: %w", err)
		}
		if err := json.Unmarshal([]byte(orDefault(metadataRaw, "{}")), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode ledger_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryer represents a query-only DB contract used by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// splitColumns lists split columns in scanSplit order.
const splitColumns = `id, work_id, holder_id, rate, revision, status, is_owner, is_locked, start_date, end_date, created_at`

// invitationColumns lists invitation columns in scanInvitation order.
const invitationColumns = `id, split_id, work_id, inviter_id, invitee_id, invitee_name, invitee_email, invitee_phone, token, status, last_sent_at, created_at`

// listSplits returns a work's splits matching filter ordered by revision then id.
func listSplits(ctx context.Context, q queryer, workID string, filter app.SplitFilter) ([]domain.Split, error) {
	where := []string{"work_id = ?"}
	args := []any{workID}
	if filter.Revision > 0 {
		where = append(where, "revision = ?")
		args = append(args, filter.Revision)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	rows, err := q.QueryContext(ctx, `SELECT `+splitColumns+` FROM splits WHERE `+strings.Join(where, " AND ")+` ORDER BY revision ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Split, 0)
	for rows.Next() {
		split, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, split)
	}
	return out, rows.Err()
}

// listInvitations returns a work's invitations matching filter in id order.
func listInvitations(ctx context.Context, q queryer, workID string, filter app.InvitationFilter) ([]domain.Invitation, error) {
	where := []string{"work_id = ?"}
	args := []any{workID}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if len(filter.SplitIDs) > 0 {
		where = append(where, "split_id IN ("+placeholders(len(filter.SplitIDs))+")")
		for _, id := range filter.SplitIDs {
			args = append(args, id)
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	rows, err := q.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Invitation, 0)
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, invitation)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanSplit handles scan split.
func scanSplit(s scanner) (domain.Split, error) {
	var (
		split      domain.Split
		status     string
		startRaw   sql.NullString
		endRaw     sql.NullString
		createdRaw string
	)
	if err := s.Scan(
		&split.ID,
		&split.WorkID,
		&split.HolderID,
		&split.Rate,
		&split.Revision,
		&status,
		&split.IsOwner,
		&split.IsLocked,
		&startRaw,
		&endRaw,
		&createdRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Split{}, app.ErrNotFound
		}
		return domain.Split{}, err
	}
	split.Status = domain.NormalizeSplitStatus(domain.SplitStatus(status))
	if !domain.IsValidSplitStatus(split.Status) {
		return domain.Split{}, fmt.Errorf("decode split status %q: %w", status, domain.ErrInvalidStatus)
	}
	split.StartDate = parseNullDate(startRaw)
	split.EndDate = parseNullDate(endRaw)
	split.CreatedAt = parseTS(createdRaw)
	return split, nil
}

// scanInvitation handles scan invitation.
func scanInvitation(s scanner) (domain.Invitation, error) {
	var (
		invitation domain.Invitation
		status     string
		sentRaw    sql.NullString
		createdRaw string
	)
	if err := s.Scan(
		&invitation.ID,
		&invitation.SplitID,
		&invitation.WorkID,
		&invitation.InviterID,
		&invitation.InviteeID,
		&invitation.Invitee.Name,
		&invitation.Invitee.Email,
		&invitation.Invitee.Phone,
		&invitation.Token,
		&status,
		&sentRaw,
		&createdRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invitation{}, app.ErrNotFound
		}
		return domain.Invitation{}, err
	}
	invitation.Status = domain.InvitationStatus(status)
	invitation.LastSentAt = parseNullTS(sentRaw)
	invitation.CreatedAt = parseTS(createdRaw)
	return invitation, nil
}

// placeholders returns n comma separated bind markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// orDefault returns fallback when raw is blank.
func orDefault(raw, fallback string) string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	return raw
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

// nullableDate stores a calendar date without its clock time.
func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

// parseNullDate parses a stored calendar date.
func parseNullDate(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, v.String)
	if err != nil {
		return nil
	}
	return &d
}
