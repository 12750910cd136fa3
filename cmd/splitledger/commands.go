package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// errIntegrity marks a verify run that found violations.
var errIntegrity = errors.New("ledger integrity violations found")

// newPathsCmd prints resolved config and data paths without opening storage.
func newPathsCmd(flags *globalFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and database paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := resolvePaths(flags)
			if err != nil {
				return err
			}
			dbPath := paths.DBPath
			if v := strings.TrimSpace(flags.dbPath); v != "" {
				dbPath = v
			}
			configPath := paths.ConfigPath
			if v := strings.TrimSpace(flags.configPath); v != "" {
				configPath = v
			}
			_, err = fmt.Fprintf(stdout, "app: %s\ndev_mode: %t\nconfig: %s\ndata_dir: %s\ndb: %s\nlog_dir: %s\n",
				flags.appName, flags.devMode, configPath, paths.DataDir, dbPath, paths.LogDir)
			return err
		},
	}
}

// newWorkCmd groups catalog commands for works and holders.
func newWorkCmd(withLedger ledgerCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Manage the work catalog",
	}

	var owner, artist string
	var live bool
	register := &cobra.Command{
		Use:   "register <work-id>",
		Short: "Register or update a work and its owner",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("work register", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			work, err := domain.NewWork(args[0], owner, artist, live, time.Now())
			if err != nil {
				return err
			}
			if err := rt.repo.RegisterWork(ctx, work); err != nil {
				return err
			}
			_, err = fmt.Fprintf(rt.stdout, "registered %s owner=%s live=%t\n", work.ID, work.OwnerID, work.Live)
			return err
		}),
	}
	register.Flags().StringVar(&owner, "owner", "", "owning holder id")
	register.Flags().StringVar(&artist, "artist", "", "artist id grouping this work")
	register.Flags().BoolVar(&live, "live", false, "mark the work as live")

	var paying bool
	tier := &cobra.Command{
		Use:   "tier <holder-id>",
		Short: "Record whether a holder is on a paying plan",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("work tier", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			if err := rt.repo.SetHolderTier(ctx, args[0], paying, time.Now()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(rt.stdout, "holder %s paying=%t\n", args[0], paying)
			return err
		}),
	}
	tier.Flags().BoolVar(&paying, "paying", false, "holder is on a paying plan")

	cmd.AddCommand(register, tier)
	return cmd
}

// newAllocateCmd builds either the initial allocation command or the revision proposal command.
func newAllocateCmd(withLedger ledgerCommand, initial bool) *cobra.Command {
	var requester string
	var splits, invites []string
	use, short, name := "propose <work-id>", "Propose a new revision of a work's splits", "propose"
	if initial {
		use, short, name = "allocate <work-id>", "Create the first allocation for a work", "allocate"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withLedger(name, func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			entries, err := parseAllocationEntries(splits, invites)
			if err != nil {
				return err
			}
			in := app.ProposeRevisionInput{WorkID: args[0], RequesterID: requester, Entries: entries}
			var result app.ProposalResult
			if initial {
				result, err = rt.svc.CreateInitialAllocation(ctx, in)
			} else {
				result, err = rt.svc.ProposeRevision(ctx, in)
			}
			if err != nil {
				return err
			}
			return writeProposal(rt.stdout, args[0], result)
		}),
	}
	cmd.Flags().StringVar(&requester, "requester", "", "holder id making the request")
	cmd.Flags().StringArrayVar(&splits, "split", nil, "known holder share as holder=rate (repeatable)")
	cmd.Flags().StringArrayVar(&invites, "invite", nil, "invited party share as email=rate (repeatable)")
	return cmd
}

// newConfirmCmd accepts an invitation token on behalf of a holder.
func newConfirmCmd(withLedger ledgerCommand) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "confirm <token>",
		Short: "Confirm a pending split through its invitation token",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("confirm", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			result, err := rt.svc.ConfirmSplit(ctx, args[0], holder)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(rt.stdout, "confirmed split %d on %s revision %d\n", result.SplitID, result.WorkID, result.Revision); err != nil {
				return err
			}
			return writeActivation(rt.stdout, result.WorkID, result.Activation)
		}),
	}
	cmd.Flags().StringVar(&holder, "holder", "", "holder id accepting the invitation")
	return cmd
}

// newInviteCmd groups invitation delivery commands.
func newInviteCmd(withLedger ledgerCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage split invitations",
	}
	sent := &cobra.Command{
		Use:   "sent <invitation-id>",
		Short: "Record that an invitation was delivered",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("invite sent", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("parse invitation id %q: %w", args[0], err)
			}
			inv, err := rt.svc.MarkInvitationSent(ctx, id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(rt.stdout, "invitation %d %s sent_at=%s\n", inv.ID, inv.Status, formatTime(inv.LastSentAt))
			return err
		}),
	}
	list := &cobra.Command{
		Use:   "list <work-id>",
		Short: "List invitations for a work",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("invite list", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			invitations, err := rt.svc.Invitations(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(rt.stdout, renderInvitations(invitations))
			return err
		}),
	}
	cmd.AddCommand(sent, list)
	return cmd
}

// newActivateCmd runs one activation pass for a work.
func newActivateCmd(withLedger ledgerCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <work-id>",
		Short: "Activate the latest ready revision of a work",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("activate", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			result, err := rt.svc.RunActivation(ctx, args[0])
			if err != nil {
				return err
			}
			return writeActivation(rt.stdout, args[0], result)
		}),
	}
}

// newReapCmd sweeps abandoned pending revisions.
func newReapCmd(withLedger ledgerCommand) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Discard pending revisions whose invitations expired",
		Args:  cobra.NoArgs,
		RunE: withLedger("reap", func(ctx context.Context, rt *ledgerRuntime, _ []string) error {
			at, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			report, err := rt.svc.ExpireStale(ctx, at)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(rt.stdout, "batch %s reaped %d work(s)\n", report.BatchID, report.Count()); err != nil {
				return err
			}
			for _, workID := range report.Reaped {
				if _, err := fmt.Fprintf(rt.stdout, "  reaped %s\n", workID); err != nil {
					return err
				}
			}
			for workID, failure := range report.Failed {
				if _, err := fmt.Fprintf(rt.stdout, "  failed %s: %v\n", workID, failure); err != nil {
					return err
				}
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d work(s) failed to reap", len(report.Failed))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep time as RFC3339 (default now)")
	return cmd
}

// newSettleCmd activates first revisions of released works, returning unanswered shares to the owner.
func newSettleCmd(withLedger ledgerCommand) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Activate first allocations of live works, folding pending shares into the owner",
		Args:  cobra.NoArgs,
		RunE: withLedger("settle", func(ctx context.Context, rt *ledgerRuntime, _ []string) error {
			at, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			report, err := rt.svc.SettleInitialAllocations(ctx, at)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(rt.stdout, "batch %s settled %d work(s)\n", report.BatchID, report.Count()); err != nil {
				return err
			}
			for _, workID := range report.Settled {
				if _, err := fmt.Fprintf(rt.stdout, "  settled %s\n", workID); err != nil {
					return err
				}
			}
			for workID, failure := range report.Failed {
				if _, err := fmt.Fprintf(rt.stdout, "  failed %s: %v\n", workID, failure); err != nil {
					return err
				}
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d work(s) failed to settle", len(report.Failed))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "settlement time as RFC3339 (default now)")
	return cmd
}

// newLockCmd builds the advance lock or unlock command.
func newLockCmd(withLedger ledgerCommand, lock bool) *cobra.Command {
	var in app.AdvanceLockInput
	var ids []string
	use, short, name := "unlock <work-id>", "Release owner splits held as advance collateral", "unlock"
	if lock {
		use, short, name = "lock <work-id>", "Lock owner splits as advance collateral", "lock"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withLedger(name, func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			splitIDs, err := parseSplitIDs(ids)
			if err != nil {
				return err
			}
			req := in
			req.WorkID = args[0]
			req.SplitIDs = splitIDs
			var result app.AdvanceLockResult
			if lock {
				result, err = rt.svc.LockForAdvance(ctx, req)
			} else {
				result, err = rt.svc.UnlockAdvance(ctx, req)
			}
			if err != nil {
				return err
			}
			if result.Mismatch {
				_, err = fmt.Fprintf(rt.stdout, "%s: split set did not match locked owner splits, nothing changed\n", name)
				return err
			}
			if _, err := fmt.Fprintf(rt.stdout, "%s: %s\n", name, joinIDs(result.SplitIDs)); err != nil {
				return err
			}
			return writeActivation(rt.stdout, args[0], result.Activation)
		}),
	}
	cmd.Flags().StringVar(&in.HolderID, "holder", "", "holder id owning the collateral")
	cmd.Flags().StringVar(&in.AdvanceID, "advance", "", "advance request id")
	cmd.Flags().StringSliceVar(&ids, "split", nil, "owner split ids (comma separated)")
	return cmd
}

// newTransferCmd moves owner splits from one holder to another.
func newTransferCmd(withLedger ledgerCommand) *cobra.Command {
	var in app.TransferOwnershipInput
	cmd := &cobra.Command{
		Use:   "transfer <work-or-artist-id>",
		Short: "Transfer active owner splits to a new holder",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("transfer", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			req := in
			req.Subject = args[0]
			report, err := rt.svc.TransferOwnership(ctx, req)
			if err != nil {
				return err
			}
			for workID, splitID := range report.Transferred {
				if _, err := fmt.Fprintf(rt.stdout, "transferred %s owner split %d\n", workID, splitID); err != nil {
					return err
				}
			}
			for _, workID := range report.Skipped {
				if _, err := fmt.Fprintf(rt.stdout, "skipped %s\n", workID); err != nil {
					return err
				}
			}
			for workID, failure := range report.Failed {
				if _, err := fmt.Fprintf(rt.stdout, "failed %s: %v\n", workID, failure); err != nil {
					return err
				}
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d work(s) failed to transfer", len(report.Failed))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.OldHolder, "from", "", "current owner holder id")
	cmd.Flags().StringVar(&in.NewHolder, "to", "", "new owner holder id")
	return cmd
}

// newVerifyCmd checks a work's split history against the ledger invariants.
func newVerifyCmd(withLedger ledgerCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <work-id>",
		Short: "Check a work's split history for inconsistencies",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("verify", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			violations, err := rt.svc.VerifyWork(ctx, args[0])
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				_, err = fmt.Fprintf(rt.stdout, "%s: ok\n", args[0])
				return err
			}
			for _, v := range violations {
				if _, err := fmt.Fprintln(rt.stdout, v.String()); err != nil {
					return err
				}
			}
			return fmt.Errorf("%w: %d", errIntegrity, len(violations))
		}),
	}
}

// newHistoryCmd renders every revision of a work.
func newHistoryCmd(withLedger ledgerCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "history <work-id>",
		Short: "Show every revision of a work's splits",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("history", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			history, err := rt.svc.History(ctx, args[0])
			if err != nil {
				return err
			}
			if len(history) == 0 {
				_, err = fmt.Fprintf(rt.stdout, "%s: no splits\n", args[0])
				return err
			}
			_, err = fmt.Fprintln(rt.stdout, renderHistory(history))
			return err
		}),
	}
}

// newEventsCmd lists recent ledger events for a work.
func newEventsCmd(withLedger ledgerCommand) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <work-id>",
		Short: "List recent ledger events for a work",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger("events", func(ctx context.Context, rt *ledgerRuntime, args []string) error {
			events, err := rt.svc.Events(ctx, args[0], limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(rt.stdout, renderEvents(events))
			return err
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}

// parseAllocationEntries turns holder=rate and email=rate flag values into entries.
func parseAllocationEntries(splits, invites []string) ([]domain.AllocationEntry, error) {
	entries := make([]domain.AllocationEntry, 0, len(splits)+len(invites))
	for _, raw := range splits {
		party, rate, err := parseShare(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.AllocationEntry{HolderID: party, Rate: rate})
	}
	for _, raw := range invites {
		party, rate, err := parseShare(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.AllocationEntry{Invite: domain.InviteInfo{Email: party}, Rate: rate})
	}
	return entries, nil
}

// parseShare splits "party=rate".
func parseShare(raw string) (string, decimal.Decimal, error) {
	party, rawRate, ok := strings.Cut(raw, "=")
	party = strings.TrimSpace(party)
	if !ok || party == "" {
		return "", decimal.Decimal{}, fmt.Errorf("invalid share %q, expected party=rate", raw)
	}
	rate, err := domain.ParseRate(rawRate)
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	return party, rate, nil
}

// parseAsOf parses an RFC3339 --as-of value, defaulting to now.
func parseAsOf(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Now().UTC(), nil
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --as-of %q: %w", v, err)
	}
	return at, nil
}

// parseSplitIDs parses split id flag values.
func parseSplitIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse split id %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeProposal prints a proposal result with its invitation tokens.
func writeProposal(w io.Writer, workID string, result app.ProposalResult) error {
	if _, err := fmt.Fprintf(w, "%s revision %d splits %s\n", workID, result.Revision, joinIDs(result.SplitIDs)); err != nil {
		return err
	}
	for _, inv := range result.Invitations {
		invitee := inv.InviteeID
		if invitee == "" {
			invitee = inv.Invitee.Email
		}
		if _, err := fmt.Fprintf(w, "  invitation %d split %d %s token=%s\n", inv.ID, inv.SplitID, invitee, inv.Token); err != nil {
			return err
		}
	}
	return writeActivation(w, workID, result.Activation)
}

// writeActivation prints an activation result when it changed anything.
func writeActivation(w io.Writer, workID string, result app.ActivationResult) error {
	if !result.Activated {
		return nil
	}
	line := fmt.Sprintf("%s activated revision %d", workID, result.Revision)
	if result.ArchivedRevision > 0 {
		line += fmt.Sprintf(", archived revision %d", result.ArchivedRevision)
	}
	if result.SupersededRevision > 0 {
		line += fmt.Sprintf(", superseded revision %d", result.SupersededRevision)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// joinIDs renders ids as a comma separated list.
func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
