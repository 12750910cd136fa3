package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/splitledger/internal/domain"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	activeStyle   = cellStyle.Foreground(lipgloss.Color("42"))
	archivedStyle = cellStyle.Foreground(lipgloss.Color("241"))
	pendingStyle  = cellStyle.Foreground(lipgloss.Color("214"))
)

// newTable returns a bordered table using the shared palette.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...)
}

// renderHistory renders every split of a history grouped by revision.
func renderHistory(history domain.History) string {
	rows := make([][]string, 0)
	statuses := make([]domain.SplitStatus, 0)
	for _, rev := range history {
		for _, split := range rev.Splits {
			owner := ""
			if split.IsOwner {
				owner = "owner"
			}
			if split.IsLocked {
				owner = strings.TrimSpace(owner + " locked")
			}
			rows = append(rows, []string{
				strconv.Itoa(rev.Number),
				strconv.FormatInt(split.ID, 10),
				orDash(split.HolderID),
				split.Rate.StringFixed(domain.RatePlaces),
				string(split.Status),
				orDash(owner),
				formatDate(split.StartDate),
				formatDate(split.EndDate),
			})
			statuses = append(statuses, split.Status)
		}
	}
	t := newTable("REV", "ID", "HOLDER", "RATE", "STATUS", "FLAGS", "START", "END").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(statuses) {
				return cellStyle
			}
			switch statuses[row] {
			case domain.SplitStatusActive:
				return activeStyle
			case domain.SplitStatusArchived:
				return archivedStyle
			case domain.SplitStatusPending:
				return pendingStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}

// renderInvitations renders a work's invitations.
func renderInvitations(invitations []domain.Invitation) string {
	rows := make([][]string, 0, len(invitations))
	for _, inv := range invitations {
		invitee := inv.InviteeID
		if invitee == "" {
			invitee = inv.Invitee.Email
		}
		rows = append(rows, []string{
			strconv.FormatInt(inv.ID, 10),
			strconv.FormatInt(inv.SplitID, 10),
			orDash(invitee),
			string(inv.Status),
			formatTime(inv.LastSentAt),
			inv.Token,
		})
	}
	return newTable("ID", "SPLIT", "INVITEE", "STATUS", "SENT", "TOKEN").
		Rows(rows...).
		StyleFunc(headerOnly).
		String()
}

// renderEvents renders ledger events newest first.
func renderEvents(events []domain.Event) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			strconv.FormatInt(ev.ID, 10),
			ev.OccurredAt.UTC().Format(time.RFC3339),
			string(ev.Kind),
			orDash(ev.ActorID),
			strconv.Itoa(ev.Revision),
			joinIDs(ev.SplitIDs),
		})
	}
	return newTable("ID", "AT", "KIND", "ACTOR", "REV", "SPLITS").
		Rows(rows...).
		StyleFunc(headerOnly).
		String()
}

// headerOnly styles the header row and pads the rest.
func headerOnly(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
