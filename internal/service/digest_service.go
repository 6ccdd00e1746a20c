package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"flowstate/internal/model"
	"flowstate/internal/repository"
	"flowstate/internal/streak"
)

// Digest is one user's daily overview.
type Digest struct {
	Date     string             `json:"date"`
	Tasks    []model.Task       `json:"tasks"`
	Routines []model.Routine    `json:"routines"`
	Accounts []model.Account    `json:"accounts"`
	Pending  []model.Receivable `json:"pending"`

	now time.Time
}

// DigestService builds human-readable summaries for daily notifications.
type DigestService struct {
	reg *repository.Registry
}

func NewDigestService(reg *repository.Registry) *DigestService {
	return &DigestService{reg: reg}
}

// Build collects open tasks, today's routines, balances and pending receivables.
func (s *DigestService) Build(ctx context.Context, userID string, now time.Time) (*Digest, error) {
	tasks, err := s.reg.Tasks.Find(ctx, userID, "status <> ?", model.StatusDone)
	if err != nil {
		return nil, err
	}
	routines, err := s.reg.Routines.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.reg.Accounts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.reg.Receivables.Find(ctx, userID, "received = ?", false)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		switch {
		case tasks[i].DueDate == nil && tasks[j].DueDate == nil:
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		case tasks[i].DueDate == nil:
			return false
		case tasks[j].DueDate == nil:
			return true
		default:
			return tasks[i].DueDate.Before(*tasks[j].DueDate)
		}
	})

	weekday := int(now.Weekday())
	today := make([]model.Routine, 0, len(routines))
	for _, r := range routines {
		for _, d := range r.DaysOfWeek {
			if d == weekday {
				r.Streak = streak.Compute(r.CompletionHistory, now)
				today = append(today, r)
				break
			}
		}
	}
	sort.SliceStable(today, func(i, j int) bool { return today[i].StartTime < today[j].StartTime })

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ExpectedDate.Before(pending[j].ExpectedDate)
	})

	return &Digest{
		Date:     now.Format(streak.DateLayout),
		Tasks:    tasks,
		Routines: today,
		Accounts: accounts,
		Pending:  pending,
		now:      now,
	}, nil
}

// DailySummary renders the digest as Telegram HTML.
func (s *DigestService) DailySummary(ctx context.Context, userID string, now time.Time) (string, error) {
	d, err := s.Build(ctx, userID, now)
	if err != nil {
		return "", err
	}
	return d.Render(true), nil
}

// Render formats the digest. With markup set, titles are bold and user text is HTML-escaped.
func (d *Digest) Render(markup bool) string {
	esc := func(s string) string { return strings.TrimSpace(s) }
	bold := func(s string) string { return s }
	if markup {
		esc = func(s string) string { return html.EscapeString(strings.TrimSpace(s)) }
		bold = func(s string) string { return "<b>" + s + "</b>" }
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s\n🗓 %s\n\n", bold("Daily report"), d.Date)

	fmt.Fprintf(&b, "🔥 %s\n", bold("Open tasks"))
	if len(d.Tasks) == 0 {
		b.WriteString("— no open tasks\n")
	}
	for _, t := range d.Tasks {
		b.WriteString(formatTask(t, d.now, esc))
	}

	fmt.Fprintf(&b, "\n♻️ %s\n", bold("Routines today"))
	if len(d.Routines) == 0 {
		b.WriteString("— nothing scheduled\n")
	}
	today := streak.Format(d.now)
	for _, r := range d.Routines {
		mark := "⬜"
		if streak.Contains(r.CompletionHistory, today) {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s", mark, esc(r.Title))
		if r.StartTime != "" {
			fmt.Fprintf(&b, " %s–%s", r.StartTime, r.EndTime)
		}
		if r.Streak > 0 {
			fmt.Fprintf(&b, " · streak %d", r.Streak)
		}
		b.WriteByte('\n')
	}

	if len(d.Accounts) > 0 {
		fmt.Fprintf(&b, "\n💰 %s\n", bold("Balances"))
		for _, a := range d.Accounts {
			fmt.Fprintf(&b, "• %s: %s\n", esc(a.Name), a.Balance.StringFixed(2))
		}
	}

	if len(d.Pending) > 0 {
		fmt.Fprintf(&b, "\n📥 %s\n", bold("Pending receivables"))
		for _, r := range d.Pending {
			fmt.Fprintf(&b, "• %s: %s (expected %s)\n", esc(r.Description), r.Amount.StringFixed(2),
				r.ExpectedDate.In(d.now.Location()).Format(streak.DateLayout))
		}
	}

	return strings.TrimSpace(b.String())
}

func formatTask(task model.Task, now time.Time, esc func(string) string) string {
	var sb strings.Builder

	icon := "🟢"
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s %s [%s]", icon, esc(task.Title), task.Priority))
	if task.Project != nil && strings.TrimSpace(*task.Project) != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", esc(*task.Project)))
	}

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, overdue", d.Format(streak.DateLayout)))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, ≈%d days left", d.Format(streak.DateLayout), daysLeft))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}
