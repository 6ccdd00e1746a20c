// Package mcp exposes the signed-in user's planner as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"flowstate/internal/entity"
	"flowstate/internal/ledger"
	"flowstate/internal/model"
	"flowstate/internal/store"
	"flowstate/internal/streak"
)

const (
	serverName    = "Flowstate"
	serverVersion = "0.1.0"
)

// NewServer creates an MCP server whose tools read and mutate st.
func NewServer(st *store.Store, now func() time.Time) *server.MCPServer {
	if now == nil {
		now = time.Now
	}
	s := server.NewMCPServer(serverName, serverVersion)
	h := &handlers{store: st, now: now}

	s.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Discard local state and fetch everything from the server again. Use after a failed write."),
	), h.reload)

	// Tasks
	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally only those in one status."),
		mcp.WithString("status", mcp.Description("Backlog, Todo, InProgress or Done")),
	), h.listTasks)

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. Priority defaults to Medium and status to Backlog."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("priority", mcp.Description("Low, Medium, High or Urgent")),
		mcp.WithString("status", mcp.Description("Backlog, Todo, InProgress or Done")),
		mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("project", mcp.Description("Project name")),
	), h.createTask)

	s.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Move a task to another status. Moving into Done records the completion time."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Backlog, Todo, InProgress or Done"), mcp.Required()),
	), h.moveTask)

	// Routines
	s.AddTool(mcp.NewTool("list_routines",
		mcp.WithDescription("List routines with their current streaks."),
	), h.listRoutines)

	s.AddTool(mcp.NewTool("toggle_routine",
		mcp.WithDescription("Mark a routine done on a day, or undo it if already done."),
		mcp.WithString("id", mcp.Description("Routine id"), mcp.Required()),
		mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD (defaults to today)")),
	), h.toggleRoutine)

	s.AddTool(mcp.NewTool("week",
		mcp.WithDescription("Show the week (Sunday first) with scheduled routines and due tasks."),
		mcp.WithString("date", mcp.Description("Any day in the week as YYYY-MM-DD (defaults to today)")),
	), h.week)

	s.AddTool(mcp.NewTool("dashboard",
		mcp.WithDescription("Task counts by status, completion rate and routine activity."),
		mcp.WithNumber("days", mcp.Description("Days of routine activity to include (default 7)")),
	), h.dashboard)

	// Finance
	s.AddTool(mcp.NewTool("list_accounts",
		mcp.WithDescription("List accounts with balances."),
	), h.listAccounts)

	s.AddTool(mcp.NewTool("add_transaction",
		mcp.WithDescription("Record income or an expense and update the account balance."),
		mcp.WithString("account_id", mcp.Description("Account id"), mcp.Required()),
		mcp.WithString("amount", mcp.Description("Positive amount, e.g. 12.50"), mcp.Required()),
		mcp.WithString("type", mcp.Description("income or expense"), mcp.Required()),
		mcp.WithString("category", mcp.Description("Category (defaults to General)")),
		mcp.WithString("description", mcp.Description("Description")),
		mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD (defaults to now)")),
	), h.addTransaction)

	s.AddTool(mcp.NewTool("delete_transaction",
		mcp.WithDescription("Delete a transaction and reverse its effect on the balance."),
		mcp.WithString("id", mcp.Description("Transaction id"), mcp.Required()),
	), h.deleteTransaction)

	s.AddTool(mcp.NewTool("list_receivables",
		mcp.WithDescription("List receivables that have not been received yet."),
	), h.listReceivables)

	s.AddTool(mcp.NewTool("mark_received",
		mcp.WithDescription("Mark a receivable as received into an account. This records an income transaction."),
		mcp.WithString("id", mcp.Description("Receivable id"), mcp.Required()),
		mcp.WithString("account_id", mcp.Description("Account that received the money"), mcp.Required()),
	), h.markReceived)

	s.AddTool(mcp.NewTool("finance_summary",
		mcp.WithDescription("Monthly income, expenses by category, card invoices and pending receivables."),
		mcp.WithString("month", mcp.Description("Month as YYYY-MM (defaults to the current month)")),
	), h.financeSummary)

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type handlers struct {
	store *store.Store
	now   func() time.Time
}

func (h *handlers) reload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.store.Reload(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reloaded %d tasks, %d routines, %d accounts, %d transactions.",
		len(h.store.Tasks()), len(h.store.Routines()), len(h.store.Accounts()), len(h.store.Transactions()))), nil
}

func (h *handlers) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := model.Status(mcp.ParseString(request, "status", ""))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", status)), nil
	}
	tasks := []entity.Task{}
	for _, t := range h.store.Tasks() {
		if status == "" || t.Status == status {
			tasks = append(tasks, t)
		}
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func (h *handlers) createTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := entity.Task{
		Title:       mcp.ParseString(request, "title", ""),
		Description: mcp.ParseString(request, "description", ""),
		Priority:    model.Priority(mcp.ParseString(request, "priority", "")),
		Status:      model.Status(mcp.ParseString(request, "status", "")),
		Tags:        splitTags(mcp.ParseString(request, "tags", "")),
		Project:     mcp.ParseString(request, "project", ""),
	}
	due, err := h.optDate(request, "due_date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.DueDate = due

	created, err := h.store.CreateTask(ctx, t)
	if err != nil {
		return failure(err), nil
	}
	return jsonResult(created)
}

func (h *handlers) moveTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	status := model.Status(mcp.ParseString(request, "status", ""))
	moved, err := h.store.MoveTask(ctx, id, status)
	if err != nil {
		return failure(err), nil
	}
	return jsonResult(moved)
}

func (h *handlers) listRoutines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"routines": h.store.Routines()})
}

func (h *handlers) toggleRoutine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day, err := h.dateOrToday(request, "date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := h.store.ToggleRoutine(ctx, mcp.ParseString(request, "id", ""), day)
	if err != nil {
		return failure(err), nil
	}
	state := "not done"
	if streak.Contains(r.CompletionHistory, streak.Format(day)) {
		state = "done"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is %s on %s. Streak: %d.", r.Title, state, streak.Format(day), r.Streak)), nil
}

func (h *handlers) week(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day, err := h.dateOrToday(request, "date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"days": h.store.Week(day)})
}

func (h *handlers) dashboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := mcp.ParseInt(request, "days", 7)
	if days < 1 || days > 366 {
		return mcp.NewToolResultError("days must be between 1 and 366"), nil
	}
	return jsonResult(map[string]any{
		"stats":    h.store.Stats(),
		"activity": h.store.RoutineActivity(days),
	})
}

func (h *handlers) listAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"accounts": h.store.Accounts()})
}

func (h *handlers) addTransaction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(mcp.ParseString(request, "amount", "")))
	if err != nil {
		return mcp.NewToolResultError("amount must be a number, e.g. 12.50"), nil
	}
	date, err := h.optDate(request, "date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t := entity.Transaction{
		AccountID:   mcp.ParseString(request, "account_id", ""),
		Amount:      amount,
		Type:        model.TransactionType(mcp.ParseString(request, "type", "")),
		Category:    mcp.ParseString(request, "category", ""),
		Description: mcp.ParseString(request, "description", ""),
	}
	if date != nil {
		t.Date = *date
	}

	created, err := h.store.CreateTransaction(ctx, t)
	if err != nil {
		return failure(err), nil
	}
	return jsonResult(created)
}

func (h *handlers) deleteTransaction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.store.DeleteTransaction(ctx, mcp.ParseString(request, "id", "")); err != nil {
		return failure(err), nil
	}
	return mcp.NewToolResultText("Transaction deleted"), nil
}

func (h *handlers) listReceivables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := []entity.Receivable{}
	for _, r := range h.store.Receivables() {
		if !r.Received {
			pending = append(pending, r)
		}
	}
	return jsonResult(map[string]any{"receivables": pending})
}

func (h *handlers) markReceived(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, t, err := h.store.MarkReceived(ctx, mcp.ParseString(request, "id", ""), mcp.ParseString(request, "account_id", ""))
	if err != nil {
		return failure(err), nil
	}
	return jsonResult(map[string]any{"receivable": r, "transaction": t})
}

func (h *handlers) financeSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	month := h.now()
	if raw := strings.TrimSpace(mcp.ParseString(request, "month", "")); raw != "" {
		parsed, err := time.ParseInLocation(ledger.MonthLayout, raw, month.Location())
		if err != nil {
			return mcp.NewToolResultError("month must be YYYY-MM"), nil
		}
		month = parsed
	}
	return jsonResult(h.store.FinanceSummary(month))
}

func (h *handlers) optDate(request mcp.CallToolRequest, key string) (*time.Time, error) {
	raw := strings.TrimSpace(mcp.ParseString(request, key, ""))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(streak.DateLayout, raw, h.now().Location())
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}

func (h *handlers) dateOrToday(request mcp.CallToolRequest, key string) (time.Time, error) {
	t, err := h.optDate(request, key)
	if err != nil || t == nil {
		return h.now(), err
	}
	return *t, nil
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// failure reports a store error. Anything other than a rejected request
// happened after the local copy changed, so the caller is pointed at reload.
func failure(err error) *mcp.CallToolResult {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAlreadyReceived),
		errors.Is(err, store.ErrAccountInUse):
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(err.Error() + " (the change is kept locally; call reload to resync with the server)")
}
