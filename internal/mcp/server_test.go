package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"flowstate/internal/entity"
	"flowstate/internal/model"
	"flowstate/internal/store"
	"flowstate/internal/store/storetest"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*server.MCPServer, *store.Store, *storetest.Gateway) {
	t.Helper()
	gw := storetest.New()
	clock := func() time.Time { return fixedNow }
	st := store.New(gw, store.WithClock(clock))
	return NewServer(st, clock), st, gw
}

func call(t *testing.T, s *server.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()
	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("tool %s not registered", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("%s handler: %v", name, err)
	}
	return result.Content[0].(mcp.TextContent).Text, result.IsError
}

func mustCall(t *testing.T, s *server.MCPServer, name string, args map[string]any) string {
	t.Helper()
	text, isErr := call(t, s, name, args)
	if isErr {
		t.Fatalf("%s returned error: %s", name, text)
	}
	return text
}

func TestServerInitialization(t *testing.T) {
	s, _, _ := newTestServer(t)
	stdio := server.NewStdioServer(s)

	r, w := io.Pipe()
	stdout := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		_ = stdio.Listen(ctx, r, stdout)
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  initReq.Params,
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Write(append(data, '\n'))

	time.Sleep(200 * time.Millisecond)

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\noutput: %s", err, stdout.String())
	}
	if resp.ID != 1 || resp.Result.ServerInfo.Name != "Flowstate" {
		t.Errorf("response = %+v", resp)
	}
}

func TestTaskTools(t *testing.T) {
	s, st, _ := newTestServer(t)

	text := mustCall(t, s, "create_task", map[string]any{
		"title":    "Write docs",
		"priority": "High",
		"due_date": "2024-03-12",
		"tags":     "docs, writing,",
	})
	var created entity.Task
	if err := json.Unmarshal([]byte(text), &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if created.Priority != model.PriorityHigh || created.Status != model.StatusBacklog || len(created.Tags) != 2 {
		t.Errorf("created = %+v", created)
	}
	if created.DueDate == nil || created.DueDate.Format("2006-01-02") != "2024-03-12" {
		t.Errorf("due date = %v", created.DueDate)
	}

	mustCall(t, s, "move_task", map[string]any{"id": created.ID, "status": "Done"})
	if task := st.Tasks()[0]; task.Status != model.StatusDone || task.CompletedAt == nil {
		t.Errorf("moved task = %+v", task)
	}

	var listed struct {
		Tasks []entity.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "list_tasks", map[string]any{"status": "Done"})), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tasks) != 1 {
		t.Errorf("done tasks = %d", len(listed.Tasks))
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "list_tasks", map[string]any{"status": "Todo"})), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tasks) != 0 {
		t.Errorf("todo tasks = %d", len(listed.Tasks))
	}

	if text, isErr := call(t, s, "create_task", map[string]any{"title": ""}); !isErr || !strings.Contains(text, "title") {
		t.Errorf("empty title = %q", text)
	}
	if text, isErr := call(t, s, "move_task", map[string]any{"id": "nope", "status": "Done"}); !isErr || strings.Contains(text, "reload") {
		t.Errorf("unknown task = %q", text)
	}
	if _, isErr := call(t, s, "list_tasks", map[string]any{"status": "Someday"}); !isErr {
		t.Error("unknown status accepted")
	}
}

func TestRoutineTools(t *testing.T) {
	s, st, _ := newTestServer(t)
	r, err := st.CreateRoutine(context.Background(), entity.Routine{Title: "Stretch", StartTime: "07:00", EndTime: "07:10"})
	if err != nil {
		t.Fatal(err)
	}

	text := mustCall(t, s, "toggle_routine", map[string]any{"id": r.ID})
	if !strings.Contains(text, "done on 2024-03-10") || !strings.Contains(text, "Streak: 1") {
		t.Errorf("toggle today = %q", text)
	}
	text = mustCall(t, s, "toggle_routine", map[string]any{"id": r.ID, "date": "2024-03-09"})
	if !strings.Contains(text, "Streak: 2") {
		t.Errorf("toggle yesterday = %q", text)
	}
	if _, isErr := call(t, s, "toggle_routine", map[string]any{"id": r.ID, "date": "March 9"}); !isErr {
		t.Error("bad date accepted")
	}

	var week struct {
		Days []store.CalendarDay `json:"days"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "week", nil)), &week); err != nil {
		t.Fatal(err)
	}
	if len(week.Days) != 7 || week.Days[0].Date != "2024-03-10" || len(week.Days[1].Routines) != 1 {
		t.Errorf("week = %+v", week.Days)
	}

	var dash struct {
		Stats    store.TaskStats     `json:"stats"`
		Activity []store.DayActivity `json:"activity"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "dashboard", map[string]any{"days": 3})), &dash); err != nil {
		t.Fatal(err)
	}
	if len(dash.Activity) != 3 || dash.Activity[2].Completed != 1 || dash.Stats.Routines != 1 {
		t.Errorf("dashboard = %+v", dash)
	}
}

func TestFinanceTools(t *testing.T) {
	s, st, _ := newTestServer(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, entity.Account{Name: "Wallet", Balance: decimal.NewFromInt(100), Type: model.AccountCash})
	if err != nil {
		t.Fatal(err)
	}

	var tx entity.Transaction
	text := mustCall(t, s, "add_transaction", map[string]any{
		"account_id": acct.ID,
		"amount":     "30.00",
		"type":       "expense",
		"category":   "Food",
	})
	if err := json.Unmarshal([]byte(text), &tx); err != nil {
		t.Fatal(err)
	}
	if a, _ := st.Account(acct.ID); !a.Balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("balance after expense = %s", a.Balance)
	}

	if text, isErr := call(t, s, "add_transaction", map[string]any{"account_id": acct.ID, "amount": "lots", "type": "expense"}); !isErr || !strings.Contains(text, "amount") {
		t.Errorf("bad amount = %q", text)
	}

	rc, err := st.CreateReceivable(ctx, entity.Receivable{Description: "Refund", Amount: decimal.NewFromInt(50), ExpectedDate: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	var pending struct {
		Receivables []entity.Receivable `json:"receivables"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "list_receivables", nil)), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending.Receivables) != 1 {
		t.Fatalf("pending = %+v", pending.Receivables)
	}

	mustCall(t, s, "mark_received", map[string]any{"id": rc.ID, "account_id": acct.ID})
	if text, isErr := call(t, s, "mark_received", map[string]any{"id": rc.ID, "account_id": acct.ID}); !isErr || !strings.Contains(text, "already received") {
		t.Errorf("second mark_received = %q", text)
	}
	if a, _ := st.Account(acct.ID); !a.Balance.Equal(decimal.NewFromInt(120)) {
		t.Errorf("balance after receipt = %s", a.Balance)
	}

	var sum struct {
		Income   decimal.Decimal `json:"income"`
		Expenses decimal.Decimal `json:"expenses"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "finance_summary", map[string]any{"month": "2024-03"})), &sum); err != nil {
		t.Fatal(err)
	}
	if !sum.Income.Equal(decimal.NewFromInt(50)) || !sum.Expenses.Equal(decimal.NewFromInt(30)) {
		t.Errorf("summary = %+v", sum)
	}
	if _, isErr := call(t, s, "finance_summary", map[string]any{"month": "March"}); !isErr {
		t.Error("bad month accepted")
	}

	mustCall(t, s, "delete_transaction", map[string]any{"id": tx.ID})
	if a, _ := st.Account(acct.ID); !a.Balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("balance after delete = %s", a.Balance)
	}
}

func TestRemoteFailureSuggestsReload(t *testing.T) {
	s, st, gw := newTestServer(t)
	ctx := context.Background()
	acct, _ := st.CreateAccount(ctx, entity.Account{Name: "Wallet", Balance: decimal.NewFromInt(100), Type: model.AccountCash})

	gw.FailOn("update", model.TableAccounts, nil)
	text, isErr := call(t, s, "add_transaction", map[string]any{"account_id": acct.ID, "amount": "10", "type": "expense"})
	if !isErr || !strings.Contains(text, "call reload") {
		t.Fatalf("failed write = %q", text)
	}

	text = mustCall(t, s, "reload", nil)
	if !strings.Contains(text, "1 accounts, 1 transactions") {
		t.Errorf("reload = %q", text)
	}
	if a, _ := st.Account(acct.ID); !a.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after reload = %s", a.Balance)
	}

	var accounts struct {
		Accounts []entity.Account `json:"accounts"`
	}
	if err := json.Unmarshal([]byte(mustCall(t, s, "list_accounts", nil)), &accounts); err != nil {
		t.Fatal(err)
	}
	if len(accounts.Accounts) != 1 {
		t.Errorf("accounts = %+v", accounts.Accounts)
	}
}
