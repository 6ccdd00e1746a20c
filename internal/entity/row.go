package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flowstate/internal/model"
)

// Row is a stored record as it crosses the wire, keyed by column name.
type Row map[string]any

// FieldError reports a row column that could not be mapped.
type FieldError struct {
	Field string
	Got   any
	Want  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %s: expected %s, got %T", e.Field, e.Want, e.Got)
}

func TaskToRow(t Task) Row {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return Row{
		"id":           t.ID,
		"title":        t.Title,
		"description":  nullString(t.Description),
		"priority":     string(t.Priority),
		"status":       string(t.Status),
		"due_date":     nullTime(t.DueDate),
		"tags":         tags,
		"project":      nullString(t.Project),
		"routine_id":   nullString(t.RoutineID),
		"created_at":   formatTime(t.CreatedAt),
		"completed_at": nullTime(t.CompletedAt),
	}
}

func TaskFromRow(row Row) (Task, error) {
	r := reader{row: row}
	t := Task{
		ID:          r.str("id"),
		Title:       r.str("title"),
		Description: r.str("description"),
		Priority:    model.Priority(r.str("priority")),
		Status:      model.Status(r.str("status")),
		DueDate:     r.optTime("due_date"),
		Tags:        r.strs("tags"),
		Project:     r.str("project"),
		RoutineID:   r.str("routine_id"),
		CreatedAt:   r.time("created_at"),
		CompletedAt: r.optTime("completed_at"),
	}
	return t, r.err
}

func RoutineToRow(rt Routine) Row {
	days := rt.DaysOfWeek
	if days == nil {
		days = []int{}
	}
	history := rt.CompletionHistory
	if history == nil {
		history = []string{}
	}
	return Row{
		"id":                 rt.ID,
		"title":              rt.Title,
		"days_of_week":       days,
		"start_time":         rt.StartTime,
		"end_time":           rt.EndTime,
		"category":           rt.Category,
		"streak":             rt.Streak,
		"completion_history": history,
	}
}

func RoutineFromRow(row Row) (Routine, error) {
	r := reader{row: row}
	rt := Routine{
		ID:                r.str("id"),
		Title:             r.str("title"),
		DaysOfWeek:        r.ints("days_of_week"),
		StartTime:         r.str("start_time"),
		EndTime:           r.str("end_time"),
		Category:          r.str("category"),
		Streak:            r.integer("streak"),
		CompletionHistory: r.strs("completion_history"),
	}
	return rt, r.err
}

func AccountToRow(a Account) Row {
	var limit any
	if a.CreditLimit != nil {
		limit = a.CreditLimit.String()
	}
	return Row{
		"id":           a.ID,
		"name":         a.Name,
		"balance":      a.Balance.String(),
		"color":        a.Color,
		"type":         string(a.Type),
		"credit_limit": limit,
	}
}

func AccountFromRow(row Row) (Account, error) {
	r := reader{row: row}
	a := Account{
		ID:          r.str("id"),
		Name:        r.str("name"),
		Balance:     r.decimal("balance"),
		Color:       r.str("color"),
		Type:        model.AccountType(r.str("type")),
		CreditLimit: r.optDecimal("credit_limit"),
	}
	return a, r.err
}

func TransactionToRow(t Transaction) Row {
	return Row{
		"id":          t.ID,
		"account_id":  t.AccountID,
		"amount":      t.Amount.String(),
		"type":        string(t.Type),
		"category":    t.Category,
		"description": t.Description,
		"date":        formatTime(t.Date),
	}
}

func TransactionFromRow(row Row) (Transaction, error) {
	r := reader{row: row}
	t := Transaction{
		ID:          r.str("id"),
		AccountID:   r.str("account_id"),
		Amount:      r.decimal("amount"),
		Type:        model.TransactionType(r.str("type")),
		Category:    r.str("category"),
		Description: r.str("description"),
		Date:        r.time("date"),
	}
	return t, r.err
}

func GoalToRow(g Goal) Row {
	return Row{
		"id":             g.ID,
		"title":          g.Title,
		"target_amount":  g.TargetAmount.String(),
		"current_amount": g.CurrentAmount.String(),
		"deadline":       nullTime(g.Deadline),
		"color":          g.Color,
	}
}

func GoalFromRow(row Row) (Goal, error) {
	r := reader{row: row}
	g := Goal{
		ID:            r.str("id"),
		Title:         r.str("title"),
		TargetAmount:  r.decimal("target_amount"),
		CurrentAmount: r.decimal("current_amount"),
		Deadline:      r.optTime("deadline"),
		Color:         r.str("color"),
	}
	return g, r.err
}

func ReceivableToRow(rc Receivable) Row {
	return Row{
		"id":            rc.ID,
		"description":   rc.Description,
		"amount":        rc.Amount.String(),
		"expected_date": formatTime(rc.ExpectedDate),
		"category":      rc.Category,
		"received":      rc.Received,
		"received_date": nullTime(rc.ReceivedDate),
		"account_id":    nullString(rc.AccountID),
	}
}

func ReceivableFromRow(row Row) (Receivable, error) {
	r := reader{row: row}
	rc := Receivable{
		ID:           r.str("id"),
		Description:  r.str("description"),
		Amount:       r.decimal("amount"),
		ExpectedDate: r.time("expected_date"),
		Category:     r.str("category"),
		Received:     r.boolean("received"),
		ReceivedDate: r.optTime("received_date"),
		AccountID:    r.str("account_id"),
	}
	return rc, r.err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// reader pulls typed columns out of a row and keeps the first failure.
// Missing and null columns read as zero values.
type reader struct {
	row Row
	err error
}

func (r *reader) get(key string) (any, bool) {
	v, ok := r.row[key]
	if !ok || v == nil || r.err != nil {
		return nil, false
	}
	return v, true
}

func (r *reader) fail(key string, got any, want string) {
	r.err = &FieldError{Field: key, Got: got, Want: want}
}

func (r *reader) str(key string) string {
	v, ok := r.get(key)
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail(key, v, "string")
	}
	return s
}

func (r *reader) boolean(key string) bool {
	v, ok := r.get(key)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		r.fail(key, v, "bool")
	}
	return b
}

func (r *reader) decimal(key string) decimal.Decimal {
	if d := r.optDecimal(key); d != nil {
		return *d
	}
	return decimal.Zero
}

func (r *reader) optDecimal(key string) *decimal.Decimal {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case string:
		d, err = decimal.NewFromString(n)
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	default:
		r.fail(key, v, "decimal")
		return nil
	}
	if err != nil {
		r.fail(key, v, "decimal")
		return nil
	}
	return &d
}

func (r *reader) integer(key string) int {
	d := r.optDecimal(key)
	if d == nil {
		return 0
	}
	if !d.IsInteger() {
		r.fail(key, r.row[key], "integer")
		return 0
	}
	return int(d.IntPart())
}

func (r *reader) time(key string) time.Time {
	if t := r.optTime(key); t != nil {
		return *t
	}
	return time.Time{}
}

func (r *reader) optTime(key string) *time.Time {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail(key, v, "timestamp")
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	r.fail(key, v, "timestamp")
	return nil
}

func (r *reader) list(key string) []any {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	switch items := v.(type) {
	case []any:
		return items
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(items))
		for i, n := range items {
			out[i] = n
		}
		return out
	}
	r.fail(key, v, "list")
	return nil
}

func (r *reader) strs(key string) []string {
	items := r.list(key)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			r.fail(key, item, "list of strings")
			return []string{}
		}
		out = append(out, s)
	}
	return out
}

func (r *reader) ints(key string) []int {
	items := r.list(key)
	out := make([]int, 0, len(items))
	for i, item := range items {
		sub := reader{row: Row{key: item}}
		n := sub.integer(key)
		if sub.err != nil {
			r.fail(fmt.Sprintf("%s[%d]", key, i), item, "integer")
			return []int{}
		}
		out = append(out, n)
	}
	return out
}
