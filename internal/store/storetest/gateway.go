// Package storetest provides an in-memory Gateway for store tests.
package storetest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"flowstate/internal/entity"
	"flowstate/internal/model"
)

// ErrTransport is the default failure injected by FailNext.
var ErrTransport = errors.New("storetest: transport failure")

// Call records one gateway request.
type Call struct {
	Op    string
	Table model.Table
	ID    string
}

// Gateway keeps rows per table in insertion order. Rows cross it through a
// JSON round trip so callers see what the HTTP client would decode.
type Gateway struct {
	mu     sync.Mutex
	tables map[model.Table][]entity.Row
	faults []fault
	calls  []Call
}

type fault struct {
	op    string
	table model.Table
	err   error
}

func (f fault) matches(op string, table model.Table) bool {
	return (f.op == "" || f.op == op) && (f.table == "" || f.table == table)
}

func New() *Gateway {
	return &Gateway{tables: make(map[model.Table][]entity.Row)}
}

// FailNext makes the next len(errs) calls fail with errs in order. A nil
// entry fails with ErrTransport.
func (g *Gateway) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, err := range errs {
		if err == nil {
			err = ErrTransport
		}
		g.faults = append(g.faults, fault{err: err})
	}
}

// FailOn makes the next op call on table fail with err, or ErrTransport when
// err is nil. Other calls pass through.
func (g *Gateway) FailOn(op string, table model.Table, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		err = ErrTransport
	}
	g.faults = append(g.faults, fault{op: op, table: table, err: err})
}

// Seed stores rows directly, bypassing call recording and faults.
func (g *Gateway) Seed(table model.Table, rows ...entity.Row) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, row := range rows {
		g.tables[table] = append(g.tables[table], wire(row))
	}
}

// Row returns the stored row with id.
func (g *Gateway) Row(table model.Table, id string) (entity.Row, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := g.index(table, id); i >= 0 {
		return wire(g.tables[table][i]), true
	}
	return nil, false
}

// Rows returns every stored row of table.
func (g *Gateway) Rows(table model.Table) []entity.Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]entity.Row, 0, len(g.tables[table]))
	for _, row := range g.tables[table] {
		out = append(out, wire(row))
	}
	return out
}

func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

func (g *Gateway) List(_ context.Context, table model.Table) ([]entity.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("list", table, ""); err != nil {
		return nil, err
	}
	out := make([]entity.Row, 0, len(g.tables[table]))
	for _, row := range g.tables[table] {
		out = append(out, wire(row))
	}
	return out, nil
}

func (g *Gateway) Create(_ context.Context, table model.Table, row entity.Row) (entity.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, _ := row["id"].(string)
	if err := g.record("create", table, id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &model.ValidationError{Field: "id", Message: "is required"}
	}
	if g.index(table, id) >= 0 {
		return nil, &model.ValidationError{Field: "id", Message: fmt.Sprintf("%q already exists", id)}
	}
	stored := wire(row)
	g.tables[table] = append(g.tables[table], stored)
	return wire(stored), nil
}

func (g *Gateway) Update(_ context.Context, table model.Table, id string, patch entity.Row) (entity.Row, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("update", table, id); err != nil {
		return nil, false, err
	}
	i := g.index(table, id)
	if i < 0 {
		return nil, false, nil
	}
	merged := g.tables[table][i]
	for k, v := range wire(patch) {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	return wire(merged), true, nil
}

func (g *Gateway) Delete(_ context.Context, table model.Table, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete", table, id); err != nil {
		return err
	}
	if i := g.index(table, id); i >= 0 {
		rows := g.tables[table]
		g.tables[table] = append(rows[:i:i], rows[i+1:]...)
	}
	return nil
}

func (g *Gateway) record(op string, table model.Table, id string) error {
	g.calls = append(g.calls, Call{Op: op, Table: table, ID: id})
	for i, f := range g.faults {
		if f.matches(op, table) {
			g.faults = append(g.faults[:i:i], g.faults[i+1:]...)
			return f.err
		}
	}
	return nil
}

func (g *Gateway) index(table model.Table, id string) int {
	for i, row := range g.tables[table] {
		if row["id"] == id {
			return i
		}
	}
	return -1
}

// wire deep-copies row the way an HTTP round trip would.
func wire(row entity.Row) entity.Row {
	raw, err := json.Marshal(row)
	if err != nil {
		panic(fmt.Sprintf("storetest: marshal row: %v", err))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out entity.Row
	if err := dec.Decode(&out); err != nil {
		panic(fmt.Sprintf("storetest: decode row: %v", err))
	}
	return out
}
