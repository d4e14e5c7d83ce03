// Package observability records every tool invocation into a local sqlite
// database so operators can see what the automation did, when, and how long
// it took. Recording is best-effort: a broken log DB degrades to slog
// warnings, never to failed invocations.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/redfeed/dbopen"
	"github.com/hazyhaar/redfeed/idgen"
)

// Invocation is one recorded tool call.
type Invocation struct {
	InvocationID string
	Timestamp    time.Time
	ToolName     string
	Profile      string
	Transport    string
	Parameters   string // JSON
	Status       string // "success", "error", "cancelled"
	ErrorMessage string
	DurationMs   int64
}

// Filter controls Query results.
type Filter struct {
	ToolName *string
	Status   *string
	Since    *time.Time
	Limit    int // default 100
}

// InvocationLogger persists invocation records asynchronously.
type InvocationLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Invocation
	stop  chan struct{}
	done  chan struct{}
}

// Option configures an InvocationLogger.
type Option func(*InvocationLogger)

// WithIDGenerator sets a custom ID generator for invocation IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *InvocationLogger) { l.newID = gen }
}

// NewInvocationLogger creates an async logger over db. Recommended
// bufferSize: 256.
func NewInvocationLogger(db *sql.DB, bufferSize int, opts ...Option) *InvocationLogger {
	l := &InvocationLogger{
		db:    db,
		newID: idgen.Prefixed("inv_", idgen.Default),
		ch:    make(chan *Invocation, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Record builds an invocation record from a finished call and queues it. A
// full buffer falls back to a synchronous insert so records are not dropped
// under load.
func (l *InvocationLogger) Record(tool, profile, transport string, params any, err error, duration time.Duration) {
	inv := &Invocation{
		InvocationID: l.newID(),
		Timestamp:    time.Now(),
		ToolName:     tool,
		Profile:      profile,
		Transport:    transport,
		DurationMs:   duration.Milliseconds(),
		Parameters:   "{}",
	}
	if params != nil {
		if b, e := json.Marshal(params); e == nil {
			inv.Parameters = string(b)
		}
	}
	switch {
	case err == nil:
		inv.Status = "success"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		inv.Status = "cancelled"
		inv.ErrorMessage = err.Error()
	default:
		inv.Status = "error"
		inv.ErrorMessage = err.Error()
	}

	select {
	case l.ch <- inv:
	default:
		slog.Warn("observability: invocation buffer full, sync fallback", "tool", tool)
		if e := l.insert(context.Background(), inv); e != nil {
			slog.Error("observability: sync fallback failed", "error", e)
		}
	}
}

// Log inserts a record synchronously.
func (l *InvocationLogger) Log(ctx context.Context, inv *Invocation) error {
	if inv.InvocationID == "" {
		inv.InvocationID = l.newID()
	}
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now()
	}
	return l.insert(ctx, inv)
}

const insertSQL = `
	INSERT INTO tool_invocations
		(invocation_id, timestamp, tool_name, profile, transport,
		 parameters, status, error_message, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(inv *Invocation) []any {
	return []any{
		inv.InvocationID, inv.Timestamp.Unix(), inv.ToolName, inv.Profile,
		inv.Transport, inv.Parameters, inv.Status, inv.ErrorMessage, inv.DurationMs,
	}
}

// insert writes one record, retrying transient lock errors. Concurrent tool
// calls over HTTP share this WAL database with the flush goroutine.
func (l *InvocationLogger) insert(ctx context.Context, inv *Invocation) error {
	if _, err := dbopen.Exec(ctx, l.db, insertSQL, insertArgs(inv)...); err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// insertBatch writes queued records in one transaction.
func (l *InvocationLogger) insertBatch(ctx context.Context, invs []*Invocation) error {
	if len(invs) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, inv := range invs {
			if _, err := tx.ExecContext(ctx, insertSQL, insertArgs(inv)...); err != nil {
				return fmt.Errorf("insert invocation %s: %w", inv.InvocationID, err)
			}
		}
		return nil
	})
}

func (l *InvocationLogger) flushLoop() {
	defer close(l.done)
	for {
		select {
		case inv := <-l.ch:
			// Fold whatever else is already queued into one transaction.
			batch := append([]*Invocation{inv}, l.drain()...)
			if err := l.insertBatch(context.Background(), batch); err != nil {
				slog.Error("observability: persist invocations", "error", err, "count", len(batch))
			}
		case <-l.stop:
			if err := l.insertBatch(context.Background(), l.drain()); err != nil {
				slog.Error("observability: persist invocations", "error", err)
			}
			return
		}
	}
}

func (l *InvocationLogger) drain() []*Invocation {
	var invs []*Invocation
	for {
		select {
		case inv := <-l.ch:
			invs = append(invs, inv)
		default:
			return invs
		}
	}
}

// Close drains the buffer and stops the flush goroutine.
func (l *InvocationLogger) Close() {
	close(l.stop)
	<-l.done
}

// Query returns recorded invocations matching f, newest first.
func (l *InvocationLogger) Query(ctx context.Context, f *Filter) ([]*Invocation, error) {
	q := `SELECT invocation_id, timestamp, tool_name, profile, transport,
		parameters, status, error_message, duration_ms
		FROM tool_invocations WHERE 1=1`
	var args []any

	if f.ToolName != nil {
		q += " AND tool_name = ?"
		args = append(args, *f.ToolName)
	}
	if f.Status != nil {
		q += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.Since != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.Unix())
	}

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var inv Invocation
		var ts int64
		if err := rows.Scan(&inv.InvocationID, &ts, &inv.ToolName, &inv.Profile,
			&inv.Transport, &inv.Parameters, &inv.Status, &inv.ErrorMessage,
			&inv.DurationMs); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.Timestamp = time.Unix(ts, 0)
		out = append(out, &inv)
	}
	return out, rows.Err()
}
