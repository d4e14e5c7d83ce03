package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const busyRetries = 3

// IsBusy reports whether err is an SQLite BUSY condition. modernc surfaces
// these as plain error strings, not typed codes, so match on the message.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withRetry runs op up to busyRetries times while the database reports
// BUSY, backing off 100/200/300 ms between attempts. Non-BUSY errors
// return immediately and unwrapped.
func withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for i := range busyRetries {
		err = op()
		if err == nil || !IsBusy(err) {
			return err
		}
		if i == busyRetries-1 {
			break
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: %s: %w", name, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("dbopen: %s: busy after %d attempts: %w", name, busyRetries, err)
}

// Exec executes a single statement with automatic retry on BUSY. Writers
// sharing one WAL database (concurrent tool calls over HTTP) hit transient
// locks; a short retry absorbs them.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withRetry(ctx, "exec", func() error {
		var e error
		res, e = db.ExecContext(ctx, query, args...)
		return e
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunTx executes fn inside a transaction with automatic retry on BUSY.
// The whole transaction reruns on retry, so fn must be safe to call again.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withRetry(ctx, "tx", func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}
