// Package history keeps a sqlite ledger of runs and the card statements
// each run collected.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/yurifrl/meisai/pkg/models"
)

// Run is one recorded run.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	LoginError  string
	NotifyError string
	Report      string
	Statements  []models.CardStatement
}

type Ledger struct {
	db *sql.DB
}

// Open creates the database file and its directory when missing and
// applies pending migrations.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(path); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Record stores run with one row per card statement and period key.
func (l *Ledger) Record(ctx context.Context, run Run) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, login_error, notify_error, report) VALUES (?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.LoginError, run.NotifyError, run.Report,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for seq, st := range run.Statements {
		for _, key := range st.Total.Keys() {
			amount, _ := st.Total.Get(key)
			_, err := tx.ExecContext(ctx,
				`INSERT INTO statements (run_id, seq, card_name, period, period_key, amount) VALUES (?, ?, ?, ?, ?, ?)`,
				id, seq, st.CardName, st.Period, string(key), amount.String(),
			)
			if err != nil {
				return 0, fmt.Errorf("insert statement %s: %w", st.CardName, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Recent returns the last n runs, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, login_error, notify_error, report FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.LoginError, &r.NotifyError, &r.Report); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		sts, err := l.statements(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Statements = sts
	}
	return runs, nil
}

func (l *Ledger) statements(ctx context.Context, runID int64) ([]models.CardStatement, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, card_name, period, period_key, amount FROM statements WHERE run_id = ? ORDER BY seq, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	defer rows.Close()

	var (
		out     []models.CardStatement
		lastSeq = -1
	)
	for rows.Next() {
		var seq int
		var card, period, key, text string
		if err := rows.Scan(&seq, &card, &period, &key, &text); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		amount, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("run %d: amount %q: %w", runID, text, err)
		}
		if seq != lastSeq {
			out = append(out, models.CardStatement{CardName: card, Period: period, Total: models.NewPaymentTotal()})
			lastSeq = seq
		}
		out[len(out)-1].Total.Add(models.PeriodKey(key), amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read statements: %w", err)
	}
	return out, nil
}
