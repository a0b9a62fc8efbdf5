// Package journal keeps an append-only sqlite record of sweep runs. It is an
// audit trail for the operator; nothing in the tool reads it back to act on.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

var ErrClosed = errors.New("journal closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	rescue      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	sent        INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	total_sent  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id     TEXT NOT NULL REFERENCES runs(run_id),
	wallet_idx INTEGER NOT NULL,
	address    TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT NOT NULL,
	balance    TEXT NOT NULL,
	fee_price  TEXT NOT NULL,
	amount     TEXT NOT NULL,
	tx_hash    TEXT NOT NULL,
	error      TEXT NOT NULL,
	PRIMARY KEY (run_id, address)
);
`

// Run summarises one recorded sweep.
type Run struct {
	RunID      string
	Rescue     common.Address
	StartedAt  time.Time
	FinishedAt time.Time
	Sent       int
	Skipped    int
	Failed     int
	TotalSent  *big.Int
}

// Entry is one stored outcome. Amounts are decimal wei strings as stored.
type Entry struct {
	RunID    string
	Index    uint32
	Address  common.Address
	Status   string
	Reason   string
	Balance  string
	FeePrice string
	Amount   string
	TxHash   string
	Error    string
}

type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record stores a report and all of its outcomes in one transaction.
func (j *Journal) Record(ctx context.Context, report *sweep.Report) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	if report == nil {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, rescue, started_at, finished_at, sent, skipped, failed, total_sent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Rescue.Hex(),
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		report.Count(sweep.StatusSent),
		report.Count(sweep.StatusSkipped),
		report.Count(sweep.StatusFailed),
		report.TotalSent().String(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, wallet_idx, address, status, reason, balance, fee_price, amount, tx_hash, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Sorted() {
		txHash := ""
		if o.Submitted() {
			txHash = o.TxHash.Hex()
		}
		_, err := stmt.ExecContext(ctx,
			report.RunID,
			o.Index,
			o.Address.Hex(),
			o.Status.String(),
			o.Reason.String(),
			amountText(o.Balance),
			amountText(o.FeePrice),
			amountText(o.Amount),
			txHash,
			o.ErrorText(),
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Address.Hex(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}

	logger.DebugCF("journal", "Sweep recorded", map[string]any{
		"run_id":   report.RunID,
		"outcomes": report.Len(),
	})
	return nil
}

// Hook adapts Record to sweep.WithReportHook. Failures are logged.
func (j *Journal) Hook() sweep.ReportHook {
	return func(ctx context.Context, report *sweep.Report) {
		if err := j.Record(ctx, report); err != nil {
			logger.ErrorCF("journal", "Failed to record sweep", map[string]any{
				"run_id": report.RunID,
				"error":  err.Error(),
			})
		}
	}
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, rescue, started_at, finished_at, sent, skipped, failed, total_sent
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			rescue, total     string
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &rescue, &started, &finished, &r.Sent, &r.Skipped, &r.Failed, &total); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Rescue = common.HexToAddress(rescue)
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.TotalSent, _ = new(big.Int).SetString(total, 10)
		if r.TotalSent == nil {
			r.TotalSent = new(big.Int)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the stored outcomes of one run in derivation order.
func (j *Journal) Outcomes(ctx context.Context, runID string) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, wallet_idx, address, status, reason, balance, fee_price, amount, tx_hash, error
		 FROM outcomes WHERE run_id = ? ORDER BY wallet_idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			addr string
		)
		if err := rows.Scan(&e.RunID, &e.Index, &addr, &e.Status, &e.Reason, &e.Balance, &e.FeePrice, &e.Amount, &e.TxHash, &e.Error); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.Address = common.HexToAddress(addr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func amountText(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
