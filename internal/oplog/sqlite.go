package oplog

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the operation history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (monitoring reads
	// while the engine writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite oplog opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			actor        TEXT,
			op_type      TEXT,
			from_account TEXT,
			to_account   TEXT,
			amount       TEXT,
			from_before  TEXT,
			from_after   TEXT,
			to_before    TEXT,
			to_after     TEXT,
			note         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_ts ON operations(timestamp)`,

		`CREATE TABLE IF NOT EXISTS sale_purchases (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			purchase_id TEXT,
			investor    TEXT,
			tokens      TEXT,
			cost_usd    TEXT,
			instrument  TEXT,
			tiers       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_ts ON sale_purchases(timestamp)`,

		`CREATE TABLE IF NOT EXISTS treasury_proposals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			proposal_id TEXT,
			event       TEXT,
			actor       TEXT,
			category    TEXT,
			amount      TEXT,
			state       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_ts ON treasury_proposals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS price_updates (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT,
			price     TEXT,
			accepted  INTEGER,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_ts ON price_updates(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordOperation(op *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := op.Time.Unix()
	if op.Time.IsZero() {
		ts = time.Now().Unix()
	}
	_, err := r.db.Exec(`INSERT INTO operations
		(timestamp, actor, op_type, from_account, to_account, amount,
		 from_before, from_after, to_before, to_after, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ts, op.Actor, op.Type, op.From, op.To, op.Amount,
		op.FromBefore, op.FromAfter, op.ToBefore, op.ToAfter, op.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordPurchase(evt *PurchaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO sale_purchases
		(timestamp, purchase_id, investor, tokens, cost_usd, instrument, tiers)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.PurchaseID, evt.Investor, evt.Tokens,
		evt.CostUSD, evt.Instrument, evt.Tiers,
	)
	return err
}

func (r *SQLiteRecorder) RecordProposal(evt *ProposalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO treasury_proposals
		(timestamp, proposal_id, event, actor, category, amount, state)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.ProposalID, evt.Event, evt.Actor,
		evt.Category, evt.Amount, evt.State,
	)
	return err
}

func (r *SQLiteRecorder) RecordPrice(evt *PriceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := 0
	if evt.Accepted {
		accepted = 1
	}
	_, err := r.db.Exec(`INSERT INTO price_updates
		(timestamp, symbol, price, accepted, reason)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.Price, accepted, evt.Reason,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite oplog")
	return r.db.Close()
}
