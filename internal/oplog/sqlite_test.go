package oplog

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "oplog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func (r *SQLiteRecorder) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRecordOperation(t *testing.T) {
	r := newTestRecorder(t)
	op := &Operation{
		Time:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Actor:      "ops",
		Type:       OpMove,
		From:       "pool:operational",
		To:         "holder:mm",
		Amount:     "1000000000000000000000",
		FromBefore: "250000000000000000000000000",
		FromAfter:  "249999000000000000000000000",
		ToBefore:   "0",
		ToAfter:    "1000000000000000000000",
	}
	if err := r.RecordOperation(op); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
	if n := r.count(t, "operations"); n != 1 {
		t.Errorf("operations rows = %d, want 1", n)
	}

	var actor, amount string
	var ts int64
	err := r.db.QueryRow("SELECT timestamp, actor, amount FROM operations").Scan(&ts, &actor, &amount)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if actor != "ops" || amount != op.Amount || ts != op.Time.Unix() {
		t.Errorf("row = (%d, %s, %s)", ts, actor, amount)
	}
}

func TestRecordEventTables(t *testing.T) {
	r := newTestRecorder(t)

	if err := r.RecordPurchase(&PurchaseEvent{
		PurchaseID: "p-1", Investor: "alice", Tokens: "15000000",
		CostUSD: "1525000", Instrument: "USDT", Tiers: "0:10000000@0.1 1:5000000@0.105",
	}); err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	if err := r.RecordProposal(&ProposalEvent{
		ProposalID: "t-1", Event: "PROPOSE", Actor: "alice",
		Category: "development", Amount: "5000000", State: "Pending",
	}); err != nil {
		t.Fatalf("RecordProposal: %v", err)
	}
	if err := r.RecordPrice(&PriceEvent{
		Symbol: "ETH", Price: "3400", Accepted: false, Reason: "DeltaTooLarge",
	}); err != nil {
		t.Fatalf("RecordPrice: %v", err)
	}

	for _, table := range []string{"sale_purchases", "treasury_proposals", "price_updates"} {
		if n := r.count(t, table); n != 1 {
			t.Errorf("%s rows = %d, want 1", table, n)
		}
	}

	var accepted int
	if err := r.db.QueryRow("SELECT accepted FROM price_updates").Scan(&accepted); err != nil {
		t.Fatalf("query price: %v", err)
	}
	if accepted != 0 {
		t.Errorf("accepted = %d, want 0", accepted)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oplog.db")
	r, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	if err := r.RecordOperation(&Operation{Type: OpInitialize, Amount: "1"}); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
	r.Close()

	r2, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()
	if n := r2.count(t, "operations"); n != 1 {
		t.Errorf("rows after reopen = %d, want 1", n)
	}
}

func TestNoopRecorder(t *testing.T) {
	r := NewNoopRecorder()
	if err := r.RecordOperation(&Operation{}); err != nil {
		t.Errorf("noop RecordOperation: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("noop Close: %v", err)
	}
}
