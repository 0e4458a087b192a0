package oplog

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordOperation(_ *Operation) error   { return nil }
func (n *NoopRecorder) RecordPurchase(_ *PurchaseEvent) error { return nil }
func (n *NoopRecorder) RecordProposal(_ *ProposalEvent) error { return nil }
func (n *NoopRecorder) RecordPrice(_ *PriceEvent) error       { return nil }
func (n *NoopRecorder) Close() error                          { return nil }
