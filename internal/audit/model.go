package audit

import (
	"time"
)

// Entry is one audit row. The tuple (EntityType, EntityID, Action,
// ReferenceCode) is unique: at most one row per logical event no matter
// how many times the bus redelivers it. Rows are never updated or
// deleted.
type Entry struct {
	ID             int64
	EntityType     string
	EntityID       string
	Action         string
	StateBefore    string
	StateAfter     string
	Amount         *int64
	BalanceBefore  *int64
	BalanceAfter   *int64
	ReferenceCode  string
	IdempotencyKey string
	ActorType      string
	ActorID        string
	SourceService  string
	CreatedAt      time.Time
}

// Entity types recorded by the ledger consumers.
const (
	EntityAccount     = "account"
	EntityTransaction = "transaction"
)

// SourceLedger identifies this service in audit rows.
const SourceLedger = "ledger"
