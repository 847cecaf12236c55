package store

import "time"

// timeLayout is the storage format for all timestamps.
// RFC 3339 with nanoseconds sorts lexicographically within a single
// writer, which keeps ledger ordering stable.
const timeLayout = time.RFC3339Nano

// Idempotency record statuses.
const (
	IdempotencyPending   = "PENDING"
	IdempotencyCommitted = "COMMITTED"
	IdempotencyFailed    = "FAILED"
)

// Cash session statuses.
const (
	SessionOpen   = "OPEN"
	SessionClosed = "CLOSED"
)

// IdempotencyRecord arbitrates exactly-once execution for one logical
// attempt. The row is claimed with a unique-constraint insert; exactly
// one concurrent caller wins the claim and runs the effect.
type IdempotencyRecord struct {
	Key          string
	Operation    string
	RequestHash  string
	Status       string
	Result       string // canonical JSON payload, set when COMMITTED
	ErrorCode    string // rejection code, set when FAILED
	ErrorMessage string
	CreatedAt    time.Time
}

// LoyaltyAccount is a customer's balance within one loyalty program.
// Invariant: CurrentPoints = TotalPointsEarned - TotalPointsRedeemed,
// and CurrentPoints never goes negative.
type LoyaltyAccount struct {
	ID                  string
	CustomerID          string
	ProgramID           string
	CurrentPoints       int64
	TotalPointsEarned   int64
	TotalPointsRedeemed int64
	CreatedAt           time.Time
}

// PointsTransaction is one row of the append-only audit ledger.
// Rows are never updated or deleted in normal operation.
type PointsTransaction struct {
	ID              string
	AccountID       string
	Delta           int64
	Reason          string
	IdempotencyKey  string
	CreatedAt       time.Time
}

// Reward is a redeemable catalog entry with finite stock.
// Remaining stock is MaxRedemptions - CurrentRedemptions.
type Reward struct {
	ID                 string
	ProgramID          string
	Name               string
	PointsCost         int64
	MaxRedemptions     int64
	CurrentRedemptions int64
	IsActive           bool
}

// CustomerReward is the grant record created exactly once per
// successful redemption.
type CustomerReward struct {
	ID         string
	AccountID  string
	RewardID   string
	SaleID     string
	RedeemedAt time.Time
}

// CashSession is a till shift. Lifecycle: OPEN -> CLOSED, terminal.
type CashSession struct {
	ID            string
	OpenedBy      string
	OpeningAmount int64 // cents
	ClosingAmount int64 // cents, valid only when Status == CLOSED
	Status        string
	OpenedAt      time.Time
	ClosedAt      time.Time // zero unless CLOSED
}
