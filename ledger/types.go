/*
Package ledger provides the coin ledger core: wallets, the append-only
transaction log, and the engine that moves coins between them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: a coin quantity backed by decimal.Decimal (never float)
  - Wallet: one balance record per user, with a public boiya id
  - Transaction: an immutable log entry recording a balance change,
    including rejected attempts (status FAILED)
  - Catalog entities: Category, Product, UserPurchase, Task

DESIGN PRINCIPLES:
  1. Balance moves only through Engine primitives, never by field writes
  2. The transaction log is append-only; corrections are new entries
  3. Precision: decimal.Decimal with two fractional digits, no floats
  4. Failure reasons are structured codes, not parsed out of free text

USAGE:
  w, _ := engine.GetOrCreateWallet(ctx, "user-17")
  balance, err := engine.Transfer(ctx, "user-17", w2.BoiyaID, ledger.NewAmount(30))

SEE ALSO:
  - engine.go: the operations that mutate these types
  - store.go:  persistence interfaces
  - errors.go: the error taxonomy
*/
package ledger

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Coin quantity (single currency, fixed-point)
// =============================================================================

// Amount is a quantity of Booya coins. Stored with two decimal places.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value).Round(2)}
}

func NewAmountFromInt(value int) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value))}
}

// ParseAmount parses a decimal string like "50.00".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d.Round(2)}, nil
}

// MustParseAmount is ParseAmount for literals in tests and config defaults.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func Zero() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) GreaterOrEqual(b Amount) bool { return !a.Value.LessThan(b.Value) }

// String renders with exactly two decimal places ("70.00").
func (a Amount) String() string { return a.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID        string
	WalletID      string
	TransactionID string
	CategoryID    string
	ProductID     string
	TaskID        string
)

func NewWalletID() WalletID           { return WalletID(uuid.NewString()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }
func NewCategoryID() CategoryID       { return CategoryID(uuid.NewString()) }
func NewProductID() ProductID         { return ProductID(uuid.NewString()) }
func NewTaskID() TaskID               { return TaskID(uuid.NewString()) }

// boiyaAlphabet matches the original public-id shape: 12 chars, A-Z0-9.
const (
	boiyaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	boiyaLength   = 12
)

// NewBoiyaID generates an opaque public wallet identifier. Uniqueness is
// enforced by the store; callers retry on ErrDuplicateBoiyaID.
func NewBoiyaID() string {
	buf := make([]byte, boiyaLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure is not recoverable
	}
	for i, b := range buf {
		buf[i] = boiyaAlphabet[int(b)%len(boiyaAlphabet)]
	}
	return string(buf)
}

// =============================================================================
// WALLET - One balance record per user
// =============================================================================

// Wallet holds a user's coin balance.
//
// INVARIANTS:
//   - Balance >= 0 at all times
//   - BoiyaID is assigned at creation and never changes
//   - Balance and LastBonusDate are mutated only by Engine primitives
type Wallet struct {
	ID      WalletID
	UserID  UserID
	Balance Amount
	BoiyaID string

	// Date (UTC midnight) of the most recent daily login bonus; nil if never.
	LastBonusDate *time.Time

	CreatedAt time.Time
}

// DateOf truncates t to a UTC calendar date, the granularity the daily
// bonus idempotency key uses.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two instants fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool { return DateOf(a).Equal(DateOf(b)) }

// =============================================================================
// TRANSACTION - Append-only log entry
// =============================================================================

type Kind string

const (
	KindSignupBonus     Kind = "SIGNUP_BONUS"
	KindDailyLogin      Kind = "DAILY_LOGIN"
	KindTaskReward      Kind = "TASK_REWARD"
	KindAdminGrant      Kind = "ADMIN_GRANT"
	KindTransferSend    Kind = "TRANSFER_SEND"
	KindTransferReceive Kind = "TRANSFER_RECEIVE"
	KindShopRedemption  Kind = "SHOP_REDEMPTION"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// FailureReason is a structured rejection code recorded on FAILED entries.
// History reporting reads this field, never the free-text description.
type FailureReason string

const (
	ReasonInvalidAmount       FailureReason = "invalid_amount"
	ReasonSelfTransfer        FailureReason = "self_transfer"
	ReasonRecipientNotFound   FailureReason = "recipient_not_found"
	ReasonInsufficientBalance FailureReason = "insufficient_balance"
)

// Transaction is one entry in the append-only log. Never updated or
// deleted after creation; rejected attempts are recorded too.
type Transaction struct {
	ID       TransactionID
	WalletID WalletID
	Amount   Amount
	Kind     Kind

	// Counterparty wallet, set on transfer entries (the recipient on a
	// TRANSFER_SEND row, the sender on a TRANSFER_RECEIVE row).
	RecipientWalletID WalletID

	// Product paid for, set on SHOP_REDEMPTION entries.
	ProductID ProductID

	Status        Status
	FailureReason FailureReason // empty on COMPLETED entries
	Description   string
	CreatedAt     time.Time
}

// =============================================================================
// CATALOG ENTITIES
// =============================================================================

// Category groups products. ItemCount is denormalized and maintained
// transactionally with every product create/move/delete; it must always
// equal the count of products in the category once a mutation settles.
type Category struct {
	ID        CategoryID
	Name      string
	Paused    bool
	ItemCount int
}

// Product is a purchasable catalog item.
//
// Sales is monotonic and incremented only through the Engine's Purchase
// path. FileURL is revealed to a buyer only after a successful purchase.
type Product struct {
	ID           ProductID
	Name         string
	Description  string
	Price        Amount
	CategoryID   CategoryID
	ThumbnailURL string
	FileURL      string
	Paused       bool
	Sales        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Visible reports whether the product shows in the shop, given its category.
func (p Product) Visible(c Category) bool { return !p.Paused && !c.Paused }

// UserPurchase links a user to a product and the transaction that paid
// for it. One row per successful purchase event; repeat purchases of
// the same product each get their own row.
type UserPurchase struct {
	ID            string
	UserID        UserID
	ProductID     ProductID
	TransactionID TransactionID
	PurchasedAt   time.Time
}

// =============================================================================
// TASKS - Reward-bearing work items
// =============================================================================

type Task struct {
	ID          TaskID
	Title       string
	Description string
	RewardCoins Amount
	Active      bool
}

// TaskCompletion records that a user finished a task. The (UserID,
// TaskID) pair is unique; the constraint is the task-reward idempotency
// guard.
type TaskCompletion struct {
	UserID      UserID
	TaskID      TaskID
	CompletedAt time.Time
}
