/*
store.go - Persistence interfaces for the ledger core

PURPOSE:
  Defines the boundary between the engine and the database. The store
  must provide atomic multi-row units of work: every engine operation
  that touches more than one row (debit+credit+log, debit+log+sales+
  purchase) runs inside WithUnit and commits or rolls back as a whole.

CONCURRENCY CONTRACT:
  - WithUnit serializes conflicting writers: two units touching the
    same wallet never interleave between its read-check and write.
  - *ForUpdate reads inside a unit return the current committed row and
    hold it exclusively until the unit ends (row lock or equivalent
    single-writer discipline).
  - If the unit's fn returns an error, no write it performed survives.

APPEND-ONLY CONTRACT:
  Transactions have exactly one write operation, AppendTransaction.
  There is no update or delete; corrections are new entries.

IMPLEMENTATIONS:
  - store/memory: single-writer with snapshot rollback (tests/dev)
  - store/sqlite: production store, writer mutex + SQL transactions

SEE ALSO:
  - engine.go: the only caller of the write operations
*/
package ledger

import (
	"context"
	"time"
)

// ListFilter narrows and pages a transaction history query.
type ListFilter struct {
	Kind   Kind // zero value = all kinds
	Limit  int  // 0 = no limit
	Offset int
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	CategoryID CategoryID // zero value = all categories
	// VisibleOnly keeps only products that are not paused and whose
	// category is not paused.
	VisibleOnly bool
}

// Reader is the read-only view shared by Store and UnitOfWork.
// Lookups returning a single entity yield the matching not-found
// sentinel (ErrWalletNotFound, ErrCategoryNotFound, ...) on a miss.
type Reader interface {
	Wallet(ctx context.Context, id WalletID) (*Wallet, error)
	WalletByUser(ctx context.Context, userID UserID) (*Wallet, error)
	WalletByBoiyaID(ctx context.Context, boiyaID string) (*Wallet, error)

	// Transactions returns a wallet's log entries, newest first.
	Transactions(ctx context.Context, walletID WalletID, f ListFilter) ([]Transaction, error)

	Category(ctx context.Context, id CategoryID) (*Category, error)
	Categories(ctx context.Context) ([]Category, error)
	Product(ctx context.Context, id ProductID) (*Product, error)
	Products(ctx context.Context, f ProductFilter) ([]Product, error)

	Task(ctx context.Context, id TaskID) (*Task, error)
	Tasks(ctx context.Context, activeOnly bool) ([]Task, error)

	// Purchases returns a user's purchase records, newest first.
	Purchases(ctx context.Context, userID UserID) ([]UserPurchase, error)

	// CountProducts recounts category membership from the products
	// table. Audit/repair only; the hot path reads Category.ItemCount.
	CountProducts(ctx context.Context, categoryID CategoryID) (int, error)

	// CountPurchases recounts a product's successful purchases.
	// Audit/repair only; the hot path reads Product.Sales.
	CountPurchases(ctx context.Context, productID ProductID) (int, error)
}

// Store is the persistence entry point handed to the engine.
type Store interface {
	Reader

	// WithUnit executes fn inside one atomic unit of work. fn returning
	// an error rolls back every write; nil commits them all.
	WithUnit(ctx context.Context, fn func(UnitOfWork) error) error
}

// UnitOfWork exposes the write operations. Only valid inside WithUnit.
type UnitOfWork interface {
	Reader

	// WalletForUpdate reads a wallet with exclusive ownership for the
	// remainder of the unit. Multi-wallet units must acquire wallets in
	// ascending WalletID order.
	WalletForUpdate(ctx context.Context, id WalletID) (*Wallet, error)

	// CreateWallet inserts a new wallet. ErrWalletExists if the user
	// already has one; ErrDuplicateBoiyaID on a public-id collision.
	CreateWallet(ctx context.Context, w Wallet) error

	// SetBalance writes a wallet's balance. Engine-only primitive; the
	// engine computed the value under WalletForUpdate.
	SetBalance(ctx context.Context, id WalletID, balance Amount) error

	// SetLastBonusDate records the daily-bonus check-and-set date.
	SetLastBonusDate(ctx context.Context, id WalletID, day time.Time) error

	// AppendTransaction appends a log entry. The only transaction write.
	AppendTransaction(ctx context.Context, tx Transaction) error

	ProductForUpdate(ctx context.Context, id ProductID) (*Product, error)

	CreateCategory(ctx context.Context, c Category) error
	UpdateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, id CategoryID) error
	// SetItemCount overwrites a category's denormalized count (recount repair).
	SetItemCount(ctx context.Context, id CategoryID, n int) error
	// AdjustItemCount applies a +1/-1 delta with a structural change.
	AdjustItemCount(ctx context.Context, id CategoryID, delta int) error

	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id ProductID) error
	// IncrementSales bumps the sales counter. Called only from the
	// engine's successful Purchase path.
	IncrementSales(ctx context.Context, id ProductID) error
	// SetSales overwrites the sales counter (recount repair).
	SetSales(ctx context.Context, id ProductID, n int) error

	CreateTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, t Task) error

	// InsertCompletion records a task completion. The store enforces
	// (UserID, TaskID) uniqueness and returns ErrTaskAlreadyCompleted
	// on a duplicate.
	InsertCompletion(ctx context.Context, c TaskCompletion) error

	InsertPurchase(ctx context.Context, p UserPurchase) error
}
