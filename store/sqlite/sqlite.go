/*
Package sqlite provides the SQLite-backed ledger.Store.

PURPOSE:
  The store of record. All engine units of work run here as real SQL
  transactions; the same patterns apply to PostgreSQL with only dialect
  differences (the writer mutex becomes SELECT ... FOR UPDATE row locks
  acquired in the same ascending-wallet-id order).

KEY TABLES:
  wallets:          one row per user, balance + boiya id + bonus date
  transactions:     append-only log, completed and failed entries
  categories:       shop categories with the denormalized item count
  products:         catalog items with the sales counter
  purchases:        user-product-transaction join rows
  tasks:            reward-bearing tasks
  task_completions: UNIQUE(user_id, task_id) idempotency guard

CONSTRAINTS DOING CORRECTNESS WORK:
  - wallets.user_id UNIQUE:   at most one wallet per user; the create
                              race loser gets ErrWalletExists
  - wallets.boiya_id UNIQUE:  public ids are never reused
  - categories.name UNIQUE:   duplicate names rejected
  - task_completions UNIQUE:  one reward per (user, task)

CONCURRENCY:
  A writer mutex serializes units of work; inside a unit, a database
  transaction gives all-or-nothing commits. SQLite runs with WAL so
  readers do not block on the writer.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: the interfaces this implements
  - store/memory:    the in-memory implementation used in tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/booya/coin-engine/ledger"
)

const dateLayout = "2006-01-02"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the writer mutex serializes writers anyway, and
	// a ":memory:" database must not be split across pool connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL,
		boiya_id TEXT NOT NULL UNIQUE,
		last_bonus_date TEXT,
		created_at TEXT NOT NULL
	);

	-- Append-only: no UPDATE or DELETE is ever issued on this table.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		recipient_wallet_id TEXT,
		product_id TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet
		ON transactions(wallet_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet_kind
		ON transactions(wallet_id, kind);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		paused INTEGER NOT NULL DEFAULT 0,
		item_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		category_id TEXT NOT NULL REFERENCES categories(id),
		thumbnail_url TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL DEFAULT '',
		paused INTEGER NOT NULL DEFAULT 0,
		sales INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category
		ON products(category_id);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		purchased_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_user
		ON purchases(user_id, purchased_at DESC);
	CREATE INDEX IF NOT EXISTS idx_purchases_product
		ON purchases(product_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reward_coins TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	-- One reward per (user, task): the task-reward idempotency guard.
	CREATE TABLE IF NOT EXISTS task_completions (
		user_id TEXT NOT NULL,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		completed_at TEXT NOT NULL,
		UNIQUE(user_id, task_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same read helpers run
// both inside and outside units of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithUnit runs fn inside a database transaction under the writer
// mutex. Any error rolls the whole unit back.
func (s *Store) WithUnit(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&unit{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type unit struct {
	q querier
}

var _ ledger.UnitOfWork = (*unit)(nil)

// =============================================================================
// WALLETS
// =============================================================================

const walletColumns = `id, user_id, balance, boiya_id, last_bonus_date, created_at`

func scanWallet(row *sql.Row) (*ledger.Wallet, error) {
	var (
		w         ledger.Wallet
		balance   string
		bonusDate sql.NullString
		createdAt string
	)
	err := row.Scan(&w.ID, &w.UserID, &balance, &w.BoiyaID, &bonusDate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	if w.Balance, err = ledger.ParseAmount(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance %q: %w", balance, err)
	}
	if bonusDate.Valid {
		d, err := time.Parse(dateLayout, bonusDate.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt bonus date %q: %w", bonusDate.String, err)
		}
		w.LastBonusDate = &d
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &w, nil
}

func getWallet(ctx context.Context, q querier, where string, arg any) (*ledger.Wallet, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE `+where, arg)
	return scanWallet(row)
}

func (s *Store) Wallet(ctx context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, "id = ?", id)
}

func (s *Store) WalletByUser(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, "user_id = ?", userID)
}

func (s *Store) WalletByBoiyaID(ctx context.Context, boiyaID string) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, "boiya_id = ?", boiyaID)
}

func (u *unit) Wallet(ctx context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	return getWallet(ctx, u.q, "id = ?", id)
}

func (u *unit) WalletByUser(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	return getWallet(ctx, u.q, "user_id = ?", userID)
}

func (u *unit) WalletByBoiyaID(ctx context.Context, boiyaID string) (*ledger.Wallet, error) {
	return getWallet(ctx, u.q, "boiya_id = ?", boiyaID)
}

// WalletForUpdate reads the wallet inside the unit's transaction. The
// writer mutex already makes this unit the only writer; on PostgreSQL
// this query would carry FOR UPDATE instead.
func (u *unit) WalletForUpdate(ctx context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	return getWallet(ctx, u.q, "id = ?", id)
}

func (u *unit) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, boiya_id, last_bonus_date, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)`,
		w.ID, w.UserID, w.Balance.String(), w.BoiyaID,
		w.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "wallets.user_id"):
			return ledger.ErrWalletExists
		case isUniqueViolation(err, "wallets.boiya_id"):
			return ledger.ErrDuplicateBoiyaID
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (u *unit) SetBalance(ctx context.Context, id ledger.WalletID, balance ledger.Amount) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE wallets SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return requireRow(res, ledger.ErrWalletNotFound)
}

func (u *unit) SetLastBonusDate(ctx context.Context, id ledger.WalletID, day time.Time) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE wallets SET last_bonus_date = ? WHERE id = ?`,
		ledger.DateOf(day).Format(dateLayout), id)
	if err != nil {
		return fmt.Errorf("failed to set bonus date: %w", err)
	}
	return requireRow(res, ledger.ErrWalletNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (u *unit) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, wallet_id, amount, kind, recipient_wallet_id, product_id,
		 status, failure_reason, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.WalletID,
		tx.Amount.String(),
		tx.Kind,
		nullString(string(tx.RecipientWalletID)),
		nullString(string(tx.ProductID)),
		tx.Status,
		nullString(string(tx.FailureReason)),
		tx.Description,
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func queryTransactions(ctx context.Context, q querier, walletID ledger.WalletID, f ledger.ListFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, kind, recipient_wallet_id, product_id,
		       status, failure_reason, description, created_at
		FROM transactions
		WHERE wallet_id = ?`
	args := []any{walletID}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	// rowid breaks ties between entries sharing a timestamp, keeping
	// the within-operation order stable.
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx            ledger.Transaction
			amount        string
			recipient     sql.NullString
			productID     sql.NullString
			failureReason sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&tx.ID, &tx.WalletID, &amount, &tx.Kind,
			&recipient, &productID, &tx.Status, &failureReason,
			&tx.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if tx.Amount, err = ledger.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		tx.RecipientWalletID = ledger.WalletID(recipient.String)
		tx.ProductID = ledger.ProductID(productID.String)
		tx.FailureReason = ledger.FailureReason(failureReason.String)
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) Transactions(ctx context.Context, walletID ledger.WalletID, f ledger.ListFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, walletID, f)
}

func (u *unit) Transactions(ctx context.Context, walletID ledger.WalletID, f ledger.ListFilter) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, u.q, walletID, f)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func getCategory(ctx context.Context, q querier, id ledger.CategoryID) (*ledger.Category, error) {
	var c ledger.Category
	err := q.QueryRowContext(ctx,
		`SELECT id, name, paused, item_count FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Paused, &c.ItemCount)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &c, nil
}

func listCategories(ctx context.Context, q querier) ([]ledger.Category, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, paused, item_count FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Paused, &c.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Category(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategory(ctx, s.db, id)
}

func (s *Store) Categories(ctx context.Context) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCategories(ctx, s.db)
}

func (u *unit) Category(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	return getCategory(ctx, u.q, id)
}

func (u *unit) Categories(ctx context.Context) ([]ledger.Category, error) {
	return listCategories(ctx, u.q)
}

func (u *unit) CreateCategory(ctx context.Context, c ledger.Category) error {
	_, err := u.q.ExecContext(ctx,
		`INSERT INTO categories (id, name, paused, item_count) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Paused, c.ItemCount)
	if err != nil {
		if isUniqueViolation(err, "categories.name") {
			return ledger.ErrCategoryNameTaken
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (u *unit) UpdateCategory(ctx context.Context, c ledger.Category) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE categories SET name = ?, paused = ? WHERE id = ?`,
		c.Name, c.Paused, c.ID)
	if err != nil {
		if isUniqueViolation(err, "categories.name") {
			return ledger.ErrCategoryNameTaken
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	return requireRow(res, ledger.ErrCategoryNotFound)
}

func (u *unit) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return requireRow(res, ledger.ErrCategoryNotFound)
}

func (u *unit) SetItemCount(ctx context.Context, id ledger.CategoryID, n int) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE categories SET item_count = ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("failed to set item count: %w", err)
	}
	return requireRow(res, ledger.ErrCategoryNotFound)
}

func (u *unit) AdjustItemCount(ctx context.Context, id ledger.CategoryID, delta int) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE categories SET item_count = item_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust item count: %w", err)
	}
	return requireRow(res, ledger.ErrCategoryNotFound)
}

// =============================================================================
// PRODUCTS
// =============================================================================

func scanProduct(scan func(dest ...any) error) (*ledger.Product, error) {
	var (
		p         ledger.Product
		price     string
		createdAt string
		updatedAt string
	)
	err := scan(&p.ID, &p.Name, &p.Description, &price, &p.CategoryID,
		&p.ThumbnailURL, &p.FileURL, &p.Paused, &p.Sales, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if p.Price, err = ledger.ParseAmount(price); err != nil {
		return nil, fmt.Errorf("corrupt price %q: %w", price, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func getProduct(ctx context.Context, q querier, id ledger.ProductID) (*ledger.Product, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, price, category_id,
		       thumbnail_url, file_url, paused, sales, created_at, updated_at
		FROM products WHERE id = ?`, id)
	p, err := scanProduct(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrProductUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}

func listProducts(ctx context.Context, q querier, f ledger.ProductFilter) ([]ledger.Product, error) {
	query := `
		SELECT p.id, p.name, p.description, p.price, p.category_id,
		       p.thumbnail_url, p.file_url, p.paused, p.sales, p.created_at, p.updated_at
		FROM products p`
	var (
		conds []string
		args  []any
	)
	if f.VisibleOnly {
		query += ` JOIN categories c ON c.id = p.category_id`
		conds = append(conds, `p.paused = 0`, `c.paused = 0`)
	}
	if f.CategoryID != "" {
		conds = append(conds, `p.category_id = ?`)
		args = append(args, f.CategoryID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.rowid DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []ledger.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) Product(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func (s *Store) Products(ctx context.Context, f ledger.ProductFilter) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db, f)
}

func (u *unit) Product(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return getProduct(ctx, u.q, id)
}

func (u *unit) Products(ctx context.Context, f ledger.ProductFilter) ([]ledger.Product, error) {
	return listProducts(ctx, u.q, f)
}

func (u *unit) ProductForUpdate(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return getProduct(ctx, u.q, id)
}

func (u *unit) CreateProduct(ctx context.Context, p ledger.Product) error {
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category_id,
			thumbnail_url, file_url, paused, sales, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price.String(), p.CategoryID,
		p.ThumbnailURL, p.FileURL, p.Paused, p.Sales,
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (u *unit) UpdateProduct(ctx context.Context, p ledger.Product) error {
	res, err := u.q.ExecContext(ctx, `
		UPDATE products SET name = ?, description = ?, price = ?,
			category_id = ?, thumbnail_url = ?, file_url = ?, paused = ?,
			updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price.String(), p.CategoryID,
		p.ThumbnailURL, p.FileURL, p.Paused,
		p.UpdatedAt.UTC().Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return requireRow(res, ledger.ErrProductUnavailable)
}

func (u *unit) DeleteProduct(ctx context.Context, id ledger.ProductID) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return requireRow(res, ledger.ErrProductUnavailable)
}

func (u *unit) IncrementSales(ctx context.Context, id ledger.ProductID) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE products SET sales = sales + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment sales: %w", err)
	}
	return requireRow(res, ledger.ErrProductUnavailable)
}

func (u *unit) SetSales(ctx context.Context, id ledger.ProductID, n int) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE products SET sales = ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("failed to set sales: %w", err)
	}
	return requireRow(res, ledger.ErrProductUnavailable)
}

// =============================================================================
// TASKS
// =============================================================================

func getTask(ctx context.Context, q querier, id ledger.TaskID) (*ledger.Task, error) {
	var (
		t      ledger.Task
		reward string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, title, description, reward_coins, active FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Description, &reward, &t.Active)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	if t.RewardCoins, err = ledger.ParseAmount(reward); err != nil {
		return nil, fmt.Errorf("corrupt reward %q: %w", reward, err)
	}
	return &t, nil
}

func listTasks(ctx context.Context, q querier, activeOnly bool) ([]ledger.Task, error) {
	query := `SELECT id, title, description, reward_coins, active FROM tasks`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY title`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []ledger.Task
	for rows.Next() {
		var (
			t      ledger.Task
			reward string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &reward, &t.Active); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if t.RewardCoins, err = ledger.ParseAmount(reward); err != nil {
			return nil, fmt.Errorf("corrupt reward %q: %w", reward, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Task(ctx context.Context, id ledger.TaskID) (*ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTask(ctx, s.db, id)
}

func (s *Store) Tasks(ctx context.Context, activeOnly bool) ([]ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTasks(ctx, s.db, activeOnly)
}

func (u *unit) Task(ctx context.Context, id ledger.TaskID) (*ledger.Task, error) {
	return getTask(ctx, u.q, id)
}

func (u *unit) Tasks(ctx context.Context, activeOnly bool) ([]ledger.Task, error) {
	return listTasks(ctx, u.q, activeOnly)
}

func (u *unit) CreateTask(ctx context.Context, t ledger.Task) error {
	_, err := u.q.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, reward_coins, active)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.RewardCoins.String(), t.Active)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (u *unit) UpdateTask(ctx context.Context, t ledger.Task) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, reward_coins = ?, active = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.RewardCoins.String(), t.Active, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRow(res, ledger.ErrTaskNotFound)
}

func (u *unit) InsertCompletion(ctx context.Context, c ledger.TaskCompletion) error {
	_, err := u.q.ExecContext(ctx,
		`INSERT INTO task_completions (user_id, task_id, completed_at)
		 VALUES (?, ?, ?)`,
		c.UserID, c.TaskID, c.CompletedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err, "task_completions") {
			return ledger.ErrTaskAlreadyCompleted
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func (u *unit) InsertPurchase(ctx context.Context, p ledger.UserPurchase) error {
	_, err := u.q.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, product_id, transaction_id, purchased_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.ProductID, p.TransactionID,
		p.PurchasedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func listPurchases(ctx context.Context, q querier, userID ledger.UserID) ([]ledger.UserPurchase, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, product_id, transaction_id, purchased_at
		FROM purchases WHERE user_id = ?
		ORDER BY purchased_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var out []ledger.UserPurchase
	for rows.Next() {
		var (
			p           ledger.UserPurchase
			purchasedAt string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.TransactionID, &purchasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.PurchasedAt, _ = time.Parse(time.RFC3339, purchasedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Purchases(ctx context.Context, userID ledger.UserID) ([]ledger.UserPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPurchases(ctx, s.db, userID)
}

func (u *unit) Purchases(ctx context.Context, userID ledger.UserID) ([]ledger.UserPurchase, error) {
	return listPurchases(ctx, u.q, userID)
}

// =============================================================================
// COUNTER RECOUNTS
// =============================================================================

func countRows(ctx context.Context, q querier, query string, arg any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func (s *Store) CountProducts(ctx context.Context, categoryID ledger.CategoryID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countRows(ctx, s.db,
		`SELECT COUNT(*) FROM products WHERE category_id = ?`, categoryID)
}

func (u *unit) CountProducts(ctx context.Context, categoryID ledger.CategoryID) (int, error) {
	return countRows(ctx, u.q,
		`SELECT COUNT(*) FROM products WHERE category_id = ?`, categoryID)
}

func (s *Store) CountPurchases(ctx context.Context, productID ledger.ProductID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countRows(ctx, s.db,
		`SELECT COUNT(*) FROM purchases WHERE product_id = ?`, productID)
}

func (u *unit) CountPurchases(ctx context.Context, productID ledger.ProductID) (int, error) {
	return countRows(ctx, u.q,
		`SELECT COUNT(*) FROM purchases WHERE product_id = ?`, productID)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

// isUniqueViolation matches go-sqlite3's constraint message, e.g.
// "UNIQUE constraint failed: wallets.user_id".
func isUniqueViolation(err error, column string) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), column)
}
