/*
Package memory provides an in-memory ledger.Store for tests and dev.

WithUnit holds the store's write lock for the whole unit of work and
takes a snapshot first; an error from the unit restores the snapshot.
That gives the same observable semantics as the SQL store — serialized
writers, all-or-nothing units — without a database.
*/
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/booya/coin-engine/ledger"
)

type completionKey struct {
	UserID ledger.UserID
	TaskID ledger.TaskID
}

type Store struct {
	mu sync.RWMutex

	wallets map[ledger.WalletID]ledger.Wallet
	byUser  map[ledger.UserID]ledger.WalletID
	byBoiya map[string]ledger.WalletID

	// Append order; newest-first reads iterate from the tail.
	transactions []ledger.Transaction

	categories  map[ledger.CategoryID]ledger.Category
	products    map[ledger.ProductID]ledger.Product
	tasks       map[ledger.TaskID]ledger.Task
	completions map[completionKey]ledger.TaskCompletion
	purchases   []ledger.UserPurchase
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		wallets:     make(map[ledger.WalletID]ledger.Wallet),
		byUser:      make(map[ledger.UserID]ledger.WalletID),
		byBoiya:     make(map[string]ledger.WalletID),
		categories:  make(map[ledger.CategoryID]ledger.Category),
		products:    make(map[ledger.ProductID]ledger.Product),
		tasks:       make(map[ledger.TaskID]ledger.Task),
		completions: make(map[completionKey]ledger.TaskCompletion),
	}
}

// =============================================================================
// UNIT OF WORK - Snapshot + rollback under the write lock
// =============================================================================

func (s *Store) WithUnit(_ context.Context, fn func(ledger.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&unit{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshotState struct {
	wallets      map[ledger.WalletID]ledger.Wallet
	byUser       map[ledger.UserID]ledger.WalletID
	byBoiya      map[string]ledger.WalletID
	transactions []ledger.Transaction
	categories   map[ledger.CategoryID]ledger.Category
	products     map[ledger.ProductID]ledger.Product
	tasks        map[ledger.TaskID]ledger.Task
	completions  map[completionKey]ledger.TaskCompletion
	purchases    []ledger.UserPurchase
}

func (s *Store) snapshot() snapshotState {
	return snapshotState{
		wallets:      copyMap(s.wallets),
		byUser:       copyMap(s.byUser),
		byBoiya:      copyMap(s.byBoiya),
		transactions: append([]ledger.Transaction(nil), s.transactions...),
		categories:   copyMap(s.categories),
		products:     copyMap(s.products),
		tasks:        copyMap(s.tasks),
		completions:  copyMap(s.completions),
		purchases:    append([]ledger.UserPurchase(nil), s.purchases...),
	}
}

func (s *Store) restore(snap snapshotState) {
	s.wallets = snap.wallets
	s.byUser = snap.byUser
	s.byBoiya = snap.byBoiya
	s.transactions = snap.transactions
	s.categories = snap.categories
	s.products = snap.products
	s.tasks = snap.tasks
	s.completions = snap.completions
	s.purchases = snap.purchases
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// =============================================================================
// READER - Store methods take the read lock, unit methods already hold
// the write lock; both share the *Locked helpers.
// =============================================================================

func (s *Store) Wallet(_ context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletLocked(id)
}

func (s *Store) WalletByUser(_ context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	return s.walletLocked(id)
}

func (s *Store) WalletByBoiyaID(_ context.Context, boiyaID string) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBoiya[boiyaID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	return s.walletLocked(id)
}

func (s *Store) walletLocked(id ledger.WalletID) (*ledger.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	out := w
	if w.LastBonusDate != nil {
		d := *w.LastBonusDate
		out.LastBonusDate = &d
	}
	return &out, nil
}

func (s *Store) Transactions(_ context.Context, walletID ledger.WalletID, f ledger.ListFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactionsLocked(walletID, f), nil
}

func (s *Store) transactionsLocked(walletID ledger.WalletID, f ledger.ListFilter) []ledger.Transaction {
	var (
		out     []ledger.Transaction
		skipped int
	)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if tx.WalletID != walletID {
			continue
		}
		if f.Kind != "" && tx.Kind != f.Kind {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, tx)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (s *Store) Category(_ context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryLocked(id)
}

func (s *Store) categoryLocked(id ledger.CategoryID) (*ledger.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return nil, ledger.ErrCategoryNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) Categories(_ context.Context) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoriesLocked(), nil
}

func (s *Store) categoriesLocked() []ledger.Category {
	out := make([]ledger.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out
}

func (s *Store) Product(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productLocked(id)
}

func (s *Store) productLocked(id ledger.ProductID) (*ledger.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ledger.ErrProductUnavailable
	}
	out := p
	return &out, nil
}

func (s *Store) Products(_ context.Context, f ledger.ProductFilter) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productsLocked(f), nil
}

func (s *Store) productsLocked(f ledger.ProductFilter) []ledger.Product {
	var out []ledger.Product
	for _, p := range s.products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.VisibleOnly {
			c, ok := s.categories[p.CategoryID]
			if !ok || !p.Visible(c) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) Task(_ context.Context, id ledger.TaskID) (*ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskLocked(id)
}

func (s *Store) taskLocked(id ledger.TaskID) (*ledger.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, ledger.ErrTaskNotFound
	}
	out := t
	return &out, nil
}

func (s *Store) Tasks(_ context.Context, activeOnly bool) ([]ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasksLocked(activeOnly), nil
}

func (s *Store) tasksLocked(activeOnly bool) []ledger.Task {
	var out []ledger.Task
	for _, t := range s.tasks {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) Purchases(_ context.Context, userID ledger.UserID) ([]ledger.UserPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purchasesLocked(userID), nil
}

func (s *Store) purchasesLocked(userID ledger.UserID) []ledger.UserPurchase {
	var out []ledger.UserPurchase
	for i := len(s.purchases) - 1; i >= 0; i-- {
		if s.purchases[i].UserID == userID {
			out = append(out, s.purchases[i])
		}
	}
	return out
}

func (s *Store) CountProducts(_ context.Context, categoryID ledger.CategoryID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countProductsLocked(categoryID), nil
}

func (s *Store) countProductsLocked(categoryID ledger.CategoryID) int {
	n := 0
	for _, p := range s.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n
}

func (s *Store) CountPurchases(_ context.Context, productID ledger.ProductID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countPurchasesLocked(productID), nil
}

func (s *Store) countPurchasesLocked(productID ledger.ProductID) int {
	n := 0
	for _, p := range s.purchases {
		if p.ProductID == productID {
			n++
		}
	}
	return n
}

// =============================================================================
// UNIT - Writes; the store's write lock is held for the unit's lifetime
// =============================================================================

type unit struct {
	s *Store
}

var _ ledger.UnitOfWork = (*unit)(nil)

func (u *unit) Wallet(_ context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	return u.s.walletLocked(id)
}

func (u *unit) WalletByUser(_ context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	id, ok := u.s.byUser[userID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	return u.s.walletLocked(id)
}

func (u *unit) WalletByBoiyaID(_ context.Context, boiyaID string) (*ledger.Wallet, error) {
	id, ok := u.s.byBoiya[boiyaID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	return u.s.walletLocked(id)
}

func (u *unit) Transactions(_ context.Context, walletID ledger.WalletID, f ledger.ListFilter) ([]ledger.Transaction, error) {
	return u.s.transactionsLocked(walletID, f), nil
}

func (u *unit) Category(_ context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	return u.s.categoryLocked(id)
}

func (u *unit) Categories(_ context.Context) ([]ledger.Category, error) {
	return u.s.categoriesLocked(), nil
}

func (u *unit) Product(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return u.s.productLocked(id)
}

func (u *unit) Products(_ context.Context, f ledger.ProductFilter) ([]ledger.Product, error) {
	return u.s.productsLocked(f), nil
}

func (u *unit) Task(_ context.Context, id ledger.TaskID) (*ledger.Task, error) {
	return u.s.taskLocked(id)
}

func (u *unit) Tasks(_ context.Context, activeOnly bool) ([]ledger.Task, error) {
	return u.s.tasksLocked(activeOnly), nil
}

func (u *unit) Purchases(_ context.Context, userID ledger.UserID) ([]ledger.UserPurchase, error) {
	return u.s.purchasesLocked(userID), nil
}

func (u *unit) CountProducts(_ context.Context, categoryID ledger.CategoryID) (int, error) {
	return u.s.countProductsLocked(categoryID), nil
}

func (u *unit) CountPurchases(_ context.Context, productID ledger.ProductID) (int, error) {
	return u.s.countPurchasesLocked(productID), nil
}

// WalletForUpdate is a plain read here: the unit already owns the whole
// store exclusively.
func (u *unit) WalletForUpdate(_ context.Context, id ledger.WalletID) (*ledger.Wallet, error) {
	return u.s.walletLocked(id)
}

func (u *unit) CreateWallet(_ context.Context, w ledger.Wallet) error {
	if _, exists := u.s.byUser[w.UserID]; exists {
		return ledger.ErrWalletExists
	}
	if _, exists := u.s.byBoiya[w.BoiyaID]; exists {
		return ledger.ErrDuplicateBoiyaID
	}
	u.s.wallets[w.ID] = w
	u.s.byUser[w.UserID] = w.ID
	u.s.byBoiya[w.BoiyaID] = w.ID
	return nil
}

func (u *unit) SetBalance(_ context.Context, id ledger.WalletID, balance ledger.Amount) error {
	w, ok := u.s.wallets[id]
	if !ok {
		return ledger.ErrWalletNotFound
	}
	w.Balance = balance
	u.s.wallets[id] = w
	return nil
}

func (u *unit) SetLastBonusDate(_ context.Context, id ledger.WalletID, day time.Time) error {
	w, ok := u.s.wallets[id]
	if !ok {
		return ledger.ErrWalletNotFound
	}
	d := ledger.DateOf(day)
	w.LastBonusDate = &d
	u.s.wallets[id] = w
	return nil
}

func (u *unit) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	u.s.transactions = append(u.s.transactions, tx)
	return nil
}

func (u *unit) ProductForUpdate(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return u.s.productLocked(id)
}

func (u *unit) CreateCategory(_ context.Context, c ledger.Category) error {
	for _, existing := range u.s.categories {
		if existing.Name == c.Name {
			return ledger.ErrCategoryNameTaken
		}
	}
	u.s.categories[c.ID] = c
	return nil
}

func (u *unit) UpdateCategory(_ context.Context, c ledger.Category) error {
	if _, ok := u.s.categories[c.ID]; !ok {
		return ledger.ErrCategoryNotFound
	}
	for id, existing := range u.s.categories {
		if id != c.ID && existing.Name == c.Name {
			return ledger.ErrCategoryNameTaken
		}
	}
	u.s.categories[c.ID] = c
	return nil
}

func (u *unit) DeleteCategory(_ context.Context, id ledger.CategoryID) error {
	if _, ok := u.s.categories[id]; !ok {
		return ledger.ErrCategoryNotFound
	}
	delete(u.s.categories, id)
	return nil
}

func (u *unit) SetItemCount(_ context.Context, id ledger.CategoryID, n int) error {
	c, ok := u.s.categories[id]
	if !ok {
		return ledger.ErrCategoryNotFound
	}
	c.ItemCount = n
	u.s.categories[id] = c
	return nil
}

func (u *unit) AdjustItemCount(_ context.Context, id ledger.CategoryID, delta int) error {
	c, ok := u.s.categories[id]
	if !ok {
		return ledger.ErrCategoryNotFound
	}
	c.ItemCount += delta
	u.s.categories[id] = c
	return nil
}

func (u *unit) CreateProduct(_ context.Context, p ledger.Product) error {
	u.s.products[p.ID] = p
	return nil
}

func (u *unit) UpdateProduct(_ context.Context, p ledger.Product) error {
	if _, ok := u.s.products[p.ID]; !ok {
		return ledger.ErrProductUnavailable
	}
	u.s.products[p.ID] = p
	return nil
}

func (u *unit) DeleteProduct(_ context.Context, id ledger.ProductID) error {
	if _, ok := u.s.products[id]; !ok {
		return ledger.ErrProductUnavailable
	}
	delete(u.s.products, id)
	return nil
}

func (u *unit) IncrementSales(_ context.Context, id ledger.ProductID) error {
	p, ok := u.s.products[id]
	if !ok {
		return ledger.ErrProductUnavailable
	}
	p.Sales++
	u.s.products[id] = p
	return nil
}

func (u *unit) SetSales(_ context.Context, id ledger.ProductID, n int) error {
	p, ok := u.s.products[id]
	if !ok {
		return ledger.ErrProductUnavailable
	}
	p.Sales = n
	u.s.products[id] = p
	return nil
}

func (u *unit) CreateTask(_ context.Context, t ledger.Task) error {
	u.s.tasks[t.ID] = t
	return nil
}

func (u *unit) UpdateTask(_ context.Context, t ledger.Task) error {
	if _, ok := u.s.tasks[t.ID]; !ok {
		return ledger.ErrTaskNotFound
	}
	u.s.tasks[t.ID] = t
	return nil
}

func (u *unit) InsertCompletion(_ context.Context, c ledger.TaskCompletion) error {
	k := completionKey{UserID: c.UserID, TaskID: c.TaskID}
	if _, dup := u.s.completions[k]; dup {
		return ledger.ErrTaskAlreadyCompleted
	}
	u.s.completions[k] = c
	return nil
}

func (u *unit) InsertPurchase(_ context.Context, p ledger.UserPurchase) error {
	u.s.purchases = append(u.s.purchases, p)
	return nil
}
