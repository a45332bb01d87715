/*
engine.go - The Ledger Engine: atomic multi-wallet coin operations

PURPOSE:
  Orchestrates transfers, purchases, and grants as atomic units of
  work, enforces the balance invariants, and decides what gets logged.
  Every operation runs Requested -> Validating -> {Applying ->
  Completed} | Rejected; both terminal states of a financial operation
  leave a transaction log entry (Rejected as status FAILED with a
  structured reason, Completed as status COMPLETED).

INVARIANTS ENFORCED HERE:
  - Conservation: a completed transfer moves value, never creates it
  - Non-negativity: debits check balance under the wallet's lock
  - Debit strictly before credit; credit never without a prior debit
  - Multi-wallet units acquire wallets in ascending WalletID order
  - A transfer's two log entries commit together or not at all
  - A purchase's debit, log entry, sales increment, and purchase record
    commit together or not at all

FAILURE RECORDING:
  Business rejections of transfers and purchases append a FAILED entry
  in a separate small unit after the rejected unit rolled back, so the
  audit record survives while the operation itself left no mutation.

SEE ALSO:
  - store.go: the unit-of-work contract the engine relies on
  - bonus/:   signup/login orchestration over Grant and DailyBonus
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// createAttempts bounds retries on boiya-id collisions and create races.
const createAttempts = 3

// Engine is the only component allowed to mutate balances, bonus dates,
// and sales counters.
type Engine struct {
	store Store
	log   *log.Logger
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, log: log.StandardLogger(), now: time.Now}
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(l *log.Logger) *Engine {
	e.log = l
	return e
}

// WithClock replaces the engine's clock. Tests use this to cross
// calendar-day boundaries deterministically.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// =============================================================================
// WALLETS
// =============================================================================

// GetOrCreateWallet returns the user's wallet, creating it with a zero
// balance and a fresh boiya id if missing. Idempotent under concurrent
// calls: losing the create race returns the winner's row.
func (e *Engine) GetOrCreateWallet(ctx context.Context, userID UserID) (*Wallet, error) {
	w, _, err := e.EnsureWallet(ctx, userID)
	return w, err
}

// EnsureWallet is GetOrCreateWallet plus a flag telling the caller
// whether this call created the wallet. The bonus issuer grants the
// signup bonus only on created=true.
func (e *Engine) EnsureWallet(ctx context.Context, userID UserID) (*Wallet, bool, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		w, err := e.store.WalletByUser(ctx, userID)
		if err == nil {
			return w, false, nil
		}
		if !errors.Is(err, ErrWalletNotFound) {
			return nil, false, storageErr(err)
		}

		candidate := Wallet{
			ID:        NewWalletID(),
			UserID:    userID,
			Balance:   Zero(),
			BoiyaID:   NewBoiyaID(),
			CreatedAt: e.now(),
		}
		err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
			return u.CreateWallet(ctx, candidate)
		})
		switch {
		case err == nil:
			e.log.WithFields(log.Fields{
				"user_id":  userID,
				"boiya_id": candidate.BoiyaID,
			}).Info("wallet created")
			return &candidate, true, nil
		case errors.Is(err, ErrWalletExists):
			// Lost the race; loop fetches the winner's row.
		case errors.Is(err, ErrDuplicateBoiyaID):
			// Regenerate on the next attempt.
		default:
			return nil, false, storageErr(err)
		}
	}
	return nil, false, fmt.Errorf("%w: wallet creation did not settle for user %s",
		ErrStorageFailure, userID)
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves amount from the user's wallet to the wallet behind
// recipientBoiyaID. Returns the sender's new balance.
//
// Rejection paths (invalid amount, unknown recipient, self transfer,
// insufficient balance) each record a FAILED transfer-send entry on the
// sender's wallet and return the corresponding error.
func (e *Engine) Transfer(ctx context.Context, userID UserID, recipientBoiyaID string, amount Amount) (Amount, error) {
	sender, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return Zero(), err
	}

	if !amount.IsPositive() {
		e.recordFailure(ctx, Transaction{
			WalletID:      sender.ID,
			Amount:        Zero(),
			Kind:          KindTransferSend,
			FailureReason: ReasonInvalidAmount,
			Description:   fmt.Sprintf("transfer rejected: invalid amount %s", amount),
		})
		return Zero(), &InvalidAmountError{Requested: amount}
	}

	recipient, err := e.store.WalletByBoiyaID(ctx, recipientBoiyaID)
	if errors.Is(err, ErrWalletNotFound) {
		e.recordFailure(ctx, Transaction{
			WalletID:      sender.ID,
			Amount:        amount,
			Kind:          KindTransferSend,
			FailureReason: ReasonRecipientNotFound,
			Description:   "transfer rejected: unknown boiya id",
		})
		return Zero(), ErrRecipientNotFound
	}
	if err != nil {
		return Zero(), storageErr(err)
	}
	if recipient.ID == sender.ID {
		e.recordFailure(ctx, Transaction{
			WalletID:      sender.ID,
			Amount:        amount,
			Kind:          KindTransferSend,
			FailureReason: ReasonSelfTransfer,
			Description:   "transfer rejected: sender and recipient are the same wallet",
		})
		return Zero(), ErrSelfTransfer
	}

	var newBalance Amount
	err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
		// Fixed global lock order: ascending wallet id.
		firstID, secondID := sender.ID, recipient.ID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := u.WalletForUpdate(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := u.WalletForUpdate(ctx, secondID)
		if err != nil {
			return err
		}
		src, dst := first, second
		if src.ID != sender.ID {
			src, dst = second, first
		}

		if src.Balance.LessThan(amount) {
			return &InsufficientBalanceError{
				WalletID:  src.ID,
				Available: src.Balance,
				Requested: amount,
			}
		}

		// Debit strictly before credit.
		newBalance = src.Balance.Sub(amount)
		if err := u.SetBalance(ctx, src.ID, newBalance); err != nil {
			return err
		}
		if err := u.SetBalance(ctx, dst.ID, dst.Balance.Add(amount)); err != nil {
			return err
		}

		now := e.now()
		send := Transaction{
			ID:                NewTransactionID(),
			WalletID:          src.ID,
			Amount:            amount,
			Kind:              KindTransferSend,
			RecipientWalletID: dst.ID,
			Status:            StatusCompleted,
			Description:       fmt.Sprintf("Transfer to %s", dst.BoiyaID),
			CreatedAt:         now,
		}
		receive := Transaction{
			ID:                NewTransactionID(),
			WalletID:          dst.ID,
			Amount:            amount,
			Kind:              KindTransferReceive,
			RecipientWalletID: src.ID,
			Status:            StatusCompleted,
			Description:       fmt.Sprintf("Transfer from %s", src.BoiyaID),
			CreatedAt:         now,
		}
		if err := u.AppendTransaction(ctx, send); err != nil {
			return err
		}
		return u.AppendTransaction(ctx, receive)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			e.recordFailure(ctx, Transaction{
				WalletID:          sender.ID,
				Amount:            amount,
				Kind:              KindTransferSend,
				RecipientWalletID: recipient.ID,
				FailureReason:     ReasonInsufficientBalance,
				Description:       "transfer rejected: insufficient balance",
			})
			return Zero(), err
		}
		return Zero(), storageErr(err)
	}

	e.log.WithFields(log.Fields{
		"from":   sender.ID,
		"to":     recipient.ID,
		"amount": amount.String(),
	}).Info("transfer completed")
	return newBalance, nil
}

// =============================================================================
// PURCHASE
// =============================================================================

// Receipt is the result of a successful purchase. FileURL is the
// downloadable asset, revealed only here.
type Receipt struct {
	TransactionID TransactionID
	ProductID     ProductID
	ProductName   string
	FileURL       string
	NewBalance    Amount
}

// Purchase debits the user's wallet by the product price and records
// the redemption. The debit, the COMPLETED log entry, the sales-counter
// increment, and the purchase record commit as one unit.
func (e *Engine) Purchase(ctx context.Context, userID UserID, productID ProductID) (*Receipt, error) {
	buyer, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		receipt *Receipt
		price   Amount
	)
	err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
		p, err := u.ProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		c, err := u.Category(ctx, p.CategoryID)
		if err != nil {
			return err
		}
		if !p.Visible(*c) {
			return ErrProductUnavailable
		}
		price = p.Price

		w, err := u.WalletForUpdate(ctx, buyer.ID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(p.Price) {
			return &InsufficientBalanceError{
				WalletID:  w.ID,
				Available: w.Balance,
				Requested: p.Price,
			}
		}

		newBalance := w.Balance.Sub(p.Price)
		if err := u.SetBalance(ctx, w.ID, newBalance); err != nil {
			return err
		}

		now := e.now()
		tx := Transaction{
			ID:          NewTransactionID(),
			WalletID:    w.ID,
			Amount:      p.Price,
			Kind:        KindShopRedemption,
			ProductID:   p.ID,
			Status:      StatusCompleted,
			Description: fmt.Sprintf("Purchase of %s", p.Name),
			CreatedAt:   now,
		}
		if err := u.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		if err := u.IncrementSales(ctx, p.ID); err != nil {
			return err
		}
		if err := u.InsertPurchase(ctx, UserPurchase{
			ID:            string(NewTransactionID()),
			UserID:        userID,
			ProductID:     p.ID,
			TransactionID: tx.ID,
			PurchasedAt:   now,
		}); err != nil {
			return err
		}

		receipt = &Receipt{
			TransactionID: tx.ID,
			ProductID:     p.ID,
			ProductName:   p.Name,
			FileURL:       p.FileURL,
			NewBalance:    newBalance,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			e.recordFailure(ctx, Transaction{
				WalletID:      buyer.ID,
				Amount:        price,
				Kind:          KindShopRedemption,
				ProductID:     productID,
				FailureReason: ReasonInsufficientBalance,
				Description:   "purchase rejected: insufficient balance",
			})
			return nil, err
		}
		if errors.Is(err, ErrProductUnavailable) {
			return nil, ErrProductUnavailable
		}
		return nil, storageErr(err)
	}

	e.log.WithFields(log.Fields{
		"user_id": userID,
		"product": receipt.ProductID,
		"amount":  price.String(),
	}).Info("purchase completed")
	return receipt, nil
}

// =============================================================================
// GRANTS
// =============================================================================

// Grant credits the user's wallet and appends a COMPLETED entry with
// the given kind and description. Used for admin grants, the signup
// bonus, and task rewards; the daily login bonus goes through
// DailyBonus for its check-and-set.
func (e *Engine) Grant(ctx context.Context, userID UserID, amount Amount, kind Kind, description string) (Amount, error) {
	if !amount.IsPositive() {
		return Zero(), &InvalidAmountError{Requested: amount}
	}
	w, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return Zero(), err
	}

	var newBalance Amount
	err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
		cur, err := u.WalletForUpdate(ctx, w.ID)
		if err != nil {
			return err
		}
		newBalance = cur.Balance.Add(amount)
		if err := u.SetBalance(ctx, cur.ID, newBalance); err != nil {
			return err
		}
		return u.AppendTransaction(ctx, Transaction{
			ID:          NewTransactionID(),
			WalletID:    cur.ID,
			Amount:      amount,
			Kind:        kind,
			Status:      StatusCompleted,
			Description: description,
			CreatedAt:   e.now(),
		})
	})
	if err != nil {
		return Zero(), storageErr(err)
	}

	e.log.WithFields(log.Fields{
		"user_id": userID,
		"kind":    kind,
		"amount":  amount.String(),
	}).Info("grant completed")
	return newBalance, nil
}

// DailyBonus grants the daily login bonus at most once per UTC calendar
// day. The check of LastBonusDate, its update, the credit, and the log
// append all happen in one unit, so concurrent logins cannot
// double-grant. A repeat login the same day is a silent no-op: granted
// is false and the current wallet is returned unchanged.
func (e *Engine) DailyBonus(ctx context.Context, userID UserID, amount Amount) (*Wallet, bool, error) {
	if !amount.IsPositive() {
		return nil, false, &InvalidAmountError{Requested: amount}
	}
	w, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	var (
		result  Wallet
		granted bool
	)
	err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
		cur, err := u.WalletForUpdate(ctx, w.ID)
		if err != nil {
			return err
		}
		today := DateOf(e.now())
		if cur.LastBonusDate != nil && cur.LastBonusDate.Equal(today) {
			result, granted = *cur, false
			return nil
		}

		newBalance := cur.Balance.Add(amount)
		if err := u.SetBalance(ctx, cur.ID, newBalance); err != nil {
			return err
		}
		if err := u.SetLastBonusDate(ctx, cur.ID, today); err != nil {
			return err
		}
		if err := u.AppendTransaction(ctx, Transaction{
			ID:          NewTransactionID(),
			WalletID:    cur.ID,
			Amount:      amount,
			Kind:        KindDailyLogin,
			Status:      StatusCompleted,
			Description: "Daily login bonus",
			CreatedAt:   e.now(),
		}); err != nil {
			return err
		}

		result = *cur
		result.Balance = newBalance
		result.LastBonusDate = &today
		granted = true
		return nil
	})
	if err != nil {
		return nil, false, storageErr(err)
	}
	if granted {
		e.log.WithFields(log.Fields{
			"user_id": userID,
			"amount":  amount.String(),
		}).Info("daily bonus granted")
	}
	return &result, granted, nil
}

// CompleteTask records a task completion and grants its reward. The
// completion row's (user, task) uniqueness is the idempotency guard:
// a second completion returns ErrTaskAlreadyCompleted and grants
// nothing.
func (e *Engine) CompleteTask(ctx context.Context, userID UserID, taskID TaskID) (reward, newBalance Amount, err error) {
	task, err := e.store.Task(ctx, taskID)
	if err != nil {
		return Zero(), Zero(), err
	}
	if !task.Active {
		return Zero(), Zero(), ErrTaskNotFound
	}

	w, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return Zero(), Zero(), err
	}

	err = e.store.WithUnit(ctx, func(u UnitOfWork) error {
		// The uniqueness insert goes first: a duplicate aborts the unit
		// before any balance mutation.
		if err := u.InsertCompletion(ctx, TaskCompletion{
			UserID:      userID,
			TaskID:      taskID,
			CompletedAt: e.now(),
		}); err != nil {
			return err
		}

		cur, err := u.WalletForUpdate(ctx, w.ID)
		if err != nil {
			return err
		}
		newBalance = cur.Balance.Add(task.RewardCoins)
		if err := u.SetBalance(ctx, cur.ID, newBalance); err != nil {
			return err
		}
		return u.AppendTransaction(ctx, Transaction{
			ID:          NewTransactionID(),
			WalletID:    cur.ID,
			Amount:      task.RewardCoins,
			Kind:        KindTaskReward,
			Status:      StatusCompleted,
			Description: fmt.Sprintf("Completed task: %s", task.Title),
			CreatedAt:   e.now(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrTaskAlreadyCompleted) {
			return Zero(), Zero(), err
		}
		return Zero(), Zero(), storageErr(err)
	}

	e.log.WithFields(log.Fields{
		"user_id": userID,
		"task_id": taskID,
		"reward":  task.RewardCoins.String(),
	}).Info("task reward granted")
	return task.RewardCoins, newBalance, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// ListTransactions returns the user's log entries, newest first.
func (e *Engine) ListTransactions(ctx context.Context, userID UserID, f ListFilter) ([]Transaction, error) {
	w, _, err := e.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.store.Transactions(ctx, w.ID, f)
}

// ListPurchases returns the user's purchase records, newest first.
func (e *Engine) ListPurchases(ctx context.Context, userID UserID) ([]UserPurchase, error) {
	return e.store.Purchases(ctx, userID)
}

// =============================================================================
// INTERNAL
// =============================================================================

// recordFailure appends a FAILED entry in its own small unit. The
// rejected operation already left no mutation; losing the audit row to
// a storage fault does not change the operation's outcome, so failures
// here are logged and swallowed.
func (e *Engine) recordFailure(ctx context.Context, tx Transaction) {
	tx.ID = NewTransactionID()
	tx.Status = StatusFailed
	tx.CreatedAt = e.now()
	err := e.store.WithUnit(ctx, func(u UnitOfWork) error {
		return u.AppendTransaction(ctx, tx)
	})
	if err != nil {
		e.log.WithFields(log.Fields{
			"wallet_id": tx.WalletID,
			"kind":      tx.Kind,
			"reason":    tx.FailureReason,
		}).WithError(err).Warn("could not record failed attempt")
		return
	}
	e.log.WithFields(log.Fields{
		"wallet_id": tx.WalletID,
		"kind":      tx.Kind,
		"reason":    tx.FailureReason,
	}).Warn("operation rejected")
}

func storageErr(err error) error {
	if errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
