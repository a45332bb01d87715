/*
errors.go - Centralized error types for the ledger core

ERROR CATEGORIES:
  1. Validation  - bad input shape/range; no log entry is written
  2. Business    - rejections (insufficient balance, self transfer, ...);
                   financially motivated ones also produce a FAILED
                   transaction log entry
  3. Not found   - missing wallet/product/recipient/task
  4. Conflict    - duplicate task completion, non-empty category delete
  5. Storage     - underlying commit failure; the unit of work rolled
                   back, nothing was applied, safe to retry

USAGE:
  if errors.Is(err, ledger.ErrInsufficientBalance) { ... }

  var ib *ledger.InsufficientBalanceError
  if errors.As(err, &ib) { ... ib.Available, ib.Requested ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSelfTransfer is returned when sender and recipient are the same wallet.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrRecipientNotFound is returned when a boiya id resolves to no wallet.
	ErrRecipientNotFound = errors.New("recipient wallet not found")

	// ErrWalletNotFound is returned when a wallet lookup misses.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists is returned by the store when a wallet already
	// exists for the user. The create path treats this as success and
	// fetches the existing row.
	ErrWalletExists = errors.New("wallet already exists for user")

	// ErrDuplicateBoiyaID is returned when a freshly generated public id
	// collides; the caller regenerates and retries.
	ErrDuplicateBoiyaID = errors.New("duplicate boiya id")

	// ErrProductUnavailable is returned when a product does not exist,
	// is paused, or its category is paused.
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrCategoryNotFound is returned when a category lookup misses.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryNameTaken is returned on a duplicate category name.
	ErrCategoryNameTaken = errors.New("category name already in use")

	// ErrCategoryNotEmpty rejects deleting a category that still has products.
	ErrCategoryNotEmpty = errors.New("category still contains products")

	// ErrTaskNotFound is returned for a missing or inactive task.
	ErrTaskNotFound = errors.New("task not found or inactive")

	// ErrTaskAlreadyCompleted is returned on a repeat completion of the
	// same task by the same user.
	ErrTaskAlreadyCompleted = errors.New("task already completed")

	// ErrStorageFailure wraps unit-of-work commit failures. The
	// operation was not applied.
	ErrStorageFailure = errors.New("storage failure")

	// ErrValidation marks bad input shape or range. Validation
	// rejections produce no transaction log entry.
	ErrValidation = errors.New("validation error")
)

// ValidationError reports which field of the input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage.
type InsufficientBalanceError struct {
	WalletID  WalletID
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidAmountError reports a non-positive amount.
type InvalidAmountError struct {
	Requested Amount
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: must be positive", e.Requested)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is a rejection of the caller's
// request rather than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrCategoryNameTaken) ||
		errors.Is(err, ErrCategoryNotEmpty) ||
		errors.Is(err, ErrTaskAlreadyCompleted)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrRecipientNotFound) ||
		errors.Is(err, ErrProductUnavailable) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrTaskNotFound)
}

// IsConflict reports whether the error is a uniqueness/state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCategoryNotEmpty) ||
		errors.Is(err, ErrTaskAlreadyCompleted) ||
		errors.Is(err, ErrCategoryNameTaken)
}

// IsRetryable reports whether retrying the whole operation may succeed.
// Storage failures roll the unit of work back completely, so a retry
// starts from a clean state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
