/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Coin amounts cross the wire as decimal strings ("50.00"), never as
  floats. Handlers parse them through ledger.ParseAmount.

VALIDATION:
  Validation is done in handlers and the domain services, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain entities these mirror
*/
package api

import (
	"time"

	"github.com/booya/coin-engine/catalog"
	"github.com/booya/coin-engine/ledger"
)

// =============================================================================
// WALLET TYPES
// =============================================================================

// WalletDTO represents a wallet in API responses.
type WalletDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Balance       string  `json:"balance"`
	BoiyaID       string  `json:"boiya_id"`
	LastBonusDate *string `json:"last_bonus_date,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toWalletDTO(w *ledger.Wallet) WalletDTO {
	dto := WalletDTO{
		ID:        string(w.ID),
		UserID:    string(w.UserID),
		Balance:   w.Balance.String(),
		BoiyaID:   w.BoiyaID,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
	}
	if w.LastBonusDate != nil {
		d := w.LastBonusDate.Format("2006-01-02")
		dto.LastBonusDate = &d
	}
	return dto
}

// TransferRequest is the request to send coins to another wallet.
type TransferRequest struct {
	RecipientBoiyaID string `json:"recipient_boiya_id"`
	Amount           string `json:"amount"`
}

// TransferResponse reports the sender's balance after the transfer.
type TransferResponse struct {
	NewBalance string `json:"new_balance"`
}

// TransactionDTO represents one ledger entry.
type TransactionDTO struct {
	ID                string `json:"id"`
	WalletID          string `json:"wallet_id"`
	Amount            string `json:"amount"`
	Kind              string `json:"kind"`
	RecipientWalletID string `json:"recipient_wallet_id,omitempty"`
	ProductID         string `json:"product_id,omitempty"`
	Status            string `json:"status"`
	FailureReason     string `json:"failure_reason,omitempty"`
	Description       string `json:"description,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:                string(t.ID),
		WalletID:          string(t.WalletID),
		Amount:            t.Amount.String(),
		Kind:              string(t.Kind),
		RecipientWalletID: string(t.RecipientWalletID),
		ProductID:         string(t.ProductID),
		Status:            string(t.Status),
		FailureReason:     string(t.FailureReason),
		Description:       t.Description,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SHOP TYPES
// =============================================================================

// CategoryDTO represents a shop category.
type CategoryDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Paused    bool   `json:"paused"`
	ItemCount int    `json:"item_count"`
}

func toCategoryDTO(c ledger.Category) CategoryDTO {
	return CategoryDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Paused:    c.Paused,
		ItemCount: c.ItemCount,
	}
}

// CreateCategoryRequest is the request to create a category.
type CreateCategoryRequest struct {
	Name string `json:"name"`
}

// UpdateCategoryRequest carries a partial category update. Absent
// fields stay unchanged.
type UpdateCategoryRequest struct {
	Name   *string `json:"name,omitempty"`
	Paused *bool   `json:"paused,omitempty"`
}

// ProductDTO represents a catalog item. FileURL is omitted here; it is
// revealed only in a purchase receipt.
type ProductDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        string `json:"price"`
	CategoryID   string `json:"category_id"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Paused       bool   `json:"paused"`
	Sales        int    `json:"sales"`
	CreatedAt    string `json:"created_at"`
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:           string(p.ID),
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price.String(),
		CategoryID:   string(p.CategoryID),
		ThumbnailURL: p.ThumbnailURL,
		Paused:       p.Paused,
		Sales:        p.Sales,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

// CreateProductRequest is the request to create a product.
type CreateProductRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	CategoryID   string `json:"category_id"`
	ThumbnailURL string `json:"thumbnail_url"`
	FileURL      string `json:"file_url"`
}

// UpdateProductRequest carries a partial product update.
type UpdateProductRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Price        *string `json:"price,omitempty"`
	CategoryID   *string `json:"category_id,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	FileURL      *string `json:"file_url,omitempty"`
	Paused       *bool   `json:"paused,omitempty"`
}

// PurchaseRequest names the product to buy.
type PurchaseRequest struct {
	ProductID string `json:"product_id"`
}

// ReceiptDTO is returned on a successful purchase; the only place
// FileURL appears.
type ReceiptDTO struct {
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	FileURL       string `json:"file_url,omitempty"`
	NewBalance    string `json:"new_balance"`
}

// PurchaseDTO is one row of a user's purchase history.
type PurchaseDTO struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	TransactionID string `json:"transaction_id"`
	PurchasedAt   string `json:"purchased_at"`
}

// =============================================================================
// TASK TYPES
// =============================================================================

// TaskDTO represents a reward-bearing task.
type TaskDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RewardCoins string `json:"reward_coins"`
	Active      bool   `json:"active"`
}

func toTaskDTO(t ledger.Task) TaskDTO {
	return TaskDTO{
		ID:          string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		RewardCoins: t.RewardCoins.String(),
		Active:      t.Active,
	}
}

// CreateTaskRequest is the request to create a task.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	RewardCoins string `json:"reward_coins"`
}

// UpdateTaskRequest toggles whether a task is offered to users.
type UpdateTaskRequest struct {
	Active bool `json:"active"`
}

// CompleteTaskResponse reports the reward credited for a completion.
type CompleteTaskResponse struct {
	Reward     string `json:"reward"`
	NewBalance string `json:"new_balance"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// GrantRequest is an administrative credit to a user's wallet.
type GrantRequest struct {
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// GrantResponse reports the balance after the grant.
type GrantResponse struct {
	NewBalance string `json:"new_balance"`
}

// RecountDTO summarizes a counter audit pass.
type RecountDTO struct {
	CategoriesChecked int        `json:"categories_checked"`
	ProductsChecked   int        `json:"products_checked"`
	Repaired          []DriftDTO `json:"repaired"`
}

// DriftDTO is one counter the audit had to repair.
type DriftDTO struct {
	Entity   string `json:"entity"`
	ID       string `json:"id"`
	Stored   int    `json:"stored"`
	Recorded int    `json:"recorded"`
}

func toRecountDTO(r *catalog.RecountReport) RecountDTO {
	dto := RecountDTO{
		CategoriesChecked: r.CategoriesChecked,
		ProductsChecked:   r.ProductsChecked,
		Repaired:          []DriftDTO{},
	}
	for _, d := range r.Repaired {
		dto.Repaired = append(dto.Repaired, DriftDTO(d))
	}
	return dto
}

// =============================================================================
// BONUS TYPES
// =============================================================================

// LoginResponse reports whether the daily bonus was credited for this
// login.
type LoginResponse struct {
	Wallet        WalletDTO `json:"wallet"`
	BonusCredited bool      `json:"bonus_credited"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
