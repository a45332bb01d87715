/*
handlers.go - HTTP API handlers for the coin economy

PURPOSE:
  Exposes the ledger engine, shop catalog, and bonus issuer via REST
  API. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users/signup           Create wallet + signup bonus
    POST   /api/users/login            Login hook; daily bonus

  Wallet:
    GET    /api/wallet                 Caller's wallet
    POST   /api/wallet/transfer        Send coins by boiya id
    GET    /api/wallet/transactions    Ledger history, newest first

  Shop:
    GET    /api/shop/categories        Categories
    GET    /api/shop/products          Visible products
    POST   /api/shop/purchase          Buy a product
    GET    /api/shop/purchases         Caller's purchase history

  Tasks:
    GET    /api/tasks                  Active tasks
    POST   /api/tasks/{id}/complete    Claim a task reward

  Admin:
    POST   /api/admin/categories          Create category
    PUT    /api/admin/categories/{id}     Rename / pause
    DELETE /api/admin/categories/{id}     Delete (empty only)
    POST   /api/admin/products            Create product
    PUT    /api/admin/products/{id}       Update / move / pause
    DELETE /api/admin/products/{id}       Delete product
    POST   /api/admin/tasks               Create task
    POST   /api/admin/grant               Manual coin grant
    POST   /api/admin/recount             Counter audit pass

IDENTITY:
  The caller is identified by the X-User-ID header, set by the gateway
  that terminates authentication. Requests without it get 401.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing identity header
  - 404: Wallet, recipient, product, category, or task not found
  - 409: Conflict (duplicate completion, non-empty category, name taken)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/booya/coin-engine/bonus"
	"github.com/booya/coin-engine/catalog"
	"github.com/booya/coin-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *ledger.Engine
	Catalog *catalog.Service
	Bonus   *bonus.Issuer
}

// NewHandler creates a new handler over the domain services.
func NewHandler(engine *ledger.Engine, cat *catalog.Service, issuer *bonus.Issuer) *Handler {
	return &Handler{Engine: engine, Catalog: cat, Bonus: issuer}
}

// callerID extracts the authenticated user from the X-User-ID header.
func callerID(r *http.Request) (ledger.UserID, bool) {
	id := r.Header.Get("X-User-ID")
	return ledger.UserID(id), id != ""
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// Signup creates the caller's wallet and credits the signup bonus.
// Idempotent: an existing wallet is returned as-is with no second bonus.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	wallet, err := h.Bonus.OnSignup(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to sign up", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalletDTO(wallet))
}

// Login records a login and credits the daily bonus at most once per
// UTC day.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	wallet, credited, err := h.Bonus.OnLogin(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to process login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Wallet:        toWalletDTO(wallet),
		BonusCredited: credited,
	})
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the caller's wallet, creating it on first sight.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	wallet, err := h.Engine.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// Transfer sends coins from the caller to the wallet owning the given
// boiya id.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	newBalance, err := h.Engine.Transfer(r.Context(), userID, req.RecipientBoiyaID, amount)
	if err != nil {
		writeDomainError(w, "Transfer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{NewBalance: newBalance.String()})
}

// GetTransactions returns the caller's ledger history, newest first.
// Optional query params: kind, limit, offset.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	filter := ledger.ListFilter{
		Kind:   ledger.Kind(r.URL.Query().Get("kind")),
		Limit:  intQuery(r, "limit"),
		Offset: intQuery(r, "offset"),
	}

	txs, err := h.Engine.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeDomainError(w, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SHOP HANDLERS
// =============================================================================

// ListCategories returns all categories, paused included; clients use
// the paused flag to grey them out.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Catalog.Categories(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListProducts returns visible products, optionally scoped to a
// category via the category_id query param.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	categoryID := ledger.CategoryID(r.URL.Query().Get("category_id"))

	products, err := h.Catalog.ListVisible(r.Context(), categoryID)
	if err != nil {
		writeDomainError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Purchase buys a product with the caller's coins and returns the
// receipt carrying the download URL.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required", nil)
		return
	}

	receipt, err := h.Engine.Purchase(r.Context(), userID, ledger.ProductID(req.ProductID))
	if err != nil {
		writeDomainError(w, "Purchase failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptDTO{
		TransactionID: string(receipt.TransactionID),
		ProductID:     string(receipt.ProductID),
		ProductName:   receipt.ProductName,
		FileURL:       receipt.FileURL,
		NewBalance:    receipt.NewBalance.String(),
	})
}

// ListPurchases returns the caller's purchase history, newest first.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	purchases, err := h.Engine.ListPurchases(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to list purchases", err)
		return
	}

	dtos := make([]PurchaseDTO, len(purchases))
	for i, p := range purchases {
		dtos[i] = PurchaseDTO{
			ID:            p.ID,
			ProductID:     string(p.ProductID),
			TransactionID: string(p.TransactionID),
			PurchasedAt:   p.PurchasedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns active tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Catalog.ListActiveTasks(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list tasks", err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CompleteTask claims the reward for a task. A second claim for the
// same task returns 409.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	taskID := ledger.TaskID(chi.URLParam(r, "id"))

	reward, newBalance, err := h.Engine.CompleteTask(r.Context(), userID, taskID)
	if err != nil {
		writeDomainError(w, "Failed to complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteTaskResponse{
		Reward:     reward.String(),
		NewBalance: newBalance.String(),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateCategory creates a shop category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Catalog.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(*c))
}

// UpdateCategory renames or pauses a category.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := ledger.CategoryID(chi.URLParam(r, "id"))

	var req UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Catalog.UpdateCategory(r.Context(), id, catalog.CategoryUpdate{
		Name:   req.Name,
		Paused: req.Paused,
	})
	if err != nil {
		writeDomainError(w, "Failed to update category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(*c))
}

// DeleteCategory deletes an empty category; 409 if it still holds
// products.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := ledger.CategoryID(chi.URLParam(r, "id"))

	if err := h.Catalog.DeleteCategory(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateProduct creates a catalog item in an existing category.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	price, err := ledger.ParseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}

	p, err := h.Catalog.CreateProduct(r.Context(), catalog.NewProduct{
		Name:         req.Name,
		Description:  req.Description,
		Price:        price,
		CategoryID:   ledger.CategoryID(req.CategoryID),
		ThumbnailURL: req.ThumbnailURL,
		FileURL:      req.FileURL,
	})
	if err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

// UpdateProduct applies a partial update; a category change moves the
// product and keeps both item counts right.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := catalog.ProductUpdate{
		Name:         req.Name,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
		FileURL:      req.FileURL,
		Paused:       req.Paused,
	}
	if req.Price != nil {
		price, err := ledger.ParseAmount(*req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid price", err)
			return
		}
		upd.Price = &price
	}
	if req.CategoryID != nil {
		cid := ledger.CategoryID(*req.CategoryID)
		upd.CategoryID = &cid
	}

	p, err := h.Catalog.UpdateProduct(r.Context(), id, upd)
	if err != nil {
		writeDomainError(w, "Failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// DeleteProduct removes a product from the catalog.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	if err := h.Catalog.DeleteProduct(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTask creates a reward-bearing task.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reward, err := ledger.ParseAmount(req.RewardCoins)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reward_coins", err)
		return
	}

	t, err := h.Catalog.CreateTask(r.Context(), catalog.NewTask{
		Title:       req.Title,
		Description: req.Description,
		RewardCoins: reward,
	})
	if err != nil {
		writeDomainError(w, "Failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(*t))
}

// UpdateTask activates or retires a task. Retired tasks disappear from
// the user listing but keep their completion records.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := ledger.TaskID(chi.URLParam(r, "id"))

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Catalog.SetTaskActive(r.Context(), id, req.Active); err != nil {
		writeDomainError(w, "Failed to update task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Grant credits coins to a user's wallet out of thin air. Admin only.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	newBalance, err := h.Engine.Grant(r.Context(), ledger.UserID(req.UserID),
		amount, ledger.KindAdminGrant, req.Description)
	if err != nil {
		writeDomainError(w, "Failed to grant coins", err)
		return
	}
	writeJSON(w, http.StatusOK, GrantResponse{NewBalance: newBalance.String()})
}

// Recount runs the counter audit and reports what it repaired.
func (h *Handler) Recount(w http.ResponseWriter, r *http.Request) {
	report, err := h.Catalog.Recount(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to run recount", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecountDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func intQuery(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses. Conflicts are
// checked before the broader client-error class so duplicates get 409.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
