package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booya/coin-engine/api"
	"github.com/booya/coin-engine/bonus"
	"github.com/booya/coin-engine/catalog"
	"github.com/booya/coin-engine/ledger"
	"github.com/booya/coin-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router http.Handler
	engine *ledger.Engine
	store  *memory.Store
}

func newTestEnv() *testEnv {
	store := memory.New()
	engine := ledger.NewEngine(store)
	cat := catalog.NewService(store)
	issuer := bonus.NewIssuer(engine, bonus.DefaultConfig())

	handler := api.NewHandler(engine, cat, issuer)
	return &testEnv{
		router: api.NewRouter(handler),
		engine: engine,
		store:  store,
	}
}

// do runs a request as the given user and decodes the JSON response
// into out (if non-nil).
func (env *testEnv) do(t *testing.T, method, path, userID string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestWallet_MissingIdentityHeader_Unauthorized(t *testing.T) {
	// GIVEN: A request without X-User-ID
	// WHEN: Hitting a wallet endpoint
	// THEN: 401

	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/wallet", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// SIGNUP AND LOGIN
// =============================================================================

func TestSignup_CreatesWalletWithBonus(t *testing.T) {
	// GIVEN: A new user
	// WHEN: POST /api/users/signup
	// THEN: 201 with a 50.00 wallet and a 12-char boiya id

	env := newTestEnv()

	var wallet api.WalletDTO
	rec := env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, &wallet)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", wallet.UserID)
	assert.Equal(t, "50.00", wallet.Balance)
	assert.Len(t, wallet.BoiyaID, 12)
}

func TestLogin_CreditsDailyBonusOnce(t *testing.T) {
	// GIVEN: A signed-up user
	// WHEN: Logging in twice
	// THEN: First login reports bonus_credited=true, second false

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)

	var first api.LoginResponse
	rec := env.do(t, http.MethodPost, "/api/users/login", "alice", nil, &first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, first.BonusCredited)
	assert.Equal(t, "100.00", first.Wallet.Balance)

	var second api.LoginResponse
	rec = env.do(t, http.MethodPost, "/api/users/login", "alice", nil, &second)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, second.BonusCredited)
	assert.Equal(t, "100.00", second.Wallet.Balance)
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransfer_HappyPath(t *testing.T) {
	// GIVEN: Alice (signup bonus 50.00) and Bob with a known boiya id
	// WHEN: Alice transfers 20.00 to Bob
	// THEN: 200 with Alice's new balance, and Bob holds 70.00

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)
	var bob api.WalletDTO
	env.do(t, http.MethodPost, "/api/users/signup", "bob", nil, &bob)

	var resp api.TransferResponse
	rec := env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: bob.BoiyaID, Amount: "20.00"}, &resp)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30.00", resp.NewBalance)

	var bobAfter api.WalletDTO
	env.do(t, http.MethodGet, "/api/wallet", "bob", nil, &bobAfter)
	assert.Equal(t, "70.00", bobAfter.Balance)
}

func TestTransfer_ErrorStatusMapping(t *testing.T) {
	// GIVEN: Alice with 50.00
	// WHEN: Transfers hit each rejection path
	// THEN: 404 for unknown recipient, 400 for self/insufficient/invalid

	env := newTestEnv()
	var alice api.WalletDTO
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, &alice)
	var bob api.WalletDTO
	env.do(t, http.MethodPost, "/api/users/signup", "bob", nil, &bob)

	rec := env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: "ZZZZZZZZZZZZ", Amount: "10.00"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: alice.BoiyaID, Amount: "10.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: bob.BoiyaID, Amount: "999.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: bob.BoiyaID, Amount: "-5.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactions_FailedAttemptsVisibleInHistory(t *testing.T) {
	// GIVEN: Alice with a rejected oversized transfer behind her
	// WHEN: GET /api/wallet/transactions
	// THEN: The FAILED row shows with its structured reason

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)
	var bob api.WalletDTO
	env.do(t, http.MethodPost, "/api/users/signup", "bob", nil, &bob)

	env.do(t, http.MethodPost, "/api/wallet/transfer", "alice",
		api.TransferRequest{RecipientBoiyaID: bob.BoiyaID, Amount: "999.00"}, nil)

	var txs []api.TransactionDTO
	rec := env.do(t, http.MethodGet, "/api/wallet/transactions", "alice", nil, &txs)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, txs, 2, "signup bonus plus the failed attempt")
	assert.Equal(t, "FAILED", txs[0].Status)
	assert.Equal(t, "insufficient_balance", txs[0].FailureReason)
	assert.Equal(t, "SIGNUP_BONUS", txs[1].Kind)
}

// =============================================================================
// SHOP
// =============================================================================

// seedShop creates a category and product through the admin API and
// returns their DTOs.
func seedShop(t *testing.T, env *testEnv, price string) (api.CategoryDTO, api.ProductDTO) {
	t.Helper()

	var cat api.CategoryDTO
	rec := env.do(t, http.MethodPost, "/api/admin/categories", "",
		api.CreateCategoryRequest{Name: "Games"}, &cat)
	require.Equal(t, http.StatusCreated, rec.Code)

	var product api.ProductDTO
	rec = env.do(t, http.MethodPost, "/api/admin/products", "",
		api.CreateProductRequest{
			Name:       "Space Crawler",
			Price:      price,
			CategoryID: cat.ID,
			FileURL:    "https://cdn.example.com/space-crawler.zip",
		}, &product)
	require.Equal(t, http.StatusCreated, rec.Code)
	return cat, product
}

func TestPurchase_RevealsFileURLOnlyInReceipt(t *testing.T) {
	// GIVEN: A signed-up buyer and a 40.00 product
	// WHEN: Browsing the shop and then purchasing
	// THEN: The listing hides the file URL; the receipt reveals it

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)
	_, product := seedShop(t, env, "40.00")

	var listing []api.ProductDTO
	rec := env.do(t, http.MethodGet, "/api/shop/products", "alice", nil, &listing)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, listing, 1)

	var receipt api.ReceiptDTO
	rec = env.do(t, http.MethodPost, "/api/shop/purchase", "alice",
		api.PurchaseRequest{ProductID: product.ID}, &receipt)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "https://cdn.example.com/space-crawler.zip", receipt.FileURL)
	assert.Equal(t, "10.00", receipt.NewBalance)

	var history []api.PurchaseDTO
	rec = env.do(t, http.MethodGet, "/api/shop/purchases", "alice", nil, &history)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history, 1)
	assert.Equal(t, receipt.TransactionID, history[0].TransactionID)
}

func TestPurchase_InsufficientBalance_BadRequest(t *testing.T) {
	// GIVEN: A buyer holding only the 50.00 signup bonus
	// WHEN: Purchasing a 75.00 product
	// THEN: 400 and the wallet is untouched

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)
	_, product := seedShop(t, env, "75.00")

	rec := env.do(t, http.MethodPost, "/api/shop/purchase", "alice",
		api.PurchaseRequest{ProductID: product.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var wallet api.WalletDTO
	env.do(t, http.MethodGet, "/api/wallet", "alice", nil, &wallet)
	assert.Equal(t, "50.00", wallet.Balance)
}

func TestAdminCategoryDelete_NonEmpty_Conflict(t *testing.T) {
	// GIVEN: A category holding a product
	// WHEN: DELETE /api/admin/categories/{id}
	// THEN: 409

	env := newTestEnv()
	cat, _ := seedShop(t, env, "40.00")

	rec := env.do(t, http.MethodDelete, "/api/admin/categories/"+cat.ID, "", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminRecount_ReportsRepairs(t *testing.T) {
	// GIVEN: A clean catalog
	// WHEN: POST /api/admin/recount
	// THEN: 200 with zero repairs

	env := newTestEnv()
	seedShop(t, env, "40.00")

	var report api.RecountDTO
	rec := env.do(t, http.MethodPost, "/api/admin/recount", "", nil, &report)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, report.CategoriesChecked)
	assert.Empty(t, report.Repaired)
}

// =============================================================================
// TASKS
// =============================================================================

func TestCompleteTask_SecondClaimConflicts(t *testing.T) {
	// GIVEN: An admin-created task and a signed-up user
	// WHEN: The user completes it twice
	// THEN: First claim pays 200, second returns 409

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)

	var task api.TaskDTO
	rec := env.do(t, http.MethodPost, "/api/admin/tasks", "",
		api.CreateTaskRequest{Title: "Invite a friend", RewardCoins: "15.00"}, &task)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.CompleteTaskResponse
	rec = env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", "alice", nil, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "15.00", resp.Reward)
	assert.Equal(t, "65.00", resp.NewBalance)

	rec = env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", "alice", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminGrant_CreditsUser(t *testing.T) {
	// GIVEN: A signed-up user
	// WHEN: An admin grants 25.00
	// THEN: 200 and the wallet reflects 75.00

	env := newTestEnv()
	env.do(t, http.MethodPost, "/api/users/signup", "alice", nil, nil)

	var resp api.GrantResponse
	rec := env.do(t, http.MethodPost, "/api/admin/grant", "",
		api.GrantRequest{UserID: "alice", Amount: "25.00", Description: "Promo"}, &resp)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "75.00", resp.NewBalance)
}
