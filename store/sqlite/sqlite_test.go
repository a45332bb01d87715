package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booya/coin-engine/ledger"
	"github.com/booya/coin-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func coins(s string) ledger.Amount {
	return ledger.MustParseAmount(s)
}

func testWallet(userID ledger.UserID, boiyaID string) ledger.Wallet {
	return ledger.Wallet{
		ID:        ledger.NewWalletID(),
		UserID:    userID,
		Balance:   ledger.Zero(),
		BoiyaID:   boiyaID,
		CreatedAt: time.Now().UTC(),
	}
}

func createWallet(t *testing.T, store *sqlite.Store, w ledger.Wallet) {
	t.Helper()
	err := store.WithUnit(context.Background(), func(u ledger.UnitOfWork) error {
		return u.CreateWallet(context.Background(), w)
	})
	require.NoError(t, err)
}

// =============================================================================
// WALLET PERSISTENCE
// =============================================================================

func TestWallet_RoundTripsAllLookups(t *testing.T) {
	// GIVEN: A persisted wallet
	// WHEN: Fetched by id, user, and boiya id
	// THEN: All three lookups return the same row

	store := newTestStore(t)
	ctx := context.Background()

	w := testWallet("alice", "AAAA11112222")
	createWallet(t, store, w)

	byID, err := store.Wallet(ctx, w.ID)
	require.NoError(t, err)
	byUser, err := store.WalletByUser(ctx, "alice")
	require.NoError(t, err)
	byBoiya, err := store.WalletByBoiyaID(ctx, "AAAA11112222")
	require.NoError(t, err)

	assert.Equal(t, w.ID, byID.ID)
	assert.Equal(t, w.ID, byUser.ID)
	assert.Equal(t, w.ID, byBoiya.ID)
	assert.True(t, byID.Balance.Equal(ledger.Zero()))
	assert.Nil(t, byID.LastBonusDate)
}

func TestWallet_MissingRow_NotFound(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Any wallet lookup runs
	// THEN: ErrWalletNotFound

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WalletByUser(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	_, err = store.WalletByBoiyaID(ctx, "ZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestCreateWallet_DuplicateUser_MappedError(t *testing.T) {
	// GIVEN: A wallet for alice
	// WHEN: A second wallet for alice is inserted
	// THEN: The unique constraint maps to ErrWalletExists

	store := newTestStore(t)
	ctx := context.Background()

	createWallet(t, store, testWallet("alice", "AAAA11112222"))

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.CreateWallet(ctx, testWallet("alice", "BBBB33334444"))
	})
	assert.ErrorIs(t, err, ledger.ErrWalletExists)
}

func TestCreateWallet_DuplicateBoiyaID_MappedError(t *testing.T) {
	// GIVEN: A wallet holding boiya id AAAA11112222
	// WHEN: Another user's wallet reuses that boiya id
	// THEN: The unique constraint maps to ErrDuplicateBoiyaID

	store := newTestStore(t)
	ctx := context.Background()

	createWallet(t, store, testWallet("alice", "AAAA11112222"))

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.CreateWallet(ctx, testWallet("bob", "AAAA11112222"))
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateBoiyaID)
}

func TestSetBalanceAndBonusDate_Persist(t *testing.T) {
	// GIVEN: A persisted wallet
	// WHEN: Balance and bonus date are set in a unit
	// THEN: Both survive a fresh read

	store := newTestStore(t)
	ctx := context.Background()

	w := testWallet("alice", "AAAA11112222")
	createWallet(t, store, w)

	day := time.Date(2026, time.March, 3, 15, 30, 0, 0, time.UTC)
	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.SetBalance(ctx, w.ID, coins("72.50")); err != nil {
			return err
		}
		return u.SetLastBonusDate(ctx, w.ID, day)
	})
	require.NoError(t, err)

	got, err := store.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(coins("72.50")))
	require.NotNil(t, got.LastBonusDate)
	assert.True(t, ledger.SameDay(*got.LastBonusDate, day), "only the date part is stored")
}

// =============================================================================
// UNIT-OF-WORK ROLLBACK
// =============================================================================

func TestWithUnit_ErrorRollsBackAllWrites(t *testing.T) {
	// GIVEN: A unit that updates a balance and then fails
	// WHEN: The unit returns an error
	// THEN: The balance update is gone

	store := newTestStore(t)
	ctx := context.Background()

	w := testWallet("alice", "AAAA11112222")
	createWallet(t, store, w)

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.SetBalance(ctx, w.ID, coins("500.00")); err != nil {
			return err
		}
		return ledger.ErrStorageFailure
	})
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)

	got, err := store.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(ledger.Zero()), "rolled-back write must not persist")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactions_NewestFirstWithFilterAndPaging(t *testing.T) {
	// GIVEN: Four entries of mixed kinds appended in order
	// WHEN: Listing with a kind filter and with limit/offset
	// THEN: Order is newest first and the filter applies

	store := newTestStore(t)
	ctx := context.Background()

	w := testWallet("alice", "AAAA11112222")
	createWallet(t, store, w)

	base := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	kinds := []ledger.Kind{
		ledger.KindAdminGrant,
		ledger.KindDailyLogin,
		ledger.KindAdminGrant,
		ledger.KindTransferSend,
	}
	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		for i, kind := range kinds {
			tx := ledger.Transaction{
				ID:          ledger.NewTransactionID(),
				WalletID:    w.ID,
				Amount:      coins("10.00"),
				Kind:        kind,
				Status:      ledger.StatusCompleted,
				Description: string(kind),
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			}
			if err := u.AppendTransaction(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := store.Transactions(ctx, w.ID, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ledger.KindTransferSend, all[0].Kind, "newest entry first")

	grants, err := store.Transactions(ctx, w.ID, ledger.ListFilter{Kind: ledger.KindAdminGrant})
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	page, err := store.Transactions(ctx, w.ID, ledger.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ledger.KindAdminGrant, page[0].Kind)
	assert.Equal(t, ledger.KindDailyLogin, page[1].Kind)
}

func TestTransactions_FailedEntryRoundTrip(t *testing.T) {
	// GIVEN: A FAILED entry with a structured reason
	// WHEN: Read back
	// THEN: Status and reason survive intact

	store := newTestStore(t)
	ctx := context.Background()

	w := testWallet("alice", "AAAA11112222")
	createWallet(t, store, w)

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.AppendTransaction(ctx, ledger.Transaction{
			ID:            ledger.NewTransactionID(),
			WalletID:      w.ID,
			Amount:        coins("30.00"),
			Kind:          ledger.KindTransferSend,
			Status:        ledger.StatusFailed,
			FailureReason: ledger.ReasonInsufficientBalance,
			Description:   "transfer rejected: insufficient balance",
			CreatedAt:     time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	txs, err := store.Transactions(ctx, w.ID, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.StatusFailed, txs[0].Status)
	assert.Equal(t, ledger.ReasonInsufficientBalance, txs[0].FailureReason)
	assert.Empty(t, txs[0].RecipientWalletID)
	assert.Empty(t, txs[0].ProductID)
}

// =============================================================================
// CATALOG
// =============================================================================

func seedCatalog(t *testing.T, store *sqlite.Store) (ledger.Category, ledger.Product) {
	t.Helper()
	ctx := context.Background()

	c := ledger.Category{ID: ledger.NewCategoryID(), Name: "Games", ItemCount: 1}
	p := ledger.Product{
		ID:         ledger.NewProductID(),
		Name:       "Space Crawler",
		Price:      coins("40.00"),
		CategoryID: c.ID,
		FileURL:    "https://cdn.example.com/space-crawler.zip",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.CreateCategory(ctx, c); err != nil {
			return err
		}
		return u.CreateProduct(ctx, p)
	})
	require.NoError(t, err)
	return c, p
}

func TestCategory_DuplicateName_MappedError(t *testing.T) {
	// GIVEN: A category named Games
	// WHEN: A second Games is inserted
	// THEN: ErrCategoryNameTaken

	store := newTestStore(t)
	ctx := context.Background()

	seedCatalog(t, store)

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.CreateCategory(ctx, ledger.Category{ID: ledger.NewCategoryID(), Name: "Games"})
	})
	assert.ErrorIs(t, err, ledger.ErrCategoryNameTaken)
}

func TestProducts_VisibleOnlyFilter(t *testing.T) {
	// GIVEN: A live product and a paused one in a live category, plus a
	//        product whose category is paused
	// WHEN: Listing with VisibleOnly
	// THEN: Only the live product in the live category shows

	store := newTestStore(t)
	ctx := context.Background()

	games, live := seedCatalog(t, store)
	archive := ledger.Category{ID: ledger.NewCategoryID(), Name: "Archive", Paused: true, ItemCount: 1}

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.CreateCategory(ctx, archive); err != nil {
			return err
		}
		paused := ledger.Product{
			ID: ledger.NewProductID(), Name: "Blaster", Price: coins("5.00"),
			CategoryID: games.ID, Paused: true,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		if err := u.CreateProduct(ctx, paused); err != nil {
			return err
		}
		hidden := ledger.Product{
			ID: ledger.NewProductID(), Name: "Relic", Price: coins("5.00"),
			CategoryID: archive.ID,
			CreatedAt:  time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		return u.CreateProduct(ctx, hidden)
	})
	require.NoError(t, err)

	visible, err := store.Products(ctx, ledger.ProductFilter{VisibleOnly: true})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, live.ID, visible[0].ID)

	all, err := store.Products(ctx, ledger.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCounters_AdjustIncrementAndCount(t *testing.T) {
	// GIVEN: A category and product with seeded counters
	// WHEN: AdjustItemCount and IncrementSales run, then base-table counts
	// THEN: Counter reads and COUNT(*) queries agree with the operations

	store := newTestStore(t)
	ctx := context.Background()

	c, p := seedCatalog(t, store)

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.AdjustItemCount(ctx, c.ID, 2); err != nil {
			return err
		}
		return u.IncrementSales(ctx, p.ID)
	})
	require.NoError(t, err)

	gotC, err := store.Category(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotC.ItemCount)

	gotP, err := store.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotP.Sales)

	// The base tables disagree with the tampered counters; recount
	// queries report the truth.
	nProducts, err := store.CountProducts(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, nProducts)
	nPurchases, err := store.CountPurchases(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, nPurchases)
}

// =============================================================================
// TASK COMPLETIONS
// =============================================================================

func TestInsertCompletion_DuplicatePair_MappedError(t *testing.T) {
	// GIVEN: A recorded completion of a task by alice
	// WHEN: The same (user, task) pair is inserted again
	// THEN: The unique constraint maps to ErrTaskAlreadyCompleted

	store := newTestStore(t)
	ctx := context.Background()

	task := ledger.Task{
		ID: ledger.NewTaskID(), Title: "Invite a friend",
		RewardCoins: coins("15.00"), Active: true,
	}
	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		if err := u.CreateTask(ctx, task); err != nil {
			return err
		}
		return u.InsertCompletion(ctx, ledger.TaskCompletion{
			UserID: "alice", TaskID: task.ID, CompletedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	err = store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.InsertCompletion(ctx, ledger.TaskCompletion{
			UserID: "alice", TaskID: task.ID, CompletedAt: time.Now().UTC(),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrTaskAlreadyCompleted)

	// A different user completing the same task is fine.
	err = store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.InsertCompletion(ctx, ledger.TaskCompletion{
			UserID: "bob", TaskID: task.ID, CompletedAt: time.Now().UTC(),
		})
	})
	assert.NoError(t, err)
}

// =============================================================================
// ENGINE OVER SQLITE
// =============================================================================

func TestEngine_TransferAndPurchase_EndToEndOnSQLite(t *testing.T) {
	// GIVEN: The real engine wired to the SQLite store
	// WHEN: A signup-style grant, a transfer, and a purchase run
	// THEN: Balances, counters, and history match the in-memory behavior

	store := newTestStore(t)
	engine := ledger.NewEngine(store)
	ctx := context.Background()

	_, err := engine.Grant(ctx, "alice", coins("100.00"), ledger.KindSignupBonus, "Signup bonus")
	require.NoError(t, err)
	bob, err := engine.GetOrCreateWallet(ctx, "bob")
	require.NoError(t, err)

	newBalance, err := engine.Transfer(ctx, "alice", bob.BoiyaID, coins("30.00"))
	require.NoError(t, err)
	assert.True(t, newBalance.Equal(coins("70.00")))

	_, p := seedCatalog(t, store)
	receipt, err := engine.Purchase(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.True(t, receipt.NewBalance.Equal(coins("30.00")))
	assert.Equal(t, p.FileURL, receipt.FileURL)

	gotP, err := store.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotP.Sales)

	purchases, err := store.Purchases(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, purchases, 1)

	alice, err := store.WalletByUser(ctx, "alice")
	require.NoError(t, err)
	txs, err := store.Transactions(ctx, alice.ID, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 3, "grant, transfer send, purchase")
}
