package bonus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booya/coin-engine/bonus"
	"github.com/booya/coin-engine/ledger"
	"github.com/booya/coin-engine/store/memory"
)

func newTestIssuer() (*bonus.Issuer, *ledger.Engine, *memory.Store) {
	store := memory.New()
	engine := ledger.NewEngine(store)
	return bonus.NewIssuer(engine, bonus.DefaultConfig()), engine, store
}

func TestOnSignup_NewUser_GetsSignupBonus(t *testing.T) {
	// GIVEN: A user with no wallet
	// WHEN: OnSignup runs
	// THEN: The wallet starts at 50.00 with one SIGNUP_BONUS entry

	issuer, _, store := newTestIssuer()
	ctx := context.Background()

	w, err := issuer.OnSignup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("50.00")))

	txs, err := store.Transactions(ctx, w.ID, ledger.ListFilter{Kind: ledger.KindSignupBonus})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.StatusCompleted, txs[0].Status)
	assert.Equal(t, "Signup bonus", txs[0].Description)
}

func TestOnSignup_RepeatCall_NoSecondBonus(t *testing.T) {
	// GIVEN: A user who already signed up
	// WHEN: OnSignup runs again
	// THEN: Balance stays at 50.00 with a single bonus entry

	issuer, _, store := newTestIssuer()
	ctx := context.Background()

	_, err := issuer.OnSignup(ctx, "alice")
	require.NoError(t, err)
	w, err := issuer.OnSignup(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("50.00")))

	txs, err := store.Transactions(ctx, w.ID, ledger.ListFilter{Kind: ledger.KindSignupBonus})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestOnSignup_WalletCreatedLazilyFirst_NoBonus(t *testing.T) {
	// GIVEN: A wallet created by a read path before signup ran
	// WHEN: OnSignup runs
	// THEN: No signup bonus is granted

	issuer, engine, store := newTestIssuer()
	ctx := context.Background()

	_, err := engine.GetOrCreateWallet(ctx, "alice")
	require.NoError(t, err)

	w, err := issuer.OnSignup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(ledger.Zero()))

	txs, err := store.Transactions(ctx, w.ID, ledger.ListFilter{Kind: ledger.KindSignupBonus})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestOnLogin_FirstOfDayCredits_RepeatDoesNot(t *testing.T) {
	// GIVEN: A signed-up user
	// WHEN: They log in twice on one day and once the next
	// THEN: Day one pays once, day two pays again

	store := memory.New()
	day := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)
	now := day
	engine := ledger.NewEngine(store).WithClock(func() time.Time { return now })
	issuer := bonus.NewIssuer(engine, bonus.DefaultConfig())
	ctx := context.Background()

	w, credited, err := issuer.OnLogin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, credited)
	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("50.00")))

	now = day.Add(6 * time.Hour)
	w, credited, err = issuer.OnLogin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, credited, "second login the same day is a silent no-op")
	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("50.00")))

	now = day.AddDate(0, 0, 1)
	w, credited, err = issuer.OnLogin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, credited)
	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("100.00")))
}

func TestSignupThenLogin_SameDay_BothBonusesStack(t *testing.T) {
	// GIVEN: A brand new user
	// WHEN: They sign up and then log in the same day
	// THEN: They hold 100.00 from the two distinct bonuses

	issuer, _, store := newTestIssuer()
	ctx := context.Background()

	_, err := issuer.OnSignup(ctx, "alice")
	require.NoError(t, err)
	w, credited, err := issuer.OnLogin(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, credited)
	assert.True(t, w.Balance.Equal(ledger.MustParseAmount("100.00")))

	all, err := store.Transactions(ctx, w.ID, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
