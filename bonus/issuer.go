/*
Package bonus orchestrates the system-issued coin grants: the one-time
signup bonus and the once-per-day login bonus.

The issuer never touches balances itself; both paths go through the
ledger engine so logging and atomicity stay uniform. Bonus amounts are
explicit configuration passed in at construction time.
*/
package bonus

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/booya/coin-engine/ledger"
)

// Config holds the grant amounts.
type Config struct {
	SignupAmount ledger.Amount
	DailyAmount  ledger.Amount
}

// DefaultConfig matches the production values: 50 coins each.
func DefaultConfig() Config {
	return Config{
		SignupAmount: ledger.MustParseAmount("50.00"),
		DailyAmount:  ledger.MustParseAmount("50.00"),
	}
}

// Issuer hands out signup and daily-login bonuses.
type Issuer struct {
	engine *ledger.Engine
	cfg    Config
	log    *log.Logger
}

func NewIssuer(engine *ledger.Engine, cfg Config) *Issuer {
	return &Issuer{engine: engine, cfg: cfg, log: log.StandardLogger()}
}

// WithLogger replaces the issuer's logger.
func (i *Issuer) WithLogger(l *log.Logger) *Issuer {
	i.log = l
	return i
}

// OnSignup ensures the user's wallet exists and grants the signup bonus
// exactly once, on the call that created the wallet. A repeat call (or
// a lazy wallet created elsewhere first) grants nothing.
func (i *Issuer) OnSignup(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	w, created, err := i.engine.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !created {
		return w, nil
	}

	balance, err := i.engine.Grant(ctx, userID, i.cfg.SignupAmount, ledger.KindSignupBonus, "Signup bonus")
	if err != nil {
		return nil, err
	}
	w.Balance = balance
	i.log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  i.cfg.SignupAmount.String(),
	}).Info("signup bonus granted")
	return w, nil
}

// OnLogin grants the daily login bonus if the wallet has not received
// one today. Repeat logins the same day return the wallet unchanged;
// that silent no-op is deliberate, repeat-login callers are not an
// error condition.
func (i *Issuer) OnLogin(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, bool, error) {
	return i.engine.DailyBonus(ctx, userID, i.cfg.DailyAmount)
}
