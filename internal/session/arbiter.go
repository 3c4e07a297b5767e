package session

import (
	"log/slog"

	"candlerush/internal/market"
)

// Arbiter decides, when a ticker is loaded, whether to resume the saved
// session or start fresh. A saved session is adopted verbatim only when it
// matches the requested symbol and that symbol has not already been restored
// in this process lifetime; the guard keeps a re-render of an already-resumed
// session from rolling the player back.
type Arbiter struct {
	store    *Store
	log      *slog.Logger
	restored map[string]bool
}

func NewArbiter(store *Store, log *slog.Logger) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	return &Arbiter{
		store:    store,
		log:      log,
		restored: make(map[string]bool),
	}
}

// Open returns a ledger for the symbol and whether it resumed a saved
// session. On a fresh start any stale snapshot is deleted and the bankroll
// seeds both balance and starting balance.
func (a *Arbiter) Open(symbol, name string, candles []market.Candle, maxMoves int) (*Ledger, bool, error) {
	snap, err := a.store.LoadSnapshot()
	if err != nil {
		a.log.Warn("saved session unreadable, starting fresh", "err", err)
	}

	if snap != nil && snap.StockSymbol == symbol && !a.restored[symbol] {
		a.restored[symbol] = true
		a.log.Info("resuming saved session", "symbol", symbol, "day", snap.CurrentIndex)
		return Restore(*snap, maxMoves, a.log), true, nil
	}

	if err := a.store.DeleteSnapshot(); err != nil {
		return nil, false, err
	}
	bankroll, err := a.store.Bankroll()
	if err != nil {
		return nil, false, err
	}
	a.restored[symbol] = true
	return New(symbol, name, candles, bankroll, maxMoves, a.log), false, nil
}
