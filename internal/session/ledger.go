package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"candlerush/internal/market"
)

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

const (
	// MaxPositions caps concurrently open positions.
	MaxPositions = 3
	// CommissionRate is charged on entry notional and on exit gross value.
	CommissionRate = 0.0015

	// DefaultBankroll seeds a fresh player. LegacyBankroll is the pre-rebalance
	// default that gets migrated on read.
	DefaultBankroll = 100_000.0
	LegacyBankroll  = 10_000.0

	// StartOffset is how many candles of history are shown before play begins.
	StartOffset = 60

	// Move budgets per entitlement tier.
	FreeMaxMoves = 30
	ProMaxMoves  = 90
)

// Position is an open simulated trade.
type Position struct {
	ID             string    `json:"id"`
	Type           Direction `json:"type"`
	Amount         float64   `json:"amount"`
	EntryPrice     float64   `json:"entryPrice"`
	InvestedAmount float64   `json:"investedAmount"`
	OpenedAt       time.Time `json:"openedAt"`
}

// Ledger is the per-session trading state machine. It is single-writer by
// construction: one interactive caller drives it, so it carries no locking.
// Precondition misses (no candle, position cap, unknown id, game over) are
// absorbed as no-ops to match the play surface's expectations; rejections are
// logged at debug for observability.
type Ledger struct {
	log *slog.Logger

	symbol  string
	name    string
	candles []market.Candle

	startIndex   int
	maxMoves     int
	currentIndex int

	balance          float64
	startingBalance  float64
	positions        []Position
	totalCommissions float64
	tradeCount       int
	winCount         int
	gameOver         bool
}

// New builds a fresh ledger over a candle history. The cursor starts at the
// display-window offset so the player sees history behind the current day.
func New(symbol, name string, candles []market.Candle, bankroll float64, maxMoves int, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	start := 0
	if len(candles) > StartOffset {
		start = StartOffset
	}
	return &Ledger{
		log:             log,
		symbol:          symbol,
		name:            name,
		candles:         candles,
		startIndex:      start,
		maxMoves:        maxMoves,
		currentIndex:    start,
		balance:         bankroll,
		startingBalance: bankroll,
	}
}

func (l *Ledger) Symbol() string           { return l.symbol }
func (l *Ledger) Name() string             { return l.name }
func (l *Ledger) Candles() []market.Candle { return l.candles }
func (l *Ledger) CurrentIndex() int        { return l.currentIndex }
func (l *Ledger) Balance() float64         { return l.balance }
func (l *Ledger) StartingBalance() float64 { return l.startingBalance }
func (l *Ledger) TotalCommissions() float64 { return l.totalCommissions }
func (l *Ledger) TradeCount() int          { return l.tradeCount }
func (l *Ledger) WinCount() int            { return l.winCount }
func (l *Ledger) IsGameOver() bool         { return l.gameOver }

// Positions returns a copy of the open positions.
func (l *Ledger) Positions() []Position {
	out := make([]Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// CurrentCandle returns the candle under the cursor, if any.
func (l *Ledger) CurrentCandle() (market.Candle, bool) {
	if l.currentIndex < 0 || l.currentIndex >= len(l.candles) {
		return market.Candle{}, false
	}
	return l.candles[l.currentIndex], true
}

// MovesLeft reports how many more days the player may advance before the
// session is forced to settle.
func (l *Ledger) MovesLeft() int {
	left := l.startIndex + l.maxMoves - 1 - l.currentIndex
	if end := len(l.candles) - 1 - l.currentIndex; end < left {
		left = end
	}
	if left < 0 {
		return 0
	}
	return left
}

// Enter opens a LONG or SHORT position at the current close. The requested
// amount is clamped to (0, balance]; zero, negative, or oversized requests
// fall back to the full balance. Entry commission is charged on the requested
// amount and the remainder is converted to shares.
func (l *Ledger) Enter(dir Direction, requested float64) {
	if l.gameOver {
		l.log.Debug("enter rejected: game over")
		return
	}
	candle, ok := l.CurrentCandle()
	if !ok {
		l.log.Debug("enter rejected: no current candle", "index", l.currentIndex)
		return
	}
	if len(l.positions) >= MaxPositions {
		l.log.Debug("enter rejected: position cap", "open", len(l.positions))
		return
	}
	if l.balance <= 0 || candle.Close <= 0 {
		l.log.Debug("enter rejected: nothing to invest", "balance", l.balance)
		return
	}
	amount := requested
	if amount <= 0 || amount > l.balance {
		amount = l.balance
	}

	commission := CommissionRate * amount
	shares := (amount - commission) / candle.Close

	l.balance -= amount
	l.totalCommissions += commission
	l.positions = append(l.positions, Position{
		ID:             uuid.NewString(),
		Type:           dir,
		Amount:         shares,
		EntryPrice:     candle.Close,
		InvestedAmount: amount,
		OpenedAt:       candle.Time,
	})
}

// Close settles one position at the current close. The trade counts as a win
// only when the credited amount beats the originally invested amount, i.e.
// profit net of both commissions.
func (l *Ledger) Close(positionID string) {
	if l.gameOver {
		l.log.Debug("close rejected: game over")
		return
	}
	candle, ok := l.CurrentCandle()
	if !ok {
		l.log.Debug("close rejected: no current candle", "index", l.currentIndex)
		return
	}
	for i, p := range l.positions {
		if p.ID == positionID {
			l.settlePosition(p, candle.Close)
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			return
		}
	}
	l.log.Debug("close rejected: unknown position", "id", positionID)
}

// CloseAll settles every open position against the same close price.
func (l *Ledger) CloseAll() {
	if l.gameOver || len(l.positions) == 0 {
		return
	}
	candle, ok := l.CurrentCandle()
	if !ok {
		l.log.Debug("close all rejected: no current candle", "index", l.currentIndex)
		return
	}
	for _, p := range l.positions {
		l.settlePosition(p, candle.Close)
	}
	l.positions = l.positions[:0]
}

func (l *Ledger) settlePosition(p Position, closePrice float64) {
	pnl := p.PL(closePrice)
	gross := p.EntryPrice*p.Amount + pnl
	commission := CommissionRate * gross
	credited := gross - commission

	l.balance += credited
	l.totalCommissions += commission
	l.tradeCount++
	if credited > p.InvestedAmount {
		l.winCount++
	}
}

// SkipDay advances the cursor one candle, unless the move budget or the data
// is exhausted, in which case the session settles instead: all positions are
// closed and the game-over latch is set. Advancing and terminating are
// mutually exclusive outcomes of the same call.
func (l *Ledger) SkipDay() {
	if l.gameOver {
		return
	}
	atBudget := l.currentIndex >= l.startIndex+l.maxMoves-1
	atEnd := l.currentIndex >= len(l.candles)-1
	if atBudget || atEnd {
		l.forceGameOver()
		return
	}
	l.currentIndex++
}

// Stop closes all positions and ends the session. Idempotent once game over.
func (l *Ledger) Stop() {
	if l.gameOver {
		return
	}
	l.forceGameOver()
}

func (l *Ledger) forceGameOver() {
	l.CloseAll()
	l.gameOver = true
}

// UnrealizedPL sums per-position P&L at the current close.
func (l *Ledger) UnrealizedPL() float64 {
	candle, ok := l.CurrentCandle()
	if !ok {
		return 0
	}
	var total float64
	for _, p := range l.positions {
		total += p.PL(candle.Close)
	}
	return total
}

// DisplayBalance is cash plus the marked-to-market value of open positions.
func (l *Ledger) DisplayBalance() float64 {
	candle, ok := l.CurrentCandle()
	if !ok {
		return l.balance
	}
	total := l.balance
	for _, p := range l.positions {
		total += p.EntryPrice*p.Amount + p.PL(candle.Close)
	}
	return total
}

// TotalReturn is the session return in percent, zero when the starting
// balance is zero.
func (l *Ledger) TotalReturn() float64 {
	if l.startingBalance == 0 {
		return 0
	}
	return (l.DisplayBalance() - l.startingBalance) / l.startingBalance * 100
}

// PL is the position's signed profit at a close price.
func (p Position) PL(closePrice float64) float64 {
	if p.Type == Short {
		return (p.EntryPrice - closePrice) * p.Amount
	}
	return (closePrice - p.EntryPrice) * p.Amount
}
