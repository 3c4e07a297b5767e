package session

import (
	"log/slog"
	"time"

	"candlerush/internal/market"
)

// SnapshotVersion tags newly written snapshots so later schema changes can key
// on an explicit version instead of value heuristics.
const SnapshotVersion = 1

// Snapshot is the durable form of a ledger: the full candle history rides
// along so resumption never needs a re-fetch.
type Snapshot struct {
	Version          int             `json:"version"`
	StockSymbol      string          `json:"stockSymbol"`
	StockName        string          `json:"stockName"`
	StockData        []market.Candle `json:"stockData"`
	StartIndex       int             `json:"startIndex"`
	CurrentIndex     int             `json:"currentIndex"`
	Balance          float64         `json:"balance"`
	StartingBalance  float64         `json:"startingBalance"`
	Positions        []Position      `json:"positions"`
	TotalCommissions float64         `json:"totalCommissions"`
	TradeCount       int             `json:"tradeCount"`
	WinCount         int             `json:"winCount"`
	IsGameOver       bool            `json:"isGameOver"`
	SavedAt          time.Time       `json:"savedAt"`
}

// Snapshot captures the full ledger state for persistence.
func (l *Ledger) Snapshot() Snapshot {
	positions := make([]Position, len(l.positions))
	copy(positions, l.positions)
	return Snapshot{
		Version:          SnapshotVersion,
		StockSymbol:      l.symbol,
		StockName:        l.name,
		StockData:        l.candles,
		StartIndex:       l.startIndex,
		CurrentIndex:     l.currentIndex,
		Balance:          l.balance,
		StartingBalance:  l.startingBalance,
		Positions:        positions,
		TotalCommissions: l.totalCommissions,
		TradeCount:       l.tradeCount,
		WinCount:         l.winCount,
		IsGameOver:       l.gameOver,
		SavedAt:          time.Now().UTC(),
	}
}

// Restore rebuilds a ledger from a snapshot, adopting its fields verbatim.
func Restore(snap Snapshot, maxMoves int, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	positions := make([]Position, len(snap.Positions))
	copy(positions, snap.Positions)
	return &Ledger{
		log:              log,
		symbol:           snap.StockSymbol,
		name:             snap.StockName,
		candles:          snap.StockData,
		startIndex:       snap.StartIndex,
		maxMoves:         maxMoves,
		currentIndex:     snap.CurrentIndex,
		balance:          snap.Balance,
		startingBalance:  snap.StartingBalance,
		positions:        positions,
		totalCommissions: snap.TotalCommissions,
		tradeCount:       snap.TradeCount,
		winCount:         snap.WinCount,
		gameOver:         snap.IsGameOver,
	}
}
