package session

import (
	"math"
	"testing"
	"time"

	"candlerush/internal/market"
)

func flatCandles(closes ...float64) []market.Candle {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Time:  day.AddDate(0, 0, i),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEnterChargesCommission(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 110), 100_000, FreeMaxMoves, nil)

	l.Enter(Long, 20_000)

	positions := l.Positions()
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	if !almostEqual(p.Amount, 199.7) {
		t.Fatalf("shares = %v, want 199.7", p.Amount)
	}
	if !almostEqual(l.Balance(), 80_000) {
		t.Fatalf("balance = %v, want 80000", l.Balance())
	}
	if !almostEqual(l.TotalCommissions(), 30) {
		t.Fatalf("commissions = %v, want 30", l.TotalCommissions())
	}
	if p.InvestedAmount != 20_000 || p.EntryPrice != 100 {
		t.Fatalf("position = %+v", p)
	}
}

func TestCloseWinningLong(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 110), 100_000, FreeMaxMoves, nil)
	l.Enter(Long, 20_000)
	l.SkipDay()

	l.Close(l.Positions()[0].ID)

	if len(l.Positions()) != 0 {
		t.Fatalf("position not removed")
	}
	// pnl = (110-100)*199.7 = 1997; gross = 21967; exit fee = 32.9505
	wantBalance := 80_000 + 21967 - 21967*CommissionRate
	if !almostEqual(l.Balance(), wantBalance) {
		t.Fatalf("balance = %v, want %v", l.Balance(), wantBalance)
	}
	if l.TradeCount() != 1 || l.WinCount() != 1 {
		t.Fatalf("trades=%d wins=%d, want 1/1", l.TradeCount(), l.WinCount())
	}
}

func TestCloseLosingShort(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 110), 100_000, FreeMaxMoves, nil)
	l.Enter(Short, 10_000)
	l.SkipDay()
	l.Close(l.Positions()[0].ID)

	if l.WinCount() != 0 {
		t.Fatalf("losing short counted as win")
	}
	if l.TradeCount() != 1 {
		t.Fatalf("trade count = %d, want 1", l.TradeCount())
	}
	if l.Balance() >= 100_000 {
		t.Fatalf("balance = %v, expected a loss", l.Balance())
	}
}

func TestEnterClampsToBalance(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100), 50_000, FreeMaxMoves, nil)

	// Oversized and non-positive requests both fall back to the full balance.
	l.Enter(Long, 1_000_000)
	if l.Balance() != 0 {
		t.Fatalf("balance = %v, want 0 after full-balance entry", l.Balance())
	}
	if got := l.Positions()[0].InvestedAmount; got != 50_000 {
		t.Fatalf("invested = %v, want 50000", got)
	}

	// Balance is now zero; another entry must be a no-op.
	l.Enter(Long, 0)
	if len(l.Positions()) != 1 {
		t.Fatalf("entry with zero balance was not absorbed")
	}
}

func TestBalanceNeverNegativeAndPositionCap(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 100, 100, 100, 100, 100), 100_000, FreeMaxMoves, nil)
	for i := 0; i < 10; i++ {
		l.Enter(Long, 30_000)
		if l.Balance() < 0 {
			t.Fatalf("balance went negative: %v", l.Balance())
		}
		if len(l.Positions()) > MaxPositions {
			t.Fatalf("position cap exceeded: %d", len(l.Positions()))
		}
	}
	if len(l.Positions()) != MaxPositions {
		t.Fatalf("got %d positions, want %d", len(l.Positions()), MaxPositions)
	}
}

func TestCloseUnknownPositionIsNoop(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100), 100_000, FreeMaxMoves, nil)
	l.Enter(Long, 10_000)
	before := l.Balance()

	l.Close("no-such-id")

	if l.Balance() != before || len(l.Positions()) != 1 || l.TradeCount() != 0 {
		t.Fatalf("close of unknown id mutated state")
	}
}

func TestCloseAllBatch(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 120), 90_000, FreeMaxMoves, nil)
	l.Enter(Long, 10_000)
	l.Enter(Short, 10_000)
	l.Enter(Long, 10_000)
	l.SkipDay()

	l.CloseAll()

	if len(l.Positions()) != 0 {
		t.Fatalf("%d positions left open", len(l.Positions()))
	}
	if l.TradeCount() != 3 {
		t.Fatalf("trade count = %d, want 3", l.TradeCount())
	}
	if l.WinCount() != 2 {
		t.Fatalf("win count = %d, want 2 (two longs up 20%%)", l.WinCount())
	}
}

func TestSkipDayForcesGameOverAtBudget(t *testing.T) {
	// 3 candles, budget of 2 moves: index starts at 0, one advance allowed.
	l := New("TEST", "Test Co", flatCandles(100, 100, 100), 100_000, 2, nil)
	l.Enter(Long, 10_000)

	l.SkipDay()
	if l.IsGameOver() {
		t.Fatalf("game over too early at index %d", l.CurrentIndex())
	}
	l.SkipDay()
	if !l.IsGameOver() {
		t.Fatalf("expected game over at move budget")
	}
	if l.CurrentIndex() != 1 {
		t.Fatalf("terminating call advanced the cursor to %d", l.CurrentIndex())
	}
	if len(l.Positions()) != 0 {
		t.Fatalf("positions not closed on forced game over")
	}
}

func TestSkipDayForcesGameOverAtEndOfData(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 100), 100_000, FreeMaxMoves, nil)
	l.SkipDay()
	l.SkipDay()
	if !l.IsGameOver() {
		t.Fatalf("expected game over at end of data")
	}
}

func TestGameOverIsTerminal(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 100, 100), 100_000, FreeMaxMoves, nil)
	l.Enter(Long, 10_000)
	l.Stop()

	if !l.IsGameOver() {
		t.Fatalf("stop did not end the game")
	}
	balance, index, trades := l.Balance(), l.CurrentIndex(), l.TradeCount()

	l.Enter(Long, 10_000)
	l.Close("any")
	l.CloseAll()
	l.SkipDay()
	l.Stop()

	if l.Balance() != balance || l.CurrentIndex() != index || l.TradeCount() != trades {
		t.Fatalf("mutation after game over")
	}
	if len(l.Positions()) != 0 {
		t.Fatalf("position opened after game over")
	}
}

func TestDerivedValues(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100, 110), 100_000, FreeMaxMoves, nil)
	l.Enter(Long, 20_000)
	l.SkipDay()

	if !almostEqual(l.UnrealizedPL(), 1997) {
		t.Fatalf("unrealized = %v, want 1997", l.UnrealizedPL())
	}
	wantDisplay := 80_000 + 199.7*100 + 1997
	if !almostEqual(l.DisplayBalance(), wantDisplay) {
		t.Fatalf("display balance = %v, want %v", l.DisplayBalance(), wantDisplay)
	}
	wantReturn := (wantDisplay - 100_000) / 100_000 * 100
	if !almostEqual(l.TotalReturn(), wantReturn) {
		t.Fatalf("total return = %v, want %v", l.TotalReturn(), wantReturn)
	}
}

func TestTotalReturnZeroStartingBalance(t *testing.T) {
	l := New("TEST", "Test Co", flatCandles(100), 0, FreeMaxMoves, nil)
	if l.TotalReturn() != 0 {
		t.Fatalf("total return = %v, want 0 for zero starting balance", l.TotalReturn())
	}
}

func TestStartOffsetWindow(t *testing.T) {
	long := make([]float64, 200)
	for i := range long {
		long[i] = 100
	}
	l := New("TEST", "Test Co", flatCandles(long...), 100_000, FreeMaxMoves, nil)
	if l.CurrentIndex() != StartOffset {
		t.Fatalf("cursor = %d, want %d", l.CurrentIndex(), StartOffset)
	}

	short := New("TEST", "Test Co", flatCandles(100, 100), 100_000, FreeMaxMoves, nil)
	if short.CurrentIndex() != 0 {
		t.Fatalf("cursor = %d, want 0 for short history", short.CurrentIndex())
	}
}
