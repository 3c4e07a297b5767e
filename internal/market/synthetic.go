package market

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Synthetic generates a deterministic random-walk candle history for a symbol.
// The walk is seeded from the symbol so the same ticker always replays the
// same series.
func Synthetic(symbol string, n int) []Candle {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 50 + rng.Float64()*250
	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -n)

	candles := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		drift := rng.NormFloat64() * 0.02 * price
		open := price
		close := math.Max(1, price+drift)
		high := math.Max(open, close) * (1 + rng.Float64()*0.01)
		low := math.Min(open, close) * (1 - rng.Float64()*0.01)
		candles = append(candles, Candle{
			Time:   day,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: float64(1_000_000 + rng.Intn(9_000_000)),
		})
		price = close
		day = day.AddDate(0, 0, 1)
	}
	return candles
}

// Fallback wraps a primary provider and degrades to synthetic data when the
// primary fails, so a session can always start.
type Fallback struct {
	Primary Provider
	Bars    int
	Log     *slog.Logger
}

func (f *Fallback) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	candles, err := f.Primary.Candles(ctx, symbol)
	if err == nil {
		return candles, nil
	}
	if f.Log != nil {
		f.Log.Warn("market data unavailable, using simulated candles", "symbol", symbol, "err", err)
	}
	n := f.Bars
	if n <= 0 {
		n = 250
	}
	return Synthetic(symbol, n), nil
}
