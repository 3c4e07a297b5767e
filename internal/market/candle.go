package market

import (
	"context"
	"time"
)

// Candle is one trading day's OHLCV summary. Sequences are always ordered
// ascending by Time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// Provider supplies the daily candle history for a ticker symbol.
type Provider interface {
	Candles(ctx context.Context, symbol string) ([]Candle, error)
}
