package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrNoData = errors.New("no candle data for symbol")

// HTTPProvider fetches daily candles as CSV (Date,Open,High,Low,Close,Volume)
// from a data endpoint.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	endpoint := fmt.Sprintf("%s?s=%s&i=d", p.baseURL, url.QueryEscape(strings.ToLower(symbol)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch candles status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	candles, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return candles, nil
}

// ParseCSV reads Date,Open,High,Low,Close[,Volume] rows. A single header row is
// tolerated; any other malformed row fails the whole parse.
func ParseCSV(r io.Reader) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var candles []Candle
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if len(rec) < 5 {
			return nil, fmt.Errorf("csv line %d: want at least 5 fields, got %d", line, len(rec))
		}
		day, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("csv line %d: bad date %q", line, rec[0])
		}
		c := Candle{Time: day}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: bad value %q", line, rec[i+1])
			}
			*dst = v
		}
		if len(rec) > 5 {
			// Volume is optional and best-effort.
			c.Volume, _ = strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}
