package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmhodges/clock"
)

const (
	YahooChartBase = "https://query1.finance.yahoo.com"
	// priceWindow bounds how far from the requested date a close may be.
	priceWindow = 7 * 24 * time.Hour
)

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfIndicators struct {
	Quote []struct {
		Close []*float64 `json:"close"`
	} `json:"quote"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// YahooPrices reads daily closes from the Yahoo Finance v8 chart endpoint.
// It implements PriceSource.
type YahooPrices struct {
	httpClient *http.Client
	baseURL    string
	throttler  *Throttler
}

// NewYahooPrices creates a price source. An empty baseURL uses Yahoo.
func NewYahooPrices(baseURL string) *YahooPrices {
	if baseURL == "" {
		baseURL = YahooChartBase
	}
	return &YahooPrices{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		throttler:  NewRPSThrottler(clock.New(), 2),
	}
}

// PriceNear returns the close of the last trading day on or before date,
// else the first one after it, within seven days. No close in the window,
// or an unknown ticker, yields nil without error.
func (y *YahooPrices) PriceNear(ctx context.Context, ticker string, date time.Time) (*Quote, error) {
	day := truncateDay(date)
	from := day.Add(-priceWindow)
	to := day.Add(priceWindow + 24*time.Hour)

	chartURL := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		y.baseURL, url.PathEscape(yahooSymbol(ticker)), from.Unix(), to.Unix())

	if _, err := y.throttler.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := get(ctx, y.httpClient, chartURL, map[string]string{
		"Accept":     "application/json",
		"User-Agent": "Mozilla/5.0",
	})
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("yfinance chart %s: %w", ticker, err)
	}

	var resp yfChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse yfinance chart: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yfinance chart error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}
	return nearestClose(resp.Chart.Result[0], day), nil
}

func nearestClose(r yfChartResult, day time.Time) *Quote {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	closes := r.Indicators.Quote[0].Close

	var before, after *Quote
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		d := truncateDay(time.Unix(ts, 0).UTC())
		if d.Sub(day) > priceWindow || day.Sub(d) > priceWindow {
			continue
		}
		q := &Quote{Price: *closes[i], Date: d}
		if !d.After(day) {
			if before == nil || d.After(before.Date) {
				before = q
			}
		} else if after == nil || d.Before(after.Date) {
			after = q
		}
	}
	if before != nil {
		return before
	}
	return after
}

// yahooSymbol maps class shares to Yahoo's notation: BRK.B -> BRK-B.
func yahooSymbol(ticker string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(ticker)), ".", "-")
}
