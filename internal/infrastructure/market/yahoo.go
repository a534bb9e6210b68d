package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

const defaultEndpoint = "https://query1.finance.yahoo.com"

// Client fetches daily closing prices from the Yahoo Finance chart API.
type Client struct {
	endpoint string
	http     *http.Client
}

var _ ports.MarketData = (*Client)(nil)

// NewClient creates a reusable HTTP client. An empty endpoint selects
// the public Yahoo API.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History returns the ticker's daily closes over the period together
// with 50- and 200-day moving averages. Period defaults to one year.
func (c *Client) History(ctx context.Context, ticker, period string) (domain.ChartData, error) {
	if period == "" {
		period = "1y"
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		c.endpoint, url.PathEscape(ticker), url.QueryEscape(period))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ChartData{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "BriefingScanner/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ChartData{}, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return domain.ChartData{}, fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return domain.ChartData{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		_ = resp.Body.Close()
		return domain.ChartData{}, fmt.Errorf("decode response: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return domain.ChartData{}, fmt.Errorf("close response body: %w", err)
	}

	if payload.Chart.Error != nil {
		return domain.ChartData{}, fmt.Errorf("chart api: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return domain.ChartData{}, fmt.Errorf("no chart data for %s", ticker)
	}

	result := payload.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	if len(result.Timestamp) != len(closes) || len(closes) == 0 {
		return domain.ChartData{}, fmt.Errorf("malformed chart data for %s", ticker)
	}

	data := domain.ChartData{
		Ticker: ticker,
		Dates:  make([]time.Time, len(closes)),
		Prices: make([]float64, len(closes)),
	}
	for i, ts := range result.Timestamp {
		data.Dates[i] = time.Unix(ts, 0).UTC()
		if closes[i] != nil {
			data.Prices[i] = *closes[i]
		} else {
			data.Prices[i] = math.NaN()
		}
	}

	data.MA50 = movingAverage(data.Prices, 50)
	data.MA200 = movingAverage(data.Prices, 200)
	data.MA200Plus10 = make([]float64, len(data.MA200))
	for i, v := range data.MA200 {
		data.MA200Plus10[i] = v * 1.1
	}

	fillCurrent(&data)
	return data, nil
}

// movingAverage computes a simple moving average. Positions before the
// window fills, and windows containing gaps, come back NaN.
func movingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		valid := true
		for j := i + 1 - window; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if !valid {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

func fillCurrent(data *domain.ChartData) {
	for i := len(data.Prices) - 1; i >= 0; i-- {
		if !math.IsNaN(data.Prices[i]) {
			data.CurrentPrice = data.Prices[i]
			break
		}
	}
	for i := len(data.MA200) - 1; i >= 0; i-- {
		if !math.IsNaN(data.MA200[i]) {
			data.CurrentMA200 = data.MA200[i]
			data.CurrentMA200Up = data.MA200Plus10[i]
			break
		}
	}
	if data.CurrentMA200 > 0 {
		data.AboveMA200 = data.CurrentPrice > data.CurrentMA200
		data.AboveMA200Plus10 = data.CurrentPrice > data.CurrentMA200Up
	}
}
