// Package eodhd provides a client for the EODHD end-of-day API
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/interfaces"
	"github.com/bobmcallan/frontier/internal/models"
)

// quotedPrice accepts prices sent either as numbers or as strings. Blank,
// "N/A", null and unparsable strings decode to zero so the caller can fall
// back to the raw close.
type quotedPrice float64

func (p *quotedPrice) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*p = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = 0
		}
		*p = quotedPrice(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("eodhd: price %s is neither number nor string", raw)
	}
	*p = quotedPrice(v)
	return nil
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements interfaces.PriceClient against /eod/{ticker}
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

var _ interfaces.PriceClient = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit. Zero or negative disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-200 reply from EODHD. Message holds the start of the body.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Name identifies the provider
func (c *Client) Name() string {
	return "eodhd"
}

// fetchBars calls /eod/{ticker} once the limiter allows it. The token is
// added here and never reaches the log.
func (c *Client) fetchBars(ctx context.Context, endpoint string, query url.Values) ([]eodBar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("eodhd rate limit: %w", err)
	}

	query.Set("api_token", c.apiKey)
	query.Set("fmt", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("eodhd request: %w", err)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eodhd %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("EODHD response")

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg)), Endpoint: endpoint}
	}

	var bars []eodBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("eodhd %s: decode: %w", endpoint, err)
	}
	return bars, nil
}

// eodBar is one row of /eod. Only the fields the estimator needs are kept.
type eodBar struct {
	Date          string       `json:"date"`
	Close         quotedPrice  `json:"close"`
	AdjustedClose *quotedPrice `json:"adjusted_close"`
}

// price prefers the split and dividend adjusted close.
func (b eodBar) price() float64 {
	if b.AdjustedClose != nil && *b.AdjustedClose > 0 {
		return float64(*b.AdjustedClose)
	}
	return float64(b.Close)
}

// GetHistory returns daily closes between from and to in ascending date
// order. A zero from or to leaves that side open. Unknown tickers and empty
// ranges are reported as interfaces.ErrNoData.
func (c *Client) GetHistory(ctx context.Context, ticker string, from, to time.Time) (*models.PriceHistory, error) {
	query := url.Values{"period": {"d"}, "order": {"a"}}
	if !from.IsZero() {
		query.Set("from", from.Format(time.DateOnly))
	}
	if !to.IsZero() {
		query.Set("to", to.Format(time.DateOnly))
	}

	bars, err := c.fetchBars(ctx, "/eod/"+url.PathEscape(ticker), query)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", ticker, interfaces.ErrNoData)
	}
	if err != nil {
		return nil, err
	}

	prices := make([]models.PriceBar, 0, len(bars))
	for _, bar := range bars {
		day, err := time.Parse(time.DateOnly, bar.Date)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Str("date", bar.Date).Msg("Skipping bar with unparseable date")
			continue
		}
		prices = append(prices, models.PriceBar{Date: day, Close: bar.price()})
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, interfaces.ErrNoData)
	}

	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })
	return &models.PriceHistory{Ticker: strings.ToUpper(ticker), Prices: prices}, nil
}
