// Package yahoo provides a client for the Yahoo Finance chart API
package yahoo

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

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// Yahoo rejects requests without a browser-ish or curl user agent
	userAgent = "curl/8"
)

// Client implements interfaces.PriceClient against /v8/finance/chart
type Client struct {
	baseURL    string
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

// WithRateLimit sets the rate limit
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

// NewClient creates a new Yahoo chart client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
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

// APIError is a failed chart request: a non-200 status or a chart.error body.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Name identifies the provider
func (c *Client) Name() string {
	return "yahoo"
}

// chartResponse is the subset of the v8 chart payload we read. Closes are
// pointers because Yahoo emits null for halted sessions.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// bars pairs timestamps with closes, skipping sessions Yahoo reports as null.
func (r chartResponse) bars() []models.PriceBar {
	if len(r.Chart.Result) == 0 || len(r.Chart.Result[0].Indicators.Quote) == 0 {
		return nil
	}
	res := r.Chart.Result[0]
	closes := res.Indicators.Quote[0].Close
	out := make([]models.PriceBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		out = append(out, models.PriceBar{Date: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// GetHistory returns daily closes between from and to, oldest first.
// Unknown symbols and empty windows are interfaces.ErrNoData.
func (c *Client) GetHistory(ctx context.Context, ticker string, from, to time.Time) (*models.PriceHistory, error) {
	endpoint := "/v8/finance/chart/" + url.PathEscape(ticker)
	query := url.Values{
		"period1":  {strconv.FormatInt(from.Unix(), 10)},
		"period2":  {strconv.FormatInt(to.Unix(), 10)},
		"interval": {"1d"},
		"events":   {"history"},
	}

	chart, err := c.fetchChart(ctx, endpoint, query)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoData) {
			return nil, fmt.Errorf("%s: %w", ticker, err)
		}
		return nil, err
	}

	prices := chart.bars()
	if len(prices) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, interfaces.ErrNoData)
	}
	return &models.PriceHistory{Ticker: strings.ToUpper(ticker), Prices: prices}, nil
}

// fetchChart performs one rate-limited chart request. A 404 is reported as
// interfaces.ErrNoData and any other failure as *APIError.
func (c *Client) fetchChart(ctx context.Context, endpoint string, query url.Values) (*chartResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yahoo rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("Yahoo chart response")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, interfaces.ErrNoData
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg)), Endpoint: endpoint}
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("yahoo %s: decode: %w", endpoint, err)
	}
	if e := chart.Chart.Error; e != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: e.Code + ": " + e.Description, Endpoint: endpoint}
	}
	return &chart, nil
}
