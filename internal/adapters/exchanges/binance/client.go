package binance

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"oipulse/internal/adapters/exchanges"
	"oipulse/internal/adapters/exchanges/ratelimit"
	"oipulse/internal/adapters/exchanges/retry"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/metrics"
	"oipulse/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	futuresBaseURL     = "https://fapi.binance.com"
	defaultHTTPTimeout = 10 * time.Second
)

// Config configures the Binance futures client.
type Config struct {
	BaseURL           string
	RequestsPerMinute int

	HTTPClient *http.Client
}

// NewClient creates a Binance USDT-M futures adapter.
func NewClient(cfg Config) exchanges.Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = futuresBaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 1200
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    ratelimit.NewLimiter("binance", cfg.RequestsPerMinute),
		retry:      retry.New(retry.DefaultConfig()),
	}
}

type client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	retry      *retry.Middleware
}

var _ exchanges.Provider = (*client)(nil)

func (c *client) Name() snapshot.Exchange {
	return snapshot.ExchangeBinance
}

func (c *client) FetchOpenInterest(ctx context.Context, symbol string) (*exchanges.OpenInterest, error) {
	params := url.Values{"symbol": []string{symbol}}

	var data []byte
	err := c.retry.Do(ctx, func() error {
		var reqErr error
		data, reqErr = c.get(ctx, "/fapi/v1/openInterest", params)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		Symbol       string `json:"symbol"`
		OpenInterest string `json:"openInterest"`
		Time         int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode open interest response")
	}

	amount, err := decimal.NewFromString(res.OpenInterest)
	if err != nil {
		return nil, errors.Wrapf(err, "parse open interest %q for %s", res.OpenInterest, symbol)
	}

	captured := time.UnixMilli(res.Time)
	if res.Time == 0 {
		captured = time.Now().UTC()
	}

	return &exchanges.OpenInterest{
		Symbol:    res.Symbol,
		Amount:    amount,
		Timestamp: captured,
	}, nil
}

func (c *client) FetchTradableSymbols(ctx context.Context) ([]string, error) {
	var data []byte
	err := c.retry.Do(ctx, func() error {
		var reqErr error
		data, reqErr = c.get(ctx, "/fapi/v1/exchangeInfo", nil)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
			QuoteAsset   string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode exchange info response")
	}

	symbols := make([]string, 0, len(res.Symbols))
	for _, s := range res.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if s.ContractType != "" && s.ContractType != "PERPETUAL" {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}

	return symbols, nil
}

func (c *client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	start := time.Now()
	payload, err := c.doGet(ctx, path, params)
	metrics.RecordExchangeAPICall("binance", path, time.Since(start), err)
	return payload, err
}

func (c *client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL = reqURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "binance %s", path)
		}
		return nil, errors.Wrapf(errors.ErrExchangeUnavailable, "binance %s: %v", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read binance response")
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, payload)
	}

	return payload, nil
}

func parseAPIError(status int, payload []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Code != 0 {
		switch apiErr.Code {
		case -1003:
			return errors.Wrapf(errors.ErrRateLimited, "binance: %s", apiErr.Msg)
		case -1121, -4108:
			return errors.Wrapf(errors.ErrInvalidSymbol, "binance: %s", apiErr.Msg)
		}
		return errors.Newf("binance error %d: %s", apiErr.Code, apiErr.Msg)
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return errors.Wrapf(errors.ErrRateLimited, "binance http %d", status)
	case status >= 500:
		return errors.Wrapf(errors.ErrExchangeUnavailable, "binance http %d", status)
	}
	return errors.Newf("binance http %d: %s", status, string(payload))
}
