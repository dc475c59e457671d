package bybit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
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
	defaultBaseURL     = "https://api.bybit.com"
	defaultHTTPTimeout = 10 * time.Second

	retCodeInvalidSymbol = 10001
	retCodeRateLimited   = 10006
)

// Config configures the Bybit linear-perpetuals client.
type Config struct {
	BaseURL           string
	RequestsPerMinute int

	HTTPClient *http.Client
}

// NewClient creates a Bybit v5 linear adapter.
func NewClient(cfg Config) exchanges.Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    ratelimit.NewLimiter("bybit", cfg.RequestsPerMinute),
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
	return snapshot.ExchangeBybit
}

func (c *client) FetchOpenInterest(ctx context.Context, symbol string) (*exchanges.OpenInterest, error) {
	params := url.Values{
		"category":     []string{"linear"},
		"symbol":       []string{symbol},
		"intervalTime": []string{"5min"},
		"limit":        []string{"1"},
	}

	var res struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := c.publicGet(ctx, "/v5/market/open-interest", params, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, errors.Wrapf(errors.ErrSymbolNotTradable, "bybit: no open interest for %s", symbol)
	}

	item := res.List[0]
	amount, err := decimal.NewFromString(item.OpenInterest)
	if err != nil {
		return nil, errors.Wrapf(err, "parse open interest %q for %s", item.OpenInterest, symbol)
	}

	ms, _ := strconv.ParseInt(item.Timestamp, 10, 64)
	captured := time.UnixMilli(ms)
	if ms == 0 {
		captured = time.Now().UTC()
	}

	return &exchanges.OpenInterest{
		Symbol:    symbol,
		Amount:    amount,
		Timestamp: captured,
	}, nil
}

func (c *client) FetchTradableSymbols(ctx context.Context) ([]string, error) {
	params := url.Values{
		"category": []string{"linear"},
		"limit":    []string{"1000"},
	}

	var res struct {
		List []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
		} `json:"list"`
	}
	if err := c.publicGet(ctx, "/v5/market/instruments-info", params, &res); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(res.List))
	for _, s := range res.List {
		if s.Status != "Trading" {
			continue
		}
		if s.ContractType != "" && s.ContractType != "LinearPerpetual" {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}

	return symbols, nil
}

func (c *client) publicGet(ctx context.Context, path string, params url.Values, target interface{}) error {
	return c.retry.Do(ctx, func() error {
		body, err := c.doRequest(ctx, path, params)
		if err != nil {
			return err
		}
		return decodeResponse(body, target)
	})
}

func (c *client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.execute(ctx, path, params)
	metrics.RecordExchangeAPICall("bybit", path, time.Since(start), err)
	return body, err
}

func (c *client) execute(ctx context.Context, path string, params url.Values) ([]byte, error) {
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
			return nil, errors.Wrapf(errors.ErrTimeout, "bybit %s", path)
		}
		return nil, errors.Wrapf(errors.ErrExchangeUnavailable, "bybit %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read bybit response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrRateLimited, "bybit http %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrExchangeUnavailable, "bybit http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.Newf("bybit http %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func decodeResponse(body []byte, target interface{}) error {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "decode bybit response")
	}
	if resp.RetCode != 0 {
		switch resp.RetCode {
		case retCodeRateLimited:
			return errors.Wrapf(errors.ErrRateLimited, "bybit: %s", resp.RetMsg)
		case retCodeInvalidSymbol:
			return errors.Wrapf(errors.ErrInvalidSymbol, "bybit: %s", resp.RetMsg)
		}
		return errors.Newf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
	}
	if target == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, target)
}
