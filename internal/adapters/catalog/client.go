package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"oipulse/internal/domain/catalog"
	"oipulse/pkg/errors"
)

const (
	defaultBaseURL     = "https://pro-api.coinmarketcap.com"
	defaultHTTPTimeout = 15 * time.Second
)

// Config configures the CoinMarketCap listings client.
type Config struct {
	APIKey  string
	BaseURL string
	Limit   int

	HTTPClient *http.Client
}

// Client fetches market-cap ranked instrument listings
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a listings client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidationError("api_key", "required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// FetchListings returns the top instruments ranked by market cap.
func (c *Client) FetchListings(ctx context.Context) (*catalog.Listing, error) {
	params := url.Values{
		"limit":   []string{strconv.Itoa(c.cfg.Limit)},
		"convert": []string{"USD"},
		"sort":    []string{"market_cap"},
	}

	reqURL := c.cfg.BaseURL + "/v1/cryptocurrency/listings/latest?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrTimeout, "catalog listings")
		}
		return nil, errors.Wrapf(errors.ErrUnavailable, "catalog listings: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read listings response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrRateLimited, "catalog http %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrUnavailable, "catalog http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.Newf("catalog http %d: %s", resp.StatusCode, string(body))
	}

	var res struct {
		Data []struct {
			Symbol  string `json:"symbol"`
			CMCRank int    `json:"cmc_rank"`
			Quote   struct {
				USD struct {
					MarketCap float64 `json:"market_cap"`
					Volume24h float64 `json:"volume_24h"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decode listings response")
	}

	instruments := make([]catalog.Instrument, 0, len(res.Data))
	for _, item := range res.Data {
		if item.Symbol == "" {
			continue
		}
		instruments = append(instruments, catalog.Instrument{
			Symbol:    item.Symbol,
			Rank:      item.CMCRank,
			MarketCap: item.Quote.USD.MarketCap,
			Volume24h: item.Quote.USD.Volume24h,
		})
	}

	return &catalog.Listing{
		Instruments: instruments,
		FetchedAt:   time.Now().UTC(),
	}, nil
}
