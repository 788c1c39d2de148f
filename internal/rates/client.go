package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/models"
)

// Client fetches quotes from exchangerate-api.com. Requests are bounded by
// the configured timeout; any failure here is a transport failure, never a
// business outcome.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type quoteResponse struct {
	Result          string                     `json:"result"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// FetchRates returns every quote against the base currency.
func (c *Client) FetchRates(ctx context.Context, base models.Currency) (map[models.Currency]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rate source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("rate source returned error status", "status", resp.StatusCode, "base", base)
		return nil, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}
	if !strings.EqualFold(body.Result, "success") {
		return nil, fmt.Errorf("rate source result %q", body.Result)
	}
	if len(body.ConversionRates) == 0 {
		return nil, errors.New("rate source returned no conversion rates")
	}

	quotes := make(map[models.Currency]decimal.Decimal, len(body.ConversionRates))
	for code, rate := range body.ConversionRates {
		quotes[models.Currency(code)] = rate
	}
	return quotes, nil
}

var _ interfaces.RateSource = (*Client)(nil)
