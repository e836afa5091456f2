package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
)

// Source provides an exchange rate from a base currency to a quote currency.
type Source interface {
	Rate(ctx context.Context, base, quote string) (float64, error)
}

// Convert applies a rate to an integer cent amount, rounding half up.
func Convert(amountCents int64, rate float64) int64 {
	return int64(float64(amountCents)*rate + 0.5)
}

// HTTPSource fetches rates from an external quotation endpoint. The endpoint
// returns the full rate table for a base currency in one response.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type rateResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (s *HTTPSource) Rate(ctx context.Context, base, quote string) (float64, error) {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	if base == quote {
		return 1, nil
	}

	url := fmt.Sprintf("%s/latest?base=%s", s.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate fetch %s/%s: %v: %w", base, quote, err, domain.ErrExternalFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate fetch %s/%s: status %d: %w", base, quote, resp.StatusCode, domain.ErrExternalFailure)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("rate fetch %s/%s: decode: %v: %w", base, quote, err, domain.ErrExternalFailure)
	}
	rate, ok := body.Rates[quote]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no rate for %s/%s: %w", base, quote, domain.ErrNotFound)
	}
	return rate, nil
}

var _ Source = (*HTTPSource)(nil)
