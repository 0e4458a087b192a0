package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Source defines the interface for fetching instrument prices.
type Source interface {
	FetchPrice(symbol string) (decimal.Decimal, error)
	Name() string
}

// HTTPSource implements Source against a REST quote endpoint.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPSource creates a source with optional proxy support.
func NewHTTPSource(baseURL, apiKey, proxyURL string) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *HTTPSource) Name() string { return "http" }

func (f *HTTPSource) FetchPrice(symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("fetch price: status %d, body: %s", resp.StatusCode, string(body))
	}
	var result struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}
	return result.Price, nil
}

// MockSource returns controllable fixed prices for development and testing.
type MockSource struct {
	Prices map[string]decimal.Decimal
	Err    error
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) FetchPrice(symbol string) (decimal.Decimal, error) {
	if m.Err != nil {
		return decimal.Zero, m.Err
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no mock price for %s", symbol)
	}
	return price, nil
}
