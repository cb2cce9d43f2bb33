// Package payment wraps the downstream payment-preference call. The gateway
// protocol is opaque to the checkout core: it receives the order reference
// and total and answers with a redirect URL.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercatto/checkout-service/internal/domain"
)

// Preference is the payment gateway's answer: where to send the buyer.
type Preference struct {
	RedirectURL string `json:"redirect_url"`
}

// Client creates a payment preference for a freshly created order.
type Client interface {
	CreatePreference(ctx context.Context, order *domain.Order) (*Preference, error)
}

type preferenceRequest struct {
	OrderID string           `json:"order_id"`
	Items   []preferenceItem `json:"items"`
	Total   decimal.Decimal  `json:"total"`
}

type preferenceItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// HTTPClient posts preference requests to the gateway URL.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreatePreference(ctx context.Context, order *domain.Order) (*Preference, error) {
	req := preferenceRequest{
		OrderID: order.OrderNumber,
		Total:   order.Total,
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, preferenceItem{
			Title:     item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal preference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build preference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var pref Preference
	if err := json.NewDecoder(resp.Body).Decode(&pref); err != nil {
		return nil, fmt.Errorf("decode preference response: %w", err)
	}
	return &pref, nil
}
