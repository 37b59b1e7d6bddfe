// Package billing клиент платёжной системы: формат событий вебхука, проверка
// подписи и запросы только на чтение (клиенты по email, подписки клиента).
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client REST-клиент платёжной системы.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент с bearer-ключом.
func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListCustomersByEmail возвращает клиентов с данным email.
func (c *Client) ListCustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	const op = "billing.ListCustomersByEmail"
	var resp listResponse[Customer]
	if err := c.get(ctx, "/customers", url.Values{"email": {email}}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Data, nil
}

// ListSubscriptionsByCustomer возвращает все подписки клиента.
func (c *Client) ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]Subscription, error) {
	const op = "billing.ListSubscriptionsByCustomer"
	var resp listResponse[Subscription]
	q := url.Values{"customer": {customerID}, "status": {"all"}}
	if err := c.get(ctx, "/subscriptions", q, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Data, nil
}
