// Package alabites wraps the commerce backend REST API that owns products,
// user accounts, and orders.
package alabites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alabites/api/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// Client calls the commerce backend over HTTP with JSON payloads.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("alabites: base url is required")
	}

	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ProductByRef fetches products matching the supplied reference (pid or object id).
// The backend query endpoint returns a list; callers take the first match.
func (c *Client) ProductByRef(ctx context.Context, ref string) (domain.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Product{}, errors.New("alabites: product ref is required")
	}

	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/products/query/"+url.PathEscape(ref), nil, &products); err != nil {
		return domain.Product{}, err
	}
	if len(products) == 0 {
		return domain.Product{}, fmt.Errorf("alabites: product %q: %w", ref, ErrNotFound)
	}
	return products[0], nil
}

// ListProducts fetches the full product catalogue.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateStock sets the absolute stock count for a product.
func (c *Client) UpdateStock(ctx context.Context, productID string, stock int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("alabites: product id is required")
	}
	payload := map[string]int{"stock": stock}
	return c.do(ctx, http.MethodPatch, "/products/"+url.PathEscape(productID)+"/stock", payload, nil)
}

// UserByEmail resolves the backend account for the supplied email address.
func (c *Client) UserByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.UserAccount{}, errors.New("alabites: email is required")
	}

	var users []domain.UserAccount
	if err := c.do(ctx, http.MethodGet, "/users/query/"+url.PathEscape(email), nil, &users); err != nil {
		return domain.UserAccount{}, err
	}
	if len(users) == 0 {
		return domain.UserAccount{}, fmt.Errorf("alabites: user %q: %w", email, ErrNotFound)
	}
	return users[0], nil
}

// SpendCurrency deducts the given amount from the user's stored balance.
func (c *Client) SpendCurrency(ctx context.Context, uid string, amount float64) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return errors.New("alabites: uid is required")
	}
	payload := map[string]float64{"amount": amount}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(uid)+"/spend-currency", payload, nil)
}

// AddTransaction appends a ledger entry to the user's transaction history.
func (c *Client) AddTransaction(ctx context.Context, uid string, txn domain.Transaction) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return errors.New("alabites: uid is required")
	}
	payload := map[string]domain.Transaction{"transaction": txn}
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(uid)+"/transaction", payload, nil)
}

// CreateOrder submits the order record for fulfilment.
func (c *Client) CreateOrder(ctx context.Context, order domain.Order) error {
	return c.do(ctx, http.MethodPost, "/orders", order, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("alabites: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("alabites: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alabites: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("alabites: read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("alabites: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(data),
			Endpoint:   method + " " + path,
		}
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("alabites: decode %s %s envelope: %w", method, path, err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("alabites: %s %s returned empty data", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("alabites: decode %s %s data: %w", method, path, err)
	}
	return nil
}

func extractMessage(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Message
}
