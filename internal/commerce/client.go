package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
	"github.com/avolkov-go/pizzeria-bot/pkg/redis"
)

// Client talks to the Elastic Path API. All calls go through the circuit
// breaker; idempotent reads are additionally retried with backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenSource
	breaker    *apperrors.CircuitBreaker
	log        *slog.Logger
}

// New constructs a commerce client with the Redis-cached token source.
func New(cfg config.ElasticPathConfig, cache *redis.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     NewTokenSource(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, httpClient, cache),
		breaker:    apperrors.NewCircuitBreaker(),
		log:        log,
	}
}

// HealthCheck verifies the API is reachable by requesting a token.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func cartRef(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// ListProducts returns the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var payload productsResponse
	if err := c.read(ctx, "/v2/products", &payload); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(payload.Data))
	for _, p := range payload.Data {
		products = append(products, p.toProduct())
	}
	return products, nil
}

// GetProduct returns one catalog item by identifier.
func (c *Client) GetProduct(ctx context.Context, productID string) (Product, error) {
	var payload productResponse
	if err := c.read(ctx, "/v2/products/"+productID, &payload); err != nil {
		return Product{}, err
	}
	return payload.Data.toProduct(), nil
}

// GetProductImageURL resolves the product's main image file to a public URL.
func (c *Client) GetProductImageURL(ctx context.Context, fileID string) (string, error) {
	var payload fileResponse
	if err := c.read(ctx, "/v2/files/"+fileID, &payload); err != nil {
		return "", err
	}
	return payload.Data.Link.Href, nil
}

// AddToCart puts one unit of the product into the chat's cart. Quantity
// accumulation or deduplication is the backend's policy.
func (c *Client) AddToCart(ctx context.Context, chatID int64, productID string) error {
	body := map[string]any{
		"data": map[string]any{
			"id":       productID,
			"type":     "cart_item",
			"quantity": 1,
		},
	}
	return c.do(ctx, http.MethodPost, "/v2/carts/"+cartRef(chatID)+"/items", body, nil)
}

// RemoveFromCart deletes a cart line.
func (c *Client) RemoveFromCart(ctx context.Context, chatID int64, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/v2/carts/"+cartRef(chatID)+"/items/"+itemID, nil, nil)
}

// GetCart returns the chat's cart lines.
func (c *Client) GetCart(ctx context.Context, chatID int64) ([]CartLine, error) {
	var payload cartItemsResponse
	if err := c.read(ctx, "/v2/carts/"+cartRef(chatID)+"/items", &payload); err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(payload.Data))
	for _, item := range payload.Data {
		lines = append(lines, item.toCartLine())
	}
	return lines, nil
}

// GetCartTotal returns the cart total as the backend prices it.
func (c *Client) GetCartTotal(ctx context.Context, chatID int64) (Amount, error) {
	var payload cartResponse
	if err := c.read(ctx, "/v2/carts/"+cartRef(chatID), &payload); err != nil {
		return Amount{}, err
	}

	withTax := payload.Data.Meta.DisplayPrice.WithTax
	return Amount{Kopecks: withTax.Amount, Formatted: withTax.Formatted}, nil
}

// ClearCart deletes the whole cart after a completed payment.
func (c *Client) ClearCart(ctx context.Context, chatID int64) error {
	return c.do(ctx, http.MethodDelete, "/v2/carts/"+cartRef(chatID), nil, nil)
}

// CreateCustomer registers the customer record by email.
func (c *Client) CreateCustomer(ctx context.Context, chatID int64, email string) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type":  "customer",
			"name":  fmt.Sprintf("telegram-%d", chatID),
			"email": email,
		},
	}

	var payload createdResponse
	if err := c.do(ctx, http.MethodPost, "/v2/customers", body, &payload); err != nil {
		return "", err
	}
	return payload.Data.ID, nil
}

// SaveCustomerAddress stores the customer coordinate as a flow entry and
// returns the entry reference.
func (c *Client) SaveCustomerAddress(ctx context.Context, chatID int64, coord geo.Coordinate) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type":        "entry",
			"telegram_id": chatID,
			"latitude":    coord.Lat,
			"longitude":   coord.Lon,
		},
	}

	var payload createdResponse
	if err := c.do(ctx, http.MethodPost, "/v2/flows/customer_address/entries", body, &payload); err != nil {
		return "", err
	}
	return payload.Data.ID, nil
}

// ListPizzerias returns every pizzeria flow entry with its coordinate and courier.
func (c *Client) ListPizzerias(ctx context.Context) ([]Pizzeria, error) {
	var payload pizzeriasResponse
	if err := c.read(ctx, "/v2/flows/pizzeria/entries", &payload); err != nil {
		return nil, err
	}

	pizzerias := make([]Pizzeria, 0, len(payload.Data))
	for _, entry := range payload.Data {
		pizzerias = append(pizzerias, entry.toPizzeria())
	}
	return pizzerias, nil
}

// GetPizzeria returns one pizzeria flow entry.
func (c *Client) GetPizzeria(ctx context.Context, pizzeriaID string) (Pizzeria, error) {
	var payload pizzeriaResponse
	if err := c.read(ctx, "/v2/flows/pizzeria/entries/"+pizzeriaID, &payload); err != nil {
		return Pizzeria{}, err
	}
	return payload.Data.toPizzeria(), nil
}

// IssueInvoice records the pending payment as an order flow entry and returns
// its reference. Not retried: the create is not idempotent.
func (c *Client) IssueInvoice(ctx context.Context, chatID int64, amount Amount) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type":        "entry",
			"telegram_id": chatID,
			"amount":      amount.Kopecks,
		},
	}

	var payload createdResponse
	if err := c.do(ctx, http.MethodPost, "/v2/flows/order/entries", body, &payload); err != nil {
		return "", err
	}
	return payload.Data.ID, nil
}

// read performs an idempotent GET with retries.
func (c *Client) read(ctx context.Context, path string, out any) error {
	return apperrors.WithRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.breaker.Call(func() error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request body: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewBackendUnavailableError("commerce API", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return apperrors.NewBackendRejectedError("commerce API", resp.StatusCode, string(snippet))
		}

		if out == nil {
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewBackendUnavailableError("commerce API", err)
		}
		return nil
	})
}
