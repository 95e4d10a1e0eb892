package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

type PartnerConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// PartnerClient reads products from the partner catalog API using an
// OAuth2 client-credentials token.
type PartnerClient struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type partnerProduct struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Images  []string `json:"images"`
	Price   int64    `json:"price"`
	MRP     int64    `json:"mrp"`
	Stock   int      `json:"stock"`
	InStock *bool    `json:"inStock"`
}

func NewPartnerClient(cfg PartnerConfig) (*PartnerClient, error) {
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid partner catalog URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// The token endpoint and the catalog share the traced transport.
	base := observability.NewHTTPClient(timeout, baseURL.String(), cfg.TokenURL)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	client := credentials.Client(ctx)
	client.Timeout = timeout

	return &PartnerClient{
		baseURL:    baseURL,
		httpClient: client,
	}, nil
}

func (c *PartnerClient) Lookup(ctx context.Context, productID string) (*models.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrProductNotFound)
	}

	endpoint := c.baseURL.JoinPath("products", productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build partner request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partner catalog request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("partner catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload partnerProduct
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode partner product: %w", err)
	}

	product := &models.Product{
		ID:      payload.ID,
		Name:    payload.Name,
		Price:   payload.Price,
		MRP:     payload.MRP,
		Stock:   payload.Stock,
		InStock: payload.Stock > 0,
	}
	if product.ID == "" {
		product.ID = productID
	}
	if payload.InStock != nil {
		product.InStock = *payload.InStock
	}
	if len(payload.Images) > 0 {
		product.Image = payload.Images[0]
	}
	if product.MRP < product.Price {
		product.MRP = product.Price
	}
	return product, nil
}
