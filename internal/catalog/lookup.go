package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

var ErrProductNotFound = errors.New("product not found")

// Lookup resolves a product id to its current price, MRP and stock.
type Lookup interface {
	Lookup(ctx context.Context, productID string) (*models.Product, error)
}

type productReader interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

// StoreLookup reads products from the local store.
type StoreLookup struct {
	products productReader
}

func NewStoreLookup(products productReader) *StoreLookup {
	return &StoreLookup{products: products}
}

func (l *StoreLookup) Lookup(ctx context.Context, productID string) (*models.Product, error) {
	product, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to look up product %s: %w", productID, err)
	}
	return product, nil
}
