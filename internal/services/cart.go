package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

// maxCartQuantity caps a single cart line.
const maxCartQuantity = 100

type CartService struct {
	store   store.Store
	catalog catalog.Lookup
	pricer  orderPricer
	now     func() time.Time
	logger  *slog.Logger
}

func NewCartService(s store.Store, lookup catalog.Lookup, pricer orderPricer, logger *slog.Logger) *CartService {
	return &CartService{store: s, catalog: lookup, pricer: pricer, now: time.Now, logger: logger}
}

func (s *CartService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CartLine struct {
	models.OrderItem
	InStock bool `json:"inStock"`
}

type CartView struct {
	Items   []CartLine     `json:"items"`
	Summary models.Summary `json:"summary"`
}

// Get prices the cart at current catalog prices. Lines whose product has
// disappeared are left out of the view.
func (s *CartService) Get(ctx context.Context, userID string) (*CartView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	logger := s.loggerFromContext(ctx)

	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		logger.Error("failed to load cart", "error", err, "user_id", userID)
		return nil, internalError(err)
	}

	lines := make([]CartLine, 0, len(cart))
	items := make([]models.OrderItem, 0, len(cart))
	for _, entry := range cart {
		product, err := s.catalog.Lookup(ctx, entry.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				logger.Info("cart references unknown product", "user_id", userID, "product_id", entry.ProductID)
				continue
			}
			return nil, internalError(err)
		}
		item := models.OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.Image,
			Quantity:     entry.Quantity,
			UnitPrice:    product.Price,
			UnitMRP:      max(product.MRP, product.Price),
		}
		lines = append(lines, CartLine{OrderItem: item, InStock: product.InStock && product.Stock >= entry.Quantity})
		items = append(items, item)
	}
	return &CartView{Items: lines, Summary: s.pricer.Price(items, 0)}, nil
}

type SetCartItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"min=0,max=100"`
}

// SetItem sets the quantity of a cart line. A quantity of zero removes it.
func (s *CartService) SetItem(ctx context.Context, userID string, req SetCartItemRequest) (*CartView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" || req.Quantity < 0 || req.Quantity > maxCartQuantity {
		return nil, newError(CodeValidation, fmt.Sprintf("Quantity must be between 0 and %d", maxCartQuantity), nil)
	}

	if req.Quantity > 0 {
		product, err := s.catalog.Lookup(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, newError(CodeProductNotFound, fmt.Sprintf("Product %s was not found", productID), err).
					withMeta("productId", productID)
			}
			return nil, internalError(err)
		}
		if !product.InStock || product.Stock < req.Quantity {
			return nil, newError(CodeInsufficientStock, fmt.Sprintf("Only %d of %s available", max(product.Stock, 0), product.Name), nil).
				withMeta("productId", productID)
		}
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetCartItem(ctx, models.CartItem{
			UserID:    userID,
			ProductID: productID,
			Quantity:  req.Quantity,
			AddedAt:   s.now().UTC(),
		})
	})
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to update cart", "error", err, "user_id", userID)
		return nil, internalError(err)
	}
	return s.Get(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*CartView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.RemoveCartItem(ctx, userID, strings.TrimSpace(productID))
	})
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to remove cart item", "error", err, "user_id", userID)
		return nil, internalError(err)
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return newError(CodeUnauthorized, "Authentication required", nil)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ClearCart(ctx, userID)
	})
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to clear cart", "error", err, "user_id", userID)
		return internalError(err)
	}
	return nil
}
