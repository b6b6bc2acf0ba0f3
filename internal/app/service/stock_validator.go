package service

import (
	"context"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/metrics"
	"github.com/kartshart/kartshart-backend/pkg/logger"
)

// StockValidator keeps cart item availability in line with live catalog
// stock. It reads the catalog and never writes to it.
type StockValidator interface {
	// CurrentStock returns live stock for productID. Catalog failures
	// count as no stock.
	CurrentStock(ctx context.Context, productID uint) int
	CheckAvailability(ctx context.Context, item *model.CartItem) (model.StockStatus, int)
	Revalidate(ctx context.Context, item *model.CartItem) (model.StockStatus, int, error)
	AdjustToStock(ctx context.Context, item *model.CartItem, source string) (bool, error)
	SnapshotOnCreate(cart *model.Cart, owner model.Owner, product *model.Product, variations []model.Variation) *model.CartItem
	// WithRepository returns a validator persisting through repo, typically
	// a transaction-bound store.
	WithRepository(repo repository.CartRepository) StockValidator
}

type stockValidator struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewStockValidator(cartRepo repository.CartRepository, productRepo repository.ProductRepository) StockValidator {
	return &stockValidator{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

func (v *stockValidator) WithRepository(repo repository.CartRepository) StockValidator {
	return &stockValidator{
		cartRepo:    repo,
		productRepo: v.productRepo,
	}
}

func (v *stockValidator) CurrentStock(ctx context.Context, productID uint) int {
	product, err := v.productRepo.FindByID(ctx, productID)
	if err != nil {
		logger.Warn("Catalog lookup failed, treating product as out of stock", map[string]interface{}{
			"product_id": productID,
			"error":      err.Error(),
		})
		return 0
	}
	return product.Stock
}

func (v *stockValidator) CheckAvailability(ctx context.Context, item *model.CartItem) (model.StockStatus, int) {
	stock := v.CurrentStock(ctx, item.ProductID)
	return item.ApplyStock(stock), stock
}

func (v *stockValidator) Revalidate(ctx context.Context, item *model.CartItem) (model.StockStatus, int, error) {
	status, stock := v.CheckAvailability(ctx, item)
	if err := v.cartRepo.UpdateItem(ctx, item); err != nil {
		logger.Error("Failed to persist stock status", err, map[string]interface{}{
			"cart_item_id": item.ID,
			"stock_status": status,
		})
		return status, stock, err
	}

	logger.Debug("Cart item revalidated", map[string]interface{}{
		"cart_item_id": item.ID,
		"product_id":   item.ProductID,
		"quantity":     item.Quantity,
		"stock":        stock,
		"stock_status": status,
	})
	return status, stock, nil
}

// AdjustToStock clamps the quantity to positive stock and persists the
// result. Zero stock leaves the quantity alone; the item is then out of
// stock rather than emptied.
func (v *stockValidator) AdjustToStock(ctx context.Context, item *model.CartItem, source string) (bool, error) {
	stock := v.CurrentStock(ctx, item.ProductID)
	if stock <= 0 || item.Quantity <= stock {
		item.ApplyStock(stock)
		return false, nil
	}

	logger.Info("Clamping cart item quantity to stock", map[string]interface{}{
		"cart_item_id": item.ID,
		"product_id":   item.ProductID,
		"quantity":     item.Quantity,
		"stock":        stock,
		"source":       source,
	})

	item.Quantity = stock
	item.ApplyStock(stock)
	if item.ID != 0 {
		if err := v.cartRepo.UpdateItem(ctx, item); err != nil {
			logger.Error("Failed to persist clamped quantity", err, map[string]interface{}{
				"cart_item_id": item.ID,
			})
			return true, err
		}
	}
	metrics.StockClamps.WithLabelValues(source).Inc()
	return true, nil
}

func (v *stockValidator) SnapshotOnCreate(cart *model.Cart, owner model.Owner, product *model.Product, variations []model.Variation) *model.CartItem {
	item := model.NewCartItem(cart, owner, product, variations)
	item.ApplyStock(product.Stock)
	return item
}
