package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/metrics"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const clampSourceView = "view"

// taxRate is applied to the subtotal of in-stock items.
var taxRate = decimal.NewFromInt(2).Div(decimal.NewFromInt(100))

type CartService interface {
	Add(ctx context.Context, owner model.Owner, productID uint, variationIDs []uint) (*AddResult, error)
	Decrement(ctx context.Context, owner model.Owner, productID uint, variationIDs ...uint) (int, error)
	RemoveItem(ctx context.Context, owner model.Owner, productID uint, variationIDs ...uint) (string, error)
	View(ctx context.Context, owner model.Owner) (*CartView, error)
	Checkout(ctx context.Context, owner model.Owner) (*CheckoutSummary, error)
	Count(ctx context.Context, owner model.Owner) (int, error)
	Consolidate(ctx context.Context, owner model.Owner) (int, error)
	RevalidateAll(ctx context.Context) (int, error)
	RefreshSnapshots(ctx context.Context) (int, error)
}

type AddResult struct {
	Item    CartItemView `json:"item"`
	Created bool         `json:"created"`
	Notice  string       `json:"notice"`
}

type CartItemView struct {
	ID           uint              `json:"id"`
	ProductID    uint              `json:"product_id"`
	ProductName  string            `json:"product_name"`
	Variations   string            `json:"variations,omitempty"`
	VariationKey string            `json:"variation_key"`
	Quantity     int               `json:"quantity"`
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	SubTotal     decimal.Decimal   `json:"sub_total"`
	StockStatus  model.StockStatus `json:"stock_status"`
	StockMessage string            `json:"stock_message"`
	IsActive     bool              `json:"is_active"`
	IsAvailable  bool              `json:"is_available"`
}

type StockWarning struct {
	Type    model.StockStatus `json:"type"`
	Message string            `json:"message"`
}

type CartView struct {
	CartID     uint                  `json:"cart_id,omitempty"`
	Items      []CartItemView        `json:"items"`
	Warnings   map[uint]StockWarning `json:"stock_warnings"` // by item id
	StockData  map[uint]int          `json:"stock_data"`     // by product id
	Notices    []string              `json:"notices"`
	Quantity   int                   `json:"quantity"`
	Total      decimal.Decimal       `json:"total"`
	Tax        decimal.Decimal       `json:"tax"`
	GrandTotal decimal.Decimal       `json:"grand_total"`
}

type CheckoutSummary struct {
	CartID     uint            `json:"cart_id,omitempty"`
	Items      []CartItemView  `json:"items"`
	Quantity   int             `json:"quantity"`
	Total      decimal.Decimal `json:"total"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type cartService struct {
	cartRepo      repository.CartRepository
	productRepo   repository.ProductRepository
	validator     StockValidator
	consolidation ConsolidationService
}

func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	validator StockValidator,
	consolidation ConsolidationService,
) CartService {
	return &cartService{
		cartRepo:      cartRepo,
		productRepo:   productRepo,
		validator:     validator,
		consolidation: consolidation,
	}
}

func (s *cartService) Add(ctx context.Context, owner model.Owner, productID uint, variationIDs []uint) (*AddResult, error) {
	if owner.IsZero() {
		return nil, ErrOwnerRequired
	}

	logger.Info("Adding item to cart", map[string]interface{}{
		"owner_key":     owner.Key(),
		"product_id":    productID,
		"variation_ids": variationIDs,
	})

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			metrics.AddRejections.WithLabelValues("product_not_found").Inc()
			return nil, ErrProductNotFound
		}
		logger.Error("Catalog lookup failed during add", err, map[string]interface{}{
			"product_id": productID,
		})
		metrics.AddRejections.WithLabelValues("out_of_stock").Inc()
		return nil, ErrOutOfStock
	}
	if product.Stock <= 0 {
		logger.Warn("Cannot add to cart: product out of stock", map[string]interface{}{
			"owner_key":  owner.Key(),
			"product_id": productID,
		})
		metrics.AddRejections.WithLabelValues("out_of_stock").Inc()
		return nil, ErrOutOfStock
	}

	variations, err := s.resolveVariations(ctx, productID, variationIDs)
	if err != nil {
		metrics.AddRejections.WithLabelValues("invalid_variation").Inc()
		return nil, err
	}

	if err := s.consolidateIfNeeded(ctx, owner); err != nil {
		return nil, err
	}

	result := &AddResult{}
	err = s.cartRepo.Transaction(ctx, func(tx repository.CartRepository) error {
		validator := s.validator.WithRepository(tx)

		cart, err := resolveOrCreateCart(ctx, tx, owner)
		if err != nil {
			return err
		}

		// The upsert increments an existing tuple in place, so concurrent
		// adds serialize on the row instead of overwriting each other.
		if err := tx.UpsertItem(ctx, validator.SnapshotOnCreate(cart, owner, product, variations)); err != nil {
			return err
		}
		key := model.VariationKey(variationKeyIDs(variations))
		item, err := tx.FindItem(ctx, cart.ID, product.ID, owner.Key(), key)
		if err != nil {
			return err
		}
		if item.Quantity > product.Stock {
			return &StockLimitError{ProductID: product.ID, Stock: product.Stock}
		}
		result.Created = item.Quantity == 1
		item.IsActive = true

		status, stock, err := validator.Revalidate(ctx, item)
		if err != nil {
			return err
		}
		if err := tx.TouchCart(ctx, cart.ID); err != nil {
			return err
		}

		logger.Debug("Cart item stock after add", map[string]interface{}{
			"cart_item_id": item.ID,
			"stock_status": status,
		})
		result.Item = newCartItemView(item, stock)
		return nil
	})
	if err != nil {
		var limitErr *StockLimitError
		if errors.As(err, &limitErr) {
			logger.Warn("Cannot add to cart: stock limit reached", map[string]interface{}{
				"owner_key":  owner.Key(),
				"product_id": productID,
				"stock":      limitErr.Stock,
			})
			metrics.AddRejections.WithLabelValues("stock_limit").Inc()
			return nil, err
		}
		logger.Error("Failed to add item to cart", err, map[string]interface{}{
			"owner_key":  owner.Key(),
			"product_id": productID,
		})
		return nil, err
	}

	result.Notice = fmt.Sprintf("%s added to cart.", product.Name)
	logger.Info("Item added to cart", map[string]interface{}{
		"owner_key":    owner.Key(),
		"product_id":   productID,
		"cart_item_id": result.Item.ID,
		"quantity":     result.Item.Quantity,
	})
	return result, nil
}

// Decrement lowers the item quantity by one, deleting the item at one. It
// returns the remaining quantity; a missing cart or item is a no-op.
func (s *cartService) Decrement(ctx context.Context, owner model.Owner, productID uint, variationIDs ...uint) (int, error) {
	if owner.IsZero() {
		return 0, ErrOwnerRequired
	}

	remaining := 0
	err := s.withCanonicalItem(ctx, owner, productID, variationIDs, func(tx repository.CartRepository, item *model.CartItem) error {
		if item.Quantity > 1 {
			item.Quantity--
			if _, _, err := s.validator.WithRepository(tx).Revalidate(ctx, item); err != nil {
				return err
			}
			remaining = item.Quantity
			return nil
		}
		return tx.DeleteItem(ctx, item.ID)
	})
	if err != nil {
		logger.Error("Failed to decrement cart item", err, map[string]interface{}{
			"owner_key":  owner.Key(),
			"product_id": productID,
		})
		return 0, err
	}
	return remaining, nil
}

// RemoveItem deletes the item regardless of quantity and returns the notice
// to show, empty when nothing was removed.
func (s *cartService) RemoveItem(ctx context.Context, owner model.Owner, productID uint, variationIDs ...uint) (string, error) {
	if owner.IsZero() {
		return "", ErrOwnerRequired
	}

	notice := ""
	err := s.withCanonicalItem(ctx, owner, productID, variationIDs, func(tx repository.CartRepository, item *model.CartItem) error {
		if err := tx.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		notice = fmt.Sprintf("%s removed from cart.", item.Product.Name)
		return nil
	})
	if err != nil {
		logger.Error("Failed to remove cart item", err, map[string]interface{}{
			"owner_key":  owner.Key(),
			"product_id": productID,
		})
		return "", err
	}

	if notice != "" {
		logger.Info("Cart item removed", map[string]interface{}{
			"owner_key":  owner.Key(),
			"product_id": productID,
		})
	}
	return notice, nil
}

func (s *cartService) View(ctx context.Context, owner model.Owner) (*CartView, error) {
	view := &CartView{
		Items:      []CartItemView{},
		Warnings:   map[uint]StockWarning{},
		StockData:  map[uint]int{},
		Notices:    []string{},
		Total:      decimal.Zero,
		Tax:        decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	if owner.IsZero() {
		return view, nil
	}

	cart, err := s.canonicalCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return view, nil
	}
	view.CartID = cart.ID

	items, err := s.cartRepo.FindActiveItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for i := range items {
		item := &items[i]

		status, stock, err := s.validator.Revalidate(ctx, item)
		if err != nil {
			return nil, err
		}
		view.StockData[item.ProductID] = stock

		switch status {
		case model.StockOutOfStock:
			view.Warnings[item.ID] = StockWarning{Type: status, Message: item.StockMessage(stock)}
			item.IsActive = false
			if err := s.cartRepo.UpdateItem(ctx, item); err != nil {
				return nil, err
			}
		case model.StockInsufficientStock:
			message := item.StockMessage(stock)
			view.Warnings[item.ID] = StockWarning{Type: status, Message: message}
			view.Notices = append(view.Notices, fmt.Sprintf("%s: %s", item.Product.Name, message))
			if _, err := s.validator.AdjustToStock(ctx, item, clampSourceView); err != nil {
				return nil, err
			}
		}

		if stock > 0 && item.IsActive {
			total = total.Add(item.SubTotal())
			view.Quantity += item.Quantity
		}
		view.Items = append(view.Items, newCartItemView(item, stock))
	}

	view.Total, view.Tax, view.GrandTotal = totals(total)
	return view, nil
}

func (s *cartService) Checkout(ctx context.Context, owner model.Owner) (*CheckoutSummary, error) {
	summary := &CheckoutSummary{
		Items:      []CartItemView{},
		Total:      decimal.Zero,
		Tax:        decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	if owner.IsZero() {
		return summary, nil
	}

	cart, err := s.canonicalCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return summary, nil
	}
	summary.CartID = cart.ID

	items, err := s.cartRepo.FindActiveItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for i := range items {
		item := &items[i]
		if !item.IsAvailable {
			continue
		}

		status, stock, err := s.validator.Revalidate(ctx, item)
		if err != nil {
			return nil, err
		}
		if status != model.StockAvailable {
			logger.Warn("Checkout blocked by unavailable item", map[string]interface{}{
				"owner_key":    owner.Key(),
				"product_id":   item.ProductID,
				"stock_status": status,
				"stock":        stock,
			})
			metrics.CheckoutBlocks.WithLabelValues(string(status)).Inc()
			return nil, &ItemUnavailableError{
				ProductID:   item.ProductID,
				ProductName: item.Product.Name,
				Status:      status,
			}
		}

		total = total.Add(item.SubTotal())
		summary.Quantity += item.Quantity
		summary.Items = append(summary.Items, newCartItemView(item, stock))
	}

	summary.Total, summary.Tax, summary.GrandTotal = totals(total)
	logger.Info("Checkout summary built", map[string]interface{}{
		"owner_key":   owner.Key(),
		"cart_id":     cart.ID,
		"quantity":    summary.Quantity,
		"grand_total": summary.GrandTotal.StringFixed(2),
	})
	return summary, nil
}

// Count sums the quantities of the owner's active items.
func (s *cartService) Count(ctx context.Context, owner model.Owner) (int, error) {
	if owner.IsZero() {
		return 0, nil
	}

	cart, err := s.canonicalCart(ctx, owner)
	if err != nil || cart == nil {
		return 0, err
	}

	items, err := s.cartRepo.FindActiveItemsByCart(ctx, cart.ID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count, nil
}

func (s *cartService) Consolidate(ctx context.Context, owner model.Owner) (int, error) {
	return s.consolidation.Consolidate(ctx, owner)
}

// RevalidateAll recomputes the stock status of every stored item and
// returns how many changed.
func (s *cartService) RevalidateAll(ctx context.Context) (int, error) {
	items, err := s.cartRepo.FindAllItems(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range items {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		item := &items[i]
		status, available := item.StockStatus, item.IsAvailable

		newStatus, _ := s.validator.CheckAvailability(ctx, item)
		if newStatus == status && item.IsAvailable == available {
			continue
		}
		if err := s.cartRepo.UpdateItem(ctx, item); err != nil {
			return updated, err
		}
		updated++
	}

	logger.Info("Stock availability rechecked", map[string]interface{}{
		"items":   len(items),
		"updated": updated,
	})
	return updated, nil
}

// RefreshSnapshots rewrites the price and stock snapshots of every stored
// item from the live catalog. Items whose product is gone are left alone.
func (s *cartService) RefreshSnapshots(ctx context.Context) (int, error) {
	items, err := s.cartRepo.FindAllItems(ctx)
	if err != nil {
		return 0, err
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.FindByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range items {
		item := &items[i]
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		if item.PriceAtAddition.Equal(product.Price) && item.StockAtAddition == product.Stock {
			continue
		}
		if err := s.cartRepo.RefreshSnapshots(ctx, item, &product); err != nil {
			return refreshed, err
		}
		refreshed++
	}

	logger.Info("Cart item snapshots refreshed", map[string]interface{}{
		"items":     len(items),
		"refreshed": refreshed,
	})
	return refreshed, nil
}

func (s *cartService) resolveVariations(ctx context.Context, productID uint, ids []uint) ([]model.Variation, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	variations, err := s.productRepo.FindVariations(ctx, productID, unique)
	if err != nil {
		return nil, err
	}
	if len(variations) != len(unique) {
		logger.Warn("Variation does not belong to product", map[string]interface{}{
			"product_id":    productID,
			"variation_ids": ids,
		})
		return nil, ErrInvalidVariation
	}
	return variations, nil
}

// consolidateIfNeeded repairs duplicate carts before the canonical cart is
// used. A failed repair is logged; the canonical cart is still usable.
func (s *cartService) consolidateIfNeeded(ctx context.Context, owner model.Owner) error {
	count, err := s.cartRepo.CountActiveCartsByOwner(ctx, owner)
	if err != nil {
		return err
	}
	if count <= 1 {
		return nil
	}
	if _, err := s.consolidation.Consolidate(ctx, owner); err != nil {
		logger.Warn("Cart consolidation failed, continuing with canonical cart", map[string]interface{}{
			"owner_key": owner.Key(),
			"error":     err.Error(),
		})
	}
	return nil
}

// canonicalCart consolidates and returns the owner's cart, nil when none.
func (s *cartService) canonicalCart(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if err := s.consolidateIfNeeded(ctx, owner); err != nil {
		return nil, err
	}
	carts, err := s.cartRepo.FindActiveCartsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, nil
	}
	return &carts[0], nil
}

// withCanonicalItem runs fn in a transaction on the owner's item for
// product and variations. A missing cart or item skips fn.
func (s *cartService) withCanonicalItem(ctx context.Context, owner model.Owner, productID uint, variationIDs []uint, fn func(tx repository.CartRepository, item *model.CartItem) error) error {
	cart, err := s.canonicalCart(ctx, owner)
	if err != nil || cart == nil {
		return err
	}

	return s.cartRepo.Transaction(ctx, func(tx repository.CartRepository) error {
		item, err := tx.FindItem(ctx, cart.ID, productID, owner.Key(), model.VariationKey(variationIDs))
		if err != nil {
			if errors.Is(err, repository.ErrCartItemNotFound) {
				return nil
			}
			return err
		}
		if err := fn(tx, item); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cart.ID)
	})
}

// resolveOrCreateCart returns the owner's canonical cart, creating it when
// absent. Losing a creation race to the single active cart index re-reads
// the winner.
func resolveOrCreateCart(ctx context.Context, tx repository.CartRepository, owner model.Owner) (*model.Cart, error) {
	carts, err := tx.FindActiveCartsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(carts) > 0 {
		return &carts[0], nil
	}

	cart := model.NewCart(owner)
	created, err := tx.CreateCartIfAbsent(ctx, cart)
	if err != nil {
		return nil, err
	}
	if created {
		return cart, nil
	}

	carts, err = tx.FindActiveCartsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, repository.ErrCartNotFound
	}
	return &carts[0], nil
}

func newCartItemView(item *model.CartItem, stock int) CartItemView {
	return CartItemView{
		ID:           item.ID,
		ProductID:    item.ProductID,
		ProductName:  item.Product.Name,
		Variations:   item.VariationsDisplay(),
		VariationKey: item.VariationKey,
		Quantity:     item.Quantity,
		UnitPrice:    item.PriceAtAddition,
		SubTotal:     item.SubTotal(),
		StockStatus:  item.StockStatus,
		StockMessage: item.StockMessage(stock),
		IsActive:     item.IsActive,
		IsAvailable:  item.IsAvailable,
	}
}

// totals returns subtotal, 2% tax and grand total rounded to cents.
func totals(subtotal decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	tax := subtotal.Mul(taxRate).Round(2)
	return subtotal.Round(2), tax, subtotal.Add(tax).Round(2)
}

func variationKeyIDs(variations []model.Variation) []uint {
	ids := make([]uint, 0, len(variations))
	for _, v := range variations {
		ids = append(ids, v.ID)
	}
	return ids
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
