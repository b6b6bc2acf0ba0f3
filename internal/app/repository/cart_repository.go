package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCartNotFound      = fmt.Errorf("cart not found: %w", gorm.ErrRecordNotFound)
	ErrCartItemNotFound  = fmt.Errorf("cart item not found: %w", gorm.ErrRecordNotFound)
	ErrDuplicateCartItem = errors.New("cart item already exists for cart, product, owner and variations")
)

// snapshotColumns are write-once; updates never touch them.
var snapshotColumns = []string{"price_at_addition", "stock_at_addition"}

var itemTupleColumns = []clause.Column{
	{Name: "cart_id"},
	{Name: "product_id"},
	{Name: "owner_key"},
	{Name: "variation_key"},
}

type CartRepository interface {
	// Transaction runs fn against a store bound to a single transaction.
	Transaction(ctx context.Context, fn func(repo CartRepository) error) error

	CreateCart(ctx context.Context, cart *model.Cart) error
	CreateCartIfAbsent(ctx context.Context, cart *model.Cart) (bool, error)
	FindCartByID(ctx context.Context, id uint) (*model.Cart, error)
	FindActiveCartsByOwner(ctx context.Context, owner model.Owner) ([]model.Cart, error)
	CountActiveCartsByOwner(ctx context.Context, owner model.Owner) (int64, error)
	FindOwnersWithDuplicateCarts(ctx context.Context) ([]string, error)
	FindAllCarts(ctx context.Context) ([]model.Cart, error)
	ReassignCartOwner(ctx context.Context, cartID uint, owner model.Owner) error
	TouchCart(ctx context.Context, cartID uint) error
	DeleteCart(ctx context.Context, cartID uint) error

	CreateItem(ctx context.Context, item *model.CartItem) error
	UpsertItem(ctx context.Context, item *model.CartItem) error
	FindItemByID(ctx context.Context, id uint) (*model.CartItem, error)
	FindItem(ctx context.Context, cartID, productID uint, ownerKey, variationKey string) (*model.CartItem, error)
	FindItemByProduct(ctx context.Context, cartID, productID uint, variationKey string) (*model.CartItem, error)
	FindItemsByCart(ctx context.Context, cartID uint) ([]model.CartItem, error)
	FindActiveItemsByCart(ctx context.Context, cartID uint) ([]model.CartItem, error)
	FindItemsByOwner(ctx context.Context, owner model.Owner) ([]model.CartItem, error)
	FindAllItems(ctx context.Context) ([]model.CartItem, error)
	UpdateItem(ctx context.Context, item *model.CartItem) error
	RefreshSnapshots(ctx context.Context, item *model.CartItem, product *model.Product) error
	DeleteItem(ctx context.Context, id uint) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) Transaction(ctx context.Context, fn func(repo CartRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&cartRepository{db: tx})
	})
}

func (r *cartRepository) CreateCart(ctx context.Context, cart *model.Cart) error {
	logger.Debug("Creating cart in database", map[string]interface{}{
		"owner_key": cart.OwnerKey,
	})

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(cart).Error; err != nil {
		logger.Error("Failed to create cart in database", err, map[string]interface{}{
			"owner_key": cart.OwnerKey,
		})
		return err
	}

	logger.Debug("Cart created in database", map[string]interface{}{
		"cart_id":   cart.ID,
		"owner_key": cart.OwnerKey,
	})
	return nil
}

// CreateCartIfAbsent inserts cart unless a uniqueness constraint (the single
// active cart index, when installed) already holds a row for the owner.
func (r *cartRepository) CreateCartIfAbsent(ctx context.Context, cart *model.Cart) (bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cart)
	if result.Error != nil {
		logger.Error("Failed to create cart in database", result.Error, map[string]interface{}{
			"owner_key": cart.OwnerKey,
		})
		return false, result.Error
	}

	created := result.RowsAffected > 0 && cart.ID != 0
	logger.Debug("Create cart if absent", map[string]interface{}{
		"owner_key": cart.OwnerKey,
		"created":   created,
		"cart_id":   cart.ID,
	})
	return created, nil
}

func (r *cartRepository) FindCartByID(ctx context.Context, id uint) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).First(&cart, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		logger.Error("Failed to find cart by ID in database", err, map[string]interface{}{
			"cart_id": id,
		})
		return nil, err
	}
	return &cart, nil
}

// FindActiveCartsByOwner returns the owner's active carts, canonical first.
func (r *cartRepository) FindActiveCartsByOwner(ctx context.Context, owner model.Owner) ([]model.Cart, error) {
	logger.Debug("Finding active carts by owner in database", map[string]interface{}{
		"owner_key": owner.Key(),
	})

	var carts []model.Cart
	err := r.db.WithContext(ctx).
		Where("owner_key = ? AND is_active = ?", owner.Key(), true).
		Order("updated_at DESC").
		Order("id ASC").
		Find(&carts).Error
	if err != nil {
		logger.Error("Failed to find active carts by owner in database", err, map[string]interface{}{
			"owner_key": owner.Key(),
		})
		return nil, err
	}

	model.SortCanonical(carts)
	return carts, nil
}

func (r *cartRepository) CountActiveCartsByOwner(ctx context.Context, owner model.Owner) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("owner_key = ? AND is_active = ?", owner.Key(), true).
		Count(&count).Error
	if err != nil {
		logger.Error("Failed to count active carts by owner", err, map[string]interface{}{
			"owner_key": owner.Key(),
		})
		return 0, err
	}
	return count, nil
}

func (r *cartRepository) FindOwnersWithDuplicateCarts(ctx context.Context) ([]string, error) {
	var ownerKeys []string
	err := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("is_active = ?", true).
		Group("owner_key").
		Having("COUNT(*) > 1").
		Order("owner_key").
		Pluck("owner_key", &ownerKeys).Error
	if err != nil {
		logger.Error("Failed to find owners with duplicate carts", err)
		return nil, err
	}

	logger.Debug("Owners with duplicate carts found", map[string]interface{}{
		"count": len(ownerKeys),
	})
	return ownerKeys, nil
}

func (r *cartRepository) FindAllCarts(ctx context.Context) ([]model.Cart, error) {
	var carts []model.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		Order("id ASC").
		Find(&carts).Error
	if err != nil {
		logger.Error("Failed to list carts", err)
		return nil, err
	}
	return carts, nil
}

// ReassignCartOwner moves the cart and every one of its items to owner.
func (r *cartRepository) ReassignCartOwner(ctx context.Context, cartID uint, owner model.Owner) error {
	logger.Debug("Reassigning cart owner in database", map[string]interface{}{
		"cart_id":   cartID,
		"owner_key": owner.Key(),
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Cart{}).
			Where("id = ?", cartID).
			Updates(map[string]interface{}{
				"user_id":    owner.UserID,
				"owner_key":  owner.Key(),
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			logger.Error("Failed to reassign cart owner", err, map[string]interface{}{
				"cart_id": cartID,
			})
			return err
		}

		err = tx.Model(&model.CartItem{}).
			Where("cart_id = ?", cartID).
			Updates(map[string]interface{}{
				"user_id":    owner.UserID,
				"owner_key":  owner.Key(),
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			logger.Error("Failed to reassign cart item owners", err, map[string]interface{}{
				"cart_id": cartID,
			})
			return err
		}
		return nil
	})
}

func (r *cartRepository) TouchCart(ctx context.Context, cartID uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		logger.Error("Failed to touch cart", err, map[string]interface{}{
			"cart_id": cartID,
		})
	}
	return err
}

// DeleteCart removes the cart together with its items.
func (r *cartRepository) DeleteCart(ctx context.Context, cartID uint) error {
	logger.Debug("Deleting cart from database", map[string]interface{}{
		"cart_id": cartID,
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"DELETE FROM cart_item_variations WHERE cart_item_id IN (SELECT id FROM cart_items WHERE cart_id = ?)",
			cartID,
		).Error; err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Cart{}, cartID).Error; err != nil {
			logger.Error("Failed to delete cart from database", err, map[string]interface{}{
				"cart_id": cartID,
			})
			return err
		}
		return nil
	})
}

// CreateItem inserts a new item. A second item for the same tuple is
// rejected with ErrDuplicateCartItem.
func (r *cartRepository) CreateItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Creating cart item in database", map[string]interface{}{
		"cart_id":       item.CartID,
		"product_id":    item.ProductID,
		"owner_key":     item.OwnerKey,
		"variation_key": item.VariationKey,
	})

	err := r.db.WithContext(ctx).Omit("Product", "Variations.*").Create(item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.Warn("Duplicate cart item rejected", map[string]interface{}{
				"cart_id":    item.CartID,
				"product_id": item.ProductID,
			})
			return ErrDuplicateCartItem
		}
		logger.Error("Failed to create cart item in database", err, map[string]interface{}{
			"cart_id":    item.CartID,
			"product_id": item.ProductID,
		})
		return err
	}

	logger.Debug("Cart item created in database", map[string]interface{}{
		"cart_item_id": item.ID,
		"cart_id":      item.CartID,
	})
	return nil
}

// UpsertItem inserts item, or adds its quantity to the row already holding
// the same tuple. The in-memory quantity is not refreshed; re-read the item.
func (r *cartRepository) UpsertItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Upserting cart item in database", map[string]interface{}{
		"cart_id":    item.CartID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
	})

	err := r.db.WithContext(ctx).
		Omit("Product", "Variations.*").
		Clauses(clause.OnConflict{
			Columns: itemTupleColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": time.Now(),
			}),
		}).
		Create(item).Error
	if err != nil {
		logger.Error("Failed to upsert cart item in database", err, map[string]interface{}{
			"cart_id":    item.CartID,
			"product_id": item.ProductID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) itemQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Product").Preload("Variations")
}

func (r *cartRepository) FindItemByID(ctx context.Context, id uint) (*model.CartItem, error) {
	var item model.CartItem
	if err := r.itemQuery(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		logger.Error("Failed to find cart item by ID in database", err, map[string]interface{}{
			"cart_item_id": id,
		})
		return nil, err
	}
	return &item, nil
}

// FindItem looks an item up by its full identity tuple.
func (r *cartRepository) FindItem(ctx context.Context, cartID, productID uint, ownerKey, variationKey string) (*model.CartItem, error) {
	var item model.CartItem
	err := r.itemQuery(ctx).
		Where("cart_id = ? AND product_id = ? AND owner_key = ? AND variation_key = ?",
			cartID, productID, ownerKey, variationKey).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("Cart item not found by tuple", map[string]interface{}{
				"cart_id":       cartID,
				"product_id":    productID,
				"owner_key":     ownerKey,
				"variation_key": variationKey,
			})
			return nil, ErrCartItemNotFound
		}
		logger.Error("Failed to find cart item by tuple in database", err, map[string]interface{}{
			"cart_id":    cartID,
			"product_id": productID,
		})
		return nil, err
	}
	return &item, nil
}

// FindItemByProduct matches on product and variations only, for merges
// across owners.
func (r *cartRepository) FindItemByProduct(ctx context.Context, cartID, productID uint, variationKey string) (*model.CartItem, error) {
	var item model.CartItem
	err := r.itemQuery(ctx).
		Where("cart_id = ? AND product_id = ? AND variation_key = ?", cartID, productID, variationKey).
		Order("id ASC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		logger.Error("Failed to find cart item by product in database", err, map[string]interface{}{
			"cart_id":    cartID,
			"product_id": productID,
		})
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindItemsByCart(ctx context.Context, cartID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.itemQuery(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		logger.Error("Failed to find cart items by cart in database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) FindActiveItemsByCart(ctx context.Context, cartID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.itemQuery(ctx).
		Where("cart_id = ? AND is_active = ?", cartID, true).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		logger.Error("Failed to find active cart items in database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) FindItemsByOwner(ctx context.Context, owner model.Owner) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.itemQuery(ctx).
		Where("owner_key = ?", owner.Key()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		logger.Error("Failed to find cart items by owner in database", err, map[string]interface{}{
			"owner_key": owner.Key(),
		})
		return nil, err
	}

	logger.Debug("Cart items found by owner in database", map[string]interface{}{
		"owner_key": owner.Key(),
		"count":     len(items),
	})
	return items, nil
}

func (r *cartRepository) FindAllItems(ctx context.Context) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		logger.Error("Failed to list cart items", err)
		return nil, err
	}
	return items, nil
}

// UpdateItem persists quantity, ownership and status fields. Snapshot
// columns and associations are never written here.
func (r *cartRepository) UpdateItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Updating cart item in database", map[string]interface{}{
		"cart_item_id": item.ID,
		"cart_id":      item.CartID,
		"quantity":     item.Quantity,
		"stock_status": item.StockStatus,
	})

	omit := append([]string{clause.Associations, "created_at"}, snapshotColumns...)
	err := r.db.WithContext(ctx).Omit(omit...).Save(item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCartItem
		}
		logger.Error("Failed to update cart item in database", err, map[string]interface{}{
			"cart_item_id": item.ID,
		})
		return err
	}
	return nil
}

// RefreshSnapshots re-captures price and stock from product. It is the only
// write path for snapshot columns after creation.
func (r *cartRepository) RefreshSnapshots(ctx context.Context, item *model.CartItem, product *model.Product) error {
	err := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"price_at_addition": product.Price,
			"stock_at_addition": product.Stock,
		}).Error
	if err != nil {
		logger.Error("Failed to refresh cart item snapshots", err, map[string]interface{}{
			"cart_item_id": item.ID,
		})
		return err
	}
	item.PriceAtAddition = product.Price
	item.StockAtAddition = product.Stock
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, id uint) error {
	logger.Debug("Deleting cart item from database", map[string]interface{}{
		"cart_item_id": id,
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM cart_item_variations WHERE cart_item_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.CartItem{}, id).Error; err != nil {
			logger.Error("Failed to delete cart item from database", err, map[string]interface{}{
				"cart_item_id": id,
			})
			return err
		}
		return nil
	})
}
