package service

import (
	"context"
	"testing"
	"time"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db            *gorm.DB
	cartRepo      repository.CartRepository
	productRepo   repository.ProductRepository
	validator     StockValidator
	consolidation ConsolidationService
	merge         LoginMergeService
	cart          CartService
}

func newFixture(t *testing.T) *fixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})
	return wire(testDB, repository.NewCartRepository(testDB))
}

func wire(testDB *gorm.DB, cartRepo repository.CartRepository) *fixture {
	productRepo := repository.NewProductRepository(testDB)
	validator := NewStockValidator(cartRepo, productRepo)
	consolidation := NewConsolidationService(cartRepo, validator)
	return &fixture{
		db:            testDB,
		cartRepo:      cartRepo,
		productRepo:   productRepo,
		validator:     validator,
		consolidation: consolidation,
		merge:         NewLoginMergeService(cartRepo, validator, consolidation),
		cart:          NewCartService(cartRepo, productRepo, validator, consolidation),
	}
}

func (f *fixture) product(t require.TestingT, name, price string, stock int, variations ...model.Variation) *model.Product {
	p := &model.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		Variations: variations,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) setStock(t require.TestingT, productID uint, stock int) {
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", productID).Update("stock", stock).Error)
}

func (f *fixture) setPrice(t require.TestingT, productID uint, price string) {
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", productID).Update("price", price).Error)
}

// newCart stores an extra active cart for owner, bypassing the facade.
func (f *fixture) newCart(t require.TestingT, owner model.Owner, updatedAt time.Time) *model.Cart {
	cart := model.NewCart(owner)
	require.NoError(t, f.cartRepo.CreateCart(context.Background(), cart))
	require.NoError(t, f.db.Model(&model.Cart{}).Where("id = ?", cart.ID).UpdateColumn("updated_at", updatedAt).Error)
	cart.UpdatedAt = updatedAt
	return cart
}

// newItem stores an item with the given quantity in cart.
func (f *fixture) newItem(t require.TestingT, cart *model.Cart, owner model.Owner, product *model.Product, quantity int, variations ...model.Variation) *model.CartItem {
	item := model.NewCartItem(cart, owner, product, variations)
	item.Quantity = quantity
	require.NoError(t, f.cartRepo.CreateItem(context.Background(), item))
	return item
}

func (f *fixture) activeCarts(t require.TestingT, owner model.Owner) []model.Cart {
	carts, err := f.cartRepo.FindActiveCartsByOwner(context.Background(), owner)
	require.NoError(t, err)
	return carts
}

func (f *fixture) items(t require.TestingT, owner model.Owner) []model.CartItem {
	items, err := f.cartRepo.FindItemsByOwner(context.Background(), owner)
	require.NoError(t, err)
	return items
}

func quantityOf(items []model.CartItem, productID uint) int {
	total := 0
	for _, item := range items {
		if item.ProductID == productID {
			total += item.Quantity
		}
	}
	return total
}
