package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCartTest(t *testing.T) (*gorm.DB, CartRepository, *model.Product) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	product := &model.Product{
		Name:  "Test Product",
		Price: decimal.RequireFromString("25.00"),
		Stock: 10,
		Variations: []model.Variation{
			{Category: "size", Value: "M", IsActive: true},
			{Category: "color", Value: "red", IsActive: true},
		},
	}
	require.NoError(t, testDB.Create(product).Error)

	return testDB, NewCartRepository(testDB), product
}

func createCart(t *testing.T, repo CartRepository, owner model.Owner) *model.Cart {
	cart := model.NewCart(owner)
	require.NoError(t, repo.CreateCart(context.Background(), cart))
	return cart
}

func setUpdatedAt(t *testing.T, testDB *gorm.DB, cartID uint, at time.Time) {
	require.NoError(t, testDB.Model(&model.Cart{}).Where("id = ?", cartID).UpdateColumn("updated_at", at).Error)
}

func TestCartRepository_CreateCart(t *testing.T) {
	_, repo, _ := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.SessionOwner("tok-1"))
	assert.NotZero(t, cart.ID)

	found, err := repo.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "session:tok-1", found.OwnerKey)
	assert.Equal(t, "tok-1", found.CartToken)
	assert.True(t, found.IsActive)
}

func TestCartRepository_FindCartByID_NotFound(t *testing.T) {
	_, repo, _ := setupCartTest(t)

	_, err := repo.FindCartByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCartRepository_FindActiveCartsByOwner_CanonicalOrder(t *testing.T) {
	testDB, repo, _ := setupCartTest(t)
	ctx := context.Background()
	owner := model.UserOwner(1)

	older := createCart(t, repo, owner)
	newest := createCart(t, repo, owner)
	tied := createCart(t, repo, owner)
	createCart(t, repo, model.UserOwner(2))

	now := time.Now()
	setUpdatedAt(t, testDB, older.ID, now.Add(-time.Hour))
	setUpdatedAt(t, testDB, newest.ID, now)
	setUpdatedAt(t, testDB, tied.ID, now)

	carts, err := repo.FindActiveCartsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, carts, 3)
	assert.Equal(t, newest.ID, carts[0].ID, "ties resolve to the lowest id")
	assert.Equal(t, tied.ID, carts[1].ID)
	assert.Equal(t, older.ID, carts[2].ID)

	count, err := repo.CountActiveCartsByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCartRepository_FindActiveCartsByOwner_SkipsInactive(t *testing.T) {
	testDB, repo, _ := setupCartTest(t)
	owner := model.SessionOwner("tok")

	active := createCart(t, repo, owner)
	inactive := createCart(t, repo, owner)
	require.NoError(t, testDB.Model(&model.Cart{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	carts, err := repo.FindActiveCartsByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, active.ID, carts[0].ID)
}

func TestCartRepository_FindOwnersWithDuplicateCarts(t *testing.T) {
	_, repo, _ := setupCartTest(t)

	createCart(t, repo, model.UserOwner(1))
	createCart(t, repo, model.UserOwner(1))
	createCart(t, repo, model.UserOwner(2))
	createCart(t, repo, model.SessionOwner("abc"))
	createCart(t, repo, model.SessionOwner("abc"))

	owners, err := repo.FindOwnersWithDuplicateCarts(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "session:abc"}, owners)
}

func TestCartRepository_CreateCartIfAbsent_WithActiveIndex(t *testing.T) {
	testDB, repo, _ := setupCartTest(t)
	require.NoError(t, db.EnsureActiveCartIndex(testDB))
	ctx := context.Background()

	first := model.NewCart(model.UserOwner(5))
	created, err := repo.CreateCartIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := model.NewCart(model.UserOwner(5))
	created, err = repo.CreateCartIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := repo.CountActiveCartsByOwner(ctx, model.UserOwner(5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCartRepository_CreateItem_WithVariations(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	item := model.NewCartItem(cart, owner, product, product.Variations)
	require.NoError(t, repo.CreateItem(ctx, item))
	assert.NotZero(t, item.ID)

	found, err := repo.FindItem(ctx, cart.ID, product.ID, owner.Key(), item.VariationKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)
	assert.Len(t, found.Variations, 2)
	assert.Equal(t, "Test Product", found.Product.Name)
	assert.True(t, found.PriceAtAddition.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, 10, found.StockAtAddition)
}

func TestCartRepository_CreateItem_Duplicate(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	require.NoError(t, repo.CreateItem(ctx, model.NewCartItem(cart, owner, product, nil)))

	err := repo.CreateItem(ctx, model.NewCartItem(cart, owner, product, nil))
	assert.ErrorIs(t, err, ErrDuplicateCartItem)

	// A different variation set is a different item.
	err = repo.CreateItem(ctx, model.NewCartItem(cart, owner, product, product.Variations[:1]))
	assert.NoError(t, err)
}

func TestCartRepository_UpsertItem_AddsQuantity(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.UserOwner(3)
	cart := createCart(t, repo, owner)

	require.NoError(t, repo.UpsertItem(ctx, model.NewCartItem(cart, owner, product, nil)))
	second := model.NewCartItem(cart, owner, product, nil)
	second.Quantity = 2
	require.NoError(t, repo.UpsertItem(ctx, second))

	items, err := repo.FindItemsByCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCartRepository_UpdateItem_KeepsSnapshots(t *testing.T) {
	testDB, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	item := model.NewCartItem(cart, owner, product, nil)
	require.NoError(t, repo.CreateItem(ctx, item))

	// Catalog moves on after the item was added.
	require.NoError(t, testDB.Model(product).Updates(map[string]interface{}{"price": "99.00", "stock": 1}).Error)

	item.Quantity = 4
	item.PriceAtAddition = decimal.RequireFromString("1.00")
	item.StockAtAddition = 0
	item.ApplyStock(1)
	require.NoError(t, repo.UpdateItem(ctx, item))

	found, err := repo.FindItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, found.Quantity)
	assert.Equal(t, model.StockInsufficientStock, found.StockStatus)
	assert.True(t, found.PriceAtAddition.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, 10, found.StockAtAddition)
}

func TestCartRepository_UpdateItem_PersistsFalseFlags(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	item := model.NewCartItem(cart, owner, product, nil)
	require.NoError(t, repo.CreateItem(ctx, item))

	item.ApplyStock(0)
	require.NoError(t, repo.UpdateItem(ctx, item))

	found, err := repo.FindItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, found.IsAvailable)
	assert.Equal(t, model.StockOutOfStock, found.StockStatus)
}

func TestCartRepository_RefreshSnapshots(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	item := model.NewCartItem(cart, owner, product, nil)
	require.NoError(t, repo.CreateItem(ctx, item))

	fresh := *product
	fresh.Price = decimal.RequireFromString("30.00")
	fresh.Stock = 2
	require.NoError(t, repo.RefreshSnapshots(ctx, item, &fresh))

	found, err := repo.FindItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, found.PriceAtAddition.Equal(decimal.RequireFromString("30.00")))
	assert.Equal(t, 2, found.StockAtAddition)
}

func TestCartRepository_FindItemByProduct_IgnoresOwner(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	item := model.NewCartItem(cart, owner, product, product.Variations)
	require.NoError(t, repo.CreateItem(ctx, item))

	found, err := repo.FindItemByProduct(ctx, cart.ID, product.ID, item.VariationKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)

	_, err = repo.FindItemByProduct(ctx, cart.ID, product.ID, "")
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartRepository_ReassignCartOwner(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	session := model.SessionOwner("tok")
	cart := createCart(t, repo, session)
	require.NoError(t, repo.CreateItem(ctx, model.NewCartItem(cart, session, product, nil)))

	user := model.UserOwner(8)
	require.NoError(t, repo.ReassignCartOwner(ctx, cart.ID, user))

	carts, err := repo.FindActiveCartsByOwner(ctx, user)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, cart.ID, carts[0].ID)

	items, err := repo.FindItemsByOwner(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].UserID)
	assert.Equal(t, uint(8), *items[0].UserID)

	leftover, err := repo.FindItemsByOwner(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestCartRepository_DeleteCart_RemovesItems(t *testing.T) {
	testDB, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)
	require.NoError(t, repo.CreateItem(ctx, model.NewCartItem(cart, owner, product, product.Variations)))

	require.NoError(t, repo.DeleteCart(ctx, cart.ID))

	_, err := repo.FindCartByID(ctx, cart.ID)
	assert.ErrorIs(t, err, ErrCartNotFound)

	var itemCount, joinCount int64
	testDB.Model(&model.CartItem{}).Count(&itemCount)
	testDB.Table("cart_item_variations").Count(&joinCount)
	assert.Zero(t, itemCount)
	assert.Zero(t, joinCount)
}

func TestCartRepository_DeleteItem(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)
	item := model.NewCartItem(cart, owner, product, nil)
	require.NoError(t, repo.CreateItem(ctx, item))

	require.NoError(t, repo.DeleteItem(ctx, item.ID))

	_, err := repo.FindItemByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartRepository_Transaction_RollsBack(t *testing.T) {
	_, repo, _ := setupCartTest(t)
	ctx := context.Background()
	owner := model.UserOwner(4)
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx CartRepository) error {
		if err := tx.CreateCart(ctx, model.NewCart(owner)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := repo.CountActiveCartsByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCartRepository_FindActiveItemsByCart(t *testing.T) {
	testDB, repo, product := setupCartTest(t)
	ctx := context.Background()
	owner := model.SessionOwner("tok")
	cart := createCart(t, repo, owner)

	active := model.NewCartItem(cart, owner, product, nil)
	require.NoError(t, repo.CreateItem(ctx, active))
	hidden := model.NewCartItem(cart, owner, product, product.Variations)
	require.NoError(t, repo.CreateItem(ctx, hidden))
	require.NoError(t, testDB.Model(&model.CartItem{}).Where("id = ?", hidden.ID).Update("is_active", false).Error)

	items, err := repo.FindActiveItemsByCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, active.ID, items[0].ID)

	all, err := repo.FindAllItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
