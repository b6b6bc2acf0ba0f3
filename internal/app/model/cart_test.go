package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwner_Key(t *testing.T) {
	assert.Equal(t, "user:42", UserOwner(42).Key())
	assert.Equal(t, "session:abc", SessionOwner("abc").Key())

	both := Owner{UserID: UserOwner(7).UserID, SessionToken: "abc"}
	assert.Equal(t, "user:7", both.Key(), "user id takes precedence")
	assert.True(t, both.IsAuthenticated())
	assert.True(t, Owner{}.IsZero())
}

func TestParseOwnerKey(t *testing.T) {
	owner, err := ParseOwnerKey("user:42")
	require.NoError(t, err)
	require.NotNil(t, owner.UserID)
	assert.Equal(t, uint(42), *owner.UserID)

	owner, err = ParseOwnerKey("session:tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", owner.SessionToken)

	for _, bad := range []string{"", "user:x", "session:", "admin:1"} {
		_, err := ParseOwnerKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestVariationKey(t *testing.T) {
	tests := []struct {
		name string
		ids  []uint
		want string
	}{
		{"empty", nil, ""},
		{"single", []uint{5}, "5"},
		{"sorted", []uint{3, 1, 2}, "1,2,3"},
		{"deduplicated", []uint{2, 2, 1}, "1,2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VariationKey(tt.ids))
		})
	}
}

func TestParseVariationIDs(t *testing.T) {
	ids, err := ParseVariationIDs(" 3, 1,,2 ")
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 1, 2}, ids)

	ids, err = ParseVariationIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = ParseVariationIDs("1,x")
	assert.Error(t, err)
}

func TestCartItem_ApplyStock(t *testing.T) {
	tests := []struct {
		name          string
		quantity      int
		stock         int
		wantStatus    StockStatus
		wantAvailable bool
	}{
		{"zero stock", 1, 0, StockOutOfStock, false},
		{"quantity above stock", 5, 3, StockInsufficientStock, true},
		{"quantity equals stock", 3, 3, StockAvailable, true},
		{"quantity below stock", 1, 3, StockAvailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &CartItem{Quantity: tt.quantity}
			assert.Equal(t, tt.wantStatus, item.ApplyStock(tt.stock))
			assert.Equal(t, tt.wantAvailable, item.IsAvailable)
		})
	}
}

func TestCartItem_StockMessage(t *testing.T) {
	item := &CartItem{Quantity: 4}
	item.ApplyStock(2)
	assert.Equal(t, "Not enough in stock. Only 2 available.", item.StockMessage(2))

	item.ApplyStock(0)
	assert.Equal(t, "Out of Stock", item.StockMessage(0))

	item.ApplyStock(10)
	assert.Equal(t, "In Stock", item.StockMessage(10))
}

func TestNewCartItem_TakesSnapshots(t *testing.T) {
	cart := &Cart{ID: 9}
	product := &Product{ID: 3, Name: "Mug", Price: decimal.RequireFromString("12.50"), Stock: 7}
	variations := []Variation{{ID: 4, Category: "color", Value: "red"}, {ID: 2, Category: "size", Value: "M"}}

	item := NewCartItem(cart, SessionOwner("tok"), product, variations)

	assert.Equal(t, uint(9), item.CartID)
	assert.Equal(t, "session:tok", item.OwnerKey)
	assert.Nil(t, item.UserID)
	assert.Equal(t, "2,4", item.VariationKey)
	assert.Equal(t, 1, item.Quantity)
	assert.True(t, item.PriceAtAddition.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, 7, item.StockAtAddition)
	assert.Equal(t, "color: red, size: M", item.VariationsDisplay())
}

func TestCartItem_SubTotal(t *testing.T) {
	item := &CartItem{Quantity: 3, PriceAtAddition: decimal.RequireFromString("19.99")}
	assert.True(t, item.SubTotal().Equal(decimal.RequireFromString("59.97")))
}

func TestSortCanonical(t *testing.T) {
	now := time.Now()
	carts := []Cart{
		{ID: 5, UpdatedAt: now.Add(-time.Hour)},
		{ID: 3, UpdatedAt: now},
		{ID: 1, UpdatedAt: now},
		{ID: 2, UpdatedAt: now.Add(-2 * time.Hour)},
	}

	SortCanonical(carts)

	ids := []uint{carts[0].ID, carts[1].ID, carts[2].ID, carts[3].ID}
	assert.Equal(t, []uint{1, 3, 5, 2}, ids)
}
