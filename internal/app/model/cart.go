package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StockAvailable         StockStatus = "available"
	StockInsufficientStock StockStatus = "insufficient_stock"
	StockOutOfStock        StockStatus = "out_of_stock"
)

type Cart struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CartToken string    `gorm:"type:varchar(250);index" json:"cart_token"` // session token that created the cart
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	OwnerKey  string    `gorm:"type:varchar(300);not null;index" json:"owner_key"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Cart) TableName() string {
	return "carts"
}

// NewCart builds an active cart for owner.
func NewCart(owner Owner) *Cart {
	return &Cart{
		CartToken: owner.SessionToken,
		UserID:    owner.UserID,
		OwnerKey:  owner.Key(),
		IsActive:  true,
	}
}

// CanonicalCartLess orders carts so the canonical one sorts first: the most
// recently updated wins, ties go to the lowest id.
func CanonicalCartLess(a, b Cart) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// SortCanonical sorts carts in place with CanonicalCartLess.
func SortCanonical(carts []Cart) {
	sort.SliceStable(carts, func(i, j int) bool {
		return CanonicalCartLess(carts[i], carts[j])
	})
}

type CartItem struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	CartID       uint   `gorm:"not null;uniqueIndex:idx_cart_item_tuple,priority:1" json:"cart_id"`
	ProductID    uint   `gorm:"not null;uniqueIndex:idx_cart_item_tuple,priority:2;index" json:"product_id"`
	OwnerKey     string `gorm:"type:varchar(300);not null;uniqueIndex:idx_cart_item_tuple,priority:3;index" json:"owner_key"`
	VariationKey string `gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_cart_item_tuple,priority:4" json:"variation_key"`
	UserID       *uint  `gorm:"index" json:"user_id,omitempty"`

	Quantity int `gorm:"not null;default:1;check:chk_cart_items_quantity,quantity >= 1" json:"quantity"`

	// Snapshots are taken by NewCartItem and never written by updates.
	PriceAtAddition decimal.Decimal `gorm:"type:decimal(10,2)" json:"price_at_addition"`
	StockAtAddition int             `json:"stock_at_addition"`

	StockStatus StockStatus `gorm:"type:varchar(20);not null;default:'available'" json:"stock_status"`
	IsActive    bool        `gorm:"not null;default:true" json:"is_active"`
	IsAvailable bool        `gorm:"not null;default:true" json:"is_available"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Product    Product     `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Variations []Variation `gorm:"many2many:cart_item_variations;constraint:OnDelete:CASCADE" json:"variations,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// NewCartItem is the only place snapshot fields are populated.
func NewCartItem(cart *Cart, owner Owner, product *Product, variations []Variation) *CartItem {
	ids := make([]uint, 0, len(variations))
	for _, v := range variations {
		ids = append(ids, v.ID)
	}
	return &CartItem{
		CartID:          cart.ID,
		ProductID:       product.ID,
		OwnerKey:        owner.Key(),
		UserID:          owner.UserID,
		VariationKey:    VariationKey(ids),
		Quantity:        1,
		PriceAtAddition: product.Price,
		StockAtAddition: product.Stock,
		StockStatus:     StockAvailable,
		IsActive:        true,
		IsAvailable:     true,
		Product:         *product,
		Variations:      variations,
	}
}

// AssignOwner moves the item to cart under owner.
func (i *CartItem) AssignOwner(cartID uint, owner Owner) {
	i.CartID = cartID
	i.OwnerKey = owner.Key()
	i.UserID = owner.UserID
}

// ApplyStock sets the availability fields from the current stock level and
// returns the resulting status.
func (i *CartItem) ApplyStock(stock int) StockStatus {
	switch {
	case stock <= 0:
		i.StockStatus = StockOutOfStock
		i.IsAvailable = false
	case i.Quantity > stock:
		i.StockStatus = StockInsufficientStock
		i.IsAvailable = true
	default:
		i.StockStatus = StockAvailable
		i.IsAvailable = true
	}
	return i.StockStatus
}

// StockMessage renders the shopper-facing status text.
func (i *CartItem) StockMessage(stock int) string {
	switch i.StockStatus {
	case StockOutOfStock:
		return "Out of Stock"
	case StockInsufficientStock:
		return fmt.Sprintf("Not enough in stock. Only %d available.", stock)
	default:
		return "In Stock"
	}
}

// SubTotal is the snapshot price times quantity.
func (i *CartItem) SubTotal() decimal.Decimal {
	return i.PriceAtAddition.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// VariationsDisplay renders "size: M, color: red".
func (i *CartItem) VariationsDisplay() string {
	parts := make([]string, 0, len(i.Variations))
	for _, v := range i.Variations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Category, v.Value))
	}
	return strings.Join(parts, ", ")
}

// VariationKey canonicalises a variation set: sorted, de-duplicated ids
// joined by commas. The empty set renders as "".
func VariationKey(ids []uint) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	var b strings.Builder
	var prev uint
	for n, id := range sorted {
		if n > 0 && id == prev {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
		prev = id
	}
	return b.String()
}

// ParseVariationIDs parses "3,1,2" into ids; blanks are skipped.
func ParseVariationIDs(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid variation id %q: %w", part, err)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
