package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog's view of a sellable item. The cart core only
// reads it; stock is sampled at decision time, never reserved.
type Product struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	Name      string          `gorm:"not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Variations []Variation `gorm:"foreignKey:ProductID" json:"variations,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// Variation is a selector such as size or color offered for a product.
type Variation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Category  string    `gorm:"type:varchar(50);not null" json:"category"` // size, color, ...
	Value     string    `gorm:"type:varchar(100);not null" json:"value"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Variation) TableName() string {
	return "variations"
}
