package db

import (
	"context"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const activeCartIndex = "idx_carts_active_owner"

// Consolidator folds duplicate active carts and reports how many were merged.
type Consolidator func(ctx context.Context) (int, error)

// Migrate runs database migrations on the global connection. When the single
// active cart index is enforced, consolidate runs first so legacy duplicates
// do not block the index.
func Migrate(ctx context.Context, enforceSingleActive bool, consolidate Consolidator) error {
	return migrate(ctx, DB, enforceSingleActive, consolidate)
}

func migrate(ctx context.Context, db *gorm.DB, enforceSingleActive bool, consolidate Consolidator) error {
	logger.Info("Running database migrations...")

	if err := AutoMigrate(db); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	indexed := false
	if enforceSingleActive {
		var err error
		if indexed, err = prepareActiveCartIndex(ctx, db, consolidate); err != nil {
			logger.Error("Failed to create single active cart index", err)
			return err
		}
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"single_active_cart_index": indexed,
	})
	return nil
}

// prepareActiveCartIndex consolidates duplicates and installs the index. The
// index is skipped with a warning while duplicates remain.
func prepareActiveCartIndex(ctx context.Context, db *gorm.DB, consolidate Consolidator) (bool, error) {
	if consolidate != nil {
		merged, err := consolidate(ctx)
		if err != nil {
			logger.Warn("Consolidation before index creation finished with errors", map[string]interface{}{
				"merged": merged,
				"error":  err.Error(),
			})
		} else if merged > 0 {
			logger.Info("Consolidated legacy duplicate carts", map[string]interface{}{
				"merged": merged,
			})
		}
	}

	owners, err := duplicateActiveOwners(db)
	if err != nil {
		return false, err
	}
	if len(owners) > 0 {
		logger.Warn("Duplicate active carts remain, skipping single active cart index", map[string]interface{}{
			"owners": len(owners),
		})
		return false, nil
	}

	if err := EnsureActiveCartIndex(db); err != nil {
		return false, err
	}
	return true, nil
}

func duplicateActiveOwners(db *gorm.DB) ([]string, error) {
	var owners []string
	err := db.Model(&model.Cart{}).
		Where("is_active = ?", true).
		Group("owner_key").
		Having("COUNT(*) > 1").
		Pluck("owner_key", &owners).Error
	return owners, err
}

// AutoMigrate creates the catalog and cart tables on db.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Product{},
		&model.Variation{},
		&model.Cart{},
		&model.CartItem{},
	)
}

// EnsureActiveCartIndex installs a partial unique index so an owner can hold
// at most one active cart. Existing duplicates must be consolidated first.
func EnsureActiveCartIndex(db *gorm.DB) error {
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + activeCartIndex +
		" ON carts (owner_key) WHERE is_active").Error
}

// Seed adds a small demo catalog when the products table is empty.
func Seed() error {
	var count int64
	if err := DB.Model(&model.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("Catalog already seeded, skipping...", map[string]interface{}{
			"existing_count": count,
		})
		return nil
	}

	products := []model.Product{
		{Name: "Canvas Tote", Price: decimal.RequireFromString("24.00"), Stock: 25, Variations: []model.Variation{
			{Category: "color", Value: "natural", IsActive: true},
			{Category: "color", Value: "black", IsActive: true},
		}},
		{Name: "Linen Shirt", Price: decimal.RequireFromString("59.90"), Stock: 8, Variations: []model.Variation{
			{Category: "size", Value: "M", IsActive: true},
			{Category: "size", Value: "L", IsActive: true},
		}},
		{Name: "Ceramic Mug", Price: decimal.RequireFromString("12.50"), Stock: 3},
	}
	for i := range products {
		if err := DB.Create(&products[i]).Error; err != nil {
			logger.Error("Failed to seed product", err, map[string]interface{}{
				"product": products[i].Name,
			})
			return err
		}
	}

	logger.Info("Catalog seeded successfully", map[string]interface{}{
		"total_products": len(products),
	})
	return nil
}
