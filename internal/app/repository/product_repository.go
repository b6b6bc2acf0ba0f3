package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"gorm.io/gorm"
)

var ErrProductNotFound = fmt.Errorf("product not found: %w", gorm.ErrRecordNotFound)

// ProductRepository is the read side of the catalog used by the cart.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]model.Product, error)
	FindAll(ctx context.Context) ([]model.Product, error)
	FindVariations(ctx context.Context, productID uint, ids []uint) ([]model.Variation, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	logger.Debug("Finding product by ID in database", map[string]interface{}{
		"product_id": id,
	})

	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Product not found in database", map[string]interface{}{
				"product_id": id,
			})
			return nil, ErrProductNotFound
		}
		logger.Error("Failed to find product by ID in database", err, map[string]interface{}{
			"product_id": id,
		})
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads products in one query, keyed by id. Missing ids are
// absent from the map.
func (r *productRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.Product, error) {
	products := make(map[uint]model.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	var rows []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		logger.Error("Failed to find products by IDs in database", err, map[string]interface{}{
			"count": len(ids),
		})
		return nil, err
	}
	for _, p := range rows {
		products[p.ID] = p
	}
	return products, nil
}

func (r *productRepository) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := r.db.WithContext(ctx).Preload("Variations").Order("id ASC").Find(&products).Error; err != nil {
		logger.Error("Failed to list products", err)
		return nil, err
	}
	return products, nil
}

// FindVariations returns the active variations of productID among ids.
// Callers compare the result length with ids to detect unknown selections.
func (r *productRepository) FindVariations(ctx context.Context, productID uint, ids []uint) ([]model.Variation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var variations []model.Variation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND id IN ? AND is_active = ?", productID, ids, true).
		Order("id ASC").
		Find(&variations).Error
	if err != nil {
		logger.Error("Failed to find product variations", err, map[string]interface{}{
			"product_id": productID,
		})
		return nil, err
	}
	return variations, nil
}
