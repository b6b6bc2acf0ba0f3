package service

import (
	"context"
	"errors"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/metrics"
	"github.com/kartshart/kartshart-backend/pkg/logger"
)

const clampSourceConsolidation = "consolidation"

// ConsolidationService folds an owner's duplicate active carts into the
// canonical one.
type ConsolidationService interface {
	Consolidate(ctx context.Context, owner model.Owner) (int, error)
	ConsolidateAll(ctx context.Context) (int, error)
}

type consolidationService struct {
	cartRepo  repository.CartRepository
	validator StockValidator
}

func NewConsolidationService(cartRepo repository.CartRepository, validator StockValidator) ConsolidationService {
	return &consolidationService{
		cartRepo:  cartRepo,
		validator: validator,
	}
}

// Consolidate merges every duplicate cart of owner into the canonical cart
// and returns how many carts were merged. Each duplicate is merged in its own
// transaction; with one cart or none nothing is written.
func (s *consolidationService) Consolidate(ctx context.Context, owner model.Owner) (int, error) {
	if owner.IsZero() {
		return 0, ErrOwnerRequired
	}

	carts, err := s.cartRepo.FindActiveCartsByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	if len(carts) <= 1 {
		return 0, nil
	}

	model.SortCanonical(carts)
	canonical := carts[0]

	logger.Info("Consolidating duplicate carts", map[string]interface{}{
		"owner_key":         owner.Key(),
		"canonical_cart_id": canonical.ID,
		"duplicates":        len(carts) - 1,
	})

	merged := 0
	for _, dup := range carts[1:] {
		err := s.cartRepo.Transaction(ctx, func(tx repository.CartRepository) error {
			return mergeCartInto(ctx, tx, s.validator.WithRepository(tx), &canonical, &dup, owner)
		})
		if err != nil {
			logger.Error("Failed to consolidate duplicate cart", err, map[string]interface{}{
				"owner_key":         owner.Key(),
				"canonical_cart_id": canonical.ID,
				"duplicate_cart_id": dup.ID,
			})
			return merged, err
		}
		merged++
		metrics.CartsConsolidated.Inc()
	}

	logger.Info("Carts consolidated", map[string]interface{}{
		"owner_key":         owner.Key(),
		"canonical_cart_id": canonical.ID,
		"merged":            merged,
	})
	return merged, nil
}

// ConsolidateAll sweeps every owner holding more than one active cart.
// Failures for one owner do not stop the sweep; they are joined into the
// returned error.
func (s *consolidationService) ConsolidateAll(ctx context.Context) (int, error) {
	ownerKeys, err := s.cartRepo.FindOwnersWithDuplicateCarts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, key := range ownerKeys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		owner, err := model.ParseOwnerKey(key)
		if err != nil {
			logger.Warn("Skipping carts with unparseable owner key", map[string]interface{}{
				"owner_key": key,
				"error":     err.Error(),
			})
			errs = append(errs, err)
			continue
		}

		n, err := s.Consolidate(ctx, owner)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("Consolidation sweep finished", map[string]interface{}{
		"owners": len(ownerKeys),
		"merged": total,
		"failed": len(errs),
	})
	return total, errors.Join(errs...)
}

// mergeCartInto moves every item of dup into canonical and deletes dup.
// Items matching an existing canonical item are summed and clamped to stock.
func mergeCartInto(ctx context.Context, tx repository.CartRepository, validator StockValidator, canonical, dup *model.Cart, owner model.Owner) error {
	items, err := tx.FindItemsByCart(ctx, dup.ID)
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]

		existing, err := tx.FindItem(ctx, canonical.ID, item.ProductID, owner.Key(), item.VariationKey)
		switch {
		case err == nil:
			existing.Quantity += item.Quantity
			existing.IsActive = true
			if _, err := validator.AdjustToStock(ctx, existing, clampSourceConsolidation); err != nil {
				return err
			}
			if _, _, err := validator.Revalidate(ctx, existing); err != nil {
				return err
			}
			if err := tx.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrCartItemNotFound):
			item.AssignOwner(canonical.ID, owner)
			if _, _, err := validator.Revalidate(ctx, item); err != nil {
				return err
			}
		default:
			return err
		}
	}

	return tx.DeleteCart(ctx, dup.ID)
}
