package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/metrics"
	"github.com/kartshart/kartshart-backend/pkg/logger"
)

const clampSourceLoginMerge = "login_merge"

type MergeCase string

const (
	MergeBoth        MergeCase = "both"
	MergeSessionOnly MergeCase = "session_only"
	MergeUserOnly    MergeCase = "user_only"
	MergeNone        MergeCase = "none"
	MergeSkipped     MergeCase = "skipped"
)

const mergedNotice = "Your cart has been updated with previous items."

// MergeResult is the outcome of folding a session cart into a user cart.
// A skipped merge carries the cause in Err; login is never blocked by it.
type MergeResult struct {
	Case        MergeCase `json:"case"`
	Notices     []string  `json:"notices"`
	ItemsMerged int       `json:"items_merged"`
	Err         error     `json:"-"`
}

type LoginMergeService interface {
	Merge(ctx context.Context, sessionToken string, userID uint) MergeResult
}

type loginMergeService struct {
	cartRepo      repository.CartRepository
	validator     StockValidator
	consolidation ConsolidationService
}

func NewLoginMergeService(cartRepo repository.CartRepository, validator StockValidator, consolidation ConsolidationService) LoginMergeService {
	return &loginMergeService{
		cartRepo:      cartRepo,
		validator:     validator,
		consolidation: consolidation,
	}
}

func (s *loginMergeService) Merge(ctx context.Context, sessionToken string, userID uint) MergeResult {
	logger.Info("Merging session cart at login", map[string]interface{}{
		"user_id":     userID,
		"has_session": sessionToken != "",
	})

	result, err := s.merge(ctx, sessionToken, model.UserOwner(userID))
	if err != nil {
		logger.Error("Login cart merge skipped", err, map[string]interface{}{
			"user_id": userID,
		})
		metrics.LoginMerges.WithLabelValues(string(MergeSkipped)).Inc()
		return MergeResult{Case: MergeSkipped, Notices: []string{}, Err: err}
	}

	metrics.LoginMerges.WithLabelValues(string(result.Case)).Inc()
	logger.Info("Login cart merge finished", map[string]interface{}{
		"user_id":      userID,
		"case":         result.Case,
		"items_merged": result.ItemsMerged,
	})
	return result
}

func (s *loginMergeService) merge(ctx context.Context, sessionToken string, user model.Owner) (MergeResult, error) {
	session := model.SessionOwner(sessionToken)

	if _, err := s.consolidation.Consolidate(ctx, user); err != nil {
		return MergeResult{}, fmt.Errorf("consolidate user carts: %w", err)
	}
	if sessionToken != "" {
		if _, err := s.consolidation.Consolidate(ctx, session); err != nil {
			return MergeResult{}, fmt.Errorf("consolidate session carts: %w", err)
		}
	}

	var result MergeResult
	err := s.cartRepo.Transaction(ctx, func(tx repository.CartRepository) error {
		result = MergeResult{Case: MergeNone, Notices: []string{}}
		validator := s.validator.WithRepository(tx)

		var sessionCart, userCart *model.Cart
		if sessionToken != "" {
			carts, err := tx.FindActiveCartsByOwner(ctx, session)
			if err != nil {
				return err
			}
			if len(carts) > 0 {
				sessionCart = &carts[0]
			}
		}
		carts, err := tx.FindActiveCartsByOwner(ctx, user)
		if err != nil {
			return err
		}
		if len(carts) > 0 {
			userCart = &carts[0]
		}

		switch {
		case sessionCart != nil && userCart != nil:
			result.Case = MergeBoth
			return mergeSessionItems(ctx, tx, validator, sessionCart, userCart, user, &result)

		case sessionCart != nil:
			result.Case = MergeSessionOnly
			items, err := tx.FindItemsByCart(ctx, sessionCart.ID)
			if err != nil {
				return err
			}
			if err := tx.ReassignCartOwner(ctx, sessionCart.ID, user); err != nil {
				return err
			}
			result.ItemsMerged = len(items)
			return nil

		case userCart != nil:
			result.Case = MergeUserOnly
			items, err := tx.FindActiveItemsByCart(ctx, userCart.ID)
			if err != nil {
				return err
			}
			units := 0
			for _, item := range items {
				units += item.Quantity
			}
			if units > 0 {
				result.Notices = append(result.Notices,
					fmt.Sprintf("Welcome back! You have %d item(s) in your cart.", units))
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

// mergeSessionItems folds every session item into the user cart, matching on
// product and variations, then deletes the session cart.
func mergeSessionItems(ctx context.Context, tx repository.CartRepository, validator StockValidator, sessionCart, userCart *model.Cart, user model.Owner, result *MergeResult) error {
	items, err := tx.FindItemsByCart(ctx, sessionCart.ID)
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]

		existing, err := tx.FindItemByProduct(ctx, userCart.ID, item.ProductID, item.VariationKey)
		switch {
		case err == nil:
			quantity := existing.Quantity + item.Quantity
			stock := validator.CurrentStock(ctx, item.ProductID)
			if quantity > stock {
				result.Notices = append(result.Notices,
					fmt.Sprintf("%s: Maximum stock limit reached.", item.Product.Name))
				// Zero stock keeps the sum; the item is flagged out of stock instead.
				if stock > 0 {
					quantity = stock
					metrics.StockClamps.WithLabelValues(clampSourceLoginMerge).Inc()
				}
			}
			existing.Quantity = quantity
			existing.IsActive = true
			existing.AssignOwner(userCart.ID, user)
			if _, _, err := validator.Revalidate(ctx, existing); err != nil {
				return err
			}
			if err := tx.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrCartItemNotFound):
			item.AssignOwner(userCart.ID, user)
			if _, _, err := validator.Revalidate(ctx, item); err != nil {
				return err
			}
		default:
			return err
		}
		result.ItemsMerged++
	}

	if err := tx.DeleteCart(ctx, sessionCart.ID); err != nil {
		return err
	}
	result.Notices = append(result.Notices, mergedNotice)
	return nil
}
