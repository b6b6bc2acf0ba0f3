package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/kartshart/kartshart-backend/internal/app/service"
	apperrors "github.com/kartshart/kartshart-backend/internal/errors"
	"github.com/kartshart/kartshart-backend/internal/middleware"
)

// SessionRevoker forgets a session token once its cart belongs to a user.
type SessionRevoker interface {
	Revoke(ctx context.Context, token string) error
}

type CartController struct {
	cartService  service.CartService
	mergeService service.LoginMergeService
	sessions     SessionRevoker
}

func NewCartController(cartService service.CartService, mergeService service.LoginMergeService, sessions SessionRevoker) *CartController {
	return &CartController{
		cartService:  cartService,
		mergeService: mergeService,
		sessions:     sessions,
	}
}

type AddToCartRequest struct {
	ProductID    uint   `json:"product_id" binding:"required"`
	VariationIDs []uint `json:"variation_ids"`
}

// GetCart returns the owner's canonical cart with stock warnings
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := middleware.GetOwner(c)

	view, err := ctrl.cartService.View(c.Request.Context(), owner)
	if err != nil {
		log.Error("Failed to fetch cart", err, map[string]interface{}{
			"owner_key": owner.Key(),
		})
		apperrors.ParseAndRespond(c, err, "fetch cart")
		return
	}

	log.Info("Cart fetched successfully", map[string]interface{}{
		"owner_key": owner.Key(),
		"count":     len(view.Items),
		"total":     view.GrandTotal.StringFixed(2),
	})

	c.JSON(http.StatusOK, view)
}

// GetCartCount returns the number of units in the cart
// GET /api/v1/cart/count
func (ctrl *CartController) GetCartCount(c *gin.Context) {
	owner := middleware.GetOwner(c)

	count, err := ctrl.cartService.Count(c.Request.Context(), owner)
	if err != nil {
		middleware.GetLoggerFromContext(c).Error("Failed to count cart items", err, map[string]interface{}{
			"owner_key": owner.Key(),
		})
		apperrors.ParseAndRespond(c, err, "fetch cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// AddToCart adds one unit of a product
// POST /api/v1/cart/items
func (ctrl *CartController) AddToCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := middleware.GetOwner(c)

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"owner_key": owner.Key(),
			"error":     err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	result, err := ctrl.cartService.Add(c.Request.Context(), owner, req.ProductID, req.VariationIDs)
	if err != nil {
		ctrl.respondCartError(c, err, "add to cart")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// DecrementCartItem lowers the quantity by one
// POST /api/v1/cart/items/:product_id/decrement
func (ctrl *CartController) DecrementCartItem(c *gin.Context) {
	owner := middleware.GetOwner(c)
	productID, variationIDs, ok := itemTuple(c)
	if !ok {
		return
	}

	remaining, err := ctrl.cartService.Decrement(c.Request.Context(), owner, productID, variationIDs...)
	if err != nil {
		ctrl.respondCartError(c, err, "update cart item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"quantity":   remaining,
	})
}

// RemoveCartItem deletes an item regardless of quantity
// DELETE /api/v1/cart/items/:product_id
func (ctrl *CartController) RemoveCartItem(c *gin.Context) {
	owner := middleware.GetOwner(c)
	productID, variationIDs, ok := itemTuple(c)
	if !ok {
		return
	}

	notice, err := ctrl.cartService.RemoveItem(c.Request.Context(), owner, productID, variationIDs...)
	if err != nil {
		ctrl.respondCartError(c, err, "remove cart item")
		return
	}

	notices := []string{}
	if notice != "" {
		notices = append(notices, notice)
	}
	c.JSON(http.StatusOK, gin.H{
		"removed": notice != "",
		"notices": notices,
	})
}

// Checkout builds the final summary or reports the blocking item
// POST /api/v1/cart/checkout
func (ctrl *CartController) Checkout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := middleware.GetOwner(c)

	summary, err := ctrl.cartService.Checkout(c.Request.Context(), owner)
	if err != nil {
		var unavailable *service.ItemUnavailableError
		if errors.As(err, &unavailable) {
			log.Warn("Checkout blocked", map[string]interface{}{
				"owner_key":  owner.Key(),
				"product_id": unavailable.ProductID,
				"status":     unavailable.Status,
			})
			c.JSON(http.StatusConflict, gin.H{
				"error":        apperrors.StockItemUnavailable,
				"message":      unavailable.Error(),
				"product_id":   unavailable.ProductID,
				"stock_status": unavailable.Status,
			})
			return
		}
		ctrl.respondCartError(c, err, "checkout")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ConsolidateCart folds duplicate active carts into the canonical one
// POST /api/v1/cart/consolidate
func (ctrl *CartController) ConsolidateCart(c *gin.Context) {
	owner := middleware.GetOwner(c)

	merged, err := ctrl.cartService.Consolidate(c.Request.Context(), owner)
	if err != nil {
		ctrl.respondCartError(c, err, "consolidate cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{"merged": merged})
}

// MergeOnLogin moves the anonymous session cart into the user's cart
// POST /api/v1/cart/merge
func (ctrl *CartController) MergeOnLogin(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	token := middleware.GetSessionToken(c)

	result := ctrl.mergeService.Merge(c.Request.Context(), token, userID)
	moved := result.Case == service.MergeBoth || result.Case == service.MergeSessionOnly
	if moved && ctrl.sessions != nil {
		if err := ctrl.sessions.Revoke(c.Request.Context(), token); err != nil {
			log.Warn("Failed to revoke merged session", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}

	log.Info("Login merge finished", map[string]interface{}{
		"user_id": userID,
		"case":    result.Case,
		"merged":  result.ItemsMerged,
	})
	c.JSON(http.StatusOK, result)
}

func (ctrl *CartController) respondCartError(c *gin.Context, err error, action string) {
	log := middleware.GetLoggerFromContext(c)
	owner := middleware.GetOwner(c)

	var limit *service.StockLimitError
	switch {
	case errors.Is(err, service.ErrOwnerRequired):
		apperrors.BadRequest(c, apperrors.AuthSessionRequired, "A session or login is required")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.CartProductNotFound, "Product not found")
	case errors.Is(err, service.ErrInvalidVariation):
		apperrors.BadRequest(c, apperrors.CartInvalidVariation, "Invalid product variation")
	case errors.Is(err, service.ErrOutOfStock):
		apperrors.Conflict(c, apperrors.StockOutOfStock, "Sorry, this product is out of stock.")
	case errors.As(err, &limit):
		apperrors.Conflict(c, apperrors.StockLimitReached, limit.Error())
	default:
		log.Error("Cart request failed", err, map[string]interface{}{
			"owner_key": owner.Key(),
			"action":    action,
		})
		apperrors.ParseAndRespond(c, err, action)
		return
	}

	log.Warn("Cart request rejected", map[string]interface{}{
		"owner_key": owner.Key(),
		"action":    action,
		"error":     err.Error(),
	})
}

// itemTuple reads the product id from the path and the variation ids from
// the query string, writing a 400 when either is malformed.
func itemTuple(c *gin.Context) (uint, []uint, bool) {
	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil || productID == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid product ID")
		return 0, nil, false
	}
	variationIDs, err := model.ParseVariationIDs(c.Query("variation_ids"))
	if err != nil {
		apperrors.BadRequest(c, apperrors.CartInvalidVariation, "Invalid variation IDs")
		return 0, nil, false
	}
	return uint(productID), variationIDs, true
}
