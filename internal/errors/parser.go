package errors

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// ErrorInfo is a parsed error ready for the response body.
type ErrorInfo struct {
	Code    string
	Message string
	Status  int
}

// ParseError maps storage and network errors to a code and a message that
// leaks no internals. context names the operation, e.g. "cart item update".
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "Something went wrong",
			Status:  http.StatusInternalServerError,
		}
	}

	errStr := err.Error()
	errStrLower := strings.ToLower(errStr)

	// 1. gorm sentinels
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Code:    notFoundCode(context),
			Message: getNotFoundMessage(context),
			Status:  http.StatusNotFound,
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return parseDuplicateKeyError(errStr)
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ErrorInfo{
			Code:    ResourceNotFound,
			Message: "Referenced data does not exist",
			Status:  http.StatusNotFound,
		}
	}

	// 2. untranslated driver errors
	if strings.Contains(errStrLower, "duplicate key") || strings.Contains(errStrLower, "unique constraint") {
		return parseDuplicateKeyError(errStr)
	}
	if strings.Contains(errStrLower, "check constraint") {
		return parseCheckConstraintError(errStr)
	}
	if strings.Contains(errStrLower, "null value") && strings.Contains(errStrLower, "violates not-null constraint") {
		return ErrorInfo{
			Code:    ValidationRequired,
			Message: "A required field is missing",
			Status:  http.StatusBadRequest,
		}
	}

	// 3. network and connection errors
	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "A backing service is unavailable. Please try again later",
			Status:  http.StatusServiceUnavailable,
		}
	}

	return ErrorInfo{
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
		Status:  http.StatusInternalServerError,
	}
}

func parseDuplicateKeyError(errStr string) ErrorInfo {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "idx_cart_item_tuple") || strings.Contains(errLower, "cart_items") {
		return ErrorInfo{
			Code:    CartDuplicateItem,
			Message: "This item is already in the cart",
			Status:  http.StatusConflict,
		}
	}
	if strings.Contains(errLower, "idx_carts_active_owner") || strings.Contains(errLower, "carts.owner_key") {
		return ErrorInfo{
			Code:    ResourceConflict,
			Message: "An active cart already exists. Please try again",
			Status:  http.StatusConflict,
		}
	}

	return ErrorInfo{
		Code:    ResourceAlreadyExists,
		Message: "This data already exists",
		Status:  http.StatusConflict,
	}
}

func parseCheckConstraintError(errStr string) ErrorInfo {
	if strings.Contains(strings.ToLower(errStr), "quantity") {
		return ErrorInfo{
			Code:    ValidationInvalidInput,
			Message: "Quantity must be at least 1",
			Status:  http.StatusBadRequest,
		}
	}
	return ErrorInfo{
		Code:    ValidationInvalidInput,
		Message: "Invalid input",
		Status:  http.StatusBadRequest,
	}
}

func notFoundCode(context string) string {
	contextLower := strings.ToLower(context)
	switch {
	case strings.Contains(contextLower, "item"):
		return CartItemNotFound
	case strings.Contains(contextLower, "cart"):
		return CartNotFound
	case strings.Contains(contextLower, "product"):
		return CartProductNotFound
	}
	return ResourceNotFound
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	if strings.Contains(contextLower, "item") {
		return "Cart item not found"
	}
	if strings.Contains(contextLower, "cart") {
		return "Cart not found"
	}
	if strings.Contains(contextLower, "product") {
		return "Product not found"
	}
	return "The requested data was not found"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	if strings.Contains(contextLower, "add") || strings.Contains(contextLower, "create") {
		return "Could not add to the cart. Please try again later"
	}
	if strings.Contains(contextLower, "update") || strings.Contains(contextLower, "decrement") {
		return "Could not update the cart. Please try again later"
	}
	if strings.Contains(contextLower, "remove") || strings.Contains(contextLower, "delete") {
		return "Could not remove the item. Please try again later"
	}
	if strings.Contains(contextLower, "checkout") {
		return "Could not prepare checkout. Please try again later"
	}
	return "Something went wrong. Please try again later"
}

// ParseAndRespond parses err and writes it with the status it maps to.
func ParseAndRespond(c interface{ JSON(int, interface{}) }, err error, context string) {
	errorInfo := ParseError(err, context)
	c.JSON(errorInfo.Status, ErrorResponse{
		Error:   errorInfo.Code,
		Message: errorInfo.Message,
	})
}
