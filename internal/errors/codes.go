package errors

// Error codes returned in the "error" field of every error response.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map messages from these codes.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"        // login required
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"       // token expired
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"       // token malformed or bad signature
	AuthSessionRequired    = "AUTH_SESSION_REQUIRED"    // no session token on the request
	AuthSessionUnavailable = "AUTH_SESSION_UNAVAILABLE" // session store unreachable

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Cart (CART_) ====================
	CartNotFound         = "CART_NOT_FOUND"
	CartItemNotFound     = "CART_ITEM_NOT_FOUND"
	CartDuplicateItem    = "CART_DUPLICATE_ITEM"
	CartProductNotFound  = "CART_PRODUCT_NOT_FOUND"
	CartInvalidVariation = "CART_INVALID_VARIATION"

	// ==================== Stock (STOCK_) ====================
	StockOutOfStock      = "STOCK_OUT_OF_STOCK"
	StockLimitReached    = "STOCK_LIMIT_REACHED"
	StockItemUnavailable = "STOCK_ITEM_UNAVAILABLE" // checkout blocked

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
)
