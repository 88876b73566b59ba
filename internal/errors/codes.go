// Package errors provides structured error handling for temario.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors
//   - 4XX: Request/validation errors
//   - 5XX: Delivery errors (rate limit, transient, permanent)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates persistence errors.
	CategoryStore Category = "STORE"
	// CategoryRequest indicates caller errors (bad input, missing target).
	CategoryRequest Category = "REQUEST"
	// CategoryDelivery indicates provider-side delivery errors.
	CategoryDelivery Category = "DELIVERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Configuration errors (1XX).
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigIO      = "ERR_102_CONFIG_IO"

	// Store errors (2XX).
	ErrCodeStoreIO      = "ERR_201_STORE_IO"
	ErrCodeStoreLocked  = "ERR_202_STORE_LOCKED"
	ErrCodeStoreCorrupt = "ERR_203_STORE_CORRUPT"

	// Request errors (4XX).
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeUnauthorized  = "ERR_403_UNAUTHORIZED"
	ErrCodeTopicNotFound = "ERR_404_TOPIC_NOT_FOUND"
	ErrCodeCatalogExists = "ERR_409_CATALOG_EXISTS"
	ErrCodeNoCatalog     = "ERR_412_NO_CATALOG"

	// Delivery errors. RateLimited and Transient are recovered
	// internally and never surfaced as job failures; Permanent resolves a
	// single item to skipped.
	ErrCodeRateLimited = "ERR_429_RATE_LIMITED"
	ErrCodeTransient   = "ERR_503_TRANSIENT"
	ErrCodePermanent   = "ERR_410_GONE"

	// Internal errors (5XX).
	ErrCodeInternal = "ERR_500_INTERNAL"
)

// categoryFromCode derives the category from a code's number range.
func categoryFromCode(code string) Category {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigIO:
		return CategoryConfig
	case ErrCodeStoreIO, ErrCodeStoreLocked, ErrCodeStoreCorrupt:
		return CategoryStore
	case ErrCodeInvalidInput, ErrCodeTopicNotFound, ErrCodeCatalogExists,
		ErrCodeNoCatalog, ErrCodeUnauthorized:
		return CategoryRequest
	case ErrCodeRateLimited, ErrCodeTransient, ErrCodePermanent:
		return CategoryDelivery
	default:
		return CategoryInternal
	}
}

// isRetryableCode reports whether operations failing with this code may be
// attempted again. Rate-limit and transient delivery errors are the only
// retryable conditions in the taxonomy.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeTransient:
		return true
	default:
		return false
	}
}
