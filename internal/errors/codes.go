// Package errors provides structured error handling for kbindexd.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Catalog errors
//   - 3XX: Dependency errors (embedder, vector store, network)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryCatalog indicates datasource catalog errors.
	CategoryCatalog Category = "CATALOG"
	// CategoryDependency indicates embedder or vector store errors.
	CategoryDependency Category = "DEPENDENCY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Catalog errors (200-299)
	ErrCodeCatalogUnavailable = "ERR_201_CATALOG_UNAVAILABLE"
	ErrCodeCatalogQuery       = "ERR_202_CATALOG_QUERY"

	// Dependency errors (300-399)
	ErrCodeStoreUnavailable    = "ERR_301_STORE_UNAVAILABLE"
	ErrCodeStoreWrite          = "ERR_302_STORE_WRITE"
	ErrCodeEmbedderUnavailable = "ERR_303_EMBEDDER_UNAVAILABLE"
	ErrCodeEmbedderRequest     = "ERR_304_EMBEDDER_REQUEST"
	ErrCodeDimensionMismatch   = "ERR_305_DIMENSION_MISMATCH"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownSource = "ERR_402_UNKNOWN_SOURCE_KIND"

	// Internal errors (500-599)
	ErrCodeInternal  = "ERR_501_INTERNAL"
	ErrCodeCycleBusy = "ERR_502_CYCLE_BUSY"
)

// categoryFromCode derives the category from an error code prefix.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryCatalog
	case '3':
		return CategoryDependency
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from an error code.
// Embedder unavailability and dimension mismatches are configuration-class
// failures that cannot heal at runtime, so they are fatal.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeDimensionMismatch, ErrCodeConfigInvalid:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// retryableCodes lists codes representing transient conditions.
var retryableCodes = map[string]bool{
	ErrCodeCatalogUnavailable: true,
	ErrCodeStoreUnavailable:   true,
	ErrCodeStoreWrite:         true,
	ErrCodeEmbedderRequest:    true,
	ErrCodeCycleBusy:          true,
}

// isRetryableCode reports whether the code represents a transient condition.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
