package biz

import (
	"errors"

	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrSchemaMismatch       = errors.New("schema mismatch")
	ErrNoConverterAvailable = errors.New("no converter available")
	// ErrConversionFailed wraps the converter error, which carries the tool output.
	ErrConversionFailed     = errors.New("conversion failed")
	ErrInvalidSettingsValue = errors.New("invalid settings value")
	ErrStorageFailed        = errors.New("storage failed")
)

// Validation errors are owned by the validator package.
var (
	ErrInvalidIdentifier      = validator.ErrInvalidIdentifier
	ErrPathOutsideAllowedRoot = validator.ErrPathOutsideAllowedRoot
	ErrInvalidFilename        = validator.ErrInvalidFilename
)
