package params

import "github.com/tphakala/rtsync/internal/errors"

// ComponentParams is the error component name for this package.
const ComponentParams = "params"

// Sentinel errors are built once so returning them from the audio thread
// does not allocate.
var (
	// ErrUnknownParameter is returned for any id that was never registered.
	ErrUnknownParameter = errors.New(errors.NewStd("unknown parameter id")).
				Component(ComponentParams).
				Category(errors.CategoryNotFound).
				Build()

	// ErrDuplicateParameter is returned by Store.Add when the id is already registered.
	ErrDuplicateParameter = errors.New(errors.NewStd("duplicate parameter id")).
				Component(ComponentParams).
				Category(errors.CategoryConflict).
				Build()

	// ErrStoreSealed is returned by Store.Add once the store has been sealed.
	ErrStoreSealed = errors.New(errors.NewStd("parameter store is sealed")).
			Component(ComponentParams).
			Category(errors.CategoryState).
			Build()

	// ErrInvalidValue is returned when announcing NaN.
	ErrInvalidValue = errors.New(errors.NewStd("parameter value is not a number")).
			Component(ComponentParams).
			Category(errors.CategoryValidation).
			Build()
)
