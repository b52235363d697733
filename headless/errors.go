package headless

import (
	"errors"

	"github.com/jamesrr39/goutil/errorsx"
)

// error kinds, matched with errorsx.Cause
var (
	ErrOpenFailed        = errors.New("open failed")
	ErrStyleValidation   = errors.New("style parse failed")
	ErrStyleTypeMismatch = errors.New("style type mismatch")
	ErrRenderFailed      = errors.New("render failed")
	ErrNotInitialised    = errors.New("environment not initialised")
)

// NewError creates an error of the given kind. The message of cause (if any) is kept as context.
func NewError(kind error, cause error, kvPairs ...interface{}) errorsx.Error {
	if cause != nil {
		kvPairs = append(kvPairs, "cause", cause.Error())
	}

	return errorsx.Wrap(kind, kvPairs...)
}

// IsKind reports whether err is of the given kind
func IsKind(err error, kind error) bool {
	if err == nil {
		return false
	}
	return errorsx.Cause(err) == kind
}
