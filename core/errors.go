package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput             = "RFP_BAD_INPUT"
	ErrorNotFound             = "RFP_NOT_FOUND"
	ErrorTransitionConflict   = "RFP_TRANSITION_CONFLICT"
	ErrorDuplicateAction      = "RFP_DUPLICATE_ACTION"
	ErrorAddressingInvalid    = "RFP_ADDRESSING_INVALID"
	ErrorSaveFailed           = "RFP_SAVE_FAILED"
	ErrorDeliveryFailed       = "RFP_DELIVERY_FAILED"
	ErrorStoreUnavailable     = "RFP_STORE_UNAVAILABLE"
	ErrorDirectoryUnavailable = "RFP_DIRECTORY_UNAVAILABLE"
	ErrorInternal             = "RFP_INTERNAL"
)

var (
	ErrActionNotFound = errors.New("core: action not found")
	ErrRFPNotFound    = errors.New("core: request for proposal not found")
	ErrDuplicateID    = errors.New("core: duplicate static id")

	ErrDeliverySourceClosed = errors.New("core: delivery source closed")
)

// ErrorKind tells a driver whether a failure can succeed on retry.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindPermanent ErrorKind = "permanent"
	ErrorKindTransient ErrorKind = "transient"
)

func newError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInputError(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

// ConfigError reports a configuration that failed to load or validate.
func ConfigError(source error, message string) error {
	return wrapError(source, goerrors.CategoryValidation, message, http.StatusBadRequest, ErrorBadInput, nil)
}

func NotFoundError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryNotFound, message, http.StatusNotFound, ErrorNotFound, metadata)
}

func TransitionError(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryConflict, http.StatusConflict, ErrorTransitionConflict, metadata)
}

func DuplicateActionError(message string, metadata map[string]any) error {
	return wrapError(ErrDuplicateID, goerrors.CategoryConflict, message, http.StatusConflict, ErrorDuplicateAction, metadata)
}

func AddressingError(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusUnprocessableEntity, ErrorAddressingInvalid, metadata)
}

func SaveError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryOperation, message, http.StatusServiceUnavailable, ErrorSaveFailed, metadata)
}

func DeliveryError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusServiceUnavailable, ErrorDeliveryFailed, metadata)
}

func StoreUnavailableError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryOperation, message, http.StatusServiceUnavailable, ErrorStoreUnavailable, metadata)
}

func DirectoryUnavailableError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusServiceUnavailable, ErrorDirectoryUnavailable, metadata)
}

func InternalError(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

// ClassifyError maps an engine error onto permanent or transient.
// Unknown errors are transient so a bus delivery is requeued rather than lost.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	if errors.Is(err, ErrDuplicateID) {
		return ErrorKindPermanent
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return ErrorKindTransient
	}
	switch strings.TrimSpace(rich.TextCode) {
	case ErrorBadInput, ErrorNotFound, ErrorTransitionConflict, ErrorDuplicateAction, ErrorAddressingInvalid:
		return ErrorKindPermanent
	case ErrorSaveFailed, ErrorDeliveryFailed, ErrorStoreUnavailable, ErrorDirectoryUnavailable:
		return ErrorKindTransient
	}
	switch rich.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryNotFound, goerrors.CategoryConflict:
		return ErrorKindPermanent
	default:
		return ErrorKindTransient
	}
}

func IsPermanent(err error) bool {
	return ClassifyError(err) == ErrorKindPermanent
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrActionNotFound) || errors.Is(err, ErrRFPNotFound) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == ErrorNotFound || rich.Category == goerrors.CategoryNotFound
	}
	return false
}

// TextCode returns the stable code of an engine error, or ErrorInternal.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return rich.TextCode
	}
	return ErrorInternal
}
