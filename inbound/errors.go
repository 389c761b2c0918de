package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-rfp/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundConflict(message string, metadata map[string]any) error {
	return inboundError(message, goerrors.CategoryConflict, http.StatusConflict, core.ErrorTransitionConflict, metadata)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(message, goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal, metadata)
}

// persistError keeps typed engine errors; raw store errors become transient save failures.
func persistError(err error, message string, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return core.SaveError(err, message, metadata)
}
