package transport

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

func transportError(message string, category goerrors.Category, metadata map[string]any) error {
	err := core.NewError(message, category, textCodeFor(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(source error, category goerrors.Category, message string, metadata map[string]any) error {
	err := core.WrapError(source, category, message, textCodeFor(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorUpstreamFailure
	default:
		return core.ErrorInternal
	}
}
