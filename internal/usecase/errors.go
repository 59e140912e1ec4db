package usecase

import (
	"strings"

	"github.com/xavierca1/conduit/internal/entity"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every problem found in one input.
// errors.Is(err, entity.ErrValidation) holds for it.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return entity.ErrValidation
}

// orNil keeps a nil slice from turning into a non-nil error interface.
func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
