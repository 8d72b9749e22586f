package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "axiscli/internal/errors"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 64 * 1024

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate decodes the JSON body into dst and runs its validate
// tags. The returned error is an *apierrors.APIError ready to render.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.ErrInvalidRequest.With("Request body is required", nil)
		}
		return apierrors.InvalidRequestWithError(err)
	}

	if n, ok := dst.(interface{ Normalize() }); ok {
		n.Normalize()
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return apierrors.InvalidRequestWithError(err)
		}
		details := make([]apierrors.ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, apierrors.ValidationError{
				Field:   fe.Field(),
				Message: formatValidationError(fe),
			})
		}
		return apierrors.ErrValidationFailed.With(details[0].Message, details)
	}
	return nil
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
