package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	pkghttp "github.com/BradenHooton/cadence/pkg/http"
)

const maxRequestBodyBytes = 1 << 20

// Global validator instance (reused across all handlers)
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeAndValidate reads a JSON body into req and validates it. It writes
// a 400 and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := validate.Struct(req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Invalid request", fieldDetails(err))
		return false
	}
	return true
}

func fieldDetails(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("%s: %s", ve[0].Field(), formatValidationError(ve[0]))
	}
	return ""
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "alphanum":
		return "must contain only letters and digits"
	case "uuid4":
		return "must be a valid id"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
