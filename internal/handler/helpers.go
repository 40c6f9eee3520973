package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrorResponse struct {
	Success bool               `json:"success"`
	Error   string             `json:"error"`
	Details []ValidationDetail `json:"details"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithJSON(w, r, code, ErrorResponse{Success: false, Error: message})
}

func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	render.Status(r, code)
	render.JSON(w, r, payload)
}

func mapErrorToStatusCode(err error) int {
	var vErr *order.ValidationError
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidStatus), errors.As(err, &vErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(errs validator.ValidationErrors) []ValidationDetail {
	details := make([]ValidationDetail, 0, len(errs))
	for _, fe := range errs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "email":
			msg = "must be a valid email"
		case "min":
			msg = "must have at least " + fe.Param() + " element(s)"
		case "gt":
			msg = "must be greater than " + fe.Param()
		case "oneof":
			msg = "must be one of: " + fe.Param()
		default:
			msg = "failed on '" + fe.Tag() + "'"
		}
		details = append(details, ValidationDetail{Field: jsonFieldPath(fe.Namespace()), Message: msg})
	}
	return details
}

// jsonFieldPath drops the root struct name from a validator namespace.
func jsonFieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationFailed(w http.ResponseWriter, r *http.Request, details []ValidationDetail) {
	respondWithJSON(w, r, http.StatusBadRequest, ValidationErrorResponse{
		Success: false,
		Error:   "Validation failed",
		Details: details,
	})
}

func validateRequest(v *validator.Validate, w http.ResponseWriter, r *http.Request, payload any) bool {
	err := v.Struct(payload)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		validationFailed(w, r, formatValidationErrors(validationErrors))
	} else {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, r, http.StatusInternalServerError, "Internal validation error")
	}
	return false
}
