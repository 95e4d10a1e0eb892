package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"

	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/services"
)

// Codes produced by the transport layer itself.
const (
	// codeRequestInProgress is returned while an earlier request with the
	// same Idempotency-Key is still running.
	codeRequestInProgress services.ErrorCode = "REQUEST_IN_PROGRESS"
	codeNotFound          services.ErrorCode = "NOT_FOUND"
	codeMethodNotAllowed  services.ErrorCode = "METHOD_NOT_ALLOWED"
)

var errEmptyBody = errors.New("request body is empty")

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    services.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Details map[string]string  `json:"details,omitempty"`
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.CodeUnauthorized:
		return http.StatusUnauthorized
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeValidation,
		services.CodeEmptyCart,
		services.CodeProductNotFound,
		services.CodeInsufficientStock,
		services.CodeInsufficientBalance:
		return http.StatusBadRequest
	case services.CodeOrderNotFound, codeNotFound:
		return http.StatusNotFound
	case codeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case services.CodeInvalidTransition, codeRequestInProgress:
		return http.StatusConflict
	case services.CodeRateLimited:
		return http.StatusTooManyRequests
	case services.CodePaymentGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeRawJSON(w, status, body)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, code services.ErrorCode, message string) {
	h.writeJSON(w, r, statusForCode(code), errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, codeNotFound, "Route not found")
}

func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, codeMethodNotAllowed, "Method not allowed")
}

// writeServiceError renders a service error. Internal causes are logged and
// replaced with a generic message.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	coded := services.AsError(err)
	status := statusForCode(coded.Code)

	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "operation", operation, "code", coded.Code, "error", err)
	} else {
		logger.Info("request rejected", "operation", operation, "code", coded.Code, "reason", coded.Message)
	}
	observability.MeterFromContext(r.Context()).Count(
		"http.server.rejected",
		1,
		sentry.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("code", string(coded.Code)),
		),
	)

	message := coded.Message
	if coded.Code == services.CodeInternal || message == "" {
		message = "An unexpected error occurred"
	}
	h.writeJSON(w, r, status, errorBody{
		Error: errorDetail{Code: coded.Code, Message: message, Details: coded.Meta},
	})
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields,
// and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return fmt.Errorf("request body must not exceed %d bytes", maxBytes.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return validateRequest(dst)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func validateRequest(dst any) error {
	err := requestValidator.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	first := fieldErrs[0]
	// Namespace is "<type>.<json path>"; the type name means nothing to clients.
	field := first.Namespace()
	if _, path, ok := strings.Cut(field, "."); ok {
		field = path
	}
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, first.Param())
	case "min", "max":
		return fmt.Errorf("%s fails %s=%s", field, first.Tag(), first.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return value, nil
}
