package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/askpa/assistant/internal/auth"
	"github.com/askpa/assistant/internal/core"
	"github.com/askpa/assistant/internal/ingest"
	"github.com/askpa/assistant/internal/store"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// requestError is a client mistake detected by the handler itself.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

func unprocessable(msg string) error {
	return &requestError{status: http.StatusUnprocessableEntity, msg: msg}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt rejects secrets longer than 72 bytes; max= counts runes.
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	return v
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a 500 without detail.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr     *requestError
		validation validator.ValidationErrors
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.status, ErrorResponse{Error: reqErr.msg})
	case errors.As(err, &validation):
		fields := make(map[string]string, len(validation))
		for _, fe := range validation {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Fields: fields})
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "upload too large"})
	case errors.Is(err, store.ErrDuplicateUser):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "User already exists"})
	case errors.Is(err, core.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, store.ErrUserNotFound):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid token"})
	case errors.Is(err, ingest.ErrUnsupportedType):
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{
			Error: "Unsupported file type; accepted: " + strings.Join(ingest.SupportedExtensions(), ", "),
		})
	case errors.Is(err, core.ErrEmptyDocument), errors.Is(err, core.ErrEmptyQuestion):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrUpstream):
		h.log.Error("upstream failure", zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "An upstream service failed, please try again"})
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
