package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/askpa/assistant/internal/auth"
	"github.com/askpa/assistant/internal/core"
	"github.com/askpa/assistant/internal/ingest"
	"github.com/askpa/assistant/internal/store"
)

// Service is the slice of core.ChatService the handlers call.
type Service interface {
	SignUp(ctx context.Context, in core.SignUpInput) (*core.SignUpResult, error)
	Authenticate(ctx context.Context, email, password string) (*store.User, error)
	GetUser(ctx context.Context, userID string) (*store.User, error)
	Append(ctx context.Context, userID, about string, doc ingest.Document) (*core.IngestResult, error)
	Ask(ctx context.Context, userID, question string) (*core.Turn, error)
}

type APIHandler struct {
	svc            Service
	tokens         *auth.Tokens
	validate       *validator.Validate
	maxUploadBytes int64
	log            *zap.Logger
}

func NewAPIHandler(svc Service, tokens *auth.Tokens, maxUploadMB int, log *zap.Logger) *APIHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{
		svc:            svc,
		tokens:         tokens,
		validate:       newValidator(),
		maxUploadBytes: int64(maxUploadMB) << 20,
		log:            log,
	}
}

type SignupRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,maxbytes=72"`
	About     string `json:"about" validate:"max=10000"`
}

type AuthResponse struct {
	Message string         `json:"message"`
	UserID  string         `json:"user_id"`
	Token   string         `json:"token"`
	User    *store.Profile `json:"user,omitempty"`
	Chunks  int            `json:"chunks,omitempty"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}

	req := SignupRequest{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
		Email:     strings.TrimSpace(r.FormValue("email")),
		Password:  r.FormValue("password"),
		About:     r.FormValue("about"),
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.SignUp(r.Context(), core.SignUpInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		About:     req.About,
		Document:  doc,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.tokens.Generate(res.User.ID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to generate token: %w", err))
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "Sign-up successful",
		UserID:  res.User.ID,
		Token:   token,
		User:    profileOf(res.User),
		Chunks:  res.Chunks,
	})
}

func profileOf(u *store.User) *store.Profile {
	p := u.Profile()
	return &p
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decodeBody(w, r, &req, func() {
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to generate token: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "Login successful",
		UserID:  user.ID,
		Token:   token,
		User:    profileOf(user),
	})
}

type AppendRequest struct {
	About string `json:"about" validate:"max=10000"`
}

type AppendResponse struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

func (h *APIHandler) AppendHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := AppendRequest{About: r.FormValue("about")}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Append(r.Context(), userID, req.About, doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AppendResponse{
		Message: "Information added",
		Chunks:  res.Chunks,
	})
}

type ChatRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req ChatRequest
	if err := h.decodeBody(w, r, &req, func() {
		req.Query = r.FormValue("query")
	}); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	turn, err := h.svc.Ask(r.Context(), userID, req.Query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads a JSON body, or falls back to form values for any other
// content type.
func (h *APIHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func()) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return badRequest("invalid request body: " + err.Error())
		}
		return nil
	}

	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return badRequest("invalid form: " + err.Error())
		}
	} else if err := r.ParseForm(); err != nil {
		return badRequest("invalid form: " + err.Error())
	}
	fromForm()
	return nil
}

func (h *APIHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("expected multipart form: " + err.Error())
	}
	return nil
}

func (h *APIHandler) readDocument(r *http.Request) (ingest.Document, error) {
	file, header, err := r.FormFile("document")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return ingest.Document{}, unprocessable("document is required")
		}
		return ingest.Document{}, badRequest("invalid document: " + err.Error())
	}
	defer file.Close()

	// Reject by type before reading the body.
	if _, err := ingest.ParseDocumentType(header.Filename, header.Header.Get("Content-Type")); err != nil {
		return ingest.Document{}, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	return ingest.NewDocument(header.Filename, header.Header.Get("Content-Type"), data)
}
