package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askpa/assistant/internal/auth"
	"github.com/askpa/assistant/internal/ingest"
	"github.com/askpa/assistant/internal/store"
)

// RAG is the part of RAGService the account flows depend on.
type RAG interface {
	Ingest(ctx context.Context, in IngestInput) (*IngestResult, error)
	Ask(ctx context.Context, userID, question string) (*Turn, error)
}

// ChatService sequences the user-facing actions: sign-up, login, adding
// information and asking questions.
type ChatService struct {
	users store.UserStore
	rag   RAG
	log   *zap.Logger
	now   func() time.Time
}

func NewChatService(users store.UserStore, rag RAG, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{users: users, rag: rag, log: log, now: time.Now}
}

type SignUpInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	About     string
	Document  ingest.Document
}

type SignUpResult struct {
	User   *store.User
	Chunks int
}

// SignUp ingests the user's document and only then writes the account,
// so a failed upstream call leaves the user store untouched.
func (s *ChatService) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	user, err := s.newUser(ctx, in.Email, in.Password, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}

	res, err := s.rag.Ingest(ctx, IngestInput{
		Owner:     Owner{UserID: user.ID, Email: user.Username},
		About:     in.About,
		Document:  in.Document,
		StableIDs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest sign-up document: %w", err)
	}

	if err := s.create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			s.log.Warn("username taken during sign-up, vectors left orphaned",
				zap.String("user_id", user.ID), zap.Int("chunks", res.Chunks))
		}
		return nil, err
	}

	s.log.Info("user signed up", zap.String("user_id", user.ID), zap.Int("chunks", res.Chunks))
	return &SignUpResult{User: user, Chunks: res.Chunks}, nil
}

// Register creates an account without a document.
func (s *ChatService) Register(ctx context.Context, email, password, firstName, lastName string) (*store.User, error) {
	user, err := s.newUser(ctx, email, password, firstName, lastName)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// newUser checks the username is free and builds an unsaved account.
func (s *ChatService) newUser(ctx context.Context, email, password, firstName, lastName string) (*store.User, error) {
	username := store.NormalizeUsername(email)
	if err := s.checkAvailable(ctx, username); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		CreatedAt:    s.now().UTC(),
	}, nil
}

func (s *ChatService) create(ctx context.Context, user *store.User) error {
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return err
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Authenticate reports ErrInvalidCredentials for both an unknown user and
// a wrong password.
func (s *ChatService) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	user, err := s.users.GetByUsername(ctx, store.NormalizeUsername(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *ChatService) GetUser(ctx context.Context, userID string) (*store.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *ChatService) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.users.GetByUsername(ctx, store.NormalizeUsername(email))
}

// Append adds another document to an existing user's knowledge.
func (s *ChatService) Append(ctx context.Context, userID, about string, doc ingest.Document) (*IngestResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := s.rag.Ingest(ctx, IngestInput{
		Owner:    Owner{UserID: user.ID, Email: user.Username},
		About:    about,
		Document: doc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest document: %w", err)
	}
	return res, nil
}

func (s *ChatService) Ask(ctx context.Context, userID, question string) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.rag.Ask(ctx, userID, question)
}

func (s *ChatService) checkAvailable(ctx context.Context, username string) error {
	_, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return store.ErrDuplicateUser
	case errors.Is(err, store.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("failed to check username: %w", err)
	}
}
