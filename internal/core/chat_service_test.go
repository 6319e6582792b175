package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askpa/assistant/internal/store"
)

type chatFixture struct {
	svc   *ChatService
	users *store.FileUserStore
	emb   *fakeEmbedder
	vec   *fakeVectors
	chat  *fakeChat
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	users, err := store.NewFileUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	rag, emb, vec, chat := newTestRAG(RAGConfig{ChunkSize: 50, ChunkOverlap: 10, TopK: 5})
	return &chatFixture{
		svc:   NewChatService(users, rag, nil),
		users: users,
		emb:   emb,
		vec:   vec,
		chat:  chat,
	}
}

func (f *chatFixture) signUp(t *testing.T, email, password string) *SignUpResult {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), SignUpInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
		About:     "Mathematician",
		Document:  textDoc(t, "cv.md", "Wrote the first published algorithm."),
	})
	require.NoError(t, err)
	return res
}

func TestChatService_SignUpThenLogin(t *testing.T) {
	f := newChatFixture(t)

	res := f.signUp(t, " Ada@Example.com", "s3cret")
	assert.Equal(t, "ada@example.com", res.User.Username)
	assert.NotEqual(t, "s3cret", res.User.PasswordHash)
	assert.Positive(t, res.Chunks)
	assert.Len(t, f.vec.forUser(res.User.ID), res.Chunks)

	user, err := f.svc.Authenticate(context.Background(), "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
}

func TestChatService_SignUpDuplicate(t *testing.T) {
	f := newChatFixture(t)
	f.signUp(t, "ada@example.com", "s3cret")
	calls := f.emb.callCount()

	_, err := f.svc.SignUp(context.Background(), SignUpInput{
		Email:    "ADA@example.com",
		Password: "other",
		Document: textDoc(t, "cv.txt", "again"),
	})
	assert.ErrorIs(t, err, store.ErrDuplicateUser)
	assert.Equal(t, calls, f.emb.callCount(), "duplicate is rejected before any upstream call")

	_, err = f.svc.Register(context.Background(), "ada@example.com", "x", "", "")
	assert.ErrorIs(t, err, store.ErrDuplicateUser)
}

func TestChatService_SignUpUpstreamFailureWritesNothing(t *testing.T) {
	f := newChatFixture(t)
	f.vec.upsertErr = errors.New("vector db unavailable")

	_, err := f.svc.SignUp(context.Background(), SignUpInput{
		Email:    "ada@example.com",
		Password: "s3cret",
		Document: textDoc(t, "cv.txt", "hello"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = f.users.GetByUsername(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestChatService_Authenticate(t *testing.T) {
	f := newChatFixture(t)
	f.signUp(t, "ada@example.com", "s3cret")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ada@example.com", "guess"},
		{"unknown user", "bob@example.com", "s3cret"},
		{"empty password", "ada@example.com", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Authenticate(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestChatService_AppendAndAsk(t *testing.T) {
	f := newChatFixture(t)
	res := f.signUp(t, "ada@example.com", "s3cret")
	before := len(f.vec.forUser(res.User.ID))

	appended, err := f.svc.Append(context.Background(), res.User.ID, "Hobbies", textDoc(t, "hobbies.txt", "Enjoys poetry."))
	require.NoError(t, err)
	assert.Len(t, f.vec.forUser(res.User.ID), before+appended.Chunks)

	turn, err := f.svc.Ask(context.Background(), res.User.ID, "  What do I enjoy? ")
	require.NoError(t, err)
	assert.Equal(t, "What do I enjoy?", turn.Question)
	assert.Equal(t, "You like tea.", turn.Answer)
	assert.NotEmpty(t, turn.Sources)
}

func TestChatService_AskValidation(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.Ask(context.Background(), "missing", "hello?")
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	res := f.signUp(t, "ada@example.com", "s3cret")
	_, err = f.svc.Ask(context.Background(), res.User.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, f.chat.prompts)
}

func TestChatService_Register(t *testing.T) {
	f := newChatFixture(t)

	user, err := f.svc.Register(context.Background(), "grace@example.com", "hopper", "Grace", "Hopper")
	require.NoError(t, err)
	assert.Zero(t, f.emb.callCount())

	got, err := f.svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.FirstName)
}

func TestChatService_RegisterMatchesSignUp(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, " Grace@Example.com ", "hopper", " Grace ", "Hopper")
	require.NoError(t, err)
	signedUp := f.signUp(t, " Ada@Example.com", "s3cret")

	assert.Equal(t, "grace@example.com", registered.Username)
	assert.Equal(t, "Grace", registered.FirstName)
	assert.Equal(t, "ada@example.com", signedUp.User.Username)

	for email, password := range map[string]string{"grace@example.com": "hopper", "ada@example.com": "s3cret"} {
		_, err := f.svc.Authenticate(ctx, email, password)
		assert.NoError(t, err, email)
	}
}

func TestChatService_PasswordTooLongWritesNothing(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	long := strings.Repeat("é", 72)

	_, err := f.svc.SignUp(ctx, SignUpInput{
		Email:    "ada@example.com",
		Password: long,
		Document: textDoc(t, "cv.txt", "hello"),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Zero(t, f.emb.callCount())

	_, err = f.svc.Register(ctx, "ada@example.com", long, "", "")
	require.Error(t, err)

	_, err = f.users.GetByUsername(ctx, "ada@example.com")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
