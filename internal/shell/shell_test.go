package shell

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SignUpAppendAsk(t *testing.T) {
	var authHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/signup", "/api/append":
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				return
			}
			file, header, err := r.FormFile("document")
			if !assert.NoError(t, err) {
				return
			}
			file.Close()
			assert.Equal(t, "bio.txt", header.Filename)

			if r.URL.Path == "/api/signup" {
				assert.Equal(t, "ada@example.com", r.FormValue("email"))
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"message":"Sign-up successful","user_id":"u1","token":"tok"}`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"Information added","chunks":2}`))
		case "/api/chat":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = w.Write([]byte(`{"question":"` + body["query"] + `","response":"Tea."}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	doc := filepath.Join(t.TempDir(), "bio.txt")
	require.NoError(t, os.WriteFile(doc, []byte("likes tea"), 0o600))

	c := NewClient(srv.URL+"/", 0)
	assert.False(t, c.LoggedIn())

	_, err := c.Ask(context.Background(), "before login?")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	res, err := c.SignUp(context.Background(), SignUpForm{Email: "ada@example.com", Password: "pw", DocumentPath: doc})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.True(t, c.LoggedIn())

	added, err := c.Append(context.Background(), "more", doc)
	require.NoError(t, err)
	assert.Equal(t, 2, added.Chunks)

	ans, err := c.Ask(context.Background(), "what do I drink?")
	require.NoError(t, err)
	assert.Equal(t, "Tea.", ans.Response)

	assert.Equal(t, []string{"", "Bearer tok", "Bearer tok"}, authHeaders)

	c.Logout()
	assert.False(t, c.LoggedIn())
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.Login(context.Background(), "ada@example.com", "wrong")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.False(t, c.LoggedIn())
}

func TestClient_MissingDocument(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", 0)
	_, err := c.SignUp(context.Background(), SignUpForm{DocumentPath: filepath.Join(t.TempDir(), "nope.txt")})
	assert.ErrorContains(t, err, "failed to open document")
}

type fakeBackend struct {
	signUps   []SignUpForm
	logins    []string
	questions []string
	loggedOut bool
	askErr    error
}

func (f *fakeBackend) SignUp(_ context.Context, form SignUpForm) (*AuthResult, error) {
	f.signUps = append(f.signUps, form)
	return &AuthResult{Message: "Sign-up successful", UserID: "u1", Token: "tok"}, nil
}

func (f *fakeBackend) Login(_ context.Context, email, _ string) (*AuthResult, error) {
	f.logins = append(f.logins, email)
	return &AuthResult{Message: "Login successful", UserID: "u1", Token: "tok"}, nil
}

func (f *fakeBackend) Append(context.Context, string, string) (*AppendResult, error) {
	return &AppendResult{Message: "Information added", Chunks: 1}, nil
}

func (f *fakeBackend) Ask(_ context.Context, q string) (*Answer, error) {
	f.questions = append(f.questions, q)
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &Answer{Question: q, Response: "Answer to " + q}, nil
}

func (f *fakeBackend) Logout() { f.loggedOut = true }

func press(m *Model, msgs ...tea.Msg) *Model {
	for _, msg := range msgs {
		next, cmd := m.Update(msg)
		m = next.(*Model)
		// Run async backend calls inline.
		if cmd != nil && m.pending {
			next, _ = m.Update(cmd())
			m = next.(*Model)
		}
	}
	return m
}

func typeText(s string) tea.Msg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func loggedIn(t *testing.T, backend *fakeBackend) *Model {
	t.Helper()
	m := New(context.Background(), backend)
	// Welcome -> "Log in"
	m = press(m, down, enter, typeText("ada@example.com"), enter, typeText("pw"), enter)
	require.Equal(t, viewMenu, m.state)
	return m
}

func TestModel_Login(t *testing.T) {
	backend := &fakeBackend{}
	m := loggedIn(t, backend)

	assert.Equal(t, []string{"ada@example.com"}, backend.logins)
	assert.Equal(t, "ada@example.com", m.email)
	assert.Contains(t, m.View(), "Retrieve Info")
	assert.Contains(t, m.View(), "Login successful")
}

func TestModel_SignUp(t *testing.T) {
	backend := &fakeBackend{}
	m := New(context.Background(), backend)

	m = press(m, enter) // "Sign up"
	require.Equal(t, viewSignUp, m.state)

	m = press(m,
		typeText("Ada"), enter,
		typeText("Lovelace"), enter,
		typeText("ada@example.com"), enter,
		typeText("pw"), enter,
		enter, // about left empty
		typeText("/tmp/bio.txt"), enter,
	)
	require.Equal(t, viewMenu, m.state)
	require.Len(t, backend.signUps, 1)
	assert.Equal(t, SignUpForm{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Password:     "pw",
		DocumentPath: "/tmp/bio.txt",
	}, backend.signUps[0])
}

func TestModel_RequiredFields(t *testing.T) {
	backend := &fakeBackend{}
	m := New(context.Background(), backend)

	m = press(m, down, enter, enter, enter)
	assert.Equal(t, viewLogin, m.state)
	assert.Empty(t, backend.logins)
	assert.Contains(t, m.View(), "Email is required")

	m = press(m, esc)
	assert.Equal(t, viewWelcome, m.state)
}

func TestModel_RetrieveKeepsSessionHistory(t *testing.T) {
	backend := &fakeBackend{}
	m := loggedIn(t, backend)

	m = press(m, down, enter) // "Retrieve Info"
	require.Equal(t, viewRetrieve, m.state)

	m = press(m, typeText("first?"), enter, typeText("second?"), enter)
	assert.Equal(t, []string{"first?", "second?"}, backend.questions)
	require.Len(t, m.history, 2)
	assert.Equal(t, "Answer to second?", m.history[1].answer)
	assert.True(t, strings.Contains(m.renderHistory(), "You: first?"))

	backend.askErr = errors.New("upstream failed")
	m = press(m, typeText("third?"), enter)
	assert.Len(t, m.history, 2)
	assert.Contains(t, m.View(), "upstream failed")

	// Log out clears the session.
	m = press(m, esc, down, down, enter)
	assert.True(t, backend.loggedOut)
	assert.Equal(t, viewWelcome, m.state)
	assert.Empty(t, m.history)
}

func TestModel_Quit(t *testing.T) {
	m := New(context.Background(), &fakeBackend{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
