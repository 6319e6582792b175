// Package shell is the interactive terminal front end. It talks to the
// HTTP API and keeps the conversation only for the current session.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

type SignUpForm struct {
	FirstName    string
	LastName     string
	Email        string
	Password     string
	About        string
	DocumentPath string
}

type AuthResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Token   string `json:"token"`
}

type AppendResult struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

type Answer struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// Client holds the session token after a successful sign-up or login.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) LoggedIn() bool { return c.token != "" }

func (c *Client) Logout() { c.token = "" }

func (c *Client) SignUp(ctx context.Context, form SignUpForm) (*AuthResult, error) {
	fields := map[string]string{
		"first_name": form.FirstName,
		"last_name":  form.LastName,
		"email":      form.Email,
		"password":   form.Password,
		"about":      form.About,
	}

	var res AuthResult
	if err := c.postMultipart(ctx, "/api/signup", fields, form.DocumentPath, false, &res); err != nil {
		return nil, err
	}
	c.token = res.Token
	return &res, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}

	var res AuthResult
	if err := c.postJSON(ctx, "/api/login", body, false, &res); err != nil {
		return nil, err
	}
	c.token = res.Token
	return &res, nil
}

func (c *Client) Append(ctx context.Context, about, documentPath string) (*AppendResult, error) {
	var res AppendResult
	if err := c.postMultipart(ctx, "/api/append", map[string]string{"about": about}, documentPath, true, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Ask(ctx context.Context, question string) (*Answer, error) {
	var res Answer
	if err := c.postJSON(ctx, "/api/chat", map[string]string{"query": question}, true, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, authed bool, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, authed, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, documentPath string, authed bool, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	if documentPath != "" {
		f, err := os.Open(documentPath)
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()

		fw, err := mw.CreateFormFile("document", filepath.Base(documentPath))
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f); err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, authed, out)
}

func (c *Client) do(req *http.Request, authed bool, out any) error {
	if authed {
		if c.token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
