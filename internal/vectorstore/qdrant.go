package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Qdrant talks to a Qdrant cluster over its REST API. Collections use
// cosine distance; every point carries a user_id payload used as a
// mandatory query filter.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

// EnsureCollection creates the collection and its user_id payload index
// when the collection does not exist yet.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	status, err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath(""), create, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}

	index := map[string]any{
		"field_name":   "user_id",
		"field_schema": "keyword",
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), index, nil); err != nil {
		return fmt.Errorf("create user_id index on %s: %w", q.collection, err)
	}
	return nil
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

func (q *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		if len(r.Vector) != q.dimension {
			return fmt.Errorf("record %s: vector has %d dimensions, collection expects %d", r.ID, len(r.Vector), q.dimension)
		}
		points[i] = qdrantPoint{ID: r.ID, Vector: r.Vector, Payload: r.Payload}
	}

	body := map[string]any{"points": points}
	_, err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), body, nil)
	return err
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float32 `json:"score"`
		Payload Payload `json:"payload"`
	} `json:"result"`
}

// Query returns at most topK matches for userID, highest score first as
// ranked by the server.
func (q *Qdrant) Query(ctx context.Context, vector []float32, topK int, userID string) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if userID == "" {
		return nil, errors.New("user scope is required")
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "user_id", "match": map[string]any{"value": userID}},
			},
		},
	}
	var resp qdrantSearchResponse
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	n := min(len(resp.Result), topK)
	matches := make([]Match, 0, n)
	for _, r := range resp.Result[:n] {
		matches = append(matches, Match{
			ID:      fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return matches, nil
}

// do sends body as JSON and decodes the response into out when non-nil.
// The HTTP status is returned alongside any error.
func (q *Qdrant) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}
