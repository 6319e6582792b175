package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askpa/assistant/internal/ingest"
	"github.com/askpa/assistant/internal/metrics"
	"github.com/askpa/assistant/internal/vectorstore"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ChatCompleter interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type RAGConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// RAGService runs the write path (extract, chunk, embed, upsert) and the
// read path (embed, query, prompt, complete) as explicit stages. Every
// stage either yields its value or stops the run with a *StageError or
// *UpstreamError.
type RAGService struct {
	embedder Embedder
	vectors  vectorstore.Store
	chat     ChatCompleter
	counter  TokenCounter
	cfg      RAGConfig
	log      *zap.Logger
}

func NewRAGService(embedder Embedder, vectors vectorstore.Store, chat ChatCompleter, cfg RAGConfig, log *zap.Logger) *RAGService {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = ingest.DefaultChunkSize
		cfg.ChunkOverlap = ingest.DefaultChunkOverlap
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGService{embedder: embedder, vectors: vectors, chat: chat, cfg: cfg, log: log}
}

// WithTokenCounter enables prompt size logging.
func (s *RAGService) WithTokenCounter(c TokenCounter) *RAGService {
	s.counter = c
	return s
}

// Owner scopes ingested vectors to one user.
type Owner struct {
	UserID string
	Email  string
}

type IngestInput struct {
	Owner    Owner
	About    string
	Document ingest.Document
	// StableIDs derives point IDs from the owner and chunk index, so
	// re-ingesting overwrites; otherwise every point gets a random ID.
	StableIDs bool
}

type IngestResult struct {
	Chunks int `json:"chunks"`
}

func (s *RAGService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	text, err := s.extract(in.Document)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunk(in.About, text)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embed(ctx, ingest.Texts(chunks))
	if err != nil {
		return nil, err
	}

	records, err := s.records(in, chunks, vectors)
	if err != nil {
		return nil, err
	}

	if err := s.upsert(ctx, records); err != nil {
		return nil, err
	}

	metrics.IngestedChunks.Add(float64(len(records)))
	s.log.Info("document ingested",
		zap.String("user_id", in.Owner.UserID),
		zap.String("document", in.Document.Name),
		zap.Int("chunks", len(records)))
	return &IngestResult{Chunks: len(records)}, nil
}

type Source struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Turn is one question and its answer. It is not persisted.
type Turn struct {
	Question string   `json:"question"`
	Answer   string   `json:"response"`
	Sources  []Source `json:"sources"`
}

func (s *RAGService) Ask(ctx context.Context, userID, question string) (*Turn, error) {
	vectors, err := s.embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}

	matches, err := s.query(ctx, vectors[0], userID)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, len(matches))
	contexts := make([]string, len(matches))
	for i, m := range matches {
		sources[i] = Source{Text: m.Payload.Text, Score: m.Score}
		contexts[i] = m.Payload.Text
	}

	answer, err := s.complete(ctx, BuildPrompt(contexts, question))
	if err != nil {
		return nil, err
	}

	return &Turn{Question: question, Answer: answer, Sources: sources}, nil
}

func (s *RAGService) extract(doc ingest.Document) (string, error) {
	text, err := ingest.Extract(doc)
	if err != nil {
		return "", &StageError{Stage: StageExtract, Err: err}
	}
	return text, nil
}

func (s *RAGService) chunk(about, text string) ([]ingest.Chunk, error) {
	full := about + "\n" + text
	if strings.TrimSpace(full) == "" {
		return nil, &StageError{Stage: StageChunk, Err: ErrEmptyDocument}
	}
	chunks, err := ingest.Split(full, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, &StageError{Stage: StageChunk, Err: err}
	}
	return chunks, nil
}

func (s *RAGService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	started := time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts))
	}
	metrics.ObserveUpstream(string(StageEmbed), started, err)
	if err != nil {
		s.log.Error("embedding failed", zap.Int("inputs", len(texts)), zap.Error(err))
		return nil, &UpstreamError{Stage: StageEmbed, Err: err}
	}
	s.log.Debug("embedded", zap.Int("inputs", len(texts)), zap.Duration("took", time.Since(started)))
	return vectors, nil
}

func (s *RAGService) records(in IngestInput, chunks []ingest.Chunk, vectors [][]float32) ([]vectorstore.Record, error) {
	if in.Owner.UserID == "" {
		return nil, &StageError{Stage: StageUpsert, Err: errors.New("owner user ID is required")}
	}

	var ns uuid.UUID
	if in.StableIDs {
		parsed, err := uuid.Parse(in.Owner.UserID)
		if err != nil {
			parsed = uuid.NewSHA1(uuid.NameSpaceOID, []byte(in.Owner.UserID))
		}
		ns = parsed
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		id := uuid.New()
		if in.StableIDs {
			id = uuid.NewSHA1(ns, []byte(fmt.Sprintf("%s-%d", in.Owner.UserID, c.Index)))
		}
		records[i] = vectorstore.Record{
			ID:     id.String(),
			Vector: vectors[i],
			Payload: vectorstore.Payload{
				UserID:     in.Owner.UserID,
				Email:      in.Owner.Email,
				Text:       c.Text,
				Source:     in.Document.Name,
				ChunkIndex: c.Index,
			},
		}
	}
	return records, nil
}

func (s *RAGService) upsert(ctx context.Context, records []vectorstore.Record) error {
	started := time.Now()
	err := s.vectors.Upsert(ctx, records)
	metrics.ObserveUpstream(string(StageUpsert), started, err)
	if err != nil {
		s.log.Error("vector upsert failed", zap.Int("records", len(records)), zap.Error(err))
		return &UpstreamError{Stage: StageUpsert, Err: err}
	}
	return nil
}

func (s *RAGService) query(ctx context.Context, vector []float32, userID string) ([]vectorstore.Match, error) {
	started := time.Now()
	matches, err := s.vectors.Query(ctx, vector, s.cfg.TopK, userID)
	metrics.ObserveUpstream(string(StageQuery), started, err)
	if err != nil {
		s.log.Error("vector query failed", zap.String("user_id", userID), zap.Error(err))
		return nil, &UpstreamError{Stage: StageQuery, Err: err}
	}
	if len(matches) > s.cfg.TopK {
		matches = matches[:s.cfg.TopK]
	}
	s.log.Debug("retrieved context", zap.String("user_id", userID), zap.Int("matches", len(matches)))
	return matches, nil
}

func (s *RAGService) complete(ctx context.Context, prompt Prompt) (string, error) {
	if s.counter != nil {
		if n, err := s.counter.Count(prompt.System + "\n" + prompt.User); err == nil {
			s.log.Debug("prompt size", zap.Int("tokens", n), zap.Int("chars", len(prompt.User)))
		} else {
			s.log.Debug("token count unavailable", zap.Error(err))
		}
	}

	started := time.Now()
	answer, err := s.chat.Complete(ctx, prompt)
	metrics.ObserveUpstream(string(StageComplete), started, err)
	if err != nil {
		s.log.Error("chat completion failed", zap.Error(err))
		return "", &UpstreamError{Stage: StageComplete, Err: err}
	}
	s.log.Debug("answer generated", zap.Duration("took", time.Since(started)))
	return answer, nil
}
