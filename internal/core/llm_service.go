package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiService serves both the embedding and the chat role from one
// Gemini client.
type GeminiService struct {
	client         *genai.Client
	embeddingModel string
	chatModel      string
}

func NewGeminiService(ctx context.Context, apiKey, embeddingModel, chatModel string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiService{
		client:         client,
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}, nil
}

func (s *GeminiService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Embed issues one request per text; order of the result matches texts.
func (s *GeminiService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)

	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request %d failed: %w", i, err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding data received from gemini for input %d", i)
		}
		out = append(out, res.Embedding.Values)
	}
	return out, nil
}

func (s *GeminiService) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.System)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini response had no candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", errors.New("gemini response contained no text")
	}
	return strings.TrimSpace(responseText.String()), nil
}
