package core

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const systemInstruction = "You are an assistant answering user-specific questions based on their uploaded data."

type Prompt struct {
	System string
	User   string
}

// BuildPrompt joins the retrieved chunks into one context block ahead of
// the question. Nothing is truncated.
func BuildPrompt(contexts []string, question string) Prompt {
	return Prompt{
		System: systemInstruction,
		User:   fmt.Sprintf("Context: %s\n\nQuestion: %s", strings.Join(contexts, "\n"), question),
	}
}

// TokenCounter reports the size of a prompt in model tokens.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts with the BPE of the configured chat model,
// falling back to cl100k_base for models tiktoken does not know.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.EncodingForModel(c.model)
		if c.err != nil {
			c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
		}
	})
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
