package ingest

import (
	"errors"
	"fmt"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunk is a window of the source text. Offset and length are in runes.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// Split cuts text into windows of at most size runes, each starting
// size-overlap runes after the previous one. The last window ends exactly
// at the end of the text, so a text longer than size yields
// ceil((len-overlap)/(size-overlap)) chunks.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, (len(runes)+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Texts returns the chunk bodies in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
