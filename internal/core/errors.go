package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUpstream           = errors.New("upstream service failed")
	ErrEmptyDocument      = errors.New("document contains no text")
	ErrEmptyQuestion      = errors.New("question cannot be empty")
)

type Stage string

const (
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageUpsert   Stage = "upsert"
	StageQuery    Stage = "query"
	StageComplete Stage = "complete"
)

// StageError reports a local pipeline stage that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UpstreamError reports a failed call to a hosted API. It matches
// ErrUpstream under errors.Is.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
