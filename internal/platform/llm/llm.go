// Package llm is the client for the text- and image-generation collaborator. It speaks the
// OpenAI-compatible chat completions protocol, which Mistral's platform API also serves.
package llm

import (
	"context"
	"errors"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	// JSON requests a single JSON object back; the client strips markdown fences and
	// retries when the upstream returns something that does not parse.
	JSON bool
}

type ImageRequest struct {
	Model  string
	Prompt string
	Width  int
	Height int
}

// ImageResult holds either a hosted URL or raw image bytes, depending on the upstream.
type ImageResult struct {
	URL      string
	Bytes    []byte
	MimeType string
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

var (
	ErrNoAPIKey        = errors.New("llm: api key not configured")
	ErrEmptyCompletion = errors.New("llm: empty completion")
)
