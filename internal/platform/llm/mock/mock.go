// Package mock provides a scripted stand-in for the generation collaborator.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/opengaia-backend/internal/platform/llm"
)

// Reply is one scripted completion: either Text or Err.
type Reply struct {
	Text string
	Err  error
}

// Scripted returns its replies in order and records every request it receives.
// When the script runs out it returns ErrExhausted. Respond, when set, takes precedence.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request

	Respond func(req llm.Request) (string, error)
	Image   func(req llm.ImageRequest) (llm.ImageResult, error)
}

var ErrExhausted = errors.New("mock: script exhausted")

func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Scripted {
	rs := make([]Reply, 0, len(texts))
	for _, t := range texts {
		rs = append(rs, Reply{Text: t})
	}
	return New(rs...)
}

func (s *Scripted) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	respond := s.Respond
	var next *Reply
	if respond == nil && len(s.replies) > 0 {
		r := s.replies[0]
		s.replies = s.replies[1:]
		next = &r
	}
	s.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	if next == nil {
		return "", ErrExhausted
	}
	return next.Text, next.Err
}

func (s *Scripted) GenerateImage(ctx context.Context, req llm.ImageRequest) (llm.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return llm.ImageResult{}, err
	}
	if s.Image == nil {
		return llm.ImageResult{}, errors.New("mock: no image handler")
	}
	return s.Image(req)
}

// Calls returns the number of completion requests seen so far.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded completion requests.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}
