// Package voice turns NPC dialogue lines into streamed speech.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/opengaia-backend/internal/platform/elevenlabs"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

var (
	ErrEmptyText     = errors.New("voice text cannot be empty")
	ErrUnknownVoice  = errors.New("voice not found in registry")
	ErrNotConfigured = errors.New("speech synthesis is not configured")
	ErrUpstream      = errors.New("speech synthesis failed")
)

// Synthesizer is the speech collaborator.
type Synthesizer interface {
	Configured() bool
	Stream(ctx context.Context, req elevenlabs.SpeechRequest) (io.ReadCloser, error)
}

type Deps struct {
	Log *logger.Logger
	TTS Synthesizer
	// Voices extends or overrides DefaultVoices.
	Voices map[string]Voice
}

type Service struct {
	log    *logger.Logger
	tts    Synthesizer
	voices map[string]Voice
}

func New(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	voices := DefaultVoices()
	for k, v := range deps.Voices {
		if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v.VoiceID) != "" {
			voices[k] = v
		}
	}
	return &Service{log: log.With("service", "VoiceService"), tts: deps.TTS, voices: voices}
}

type Line struct {
	// NPCID is a registry key. When empty, Description picks one.
	NPCID       string
	Description string
	Text        string
	Emotion     string
}

// Stream resolves the voice and starts synthesis. The returned body is audio/mpeg and must be
// closed by the caller.
func (s *Service) Stream(ctx context.Context, line Line) (io.ReadCloser, error) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	key := strings.TrimSpace(line.NPCID)
	if key == "" {
		key = DetectVoiceKey(line.Description)
	}
	v, ok := s.voices[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, key)
	}
	if s.tts == nil || !s.tts.Configured() {
		return nil, ErrNotConfigured
	}
	model := v.Model
	if model == "" {
		model = defaultModel
	}
	s.log.Info("streaming tts", "voice", key, "emotion", line.Emotion, "chars", len(text))
	rc, err := s.tts.Stream(ctx, elevenlabs.SpeechRequest{
		VoiceID:  v.VoiceID,
		ModelID:  model,
		Text:     text,
		Settings: SettingsFor(line.Emotion),
	})
	if err != nil {
		s.log.Error("tts failed", "voice", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return rc, nil
}
