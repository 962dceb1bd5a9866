// Package portrait generates character portraits and sprites through the image collaborator.
package portrait

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
	"github.com/yungbote/opengaia-backend/internal/platform/objectstore"
)

var (
	ErrEmptyPrompt = errors.New("portrait prompt is required")
	ErrUpstream    = errors.New("portrait generation failed")
	ErrEmptyImage  = errors.New("portrait generation returned no image")
)

type Field string

const (
	FieldPortrait Field = "portrait_prompt"
	FieldSprite   Field = "sprite_prompt"
)

// ParseField maps a request field name onto a Field; anything unknown is the portrait prompt.
func ParseField(s string) Field {
	if Field(strings.TrimSpace(s)) == FieldSprite {
		return FieldSprite
	}
	return FieldPortrait
}

type Subject struct {
	ID             string `json:"id"`
	PortraitPrompt string `json:"portrait_prompt"`
	SpritePrompt   string `json:"sprite_prompt"`
}

func (s Subject) prompt(f Field) string {
	if f == FieldSprite {
		return strings.TrimSpace(s.SpritePrompt)
	}
	return strings.TrimSpace(s.PortraitPrompt)
}

type Config struct {
	Model  string
	Width  int
	Height int
	// MaxConcurrent bounds in-flight image calls during a batch.
	MaxConcurrent int
}

type Deps struct {
	Log     *logger.Logger
	LLM     llm.Client
	Store   objectstore.Store
	Metrics *observability.Metrics
}

type Service struct {
	cfg     Config
	log     *logger.Logger
	llm     llm.Client
	store   objectstore.Store
	metrics *observability.Metrics
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Model == "" {
		cfg.Model = "flux-pro"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 512, 512
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log.With("service", "PortraitService"),
		llm:     deps.LLM,
		store:   deps.Store,
		metrics: deps.Metrics,
	}
}

// Generate returns a URL for one image. Hosted URLs pass through; raw bytes are uploaded when
// a store is configured and otherwise inlined as a data URL.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if s.llm == nil {
		s.metrics.IncPortrait("error")
		return "", fmt.Errorf("%w: %w", ErrUpstream, llm.ErrNoAPIKey)
	}
	img, err := s.llm.GenerateImage(ctx, llm.ImageRequest{
		Model:  s.cfg.Model,
		Prompt: prompt,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
	})
	if err != nil {
		s.metrics.IncPortrait("error")
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	url, err := s.publish(ctx, img)
	if err != nil {
		s.metrics.IncPortrait("error")
		return "", err
	}
	s.metrics.IncPortrait("ok")
	return url, nil
}

func (s *Service) publish(ctx context.Context, img llm.ImageResult) (string, error) {
	if u := strings.TrimSpace(img.URL); u != "" {
		return u, nil
	}
	if len(img.Bytes) == 0 {
		return "", ErrEmptyImage
	}
	mime := img.MimeType
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	if s.store != nil {
		sum := sha256.Sum256(img.Bytes)
		key := "portraits/" + hex.EncodeToString(sum[:]) + extFor(mime)
		url, err := s.store.Put(ctx, key, img.Bytes)
		if err == nil {
			return url, nil
		}
		s.log.Warn("portrait upload failed; inlining image", "key", key, "error", err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes), nil
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Batch generates one image per subject concurrently. A failed or promptless subject maps to
// "" and never fails the batch; the result has exactly one entry per input id.
func (s *Service) Batch(ctx context.Context, subjects []Subject, field Field) map[string]string {
	urls := make([]string, len(subjects))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, subj := range subjects {
		prompt := subj.prompt(field)
		if prompt == "" {
			continue
		}
		g.Go(func() error {
			url, err := s.Generate(ctx, prompt)
			if err != nil {
				s.log.Warn("image generation failed", "character_id", subj.ID, "field", string(field), "error", err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(subjects))
	for i, subj := range subjects {
		if prev, ok := out[subj.ID]; ok && prev != "" {
			continue
		}
		out[subj.ID] = urls[i]
	}
	return out
}
