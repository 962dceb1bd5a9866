// Package worldgen runs the three-stage world generation pipeline: character extraction,
// world structuring over those characters, and a final merge. Output is validated before it
// is trusted; any failure yields the built-in fallback bible.
package worldgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/opengaia-backend/internal/data/cache"
	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
	"github.com/yungbote/opengaia-backend/internal/domain/bible"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/ctxutil"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
	"github.com/yungbote/opengaia-backend/internal/prompts"
)

type Source string

var errNotObject = errors.New("reply is not a JSON object")

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Result is one generation outcome. Raw is the exact JSON served to clients; a cache hit
// returns the same bytes the original generation produced.
type Result struct {
	Bible       *bible.GameBible
	Raw         json.RawMessage
	Fingerprint string
	Source      Source
}

type Config struct {
	Model       string
	Temperature float64
	// GenerateTimeout bounds one full pipeline run, detached from any single caller.
	GenerateTimeout time.Duration
	PersistTimeout  time.Duration
}

type Deps struct {
	Log     *logger.Logger
	LLM     llm.Client
	Prompts *prompts.Registry
	Cache   *cache.BibleCache
	Store   world.Repo
	Metrics *observability.Metrics
}

type Service struct {
	cfg     Config
	log     *logger.Logger
	llm     llm.Client
	prompts *prompts.Registry
	cache   *cache.BibleCache
	store   world.Repo
	metrics *observability.Metrics
	tracer  trace.Tracer

	flights  singleflight.Group
	persists sync.WaitGroup
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Model == "" {
		cfg.Model = "mistral-large-latest"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 4 * time.Minute
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	reg := deps.Prompts
	if reg == nil {
		reg = prompts.Default()
	}
	bc := deps.Cache
	if bc == nil {
		bc = cache.NewBibleCache(nil, 0, log)
	}
	store := deps.Store
	if store == nil {
		store = world.NopRepo()
	}
	return &Service{
		cfg:     cfg,
		log:     log.With("service", "WorldGenService"),
		llm:     deps.LLM,
		prompts: reg,
		cache:   bc,
		store:   store,
		metrics: deps.Metrics,
		tracer:  otel.Tracer("opengaia/worldgen"),
	}
}

// Generate returns the bible for (story, endGoal). It only fails when ctx ends before a
// result is available; generation problems degrade to the fallback bible.
func (s *Service) Generate(ctx context.Context, story, endGoal string) (Result, error) {
	fp := bible.Fingerprint(story, endGoal)
	ctx, span := s.tracer.Start(ctx, "worldgen.Generate", trace.WithAttributes(attribute.String("fingerprint", fp)))
	defer span.End()

	if res, ok := s.fromCache(ctx, fp); ok {
		s.metrics.IncCacheLookup(true)
		s.metrics.IncGeneration(string(SourceCache))
		span.SetAttributes(attribute.String("source", string(SourceCache)))
		s.log.Info("bible cache hit", append(ctxutil.LogFields(ctx), "fingerprint", fp)...)
		return res, nil
	}
	s.metrics.IncCacheLookup(false)

	// Concurrent misses for one fingerprint share a single run. The run is detached from the
	// caller so one disconnecting client does not cancel it for the others.
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(fp, func() (any, error) {
		runCtx, cancel := context.WithTimeout(detached, s.cfg.GenerateTimeout)
		defer cancel()
		if res, ok := s.fromCache(runCtx, fp); ok {
			return res, nil
		}
		return s.run(runCtx, fp, story, endGoal), nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		res := r.Val.(Result)
		span.SetAttributes(attribute.String("source", string(res.Source)), attribute.Bool("shared", r.Shared))
		return res, nil
	}
}

// Wait blocks until background persistence has finished.
func (s *Service) Wait() {
	s.persists.Wait()
}

func (s *Service) fromCache(ctx context.Context, fp string) (Result, bool) {
	raw, ok := s.cache.Get(ctx, fp)
	if !ok {
		return Result{}, false
	}
	var b bible.GameBible
	if err := json.Unmarshal(raw, &b); err != nil {
		s.log.Warn("cached bible does not decode, regenerating", "fingerprint", fp, "error", err)
		return Result{}, false
	}
	return Result{Bible: &b, Raw: raw, Fingerprint: fp, Source: SourceCache}, true
}

func (s *Service) run(ctx context.Context, fp, story, endGoal string) Result {
	log := s.log.With(append(ctxutil.LogFields(ctx), "fingerprint", fp)...)
	started := time.Now()

	source := SourceGenerated
	b, err := s.pipeline(ctx, story, endGoal)
	if err != nil {
		var ve *bible.ValidationError
		if errors.As(err, &ve) {
			log.Warn("generated bible failed validation, using fallback", "errors", ve.Errors)
		} else {
			log.Error("world generation failed, using fallback", "error", err)
		}
		b = bible.Fallback()
		source = SourceFallback
	}

	raw, err := json.Marshal(b)
	if err != nil {
		log.Error("encode bible failed, using fallback", "error", err)
		b, raw, source = bible.Fallback(), bible.FallbackJSON(), SourceFallback
	}

	s.cache.Set(ctx, fp, raw)
	s.persist(ctx, fp, story, endGoal, source, b, raw)
	s.metrics.IncGeneration(string(source))
	log.Info("world generated", "source", source, "title", b.World.Title, "duration_ms", time.Since(started).Milliseconds())

	return Result{Bible: b, Raw: raw, Fingerprint: fp, Source: source}
}

// pipeline runs the three dependent stages and validates the merged document.
func (s *Service) pipeline(ctx context.Context, story, endGoal string) (*bible.GameBible, error) {
	if s.llm == nil {
		return nil, llm.ErrNoAPIKey
	}

	charsRaw, err := s.completeJSON(ctx, prompts.PromptWorldCharacters, prompts.Input{Story: story, EndGoal: endGoal})
	if err != nil {
		return nil, fmt.Errorf("character extraction: %w", err)
	}
	var chars struct {
		Characters []json.RawMessage `json:"characters"`
	}
	if err := json.Unmarshal(charsRaw, &chars); err != nil {
		return nil, fmt.Errorf("character extraction: decode: %w", err)
	}
	if len(chars.Characters) == 0 {
		return nil, fmt.Errorf("character extraction: no characters returned")
	}

	charsJSON := indentJSON(charsRaw)
	worldRaw, err := s.completeJSON(ctx, prompts.PromptWorldStructure, prompts.Input{
		Story:          story,
		EndGoal:        endGoal,
		CharactersJSON: charsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("world structuring: %w", err)
	}

	merged, err := s.completeJSON(ctx, prompts.PromptWorldMerge, prompts.Input{
		CharactersJSON: charsJSON,
		WorldJSON:      indentJSON(worldRaw),
	})
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	return bible.Validate(merged)
}

// completeJSON runs one prompt in JSON mode and checks the reply is a JSON object.
func (s *Service) completeJSON(ctx context.Context, name prompts.PromptName, in prompts.Input) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "worldgen."+string(name))
	defer span.End()

	p, err := s.prompts.Build(name, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt build")
		return nil, err
	}
	started := time.Now()
	text, err := s.llm.Complete(ctx, llm.Request{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		JSON:        true,
		Messages: []llm.Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
	})
	s.metrics.ObserveLLM(string(name), time.Since(started), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion")
		return nil, err
	}
	raw := json.RawMessage(strings.TrimSpace(llm.SanitizeJSONText(text)))
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, fmt.Errorf("%w: %v", errNotObject, err)
	}
	span.SetAttributes(attribute.Int("reply_bytes", len(raw)))
	return raw, nil
}

func (s *Service) persist(ctx context.Context, fp, story, endGoal string, source Source, b *bible.GameBible, raw []byte) {
	sum := b.Summary()
	rec := &world.Record{
		Fingerprint: fp,
		Story:       story,
		EndGoal:     endGoal,
		Title:       sum.Title,
		Setting:     sum.Setting,
		Tone:        sum.Tone,
		Source:      string(source),
		Bible:       append([]byte(nil), raw...),
	}
	s.persists.Add(1)
	go func() {
		defer s.persists.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
		defer cancel()
		if err := s.store.Create(pctx, rec); err != nil {
			s.log.Warn("persist world failed", "fingerprint", fp, "error", err)
			return
		}
		s.log.Debug("world persisted", "fingerprint", fp, "id", rec.ID)
	}()
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
