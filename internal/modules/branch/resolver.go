// Package branch resolves off-script player actions. The collaborator proposes an outcome;
// the resolver reconciles it with the caller's game state so the end goal stays reachable.
package branch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/ctxutil"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
	"github.com/yungbote/opengaia-backend/internal/prompts"
)

var (
	ErrInvalidState   = errors.New("story branch requires a player action and an end goal")
	ErrUpstream       = errors.New("story branch generation failed")
	ErrMalformedReply = errors.New("story branch reply is malformed")
)

const defaultTone = "consistent with the story so far"

type Config struct {
	Model       string
	Temperature float64
}

type Deps struct {
	Log     *logger.Logger
	LLM     llm.Client
	Prompts *prompts.Registry
	Metrics *observability.Metrics
}

type Resolver struct {
	cfg     Config
	log     *logger.Logger
	llm     llm.Client
	prompts *prompts.Registry
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func New(cfg Config, deps Deps) *Resolver {
	if cfg.Model == "" {
		cfg.Model = "magistral-medium-2506"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	reg := deps.Prompts
	if reg == nil {
		reg = prompts.Default()
	}
	return &Resolver{
		cfg:     cfg,
		log:     log.With("service", "StoryBranchResolver"),
		llm:     deps.LLM,
		prompts: reg,
		metrics: deps.Metrics,
		tracer:  otel.Tracer("opengaia/branch"),
	}
}

// Resolve asks the collaborator for the next story beat and reconciles it with state.
func (r *Resolver) Resolve(ctx context.Context, state GameState) (Outcome, error) {
	if strings.TrimSpace(state.PlayerAction) == "" || strings.TrimSpace(state.EndGoal) == "" {
		return Outcome{}, ErrInvalidState
	}
	ctx, span := r.tracer.Start(ctx, "branch.Resolve", trace.WithAttributes(
		attribute.Int("pending_tasks", len(state.PendingTasks)),
		attribute.Int("npcs", len(state.NPCs)),
	))
	defer span.End()
	log := r.log.With(ctxutil.LogFields(ctx)...)

	p, err := r.propose(ctx, state)
	if err != nil {
		r.metrics.IncBranch("error")
		span.RecordError(err)
		log.Error("story branch failed", "error", err)
		return Outcome{}, err
	}

	out, repairs := reconcile(state, p)
	if len(repairs) > 0 {
		r.metrics.IncBranch("repaired")
		log.Warn("story branch proposal repaired", "repairs", repairs)
	} else {
		r.metrics.IncBranch("ok")
	}
	span.SetAttributes(
		attribute.Int("tasks_unlocked", len(out.TasksUnlocked)),
		attribute.Int("tasks_blocked", len(out.TasksBlocked)),
		attribute.Int("repairs", len(repairs)),
	)
	return out, nil
}

func (r *Resolver) propose(ctx context.Context, state GameState) (proposal, error) {
	if r.llm == nil {
		return proposal{}, fmt.Errorf("%w: %w", ErrUpstream, llm.ErrNoAPIKey)
	}
	snapshot := state
	snapshot.PlayerAction = ""
	stateJSON, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return proposal{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	p, err := r.prompts.Build(prompts.PromptStoryBranch, prompts.Input{
		PlayerAction:  strings.TrimSpace(state.PlayerAction),
		GameStateJSON: string(stateJSON),
		EndGoal:       state.EndGoal,
		WorldTone:     orDefault(state.WorldTone, defaultTone),
	})
	if err != nil {
		return proposal{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	started := time.Now()
	text, err := r.llm.Complete(ctx, llm.Request{
		Model: r.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: r.cfg.Temperature,
		JSON:        true,
	})
	r.metrics.ObserveLLM(string(prompts.PromptStoryBranch), time.Since(started), err)
	if err != nil {
		return proposal{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	prop, err := parseProposal(llm.SanitizeJSONText(text))
	if err != nil {
		return proposal{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return prop, nil
}
