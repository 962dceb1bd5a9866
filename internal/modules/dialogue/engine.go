// Package dialogue is the trust dialogue engine. Each call handles one conversation turn:
// evidence gating, one collaborator call, trust arithmetic, validation of any claimed task
// completion against the caller's active tasks, and the next player choices.
package dialogue

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
	ErrUpstream       = errors.New("npc dialogue generation failed")
	ErrMalformedReply = errors.New("npc dialogue reply is malformed")
)

const (
	evidenceRefusal    = "\"You come to me with nothing but words. Bring me proof, and then we'll talk.\""
	acceptChoiceText   = "[Accept reward and leave]"
	leaveChoiceText    = "[Leave]"
	rejectedEmotion    = "hostile"
	blockedEmotion     = "suspicious"
	defaultEmotion     = "neutral"
	defaultNarration   = "..."
	firstContactOpener = "The player approaches you."
)

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

type Engine struct {
	cfg     Config
	log     *logger.Logger
	llm     llm.Client
	prompts *prompts.Registry
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.Model == "" {
		cfg.Model = "mistral-small-latest"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.75
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	reg := deps.Prompts
	if reg == nil {
		reg = prompts.Default()
	}
	return &Engine{
		cfg:     cfg,
		log:     log.With("service", "DialogueEngine"),
		llm:     deps.LLM,
		prompts: reg,
		metrics: deps.Metrics,
		tracer:  otel.Tracer("opengaia/dialogue"),
	}
}

// Turn runs one conversation turn. Errors are ErrUpstream or ErrMalformedReply; evidence
// gaps and rejected task claims are normal responses.
func (e *Engine) Turn(ctx context.Context, req Request) (Response, error) {
	ctx, span := e.tracer.Start(ctx, "dialogue.Turn", trace.WithAttributes(
		attribute.String("character_id", req.CharacterID),
		attribute.Bool("opening", len(req.ConversationHistory) == 0),
	))
	defer span.End()

	log := e.log.With(append(ctxutil.LogFields(ctx), "character", req.CharacterName)...)
	level := clamp(req.TrustLevel, MinTrust, MaxTrust)

	if missing := missingItems(req.RequiredItems, req.Inventory); len(missing) > 0 {
		e.metrics.IncDialogueTurn("blocked")
		log.Info("dialogue blocked on missing evidence", "missing", missing)
		return Response{
			NPCResponse:   evidenceRefusal,
			Emotion:       blockedEmotion,
			TrustDelta:    0,
			NewTrustLevel: level,
			IsConvinced:   Convinced(level, req.TrustThreshold),
			PlayerChoices: []Choice{},
			Blocked:       true,
			BlockedReason: "Missing required items: " + strings.Join(missing, ", "),
		}, nil
	}

	opening := len(req.ConversationHistory) == 0
	r, err := e.ask(ctx, req, level, opening)
	if err != nil {
		e.metrics.IncDialogueTurn("error")
		span.RecordError(err)
		log.Error("dialogue generation failed", "error", err)
		return Response{}, err
	}

	delta := 0
	if !opening {
		switch {
		case r.hasDelta:
			delta = r.delta
		case req.PlayerChoiceIndex != nil:
			delta = choiceIndexDelta[*req.PlayerChoiceIndex]
		}
		delta = ClampDelta(delta)
	}

	resp := Response{
		NPCResponse:   orDefault(r.narration, defaultNarration),
		Emotion:       strings.ToLower(orDefault(r.emotion, defaultEmotion)),
		TrustDelta:    delta,
		NewTrustLevel: ApplyDelta(level, delta),
	}

	if claimed := r.completedTask; claimed != "" {
		_, blocked := findBlocked(req.BlockedTasks, claimed)
		if isActive(req.ActiveTasks, claimed) && !blocked {
			id := claimed
			resp.CompletedTaskID = &id
			resp.PlayerChoices = []Choice{{Index: 0, Text: acceptChoiceText, TrustHint: 0}}
			e.metrics.IncDialogueTurn("completed")
			log.Info("task completed in dialogue", "task_id", claimed)
		} else {
			resp = rejectClaim(req, level, claimed)
			e.metrics.IncDialogueTurn("rejected_claim")
			log.Warn("rejected task completion claim", "task_id", claimed, "active", taskIDs(req.ActiveTasks))
		}
	} else {
		resp.PlayerChoices = buildChoices(r.choices)
		if opening {
			e.metrics.IncDialogueTurn("opening")
		} else {
			e.metrics.IncDialogueTurn("continued")
		}
	}

	resp.IsConvinced = Convinced(resp.NewTrustLevel, req.TrustThreshold)
	span.SetAttributes(attribute.Int("trust_delta", resp.TrustDelta), attribute.Int("new_trust", resp.NewTrustLevel))
	return resp, nil
}

func (e *Engine) ask(ctx context.Context, req Request, level int, opening bool) (reply, error) {
	if e.llm == nil {
		return reply{}, fmt.Errorf("%w: %w", ErrUpstream, llm.ErrNoAPIKey)
	}
	name := prompts.PromptNPCDialogue
	if opening {
		name = prompts.PromptNPCFirstContact
	}
	p, err := e.prompts.Build(name, promptInput(req, level))
	if err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	msgs := []llm.Message{{Role: "system", Content: p.System}}
	if !opening {
		msgs = append(msgs, historyMessages(req.ConversationHistory)...)
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: p.User})

	started := time.Now()
	text, err := e.llm.Complete(ctx, llm.Request{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Temperature: e.cfg.Temperature,
		JSON:        true,
	})
	e.metrics.ObserveLLM(string(name), time.Since(started), err)
	if err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	r, err := parseReply(llm.SanitizeJSONText(text))
	if err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return r, nil
}

func promptInput(req Request, level int) prompts.Input {
	msg := strings.TrimSpace(req.PlayerChoiceText)
	if msg == "" {
		msg = firstContactOpener
	}
	return prompts.Input{
		CharacterName:        req.CharacterName,
		Description:          req.Description,
		Motivation:           req.Motivation,
		PersonalityTraits:    strings.Join(req.PersonalityTraits, ", "),
		RelationshipToPlayer: req.RelationshipToPlayer,
		ConvincingTriggers:   strings.Join(req.ConvincingTriggers, "; "),
		Greeting:             req.DialogueTree.Greeting,
		Resistant:            req.DialogueTree.Resistant,
		Cooperative:          req.DialogueTree.Cooperative,
		Convinced:            req.DialogueTree.Convinced,
		TrustLevel:           level,
		TrustThreshold:       req.TrustThreshold,
		TrustGap:             req.TrustThreshold - level,
		TrustBand:            Band(level, req.TrustThreshold),
		PlayerMessage:        msg,
		ActiveTasksJSON:      marshalOr(req.ActiveTasks, "[]"),
		BlockedTasksJSON:     marshalOr(req.BlockedTasks, "[]"),
		Inventory:            orDefault(strings.Join(req.Inventory, ", "), "(empty)"),
	}
}

// historyMessages keeps the trailing window and maps caller roles onto chat roles. System
// turns and empty content are dropped.
func historyMessages(history []Turn) []llm.Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	out := make([]llm.Message, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(t.Role)) {
		case "assistant", "npc":
			out = append(out, llm.Message{Role: "assistant", Content: content})
		case "user", "player":
			out = append(out, llm.Message{Role: "user", Content: content})
		}
	}
	return out
}

// rejectClaim builds the corrective response for a completion claim the caller never
// authorised.
func rejectClaim(req Request, level int, claimed string) Response {
	name := orDefault(req.CharacterName, "The stranger")
	narration := fmt.Sprintf("%s shakes their head. \"I don't know what you think you've done, but we are not finished here.\"", name)
	if bt, ok := findBlocked(req.BlockedTasks, claimed); ok {
		missing := bt.MissingPrerequisites
		if len(missing) == 0 && bt.Title != "" {
			missing = []string{bt.Title}
		}
		if len(missing) > 0 {
			narration = fmt.Sprintf("%s narrows their eyes. \"Not yet. You still have to deal with %s first.\"", name, strings.Join(missing, ", "))
		} else {
			narration = fmt.Sprintf("%s narrows their eyes. \"Not yet. You are getting ahead of yourself.\"", name)
		}
	}
	return Response{
		NPCResponse:     narration,
		Emotion:         rejectedEmotion,
		TrustDelta:      0,
		NewTrustLevel:   level,
		CompletedTaskID: nil,
		PlayerChoices:   []Choice{{Index: 0, Text: leaveChoiceText, TrustHint: 0}},
	}
}

// missingItems returns required items absent from the inventory, compared case-insensitively
// after trimming, in required order without duplicates.
func missingItems(required, inventory []string) []string {
	have := make(map[string]bool, len(inventory))
	for _, it := range inventory {
		have[normItem(it)] = true
	}
	var missing []string
	seen := map[string]bool{}
	for _, it := range required {
		k := normItem(it)
		if k == "" || have[k] || seen[k] {
			continue
		}
		seen[k] = true
		missing = append(missing, strings.TrimSpace(it))
	}
	return missing
}

func normItem(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func isActive(active []TaskRef, id string) bool {
	for _, t := range active {
		if t.ID == id {
			return true
		}
	}
	return false
}

func findBlocked(blocked []BlockedTask, id string) (BlockedTask, bool) {
	for _, t := range blocked {
		if t.ID == id {
			return t, true
		}
	}
	return BlockedTask{}, false
}

func taskIDs(ts []TaskRef) []string {
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	return ids
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func marshalOr(v any, def string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return def
	}
	return string(b)
}
