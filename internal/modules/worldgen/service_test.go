package worldgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/yungbote/opengaia-backend/internal/data/cache"
	"github.com/yungbote/opengaia-backend/internal/data/cache/cachetest"
	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
	"github.com/yungbote/opengaia-backend/internal/domain/bible"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/llm/mock"
)

type recordingStore struct {
	mu   sync.Mutex
	recs []*world.Record
	err  error
}

func (s *recordingStore) Create(_ context.Context, rec *world.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	rec.ID = uuid.New()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordingStore) List(context.Context, int) ([]world.Summary, error) { return nil, nil }

func (s *recordingStore) GetByID(context.Context, uuid.UUID) (*world.Record, error) {
	return nil, world.ErrNotFound
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

const (
	story   = "A keeper of a drowned lighthouse hears the sea speak."
	endGoal = "Silence the sea"
)

func strPtr(s string) *string { return &s }

func stageReplies(t *testing.T, mutate func(b *bible.GameBible)) (chars, structure, merged string) {
	t.Helper()
	b := &bible.GameBible{
		World: bible.World{Title: "Drowned Light", Setting: "A flooded coast", EndGoal: endGoal, Tone: "eerie"},
		Characters: []bible.Character{{
			ID: "keeper", Name: "Ines", TrustThreshold: 40,
			ConvincingTriggers: []string{"the lamp", "her brother"},
			DialogueTree:       bible.DialogueTree{Greeting: "Who's there?", Resistant: "Go.", Cooperative: "Fine.", Convinced: "Come."},
		}},
		Tasks: []bible.Task{
			{ID: "task_lamp", Title: "Relight the lamp", AssignedNPC: strPtr("keeper"), Unlocks: []string{"task_sea"}, Blocking: true, CompletionCondition: "keeper trust_level >= 40", Reward: "oil"},
			{ID: "task_sea", Title: "Answer the sea", Requires: []string{"task_lamp"}, Blocking: true, CompletionCondition: "speak", Reward: "quiet"},
		},
		StoryGraph: bible.StoryGraph{
			OpeningScene: "Waves.",
			Acts:         []bible.Act{{ActNumber: 1, Title: "Light", TasksInAct: []string{"task_lamp", "task_sea"}, LocationID: "loc_tower"}},
			EndingScene:  "Calm.",
		},
		Locations: []bible.Location{{ID: "loc_tower", Name: "Tower", NPCsPresent: []string{"keeper"}}},
	}
	if mutate != nil {
		mutate(b)
	}
	c, err := json.Marshal(map[string]any{"characters": b.Characters})
	if err != nil {
		t.Fatalf("marshal characters: %v", err)
	}
	w, err := json.Marshal(map[string]any{"world": b.World, "tasks": b.Tasks, "story_graph": b.StoryGraph, "locations": b.Locations})
	if err != nil {
		t.Fatalf("marshal world: %v", err)
	}
	m, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal bible: %v", err)
	}
	return string(c), string(w), "```json\n" + string(m) + "\n```"
}

func newService(client llm.Client, store world.Repo) (*Service, *cachetest.MemKV, *observability.Metrics) {
	kv := cachetest.NewMemKV()
	metrics := observability.NewMetrics()
	svc := New(Config{}, Deps{
		LLM:     client,
		Cache:   cache.NewBibleCache(kv, 0, nil),
		Store:   store,
		Metrics: metrics,
	})
	return svc, kv, metrics
}

func TestGenerate_GeneratesThenServesFromCache(t *testing.T) {
	chars, structure, merged := stageReplies(t, nil)
	client := mock.Texts(chars, structure, merged)
	store := &recordingStore{}
	svc, _, metrics := newService(client, store)
	ctx := context.Background()

	first, err := svc.Generate(ctx, story, endGoal)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.Source != SourceGenerated {
		t.Fatalf("source = %s, want generated", first.Source)
	}
	if first.Bible.World.Title != "Drowned Light" {
		t.Fatalf("title = %q", first.Bible.World.Title)
	}
	if first.Fingerprint != bible.Fingerprint(story, endGoal) {
		t.Fatalf("fingerprint = %q", first.Fingerprint)
	}
	if client.Calls() != 3 {
		t.Fatalf("expected 3 generation calls, got %d", client.Calls())
	}

	reqs := client.Requests()
	if !strings.Contains(reqs[1].Messages[1].Content, `"keeper"`) {
		t.Fatalf("structuring stage did not receive extracted characters:\n%s", reqs[1].Messages[1].Content)
	}
	if !strings.Contains(reqs[2].Messages[1].Content, "WORLD_DATA") || !strings.Contains(reqs[2].Messages[1].Content, "task_lamp") {
		t.Fatalf("merge stage did not receive world data:\n%s", reqs[2].Messages[1].Content)
	}
	for i, r := range reqs {
		if !r.JSON {
			t.Fatalf("stage %d not in JSON mode", i)
		}
	}

	second, err := svc.Generate(ctx, story, endGoal)
	if err != nil {
		t.Fatalf("Generate (cached): %v", err)
	}
	if second.Source != SourceCache {
		t.Fatalf("second source = %s, want cache", second.Source)
	}
	if client.Calls() != 3 {
		t.Fatalf("cache hit invoked the collaborator: %d calls", client.Calls())
	}
	if !bytes.Equal(first.Raw, second.Raw) {
		t.Fatalf("cache hit is not byte-identical:\n%s\n%s", first.Raw, second.Raw)
	}

	svc.Wait()
	if store.count() != 1 {
		t.Fatalf("expected 1 persisted record, got %d", store.count())
	}
	rec := store.recs[0]
	if rec.Story != story || rec.EndGoal != endGoal || rec.Title != "Drowned Light" || rec.Source != "generated" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if metrics.GenerationCount("generated") != 1 || metrics.GenerationCount("cache") != 1 {
		t.Fatalf("unexpected generation metrics")
	}
}

func TestGenerate_InvalidReferencesYieldFallback(t *testing.T) {
	chars, structure, merged := stageReplies(t, func(b *bible.GameBible) {
		b.Tasks[1].Requires = []string{"task_missing"}
	})
	client := mock.Texts(chars, structure, merged)
	svc, kv, _ := newService(client, nil)

	res, err := svc.Generate(context.Background(), story, endGoal)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Source != SourceFallback {
		t.Fatalf("source = %s, want fallback", res.Source)
	}
	if diff := cmp.Diff(bible.Fallback(), res.Bible); diff != "" {
		t.Fatalf("result differs from fallback (-want +got):\n%s", diff)
	}
	if kv.Sets() != 1 {
		t.Fatalf("fallback should be cached, sets=%d", kv.Sets())
	}
	svc.Wait()
}

func TestGenerate_StageFailuresYieldFallback(t *testing.T) {
	chars, structure, _ := stageReplies(t, nil)
	cases := []struct {
		name   string
		client *mock.Scripted
		calls  int
	}{
		{"first stage errors", mock.New(mock.Reply{Err: errors.New("upstream 503")}), 1},
		{"no characters", mock.Texts(`{"characters":[]}`), 1},
		{"second stage not json", mock.Texts(chars, "I'd be happy to help!"), 2},
		{"merge stage errors", mock.New(mock.Reply{Text: chars}, mock.Reply{Text: structure}, mock.Reply{Err: llm.ErrEmptyCompletion}), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newService(tc.client, nil)
			res, err := svc.Generate(context.Background(), story, endGoal)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if res.Source != SourceFallback || res.Bible.World.Title != "Echoes of the Deep" {
				t.Fatalf("expected fallback, got %s %q", res.Source, res.Bible.World.Title)
			}
			if tc.client.Calls() != tc.calls {
				t.Fatalf("calls = %d, want %d", tc.client.Calls(), tc.calls)
			}
			svc.Wait()
		})
	}
}

func TestGenerate_NilClientYieldsFallback(t *testing.T) {
	svc, _, _ := newService(nil, nil)
	res, err := svc.Generate(context.Background(), story, endGoal)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Source != SourceFallback {
		t.Fatalf("source = %s", res.Source)
	}
	svc.Wait()
}

func TestGenerate_StoreFailureDoesNotFailRequest(t *testing.T) {
	chars, structure, merged := stageReplies(t, nil)
	store := &recordingStore{err: errors.New("db down")}
	svc, _, _ := newService(mock.Texts(chars, structure, merged), store)
	res, err := svc.Generate(context.Background(), story, endGoal)
	if err != nil || res.Source != SourceGenerated {
		t.Fatalf("Generate = %v, %v", res.Source, err)
	}
	svc.Wait()
}

// gatedClient blocks every completion until release is closed and answers by stage.
func gatedClient(t *testing.T, started chan<- struct{}, release <-chan struct{}) *mock.Scripted {
	chars, structure, merged := stageReplies(t, nil)
	var once sync.Once
	client := mock.New()
	client.Respond = func(req llm.Request) (string, error) {
		once.Do(func() { close(started) })
		<-release
		sys := req.Messages[0].Content
		switch {
		case strings.Contains(sys, "Step 1 of 3"):
			return chars, nil
		case strings.Contains(sys, "Step 2 of 3"):
			return structure, nil
		default:
			return merged, nil
		}
	}
	return client
}

func TestGenerate_ConcurrentMissesShareOneRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	client := gatedClient(t, started, release)
	svc, _, _ := newService(client, nil)

	const callers = 8
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Generate(context.Background(), story, endGoal)
		}(i)
	}
	<-started
	close(release)
	wg.Wait()
	svc.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !bytes.Equal(results[i].Raw, results[0].Raw) {
			t.Fatalf("caller %d got different content", i)
		}
	}
	if client.Calls() != 3 {
		t.Fatalf("expected one shared run (3 calls), got %d", client.Calls())
	}
}

func TestGenerate_CallerCancelLeavesSharedRunIntact(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	client := gatedClient(t, started, release)
	svc, _, _ := newService(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, story, endGoal)
		done <- err
	}()
	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	res, err := svc.Generate(context.Background(), story, endGoal)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Source == SourceFallback {
		t.Fatalf("shared run should have completed normally")
	}
	svc.Wait()
	if client.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", client.Calls())
	}
}
