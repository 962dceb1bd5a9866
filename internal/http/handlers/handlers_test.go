package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
	"github.com/yungbote/opengaia-backend/internal/domain/bible"
	"github.com/yungbote/opengaia-backend/internal/modules/branch"
	"github.com/yungbote/opengaia-backend/internal/modules/dialogue"
	"github.com/yungbote/opengaia-backend/internal/modules/portrait"
	"github.com/yungbote/opengaia-backend/internal/modules/voice"
	"github.com/yungbote/opengaia-backend/internal/modules/worldgen"
	"github.com/yungbote/opengaia-backend/internal/platform/elevenlabs"
	"github.com/yungbote/opengaia-backend/internal/platform/llm/mock"
)

type fakeGenerator struct {
	calls   int
	story   string
	endGoal string
	err     error
	tileMap map[string]any
	tileErr error
}

func (f *fakeGenerator) Generate(_ context.Context, story, endGoal string) (worldgen.Result, error) {
	f.calls++
	f.story, f.endGoal = story, endGoal
	if f.err != nil {
		return worldgen.Result{}, f.err
	}
	return worldgen.Result{
		Bible:       bible.Fallback(),
		Raw:         bible.FallbackJSON(),
		Fingerprint: bible.Fingerprint(story, endGoal),
		Source:      worldgen.SourceFallback,
	}, nil
}

func (f *fakeGenerator) TileMap(context.Context, string) (map[string]any, error) {
	return f.tileMap, f.tileErr
}

type fakeWorlds struct {
	rec     *world.Record
	listErr error
}

func (f *fakeWorlds) Create(context.Context, *world.Record) error { return nil }

func (f *fakeWorlds) List(context.Context, int) ([]world.Summary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.rec == nil {
		return []world.Summary{}, nil
	}
	return []world.Summary{{ID: f.rec.ID, Title: f.rec.Title, CreatedAt: f.rec.CreatedAt}}, nil
}

func (f *fakeWorlds) GetByID(_ context.Context, id uuid.UUID) (*world.Record, error) {
	if f.rec == nil || f.rec.ID != id {
		return nil, world.ErrNotFound
	}
	return f.rec, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &env)
	return env.Error.Code
}

func worldRouter(gen WorldGenerator, worlds world.Repo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWorldHandler(nil, gen, worlds)
	r := gin.New()
	r.POST("/api/generate-world", h.GenerateWorld)
	r.GET("/api/bibles", h.ListBibles)
	r.GET("/api/bibles/:id", h.GetBible)
	r.POST("/api/generate-tilemap", h.GenerateTileMap)
	return r
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthcheck", NewHealthHandler().HealthCheck)
	rec := do(t, r, http.MethodGet, "/healthcheck", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"service":"open-gaia-backend"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateWorld(t *testing.T) {
	gen := &fakeGenerator{}
	r := worldRouter(gen, nil)

	rec := do(t, r, http.MethodPost, "/api/generate-world", `{"story":"A drowned city hides a secret.","end_goal":"Raise the city"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var got struct {
		GameBible   json.RawMessage `json:"game_bible"`
		Fingerprint string          `json:"fingerprint"`
		Source      string          `json:"source"`
	}
	decode(t, rec, &got)
	served, err := bible.Validate(got.GameBible)
	if err != nil {
		t.Fatalf("served bible does not validate: %v", err)
	}
	if diff := cmp.Diff(bible.Fallback(), served); diff != "" {
		t.Fatalf("game_bible (-want +got):\n%s", diff)
	}
	if got.Source != "fallback" || got.Fingerprint != bible.Fingerprint("A drowned city hides a secret.", "Raise the city") {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestGenerateWorld_FingerprintsRequestAsSent(t *testing.T) {
	gen := &fakeGenerator{}
	const story, goal = "  A drowned city hides a secret.\n", "Raise the city "
	body, err := json.Marshal(map[string]string{"story": story, "end_goal": goal})
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, worldRouter(gen, nil), http.MethodPost, "/api/generate-world", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if gen.story != story || gen.endGoal != goal {
		t.Fatalf("generator got %q / %q, want the untrimmed request", gen.story, gen.endGoal)
	}
	var got struct {
		Fingerprint string `json:"fingerprint"`
	}
	decode(t, rec, &got)
	if got.Fingerprint != bible.Fingerprint(story, goal) {
		t.Fatalf("fingerprint = %s", got.Fingerprint)
	}
	if got.Fingerprint == bible.Fingerprint("A drowned city hides a secret.", "Raise the city") {
		t.Fatalf("whitespace variants must fingerprint differently")
	}
}

func TestGenerateWorld_Validation(t *testing.T) {
	for _, body := range []string{
		`{"story":"short","end_goal":"Raise the city"}`,
		`{"story":"A drowned city hides a secret.","end_goal":"x"}`,
		`{"story":"          x","end_goal":"Raise the city"}`,
		`not json`,
	} {
		gen := &fakeGenerator{}
		rec := do(t, worldRouter(gen, nil), http.MethodPost, "/api/generate-world", body)
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
			t.Fatalf("body %s: got %d %s", body, rec.Code, rec.Body.String())
		}
		if gen.calls != 0 {
			t.Fatalf("body %s reached the generator", body)
		}
	}
}

func TestGenerateWorld_CallerGone(t *testing.T) {
	rec := do(t, worldRouter(&fakeGenerator{err: context.DeadlineExceeded}, nil), http.MethodPost, "/api/generate-world",
		`{"story":"A drowned city hides a secret.","end_goal":"Raise the city"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBibles(t *testing.T) {
	rec := &world.Record{
		ID:        uuid.New(),
		Story:     "A drowned city hides a secret.",
		EndGoal:   "Raise the city",
		Title:     "Echoes of the Deep",
		Bible:     datatypes.JSON(bible.FallbackJSON()),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	r := worldRouter(&fakeGenerator{}, &fakeWorlds{rec: rec})

	list := do(t, r, http.MethodGet, "/api/bibles", "")
	var listed struct {
		Bibles []world.Summary `json:"bibles"`
	}
	decode(t, list, &listed)
	if list.Code != http.StatusOK || len(listed.Bibles) != 1 || listed.Bibles[0].ID != rec.ID {
		t.Fatalf("list = %d %s", list.Code, list.Body.String())
	}

	got := do(t, r, http.MethodGet, "/api/bibles/"+rec.ID.String(), "")
	var one struct {
		ID        uuid.UUID       `json:"id"`
		Story     string          `json:"story"`
		GameBible bible.GameBible `json:"game_bible"`
	}
	decode(t, got, &one)
	if got.Code != http.StatusOK || one.ID != rec.ID || one.GameBible.World.Title != "Echoes of the Deep" {
		t.Fatalf("get = %d %s", got.Code, got.Body.String())
	}

	for _, path := range []string{"/api/bibles/" + uuid.NewString(), "/api/bibles/not-a-uuid"} {
		if rec := do(t, r, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
	if rec := do(t, r, http.MethodGet, "/api/bibles?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0: status = %d", rec.Code)
	}
}

func TestListBibles_StoreDownDegrades(t *testing.T) {
	r := worldRouter(&fakeGenerator{}, &fakeWorlds{listErr: errors.New("connection refused")})
	rec := do(t, r, http.MethodGet, "/api/bibles", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"bibles":[]}` {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateTileMap(t *testing.T) {
	cases := []struct {
		name   string
		gen    *fakeGenerator
		body   string
		status int
	}{
		{"ok", &fakeGenerator{tileMap: map[string]any{"width": 20.0}}, `{"tile_map_prompt":"a desert camp"}`, http.StatusOK},
		{"missing prompt", &fakeGenerator{}, `{}`, http.StatusBadRequest},
		{"blank prompt", &fakeGenerator{tileErr: worldgen.ErrEmptyPrompt}, `{"tile_map_prompt":" "}`, http.StatusBadRequest},
		{"malformed", &fakeGenerator{tileErr: worldgen.ErrTileMapMalformed}, `{"tile_map_prompt":"x"}`, http.StatusBadGateway},
		{"upstream", &fakeGenerator{tileErr: worldgen.ErrTileMapUpstream}, `{"tile_map_prompt":"x"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, worldRouter(tc.gen, nil), http.MethodPost, "/api/generate-tilemap", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func dialogueRouter(client *mock.Scripted) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDialogueHandler(dialogue.New(dialogue.Config{}, dialogue.Deps{LLM: client}))
	r := gin.New()
	r.POST("/api/npc-dialogue", h.Turn)
	return r
}

func TestNPCDialogue(t *testing.T) {
	client := mock.Texts(`{"npc_response":"Perhaps.","emotion":"conflicted","trust_delta":6}`)
	body := `{"character_name":"Dr. Okafor","trust_level":30,"trust_threshold":78,
		"player_choice_text":"Nice weather.","conversation_history":[{"role":"npc","content":"Go away."}],
		"active_tasks":[{"id":"task_y"}]}`
	rec := do(t, dialogueRouter(client), http.MethodPost, "/api/npc-dialogue", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var got dialogue.Response
	decode(t, rec, &got)
	if got.NewTrustLevel != 36 || got.IsConvinced || got.CompletedTaskID != nil || len(got.PlayerChoices) != 3 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestNPCDialogue_Errors(t *testing.T) {
	cases := []struct {
		name   string
		client *mock.Scripted
		body   string
		status int
		code   string
	}{
		{"missing name", mock.New(), `{"trust_level":30,"trust_threshold":78}`, http.StatusBadRequest, "invalid_request"},
		{"trust out of range", mock.New(), `{"character_name":"A","trust_level":130,"trust_threshold":78}`, http.StatusBadRequest, "invalid_request"},
		{"no player input", mock.New(), `{"character_name":"A","trust_level":30,"trust_threshold":78,"conversation_history":[{"role":"npc","content":"hi"}]}`, http.StatusBadRequest, "invalid_request"},
		{"upstream", mock.New(mock.Reply{Err: errors.New("503")}), `{"character_name":"A","trust_level":30,"trust_threshold":78}`, http.StatusBadGateway, "upstream_failed"},
		{"malformed", mock.Texts("nope"), `{"character_name":"A","trust_level":30,"trust_threshold":78}`, http.StatusBadGateway, "malformed_reply"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, dialogueRouter(tc.client), http.MethodPost, "/api/npc-dialogue", tc.body)
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBranchStory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := mock.Texts(`{"narrative":"The lab burns.","npc_trust_changes":{"okafor":-30}}`)
	h := NewStoryHandler(branch.New(branch.Config{}, branch.Deps{LLM: client}))
	r := gin.New()
	r.POST("/api/branch-story", h.Branch)

	body := `{"end_goal":"Expose the cartel","player_action":"Burn the lab",
		"pending_tasks":[{"id":"task_convince","assigned_npc":"okafor","blocking":true}],
		"npc_states":[{"id":"okafor","name":"Okafor","trust_level":10,"trust_threshold":78}]}`
	rec := do(t, r, http.MethodPost, "/api/branch-story", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var got branch.Outcome
	decode(t, rec, &got)
	if !got.SteersTowardGoal || len(got.TasksBlocked) != 1 || got.TasksBlocked[0].NewCondition == "" || len(got.NextChoices) != 3 {
		t.Fatalf("unexpected outcome: %+v", got)
	}

	rec = do(t, r, http.MethodPost, "/api/branch-story", `{"end_goal":"Expose the cartel"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing action: status = %d", rec.Code)
	}
}

func serveWithContext(t *testing.T, h http.Handler, ctx context.Context, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTurnAndBranch_ClientGoneIsNotUpstreamFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	story := gin.New()
	story.POST("/api/branch-story", NewStoryHandler(branch.New(branch.Config{}, branch.Deps{
		LLM: mock.Texts(`{"narrative":"unused"}`),
	})).Branch)

	const (
		dialogueBody = `{"character_name":"Dr. Okafor","trust_level":30,"trust_threshold":78,"player_choice_text":"Hello."}`
		branchBody   = `{"end_goal":"Expose the cartel","player_action":"Burn the lab"}`
	)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()

	cases := []struct {
		name   string
		router http.Handler
		path   string
		body   string
		ctx    context.Context
		status int
		code   string
	}{
		{"dialogue cancelled", dialogueRouter(mock.Texts(`{"npc_response":"unused"}`)), "/api/npc-dialogue", dialogueBody, cancelled, 499, "client_closed_request"},
		{"dialogue deadline", dialogueRouter(mock.Texts(`{"npc_response":"unused"}`)), "/api/npc-dialogue", dialogueBody, expired, http.StatusGatewayTimeout, "timeout"},
		{"branch cancelled", story, "/api/branch-story", branchBody, cancelled, 499, "client_closed_request"},
		{"branch deadline", story, "/api/branch-story", branchBody, expired, http.StatusGatewayTimeout, "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveWithContext(t, tc.router, tc.ctx, tc.path, tc.body)
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("got %d %s, want %d %s", rec.Code, rec.Body.String(), tc.status, tc.code)
			}
		})
	}
}

type fakePortraits struct {
	url string
	err error
}

func (f fakePortraits) Generate(context.Context, string) (string, error) { return f.url, f.err }

func (f fakePortraits) Batch(_ context.Context, subjects []portrait.Subject, field portrait.Field) map[string]string {
	out := map[string]string{}
	for _, s := range subjects {
		out[s.ID] = string(field) + ":" + s.ID
	}
	return out
}

func TestPortraits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		fake   fakePortraits
		body   string
		status int
	}{
		{"ok", fakePortraits{url: "https://img.test/a.png"}, `{"portrait_prompt":"a scientist"}`, http.StatusOK},
		{"missing prompt", fakePortraits{}, `{}`, http.StatusBadRequest},
		{"empty url", fakePortraits{}, `{"portrait_prompt":"a scientist"}`, http.StatusBadGateway},
		{"upstream", fakePortraits{err: portrait.ErrUpstream}, `{"portrait_prompt":"a scientist"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPortraitHandler(tc.fake)
			r := gin.New()
			r.POST("/api/generate-portrait", h.Generate)
			rec := do(t, r, http.MethodPost, "/api/generate-portrait", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}

	h := NewPortraitHandler(fakePortraits{})
	r := gin.New()
	r.POST("/api/generate-portraits", h.Batch)
	rec := do(t, r, http.MethodPost, "/api/generate-portraits", `{"characters":[{"id":"zara"},{"id":"okafor"}],"field":"sprite_prompt"}`)
	var got struct {
		Images map[string]string `json:"images"`
	}
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Images["zara"] != "sprite_prompt:zara" || len(got.Images) != 2 {
		t.Fatalf("batch = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, http.MethodPost, "/api/generate-portraits", `{"characters":[{"portrait_prompt":"x"}]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d", rec.Code)
	}
}

type fakeTTS struct {
	configured bool
	err        error
}

func (f fakeTTS) Configured() bool { return f.configured }

func (f fakeTTS) Stream(context.Context, elevenlabs.SpeechRequest) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(strings.Repeat("A", 10000))), nil
}

func TestNPCVoice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		tts    fakeTTS
		body   string
		status int
	}{
		{"streams", fakeTTS{configured: true}, `{"npc_id":"man","text":"Leave.","emotion":"hostile"}`, http.StatusOK},
		{"empty text", fakeTTS{configured: true}, `{"npc_id":"man","text":" "}`, http.StatusBadRequest},
		{"unknown voice", fakeTTS{configured: true}, `{"npc_id":"dr_marsh","text":"hi"}`, http.StatusNotFound},
		{"not configured", fakeTTS{}, `{"npc_id":"man","text":"hi"}`, http.StatusInternalServerError},
		{"upstream", fakeTTS{configured: true, err: errors.New("429")}, `{"npc_id":"man","text":"hi"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewVoiceHandler(nil, voice.New(voice.Deps{TTS: tc.tts}))
			r := gin.New()
			r.POST("/api/npc-voice", h.Speak)
			rec := do(t, r, http.MethodPost, "/api/npc-voice", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status == http.StatusOK {
				if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
					t.Fatalf("content-type = %q", ct)
				}
				if rec.Body.Len() != 10000 {
					t.Fatalf("streamed %d bytes", rec.Body.Len())
				}
			}
		})
	}
}
