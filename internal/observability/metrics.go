package observability

import (
	"io"
	"net/http"
	"strings"
	"time"
)

var llmBuckets = []float64{0.5, 1, 2, 5, 10, 20, 40, 80}

// Metrics is the process-wide metric set. A nil *Metrics is valid and records nothing.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	llmRequests *CounterVec
	llmLatency  *HistogramVec
	generations *CounterVec
	cacheLookup *CounterVec
	dialogue    *CounterVec
	branch      *CounterVec
	portraits   *CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("opengaia_api_requests_total", "API requests by method, route and status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("opengaia_api_request_seconds", "API request latency.", []string{"method", "route"}, nil),
		apiInflight: NewGauge("opengaia_api_inflight", "API requests in flight."),
		llmRequests: NewCounterVec("opengaia_llm_requests_total", "Generation calls by prompt and status.", []string{"prompt", "status"}),
		llmLatency:  NewHistogramVec("opengaia_llm_request_seconds", "Generation call latency.", []string{"prompt"}, llmBuckets),
		generations: NewCounterVec("opengaia_world_generations_total", "World generation results by source.", []string{"source"}),
		cacheLookup: NewCounterVec("opengaia_bible_cache_lookups_total", "Bible cache lookups by result.", []string{"result"}),
		dialogue:    NewCounterVec("opengaia_dialogue_turns_total", "Dialogue turns by outcome.", []string{"outcome"}),
		branch:      NewCounterVec("opengaia_story_branches_total", "Story branch resolutions by status.", []string{"status"}),
		portraits:   NewCounterVec("opengaia_portraits_total", "Portrait generations by status.", []string{"status"}),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.generations, m.cacheLookup,
		m.dialogue, m.branch, m.portraits,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveLLM records one generation call. err == nil counts as "ok".
func (m *Metrics) ObserveLLM(prompt string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmRequests.Inc(prompt, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), prompt)
	}
}

func (m *Metrics) IncGeneration(source string) {
	if m == nil {
		return
	}
	m.generations.Inc(source)
}

func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookup.Inc("hit")
		return
	}
	m.cacheLookup.Inc("miss")
}

func (m *Metrics) IncDialogueTurn(outcome string) {
	if m == nil {
		return
	}
	m.dialogue.Inc(outcome)
}

func (m *Metrics) IncBranch(status string) {
	if m == nil {
		return
	}
	m.branch.Inc(status)
}

func (m *Metrics) IncPortrait(status string) {
	if m == nil {
		return
	}
	m.portraits.Inc(status)
}

// GenerationCount returns how many generations finished with source.
func (m *Metrics) GenerationCount(source string) float64 {
	if m == nil {
		return 0
	}
	return m.generations.Value(source)
}

// DialogueCount returns how many dialogue turns ended with outcome.
func (m *Metrics) DialogueCount(outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.dialogue.Value(outcome)
}
