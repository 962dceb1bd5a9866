package dialogue

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// reply is the collaborator's answer after tolerant decoding. Absent fields stay unset so
// the engine can apply its own defaults.
type reply struct {
	narration     string
	emotion       string
	delta         int
	hasDelta      bool
	completedTask string
	choices       []json.RawMessage
	hasChoices    bool
}

func parseReply(raw string) (reply, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return reply{}, err
	}
	var r reply
	r.narration, _ = stringField(m, "npc_response")
	r.emotion, _ = stringField(m, "emotion")
	r.delta, r.hasDelta = intField(m, "trust_delta")
	if id, ok := stringField(m, "completed_task_id"); ok && !strings.EqualFold(id, "null") {
		r.completedTask = id
	}
	if v, ok := m["player_choices"]; ok {
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil && len(arr) > 0 {
			r.choices = arr
			r.hasChoices = true
		}
	}
	return r, nil
}

func stringField(m map[string]json.RawMessage, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// intField accepts JSON numbers and numeric strings ("+6", "-3.0"); fractions are rounded.
func intField(m map[string]json.RawMessage, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return roundInt(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return roundInt(f)
		}
	}
	return 0, false
}

func roundInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(math.Round(f)), true
}

var defaultChoices = []Choice{
	{Index: 0, Text: "I understand.", TrustHint: 10},
	{Index: 1, Text: "Tell me more.", TrustHint: 5},
	{Index: 2, Text: "Never mind.", TrustHint: -5},
}

// buildChoices returns exactly three choices. Positions the collaborator left out take the
// default set; entries that are present but malformed become a neutral placeholder.
func buildChoices(raw []json.RawMessage) []Choice {
	out := make([]Choice, 0, len(defaultChoices))
	for i := range defaultChoices {
		if i >= len(raw) {
			out = append(out, defaultChoices[i])
			continue
		}
		out = append(out, parseChoice(raw[i], i))
	}
	return out
}

func parseChoice(raw json.RawMessage, index int) Choice {
	c := Choice{Index: index, Text: "...", TrustHint: 0}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		// Bare strings are accepted as choice text.
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			c.Text = strings.TrimSpace(s)
		}
		return c
	}
	if text, ok := stringField(m, "text"); ok {
		c.Text = text
	}
	if hint, ok := intField(m, "trust_hint"); ok {
		c.TrustHint = hint
	}
	return c
}
