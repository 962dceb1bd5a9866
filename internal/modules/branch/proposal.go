package branch

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// proposal is the collaborator's suggested outcome, decoded leniently. Nothing in it is
// trusted until reconcile has checked it against the game state.
type proposal struct {
	narrative   string
	consequence string
	scene       string
	unlocked    []string
	blocked     []BlockedTask
	trust       map[string]int
	gained      []string
	lost        []string
	steers      bool
	hasSteers   bool
	choices     []string
}

func parseProposal(raw string) (proposal, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return proposal{}, err
	}
	p := proposal{
		narrative:   str(m["narrative"]),
		consequence: str(m["consequence"]),
		scene:       str(m["new_scene_description"]),
		unlocked:    strList(m["tasks_unlocked"], "id"),
		blocked:     blockedList(m["tasks_blocked"]),
		trust:       intMap(m["npc_trust_changes"]),
		gained:      strList(m["inventory_gained"], "name"),
		lost:        strList(m["inventory_lost"], "name"),
		choices:     strList(m["next_choices"], "text"),
	}
	if v, ok := m["steers_toward_goal"]; ok {
		p.hasSteers = json.Unmarshal(v, &p.steers) == nil
	}
	return p, nil
}

func str(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// strList accepts an array of strings or of objects carrying the string under key.
func strList(raw json.RawMessage, key string) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s := str(it)
		if s == "" {
			var obj map[string]json.RawMessage
			if json.Unmarshal(it, &obj) == nil {
				s = str(obj[key])
			}
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func blockedList(raw json.RawMessage) []BlockedTask {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]BlockedTask, 0, len(items))
	for _, it := range items {
		if id := str(it); id != "" {
			out = append(out, BlockedTask{ID: id})
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(it, &obj) != nil {
			continue
		}
		id := str(obj["id"])
		if id == "" {
			id = str(obj["task_id"])
		}
		if id == "" {
			continue
		}
		out = append(out, BlockedTask{ID: id, Reason: str(obj["reason"]), NewCondition: str(obj["new_condition"])})
	}
	return out
}

// intMap decodes {"npc_id": delta}; deltas may be numbers or numeric strings.
func intMap(raw json.RawMessage) map[string]int {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	out := make(map[string]int, len(obj))
	for k, v := range obj {
		var f float64
		if json.Unmarshal(v, &f) != nil {
			parsed, err := strconv.ParseFloat(str(v), 64)
			if err != nil {
				continue
			}
			f = parsed
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		f = math.Max(-1000, math.Min(1000, f))
		out[strings.TrimSpace(k)] = int(math.Round(f))
	}
	return out
}
