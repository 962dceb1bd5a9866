package branch

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

const (
	MinTrustDelta = -20
	MaxTrustDelta = 25

	defaultNarrative    = "The story continues..."
	defaultBlockReason  = "Circumstances have changed."
	choiceCount         = 3
	consequenceFallback = "Deal with what just happened."
	lookAroundFallback  = "Look around for another way forward."
)

// reconcile turns a proposal into an outcome that keeps the end goal reachable. It returns
// the outcome and a list of repairs made, for logging.
//
// Rules applied:
//   - unlocked and blocked ids must name pending tasks; completed tasks are never touched
//   - every blocked task carries a non-empty new condition
//   - trust deltas apply to known NPCs only, clamped, and never lower a convinced NPC
//   - an NPC whose proposed (unclamped) loss would take trust to zero blocks, with a
//     recovery condition, every pending blocking task assigned to them
//   - inventory losses only name held items that are not completed-task rewards
//   - exactly three next choices, at least one of them advancing the end goal
func reconcile(state GameState, p proposal) (Outcome, []string) {
	var repairs []string
	note := func(format string, args ...any) { repairs = append(repairs, fmt.Sprintf(format, args...)) }

	pending := make(map[string]TaskState, len(state.PendingTasks))
	for _, t := range state.PendingTasks {
		pending[t.ID] = t
	}
	completed := make(map[string]bool, len(state.CompletedTasks))
	for _, t := range state.CompletedTasks {
		completed[t.ID] = true
	}
	npcs := make(map[string]NPCState, len(state.NPCs))
	for _, n := range state.NPCs {
		npcs[n.ID] = n
	}
	isPending := func(id string) bool {
		_, ok := pending[id]
		return ok && !completed[id]
	}

	out := Outcome{
		Narrative:           orDefault(p.narrative, defaultNarrative),
		Consequence:         p.consequence,
		NewSceneDescription: p.scene,
		TasksUnlocked:       []string{},
		TasksBlocked:        []BlockedTask{},
		NPCTrustChanges:     map[string]int{},
		InventoryGained:     []string{},
		InventoryLost:       []string{},
		SteersTowardGoal:    true,
	}

	blocked := map[string]bool{}
	for _, b := range p.blocked {
		if !isPending(b.ID) {
			note("dropped block of non-pending task %q", b.ID)
			continue
		}
		if blocked[b.ID] {
			continue
		}
		blocked[b.ID] = true
		if b.Reason == "" {
			b.Reason = defaultBlockReason
		}
		if b.NewCondition == "" {
			b.NewCondition = recoveryCondition(pending[b.ID])
			note("added new condition for blocked task %q", b.ID)
		}
		out.TasksBlocked = append(out.TasksBlocked, b)
	}

	ids := make([]string, 0, len(p.trust))
	for id := range p.trust {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		npc, ok := npcs[id]
		if !ok {
			note("dropped trust change for unknown npc %q", id)
			continue
		}
		raw := p.trust[id]
		d := clamp(raw, MinTrustDelta, MaxTrustDelta)
		if d < 0 && npc.IsConvinced() {
			note("dropped trust loss for convinced npc %q", id)
			continue
		}
		if d == 0 {
			continue
		}
		out.NPCTrustChanges[id] = d
		// The reported change is clamped; destruction is judged on what the story proposed.
		if raw >= 0 || npc.TrustLevel+raw > 0 {
			continue
		}
		for _, t := range state.PendingTasks {
			if t.AssignedNPC != id || !t.Blocking || !isPending(t.ID) || blocked[t.ID] {
				continue
			}
			blocked[t.ID] = true
			out.TasksBlocked = append(out.TasksBlocked, BlockedTask{
				ID:           t.ID,
				Reason:       fmt.Sprintf("%s no longer trusts you.", npcName(npc)),
				NewCondition: fmt.Sprintf("Regain %s's trust before attempting this again.", npcName(npc)),
			})
			note("blocked task %q after npc %q lost all trust", t.ID, id)
		}
	}

	seen := map[string]bool{}
	for _, id := range p.unlocked {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !isPending(id) || blocked[id] {
			note("dropped unlock of task %q", id)
			continue
		}
		out.TasksUnlocked = append(out.TasksUnlocked, id)
	}

	held := map[string]string{}
	for _, it := range state.Inventory {
		if k := normItem(it); k != "" {
			held[k] = strings.TrimSpace(it)
		}
	}
	rewards := map[string]bool{}
	for _, t := range state.CompletedTasks {
		if k := normItem(t.Reward); k != "" {
			rewards[k] = true
		}
	}
	lost := map[string]bool{}
	for _, it := range p.lost {
		k := normItem(it)
		name, ok := held[k]
		switch {
		case !ok:
			note("dropped loss of unheld item %q", it)
		case rewards[k]:
			note("kept completed-task reward %q", it)
		case !lost[k]:
			lost[k] = true
			out.InventoryLost = append(out.InventoryLost, name)
		}
	}
	gained := map[string]bool{}
	for _, it := range p.gained {
		k := normItem(it)
		if k == "" || gained[k] || (held[k] != "" && !lost[k]) {
			continue
		}
		gained[k] = true
		out.InventoryGained = append(out.InventoryGained, strings.TrimSpace(it))
	}

	if p.hasSteers && !p.steers {
		note("collaborator reported steers_toward_goal=false")
	}
	out.NextChoices = nextChoices(p.choices, state.EndGoal)
	return out, repairs
}

func recoveryCondition(t TaskState) string {
	switch {
	case t.CompletionCondition != "":
		return "Find another way: " + t.CompletionCondition
	case t.Title != "":
		return "Find another way to " + lowerFirst(t.Title) + "."
	default:
		return "Find another way forward before trying again."
	}
}

// nextChoices returns exactly choiceCount distinct choices. When no proposed choice names
// the end goal, the goal-advancing default takes the first slot.
func nextChoices(proposed []string, endGoal string) []string {
	advance := "Press on toward the goal."
	if g := strings.TrimSpace(endGoal); g != "" {
		advance = "Press on toward the goal: " + g
	}
	keys := goalWords(endGoal)

	var distinct []string
	seen := map[string]bool{}
	advances := false
	for _, c := range proposed {
		k := strings.ToLower(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		distinct = append(distinct, c)
		if len(distinct) <= choiceCount && mentionsAny(k, keys) {
			advances = true
		}
	}

	out := make([]string, 0, choiceCount)
	if !advances {
		out = append(out, advance)
		seen[strings.ToLower(advance)] = true
	}
	for _, c := range distinct {
		if len(out) == choiceCount {
			return out
		}
		if !advances && strings.EqualFold(c, advance) {
			continue
		}
		out = append(out, c)
	}
	for _, c := range []string{advance, consequenceFallback, lookAroundFallback} {
		if len(out) == choiceCount {
			break
		}
		if !seen[strings.ToLower(c)] {
			seen[strings.ToLower(c)] = true
			out = append(out, c)
		}
	}
	return out
}

var goalStopWords = map[string]bool{
	"with": true, "from": true, "that": true, "this": true, "into": true, "their": true,
	"them": true, "then": true, "than": true, "what": true, "when": true, "have": true,
	"will": true, "your": true, "onto": true, "over": true,
}

// goalWords are the lowercase words of at least four letters that identify the end goal.
func goalWords(goal string) []string {
	var out []string
	for _, w := range words(goal) {
		if len(w) >= 4 && !goalStopWords[w] && !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

func mentionsAny(choice string, keys []string) bool {
	for _, w := range words(choice) {
		if slices.Contains(keys, w) {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func npcName(n NPCState) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

func normItem(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
