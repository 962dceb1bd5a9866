package bible

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError collects every problem found in a candidate bible.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bible validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

func (e *ValidationError) addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Validate parses untrusted collaborator output and checks it. On success the returned
// bible has no nil lists.
func Validate(raw []byte) (*GameBible, error) {
	var b GameBible
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, &ValidationError{Errors: []string{"decode: " + err.Error()}}
	}
	if err := Check(&b); err != nil {
		return nil, err
	}
	b.normalize()
	return &b, nil
}

// Check verifies required fields, numeric ranges, referential integrity and that the task
// dependency graph is acyclic.
func Check(b *GameBible) error {
	ve := &ValidationError{}
	if b == nil {
		ve.addf("bible is nil")
		return ve
	}

	checkWorld(b.World, ve)

	characters := indexIDs("character", len(b.Characters), func(i int) string { return b.Characters[i].ID }, ve)
	tasks := indexIDs("task", len(b.Tasks), func(i int) string { return b.Tasks[i].ID }, ve)
	locations := indexIDs("location", len(b.Locations), func(i int) string { return b.Locations[i].ID }, ve)

	if len(b.Characters) == 0 {
		ve.addf("at least one character is required")
	}
	for _, c := range b.Characters {
		checkCharacter(c, ve)
	}

	if len(b.Tasks) == 0 {
		ve.addf("at least one task is required")
	}
	anyBlocking := false
	for _, t := range b.Tasks {
		anyBlocking = anyBlocking || t.Blocking
		if strings.TrimSpace(t.Title) == "" {
			ve.addf("task %q: title is required", t.ID)
		}
		if strings.TrimSpace(t.CompletionCondition) == "" {
			ve.addf("task %q: completion_condition is required", t.ID)
		}
		if strings.TrimSpace(t.Reward) == "" {
			ve.addf("task %q: reward is required", t.ID)
		}
		if t.AssignedNPC != nil && *t.AssignedNPC != "" && !characters[*t.AssignedNPC] {
			ve.addf("task %q assigned_npc %q is not a defined character", t.ID, *t.AssignedNPC)
		}
		for _, r := range t.Requires {
			if !tasks[r] {
				ve.addf("task %q requires undefined task %q", t.ID, r)
			}
		}
		for _, u := range t.Unlocks {
			if !tasks[u] {
				ve.addf("task %q unlocks undefined task %q", t.ID, u)
			}
		}
	}
	if len(b.Tasks) > 0 && !anyBlocking {
		ve.addf("at least one task must be blocking")
	}
	if cycle := findTaskCycle(b.Tasks, tasks); len(cycle) > 0 {
		ve.addf("task dependencies form a cycle: %s", strings.Join(cycle, " -> "))
	}

	sg := b.StoryGraph
	if strings.TrimSpace(sg.OpeningScene) == "" {
		ve.addf("story_graph.opening_scene is required")
	}
	if strings.TrimSpace(sg.EndingScene) == "" {
		ve.addf("story_graph.ending_scene is required")
	}
	if len(sg.Acts) == 0 {
		ve.addf("story_graph needs at least one act")
	}
	for i, a := range sg.Acts {
		if a.ActNumber < 1 {
			ve.addf("act[%d]: act_number must be >= 1, got %d", i, a.ActNumber)
		}
		if strings.TrimSpace(a.Title) == "" {
			ve.addf("act[%d]: title is required", i)
		}
		if a.LocationID == "" {
			ve.addf("act[%d]: location_id is required", i)
		} else if !locations[a.LocationID] {
			ve.addf("act[%d] location_id %q is not a defined location", i, a.LocationID)
		}
		for _, id := range a.TasksInAct {
			if !tasks[id] {
				ve.addf("act[%d] references undefined task %q", i, id)
			}
		}
	}

	if len(b.Locations) == 0 {
		ve.addf("at least one location is required")
	}
	for _, l := range b.Locations {
		if strings.TrimSpace(l.Name) == "" {
			ve.addf("location %q: name is required", l.ID)
		}
		for _, npc := range l.NPCsPresent {
			if !characters[npc] {
				ve.addf("location %q npcs_present references undefined character %q", l.ID, npc)
			}
		}
		for npc := range l.NPCSpawnSlots {
			if !characters[npc] {
				ve.addf("location %q npc_spawn_slots references undefined character %q", l.ID, npc)
			}
		}
		for _, dst := range l.ConnectedTo {
			if !locations[dst] {
				ve.addf("location %q connected_to undefined location %q", l.ID, dst)
			}
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func checkWorld(w World, ve *ValidationError) {
	if strings.TrimSpace(w.Title) == "" {
		ve.addf("world.title is required")
	}
	if strings.TrimSpace(w.Setting) == "" {
		ve.addf("world.setting is required")
	}
	if strings.TrimSpace(w.EndGoal) == "" {
		ve.addf("world.end_goal is required")
	}
	if strings.TrimSpace(w.Tone) == "" {
		ve.addf("world.tone is required")
	}
}

func checkCharacter(c Character, ve *ValidationError) {
	if strings.TrimSpace(c.Name) == "" {
		ve.addf("character %q: name is required", c.ID)
	}
	if c.TrustThreshold < 0 || c.TrustThreshold > 100 {
		ve.addf("character %q: trust_threshold %d outside [0,100]", c.ID, c.TrustThreshold)
	}
	dt := c.DialogueTree
	for _, f := range []struct{ name, v string }{
		{"greeting", dt.Greeting},
		{"resistant", dt.Resistant},
		{"cooperative", dt.Cooperative},
		{"convinced", dt.Convinced},
	} {
		if strings.TrimSpace(f.v) == "" {
			ve.addf("character %q: dialogue_tree.%s is required", c.ID, f.name)
		}
	}
}

// indexIDs builds a set of ids and records empty or duplicate ones.
func indexIDs(kind string, n int, id func(int) string, ve *ValidationError) map[string]bool {
	set := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if strings.TrimSpace(v) == "" {
			ve.addf("%s[%d]: id is required", kind, i)
			continue
		}
		if set[v] {
			ve.addf("duplicate %s id %q", kind, v)
		}
		set[v] = true
	}
	return set
}

// findTaskCycle returns one cycle in the graph formed by requires (dep -> task) and
// unlocks (task -> unlocked) edges, or nil. Edges to undefined tasks are ignored; those
// are reported separately.
func findTaskCycle(tasks []Task, defined map[string]bool) []string {
	edges := map[string][]string{}
	for _, t := range tasks {
		for _, r := range t.Requires {
			if defined[r] {
				edges[r] = append(edges[r], t.ID)
			}
		}
		for _, u := range t.Unlocks {
			if defined[u] {
				edges[t.ID] = append(edges[t.ID], u)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range edges[id] {
			switch color[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white && visit(t.ID) {
			return cycle
		}
	}
	return nil
}
