package branch

// TaskState is a task as the caller currently sees it.
type TaskState struct {
	ID                  string `json:"id"`
	Title               string `json:"title,omitempty"`
	AssignedNPC         string `json:"assigned_npc,omitempty"`
	Blocking            bool   `json:"blocking,omitempty"`
	CompletionCondition string `json:"completion_condition,omitempty"`
	Reward              string `json:"reward,omitempty"`
}

type NPCState struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	TrustLevel     int    `json:"trust_level"`
	TrustThreshold int    `json:"trust_threshold"`
	Convinced      bool   `json:"convinced,omitempty"`
}

// IsConvinced treats either the caller's flag or a met threshold as convinced.
func (n NPCState) IsConvinced() bool {
	return n.Convinced || (n.TrustThreshold > 0 && n.TrustLevel >= n.TrustThreshold)
}

// GameState is the caller-held snapshot a branch is resolved against.
type GameState struct {
	EndGoal         string      `json:"end_goal"`
	WorldTone       string      `json:"world_tone"`
	StorySoFar      string      `json:"story_so_far"`
	CurrentLocation string      `json:"current_location"`
	CompletedTasks  []TaskState `json:"completed_tasks"`
	PendingTasks    []TaskState `json:"pending_tasks"`
	NPCs            []NPCState  `json:"npc_states"`
	Inventory       []string    `json:"inventory"`
	PlayerAction    string      `json:"player_action"`
}

type BlockedTask struct {
	ID           string `json:"id"`
	Reason       string `json:"reason"`
	NewCondition string `json:"new_condition"`
}

type Outcome struct {
	Narrative           string         `json:"narrative"`
	Consequence         string         `json:"consequence"`
	NewSceneDescription string         `json:"new_scene_description"`
	TasksUnlocked       []string       `json:"tasks_unlocked"`
	TasksBlocked        []BlockedTask  `json:"tasks_blocked"`
	NPCTrustChanges     map[string]int `json:"npc_trust_changes"`
	InventoryGained     []string       `json:"inventory_gained"`
	InventoryLost       []string       `json:"inventory_lost"`
	SteersTowardGoal    bool           `json:"steers_toward_goal"`
	NextChoices         []string       `json:"next_choices"`
}
