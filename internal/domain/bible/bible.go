// Package bible holds the World Bible: the generated, read-only dataset that describes one
// story's world, cast, tasks, story graph and locations.
package bible

type GameBible struct {
	World      World       `json:"world"`
	Characters []Character `json:"characters"`
	Tasks      []Task      `json:"tasks"`
	StoryGraph StoryGraph  `json:"story_graph"`
	Locations  []Location  `json:"locations"`
}

type World struct {
	Title     string `json:"title"`
	Setting   string `json:"setting"`
	EndGoal   string `json:"end_goal"`
	Tone      string `json:"tone"`
	TimeOfDay string `json:"time_of_day,omitempty"`
	Weather   string `json:"weather,omitempty"`
}

type DialogueTree struct {
	Greeting    string `json:"greeting"`
	Resistant   string `json:"resistant"`
	Cooperative string `json:"cooperative"`
	Convinced   string `json:"convinced"`
}

type Character struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Description          string       `json:"description,omitempty"`
	VisualDescription    string       `json:"visual_description,omitempty"`
	Role                 string       `json:"role,omitempty"`
	Archetype            string       `json:"archetype,omitempty"`
	Motivation           string       `json:"motivation,omitempty"`
	PersonalityTraits    []string     `json:"personality_traits"`
	RelationshipToPlayer string       `json:"relationship_to_player,omitempty"`
	ConvincingTriggers   []string     `json:"convincing_triggers"`
	TrustThreshold       int          `json:"trust_threshold"`
	DialogueTree         DialogueTree `json:"dialogue_tree"`
	MovementStyle        string       `json:"movement_style,omitempty"`
	SpritePrompt         string       `json:"sprite_prompt,omitempty"`
	PortraitPrompt       string       `json:"portrait_prompt,omitempty"`
	SpriteKey            string       `json:"sprite_key,omitempty"`
}

type Task struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Type                string   `json:"type,omitempty"`
	AssignedNPC         *string  `json:"assigned_npc"`
	Unlocks             []string `json:"unlocks"`
	Requires            []string `json:"requires"`
	Blocking            bool     `json:"blocking"`
	CompletionCondition string   `json:"completion_condition"`
	Reward              string   `json:"reward"`
}

type Act struct {
	ActNumber   int      `json:"act_number"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TasksInAct  []string `json:"tasks_in_act"`
	LocationID  string   `json:"location_id"`
}

type StoryGraph struct {
	OpeningScene string `json:"opening_scene"`
	Acts         []Act  `json:"acts"`
	EndingScene  string `json:"ending_scene"`
}

type MovementProfile struct {
	Speed        int     `json:"speed"`
	Friction     float64 `json:"friction"`
	CameraShake  bool    `json:"camera_shake"`
	AmbientSound string  `json:"ambient_sound,omitempty"`
	StepSound    string  `json:"step_sound,omitempty"`
}

type Location struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	TerrainType      string            `json:"terrain_type,omitempty"`
	BackgroundPrompt string            `json:"background_prompt,omitempty"`
	TileMapPrompt    string            `json:"tile_map_prompt,omitempty"`
	MovementProfile  *MovementProfile  `json:"movement_profile,omitempty"`
	NPCsPresent      []string          `json:"npcs_present"`
	NPCSpawnSlots    map[string]string `json:"npc_spawn_slots,omitempty"`
	PlayerSpawn      string            `json:"player_spawn,omitempty"`
	ConnectedTo      []string          `json:"connected_to"`
}

// Summary is the listing view of a stored bible.
type Summary struct {
	Title   string `json:"title"`
	Setting string `json:"setting"`
	Tone    string `json:"tone"`
}

func (b *GameBible) Summary() Summary {
	if b == nil {
		return Summary{Title: "Untitled"}
	}
	title := b.World.Title
	if title == "" {
		title = "Untitled"
	}
	return Summary{Title: title, Setting: b.World.Setting, Tone: b.World.Tone}
}

// normalize replaces nil slices with empty ones so the JSON form never carries null lists.
func (b *GameBible) normalize() {
	if b.Characters == nil {
		b.Characters = []Character{}
	}
	if b.Tasks == nil {
		b.Tasks = []Task{}
	}
	if b.Locations == nil {
		b.Locations = []Location{}
	}
	if b.StoryGraph.Acts == nil {
		b.StoryGraph.Acts = []Act{}
	}
	for i := range b.Characters {
		c := &b.Characters[i]
		c.PersonalityTraits = nonNil(c.PersonalityTraits)
		c.ConvincingTriggers = nonNil(c.ConvincingTriggers)
	}
	for i := range b.Tasks {
		t := &b.Tasks[i]
		t.Unlocks = nonNil(t.Unlocks)
		t.Requires = nonNil(t.Requires)
	}
	for i := range b.StoryGraph.Acts {
		b.StoryGraph.Acts[i].TasksInAct = nonNil(b.StoryGraph.Acts[i].TasksInAct)
	}
	for i := range b.Locations {
		l := &b.Locations[i]
		l.NPCsPresent = nonNil(l.NPCsPresent)
		l.ConnectedTo = nonNil(l.ConnectedTo)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
