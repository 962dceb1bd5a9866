package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// World generation
	Story          string
	EndGoal        string
	CharactersJSON string
	WorldJSON      string
	TileMapPrompt  string

	// NPC identity
	CharacterName        string
	Description          string
	Motivation           string
	PersonalityTraits    string
	RelationshipToPlayer string
	ConvincingTriggers   string
	Greeting             string
	Resistant            string
	Cooperative          string
	Convinced            string

	// Trust state
	TrustLevel     int
	TrustThreshold int
	TrustGap       int
	TrustBand      string

	// Dialogue turn
	PlayerMessage    string
	ActiveTasksJSON  string
	BlockedTasksJSON string
	Inventory        string

	// Branching
	PlayerAction  string
	GameStateJSON string
	WorldTone     string
}

// Prompt is a rendered template ready to send to the text-generation client.
type Prompt struct {
	Name    string
	Version int
	System  string
	User    string
}
