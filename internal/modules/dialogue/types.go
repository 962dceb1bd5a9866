package dialogue

import "github.com/yungbote/opengaia-backend/internal/domain/bible"

// Turn is one entry of the caller-held conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskRef names a task the caller considers completable in this conversation.
type TaskRef struct {
	ID                  string `json:"id"`
	Title               string `json:"title,omitempty"`
	CompletionCondition string `json:"completion_condition,omitempty"`
}

// BlockedTask is a task the caller knows about but that is not yet completable.
type BlockedTask struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title,omitempty"`
	MissingPrerequisites []string `json:"missing_prerequisites,omitempty"`
}

type Choice struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	TrustHint int    `json:"trust_hint"`
}

// Request is everything one dialogue turn needs. The server keeps no session state, so the
// caller sends the character snapshot, trust state, task sets and inventory every time.
type Request struct {
	CharacterID          string             `json:"character_id"`
	CharacterName        string             `json:"character_name"`
	Description          string             `json:"description"`
	Motivation           string             `json:"motivation"`
	RelationshipToPlayer string             `json:"relationship_to_player"`
	PersonalityTraits    []string           `json:"personality_traits"`
	ConvincingTriggers   []string           `json:"convincing_triggers"`
	DialogueTree         bible.DialogueTree `json:"dialogue_tree"`

	TrustLevel     int `json:"trust_level"`
	TrustThreshold int `json:"trust_threshold"`

	PlayerChoiceText    string `json:"player_choice_text"`
	PlayerChoiceIndex   *int   `json:"player_choice_index"`
	ConversationHistory []Turn `json:"conversation_history"`

	ActiveTasks   []TaskRef     `json:"active_tasks"`
	BlockedTasks  []BlockedTask `json:"blocked_tasks"`
	RequiredItems []string      `json:"required_items"`
	Inventory     []string      `json:"inventory"`
}

type Response struct {
	NPCResponse     string   `json:"npc_response"`
	Emotion         string   `json:"emotion"`
	TrustDelta      int      `json:"trust_delta"`
	NewTrustLevel   int      `json:"new_trust_level"`
	IsConvinced     bool     `json:"is_convinced"`
	CompletedTaskID *string  `json:"completed_task_id"`
	PlayerChoices   []Choice `json:"player_choices"`
	Blocked         bool     `json:"blocked"`
	BlockedReason   string   `json:"blocked_reason,omitempty"`
}
