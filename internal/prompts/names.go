package prompts

type PromptName string

const (
	PromptWorldCharacters PromptName = "world_characters"
	PromptWorldStructure  PromptName = "world_structure"
	PromptWorldMerge      PromptName = "world_merge"
	PromptTileMap         PromptName = "tile_map"
	PromptNPCFirstContact PromptName = "npc_first_contact"
	PromptNPCDialogue     PromptName = "npc_dialogue"
	PromptStoryBranch     PromptName = "story_branch"
)
