package voice

import (
	"strings"

	"github.com/yungbote/opengaia-backend/internal/platform/elevenlabs"
)

// emotionSettings tunes delivery per dialogue emotion. Low stability is more expressive,
// high style more dramatic; speed scales pace.
var emotionSettings = map[string]elevenlabs.VoiceSettings{
	"angry":      {Stability: 0.25, SimilarityBoost: 0.75, Style: 0.80, Speed: 1.30},
	"hostile":    {Stability: 0.20, SimilarityBoost: 0.75, Style: 0.90, Speed: 1.35},
	"suspicious": {Stability: 0.45, SimilarityBoost: 0.80, Style: 0.40, Speed: 1.05},
	"neutral":    {Stability: 0.65, SimilarityBoost: 0.80, Style: 0.15, Speed: 1.15},
	"happy":      {Stability: 0.55, SimilarityBoost: 0.75, Style: 0.55, Speed: 1.25},
	"grateful":   {Stability: 0.60, SimilarityBoost: 0.80, Style: 0.35, Speed: 1.08},
	"amused":     {Stability: 0.40, SimilarityBoost: 0.75, Style: 0.65, Speed: 1.20},
	"conflicted": {Stability: 0.35, SimilarityBoost: 0.80, Style: 0.50, Speed: 1.00},
	"sad":        {Stability: 0.55, SimilarityBoost: 0.80, Style: 0.30, Speed: 0.95},
}

// SettingsFor is case-insensitive; unknown emotions read as neutral.
func SettingsFor(emotion string) elevenlabs.VoiceSettings {
	if s, ok := emotionSettings[strings.ToLower(strings.TrimSpace(emotion))]; ok {
		return s
	}
	return emotionSettings["neutral"]
}

type Voice struct {
	VoiceID string `yaml:"voice_id" json:"voice_id"`
	Model   string `yaml:"model" json:"model"`
}

const (
	KeyMan   = "man"
	KeyWomen = "women"

	defaultModel = "eleven_turbo_v2"
)

// DefaultVoices is the built-in registry; config may add or override entries.
func DefaultVoices() map[string]Voice {
	return map[string]Voice{
		KeyMan:   {VoiceID: "YOq2y2Up4RgXP2HyXjE5", Model: "eleven_v3"},
		KeyWomen: {VoiceID: "flHkNRp1BlvT73UL6gyz", Model: "eleven_v3"},
	}
}

var (
	femaleWords = wordSet("woman women female girl lady she her mother sister daughter queen princess priestess mrs ms miss grandmother aunt wife maiden")
	maleWords   = wordSet("man male boy he him his father brother son king prince priest mr sir grandfather uncle husband")
)

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// DetectVoiceKey picks a registry key from a character description by keyword count.
// Ties and descriptions with no signal use the male voice.
func DetectVoiceKey(description string) string {
	female, male := 0, 0
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(description)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if seen[w] {
			continue
		}
		seen[w] = true
		if femaleWords[w] {
			female++
		}
		if maleWords[w] {
			male++
		}
	}
	if female > male {
		return KeyWomen
	}
	return KeyMan
}
