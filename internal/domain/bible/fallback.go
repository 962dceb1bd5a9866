package bible

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed fallback.json
var fallbackJSON []byte

// Fallback returns a fresh copy of the built-in "Echoes of the Deep" bible, served when
// generation fails or produces something that does not validate.
func Fallback() *GameBible {
	var b GameBible
	if err := json.Unmarshal(fallbackJSON, &b); err != nil {
		panic(fmt.Sprintf("bible: embedded fallback is not valid JSON: %v", err))
	}
	b.normalize()
	return &b
}

// FallbackJSON returns the raw embedded fallback document.
func FallbackJSON() []byte {
	out := make([]byte, len(fallbackJSON))
	copy(out, fallbackJSON)
	return out
}
