package dialogue

const (
	MinDelta = -20
	MaxDelta = 25

	MinTrust = 0
	MaxTrust = 100

	// historyWindow is how many trailing history turns are forwarded to the collaborator.
	historyWindow = 6
)

// choiceIndexDelta is used when the collaborator omits trust_delta on a continuation turn.
var choiceIndexDelta = map[int]int{0: 20, 1: 5, 2: -10}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampDelta bounds a suggested trust change.
func ClampDelta(d int) int { return clamp(d, MinDelta, MaxDelta) }

// ApplyDelta returns the new trust level, kept within [0,100].
func ApplyDelta(level, delta int) int { return clamp(level+delta, MinTrust, MaxTrust) }

// Convinced reports whether level meets the character's threshold.
func Convinced(level, threshold int) bool { return level >= threshold }

// Band describes the NPC's attitude from the trust gap (threshold minus level).
func Band(level, threshold int) string {
	gap := threshold - level
	switch {
	case gap <= 0:
		return "convinced: you trust the player and will help"
	case gap <= 15:
		return "warming: nearly persuaded, occasionally helpful"
	case gap <= 40:
		return "cautious: willing to listen, not yet committed"
	default:
		return "guarded: suspicious and reluctant"
	}
}
