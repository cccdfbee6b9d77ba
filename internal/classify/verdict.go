package classify

type Level uint8

const (
	Benign Level = iota
	Suspicious
	Hostile
)

func (l Level) String() string {
	switch l {
	case Benign:
		return "benign"
	case Suspicious:
		return "suspicious"
	case Hostile:
		return "hostile"
	}
	return "unknown"
}

// Verdict is the per-event hostility assessment. Produced once, consumed
// once by the decision engine, never persisted.
type Verdict struct {
	Level Level
	Score float64
	// Reasons names the heuristics that fired, for audit trails.
	Reasons []string
}
