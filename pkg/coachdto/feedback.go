package coachdto

type Severity string

const (
	SeverityBest       Severity = "best"
	SeverityGood       Severity = "good"
	SeverityInaccuracy Severity = "inaccuracy"
	SeverityMistake    Severity = "mistake"
	SeverityBlunder    Severity = "blunder"
)

// Rank orders severities from best (0) to blunder (4).
func (s Severity) Rank() int {
	switch s {
	case SeverityBest:
		return 0
	case SeverityGood:
		return 1
	case SeverityInaccuracy:
		return 2
	case SeverityMistake:
		return 3
	case SeverityBlunder:
		return 4
	default:
		return 1
	}
}

const (
	CoachSourceOracle   = "oracle"
	CoachSourceFallback = "rule-fallback"
)

// Drill is a practice position extracted from a coached move.
type Drill struct {
	FEN         string   `json:"fen"`
	SideToMove  string   `json:"side_to_move"`
	Objective   string   `json:"objective"`
	BestLineSAN []string `json:"best_line_san,omitempty"`
	AltTrapsSAN []string `json:"alt_traps_san,omitempty"`
}

// MoveFeedback is the per-half-move analysis record. CP values are stored
// from the mover's perspective; they are nil when the engine was unavailable
// or timed out for that move.
type MoveFeedback struct {
	MoveNo    int    `json:"move_no"`
	Side      string `json:"side"`
	SAN       string `json:"san"`
	UCI       string `json:"uci,omitempty"`
	FENBefore string `json:"fen_before"`
	FENAfter  string `json:"fen_after,omitempty"`

	CPBefore    *int           `json:"cp_before,omitempty"`
	CPAfter     *int           `json:"cp_after,omitempty"`
	CPLoss      float64        `json:"cp_loss"`
	Severity    Severity       `json:"severity"`
	BestMoveSAN string         `json:"best_move_san,omitempty"`
	MultiPV     []MultiPVEntry `json:"multipv,omitempty"`

	Basic    string   `json:"basic,omitempty"`
	Extended string   `json:"extended,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Drills   []Drill  `json:"drills,omitempty"`
	Source   string   `json:"source,omitempty"`

	IsEngineMove bool `json:"is_engine_move,omitempty"`
}
