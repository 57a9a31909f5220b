package coachdto

// EngineScore is an engine evaluation from the side-to-move's perspective.
// Exactly one of CP or Mate is set; Mate is the signed distance in moves
// (positive when the side to move mates).
type EngineScore struct {
	CP   *int `json:"cp,omitempty"`
	Mate *int `json:"mate,omitempty"`
}

func CentipawnScore(cp int) EngineScore { return EngineScore{CP: &cp} }

func MateScore(in int) EngineScore { return EngineScore{Mate: &in} }

func (s EngineScore) IsMate() bool { return s.Mate != nil }

// MultiPVEntry is one ranked candidate line from a MultiPV search.
type MultiPVEntry struct {
	MoveSAN string      `json:"move_san,omitempty"`
	MoveUCI string      `json:"move_uci,omitempty"`
	Score   EngineScore `json:"score"`
	LineSAN []string    `json:"line_san,omitempty"`
}
