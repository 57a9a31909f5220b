package coachdto

// SideStats aggregates one side's move quality over a full game.
type SideStats struct {
	ACPL         *float64 `json:"acpl,omitempty"`
	BestMoveRate float64  `json:"best_move_rate"`
	Mistakes     int      `json:"mistakes"`
	Blunders     int      `json:"blunders"`
	TotalMoves   int      `json:"total_moves"`
}

// GameSummary is the batch-analysis result for a complete game.
type GameSummary struct {
	Moves []MoveFeedback `json:"moves"`

	White SideStats `json:"white"`
	Black SideStats `json:"black"`

	// CriticalPositions holds 1-based half-move indexes with severity of
	// mistake or worse.
	CriticalPositions []int    `json:"critical_positions"`
	Openings          []string `json:"openings,omitempty"`
}
