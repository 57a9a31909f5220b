package coachdto

const (
	ModePlay     = "play"
	ModeTraining = "training"
)

type OpenSessionRequest struct {
	SkillLevel string `json:"skill_level"`
	GameMode   string `json:"game_mode"`
	StartFEN   string `json:"start_fen,omitempty"`
}

type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
	FENStart  string `json:"fen_start"`
}

type MoveRequest struct {
	Move string `json:"move"`
}

type MoveResponse struct {
	Legal         bool          `json:"legal"`
	Error         string        `json:"error,omitempty"`
	HumanFeedback *MoveFeedback `json:"human_feedback,omitempty"`
	EngineMove    *MoveFeedback `json:"engine_move,omitempty"`
	Finished      bool          `json:"finished"`
	Outcome       string        `json:"outcome,omitempty"`
}

type SessionSnapshot struct {
	SessionID  string         `json:"session_id"`
	SkillLevel string         `json:"skill_level"`
	GameMode   string         `json:"game_mode"`
	FEN        string         `json:"fen"`
	FENs       []string       `json:"fens,omitempty"`
	Moves      []MoveFeedback `json:"moves"`
	Finished   bool           `json:"finished"`
	Outcome    string         `json:"outcome,omitempty"`
}

type BatchRequest struct {
	PGN        string `json:"pgn"`
	SkillLevel string `json:"skill_level,omitempty"`
}

type BatchResponse struct {
	RunID   string       `json:"run_id,omitempty"`
	Summary *GameSummary `json:"summary"`
}

type HealthResponse struct {
	EngineReady bool   `json:"engine_ready"`
	PoolSize    int    `json:"pool_size"`
	Detail      string `json:"detail,omitempty"`
}
