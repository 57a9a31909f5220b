// Package session owns live coaching sessions: an in-memory registry, a
// serialized per-session move pipeline, and the streaming sequencer on top
// of it. Sessions never outlive the process.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/coach"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/engine"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/evaluate"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/store"
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

var (
	ErrSessionNotFound = coachdto.DomainError{Code: "session_not_found", Message: "session not found"}
	ErrSessionFinished = coachdto.DomainError{Code: "session_finished", Message: "session already finished"}
)

// Engine is the evaluation and move-generation dependency. Satisfied by
// *engine.Client; faked in tests.
type Engine interface {
	Evaluate(ctx context.Context, fen string, multiPV int, budget engine.Budget) ([]coachdto.MultiPVEntry, error)
	BestMove(ctx context.Context, fen string, tier engine.Tier) (string, error)
}

// Budgets are the two evaluation depths: quick for low-latency first
// feedback, full for the authoritative evaluation.
type Budgets struct {
	QuickNodes int
	FullNodes  int
	MultiPV    int
}

func (b Budgets) normalized() Budgets {
	if b.QuickNodes <= 0 {
		b.QuickNodes = 50000
	}
	if b.FullNodes <= 0 {
		b.FullNodes = 1000000
	}
	if b.MultiPV <= 0 {
		b.MultiPV = 5
	}
	return b
}

func (b Budgets) quick() engine.Budget { return engine.Budget{Nodes: b.QuickNodes} }
func (b Budgets) full() engine.Budget  { return engine.Budget{Nodes: b.FullNodes} }

type liveSession struct {
	mu sync.Mutex

	id       string
	tier     engine.Tier
	mode     string
	game     *nchess.Game
	fens     []string
	feedback []coachdto.MoveFeedback
	finished bool
	outcome  string
}

// Registry is the concurrency-safe session map. It is owned by the caller
// and injected, never package-global.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*liveSession)}
}

func (r *Registry) put(s *liveSession) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

func (r *Registry) get(id string) (*liveSession, bool) {
	r.mu.RLock()
	s, ok := r.sessions[strings.TrimSpace(id)]
	r.mu.RUnlock()
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Manager drives the per-session move pipeline of evaluate, classify,
// coach, append. Concurrent submissions for one session queue on the
// session mutex; turns never interleave.
type Manager struct {
	registry *Registry
	eng      Engine
	coach    *coach.Coach
	cache    store.EvalCache
	budgets  Budgets
	logger   *zap.Logger
}

func NewManager(registry *Registry, eng Engine, c *coach.Coach, cache store.EvalCache, budgets Budgets, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = store.NewMemoryEvalCache()
	}
	if c == nil {
		c = coach.New(nil, 0, logger)
	}
	return &Manager{
		registry: registry,
		eng:      eng,
		coach:    c,
		cache:    cache,
		budgets:  budgets.normalized(),
		logger:   logger,
	}
}

// Open creates a session and registers it. Unknown tiers, modes, or start
// positions fail with a bad_request error.
func (m *Manager) Open(ctx context.Context, req coachdto.OpenSessionRequest) (coachdto.OpenSessionResponse, error) {
	tier, err := engine.GetTier(req.SkillLevel)
	if err != nil {
		return coachdto.OpenSessionResponse{}, coachdto.DomainError{Code: "bad_request", Message: err.Error()}
	}

	mode := strings.ToLower(strings.TrimSpace(req.GameMode))
	if mode == "" {
		mode = coachdto.ModeTraining
	}
	if mode != coachdto.ModePlay && mode != coachdto.ModeTraining {
		return coachdto.OpenSessionResponse{}, coachdto.DomainError{Code: "bad_request", Message: "unknown game mode " + req.GameMode}
	}

	game, err := gameFromFEN(req.StartFEN)
	if err != nil {
		return coachdto.OpenSessionResponse{}, coachdto.DomainError{Code: "bad_request", Message: "invalid start position"}
	}

	sess := &liveSession{
		id:   uuid.NewString(),
		tier: tier,
		mode: mode,
		game: game,
		fens: []string{game.Position().String()},
	}
	m.registry.put(sess)

	m.logger.Info("session opened",
		zap.String("session_id", sess.id),
		zap.String("tier", tier.Name),
		zap.String("mode", mode),
	)
	return coachdto.OpenSessionResponse{SessionID: sess.id, FENStart: sess.fens[0]}, nil
}

// Snapshot returns a read-only view of the session's state and history.
func (m *Manager) Snapshot(id string) (coachdto.SessionSnapshot, error) {
	sess, ok := m.registry.get(id)
	if !ok {
		return coachdto.SessionSnapshot{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return coachdto.SessionSnapshot{
		SessionID:  sess.id,
		SkillLevel: sess.tier.Name,
		GameMode:   sess.mode,
		FEN:        sess.fens[len(sess.fens)-1],
		FENs:       append([]string(nil), sess.fens...),
		Moves:      append([]coachdto.MoveFeedback(nil), sess.feedback...),
		Finished:   sess.finished,
		Outcome:    sess.outcome,
	}, nil
}

// SubmitMove runs one full turn: validate, evaluate, classify, coach,
// commit, and in play mode generate the engine reply. Engine failures
// degrade the feedback instead of rejecting the move.
func (m *Manager) SubmitMove(ctx context.Context, id, moveText string) (coachdto.MoveResponse, error) {
	sess, ok := m.registry.get(id)
	if !ok {
		return coachdto.MoveResponse{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return m.submitLocked(ctx, sess, moveText, nil)
}

// emitFn delivers intermediate streaming events; nil for the plain path.
// A false return aborts delivery but never rolls back committed state.
type emitFn func(coachdto.StreamEvent) bool

func (m *Manager) submitLocked(ctx context.Context, sess *liveSession, moveText string, emit emitFn) (coachdto.MoveResponse, error) {
	if sess.finished {
		return coachdto.MoveResponse{}, ErrSessionFinished
	}

	mv, err := parseMove(sess.game, moveText)
	if err != nil {
		return coachdto.MoveResponse{Legal: false, Error: "illegal move: " + strings.TrimSpace(moveText)}, nil
	}

	// Decode is syntax-only; prove legality on a scratch copy before any
	// engine work or event delivery.
	probe := sess.game.Clone()
	if err := probe.Move(mv, nil); err != nil {
		return coachdto.MoveResponse{Legal: false, Error: "illegal move: " + strings.TrimSpace(moveText)}, nil
	}

	fenBefore := sess.game.Position().String()
	side := sideName(sess.game.Position().Turn())
	moveNo := len(sess.feedback)/2 + 1
	san := nchess.AlgebraicNotation{}.Encode(sess.game.Position(), mv)
	uci := nchess.UCINotation{}.Encode(sess.game.Position(), mv)

	fb := coachdto.MoveFeedback{
		MoveNo:    moveNo,
		Side:      side,
		SAN:       san,
		UCI:       uci,
		FENBefore: fenBefore,
		FENAfter:  probe.Position().String(),
	}

	if emit != nil {
		quickEntries, _ := m.evaluateCached(ctx, fenBefore, m.budgets.quick())
		prelim := fb
		m.scoreAgainstBest(&prelim, quickEntries, m.quickScoreAfter(ctx, fb.FENAfter))
		prelim.Basic = coach.RuleResult(prelim).Basic
		if !emit(coachdto.StreamEvent{Type: coachdto.EventBasic, Feedback: &prelim}) {
			return coachdto.MoveResponse{}, ctx.Err()
		}
	}

	// Full-strength evaluation of the pre-move position. A timeout falls
	// back to one quick pass; further failure degrades to nil scores.
	entries, evalErr := m.evaluateCached(ctx, fenBefore, m.budgets.full())
	if errors.Is(evalErr, engine.ErrTimeout) && ctx.Err() == nil {
		entries, evalErr = m.evaluateCached(ctx, fenBefore, m.budgets.quick())
	}
	if errors.Is(evalErr, engine.ErrOverloaded) {
		// Backpressure propagates; the session is unchanged and retryable.
		return coachdto.MoveResponse{}, coachdto.DomainError{Code: "engine_overloaded", Message: "engine pool saturated", Retryable: true}
	}
	if evalErr != nil && ctx.Err() != nil && emit != nil {
		// Consumer went away before commit; drop the submission.
		return coachdto.MoveResponse{}, ctx.Err()
	}

	if err := sess.game.Move(mv, nil); err != nil {
		return coachdto.MoveResponse{Legal: false, Error: "illegal move: " + strings.TrimSpace(moveText)}, nil
	}
	m.noteOutcome(sess)

	postScore := m.postMoveScore(ctx, sess, fb.FENAfter)
	m.scoreAgainstBest(&fb, entries, postScore)

	res := m.coach.CoachMove(ctx, fb, sess.tier.Name)
	fb.Basic = res.Basic
	fb.Extended = res.Extended
	fb.Tags = res.Tags
	fb.Drills = res.Drills
	fb.Source = res.Source

	// Commit point: history append is the atomic state transition.
	sess.fens = append(sess.fens, fb.FENAfter)
	sess.feedback = append(sess.feedback, fb)

	resp := coachdto.MoveResponse{
		Legal:         true,
		HumanFeedback: &fb,
		Finished:      sess.finished,
		Outcome:       sess.outcome,
	}

	if emit != nil {
		if !emit(coachdto.StreamEvent{Type: coachdto.EventExtended, Feedback: &fb}) {
			return resp, nil
		}
	}

	if sess.mode == coachdto.ModePlay && !sess.finished {
		reply := m.engineReply(ctx, sess)
		resp.EngineMove = reply
		resp.Finished = sess.finished
		resp.Outcome = sess.outcome
		if emit != nil && reply != nil {
			emit(coachdto.StreamEvent{Type: coachdto.EventEngineMove, EngineMove: reply})
		}
	}

	return resp, nil
}

// engineReply generates and applies the skill-limited reply move. Engine
// replies are recorded but not coached; a failed generation leaves the
// session waiting for the next human move rather than erroring the turn.
func (m *Manager) engineReply(ctx context.Context, sess *liveSession) *coachdto.MoveFeedback {
	fen := sess.game.Position().String()
	uci, err := m.eng.BestMove(ctx, fen, sess.tier)
	if err != nil {
		m.logger.Warn("engine reply unavailable",
			zap.String("session_id", sess.id),
			zap.Error(err),
		)
		return nil
	}

	mv, err := nchess.UCINotation{}.Decode(sess.game.Position(), uci)
	if err != nil {
		m.logger.Warn("engine reply unparseable",
			zap.String("session_id", sess.id),
			zap.String("move", uci),
		)
		return nil
	}

	side := sideName(sess.game.Position().Turn())
	san := nchess.AlgebraicNotation{}.Encode(sess.game.Position(), mv)
	if err := sess.game.Move(mv, nil); err != nil {
		m.logger.Warn("engine reply illegal",
			zap.String("session_id", sess.id),
			zap.String("move", uci),
		)
		return nil
	}

	fb := coachdto.MoveFeedback{
		MoveNo:       len(sess.feedback)/2 + 1,
		Side:         side,
		SAN:          san,
		UCI:          uci,
		FENBefore:    fen,
		FENAfter:     sess.game.Position().String(),
		Severity:     coachdto.SeverityBest,
		IsEngineMove: true,
	}
	m.noteOutcome(sess)
	fb.CPAfter = m.postMoveScore(ctx, sess, fb.FENAfter)

	sess.fens = append(sess.fens, fb.FENAfter)
	sess.feedback = append(sess.feedback, fb)
	return &fb
}

// postMoveScore returns the mover-perspective score of the position just
// reached, at the same full budget as the pre-move evaluation so the two
// sides of the cp_loss difference are comparable. Terminal positions are
// synthesized since the engine reports no score for them.
func (m *Manager) postMoveScore(ctx context.Context, sess *liveSession, fenAfter string) *int {
	if sess.finished {
		cp := 0
		if sess.game.Method() == nchess.Checkmate {
			mate := 0
			cp = evaluate.ClampCP(coachdto.EngineScore{Mate: &mate})
		}
		return &cp
	}

	entries, err := m.evaluateCached(ctx, fenAfter, m.budgets.full())
	if err != nil || len(entries) == 0 {
		return nil
	}
	// The post-move score is from the opponent's perspective; reorient.
	return evaluate.Negate(evaluate.ClampCPRef(&entries[0].Score))
}

// quickScoreAfter is the low-budget post-move preview used by the basic
// streaming phase.
func (m *Manager) quickScoreAfter(ctx context.Context, fenAfter string) *int {
	entries, err := m.evaluateCached(ctx, fenAfter, m.budgets.quick())
	if err != nil || len(entries) == 0 {
		return nil
	}
	return evaluate.Negate(evaluate.ClampCPRef(&entries[0].Score))
}

// scoreAgainstBest fills the evaluation fields of fb from the pre-move
// candidate set and the mover-perspective post-move score.
func (m *Manager) scoreAgainstBest(fb *coachdto.MoveFeedback, entries []coachdto.MultiPVEntry, cpAfter *int) {
	if len(entries) == 0 {
		fb.CPLoss = 0
		fb.Severity = evaluate.NeutralSeverity
		return
	}

	fb.MultiPV = entries
	fb.BestMoveSAN = entries[0].MoveSAN
	fb.CPBefore = evaluate.ClampCPRef(&entries[0].Score)
	fb.CPAfter = cpAfter
	fb.CPLoss = evaluate.CPLoss(fb.CPBefore, fb.CPAfter)
	matchesTop := strings.EqualFold(fb.UCI, entries[0].MoveUCI)
	if fb.CPAfter == nil {
		fb.Severity = evaluate.NeutralSeverity
		return
	}
	fb.Severity = evaluate.SeverityOf(fb.CPLoss, matchesTop)
}

func (m *Manager) evaluateCached(ctx context.Context, fen string, budget engine.Budget) ([]coachdto.MultiPVEntry, error) {
	key := store.EvalKey(fen, budget.Nodes, budget.MoveTimeMillis, m.budgets.MultiPV)
	if entries, hit, err := m.cache.Get(ctx, key); err == nil && hit {
		return entries, nil
	}

	entries, err := m.eng.Evaluate(ctx, fen, m.budgets.MultiPV, budget)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Put(ctx, key, entries); err != nil {
		m.logger.Warn("eval cache write failed", zap.Error(err))
	}
	return entries, nil
}

func (m *Manager) noteOutcome(sess *liveSession) {
	if outcome := sess.game.Outcome(); outcome != nchess.NoOutcome {
		sess.finished = true
		sess.outcome = outcome.String()
	}
}

func parseMove(game *nchess.Game, text string) (*nchess.Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty move")
	}
	pos := game.Position()
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(text)); err == nil {
		return mv, nil
	}
	return nchess.AlgebraicNotation{}.Decode(pos, text)
}

func sideName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	fenOpt, err := nchess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return nchess.NewGame(fenOpt), nil
}
