// Package analyze replays complete games through the engine and produces a
// per-move feedback list with per-side aggregate statistics.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/coach"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/engine"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/evaluate"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/store"
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

var ErrInvalidGame = coachdto.DomainError{Code: "invalid_game", Message: "game cannot be replayed"}

// Engine is the evaluation dependency; satisfied by *engine.Client.
type Engine interface {
	Evaluate(ctx context.Context, fen string, multiPV int, budget engine.Budget) ([]coachdto.MultiPVEntry, error)
}

type Config struct {
	FullNodes int
	MultiPV   int
}

func (c Config) normalized() Config {
	if c.FullNodes <= 0 {
		c.FullNodes = 1000000
	}
	if c.MultiPV <= 0 {
		c.MultiPV = 5
	}
	return c
}

// Analyzer runs full-strength sequential analysis of finished games. There
// is no engine-reply phase; every half-move gets one feedback entry.
type Analyzer struct {
	eng     Engine
	coach   *coach.Coach
	cache   store.EvalCache
	reports store.Reports
	book    *opening.BookECO
	cfg     Config
	logger  *zap.Logger
}

func New(eng Engine, c *coach.Coach, cache store.EvalCache, reports store.Reports, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = store.NewMemoryEvalCache()
	}
	if c == nil {
		c = coach.New(nil, 0, logger)
	}
	return &Analyzer{
		eng:     eng,
		coach:   c,
		cache:   cache,
		reports: reports,
		book:    opening.NewBookECO(),
		cfg:     cfg.normalized(),
		logger:  logger,
	}
}

// Analyze replays the game and builds the summary. A move list that cannot
// be replayed rejects the whole batch with ErrInvalidGame; partial
// aggregates would be misleading.
func (a *Analyzer) Analyze(ctx context.Context, req coachdto.BatchRequest) (coachdto.BatchResponse, error) {
	tier, err := engine.GetTier(req.SkillLevel)
	if err != nil {
		return coachdto.BatchResponse{}, coachdto.DomainError{Code: "bad_request", Message: err.Error()}
	}

	game, err := parseGame(req.PGN)
	if err != nil {
		a.logger.Warn("batch input rejected", zap.Error(err))
		return coachdto.BatchResponse{}, ErrInvalidGame
	}

	moves := game.Moves()
	positions := game.Positions()
	if len(moves) == 0 || len(positions) != len(moves)+1 {
		return coachdto.BatchResponse{}, ErrInvalidGame
	}

	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	summary := coachdto.GameSummary{Moves: make([]coachdto.MoveFeedback, 0, len(moves))}

	start := time.Now()
	for i, mv := range moves {
		if err := ctx.Err(); err != nil {
			return coachdto.BatchResponse{}, err
		}

		pos := positions[i]
		fb := coachdto.MoveFeedback{
			MoveNo:    i/2 + 1,
			Side:      sideName(pos.Turn()),
			SAN:       notationSAN.Encode(pos, mv),
			UCI:       strings.ToLower(notationUCI.Encode(pos, mv)),
			FENBefore: pos.String(),
			FENAfter:  positions[i+1].String(),
		}

		entries := a.evaluateCached(ctx, fb.FENBefore)
		cpAfter := a.postMoveScore(ctx, game, positions, i)
		scoreAgainstBest(&fb, entries, cpAfter)

		// Only moves worth revisiting get full coaching; the rest carry
		// the deterministic rule text.
		if fb.Severity.Rank() >= coachdto.SeverityInaccuracy.Rank() {
			res := a.coach.CoachMove(ctx, fb, tier.Name)
			fb.Basic, fb.Extended = res.Basic, res.Extended
			fb.Tags, fb.Drills, fb.Source = res.Tags, res.Drills, res.Source
		} else {
			res := coach.RuleResult(fb)
			fb.Basic, fb.Extended, fb.Source = res.Basic, res.Extended, res.Source
		}

		summary.Moves = append(summary.Moves, fb)
	}

	aggregate(&summary)
	if eco := a.book.Find(moves); eco != nil {
		label := strings.TrimSpace(eco.Code() + " " + eco.Title())
		if label != "" {
			summary.Openings = []string{label}
		}
	}

	a.logger.Info("batch analysis complete",
		zap.Int("half_moves", len(moves)),
		zap.Duration("took", time.Since(start)),
	)

	resp := coachdto.BatchResponse{Summary: &summary}
	if a.reports != nil {
		runID := uuid.NewString()
		_, err := a.reports.InsertRun(ctx, &store.AnalysisRun{
			RunID:   runID,
			PGN:     req.PGN,
			Level:   tier.Name,
			Summary: summary,
		})
		if err != nil {
			a.logger.Warn("analysis archive failed", zap.Error(err))
		} else {
			resp.RunID = runID
		}
	}
	return resp, nil
}

func (a *Analyzer) evaluateCached(ctx context.Context, fen string) []coachdto.MultiPVEntry {
	budget := engine.Budget{Nodes: a.cfg.FullNodes}
	key := store.EvalKey(fen, budget.Nodes, 0, a.cfg.MultiPV)
	if entries, hit, err := a.cache.Get(ctx, key); err == nil && hit {
		return entries
	}

	entries, err := a.eng.Evaluate(ctx, fen, a.cfg.MultiPV, budget)
	if err != nil {
		a.logger.Warn("batch evaluation degraded", zap.String("fen", fen), zap.Error(err))
		return nil
	}
	if err := a.cache.Put(ctx, key, entries); err != nil {
		a.logger.Warn("eval cache write failed", zap.Error(err))
	}
	return entries
}

// postMoveScore is the mover-perspective score of the position reached by
// half-move i. The final position of a decided game is synthesized since
// the engine reports no score for terminal positions.
func (a *Analyzer) postMoveScore(ctx context.Context, game *nchess.Game, positions []*nchess.Position, i int) *int {
	if i == len(positions)-2 && game.Outcome() != nchess.NoOutcome {
		cp := 0
		if game.Method() == nchess.Checkmate {
			mate := 0
			cp = evaluate.ClampCP(coachdto.EngineScore{Mate: &mate})
		}
		return &cp
	}

	entries := a.evaluateCached(ctx, positions[i+1].String())
	if len(entries) == 0 {
		return nil
	}
	return evaluate.Negate(evaluate.ClampCPRef(&entries[0].Score))
}

func scoreAgainstBest(fb *coachdto.MoveFeedback, entries []coachdto.MultiPVEntry, cpAfter *int) {
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
	if fb.CPAfter == nil {
		fb.Severity = evaluate.NeutralSeverity
		return
	}
	fb.Severity = evaluate.SeverityOf(fb.CPLoss, strings.EqualFold(fb.UCI, entries[0].MoveUCI))
}

func aggregate(summary *coachdto.GameSummary) {
	var white, black sideAccum
	for i, fb := range summary.Moves {
		acc := &white
		if fb.Side == "black" {
			acc = &black
		}
		acc.total++
		if fb.CPBefore != nil && fb.CPAfter != nil {
			acc.lossSum += fb.CPLoss * 100
			acc.scored++
		}
		switch fb.Severity {
		case coachdto.SeverityBest:
			acc.best++
		case coachdto.SeverityMistake:
			acc.mistakes++
		case coachdto.SeverityBlunder:
			acc.blunders++
		}
		if fb.Severity.Rank() >= coachdto.SeverityMistake.Rank() {
			summary.CriticalPositions = append(summary.CriticalPositions, i+1)
		}
	}
	summary.White = white.stats()
	summary.Black = black.stats()
}

type sideAccum struct {
	total    int
	scored   int
	lossSum  float64
	best     int
	mistakes int
	blunders int
}

func (a sideAccum) stats() coachdto.SideStats {
	stats := coachdto.SideStats{
		Mistakes:   a.mistakes,
		Blunders:   a.blunders,
		TotalMoves: a.total,
	}
	if a.scored > 0 {
		acpl := a.lossSum / float64(a.scored)
		stats.ACPL = &acpl
	}
	if a.total > 0 {
		stats.BestMoveRate = float64(a.best) / float64(a.total)
	}
	return stats
}

// parseGame accepts a PGN document or a bare whitespace-separated move
// list in SAN or UCI.
func parseGame(text string) (*nchess.Game, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty game")
	}

	if update, err := nchess.PGN(strings.NewReader(text)); err == nil {
		game := nchess.NewGame(update)
		if len(game.Moves()) > 0 {
			return game, nil
		}
	}

	game := nchess.NewGame()
	for _, token := range strings.Fields(text) {
		if skipToken(token) {
			continue
		}
		mv, err := parseMove(game, token)
		if err != nil {
			return nil, fmt.Errorf("replay %q: %w", token, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply %q: %w", token, err)
		}
	}
	if len(game.Moves()) == 0 {
		return nil, errors.New("no moves found")
	}
	return game, nil
}

// skipToken drops PGN move numbers and result markers from bare lists.
func skipToken(token string) bool {
	switch token {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return strings.HasSuffix(token, ".") && strings.IndexFunc(token, func(r rune) bool {
		return r < '0' || r > '9'
	}) == len(token)-1
}

func parseMove(game *nchess.Game, text string) (*nchess.Move, error) {
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
