package session

import (
	"context"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/coach"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/engine"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/store"
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// fakeEngine answers with the first legal moves from a fixed preference
// list, so evaluations and replies are deterministic without a subprocess.
type fakeEngine struct {
	evalErr error
	bestErr error

	evalFn func(fen string) []coachdto.MultiPVEntry

	evalCalls   int
	bestCalls   int
	evalBudgets []engine.Budget
}

var preferredMoves = []string{
	"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5", "d2d4", "d7d5",
	"c2c4", "c7c5", "g8f6", "b1c3", "e1g1", "e8g8", "a2a3", "a7a6",
	"h2h3", "h7h6", "b2b3", "b7b6", "g2g3", "g7g6", "f2f4", "f7f5",
}

func legalFromList(fen string, max int) []coachdto.MultiPVEntry {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil
	}
	pos := game.Position()
	out := make([]coachdto.MultiPVEntry, 0, max)
	// The fake lives in a world where White is always +0.30, so a move
	// matching the top line costs its mover exactly nothing.
	score := 30
	if pos.Turn() != nchess.White {
		score = -30
	}
	for _, uci := range preferredMoves {
		mv, err := (nchess.UCINotation{}).Decode(pos, uci)
		if err != nil {
			continue
		}
		// Decode is syntax-only; keep only moves that actually apply.
		if err := game.Clone().Move(mv, nil); err != nil {
			continue
		}
		cp := score
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		out = append(out, coachdto.MultiPVEntry{
			MoveSAN: san,
			MoveUCI: uci,
			Score:   coachdto.EngineScore{CP: &cp},
			LineSAN: []string{san},
		})
		score -= 20
		if len(out) == max {
			break
		}
	}
	return out
}

func (f *fakeEngine) Evaluate(ctx context.Context, fen string, multiPV int, budget engine.Budget) ([]coachdto.MultiPVEntry, error) {
	f.evalCalls++
	f.evalBudgets = append(f.evalBudgets, budget)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if f.evalFn != nil {
		return f.evalFn(fen), nil
	}
	entries := legalFromList(fen, multiPV)
	if len(entries) == 0 {
		return nil, engine.ErrUnavailable
	}
	return entries, nil
}

func (f *fakeEngine) BestMove(ctx context.Context, fen string, tier engine.Tier) (string, error) {
	f.bestCalls++
	if f.bestErr != nil {
		return "", f.bestErr
	}
	entries := legalFromList(fen, 1)
	if len(entries) == 0 {
		return "", engine.ErrUnavailable
	}
	return entries[0].MoveUCI, nil
}

func newTestManager(t *testing.T, eng Engine) *Manager {
	t.Helper()
	if eng == nil {
		eng = &fakeEngine{}
	}
	return NewManager(NewRegistry(), eng, coach.New(nil, 0, nil), store.NewMemoryEvalCache(), Budgets{}, zap.NewNop())
}

func openSession(t *testing.T, m *Manager, tier, mode string) string {
	t.Helper()
	resp, err := m.Open(context.Background(), coachdto.OpenSessionRequest{SkillLevel: tier, GameMode: mode})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return resp.SessionID
}

func TestOpenValidation(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.Open(ctx, coachdto.OpenSessionRequest{SkillLevel: "grandmaster"}); err == nil {
		t.Fatalf("unknown tier must fail")
	}
	if _, err := m.Open(ctx, coachdto.OpenSessionRequest{SkillLevel: "beginner", GameMode: "arcade"}); err == nil {
		t.Fatalf("unknown mode must fail")
	}
	if _, err := m.Open(ctx, coachdto.OpenSessionRequest{SkillLevel: "beginner", StartFEN: "garbage"}); err == nil {
		t.Fatalf("bad start fen must fail")
	}

	resp, err := m.Open(ctx, coachdto.OpenSessionRequest{SkillLevel: "beginner"})
	if err != nil {
		t.Fatalf("Open with defaults: %v", err)
	}
	snap, err := m.Snapshot(resp.SessionID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.GameMode != coachdto.ModeTraining {
		t.Fatalf("default mode = %q, want training", snap.GameMode)
	}
	if len(snap.FENs) != 1 {
		t.Fatalf("fresh session fens = %d, want 1", len(snap.FENs))
	}
}

func TestSubmitMoveTraining(t *testing.T) {
	m := newTestManager(t, nil)
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)

	resp, err := m.SubmitMove(context.Background(), id, "e4")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if !resp.Legal {
		t.Fatalf("e4 should be legal: %+v", resp)
	}
	if resp.EngineMove != nil {
		t.Fatalf("training mode must not produce engine replies")
	}
	fb := resp.HumanFeedback
	if fb == nil || fb.SAN != "e4" || fb.UCI != "e2e4" {
		t.Fatalf("feedback = %+v", fb)
	}
	if fb.Side != "white" || fb.MoveNo != 1 {
		t.Fatalf("side/moveno = %q/%d", fb.Side, fb.MoveNo)
	}
	if fb.Severity == "" || fb.Source == "" {
		t.Fatalf("severity/source missing: %+v", fb)
	}
	// e2e4 tops the preference list, so it matches the engine line.
	if fb.Severity != coachdto.SeverityBest {
		t.Fatalf("severity = %q, want best", fb.Severity)
	}

	snap, _ := m.Snapshot(id)
	if len(snap.FENs) != len(snap.Moves)+1 {
		t.Fatalf("history invariant broken: %d fens, %d moves", len(snap.FENs), len(snap.Moves))
	}
}

func TestSubmitMoveIllegal(t *testing.T) {
	m := newTestManager(t, nil)
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)

	resp, err := m.SubmitMove(context.Background(), id, "e5")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if resp.Legal {
		t.Fatalf("e5 is not legal for white from the start position")
	}

	snap, _ := m.Snapshot(id)
	if len(snap.Moves) != 0 || len(snap.FENs) != 1 {
		t.Fatalf("illegal move mutated history: %+v", snap)
	}
}

func TestSubmitMoveIllegalUCISkipsEngine(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, eng)
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)

	// Decodes as UCI syntax but is black's move, not white's.
	resp, err := m.SubmitMove(context.Background(), id, "e7e5")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if resp.Legal {
		t.Fatalf("e7e5 should be rejected for white")
	}
	if eng.evalCalls != 0 {
		t.Fatalf("illegal move reached the engine: %d eval calls", eng.evalCalls)
	}

	snap, _ := m.Snapshot(id)
	if len(snap.Moves) != 0 || len(snap.FENs) != 1 {
		t.Fatalf("illegal move mutated history: %+v", snap)
	}
}

func TestSubmitMoveUsesFullBudgetBothSides(t *testing.T) {
	eng := &fakeEngine{}
	m := NewManager(NewRegistry(), eng, coach.New(nil, 0, nil), store.NewMemoryEvalCache(),
		Budgets{QuickNodes: 100, FullNodes: 900, MultiPV: 2}, zap.NewNop())
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)

	if _, err := m.SubmitMove(context.Background(), id, "e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	// Pre-move and post-move evaluations both run at the full budget so
	// cp_loss compares like with like.
	if len(eng.evalBudgets) != 2 {
		t.Fatalf("evalBudgets = %+v, want 2 evaluations", eng.evalBudgets)
	}
	for i, b := range eng.evalBudgets {
		if b.Nodes != 900 {
			t.Fatalf("eval %d ran at %d nodes, want full budget", i, b.Nodes)
		}
	}
}

func TestSubmitMovePlayMode(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, eng)
	id := openSession(t, m, "beginner", coachdto.ModePlay)

	resp, err := m.SubmitMove(context.Background(), id, "e2e4")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if resp.EngineMove == nil {
		t.Fatalf("play mode must produce an engine reply")
	}
	if !resp.EngineMove.IsEngineMove {
		t.Fatalf("engine reply not tagged: %+v", resp.EngineMove)
	}
	if resp.EngineMove.Side != "black" {
		t.Fatalf("engine reply side = %q", resp.EngineMove.Side)
	}
	if resp.EngineMove.Basic != "" || resp.EngineMove.Source != "" {
		t.Fatalf("engine replies are not coached: %+v", resp.EngineMove)
	}

	snap, _ := m.Snapshot(id)
	if len(snap.Moves) != 2 || len(snap.FENs) != 3 {
		t.Fatalf("history after play turn: %d moves, %d fens", len(snap.Moves), len(snap.FENs))
	}
	if eng.bestCalls != 1 {
		t.Fatalf("bestCalls = %d, want 1", eng.bestCalls)
	}
}

func TestSubmitMoveUnknownSession(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.SubmitMove(context.Background(), "missing", "e4"); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Snapshot("missing"); err != ErrSessionNotFound {
		t.Fatalf("snapshot err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionFinishedByCheckmate(t *testing.T) {
	m := newTestManager(t, nil)
	id := openSession(t, m, "expert", coachdto.ModeTraining)
	ctx := context.Background()

	// Fool's mate.
	for _, mv := range []string{"f3", "e5", "g4", "Qh4#"} {
		resp, err := m.SubmitMove(ctx, id, mv)
		if err != nil {
			t.Fatalf("SubmitMove(%s): %v", mv, err)
		}
		if !resp.Legal {
			t.Fatalf("move %s rejected", mv)
		}
	}

	snap, _ := m.Snapshot(id)
	if !snap.Finished {
		t.Fatalf("session should be finished after mate")
	}
	if snap.Outcome != "0-1" {
		t.Fatalf("outcome = %q, want 0-1", snap.Outcome)
	}

	// The mating move's post score is synthesized, mate for the mover.
	last := snap.Moves[len(snap.Moves)-1]
	if last.CPAfter == nil || *last.CPAfter <= 0 {
		t.Fatalf("mating move cp_after = %v, want large positive", last.CPAfter)
	}

	if _, err := m.SubmitMove(ctx, id, "a3"); err != ErrSessionFinished {
		t.Fatalf("err = %v, want ErrSessionFinished", err)
	}
}

func TestEngineFailureDegrades(t *testing.T) {
	eng := &fakeEngine{evalErr: engine.ErrUnavailable, bestErr: engine.ErrUnavailable}
	m := newTestManager(t, eng)
	id := openSession(t, m, "intermediate", coachdto.ModePlay)

	resp, err := m.SubmitMove(context.Background(), id, "e4")
	if err != nil {
		t.Fatalf("SubmitMove with dead engine: %v", err)
	}
	if !resp.Legal {
		t.Fatalf("move should still be accepted")
	}
	fb := resp.HumanFeedback
	if fb.CPBefore != nil || fb.CPAfter != nil {
		t.Fatalf("cp fields should be nil when engine is down: %+v", fb)
	}
	if fb.CPLoss != 0 || fb.Severity != coachdto.SeverityGood {
		t.Fatalf("degraded severity = %q loss=%v", fb.Severity, fb.CPLoss)
	}
	// No reply move could be generated; the session still accepts moves.
	if resp.EngineMove != nil {
		t.Fatalf("no engine reply expected")
	}

	snap, _ := m.Snapshot(id)
	if len(snap.FENs) != len(snap.Moves)+1 {
		t.Fatalf("history invariant broken under degradation")
	}
}

func TestEngineOverloadedPropagates(t *testing.T) {
	eng := &fakeEngine{evalErr: engine.ErrOverloaded}
	m := newTestManager(t, eng)
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)

	_, err := m.SubmitMove(context.Background(), id, "e4")
	var derr coachdto.DomainError
	if !asDomainError(err, &derr) || derr.Code != "engine_overloaded" {
		t.Fatalf("err = %v, want engine_overloaded", err)
	}

	snap, _ := m.Snapshot(id)
	if len(snap.Moves) != 0 {
		t.Fatalf("overloaded submission must not mutate history")
	}
}

func TestMoveNumbersPerSide(t *testing.T) {
	m := newTestManager(t, nil)
	id := openSession(t, m, "intermediate", coachdto.ModeTraining)
	ctx := context.Background()

	for _, mv := range []string{"e4", "e5", "Nf3"} {
		if resp, err := m.SubmitMove(ctx, id, mv); err != nil || !resp.Legal {
			t.Fatalf("SubmitMove(%s): %+v %v", mv, resp, err)
		}
	}

	snap, _ := m.Snapshot(id)
	wantNo := []int{1, 1, 2}
	wantSide := []string{"white", "black", "white"}
	for i, fb := range snap.Moves {
		if fb.MoveNo != wantNo[i] || fb.Side != wantSide[i] {
			t.Fatalf("move %d = no %d side %q", i, fb.MoveNo, fb.Side)
		}
	}
}

func TestEvalCacheHitSkipsEngine(t *testing.T) {
	eng := &fakeEngine{}
	cache := store.NewMemoryEvalCache()
	m := NewManager(NewRegistry(), eng, coach.New(nil, 0, nil), cache, Budgets{}, zap.NewNop())

	id1 := openSession(t, m, "intermediate", coachdto.ModeTraining)
	id2 := openSession(t, m, "intermediate", coachdto.ModeTraining)
	ctx := context.Background()

	if _, err := m.SubmitMove(ctx, id1, "e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	callsAfterFirst := eng.evalCalls
	if _, err := m.SubmitMove(ctx, id2, "e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	// Second session starts from the same position; the pre-move eval and
	// the identical post-move eval both hit the cache.
	if eng.evalCalls != callsAfterFirst {
		t.Fatalf("evalCalls %d -> %d, want cache hits", callsAfterFirst, eng.evalCalls)
	}
}

func asDomainError(err error, target *coachdto.DomainError) bool {
	if err == nil {
		return false
	}
	if derr, ok := err.(coachdto.DomainError); ok {
		*target = derr
		return true
	}
	return false
}
