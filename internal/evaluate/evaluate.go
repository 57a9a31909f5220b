// Package evaluate converts raw engine scores into mover-perspective
// centipawn loss and a discrete move-quality severity.
package evaluate

import (
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// mateValueCP bounds mate scores so loss thresholds stay well-defined.
// Mate in N maps to +-(mateValueCP - N), which keeps the ordering
// faster-mate-for-me > slower-mate-for-me > finite > slower-mate-against-me >
// faster-mate-against-me.
const mateValueCP = 30000

// NeutralSeverity is reported when the engine could not score a move.
const NeutralSeverity = coachdto.SeverityGood

// ClampCP converts an EngineScore to bounded centipawns.
func ClampCP(s coachdto.EngineScore) int {
	if s.Mate != nil {
		n := *s.Mate
		if n >= 0 {
			return mateValueCP - n
		}
		return -(mateValueCP + n)
	}
	if s.CP != nil {
		return *s.CP
	}
	return 0
}

// ClampCPRef is ClampCP preserving nil for unscored positions.
func ClampCPRef(s *coachdto.EngineScore) *int {
	if s == nil || (s.CP == nil && s.Mate == nil) {
		return nil
	}
	cp := ClampCP(*s)
	return &cp
}

// Negate reorients a centipawn value to the opposite side's perspective.
func Negate(cp *int) *int {
	if cp == nil {
		return nil
	}
	v := -*cp
	return &v
}

// CPLoss returns how much worse the played move is than the best available
// move, in pawns, from the mover's perspective. Both inputs must already be
// mover-perspective (the caller negates the post-move score, since the side
// to move flips after a move). Nil inputs report 0: degraded mode, not an
// error.
func CPLoss(cpBefore, cpAfter *int) float64 {
	if cpBefore == nil || cpAfter == nil {
		return 0
	}
	loss := float64(*cpBefore-*cpAfter) / 100.0
	if loss < 0 {
		return 0
	}
	return loss
}

// SeverityOf classifies a non-negative cp loss (pawns). Boundary values
// belong to the higher-severity bucket. A zero-loss move is "best" only when
// it textually matches the engine's top line; otherwise it is "good".
func SeverityOf(lossPawns float64, matchesTopLine bool) coachdto.Severity {
	if lossPawns < 0 {
		lossPawns = 0
	}
	switch {
	case lossPawns == 0 && matchesTopLine:
		return coachdto.SeverityBest
	case lossPawns < 0.5:
		return coachdto.SeverityGood
	case lossPawns < 1.0:
		return coachdto.SeverityInaccuracy
	case lossPawns < 3.0:
		return coachdto.SeverityMistake
	default:
		return coachdto.SeverityBlunder
	}
}
