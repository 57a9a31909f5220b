// Package coach produces natural-language move feedback. Two producers
// exist: an OpenAI-compatible chat oracle and a deterministic rule
// generator. The oracle is optional and bounded by a timeout; its failures
// are always absorbed by the fallback, never surfaced to the caller.
package coach

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// Result is a tagged coaching outcome; Source records which producer built it.
type Result struct {
	Basic    string
	Extended string
	Tags     []string
	Drills   []coachdto.Drill
	Source   string
}

// Oracle generates coaching text from a move and its evaluation context.
type Oracle interface {
	CoachMove(ctx context.Context, fb coachdto.MoveFeedback, level string) (Result, error)
}

type Coach struct {
	oracle  Oracle
	timeout time.Duration
	logger  *zap.Logger
}

const defaultOracleTimeout = 8 * time.Second

// New wires a coach. A nil oracle means rule-only coaching.
func New(oracle Oracle, timeout time.Duration, logger *zap.Logger) *Coach {
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{oracle: oracle, timeout: timeout, logger: logger}
}

// CoachMove never fails and never blocks beyond the configured timeout.
func (c *Coach) CoachMove(ctx context.Context, fb coachdto.MoveFeedback, level string) Result {
	fallback := RuleResult(fb)
	if c.oracle == nil {
		return fallback
	}

	oracleCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.oracle.CoachMove(oracleCtx, fb, level)
	if err != nil {
		c.logger.Warn("coaching oracle fell back to rules",
			zap.Error(err),
			zap.String("san", fb.SAN),
		)
		return fallback
	}

	res.Basic = truncateWords(res.Basic, basicWordLimit)
	res.Extended = truncateWords(res.Extended, extendedWordLimit)
	if res.Basic == "" {
		res.Basic = fallback.Basic
	}
	if res.Extended == "" {
		res.Extended = fallback.Extended
	}
	if len(res.Drills) == 0 {
		res.Drills = fallback.Drills
	}
	res.Source = coachdto.CoachSourceOracle
	return res
}
