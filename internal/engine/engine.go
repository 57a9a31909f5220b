// Package engine owns the external UCI engine processes: a fixed pool with
// FIFO queueing, typed evaluation requests, and skill-limited move
// generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/evaluate"
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

var (
	ErrUnavailable = errors.New("chess engine unavailable")
	ErrTimeout     = errors.New("chess engine timeout")
	ErrOverloaded  = errors.New("chess engine overloaded")
)

// pvLineCap bounds continuation lines stored per candidate.
const pvLineCap = 10

type ClientConfig struct {
	BinaryPath    string
	PoolSize      int
	MaxQueueDepth int
	Threads       int
	HashMB        int
}

// Client is the process-wide engine access point. All searches go through
// the pool, one in-flight request per underlying process.
type Client struct {
	pool   *Pool
	logger *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := NewPool(PoolConfig{
		BinaryPath:    cfg.BinaryPath,
		Size:          cfg.PoolSize,
		MaxQueueDepth: cfg.MaxQueueDepth,
		Options:       Options{Threads: cfg.Threads, HashMB: cfg.HashMB},
	})
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, logger: logger}, nil
}

// Evaluate runs a full-strength MultiPV search of fen and returns candidates
// ranked best-first from the side-to-move's perspective. Mate scores rank
// above any finite score in the mating side's favor.
func (c *Client) Evaluate(ctx context.Context, fen string, multiPV int, budget Budget) ([]coachdto.MultiPVEntry, error) {
	session, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, c.mapError("acquire", err)
	}
	var releaseErr error
	defer func() {
		c.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return nil, c.mapError("newgame", err)
	}

	start := time.Now()
	resp, err := session.Search(ctx, SearchRequest{
		FEN:     fen,
		Options: SearchOptions{MultiPV: multiPV, SkillLevel: -1},
		Budget:  budget,
	})
	if err != nil {
		releaseErr = err
		return nil, c.mapError("search", err)
	}

	entries := convertCandidates(fen, resp.Candidates)
	if len(entries) == 0 {
		releaseErr = fmt.Errorf("engine returned no candidates")
		return nil, ErrUnavailable
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return evaluate.ClampCP(entries[i].Score) > evaluate.ClampCP(entries[j].Score)
	})

	c.logger.Debug("engine evaluation",
		zap.String("fen", fen),
		zap.Int("multipv", len(entries)),
		zap.Duration("took", time.Since(start)),
	)
	return entries, nil
}

// BestMove generates one reply move constrained to the given weak-play tier.
// Only legality of the result is contracted; weak tiers play randomized lines.
func (c *Client) BestMove(ctx context.Context, fen string, tier Tier) (string, error) {
	session, err := c.pool.Acquire(ctx)
	if err != nil {
		return "", c.mapError("acquire", err)
	}
	var releaseErr error
	defer func() {
		c.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return "", c.mapError("newgame", err)
	}

	resp, err := session.Search(ctx, SearchRequest{
		FEN:     fen,
		Options: SearchOptions{MultiPV: 1, SkillLevel: tier.SkillLevel},
		Budget:  Budget{MoveTimeMillis: tier.MoveTimeMillis},
	})
	if err != nil {
		releaseErr = err
		return "", c.mapError("search", err)
	}

	best := strings.ToLower(strings.TrimSpace(resp.BestMove))
	if best == "" || best == "(none)" {
		releaseErr = fmt.Errorf("engine returned no move")
		return "", ErrUnavailable
	}
	return best, nil
}

// Healthy probes the pool by acquiring and releasing one ready process.
func (c *Client) Healthy(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	session, err := c.pool.Acquire(probeCtx)
	if err != nil {
		return c.mapError("probe", err)
	}
	c.pool.Release(session, nil)
	return nil
}

func (c *Client) PoolSize() int { return c.pool.Capacity() }

func (c *Client) Close() error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Close()
}

func (c *Client) mapError(op string, err error) error {
	c.logger.Warn("engine request failed", zap.String("op", op), zap.Error(err))
	switch {
	case errors.Is(err, ErrQueueFull):
		return ErrOverloaded
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

// convertCandidates decorates raw UCI candidates with SAN notation and a
// capped SAN continuation line.
func convertCandidates(fen string, in []Candidate) []coachdto.MultiPVEntry {
	out := make([]coachdto.MultiPVEntry, 0, len(in))
	for _, cand := range in {
		entry := coachdto.MultiPVEntry{
			MoveUCI: strings.ToLower(cand.MoveUCI),
			Score:   cand.Score,
		}
		entry.MoveSAN, entry.LineSAN = sanLine(fen, cand.PV)
		out = append(out, entry)
	}
	return out
}

func sanLine(fen string, pv []string) (string, []string) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", nil
	}

	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	line := make([]string, 0, pvLineCap)
	moveSAN := ""
	for i, mv := range pv {
		if i >= pvLineCap {
			break
		}
		pos := game.Position()
		decoded, err := notationUCI.Decode(pos, strings.ToLower(mv))
		if err != nil {
			break
		}
		san := notationSAN.Encode(pos, decoded)
		if err := game.Move(decoded, nil); err != nil {
			break
		}
		line = append(line, san)
		if i == 0 {
			moveSAN = san
		}
	}
	return moveSAN, line
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	fenOpt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(fenOpt), nil
}
