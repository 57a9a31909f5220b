package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

var ErrDuplicateRun = errors.New("analysis run already archived")

// AnalysisRun is one archived batch analysis of a full game.
type AnalysisRun struct {
	ID        int64
	RunID     string
	PGN       string
	Level     string
	Summary   coachdto.GameSummary
	CreatedAt time.Time
}

// Reports archives completed batch analysis runs for later retrieval.
type Reports interface {
	InsertRun(ctx context.Context, run *AnalysisRun) (int64, error)
	GetRun(ctx context.Context, runID string) (*AnalysisRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*AnalysisRun, error)
}

type reports struct {
	db *sql.DB
}

func NewReports(db *sql.DB) Reports {
	return &reports{db: db}
}

func (r *reports) InsertRun(ctx context.Context, run *AnalysisRun) (int64, error) {
	if run == nil {
		return 0, fmt.Errorf("nil analysis run payload")
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return 0, fmt.Errorf("marshal summary: %w", err)
	}

	const query = `
		INSERT INTO analysis_runs (
			run_id,
			pgn,
			level,
			summary,
			created_at
		)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (run_id) DO NOTHING
		RETURNING id`

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		run.RunID,
		run.PGN,
		run.Level,
		summary,
		createdAt,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateRun
	}
	if err != nil {
		return 0, fmt.Errorf("insert analysis run: %w", err)
	}
	return id.Int64, nil
}

func (r *reports) GetRun(ctx context.Context, runID string) (*AnalysisRun, error) {
	const query = `
		SELECT id, run_id, pgn, level, summary, created_at
		FROM analysis_runs
		WHERE run_id = $1`

	var (
		run         AnalysisRun
		summaryJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.RunID,
		&run.PGN,
		&run.Level,
		&summaryJSON,
		&run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis run: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &run, nil
}

func (r *reports) RecentRuns(ctx context.Context, limit int) ([]*AnalysisRun, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, run_id, pgn, level, summary, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select analysis runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*AnalysisRun, 0, limit)
	for rows.Next() {
		var (
			run         AnalysisRun
			summaryJSON []byte
		)
		if err := rows.Scan(
			&run.ID,
			&run.RunID,
			&run.PGN,
			&run.Level,
			&summaryJSON,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
