package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memreports is the in-memory archive used when no database is configured.
type memreports struct {
	mu sync.RWMutex

	nextID int64

	runsByID map[string]*AnalysisRun
	runs     []*AnalysisRun
}

func NewMemoryReports() Reports {
	return &memreports{runsByID: make(map[string]*AnalysisRun)}
}

func (m *memreports) InsertRun(ctx context.Context, run *AnalysisRun) (int64, error) {
	if run == nil {
		return 0, ErrDuplicateRun
	}
	key := strings.TrimSpace(run.RunID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runsByID[key]; exists {
		return 0, ErrDuplicateRun
	}

	m.nextID++
	copy := *run
	copy.ID = m.nextID
	if copy.CreatedAt.IsZero() {
		copy.CreatedAt = time.Now().UTC()
	}

	m.runsByID[key] = &copy
	m.runs = append(m.runs, &copy)
	return copy.ID, nil
}

func (m *memreports) GetRun(ctx context.Context, runID string) (*AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if run, ok := m.runsByID[strings.TrimSpace(runID)]; ok && run != nil {
		copy := *run
		return &copy, nil
	}
	return nil, nil
}

func (m *memreports) RecentRuns(ctx context.Context, limit int) ([]*AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	items := append([]*AnalysisRun(nil), m.runs...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
