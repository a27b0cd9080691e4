package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aisquery/internal/domain"
	"aisquery/internal/intent"
)

var (
	ErrPlanner    = errors.New("planner mock error")
	ErrPointStore = errors.New("point store mock error")
)

// PlannerMock answers from Drafts keyed by the (trimmed) query text, or from
// Respond when set. Unknown text yields a draft that fails the schema.
type PlannerMock struct {
	Drafts  map[string]string
	Respond func(req intent.PlanRequest) (string, error)
	Delay   time.Duration
	Fail    bool

	mu    sync.Mutex
	calls []intent.PlanRequest
}

func (m *PlannerMock) Plan(ctx context.Context, req intent.PlanRequest) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if err := sleepCtx(ctx, m.Delay); err != nil {
		return nil, err
	}
	if m.Fail {
		return nil, ErrPlanner
	}
	if m.Respond != nil {
		draft, err := m.Respond(req)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(draft), nil
	}
	if draft, ok := m.Drafts[strings.TrimSpace(req.Text)]; ok {
		return json.RawMessage(draft), nil
	}
	return json.RawMessage(`{"unexpected":true}`), nil
}

func (m *PlannerMock) Calls() []intent.PlanRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]intent.PlanRequest(nil), m.calls...)
}

// PointStoreMock serves Points filtered to the requested window and ordered
// by timestamp. It records the peak number of concurrent queries.
type PointStoreMock struct {
	Points  map[string][]domain.TrajectoryPoint
	Delay   time.Duration
	FailFor map[string]bool

	inFlight atomic.Int32
	peak     atomic.Int32
	queries  atomic.Int32
}

func (m *PointStoreMock) QueryPoints(ctx context.Context, vesselID string, tr domain.TimeRange) ([]domain.TrajectoryPoint, error) {
	m.queries.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if err := sleepCtx(ctx, m.Delay); err != nil {
		return nil, err
	}
	if m.FailFor[vesselID] {
		return nil, ErrPointStore
	}

	var out []domain.TrajectoryPoint
	for _, p := range m.Points[vesselID] {
		if tr.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *PointStoreMock) PeakConcurrency() int { return int(m.peak.Load()) }
func (m *PointStoreMock) Queries() int         { return int(m.queries.Load()) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
