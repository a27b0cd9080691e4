package trajectory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/domain"
	"aisquery/internal/geo"
	"aisquery/internal/mocks"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func at(min int, lat, lon, sog float64) domain.TrajectoryPoint {
	return domain.TrajectoryPoint{Timestamp: t0.Add(time.Duration(min) * time.Minute), Lat: lat, Lon: lon, SOG: sog}
}

func TestSeries(t *testing.T) {
	in := []domain.TrajectoryPoint{at(20, 3, 3, 3), at(0, 1, 1, 1), at(10, 2, 2, 2), at(10, 9, 9, 9), at(0, 8, 8, 8)}
	got := Series(in)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
	assert.Equal(t, 1.0, got[0].Lat)
	assert.Equal(t, 2.0, got[1].Lat)
	assert.Equal(t, 20*time.Minute, in[0].Timestamp.Sub(t0), "input untouched")
	assert.Nil(t, Series(nil))
}

func TestRoutineRun(t *testing.T) {
	store := &mocks.PointStoreMock{Points: map[string][]domain.TrajectoryPoint{
		"v-1": {at(0, 1.0, 103.0, 10), at(30, 1.1, 103.0, 12), at(60, 1.2, 103.0, 14), at(30, 5, 5, 0)},
	}}
	r := NewRoutine(store, Config{DefaultLimit: 2}, nil)
	plan := domain.ResolvedPlan{
		Intent: domain.CanonicalIntent{Domain: domain.DomainTrajectory, Task: domain.TaskShow, Scope: domain.ScopeMultiple},
		Vessels: []domain.Vessel{
			{VesselID: "v-1", MMSI: "123456789"},
			{VesselID: "v-2", MMSI: "987654321"},
		},
		Window: domain.TimeRange{Start: t0, End: t0.Add(2 * time.Hour)},
	}

	res, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Tracks, 2)

	first := res.Tracks[0]
	require.Len(t, first.Points, 2, "default limit caps the track")
	assert.Equal(t, t0, first.Points[0].Timestamp)
	require.NotNil(t, first.Stats)
	assert.Equal(t, 3, first.Stats.PointsTotal)
	assert.Equal(t, 14.0, first.Stats.MaxSOG)
	assert.InDelta(t, 12.0, first.Stats.AvgSOG, 1e-9)
	assert.InDelta(t, 12.0, first.Stats.DistanceNM, 0.1)

	assert.Empty(t, res.Tracks[1].Points, "no reports is an empty track, not an error")
	assert.NotNil(t, res.Tracks[1].Points)
	assert.Nil(t, res.Tracks[1].Stats)
	assert.Equal(t, 2, res.Count())
}

func TestRoutineSpatialAndLimit(t *testing.T) {
	store := &mocks.PointStoreMock{Points: map[string][]domain.TrajectoryPoint{
		"v-1": {at(0, 1.0, 103.0, 1), at(10, 2.0, 104.0, 1), at(20, 1.5, 103.5, 1)},
	}}
	r := NewRoutine(store, Config{DefaultLimit: 50}, nil)
	plan := domain.ResolvedPlan{
		Intent: domain.CanonicalIntent{
			Domain: domain.DomainTrajectory,
			Spatial: &domain.SpatialConstraint{
				Kind: domain.SpatialBBox,
				BBox: &geo.BBox{MinLat: 0.5, MinLon: 102.5, MaxLat: 1.6, MaxLon: 103.6},
			},
			Output: domain.Output{Limit: 10},
		},
		Vessels: []domain.Vessel{{VesselID: "v-1"}},
		Window:  domain.TimeRange{Start: t0, End: t0.Add(time.Hour)},
	}
	res, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Tracks[0].Points, 2)
	assert.Equal(t, 1.5, res.Tracks[0].Points[1].Lat)
}

func TestRoutineStoreFailure(t *testing.T) {
	store := &mocks.PointStoreMock{FailFor: map[string]bool{"v-1": true}}
	r := NewRoutine(store, Config{}, nil)
	plan := domain.ResolvedPlan{
		Vessels: []domain.Vessel{{VesselID: "v-1"}},
		Window:  domain.TimeRange{Start: t0, End: t0.Add(time.Hour)},
	}
	_, err := r.Run(context.Background(), plan)
	pe, ok := domain.AsPipelineError(err)
	if !ok {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	assert.Equal(t, domain.KindDataAccess, pe.Kind)
	assert.Equal(t, domain.StageTrajectory, pe.Stage)
	assert.Equal(t, []string{"v-1"}, pe.Identifiers)
	assert.True(t, errors.Is(err, mocks.ErrPointStore))
}

func TestRoutineCancelled(t *testing.T) {
	store := &mocks.PointStoreMock{Delay: time.Second}
	r := NewRoutine(store, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, domain.ResolvedPlan{Vessels: []domain.Vessel{{VesselID: "v-1"}}})
	assert.ErrorIs(t, err, context.Canceled)
	_, isPipeline := domain.AsPipelineError(err)
	assert.False(t, isPipeline)
}
