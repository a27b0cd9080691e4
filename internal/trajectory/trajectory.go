// Package trajectory retrieves time-windowed position tracks.
package trajectory

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"

	"aisquery/internal/domain"
	"aisquery/internal/geo"
)

// PointStore is the time-indexed position source. Implementations return
// points inside tr ordered by timestamp; callers still normalise through
// Series.
type PointStore interface {
	QueryPoints(ctx context.Context, vesselID string, tr domain.TimeRange) ([]domain.TrajectoryPoint, error)
}

// Series orders points by timestamp and drops repeated timestamps, keeping
// the first report seen for each instant. The input is not modified.
func Series(points []domain.TrajectoryPoint) []domain.TrajectoryPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]domain.TrajectoryPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Equal(out[n-1].Timestamp) {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Load fetches and normalises one vessel's series, mapping store failures
// to a DataAccessError attributed to stage.
func Load(ctx context.Context, store PointStore, stage domain.StageName, vesselID string, tr domain.TimeRange) ([]domain.TrajectoryPoint, error) {
	points, err := store.QueryPoints(ctx, vesselID, tr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewDataAccessError(stage, vesselID, errors.Wrap(err, "query points"))
	}
	return Series(points), nil
}

type Config struct {
	DefaultLimit int
}

type Routine struct {
	store  PointStore
	cfg    Config
	logger *slog.Logger
}

func NewRoutine(store PointStore, cfg Config, logger *slog.Logger) *Routine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Routine{store: store, cfg: cfg, logger: logger}
}

// Run returns one track per resolved vessel, in plan order. Each track holds
// the earliest points of the window up to the output limit; statistics cover
// the whole window. A vessel without reports gets an empty track.
func (r *Routine) Run(ctx context.Context, plan domain.ResolvedPlan) (*domain.TrajectoryResult, error) {
	limit := plan.Intent.Output.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	spatial := plan.Intent.Spatial

	res := &domain.TrajectoryResult{
		Kind:   domain.DomainTrajectory,
		Window: plan.Window,
		Tracks: make([]domain.Track, 0, len(plan.Vessels)),
	}
	for _, v := range plan.Vessels {
		points, err := Load(ctx, r.store, domain.StageTrajectory, v.VesselID, plan.Window)
		if err != nil {
			return nil, err
		}
		if spatial.Active() {
			kept := points[:0]
			for _, p := range points {
				if spatial.Contains(p.Lat, p.Lon) {
					kept = append(kept, p)
				}
			}
			points = kept
		}

		track := domain.Track{Vessel: v, Points: points, Stats: Stats(points)}
		if len(track.Points) > limit {
			track.Points = track.Points[:limit]
		}
		if track.Points == nil {
			track.Points = []domain.TrajectoryPoint{}
		}
		res.Tracks = append(res.Tracks, track)
	}

	r.logger.Debug("trajectory fetched",
		"vessels", len(plan.Vessels),
		"points", res.Count(),
		"limit", limit,
	)
	return res, nil
}

// Stats summarises an ordered series. Nil for an empty series.
func Stats(points []domain.TrajectoryPoint) *domain.TrackStats {
	if len(points) == 0 {
		return nil
	}
	st := &domain.TrackStats{
		FirstSeen:   points[0].Timestamp,
		LastSeen:    points[len(points)-1].Timestamp,
		PointsTotal: len(points),
	}
	var sum float64
	for i, p := range points {
		sum += p.SOG
		if p.SOG > st.MaxSOG {
			st.MaxSOG = p.SOG
		}
		if i > 0 {
			prev := points[i-1]
			st.DistanceNM += geo.DistanceNM(geo.Point{Lat: prev.Lat, Lon: prev.Lon}, geo.Point{Lat: p.Lat, Lon: p.Lon})
		}
	}
	st.AvgSOG = sum / float64(len(points))
	return st
}
