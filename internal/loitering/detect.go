// Package loitering finds sustained low-speed dwell in position series.
package loitering

import (
	"time"

	"aisquery/internal/domain"
)

type Params struct {
	SpeedThresholdKn float64
	MinDwell         time.Duration
	// MaxGap is the longest silence between consecutive reports that still
	// counts as one continuous run.
	MaxGap time.Duration
}

// Detect scans one vessel's ordered, de-duplicated series for runs of
// reports with SOG strictly below the threshold. A run ends at the first
// report that is not below the threshold (a NaN speed included) or at a
// reporting gap longer than MaxGap.
// Runs whose first-to-last span is under MinDwell are dropped, which always
// drops single-point runs.
//
// Interpolated reports extend runs but are left out of the centroid and mean
// speed, unless the run holds nothing else.
//
// Events whose centroid falls outside spatial are dropped. Output is ordered
// by start time.
func Detect(v domain.Vessel, series []domain.TrajectoryPoint, p Params, spatial *domain.SpatialConstraint) []domain.LoiteringEvent {
	var (
		events []domain.LoiteringEvent
		run    []domain.TrajectoryPoint
	)
	flush := func() {
		if ev, ok := summarise(v, run, p); ok && spatial.Contains(ev.CentroidLat, ev.CentroidLon) {
			events = append(events, ev)
		}
		run = run[:0]
	}

	for _, pt := range series {
		if !(pt.SOG < p.SpeedThresholdKn) {
			flush()
			continue
		}
		if len(run) > 0 && p.MaxGap > 0 && pt.Timestamp.Sub(run[len(run)-1].Timestamp) > p.MaxGap {
			flush()
		}
		run = append(run, pt)
	}
	flush()
	return events
}

func summarise(v domain.Vessel, run []domain.TrajectoryPoint, p Params) (domain.LoiteringEvent, bool) {
	if len(run) < 2 {
		return domain.LoiteringEvent{}, false
	}
	start, end := run[0].Timestamp, run[len(run)-1].Timestamp
	dwell := end.Sub(start)
	if dwell < p.MinDwell {
		return domain.LoiteringEvent{}, false
	}

	var lat, lon, sog float64
	n := 0
	for _, pt := range run {
		if pt.Interpolated {
			continue
		}
		lat += pt.Lat
		lon += pt.Lon
		sog += pt.SOG
		n++
	}
	if n == 0 {
		for _, pt := range run {
			lat += pt.Lat
			lon += pt.Lon
			sog += pt.SOG
		}
		n = len(run)
	}

	return domain.LoiteringEvent{
		VesselID:    v.VesselID,
		MMSI:        v.MMSI,
		VesselName:  v.Name,
		StartTime:   start,
		EndTime:     end,
		CentroidLat: lat / float64(n),
		CentroidLon: lon / float64(n),
		AvgSpeed:    sog / float64(n),
		Dwell:       dwell,
		PointCount:  len(run),
	}, true
}
