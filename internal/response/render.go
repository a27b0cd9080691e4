package response

import (
	"fmt"
	"strings"
	"time"

	"aisquery/internal/domain"
)

// FeatureCollection renders trajectory points, loitering centroids or the
// last listed positions as GeoJSON points.
func FeatureCollection(p domain.Payload) *domain.FeatureCollection {
	fc := &domain.FeatureCollection{Type: "FeatureCollection", Features: []domain.Feature{}}
	point := func(lat, lon float64, props map[string]any) {
		fc.Features = append(fc.Features, domain.Feature{
			Type:       "Feature",
			Geometry:   domain.Geometry{Type: "Point", Coordinates: []float64{lon, lat}},
			Properties: props,
		})
	}

	switch r := p.(type) {
	case *domain.TrajectoryResult:
		for _, t := range r.Tracks {
			for _, pt := range t.Points {
				point(pt.Lat, pt.Lon, map[string]any{
					"mmsi":         t.Vessel.MMSI,
					"timestamp":    pt.Timestamp.Format(time.RFC3339),
					"sog":          pt.SOG,
					"cog":          pt.COG,
					"interpolated": pt.Interpolated,
				})
			}
		}
	case *domain.LoiteringResult:
		for _, e := range r.Events {
			point(e.CentroidLat, e.CentroidLon, map[string]any{
				"mmsi":         e.MMSI,
				"start_time":   e.StartTime.Format(time.RFC3339),
				"end_time":     e.EndTime.Format(time.RFC3339),
				"dwell_hours":  e.Dwell.Hours(),
				"avg_speed_kn": e.AvgSpeed,
			})
		}
	case *domain.ListingResult:
		for _, a := range r.Vessels {
			point(a.LastPosition.Lat, a.LastPosition.Lon, map[string]any{
				"mmsi":        a.Vessel.MMSI,
				"name":        a.Vessel.Name,
				"last_seen":   a.LastSeen.Format(time.RFC3339),
				"point_count": a.PointCount,
			})
		}
	}
	return fc
}

// Summary is a one-paragraph description of the result.
func Summary(p domain.Payload) string {
	if p.Count() == 0 {
		return "No results found."
	}
	var parts []string
	switch r := p.(type) {
	case *domain.TrajectoryResult:
		var (
			first, last time.Time
			sum, maxSOG float64
			vessels     int
		)
		for _, t := range r.Tracks {
			if len(t.Points) == 0 {
				continue
			}
			vessels++
			for _, pt := range t.Points {
				if first.IsZero() || pt.Timestamp.Before(first) {
					first = pt.Timestamp
				}
				if pt.Timestamp.After(last) {
					last = pt.Timestamp
				}
				sum += pt.SOG
				if pt.SOG > maxSOG {
					maxSOG = pt.SOG
				}
			}
		}
		parts = append(parts,
			fmt.Sprintf("Found %d records from %d vessel(s) between %s and %s",
				r.Count(), vessels, first.Format(time.RFC3339), last.Format(time.RFC3339)),
			fmt.Sprintf("Average speed: %.2f knots, Max speed: %.2f knots", sum/float64(r.Count()), maxSOG),
		)
	case *domain.LoiteringResult:
		var total time.Duration
		vessels := map[string]bool{}
		for _, e := range r.Events {
			total += e.Dwell
			vessels[e.VesselID] = true
		}
		parts = append(parts,
			fmt.Sprintf("Found %d loitering event(s) from %d vessel(s) between %s and %s",
				len(r.Events), len(vessels), r.Events[0].StartTime.Format(time.RFC3339), latestEnd(r.Events).Format(time.RFC3339)),
			fmt.Sprintf("Total dwell time: %.2f hours, Average: %.2f hours", total.Hours(), total.Hours()/float64(len(r.Events))),
		)
	case *domain.ListingResult:
		points := 0
		for _, a := range r.Vessels {
			points += a.PointCount
		}
		parts = append(parts,
			fmt.Sprintf("Found %d active vessel(s) with %d reports between %s and %s",
				len(r.Vessels), points, r.Window.Start.Format(time.RFC3339), r.Window.End.Format(time.RFC3339)),
		)
	}
	return strings.Join(parts, ". ") + "."
}

func latestEnd(events []domain.LoiteringEvent) time.Time {
	var end time.Time
	for _, e := range events {
		if e.EndTime.After(end) {
			end = e.EndTime
		}
	}
	return end
}
