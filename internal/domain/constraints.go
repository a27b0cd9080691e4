package domain

import (
	"regexp"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"aisquery/internal/geo"
)

// TimeRange is inclusive on both ends.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// TimeConstraint is either an absolute window (Start/End) or a relative
// expression such as "last_6h".
type TimeConstraint struct {
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Relative string     `json:"relative,omitempty"`
}

func (tc TimeConstraint) IsRelative() bool { return tc.Relative != "" }

var relativeUnits = regexp.MustCompile(`^last_([1-9][0-9]{0,3})([mhd])$`)

// ParseRelative checks that expr is one of the supported relative
// expressions: last_<N>m, last_<N>h, last_<N>d, last_week, last_weekend,
// today, yesterday.
func ParseRelative(expr string) error {
	switch expr {
	case "last_week", "last_weekend", "today", "yesterday":
		return nil
	}
	if !relativeUnits.MatchString(expr) {
		return errors.Newf("unsupported relative time expression %q", expr)
	}
	return nil
}

// Window turns the constraint into a concrete range anchored at now.
func (tc TimeConstraint) Window(now time.Time) (TimeRange, error) {
	if !tc.IsRelative() {
		if tc.Start == nil || tc.End == nil {
			return TimeRange{}, errors.New("absolute time constraint needs both start and end")
		}
		return TimeRange{Start: *tc.Start, End: *tc.End}, nil
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch tc.Relative {
	case "today":
		return TimeRange{Start: midnight, End: now}, nil
	case "yesterday":
		return TimeRange{Start: midnight.AddDate(0, 0, -1), End: midnight.Add(-time.Nanosecond)}, nil
	case "last_week":
		return TimeRange{Start: now.AddDate(0, 0, -7), End: now}, nil
	case "last_weekend":
		// Most recent Saturday..Sunday that has fully ended.
		back := (int(now.Weekday()) - int(time.Saturday) + 7) % 7
		sat := midnight.AddDate(0, 0, -back)
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			sat = sat.AddDate(0, 0, -7)
		}
		return TimeRange{Start: sat, End: sat.AddDate(0, 0, 2).Add(-time.Nanosecond)}, nil
	}
	m := relativeUnits.FindStringSubmatch(tc.Relative)
	if m == nil {
		return TimeRange{}, errors.Newf("unsupported relative time expression %q", tc.Relative)
	}
	n, _ := strconv.Atoi(m[1])
	var d time.Duration
	switch m[2] {
	case "m":
		d = time.Duration(n) * time.Minute
	case "h":
		d = time.Duration(n) * time.Hour
	case "d":
		d = time.Duration(n) * 24 * time.Hour
	}
	return TimeRange{Start: now.Add(-d), End: now}, nil
}

type SpatialKind string

const (
	SpatialNone    SpatialKind = "none"
	SpatialBBox    SpatialKind = "bbox"
	SpatialPolygon SpatialKind = "polygon"
)

type SpatialConstraint struct {
	Kind    SpatialKind `json:"type"`
	BBox    *geo.BBox   `json:"bbox,omitempty"`
	Polygon []geo.Point `json:"polygon,omitempty"`
}

// Active reports whether the constraint restricts anything.
func (s *SpatialConstraint) Active() bool {
	return s != nil && s.Kind != "" && s.Kind != SpatialNone
}

// Contains reports whether (lat, lon) lies inside the region. A nil or
// "none" constraint contains every point.
func (s *SpatialConstraint) Contains(lat, lon float64) bool {
	if !s.Active() {
		return true
	}
	p := geo.Point{Lat: lat, Lon: lon}
	switch s.Kind {
	case SpatialBBox:
		return s.BBox != nil && s.BBox.Contains(p)
	case SpatialPolygon:
		return geo.InPolygon(s.Polygon, p)
	}
	return false
}

// Bounds is the bounding box of the region, if the constraint is active.
func (s *SpatialConstraint) Bounds() (geo.BBox, bool) {
	if !s.Active() {
		return geo.BBox{}, false
	}
	switch s.Kind {
	case SpatialBBox:
		if s.BBox == nil {
			return geo.BBox{}, false
		}
		return *s.BBox, true
	case SpatialPolygon:
		if len(s.Polygon) == 0 {
			return geo.BBox{}, false
		}
		b := geo.BBox{MinLat: s.Polygon[0].Lat, MaxLat: s.Polygon[0].Lat, MinLon: s.Polygon[0].Lon, MaxLon: s.Polygon[0].Lon}
		for _, pt := range s.Polygon[1:] {
			b.MinLat = min(b.MinLat, pt.Lat)
			b.MaxLat = max(b.MaxLat, pt.Lat)
			b.MinLon = min(b.MinLon, pt.Lon)
			b.MaxLon = max(b.MaxLon, pt.Lon)
		}
		return b, true
	}
	return geo.BBox{}, false
}

// ListConstraints narrows a fleet listing to vessels reporting inside Window
// and, when set, inside Spatial. A zero Window means no time bound.
type ListConstraints struct {
	Window  TimeRange
	Spatial *SpatialConstraint
}
