package domain

import (
	"encoding/json"
	"regexp"
	"time"
)

var (
	mmsiPattern = regexp.MustCompile(`^[0-9]{9}$`)
	imoPattern  = regexp.MustCompile(`^[0-9]{7}$`)
)

// ValidMMSI reports whether s is a nine-digit MMSI.
func ValidMMSI(s string) bool { return mmsiPattern.MatchString(s) }

// ValidIMO reports whether s is a seven-digit IMO number.
func ValidIMO(s string) bool { return imoPattern.MatchString(s) }

type Vessel struct {
	VesselID string `json:"vessel_id"`
	MMSI     string `json:"mmsi"`
	IMO      string `json:"imo,omitempty"`
	CallSign string `json:"call_sign,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"vessel_type,omitempty"`
}

// Label is the human-facing identifier used in summaries and prompts.
func (v Vessel) Label() string {
	if v.Name != "" {
		return v.Name + " (MMSI " + v.MMSI + ")"
	}
	return "MMSI " + v.MMSI
}

// NameMatch is a registry candidate for a free-text name with its
// similarity score in [0, 1].
type NameMatch struct {
	Vessel Vessel
	Score  float64
}

// ResolvedPlan is a validated intent with every vessel reference bound to a
// registry record and the time window fixed.
type ResolvedPlan struct {
	Intent  CanonicalIntent `json:"intent"`
	Vessels []Vessel        `json:"vessels"`
	Window  TimeRange       `json:"window"`
}

type TrajectoryPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	SOG          float64   `json:"sog"`
	COG          float64   `json:"cog"`
	Interpolated bool      `json:"interpolated,omitempty"`
}

type LoiteringEvent struct {
	VesselID    string        `json:"vessel_id"`
	MMSI        string        `json:"mmsi"`
	VesselName  string        `json:"vessel_name,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	CentroidLat float64       `json:"centroid_lat"`
	CentroidLon float64       `json:"centroid_lon"`
	AvgSpeed    float64       `json:"avg_speed_kn"`
	Dwell       time.Duration `json:"-"`
	PointCount  int           `json:"point_count"`
}

func (e LoiteringEvent) MarshalJSON() ([]byte, error) {
	type plain LoiteringEvent
	return json.Marshal(struct {
		plain
		DwellHours float64 `json:"dwell_hours"`
	}{plain(e), e.Dwell.Hours()})
}
