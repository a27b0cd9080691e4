package domain

import "time"

// Payload is the domain-specific body of a successful response. Each domain
// routine produces exactly one concrete payload type.
type Payload interface {
	PayloadDomain() DomainIntent
	Count() int
}

type TrackStats struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	DistanceNM  float64   `json:"distance_nm"`
	AvgSOG      float64   `json:"avg_sog_kn"`
	MaxSOG      float64   `json:"max_sog_kn"`
	PointsTotal int       `json:"points_total"`
}

type Track struct {
	Vessel Vessel            `json:"vessel"`
	Points []TrajectoryPoint `json:"points"`
	Stats  *TrackStats       `json:"stats,omitempty"`
}

type TrajectoryResult struct {
	Kind   DomainIntent `json:"kind"`
	Window TimeRange    `json:"window"`
	Tracks []Track      `json:"tracks"`
}

func (r *TrajectoryResult) PayloadDomain() DomainIntent { return DomainTrajectory }

// Count is the number of points across all tracks.
func (r *TrajectoryResult) Count() int {
	n := 0
	for _, t := range r.Tracks {
		n += len(t.Points)
	}
	return n
}

type LoiteringParams struct {
	SpeedThresholdKn float64 `json:"speed_threshold_kn"`
	MinDwellHours    float64 `json:"min_dwell_hours"`
	MaxGapMinutes    float64 `json:"max_gap_minutes"`
}

type LoiteringResult struct {
	Kind           DomainIntent     `json:"kind"`
	Window         TimeRange        `json:"window"`
	Params         LoiteringParams  `json:"params"`
	VesselsScanned int              `json:"vessels_scanned"`
	Events         []LoiteringEvent `json:"events"`
}

func (r *LoiteringResult) PayloadDomain() DomainIntent { return DomainLoitering }
func (r *LoiteringResult) Count() int                  { return len(r.Events) }

// VesselActivity summarises one vessel's reports inside the query window.
type VesselActivity struct {
	Vessel       Vessel          `json:"vessel"`
	PointCount   int             `json:"point_count"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastSeen     time.Time       `json:"last_seen"`
	LastPosition TrajectoryPoint `json:"last_position"`
}

type ListingResult struct {
	Kind    DomainIntent     `json:"kind"`
	Window  TimeRange        `json:"window"`
	Vessels []VesselActivity `json:"vessels"`
}

func (r *ListingResult) PayloadDomain() DomainIntent { return DomainListing }
func (r *ListingResult) Count() int                  { return len(r.Vessels) }
