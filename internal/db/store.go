package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aisquery/internal/domain"
	"aisquery/internal/vessel"
)

// Store is the Postgres-backed vessel registry and position store.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vessels (
			vessel_id TEXT PRIMARY KEY,
			mmsi TEXT NOT NULL UNIQUE,
			imo TEXT,
			call_sign TEXT,
			name TEXT,
			vessel_type TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_imo ON vessels(imo);`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_call_sign ON vessels(UPPER(call_sign));`,
		`CREATE TABLE IF NOT EXISTS positions (
			vessel_id TEXT NOT NULL REFERENCES vessels(vessel_id) ON DELETE CASCADE,
			ts TIMESTAMPTZ NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			sog DOUBLE PRECISION NOT NULL DEFAULT 0,
			cog DOUBLE PRECISION NOT NULL DEFAULT 0,
			interpolated BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (vessel_id, ts)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_ts ON positions(ts);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

const vesselColumns = `vessel_id, mmsi, COALESCE(imo, ''), COALESCE(call_sign, ''), COALESCE(name, ''), COALESCE(vessel_type, '')`

func (s *Store) lookupOne(ctx context.Context, where string, arg string) (domain.Vessel, error) {
	var v domain.Vessel
	err := s.pool.QueryRow(ctx, `SELECT `+vesselColumns+` FROM vessels WHERE `+where+` LIMIT 1`, arg).
		Scan(&v.VesselID, &v.MMSI, &v.IMO, &v.CallSign, &v.Name, &v.Type)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vessel{}, domain.ErrVesselNotFound
	}
	return domain.Vessel{}, err
}

func (s *Store) LookupByMMSI(ctx context.Context, mmsi string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `mmsi=$1`, mmsi)
}

func (s *Store) LookupByIMO(ctx context.Context, imo string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `imo=$1`, imo)
}

func (s *Store) LookupByCallSign(ctx context.Context, callSign string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `UPPER(call_sign)=$1`, strings.ToUpper(callSign))
}

// SearchByName ranks every named vessel against text. Fleet registries are
// small enough that scoring in process beats a trigram extension.
func (s *Store) SearchByName(ctx context.Context, text string) ([]domain.NameMatch, error) {
	all, err := s.ListAll(ctx, domain.ListConstraints{})
	if err != nil {
		return nil, err
	}
	return vessel.RankNames(text, all), nil
}

// ListAll returns vessels with at least one report inside c, ordered by
// MMSI. Polygons are narrowed to their bounding box here.
func (s *Store) ListAll(ctx context.Context, c domain.ListConstraints) ([]domain.Vessel, error) {
	where, args := listFilter(c, func(n int) string { return fmt.Sprintf("$%d", n) }, func(t time.Time) any { return t.UTC() }, "ts")
	rows, err := s.pool.Query(ctx, `SELECT `+vesselColumns+` FROM vessels `+where+`ORDER BY mmsi ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Vessel, 0, 64)
	for rows.Next() {
		var v domain.Vessel
		if err := rows.Scan(&v.VesselID, &v.MMSI, &v.IMO, &v.CallSign, &v.Name, &v.Type); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// listFilter builds the EXISTS clause shared by both stores. placeholder
// renders the nth bind marker and ts converts window bounds for tsColumn.
func listFilter(c domain.ListConstraints, placeholder func(int) string, ts func(time.Time) any, tsColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	bind := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if !c.Window.Start.IsZero() || !c.Window.End.IsZero() {
		bind("p."+tsColumn+" >= %s", ts(c.Window.Start))
		bind("p."+tsColumn+" <= %s", ts(c.Window.End))
	}
	if b, ok := c.Spatial.Bounds(); ok {
		bind("p.lat >= %s", b.MinLat)
		bind("p.lat <= %s", b.MaxLat)
		bind("p.lon >= %s", b.MinLon)
		bind("p.lon <= %s", b.MaxLon)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return `WHERE EXISTS (SELECT 1 FROM positions p WHERE p.vessel_id = vessels.vessel_id AND ` +
		strings.Join(conds, " AND ") + `) `, args
}

// QueryPoints returns the vessel's reports inside tr, oldest first.
func (s *Store) QueryPoints(ctx context.Context, vesselID string, tr domain.TimeRange) ([]domain.TrajectoryPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, lat, lon, sog, cog, interpolated
		FROM positions
		WHERE vessel_id=$1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, vesselID, tr.Start.UTC(), tr.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.TrajectoryPoint, 0, 256)
	for rows.Next() {
		var p domain.TrajectoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Lat, &p.Lon, &p.SOG, &p.COG, &p.Interpolated); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) UpsertVessel(ctx context.Context, v domain.Vessel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vessels(vessel_id, mmsi, imo, call_sign, name, vessel_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vessel_id)
		DO UPDATE SET mmsi = EXCLUDED.mmsi, imo = EXCLUDED.imo, call_sign = EXCLUDED.call_sign,
			name = EXCLUDED.name, vessel_type = EXCLUDED.vessel_type;
	`, v.VesselID, v.MMSI, nullIfEmpty(v.IMO), nullIfEmpty(v.CallSign), nullIfEmpty(v.Name), nullIfEmpty(v.Type))
	return err
}

// InsertPositions writes points in one batch; duplicate timestamps for a
// vessel keep the first report.
func (s *Store) InsertPositions(ctx context.Context, vesselID string, points []domain.TrajectoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO positions(vessel_id, ts, lat, lon, sog, cog, interpolated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (vessel_id, ts) DO NOTHING
		`, vesselID, p.Timestamp.UTC(), p.Lat, p.Lon, p.SOG, p.COG, p.Interpolated)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DataRange is the span of stored reports across the fleet. An empty store
// yields a zero range.
func (s *Store) DataRange(ctx context.Context) (domain.TimeRange, error) {
	var first, last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MIN(ts), MAX(ts) FROM positions`).Scan(&first, &last); err != nil {
		return domain.TimeRange{}, err
	}
	if first == nil || last == nil {
		return domain.TimeRange{}, nil
	}
	return domain.TimeRange{Start: first.UTC(), End: last.UTC()}, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
