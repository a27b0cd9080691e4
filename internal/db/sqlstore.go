package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aisquery/internal/domain"
	"aisquery/internal/vessel"
)

// SQLStore is the embedded counterpart of Store over database/sql. The CLI
// runs it on a SQLite file; timestamps are stored as unix milliseconds.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite file and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	conn.SetMaxOpenConns(1)
	s := NewSQLStore(conn)
	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vessels (
			vessel_id TEXT PRIMARY KEY,
			mmsi TEXT NOT NULL UNIQUE,
			imo TEXT,
			call_sign TEXT,
			name TEXT,
			vessel_type TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_imo ON vessels(imo);`,
		`CREATE TABLE IF NOT EXISTS positions (
			vessel_id TEXT NOT NULL REFERENCES vessels(vessel_id) ON DELETE CASCADE,
			ts_ms INTEGER NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			sog REAL NOT NULL DEFAULT 0,
			cog REAL NOT NULL DEFAULT 0,
			interpolated INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (vessel_id, ts_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_ts ON positions(ts_ms);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) lookupOne(ctx context.Context, where string, arg string) (domain.Vessel, error) {
	var v domain.Vessel
	err := s.db.QueryRowContext(ctx, `SELECT `+vesselColumns+` FROM vessels WHERE `+where+` LIMIT 1`, arg).
		Scan(&v.VesselID, &v.MMSI, &v.IMO, &v.CallSign, &v.Name, &v.Type)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vessel{}, domain.ErrVesselNotFound
	}
	return domain.Vessel{}, err
}

func (s *SQLStore) LookupByMMSI(ctx context.Context, mmsi string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `mmsi=?`, mmsi)
}

func (s *SQLStore) LookupByIMO(ctx context.Context, imo string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `imo=?`, imo)
}

func (s *SQLStore) LookupByCallSign(ctx context.Context, callSign string) (domain.Vessel, error) {
	return s.lookupOne(ctx, `UPPER(call_sign)=?`, strings.ToUpper(callSign))
}

func (s *SQLStore) SearchByName(ctx context.Context, text string) ([]domain.NameMatch, error) {
	all, err := s.ListAll(ctx, domain.ListConstraints{})
	if err != nil {
		return nil, err
	}
	return vessel.RankNames(text, all), nil
}

func (s *SQLStore) ListAll(ctx context.Context, c domain.ListConstraints) ([]domain.Vessel, error) {
	where, args := listFilter(c, func(int) string { return "?" }, func(t time.Time) any { return t.UnixMilli() }, "ts_ms")
	rows, err := s.db.QueryContext(ctx, `SELECT `+vesselColumns+` FROM vessels `+where+`ORDER BY mmsi ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vessel
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

func (s *SQLStore) QueryPoints(ctx context.Context, vesselID string, tr domain.TimeRange) ([]domain.TrajectoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ms, lat, lon, sog, cog, interpolated
		FROM positions
		WHERE vessel_id=? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms ASC
	`, vesselID, tr.Start.UnixMilli(), tr.End.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.TrajectoryPoint
	for rows.Next() {
		var (
			p  domain.TrajectoryPoint
			ms int64
		)
		if err := rows.Scan(&ms, &p.Lat, &p.Lon, &p.SOG, &p.COG, &p.Interpolated); err != nil {
			return nil, err
		}
		p.Timestamp = time.UnixMilli(ms).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *SQLStore) UpsertVessel(ctx context.Context, v domain.Vessel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vessels(vessel_id, mmsi, imo, call_sign, name, vessel_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (vessel_id)
		DO UPDATE SET mmsi = excluded.mmsi, imo = excluded.imo, call_sign = excluded.call_sign,
			name = excluded.name, vessel_type = excluded.vessel_type
	`, v.VesselID, v.MMSI, nullIfEmpty(v.IMO), nullIfEmpty(v.CallSign), nullIfEmpty(v.Name), nullIfEmpty(v.Type))
	return err
}

func (s *SQLStore) InsertPositions(ctx context.Context, vesselID string, points []domain.TrajectoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions(vessel_id, ts_ms, lat, lon, sog, cog, interpolated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vessel_id, ts_ms) DO NOTHING
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, vesselID, p.Timestamp.UnixMilli(), p.Lat, p.Lon, p.SOG, p.COG, p.Interpolated); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) DataRange(ctx context.Context) (domain.TimeRange, error) {
	var first, last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(ts_ms), MAX(ts_ms) FROM positions`).Scan(&first, &last); err != nil {
		return domain.TimeRange{}, err
	}
	if !first.Valid || !last.Valid {
		return domain.TimeRange{}, nil
	}
	return domain.TimeRange{
		Start: time.UnixMilli(first.Int64).UTC(),
		End:   time.UnixMilli(last.Int64).UTC(),
	}, nil
}
