package db

import (
	"context"
	"fmt"

	"aisquery/internal/domain"
	"aisquery/internal/trajectory"
	"aisquery/internal/vessel"
)

// Backend is what the server and CLI need from a store: the vessel
// registry, the position series and the write path used by imports.
type Backend interface {
	vessel.Registry
	trajectory.PointStore

	Ping(ctx context.Context) error
	UpsertVessel(ctx context.Context, v domain.Vessel) error
	InsertPositions(ctx context.Context, vesselID string, points []domain.TrajectoryPoint) error
	DataRange(ctx context.Context) (domain.TimeRange, error)
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*SQLStore)(nil)
)

// Open connects to the named driver and migrates the schema.
func Open(ctx context.Context, driver, dsn, sqlitePath string) (Backend, error) {
	switch driver {
	case "postgres":
		store, err := New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "sqlite":
		return OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}
