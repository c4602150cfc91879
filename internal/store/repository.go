package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-bthome/internal/types"
)

//go:embed sql/queries/upsert-station.sql
var upsertStationSQL string

//go:embed sql/queries/get-station-id-by-name.sql
var getStationIDByNameSQL string

//go:embed sql/queries/insert-observation.sql
var insertObservationSQL string

//go:embed sql/queries/get-latest-observations.sql
var getLatestObservationsSQL string

//go:embed sql/queries/count-observations.sql
var countObservationsSQL string

// Repository stores telemetry history per station.
type Repository interface {
	InsertTelemetry(ctx context.Context, t types.Telemetry) error
	LatestTelemetry(ctx context.Context, stationID string, limit int) ([]types.Telemetry, error)
	CountTelemetry(ctx context.Context, stationID string) (int, error)
}

type repositoryImpl struct {
	db       *sql.DB
	stations map[string]int64
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db, stations: make(map[string]int64)}
}

func (r *repositoryImpl) InsertTelemetry(ctx context.Context, t types.Telemetry) error {
	if t.StationID == "" {
		return errors.New("insert telemetry: empty station id")
	}
	if t.Humidity != nil && (*t.Humidity < 0 || *t.Humidity > 100) {
		return fmt.Errorf("humidity_pct out of range: %f (must be 0-100)", *t.Humidity)
	}

	stationID, err := r.stationID(ctx, t.StationID)
	if err != nil {
		return err
	}

	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var button any
	if t.Button != "" {
		button = t.Button
	}
	var address any
	if t.Address != "" {
		address = t.Address
	}

	_, err = r.db.ExecContext(ctx, insertObservationSQL,
		stationID,
		ts.UTC().Format(time.RFC3339Nano),
		t.Source,
		nullable(t.Temperature),
		nullable(t.Humidity),
		nullable(t.Battery),
		nullable(t.Sequence),
		nullable(t.RSSI),
		address,
		t.Encrypted,
		button,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (r *repositoryImpl) stationID(ctx context.Context, name string) (int64, error) {
	if id, ok := r.stations[name]; ok {
		return id, nil
	}
	if _, err := r.db.ExecContext(ctx, upsertStationSQL, name); err != nil {
		return 0, fmt.Errorf("upsert station %q: %w", name, err)
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, getStationIDByNameSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup station %q: %w", name, err)
	}
	r.stations[name] = id
	return id, nil
}

func (r *repositoryImpl) LatestTelemetry(ctx context.Context, stationID string, limit int) ([]types.Telemetry, error) {
	rows, err := r.db.QueryContext(ctx, getLatestObservationsSQL, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close observation rows", "error", err)
		}
	}()

	var out []types.Telemetry
	for rows.Next() {
		var (
			t                    types.Telemetry
			ts                   string
			temp, hum, batt      sql.NullFloat64
			seq, rssi            sql.NullInt64
			address, buttonLabel sql.NullString
		)
		if err := rows.Scan(&t.StationID, &ts, &t.Source, &temp, &hum, &batt, &seq, &rssi, &address, &t.Encrypted, &buttonLabel); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		t.Timestamp = parsed
		t.Temperature = floatOrNil(temp)
		t.Humidity = floatOrNil(hum)
		t.Battery = floatOrNil(batt)
		t.Sequence = intOrNil(seq)
		t.RSSI = intOrNil(rssi)
		t.Address = address.String
		t.Button = buttonLabel.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) CountTelemetry(ctx context.Context, stationID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countObservationsSQL, stationID).Scan(&n)
	return n, err
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func intOrNil(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
