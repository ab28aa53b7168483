package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/weatherreminder/internal/models"
)

// UpsertSnapshot overwrites the stored snapshot for (locationID, period).
// Each period keeps exactly one row; this is the latest known data, not an
// append-only history.
func (s *Store) UpsertSnapshot(ctx context.Context, locationID int64, period models.Period, data models.Snapshot, fetchedAt time.Time) error {
	if data == nil {
		data = models.Snapshot{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weather_snapshots (location_id, period, payload, items_count, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location_id, period) DO UPDATE SET
			payload = excluded.payload,
			items_count = excluded.items_count,
			fetched_at = excluded.fetched_at
	`, locationID, string(period), string(payload), len(data), fetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert snapshot %d/%s: %w", locationID, period, err)
	}
	return nil
}

const snapshotColumns = `id, location_id, period, payload, items_count, fetched_at`

func scanSnapshot(row interface{ Scan(...any) error }) (models.StoredSnapshot, error) {
	var (
		snap    models.StoredSnapshot
		period  string
		payload string
	)
	if err := row.Scan(&snap.ID, &snap.LocationID, &period, &payload, &snap.ItemsCount, &snap.FetchedAt); err != nil {
		return snap, err
	}
	snap.Period = models.Period(period)
	if err := json.Unmarshal([]byte(payload), &snap.Data); err != nil {
		return snap, fmt.Errorf("decode snapshot %d payload: %w", snap.ID, err)
	}
	if snap.Data == nil {
		snap.Data = models.Snapshot{}
	}
	return snap, nil
}

func (s *Store) GetSnapshot(ctx context.Context, locationID int64, period models.Period) (*models.StoredSnapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM weather_snapshots WHERE location_id = ? AND period = ?`,
		locationID, string(period)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns the stored snapshots of a location, newest first,
// along with the total row count for pagination.
func (s *Store) ListSnapshots(ctx context.Context, locationID int64, limit, offset int) ([]models.StoredSnapshot, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weather_snapshots WHERE location_id = ?`, locationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM weather_snapshots
		WHERE location_id = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, locationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var snaps []models.StoredSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, total, rows.Err()
}
