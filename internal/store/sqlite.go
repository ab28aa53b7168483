package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/weatherreminder/internal/models"
)

var (
	ErrLocationNotFound      = errors.New("location not found")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateSubscription = errors.New("subscription already exists")
)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, log: logger.Named("store")}
}

// pragmas are applied by the driver to every new connection. busy_timeout
// and foreign_keys are per connection, so setting them once with Exec would
// leave the rest of the pool without them.
var pragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

// DSN appends the connection pragmas to path.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// Open opens the SQLite database at path with the connection pragmas. An
// in-memory database is pinned to one connection so every query sees the
// same schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const locationColumns = `id, name, country, latitude, longitude, created_at`

// foldName is the case-folded form stored in name_folded. SQLite's LIKE
// only folds ASCII, so matching happens on this column instead.
func foldName(name string) string {
	return strings.ToLower(name)
}

func scanLocation(row interface{ Scan(...any) error }) (models.Location, error) {
	var loc models.Location
	err := row.Scan(&loc.ID, &loc.Name, &loc.Country, &loc.Latitude, &loc.Longitude, &loc.CreatedAt)
	return loc, err
}

// GetOrCreateLocation returns the location for (name, country), inserting
// it when absent. The unique constraint on (name, country) is the
// concurrency guard: a losing concurrent insert becomes a no-op and the
// row is re-read.
func (s *Store) GetOrCreateLocation(ctx context.Context, name, country string, lat, lon float64) (models.Location, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (name, name_folded, country, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, country) DO NOTHING
	`, name, foldName(name), country, lat, lon, time.Now().UTC())
	if err != nil {
		return models.Location{}, false, fmt.Errorf("insert location: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Location{}, false, fmt.Errorf("insert location: %w", err)
	}

	loc, err := scanLocation(s.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE name = ? AND country = ?`, name, country))
	if err != nil {
		return models.Location{}, false, fmt.Errorf("read location %s,%s: %w", name, country, err)
	}
	return loc, affected == 1, nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (models.Location, error) {
	loc, err := scanLocation(s.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Location{}, ErrLocationNotFound
	}
	if err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

// SearchLocations returns locations whose name contains query,
// case-insensitively for any script, ordered by name.
func (s *Store) SearchLocations(ctx context.Context, query string) ([]models.Location, error) {
	pattern := "%" + escapeLike(foldName(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+locationColumns+`
		FROM locations
		WHERE name_folded LIKE ? ESCAPE '\'
		ORDER BY name
	`, pattern)
	if err != nil {
		return nil, err
	}
	return collectLocations(rows)
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectLocations(rows)
}

func (s *Store) CountLocations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&n)
	return n, err
}

func collectLocations(rows *sql.Rows) ([]models.Location, error) {
	defer rows.Close()
	var locations []models.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
