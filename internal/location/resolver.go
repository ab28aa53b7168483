// Package location resolves free-text place names to stored locations,
// preferring what is already in the database over the geocoder.
package location

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
)

type Store interface {
	SearchLocations(ctx context.Context, query string) ([]models.Location, error)
	GetOrCreateLocation(ctx context.Context, name, country string, lat, lon float64) (models.Location, bool, error)
	GetLocation(ctx context.Context, id int64) (models.Location, error)
}

// Geocoder returns unpersisted candidates for a query.
type Geocoder interface {
	SearchLocations(ctx context.Context, query string) ([]models.Candidate, error)
}

type Source string

const (
	SourceNone     Source = ""
	SourceDatabase Source = "database"
	SourceGeocoder Source = "geocoder"
)

// Result holds either stored Locations or, for an unpersisted geocoder
// search, Candidates.
type Result struct {
	Source     Source
	Locations  []models.Location
	Candidates []models.Candidate
}

func (r Result) Len() int {
	return len(r.Locations) + len(r.Candidates)
}

type Resolver struct {
	store Store
	geo   Geocoder
	log   *zap.Logger
}

func NewResolver(store Store, geo Geocoder, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, geo: geo, log: logger.Named("location")}
}

// Search looks query up in the store first and only asks the geocoder when
// nothing matches. With persist set, geocoder candidates are saved and
// returned as Locations; otherwise the store is left untouched.
func (r *Resolver) Search(ctx context.Context, query string, persist bool) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, nil
	}

	stored, err := r.store.SearchLocations(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(stored) > 0 {
		r.log.Debug("matched stored locations", zap.String("query", query), zap.Int("count", len(stored)))
		return Result{Source: SourceDatabase, Locations: stored}, nil
	}

	candidates, err := r.geo.SearchLocations(ctx, query)
	if err != nil {
		r.log.Error("geocoder search failed", zap.String("query", query), zap.Error(err))
		return Result{}, nil
	}
	if len(candidates) == 0 {
		r.log.Info("no locations found", zap.String("query", query))
		return Result{}, nil
	}

	if !persist {
		return Result{Source: SourceGeocoder, Candidates: candidates}, nil
	}

	// Candidates differing only by state map to the same (name, country) row.
	locations := make([]models.Location, 0, len(candidates))
	seen := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		loc, created, err := r.store.GetOrCreateLocation(ctx, c.Name, c.Country, c.Lat, c.Lon)
		if err != nil {
			return Result{}, err
		}
		if created {
			r.log.Info("created location", zap.Int64("location_id", loc.ID),
				zap.String("name", loc.Name), zap.String("country", loc.Country))
		}
		if seen[loc.ID] {
			continue
		}
		seen[loc.ID] = true
		locations = append(locations, loc)
	}
	return Result{Source: SourceGeocoder, Locations: locations}, nil
}

// GetOrCreate returns the location for (name, country), creating it with
// the given coordinates when absent.
func (r *Resolver) GetOrCreate(ctx context.Context, name, country string, lat, lon float64) (models.Location, bool, error) {
	return r.store.GetOrCreateLocation(ctx, strings.TrimSpace(name), strings.TrimSpace(country), lat, lon)
}

func (r *Resolver) Get(ctx context.Context, id int64) (models.Location, error) {
	return r.store.GetLocation(ctx, id)
}
