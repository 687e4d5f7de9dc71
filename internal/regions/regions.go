// Package regions names the administrative region nearest to an alert's
// coordinates using a SQLite table built from a shapefile.
package regions

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// Region is a named area with its distance from a query point
type Region struct {
	Code     string
	Name     string
	Distance float64 // miles from the query point to the centre
	Contains bool    // query point falls inside the bounding box
}

// HaversineDistance calculates distance in miles between two lat/lon points
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMiles = 3959.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

// Lookup queries the regions table
type Lookup struct {
	db *sql.DB
}

// NewLookup wraps a database that holds a provisioned regions table
func NewLookup(db *sql.DB) *Lookup {
	return &Lookup{db: db}
}

// Nearby returns regions whose bounding box contains the point, followed by
// regions whose centre is within maxMiles, closest first.
func (l *Lookup) Nearby(lat, lon, maxMiles float64) ([]Region, error) {
	// rough filter: ~69 miles per degree of latitude, longitude degrees shrink
	// toward the poles so use a wider window
	latDelta := maxMiles / 69.0 * 1.5
	lonDelta := maxMiles / 55.0 * 1.5

	rows, err := l.db.Query(`
		SELECT code, name, center_lat, center_lon,
			bbox_min_lat <= ? AND bbox_max_lat >= ? AND bbox_min_lon <= ? AND bbox_max_lon >= ?
		FROM regions
		WHERE (center_lat BETWEEN ? AND ? AND center_lon BETWEEN ? AND ?)
		   OR (bbox_min_lat <= ? AND bbox_max_lat >= ? AND bbox_min_lon <= ? AND bbox_max_lon >= ?)
	`,
		lat, lat, lon, lon,
		lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta,
		lat, lat, lon, lon)
	if err != nil {
		return nil, fmt.Errorf("querying regions: %w", err)
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var r Region
		var centerLat, centerLon float64
		if err := rows.Scan(&r.Code, &r.Name, &centerLat, &centerLon, &r.Contains); err != nil {
			return nil, fmt.Errorf("scanning region: %w", err)
		}
		r.Distance = HaversineDistance(lat, lon, centerLat, centerLon)
		if r.Contains || r.Distance <= maxMiles {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Contains != out[j].Contains {
			return out[i].Contains
		}
		return out[i].Distance < out[j].Distance
	})
	return out, nil
}

// Nearest returns the best region for the point, or nil when none qualifies
func (l *Lookup) Nearest(lat, lon, maxMiles float64) (*Region, error) {
	regions, err := l.Nearby(lat, lon, maxMiles)
	if err != nil || len(regions) == 0 {
		return nil, err
	}
	return &regions[0], nil
}

// Enricher fills in place names for alerts that only carry coordinates
type Enricher struct {
	lookup   *Lookup
	maxMiles float64
	logger   logging.Logger
}

// NewEnricher creates an enricher over lookup
func NewEnricher(lookup *Lookup, maxMiles float64, logger logging.Logger) *Enricher {
	return &Enricher{lookup: lookup, maxMiles: maxMiles, logger: logger}
}

// Enrich sets Location.PlaceName in place. Lookup failures leave the alert
// unchanged.
func (e *Enricher) Enrich(alerts []models.Alert) {
	for i := range alerts {
		loc := alerts[i].Location
		if loc == nil || loc.PlaceName != "" || !loc.HasCoordinates() {
			continue
		}
		r, err := e.lookup.Nearest(*loc.Lat, *loc.Lng, e.maxMiles)
		if err != nil {
			e.logger.WithError(err).Debug("Region lookup failed")
			continue
		}
		if r != nil {
			loc.PlaceName = r.Name
		}
	}
}
