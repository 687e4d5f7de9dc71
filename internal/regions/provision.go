package regions

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/ngmaloney/disaster-terminal/internal/logging"
)

// Attribute names tried, in order, for a region's code and name
var (
	codeFields = []string{"CODE", "ID", "ADM1_PCODE", "ADM2_PCODE", "ISO", "GID_1"}
	nameFields = []string{"NAME", "NAME_1", "NAME_2", "ADM1_EN", "ADM2_EN", "SHAPENAME"}
	latFields  = []string{"LAT", "LATITUDE", "CENTER_LAT"}
	lonFields  = []string{"LON", "LONGITUDE", "CENTER_LON"}
)

// Provision builds the regions table from a polygon shapefile unless it
// already exists. It returns the number of regions inserted.
func Provision(db *sql.DB, shapefilePath string, logger logging.Logger) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='regions'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("checking for regions table: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	logger.WithField("shapefile", shapefilePath).Info("Regions table not found, provisioning")
	n, err := buildTable(db, shapefilePath, logger)
	if err != nil {
		return 0, fmt.Errorf("building regions table: %w", err)
	}
	logger.WithField("regions", n).Info("Provisioned regions table")
	return n, nil
}

func buildTable(db *sql.DB, shapefilePath string, logger logging.Logger) (int, error) {
	shape, err := shp.Open(shapefilePath)
	if err != nil {
		return 0, fmt.Errorf("opening shapefile: %w", err)
	}
	defer shape.Close()

	fields := fieldIndex(shape.Fields())
	codeIdx := firstField(fields, codeFields)
	nameIdx := firstField(fields, nameFields)
	latIdx := firstField(fields, latFields)
	lonIdx := firstField(fields, lonFields)
	if nameIdx < 0 {
		return 0, fmt.Errorf("shapefile has no name attribute (tried %s)", strings.Join(nameFields, ", "))
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		CREATE TABLE regions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			bbox_min_lat REAL NOT NULL,
			bbox_max_lat REAL NOT NULL,
			bbox_min_lon REAL NOT NULL,
			bbox_max_lon REAL NOT NULL,
			center_lat REAL NOT NULL,
			center_lon REAL NOT NULL
		);

		CREATE INDEX idx_regions_bbox ON regions(
			bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon
		);
		CREATE INDEX idx_regions_center ON regions(center_lat, center_lon);
	`)
	if err != nil {
		return 0, fmt.Errorf("creating table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO regions (
			code, name,
			bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon,
			center_lat, center_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for shape.Next() {
		n, p := shape.Shape()

		polygon, ok := p.(*shp.Polygon)
		if !ok {
			continue
		}
		bbox := polygon.BBox()

		name := strings.TrimSpace(shape.ReadAttribute(n, nameIdx))
		if name == "" {
			continue
		}
		code := strconv.Itoa(n)
		if codeIdx >= 0 {
			if c := strings.TrimSpace(shape.ReadAttribute(n, codeIdx)); c != "" {
				code = c
			}
		}

		// centre from attributes when present, otherwise the bbox midpoint
		centerLat := (bbox.MinY + bbox.MaxY) / 2
		centerLon := (bbox.MinX + bbox.MaxX) / 2
		if latIdx >= 0 && lonIdx >= 0 {
			lat, errLat := strconv.ParseFloat(strings.TrimSpace(shape.ReadAttribute(n, latIdx)), 64)
			lon, errLon := strconv.ParseFloat(strings.TrimSpace(shape.ReadAttribute(n, lonIdx)), 64)
			if errLat == nil && errLon == nil {
				centerLat, centerLon = lat, lon
			}
		}

		if _, err := stmt.Exec(code, name,
			bbox.MinY, bbox.MaxY, bbox.MinX, bbox.MaxX,
			centerLat, centerLon); err != nil {
			logger.WithError(err).WithField("region", code).Warn("Error inserting region")
			continue
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func fieldIndex(fields []shp.Field) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[strings.ToUpper(f.String())] = i
	}
	return idx
}

func firstField(idx map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i
		}
	}
	return -1
}
