package zonelookup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ngmaloney/vessel-forecast/internal/geo"
	_ "modernc.org/sqlite"
)

// DefaultMaxMiles is how far from a zone center a position may be and still
// be attributed to it when no zone polygon contains it
const DefaultMaxMiles = 25.0

// ErrNoZone is returned when no marine zone covers a position
var ErrNoZone = errors.New("no marine zone at position")

// ZoneInfo holds a marine zone and its distance from a query point
type ZoneInfo struct {
	Code     string
	Name     string
	Distance float64 // miles
}

// Resolver names the NOAA marine zone a position lies in
type Resolver struct {
	db       *sql.DB
	maxMiles float64
	logger   *slog.Logger
}

// Open provisions the zone table at dbPath when missing and returns a Resolver over it
func Open(ctx context.Context, dbPath, shapefileURL string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "zonelookup")

	if err := ProvisionDatabase(ctx, dbPath, shapefileURL, logger); err != nil {
		return nil, fmt.Errorf("provisioning marine zones: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening marine zones database: %w", err)
	}

	return NewResolver(db, DefaultMaxMiles, logger), nil
}

// NewResolver wraps a database holding a marine_zones table
func NewResolver(db *sql.DB, maxMiles float64, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if maxMiles <= 0 {
		maxMiles = DefaultMaxMiles
	}
	return &Resolver{db: db, maxMiles: maxMiles, logger: logger}
}

// Close closes the underlying database
func (r *Resolver) Close() error {
	return r.db.Close()
}

// ZoneAt returns the code of the zone whose polygon contains the position,
// or else of the nearest zone center within the resolver's range
func (r *Resolver) ZoneAt(ctx context.Context, lat, lon float64) (string, error) {
	code, err := containingZone(ctx, r.db, lat, lon)
	if err != nil {
		return "", err
	}
	if code != "" {
		return code, nil
	}

	zones, err := nearbyZones(ctx, r.db, lat, lon, r.maxMiles)
	if err != nil {
		return "", err
	}
	if len(zones) == 0 {
		return "", ErrNoZone
	}
	r.logger.Debug("zone by nearest center", "zone", zones[0].Code, "miles", zones[0].Distance)
	return zones[0].Code, nil
}

// NearbyZones returns the zones whose centers lie within maxMiles, nearest first
func (r *Resolver) NearbyZones(ctx context.Context, lat, lon, maxMiles float64) ([]ZoneInfo, error) {
	return nearbyZones(ctx, r.db, lat, lon, maxMiles)
}

// ZoneInfoByCode looks up a single zone
func (r *Resolver) ZoneInfoByCode(ctx context.Context, code string) (*ZoneInfo, error) {
	return zoneInfoByCode(ctx, r.db, code)
}

func containingZone(ctx context.Context, db *sql.DB, lat, lon float64) (string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT zone_code, geometry
		FROM marine_zones
		WHERE bbox_min_lat <= ? AND bbox_max_lat >= ?
		  AND bbox_min_lon <= ? AND bbox_max_lon >= ?
		ORDER BY (bbox_max_lat - bbox_min_lat) * (bbox_max_lon - bbox_min_lon)
	`, lat, lat, lon, lon)
	if err != nil {
		return "", fmt.Errorf("querying zone polygons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, geometry string
		if err := rows.Scan(&code, &geometry); err != nil {
			return "", fmt.Errorf("scanning zone polygon: %w", err)
		}
		var ring [][]float64
		if err := json.Unmarshal([]byte(geometry), &ring); err != nil {
			continue
		}
		if pointInRing(lon, lat, ring) {
			return code, nil
		}
	}
	return "", rows.Err()
}

// pointInRing is an even-odd ray cast; ring points are [x, y] = [lon, lat]
func pointInRing(x, y float64, ring [][]float64) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			continue
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func nearbyZones(ctx context.Context, db *sql.DB, lat, lon, maxMiles float64) ([]ZoneInfo, error) {
	// Rough bounding box first; one degree of latitude is about 69 miles
	latDelta := maxMiles / 69.0
	lonDelta := maxMiles / 50.0

	rows, err := db.QueryContext(ctx, `
		SELECT zone_code, zone_name, center_lat, center_lon
		FROM marine_zones
		WHERE center_lat BETWEEN ? AND ?
		  AND center_lon BETWEEN ? AND ?
	`, lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta)
	if err != nil {
		return nil, fmt.Errorf("querying marine zones: %w", err)
	}
	defer rows.Close()

	var zones []ZoneInfo
	for rows.Next() {
		var (
			code, name       string
			zoneLat, zoneLon float64
		)
		if err := rows.Scan(&code, &name, &zoneLat, &zoneLon); err != nil {
			continue
		}

		dist := geo.HaversineMiles(lat, lon, zoneLat, zoneLon)
		if dist <= maxMiles {
			zones = append(zones, ZoneInfo{Code: code, Name: name, Distance: dist})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating marine zones: %w", err)
	}

	sort.Slice(zones, func(i, j int) bool {
		return zones[i].Distance < zones[j].Distance
	})

	return zones, nil
}

func zoneInfoByCode(ctx context.Context, db *sql.DB, code string) (*ZoneInfo, error) {
	var zone ZoneInfo
	err := db.QueryRowContext(ctx, `
		SELECT zone_code, zone_name
		FROM marine_zones
		WHERE zone_code = ?
		LIMIT 1
	`, code).Scan(&zone.Code, &zone.Name)
	if err != nil {
		return nil, fmt.Errorf("zone %s not found: %w", code, err)
	}
	return &zone, nil
}
