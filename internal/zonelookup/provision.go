package zonelookup

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	_ "modernc.org/sqlite"
)

// ProvisionDatabase checks if the marine_zones table exists and builds it from
// the NOAA shapefile archive at shapefileURL if not
func ProvisionDatabase(ctx context.Context, dbPath, shapefileURL string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	exists, err := hasZoneTable(ctx, dbPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logger.Info("marine zones table not found, provisioning", "url", shapefileURL)

	base, err := shapefileBase(shapefileURL)
	if err != nil {
		return err
	}

	zipPath := filepath.Join(dataDir, base+".zip")
	if err := downloadFile(ctx, zipPath, shapefileURL); err != nil {
		return fmt.Errorf("downloading shapefile: %w", err)
	}
	defer os.Remove(zipPath)

	if err := unzipFile(zipPath, dataDir); err != nil {
		return fmt.Errorf("extracting shapefile: %w", err)
	}
	defer cleanupShapefiles(dataDir, base)

	count, err := buildDatabase(ctx, filepath.Join(dataDir, base+".shp"), dbPath, logger)
	if err != nil {
		return fmt.Errorf("building database: %w", err)
	}

	logger.Info("provisioned marine zones", "zones", count, "db", dbPath)
	return nil
}

func hasZoneTable(ctx context.Context, dbPath string) (bool, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return false, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='marine_zones'").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for marine_zones table: %w", err)
	}
	return count > 0, nil
}

// shapefileBase derives the shapefile name from the archive URL, e.g. mz18mr25
func shapefileBase(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing shapefile url: %w", err)
	}
	base := strings.TrimSuffix(path.Base(u.Path), ".zip")
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("shapefile url %q has no file name", rawURL)
	}
	return base, nil
}

// downloadFile downloads a file from a URL to a local path
func downloadFile(ctx context.Context, dest, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// unzipFile extracts a zip file to a destination directory
func unzipFile(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)

		// ZipSlip
		rel, err := filepath.Rel(dest, fpath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}
	return nil
}

// zoneSchema is the marine_zones table; geometry is the JSON [[lon, lat], ...]
// ring of the zone's largest polygon part
const zoneSchema = `
	CREATE TABLE IF NOT EXISTS marine_zones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_code TEXT NOT NULL,
		zone_name TEXT,
		geometry TEXT NOT NULL,
		bbox_min_lat REAL NOT NULL,
		bbox_max_lat REAL NOT NULL,
		bbox_min_lon REAL NOT NULL,
		bbox_max_lon REAL NOT NULL,
		center_lat REAL NOT NULL,
		center_lon REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_zones_bbox ON marine_zones(
		bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon
	);
	CREATE INDEX IF NOT EXISTS idx_zones_code ON marine_zones(zone_code);
	CREATE INDEX IF NOT EXISTS idx_zones_center ON marine_zones(center_lat, center_lon);
`

// zoneRow is one marine zone ready for insertion
type zoneRow struct {
	Code      string
	Name      string
	Ring      [][]float64
	BBox      shp.Box
	CenterLat float64
	CenterLon float64
}

// buildDatabase creates the marine_zones table in the SQLite database from the shapefile
func buildDatabase(ctx context.Context, shapefilePath, dbPath string, logger *slog.Logger) (int, error) {
	shape, err := shp.Open(shapefilePath)
	if err != nil {
		return 0, fmt.Errorf("opening shapefile: %w", err)
	}
	defer shape.Close()

	// The database may already hold the state tables, so it is not recreated
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var rows []zoneRow
	for shape.Next() {
		n, p := shape.Shape()

		polygon, ok := p.(*shp.Polygon)
		if !ok {
			continue
		}

		// DBF fields: 0 ID (zone code), 3 NAME, 4 LON, 5 LAT
		var centerLon, centerLat float64
		fmt.Sscanf(shape.ReadAttribute(n, 4), "%f", &centerLon)
		fmt.Sscanf(shape.ReadAttribute(n, 5), "%f", &centerLat)

		rows = append(rows, zoneRow{
			Code:      strings.TrimSpace(shape.ReadAttribute(n, 0)),
			Name:      strings.TrimSpace(shape.ReadAttribute(n, 3)),
			Ring:      largestPart(polygon),
			BBox:      polygon.BBox(),
			CenterLat: centerLat,
			CenterLon: centerLon,
		})
	}

	return insertZones(ctx, db, rows, logger)
}

// largestPart returns the points of the polygon part with the most vertices,
// which for NOAA zones is the outer boundary
func largestPart(polygon *shp.Polygon) [][]float64 {
	if len(polygon.Parts) == 0 {
		return nil
	}

	bounds := func(idx int) (int, int) {
		start := int(polygon.Parts[idx])
		end := len(polygon.Points)
		if idx+1 < len(polygon.Parts) {
			end = int(polygon.Parts[idx+1])
		}
		return start, end
	}

	largest, largestSize := 0, 0
	for idx := range polygon.Parts {
		start, end := bounds(idx)
		if end-start > largestSize {
			largest, largestSize = idx, end-start
		}
	}

	start, end := bounds(largest)
	coords := make([][]float64, 0, end-start)
	for _, point := range polygon.Points[start:end] {
		coords = append(coords, []float64{point.X, point.Y})
	}
	return coords
}

// insertZones creates the table and writes rows in one transaction
func insertZones(ctx context.Context, db *sql.DB, rows []zoneRow, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, zoneSchema); err != nil {
		return 0, fmt.Errorf("creating table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marine_zones (
			zone_code, zone_name, geometry,
			bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon,
			center_lat, center_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, row := range rows {
		geometryJSON, err := json.Marshal(row.Ring)
		if err != nil {
			logger.Warn("skipping zone geometry", "zone", row.Code, "err", err)
			continue
		}

		_, err = stmt.ExecContext(ctx, row.Code, row.Name, string(geometryJSON),
			row.BBox.MinY, row.BBox.MaxY, row.BBox.MinX, row.BBox.MaxX,
			row.CenterLat, row.CenterLon)
		if err != nil {
			logger.Warn("skipping zone", "zone", row.Code, "err", err)
			continue
		}

		count++
		if count%100 == 0 {
			logger.Debug("processed zones", "count", count)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing zones: %w", err)
	}
	return count, nil
}

// cleanupShapefiles removes the extracted shapefile components
func cleanupShapefiles(dir, base string) {
	// Shapefile consists of multiple files with different extensions
	extensions := []string{".shp", ".shx", ".dbf", ".prj", ".cpg", ".shp.xml"}
	for _, ext := range extensions {
		os.Remove(filepath.Join(dir, base+ext))
	}
}
