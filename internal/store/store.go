package store

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vessel-gcs/internal/models"
)

// Sentinel errors mapped to HTTP statuses at the API boundary.
var (
	ErrNotFound     = errors.New("file not found")
	ErrParse        = errors.New("malformed csv content")
	ErrInvalidInput = errors.New("no valid waypoints")
)

// telemetryColumns is the fixed positional schema of the telemetry log,
// assumed implicitly when the file carries no header row.
var telemetryColumns = []string{
	"timestamp", "BATT", "CUR", "LVL", "GPS_FIX", "GPS_SATS",
	"LAT", "LON", "ALT", "MODE", "sensor_data",
}

// WaypointHeader is the header row every waypoint file is written with.
const WaypointHeader = "Index,Latitude,Longitude"

// Candidate is a client-submitted waypoint before validation. Both fields
// arrive as strings; anything that does not parse to a finite float is
// dropped during the write.
type Candidate struct {
	Lat string
	Lng string
}

// Store persists the telemetry log and the waypoint list as flat CSV files
// and polls the connection-status file. There is no locking: the intended
// deployment has a single operator, and concurrent writers race with
// last-writer-wins semantics.
type Store struct {
	telemetryPath string
	waypointsPath string
	statusPath    string
}

// New creates a store over the three configured file paths.
func New(telemetryPath, waypointsPath, statusPath string) *Store {
	return &Store{
		telemetryPath: telemetryPath,
		waypointsPath: waypointsPath,
		statusPath:    statusPath,
	}
}

// ReadTelemetry parses the telemetry log. Rows are parsed best-effort and
// deterministically: a line with fewer than ten fields, or whose LAT/LON
// fields do not parse to finite floats, is skipped. This also covers a
// torn trailing line from a concurrent appender. A leading header row is
// detected by its first field equaling "timestamp" case-insensitively;
// without one the fixed positional schema applies from the first line.
func (s *Store) ReadTelemetry() ([]models.TelemetryRecord, error) {
	f, err := os.Open(s.telemetryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.telemetryPath)
		}
		return nil, err
	}
	defer f.Close()

	records := []models.TelemetryRecord{}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			fields := splitTrim(line)
			if len(fields) > 0 && strings.EqualFold(fields[0], "timestamp") {
				continue
			}
		}
		if line == "" {
			continue
		}
		rec, ok := parseTelemetryLine(line)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return records, nil
}

func parseTelemetryLine(line string) (models.TelemetryRecord, bool) {
	fields := splitTrim(line)
	if len(fields) < len(telemetryColumns)-1 {
		return models.TelemetryRecord{}, false
	}
	lat, err := parseFinite(fields[6])
	if err != nil {
		return models.TelemetryRecord{}, false
	}
	lon, err := parseFinite(fields[7])
	if err != nil {
		return models.TelemetryRecord{}, false
	}
	rec := models.TelemetryRecord{
		Timestamp: fields[0],
		Battery:   fields[1],
		Current:   fields[2],
		Level:     fields[3],
		GPSFix:    fields[4],
		GPSSats:   fields[5],
		Latitude:  lat,
		Longitude: lon,
		Altitude:  fields[8],
		Mode:      fields[9],
	}
	if len(fields) > 10 {
		// The format has no quoting, so a sensor payload containing commas
		// arrives pre-split; stitch it back together.
		rec.SensorData = strings.Join(fields[10:], ",")
	}
	return rec, true
}

// ClearTelemetry truncates the telemetry log to zero length. Idempotent on
// a present file; ErrNotFound if the file is absent.
func (s *Store) ClearTelemetry() error {
	return clearFile(s.telemetryPath)
}

// ClearWaypoints truncates the waypoint file to zero length.
func (s *Store) ClearWaypoints() error {
	return clearFile(s.waypointsPath)
}

func clearFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	return os.Truncate(path, 0)
}

// RawTelemetry returns the telemetry log bytes for download.
func (s *Store) RawTelemetry() ([]byte, error) {
	return rawFile(s.telemetryPath)
}

// RawWaypoints returns the waypoint file bytes for download.
func (s *Store) RawWaypoints() ([]byte, error) {
	return rawFile(s.waypointsPath)
}

func rawFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

// WriteWaypoints validates the submitted candidates and replaces the
// waypoint file with a freshly numbered CSV. A leading header-looking
// candidate is dropped, pairs that do not parse to finite floats are
// excluded without reordering the rest, and if nothing survives the filter
// the write fails with ErrInvalidInput and the existing file is untouched.
// The replacement goes through a temp file and rename so a concurrent
// reader never observes a half-written list.
func (s *Store) WriteWaypoints(candidates []Candidate) ([]models.Waypoint, error) {
	if len(candidates) > 0 && looksLikeHeader(candidates[0]) {
		candidates = candidates[1:]
	}

	var accepted []models.Waypoint
	for _, c := range candidates {
		lat, err := parseFinite(c.Lat)
		if err != nil {
			continue
		}
		lng, err := parseFinite(c.Lng)
		if err != nil {
			continue
		}
		accepted = append(accepted, models.Waypoint{
			Index:     len(accepted) + 1,
			Latitude:  lat,
			Longitude: lng,
		})
	}
	if len(accepted) == 0 {
		return nil, ErrInvalidInput
	}

	var b strings.Builder
	b.WriteString(WaypointHeader + "\n")
	for _, wp := range accepted {
		fmt.Fprintf(&b, "%d,%s,%s\n",
			wp.Index,
			strconv.FormatFloat(wp.Latitude, 'f', -1, 64),
			strconv.FormatFloat(wp.Longitude, 'f', -1, 64))
	}

	if err := replaceFile(s.waypointsPath, []byte(b.String())); err != nil {
		return nil, err
	}
	return accepted, nil
}

// looksLikeHeader reports whether a candidate pair reads as column labels
// rather than coordinates. The match is a deliberate substring heuristic
// ("lat" / "lon" in their word forms); real coordinate values never match
// but a sensor label containing "lat" would.
func looksLikeHeader(c Candidate) bool {
	lat := strings.ToLower(c.Lat)
	lng := strings.ToLower(c.Lng)
	return strings.Contains(lat, "lat") || strings.Contains(lng, "lon")
}

// WaypointsPath returns the waypoint file location, reported back to the
// client after an upload.
func (s *Store) WaypointsPath() string {
	return s.waypointsPath
}

// ReadStatus returns the trimmed contents of the connection-status file.
// The value is an open vocabulary; only "connected" is treated specially
// downstream. There is no staleness check: a status written hours ago
// reads as current.
func (s *Store) ReadStatus() (string, error) {
	data, err := os.ReadFile(s.statusPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func splitTrim(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
