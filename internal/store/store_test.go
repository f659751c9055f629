package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := New(
		filepath.Join(dir, "live_telem.csv"),
		filepath.Join(dir, "waypoints.csv"),
		filepath.Join(dir, "connection_status.txt"),
	)
	return s, dir
}

func writeTelemetry(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "live_telem.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const telemetryHeader = "timestamp,BATT,CUR,LVL,GPS_FIX,GPS_SATS,LAT,LON,ALT,MODE,sensor_data"

func TestReadTelemetry_MissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ReadTelemetry()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadTelemetry_WithHeader(t *testing.T) {
	s, dir := newTestStore(t)
	writeTelemetry(t, dir, telemetryHeader+"\n"+
		"2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO\n")

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Latitude != 41.55 || r.Longitude != -71.4 {
		t.Errorf("expected coordinates (41.55, -71.4), got (%v, %v)", r.Latitude, r.Longitude)
	}
	if r.Battery != "98" || r.Mode != "AUTO" || r.Altitude != "5" {
		t.Errorf("unexpected pass-through fields: %+v", r)
	}
}

func TestReadTelemetry_NoHeaderFallsBackToPositional(t *testing.T) {
	s, dir := newTestStore(t)
	writeTelemetry(t, dir, "2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO\n")

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the headerless first line parsed as data, got %d records", len(records))
	}
	if records[0].Timestamp != "2024-01-01T00:00:00" {
		t.Errorf("unexpected timestamp %q", records[0].Timestamp)
	}
}

func TestReadTelemetry_DropsBadCoordinates(t *testing.T) {
	s, dir := newTestStore(t)
	writeTelemetry(t, dir, telemetryHeader+"\n"+
		"2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO\n"+
		"2024-01-01T00:00:01,98,1.2,3,1,9,garbage,-71.4,5,AUTO\n"+
		"2024-01-01T00:00:02,98,1.2,3,1,9,NaN,-71.4,5,AUTO\n"+
		"2024-01-01T00:00:03,98,1.2,3,1,9,41.56,-71.41,5,AUTO\n")

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(records))
	}
	if records[1].Latitude != 41.56 {
		t.Errorf("row order changed: got %v", records[1].Latitude)
	}
}

func TestReadTelemetry_DropsTornTrailingLine(t *testing.T) {
	s, dir := newTestStore(t)
	// A concurrent appender can leave a partial last line.
	writeTelemetry(t, dir, telemetryHeader+"\n"+
		"2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO\n"+
		"2024-01-01T00:00:01,97,1.",
	)

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("torn line should be dropped, got %d records", len(records))
	}
}

func TestReadTelemetry_SensorDataKeepsEmbeddedCommas(t *testing.T) {
	s, dir := newTestStore(t)
	writeTelemetry(t, dir, telemetryHeader+"\n"+
		"2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO,temp=20,hum=80\n")

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0].SensorData; got != "temp=20,hum=80" {
		t.Errorf("expected stitched sensor payload, got %q", got)
	}
}

// Re-serializing parsed rows in file column order must reproduce the
// original content exactly, given canonical float text and no
// header-detection ambiguity.
func TestReadTelemetry_RoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	content := telemetryHeader + "\n" +
		"2024-01-01T00:00:00,98,1.2,3,1,9,41.55,-71.4,5,AUTO,ok\n" +
		"2024-01-01T00:00:10,97,1.3,3,1,8,41.56,-71.41,6,MANUAL,ok\n"
	writeTelemetry(t, dir, content)

	records, err := s.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString(telemetryHeader + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			r.Timestamp, r.Battery, r.Current, r.Level, r.GPSFix, r.GPSSats,
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			r.Altitude, r.Mode, r.SensorData)
	}
	if b.String() != content {
		t.Errorf("round trip mismatch:\nwant %q\ngot  %q", content, b.String())
	}
}

func TestClearTelemetry(t *testing.T) {
	s, dir := newTestStore(t)

	if err := s.ClearTelemetry(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("clear on absent file: expected ErrNotFound, got %v", err)
	}

	writeTelemetry(t, dir, telemetryHeader+"\n1,2,3\n")
	if err := s.ClearTelemetry(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, "live_telem.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("expected zero-length file, got %d bytes", info.Size())
	}

	// Idempotent on a present file.
	if err := s.ClearTelemetry(); err != nil {
		t.Errorf("second clear should succeed, got %v", err)
	}
}

func TestWriteWaypoints_FiltersUnparseableRows(t *testing.T) {
	s, dir := newTestStore(t)

	accepted, err := s.WriteWaypoints([]Candidate{
		{Lat: "41.5", Lng: "-71.4"},
		{Lat: "bad", Lng: "-71.3"},
		{Lat: "41.6", Lng: "-71.2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted waypoints, got %d", len(accepted))
	}

	data, err := os.ReadFile(filepath.Join(dir, "waypoints.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Index,Latitude,Longitude\n1,41.5,-71.4\n2,41.6,-71.2\n"
	if string(data) != want {
		t.Errorf("file content:\nwant %q\ngot  %q", want, string(data))
	}
}

func TestWriteWaypoints_NonFiniteNeverWritten(t *testing.T) {
	s, dir := newTestStore(t)

	accepted, err := s.WriteWaypoints([]Candidate{
		{Lat: "NaN", Lng: "-71.4"},
		{Lat: "41.5", Lng: "+Inf"},
		{Lat: "41.5", Lng: "-71.4"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected only the finite pair, got %d", len(accepted))
	}

	data, err := os.ReadFile(filepath.Join(dir, "waypoints.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "nan") || strings.Contains(lower, "inf") {
		t.Errorf("non-finite value leaked into file: %q", string(data))
	}
}

func TestWriteWaypoints_HeaderRowDropped(t *testing.T) {
	s, _ := newTestStore(t)

	accepted, err := s.WriteWaypoints([]Candidate{
		{Lat: "Latitude", Lng: "Longitude"},
		{Lat: "41.5", Lng: "-71.4"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 1 || accepted[0].Index != 1 {
		t.Fatalf("header row should be dropped and numbering start at 1, got %+v", accepted)
	}
}

func TestWriteWaypoints_InvalidInputLeavesFileUntouched(t *testing.T) {
	s, dir := newTestStore(t)

	existing := "Index,Latitude,Longitude\n1,1,2\n"
	path := filepath.Join(dir, "waypoints.csv")
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := [][]Candidate{
		{},
		{{Lat: "latitude", Lng: "longitude"}},
		{{Lat: "x", Lng: "y"}},
	}
	for _, candidates := range cases {
		if _, err := s.WriteWaypoints(candidates); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("candidates %v: expected ErrInvalidInput, got %v", candidates, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("rejected submissions must not modify the file: got %q", string(data))
	}
}

func TestWriteWaypoints_FullReplace(t *testing.T) {
	s, dir := newTestStore(t)

	if _, err := s.WriteWaypoints([]Candidate{{Lat: "1", Lng: "2"}, {Lat: "3", Lng: "4"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteWaypoints([]Candidate{{Lat: "5", Lng: "6"}}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "waypoints.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Index,Latitude,Longitude\n1,5,6\n"
	if string(data) != want {
		t.Errorf("second write must replace, not append:\nwant %q\ngot  %q", want, string(data))
	}
}

func TestReadStatus(t *testing.T) {
	s, dir := newTestStore(t)

	if _, err := s.ReadStatus(); err == nil {
		t.Fatal("expected error for missing status file")
	}

	if err := os.WriteFile(filepath.Join(dir, "connection_status.txt"), []byte("connected\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, err := s.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status != "connected" {
		t.Errorf("expected trimmed status %q, got %q", "connected", status)
	}
}
