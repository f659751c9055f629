package models

// TelemetryRecord is one row of the live telemetry log. Numeric-looking
// fields other than the coordinates are passed through as strings exactly
// as the onboard link delivered them.
type TelemetryRecord struct {
	Timestamp  string  `json:"timestamp"`
	Battery    string  `json:"BATT"`
	Current    string  `json:"CUR"`
	Level      string  `json:"LVL"`
	GPSFix     string  `json:"GPS_FIX"`
	GPSSats    string  `json:"GPS_SATS"`
	Latitude   float64 `json:"LAT"`
	Longitude  float64 `json:"LON"`
	Altitude   string  `json:"ALT"`
	Mode       string  `json:"MODE"`
	SensorData string  `json:"sensor_data,omitempty"`
}

// Waypoint is one planned coordinate in an ordered mission path. Index is
// assigned when the list is written, starting at 1.
type Waypoint struct {
	Index     int     `json:"index"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// CommandType is the fixed vocabulary understood by the onboard relay.
type CommandType string

const (
	CommandManual    CommandType = "MAN"
	CommandWaypoints CommandType = "WP"
	CommandMission   CommandType = "MSSN"
)

// Mission sub-actions carried as the MSSN payload.
const (
	MissionStart    = "START_MSSN"
	MissionStop     = "STOP_MSSN"
	MissionResume   = "RESUME_MSSN"
	MissionArm      = "ARM"
	MissionDisarm   = "DISARM"
	MissionRTL      = "START_RTL"
	MissionSail     = "SAIL"
	MissionMotor    = "MOTOR"
	ManualModeStart = "START_MAN"
	ManualModeStop  = "STOP_MAN"
)

// Movement tokens carried as the MAN payload during teleoperation.
const (
	MoveForward  = "FORWARD"
	MoveLeft     = "LEFT"
	MoveBackward = "BACKWARD"
	MoveRight    = "RIGHT"
	MoveStop     = "STOP"
)

// Command is the ephemeral (type, payload) pair handed to the relay client.
// Payload is empty for WP.
type Command struct {
	Type    CommandType `json:"type"`
	Payload string      `json:"payload,omitempty"`
}
