package models

import "time"

// Sensor types carried in device telemetry. The wire names double as the
// sensor_type column values.
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
	SensorLight       = "light"
	SensorRainfall    = "rainfall"
	SensorWindSpeed   = "wind_speed"
)

// SensorTypes lists every known sensor type in canonical order.
var SensorTypes = []string{
	SensorTemperature,
	SensorHumidity,
	SensorLight,
	SensorRainfall,
	SensorWindSpeed,
}

// SensorUnits maps each sensor type to the unit stored alongside its values.
var SensorUnits = map[string]string{
	SensorTemperature: "°C",
	SensorHumidity:    "%",
	SensorLight:       "nits",
	SensorRainfall:    "mm",
	SensorWindSpeed:   "km/h",
}

// Action results. A command produces a pending row at publish time and a
// separate terminal row (success or failed) when its outcome resolves; the
// pending row is never updated in place.
const (
	ResultPending = "pending"
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// SensorReading is one normalized per-sensor row. Immutable once written;
// only the retention job removes readings, and only by age.
type SensorReading struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceAction is one action-log row: a dispatched command, its feedback
// outcome, or a transport/timeout failure.
type DeviceAction struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Target    string    `json:"target"`
	Action    string    `json:"action"`
	IssuedBy  string    `json:"issued_by"`
	Result    string    `json:"result"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorRow is the grouped read model: one row per distinct capture timestamp
// with one nullable column per sensor type observed at that instant.
type SensorRow struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Light       *float64  `json:"light"`
	Rainfall    *float64  `json:"rainfall"`
	WindSpeed   *float64  `json:"wind_speed"`
}

// SensorPage is the paginated grouped sensor view. Total reflects the fully
// filtered set independent of the page window.
type SensorPage struct {
	Data  []SensorRow `json:"data"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Date  string      `json:"date"`
}

// ActionPage is the paginated flat action-log view.
type ActionPage struct {
	Data  []DeviceAction `json:"data"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Date  string         `json:"date"`
}

// DeviceSummary is the GET /devices/:id response.
type DeviceSummary struct {
	DeviceID     string     `json:"device_id"`
	TotalRecords int64      `json:"total_records"`
	LastSeen     *time.Time `json:"last_seen"`
}

// LatestValue is one entry of the latest-per-sensor-type view.
type LatestValue struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandRequest is the POST /devices/:id/cmd/:target payload.
type CommandRequest struct {
	Value    string `json:"value"`
	IssuedBy string `json:"issued_by"`
}

// DispatchReceipt acknowledges an accepted dispatch. Acceptance means the
// command was published, not that the device confirmed it.
type DispatchReceipt struct {
	OK        bool      `json:"ok"`
	Device    string    `json:"device"`
	Target    string    `json:"target"`
	Value     string    `json:"value"`
	IssuedBy  string    `json:"issued_by"`
	Timestamp time.Time `json:"timestamp"`
}
