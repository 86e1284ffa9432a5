// Package ingest consumes inbound telemetry and writes normalized per-sensor
// rows. Ingestion errors are log-only: no caller waits on the MQTT path.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

var (
	// ErrMalformedPayload marks telemetry that failed to parse; the payload
	// is dropped with no persistence attempt and no retry.
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	// ErrDuplicateReading marks a payload whose capture timestamp already has
	// readings for the device; the whole payload is dropped, not merged.
	ErrDuplicateReading = errors.New("duplicate telemetry timestamp")
)

// telemetryPayload is the flat field mapping devices publish. Absent or null
// fields are simply not persisted.
type telemetryPayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
	Rainfall    *float64 `json:"rainfall"`
	WindSpeed   *float64 `json:"wind_speed"`
}

type payloadField struct {
	sensorType string
	value      *float64
}

func (p telemetryPayload) fields() []payloadField {
	return []payloadField{
		{models.SensorTemperature, p.Temperature},
		{models.SensorHumidity, p.Humidity},
		{models.SensorLight, p.Light},
		{models.SensorRainfall, p.Rainfall},
		{models.SensorWindSpeed, p.WindSpeed},
	}
}

// Ingestor writes telemetry through the selected store.
type Ingestor struct {
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Ingestor {
	return &Ingestor{store: st, now: time.Now}
}

// Ingest parses one telemetry payload and persists each present field as its
// own reading. The capture timestamp is the arrival time truncated to whole
// seconds, which is also the dedup granularity: if any reading already exists
// for (device, timestamp) the entire payload is dropped.
//
// Field inserts are independent: one failing insert is logged and does not
// abort the rest, so partial persistence of a payload is possible on storage
// errors.
func (in *Ingestor) Ingest(ctx context.Context, deviceID string, raw []byte) error {
	var p telemetryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ts := in.now().Truncate(time.Second)

	dup, err := in.store.HasReadingAt(ctx, deviceID, ts)
	if err != nil {
		return fmt.Errorf("dedup probe for %s: %w", deviceID, err)
	}
	if dup {
		return fmt.Errorf("%w: %s at %s", ErrDuplicateReading, deviceID, ts.Format(time.RFC3339))
	}

	for _, f := range p.fields() {
		if f.value == nil {
			continue
		}
		r := models.SensorReading{
			DeviceID:   deviceID,
			SensorType: f.sensorType,
			Value:      *f.value,
			Unit:       models.SensorUnits[f.sensorType],
			Timestamp:  ts,
		}
		if err := in.store.InsertReading(ctx, r); err != nil {
			log.Printf("ingest: insert %s/%s failed: %v", deviceID, f.sensorType, err)
		}
	}
	return nil
}
