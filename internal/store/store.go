// Package store is the persistence layer. A Store is selected exactly once at
// startup: Postgres when reachable, otherwise the bounded in-memory fallback.
// Every other component depends only on the interface.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nqhuy/iot-device-service/internal/models"
)

// Store is the durable surface shared by ingestion, correlation, the query
// engine and the retention job.
type Store interface {
	// InsertReading appends one per-sensor row.
	InsertReading(ctx context.Context, r models.SensorReading) error
	// HasReadingAt reports whether any reading exists for the device at the
	// exact capture timestamp. This is the ingest dedup probe.
	HasReadingAt(ctx context.Context, deviceID string, ts time.Time) (bool, error)
	// InsertAction appends one action-log row.
	InsertAction(ctx context.Context, a models.DeviceAction) error

	// DeviceSummary returns record count and last-seen for a device.
	DeviceSummary(ctx context.Context, deviceID string) (models.DeviceSummary, error)
	// LatestReadings returns the newest value per sensor type.
	LatestReadings(ctx context.Context, deviceID string) (map[string]models.LatestValue, error)
	// Series returns raw readings since the cutoff, ascending by time.
	Series(ctx context.Context, deviceID string, since time.Time, sensor string, limit int) ([]models.SensorReading, error)
	// ListSensors builds the grouped, filtered, paginated sensor view.
	ListSensors(ctx context.Context, p ListParams) (models.SensorPage, error)
	// ListActions builds the flat, filtered, paginated action-log view.
	ListActions(ctx context.Context, p ListParams) (models.ActionPage, error)

	// PurgeReadingsBefore deletes readings older than the cutoff and returns
	// how many rows went away.
	PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close()
}

// ListParams carries the query-string surface of the list endpoints.
type ListParams struct {
	DeviceID string
	Page     int
	Limit    int
	Search   string
	Filter   string
	OrderBy  string
	OrderDir string
	Date     string // "2006-01-02", empty for no date scoping
}

// Offset is the row offset implied by Page/Limit.
func (p ListParams) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.Limit
}

// DateLabel is echoed back in list responses.
func (p ListParams) DateLabel() string {
	if p.Date == "" {
		return "all"
	}
	return p.Date
}

// Sortable columns per view. Anything outside the allow-list degrades to
// timestamp DESC rather than erroring.
var (
	sensorSortColumns = map[string]bool{
		"id": true, "timestamp": true,
		"temperature": true, "humidity": true, "light": true,
		"rainfall": true, "wind_speed": true,
	}
	actionSortColumns = map[string]bool{
		"id": true, "timestamp": true,
		"target": true, "action": true, "issued_by": true,
	}
)

func safeOrder(orderBy, orderDir string, allowed map[string]bool) (string, string) {
	if !allowed[orderBy] {
		orderBy = "timestamp"
	}
	dir := strings.ToUpper(orderDir)
	if dir != "ASC" && dir != "DESC" {
		dir = "DESC"
	}
	return orderBy, dir
}

var windowRe = regexp.MustCompile(`^(\d+)(minute|hour|day)s?$`)

// SeriesCutoff resolves a series `from` token to an absolute lower bound.
// "today" means local midnight; "<N><unit>" means now minus that span.
// Unparseable tokens fall back to one hour.
func SeriesCutoff(from string, now time.Time) time.Time {
	if from == "today" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
	m := windowRe.FindStringSubmatch(from)
	if m == nil {
		return now.Add(-time.Hour)
	}
	n, _ := strconv.Atoi(m[1])
	var unit time.Duration
	switch m[2] {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}
	return now.Add(-time.Duration(n) * unit)
}

// dayRange is the half-open [midnight, midnight+24h) window of a date param.
func dayRange(date string) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad date %q: %w", date, err)
	}
	return d, d.AddDate(0, 0, 1), nil
}
