package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/search"
)

// Volatile-store bounds: when a slice grows past its cap it is trimmed to the
// keep size, dropping the oldest rows.
const (
	memReadingsCap  = 1000
	memReadingsKeep = 500
	memActionsCap   = 100
	memActionsKeep  = 50
)

// MemoryStore is the volatile fallback used when Postgres is unreachable at
// startup. It mirrors the query semantics of PostgresStore over bounded
// in-process slices; data is lost on restart.
type MemoryStore struct {
	mu            sync.Mutex
	nextReadingID int64
	nextActionID  int64
	readings      []models.SensorReading
	actions       []models.DeviceAction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close()                         {}

func (m *MemoryStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextReadingID++
	r.ID = m.nextReadingID
	m.readings = append(m.readings, r)
	if len(m.readings) > memReadingsCap {
		m.readings = append([]models.SensorReading(nil), m.readings[len(m.readings)-memReadingsKeep:]...)
	}
	return nil
}

func (m *MemoryStore) HasReadingAt(ctx context.Context, deviceID string, ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.readings {
		if r.DeviceID == deviceID && r.Timestamp.Equal(ts) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) InsertAction(ctx context.Context, a models.DeviceAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextActionID++
	a.ID = m.nextActionID
	m.actions = append(m.actions, a)
	if len(m.actions) > memActionsCap {
		m.actions = append([]models.DeviceAction(nil), m.actions[len(m.actions)-memActionsKeep:]...)
	}
	return nil
}

func (m *MemoryStore) DeviceSummary(ctx context.Context, deviceID string) (models.DeviceSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.DeviceSummary{DeviceID: deviceID}
	for _, r := range m.readings {
		if r.DeviceID != deviceID {
			continue
		}
		s.TotalRecords++
		if s.LastSeen == nil || r.Timestamp.After(*s.LastSeen) {
			ts := r.Timestamp
			s.LastSeen = &ts
		}
	}
	return s, nil
}

func (m *MemoryStore) LatestReadings(ctx context.Context, deviceID string) (map[string]models.LatestValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := map[string]models.LatestValue{}
	for _, r := range m.readings {
		if r.DeviceID != deviceID {
			continue
		}
		cur, ok := latest[r.SensorType]
		if !ok || r.Timestamp.After(cur.Timestamp) {
			latest[r.SensorType] = models.LatestValue{Value: r.Value, Unit: r.Unit, Timestamp: r.Timestamp}
		}
	}
	return latest, nil
}

func (m *MemoryStore) Series(ctx context.Context, deviceID string, since time.Time, sensor string, limit int) ([]models.SensorReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SensorReading
	for _, r := range m.readings {
		if r.DeviceID != deviceID || r.Timestamp.Before(since) {
			continue
		}
		if sensor != "" && sensor != "all" && r.SensorType != sensor {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.readings[:0]
	var purged int64
	for _, r := range m.readings {
		if r.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.readings = kept
	return purged, nil
}

// ListSensors mirrors the grouped-view semantics of the SQL path: group by
// timestamp, apply the search spec, count before paginating.
func (m *MemoryStore) ListSensors(ctx context.Context, lp ListParams) (models.SensorPage, error) {
	page := models.SensorPage{
		Data:  []models.SensorRow{},
		Page:  lp.Page,
		Limit: lp.Limit,
		Date:  lp.DateLabel(),
	}

	spec := search.Sensors(lp.Search, lp.Filter, lp.Date, time.Now())

	m.mu.Lock()
	rows := m.groupReadings(lp, spec.OverridesDate)
	m.mu.Unlock()

	var filtered []models.SensorRow
	for _, r := range rows {
		if sensorRowMatches(r, spec, lp.Filter) {
			filtered = append(filtered, r)
		}
	}

	page.Total = len(filtered)
	sortSensorRows(filtered, spec, lp)

	start := lp.Offset()
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + lp.Limit
	if lp.Limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}
	page.Data = append(page.Data, filtered[start:end]...)
	return page, nil
}

func (m *MemoryStore) ListActions(ctx context.Context, lp ListParams) (models.ActionPage, error) {
	page := models.ActionPage{
		Data:  []models.DeviceAction{},
		Page:  lp.Page,
		Limit: lp.Limit,
		Date:  lp.DateLabel(),
	}

	spec := search.Actions(lp.Search, lp.Date, time.Now())

	var dayFrom, dayTo time.Time
	scopeDate := lp.Date != "" && !spec.OverridesDate
	if scopeDate {
		var err error
		if dayFrom, dayTo, err = dayRange(lp.Date); err != nil {
			scopeDate = false
		}
	}

	m.mu.Lock()
	var filtered []models.DeviceAction
	for _, a := range m.actions {
		if a.DeviceID != lp.DeviceID {
			continue
		}
		if scopeDate && (a.Timestamp.Before(dayFrom) || !a.Timestamp.Before(dayTo)) {
			continue
		}
		if lp.Filter != "" && lp.Filter != search.FilterAll && a.Target != strings.ToLower(lp.Filter) {
			continue
		}
		if !actionMatches(a, spec) {
			continue
		}
		filtered = append(filtered, a)
	}
	m.mu.Unlock()

	page.Total = len(filtered)
	sortActions(filtered, lp)

	start := lp.Offset()
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + lp.Limit
	if lp.Limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}
	page.Data = append(page.Data, filtered[start:end]...)
	return page, nil
}

// groupReadings pivots per-sensor rows into one row per capture timestamp.
// Caller holds the lock.
func (m *MemoryStore) groupReadings(lp ListParams, skipDate bool) []models.SensorRow {
	var dayFrom, dayTo time.Time
	scopeDate := lp.Date != "" && !skipDate
	if scopeDate {
		var err error
		if dayFrom, dayTo, err = dayRange(lp.Date); err != nil {
			scopeDate = false
		}
	}

	byTS := map[int64]*models.SensorRow{}
	for _, r := range m.readings {
		if r.DeviceID != lp.DeviceID {
			continue
		}
		if scopeDate && (r.Timestamp.Before(dayFrom) || !r.Timestamp.Before(dayTo)) {
			continue
		}
		key := r.Timestamp.Unix()
		row, ok := byTS[key]
		if !ok {
			row = &models.SensorRow{ID: r.ID, Timestamp: r.Timestamp}
			byTS[key] = row
		}
		if r.ID < row.ID {
			row.ID = r.ID
		}
		v := r.Value
		switch r.SensorType {
		case models.SensorTemperature:
			row.Temperature = &v
		case models.SensorHumidity:
			row.Humidity = &v
		case models.SensorLight:
			row.Light = &v
		case models.SensorRainfall:
			row.Rainfall = &v
		case models.SensorWindSpeed:
			row.WindSpeed = &v
		}
	}

	rows := make([]models.SensorRow, 0, len(byTS))
	for _, r := range byTS {
		rows = append(rows, *r)
	}
	return rows
}

func sensorField(r models.SensorRow, field string) *float64 {
	switch field {
	case models.SensorTemperature:
		return r.Temperature
	case models.SensorHumidity:
		return r.Humidity
	case models.SensorLight:
		return r.Light
	case models.SensorRainfall:
		return r.Rainfall
	case models.SensorWindSpeed:
		return r.WindSpeed
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sensorRowMatches(r models.SensorRow, spec search.Spec, filter string) bool {
	switch spec.Kind {
	case search.TimeRange:
		return !r.Timestamp.Before(spec.From) && r.Timestamp.Before(spec.To)
	case search.Bucket:
		for _, f := range spec.Fields {
			if v := sensorField(r, f); v != nil && *v >= spec.Low && *v < spec.High {
				return true
			}
		}
		return false
	case search.Substring:
		for _, f := range spec.Fields {
			if v := sensorField(r, f); v != nil && strings.Contains(formatValue(*v), spec.Text) {
				return true
			}
		}
		return false
	}
	// No search condition: the dropdown filter alone constrains rows.
	if f := search.FilterField(filter); f != "" {
		return sensorField(r, f) != nil
	}
	return true
}

func actionMatches(a models.DeviceAction, spec search.Spec) bool {
	switch spec.Kind {
	case search.TimeRange:
		return !a.Timestamp.Before(spec.From) && a.Timestamp.Before(spec.To)
	case search.Substring:
		needle := strings.ToLower(spec.Text)
		return strings.Contains(strings.ToLower(a.Target), needle) ||
			strings.Contains(strings.ToLower(a.Action), needle)
	}
	return true
}

// bucketRank mirrors the ranked ordering of the two-digit search: rows
// matching on temperature sort ahead of rows matching only on humidity.
func bucketRank(r models.SensorRow, spec search.Spec) int {
	if v := r.Temperature; v != nil && *v >= spec.Low && *v < spec.High {
		return 1
	}
	if v := r.Humidity; v != nil && *v >= spec.Low && *v < spec.High {
		return 2
	}
	return 3
}

// comparePtr orders like Postgres: NULLS LAST ascending, NULLS FIRST descending.
func comparePtr(a, b *float64, asc bool) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		if asc {
			return 1
		}
		return -1
	}
	if b == nil {
		if asc {
			return -1
		}
		return 1
	}
	switch {
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func sortSensorRows(rows []models.SensorRow, spec search.Spec, lp ListParams) {
	if spec.Kind == search.Bucket {
		if spec.Ranked {
			sort.SliceStable(rows, func(i, j int) bool {
				ri, rj := bucketRank(rows[i], spec), bucketRank(rows[j], spec)
				if ri != rj {
					return ri < rj
				}
				if c := comparePtr(rows[i].Temperature, rows[j].Temperature, true); c != 0 {
					return c < 0
				}
				return comparePtr(rows[i].Humidity, rows[j].Humidity, true) < 0
			})
			return
		}
		field := spec.Fields[0]
		sort.SliceStable(rows, func(i, j int) bool {
			return comparePtr(sensorField(rows[i], field), sensorField(rows[j], field), true) < 0
		})
		return
	}

	col, dir := safeOrder(lp.OrderBy, lp.OrderDir, sensorSortColumns)
	asc := dir == "ASC"
	sort.SliceStable(rows, func(i, j int) bool {
		var less bool
		switch col {
		case "id":
			less = rows[i].ID < rows[j].ID
			if !asc {
				less = rows[j].ID < rows[i].ID
			}
			return less
		case "timestamp":
			less = rows[i].Timestamp.Before(rows[j].Timestamp)
			if !asc {
				less = rows[j].Timestamp.Before(rows[i].Timestamp)
			}
			return less
		}
		vi, vj := sensorField(rows[i], col), sensorField(rows[j], col)
		if vi == nil || vj == nil {
			if vi == nil && vj == nil {
				return false
			}
			// NULLS LAST ascending, NULLS FIRST descending, as Postgres sorts.
			if asc {
				return vj == nil
			}
			return vi == nil
		}
		if asc {
			return *vi < *vj
		}
		return *vi > *vj
	})
}

func sortActions(actions []models.DeviceAction, lp ListParams) {
	col, dir := safeOrder(lp.OrderBy, lp.OrderDir, actionSortColumns)
	asc := dir == "ASC"
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if !asc {
			a, b = b, a
		}
		switch col {
		case "id":
			return a.ID < b.ID
		case "target":
			return a.Target < b.Target
		case "action":
			return a.Action < b.Action
		case "issued_by":
			return a.IssuedBy < b.IssuedBy
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}
