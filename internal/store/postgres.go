package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/search"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if the database is
// unreachable; the caller falls back to the in-memory store on error.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping validates database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO data_sensor(device_id, sensor_type, value, unit, timestamp)
		VALUES ($1,$2,$3,$4,$5)
	`, r.DeviceID, r.SensorType, r.Value, r.Unit, r.Timestamp)
	return err
}

func (p *PostgresStore) HasReadingAt(ctx context.Context, deviceID string, ts time.Time) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM data_sensor WHERE device_id=$1 AND timestamp=$2
		)
	`, deviceID, ts).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) InsertAction(ctx context.Context, a models.DeviceAction) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO device_actions(device_id, target, action, issued_by, result, note, timestamp)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
	`, a.DeviceID, a.Target, a.Action, a.IssuedBy, a.Result, a.Note, a.Timestamp)
	return err
}

func (p *PostgresStore) DeviceSummary(ctx context.Context, deviceID string) (models.DeviceSummary, error) {
	s := models.DeviceSummary{DeviceID: deviceID}

	var lastSeen time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(timestamp)
		FROM data_sensor
		WHERE device_id=$1
		HAVING COUNT(*) > 0
	`, deviceID).Scan(&s.TotalRecords, &lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	s.LastSeen = &lastSeen
	return s, nil
}

func (p *PostgresStore) LatestReadings(ctx context.Context, deviceID string) (map[string]models.LatestValue, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT ON (sensor_type) sensor_type, value, unit, timestamp
		FROM data_sensor
		WHERE device_id=$1
		ORDER BY sensor_type, timestamp DESC
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := map[string]models.LatestValue{}
	for rows.Next() {
		var sensorType string
		var v models.LatestValue
		if err := rows.Scan(&sensorType, &v.Value, &v.Unit, &v.Timestamp); err != nil {
			return nil, err
		}
		latest[sensorType] = v
	}
	return latest, rows.Err()
}

func (p *PostgresStore) Series(ctx context.Context, deviceID string, since time.Time, sensor string, limit int) ([]models.SensorReading, error) {
	args := []any{deviceID, since}
	q := `
		SELECT id, device_id, sensor_type, value, unit, timestamp
		FROM data_sensor
		WHERE device_id=$1 AND timestamp >= $2
	`
	if sensor != "" && sensor != "all" {
		args = append(args, sensor)
		q += ` AND sensor_type=$3`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY timestamp ASC LIMIT $%d`, len(args))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var r models.SensorReading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.SensorType, &r.Value, &r.Unit, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM data_sensor WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// argList numbers positional SQL parameters as conditions are assembled.
type argList struct {
	vals []any
}

func (a *argList) add(v any) string {
	a.vals = append(a.vals, v)
	return "$" + strconv.Itoa(len(a.vals))
}

// ListSensors builds the grouped sensor view: readings re-pivoted to one row
// per capture timestamp, then searched, counted, sorted and paginated. The
// count wraps the fully filtered query so total stays consistent with the
// returned window.
func (p *PostgresStore) ListSensors(ctx context.Context, lp ListParams) (models.SensorPage, error) {
	page := models.SensorPage{
		Data:  []models.SensorRow{},
		Page:  lp.Page,
		Limit: lp.Limit,
		Date:  lp.DateLabel(),
	}

	spec := search.Sensors(lp.Search, lp.Filter, lp.Date, time.Now())

	args := &argList{}
	inner := []string{"device_id = " + args.add(lp.DeviceID)}
	if lp.Date != "" && !spec.OverridesDate {
		if from, to, err := dayRange(lp.Date); err == nil {
			inner = append(inner,
				"timestamp >= "+args.add(from),
				"timestamp < "+args.add(to))
		}
	}

	q := fmt.Sprintf(`
		WITH grouped_data AS (
			SELECT
				MIN(id) AS id,
				timestamp,
				MAX(CASE WHEN sensor_type = 'temperature' THEN value END) AS temperature,
				MAX(CASE WHEN sensor_type = 'humidity'    THEN value END) AS humidity,
				MAX(CASE WHEN sensor_type = 'light'       THEN value END) AS light,
				MAX(CASE WHEN sensor_type = 'rainfall'    THEN value END) AS rainfall,
				MAX(CASE WHEN sensor_type = 'wind_speed'  THEN value END) AS wind_speed
			FROM data_sensor
			WHERE %s
			GROUP BY timestamp
		)
		SELECT id, timestamp, temperature, humidity, light, rainfall, wind_speed
		FROM grouped_data
	`, strings.Join(inner, " AND "))

	customOrder := ""
	var where []string

	switch spec.Kind {
	case search.TimeRange:
		where = append(where,
			"timestamp >= "+args.add(spec.From)+" AND timestamp < "+args.add(spec.To))

	case search.Bucket:
		lo, hi := args.add(spec.Low), args.add(spec.High)
		conds := make([]string, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			conds = append(conds, fmt.Sprintf("(%s >= %s AND %s < %s)", f, lo, f, hi))
		}
		where = append(where, "("+strings.Join(conds, " OR ")+")")
		if spec.Ranked {
			customOrder = fmt.Sprintf(`CASE
				WHEN temperature >= %s AND temperature < %s THEN 1
				WHEN humidity >= %s AND humidity < %s THEN 2
				ELSE 3
			END, temperature ASC, humidity ASC`, lo, hi, lo, hi)
		} else {
			customOrder = spec.Fields[0] + " ASC"
		}

	case search.Substring:
		needle := args.add("%" + spec.Text + "%")
		conds := make([]string, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			conds = append(conds, fmt.Sprintf("CAST(%s AS TEXT) LIKE %s", f, needle))
		}
		where = append(where, "("+strings.Join(conds, " OR ")+")")

	case search.None:
		if f := search.FilterField(lp.Filter); f != "" {
			where = append(where, f+" IS NOT NULL")
		}
	}

	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ("+q+") AS counted", args.vals...,
	).Scan(&page.Total); err != nil {
		return page, err
	}

	if customOrder != "" {
		q += " ORDER BY " + customOrder
	} else {
		col, dir := safeOrder(lp.OrderBy, lp.OrderDir, sensorSortColumns)
		q += fmt.Sprintf(" ORDER BY %s %s", col, dir)
	}
	q += " LIMIT " + args.add(lp.Limit) + " OFFSET " + args.add(lp.Offset())

	rows, err := p.pool.Query(ctx, q, args.vals...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.SensorRow
		if err := rows.Scan(&r.ID, &r.Timestamp,
			&r.Temperature, &r.Humidity, &r.Light, &r.Rainfall, &r.WindSpeed); err != nil {
			return page, err
		}
		page.Data = append(page.Data, r)
	}
	return page, rows.Err()
}

// ListActions builds the flat action-log view with the same count-then-page
// shape as ListSensors.
func (p *PostgresStore) ListActions(ctx context.Context, lp ListParams) (models.ActionPage, error) {
	page := models.ActionPage{
		Data:  []models.DeviceAction{},
		Page:  lp.Page,
		Limit: lp.Limit,
		Date:  lp.DateLabel(),
	}

	spec := search.Actions(lp.Search, lp.Date, time.Now())

	args := &argList{}
	where := []string{"device_id = " + args.add(lp.DeviceID)}
	if lp.Date != "" && !spec.OverridesDate {
		if from, to, err := dayRange(lp.Date); err == nil {
			where = append(where,
				"timestamp >= "+args.add(from),
				"timestamp < "+args.add(to))
		}
	}
	if lp.Filter != "" && lp.Filter != search.FilterAll {
		where = append(where, "target = "+args.add(strings.ToLower(lp.Filter)))
	}

	switch spec.Kind {
	case search.TimeRange:
		where = append(where,
			"timestamp >= "+args.add(spec.From)+" AND timestamp < "+args.add(spec.To))
	case search.Substring:
		needle := args.add("%" + spec.Text + "%")
		where = append(where, fmt.Sprintf("(target ILIKE %s OR action ILIKE %s)", needle, needle))
	}

	q := `
		SELECT id, device_id, target, action, issued_by, result, COALESCE(note,''), timestamp
		FROM device_actions
		WHERE ` + strings.Join(where, " AND ")

	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ("+q+") AS counted", args.vals...,
	).Scan(&page.Total); err != nil {
		return page, err
	}

	col, dir := safeOrder(lp.OrderBy, lp.OrderDir, actionSortColumns)
	q += fmt.Sprintf(" ORDER BY %s %s", col, dir)
	q += " LIMIT " + args.add(lp.Limit) + " OFFSET " + args.add(lp.Offset())

	rows, err := p.pool.Query(ctx, q, args.vals...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	for rows.Next() {
		var a models.DeviceAction
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Target, &a.Action,
			&a.IssuedBy, &a.Result, &a.Note, &a.Timestamp); err != nil {
			return page, err
		}
		page.Data = append(page.Data, a)
	}
	return page, rows.Err()
}
