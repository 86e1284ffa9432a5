// Package search turns a free-text search box input into a tagged query spec.
//
// The input's shape decides its meaning: a full date-time means an exact
// capture instant, a bare time means that instant on the active date, a short
// number means a value bucket, anything else a substring probe. Rules are
// evaluated in fixed order and the first match wins.
package search

import (
	"regexp"
	"strconv"
	"time"

	"github.com/nqhuy/iot-device-service/internal/models"
)

// Kind tags what a parsed Spec matches against.
type Kind int

const (
	// None means no search condition; only the dropdown filter (if any)
	// constrains the result set.
	None Kind = iota
	// TimeRange matches rows with Timestamp in [From, To).
	TimeRange
	// Bucket matches rows where any field in Fields has a value in [Low, High).
	Bucket
	// Substring matches rows where any field in Fields textually contains Text.
	Substring
)

// Spec is a parsed search input. Exactly one rule produced it, so the fields
// beyond Kind are only meaningful for that Kind.
type Spec struct {
	Kind Kind

	// TimeRange
	From, To time.Time
	// OverridesDate is set when the input carried its own full date, which
	// beats an explicit date query parameter.
	OverridesDate bool

	// Bucket / Substring
	Fields []string
	Low    float64
	High   float64
	// Ranked orders temperature-bucket matches ahead of rows matching only
	// on humidity, tie-broken by temperature then humidity ascending.
	Ranked bool
	Text   string
}

var (
	fullDateTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\s+(\d{1,2})/(\d{1,2})/(\d{4})$`)
	timeOnlyRe     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	twoDigitsRe    = regexp.MustCompile(`^\d{2}$`)
	manyDigitsRe   = regexp.MustCompile(`^\d{3,}$`)
)

// Dropdown filter values used by the dashboard.
const (
	FilterAll         = "All"
	FilterTemperature = "Temperature"
	FilterHumidity    = "Humidity"
	FilterLight       = "Light"
	FilterRainfall    = "Rainfall"
	FilterWind        = "Wind"
)

// FilterField maps a dropdown filter to the sensor column it names, or ""
// for All/unknown.
func FilterField(filter string) string {
	switch filter {
	case FilterTemperature:
		return models.SensorTemperature
	case FilterHumidity:
		return models.SensorHumidity
	case FilterLight:
		return models.SensorLight
	case FilterRainfall:
		return models.SensorRainfall
	case FilterWind:
		return models.SensorWindSpeed
	}
	return ""
}

// Sensors parses a search input for the grouped sensor view.
//
// date is the active calendar day ("2006-01-02", empty for none); now supplies
// the fallback date for bare-time inputs.
func Sensors(input, filter, date string, now time.Time) Spec {
	if input == "" {
		return Spec{}
	}

	if m := fullDateTimeRe.FindStringSubmatch(input); m != nil {
		from, to := absoluteRange(m)
		return Spec{Kind: TimeRange, From: from, To: to, OverridesDate: true}
	}

	if m := timeOnlyRe.FindStringSubmatch(input); m != nil {
		from, to := timeOfDayRange(m, date, now)
		return Spec{Kind: TimeRange, From: from, To: to}
	}

	if twoDigitsRe.MatchString(input) {
		n, _ := strconv.ParseFloat(input, 64)
		switch filter {
		case FilterTemperature:
			return Spec{Kind: Bucket, Fields: []string{models.SensorTemperature}, Low: n, High: n + 1}
		case FilterHumidity:
			return Spec{Kind: Bucket, Fields: []string{models.SensorHumidity}, Low: n, High: n + 1}
		case FilterAll:
			return Spec{
				Kind:   Bucket,
				Fields: []string{models.SensorTemperature, models.SensorHumidity},
				Low:    n, High: n + 1,
				Ranked: true,
			}
		}
		// Two-digit inputs only probe temperature/humidity; with any other
		// filter the dropdown constraint alone applies.
		return Spec{}
	}

	if manyDigitsRe.MatchString(input) {
		switch filter {
		case FilterLight, FilterAll:
			n, _ := strconv.ParseFloat(input, 64)
			return Spec{Kind: Bucket, Fields: []string{models.SensorLight}, Low: n, High: n + 100}
		case FilterTemperature, FilterHumidity:
			return Spec{Kind: Substring, Fields: []string{FilterField(filter)}, Text: input}
		}
		return Spec{}
	}

	if f := FilterField(filter); f != "" {
		return Spec{Kind: Substring, Fields: []string{f}, Text: input}
	}
	return Spec{Kind: Substring, Fields: models.SensorTypes, Text: input}
}

// Actions parses a search input for the flat action-log view: time patterns
// match the action timestamp, anything else substring-matches target/action.
func Actions(input, date string, now time.Time) Spec {
	if input == "" {
		return Spec{}
	}

	if m := fullDateTimeRe.FindStringSubmatch(input); m != nil {
		from, to := absoluteRange(m)
		return Spec{Kind: TimeRange, From: from, To: to, OverridesDate: true}
	}

	if m := timeOnlyRe.FindStringSubmatch(input); m != nil {
		from, to := timeOfDayRange(m, date, now)
		return Spec{Kind: TimeRange, From: from, To: to}
	}

	return Spec{Kind: Substring, Fields: []string{"target", "action"}, Text: input}
}

// absoluteRange builds [t, t+1s) or [t, t+1m) from a full date-time match.
func absoluteRange(m []string) (time.Time, time.Time) {
	hour := atoi(m[1])
	minute := atoi(m[2])
	day := atoi(m[4])
	month := atoi(m[5])
	year := atoi(m[6])

	if m[3] != "" {
		from := time.Date(year, time.Month(month), day, hour, minute, atoi(m[3]), 0, time.Local)
		return from, from.Add(time.Second)
	}
	from := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local)
	return from, from.Add(time.Minute)
}

// timeOfDayRange anchors a bare time on the explicit date or, absent one,
// on now's calendar day.
func timeOfDayRange(m []string, date string, now time.Time) (time.Time, time.Time) {
	year, month, day := now.Date()
	if date != "" {
		if d, err := time.ParseInLocation("2006-01-02", date, time.Local); err == nil {
			year, month, day = d.Date()
		}
	}

	hour := atoi(m[1])
	minute := atoi(m[2])
	if m[3] != "" {
		from := time.Date(year, month, day, hour, minute, atoi(m[3]), 0, time.Local)
		return from, from.Add(time.Second)
	}
	from := time.Date(year, month, day, hour, minute, 0, 0, time.Local)
	return from, from.Add(time.Minute)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
