package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

const testDevice = "esp32_01"

var captureTime = time.Date(2025, 10, 9, 14, 5, 30, 123456789, time.Local)

// flakyStore fails inserts for selected sensor types.
type flakyStore struct {
	*store.MemoryStore
	fail map[string]bool
}

func (f *flakyStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	if f.fail[r.SensorType] {
		return errors.New("insert failed")
	}
	return f.MemoryStore.InsertReading(ctx, r)
}

func newTestIngestor(st store.Store) *Ingestor {
	in := New(st)
	in.now = func() time.Time { return captureTime }
	return in
}

func readings(t *testing.T, st store.Store) []models.SensorReading {
	t.Helper()
	out, err := st.Series(context.Background(), testDevice, time.Time{}, "all", 1000)
	require.NoError(t, err)
	return out
}

func TestIngestPersistsEachField(t *testing.T) {
	st := store.NewMemoryStore()
	in := newTestIngestor(st)

	err := in.Ingest(context.Background(), testDevice,
		[]byte(`{"temperature":25.5,"humidity":61,"light":800,"rainfall":0.2,"wind_speed":12.5}`))
	require.NoError(t, err)

	rows := readings(t, st)
	require.Len(t, rows, 5)

	byType := map[string]models.SensorReading{}
	for _, r := range rows {
		byType[r.SensorType] = r
		assert.Equal(t, captureTime.Truncate(time.Second), r.Timestamp,
			"capture timestamp is truncated to whole seconds")
	}
	assert.Equal(t, 25.5, byType[models.SensorTemperature].Value)
	assert.Equal(t, "°C", byType[models.SensorTemperature].Unit)
	assert.Equal(t, "km/h", byType[models.SensorWindSpeed].Unit)
}

func TestIngestSkipsAbsentAndNullFields(t *testing.T) {
	st := store.NewMemoryStore()
	in := newTestIngestor(st)

	err := in.Ingest(context.Background(), testDevice,
		[]byte(`{"temperature":21.5,"humidity":null}`))
	require.NoError(t, err)

	rows := readings(t, st)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SensorTemperature, rows[0].SensorType)
}

func TestIngestMalformedPayloadIsDropped(t *testing.T) {
	st := store.NewMemoryStore()
	in := newTestIngestor(st)

	err := in.Ingest(context.Background(), testDevice, []byte(`{"temperature":"hot"}`))
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Empty(t, readings(t, st))

	err = in.Ingest(context.Background(), testDevice, []byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Empty(t, readings(t, st))
}

func TestIngestDuplicateTimestampDropsWholePayload(t *testing.T) {
	st := store.NewMemoryStore()
	in := newTestIngestor(st)

	require.NoError(t, in.Ingest(context.Background(), testDevice, []byte(`{"temperature":25}`)))

	// The redelivered payload carries sensor types the first one lacked, but
	// dedup is per (device, timestamp): the whole payload is dropped.
	err := in.Ingest(context.Background(), testDevice, []byte(`{"humidity":60,"light":700}`))
	require.ErrorIs(t, err, ErrDuplicateReading)

	rows := readings(t, st)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SensorTemperature, rows[0].SensorType)
}

func TestIngestSameSecondOtherDeviceIsNotDuplicate(t *testing.T) {
	st := store.NewMemoryStore()
	in := newTestIngestor(st)

	require.NoError(t, in.Ingest(context.Background(), testDevice, []byte(`{"temperature":25}`)))
	require.NoError(t, in.Ingest(context.Background(), "esp32_02", []byte(`{"temperature":26}`)))
}

func TestIngestPartialInsertFailureContinues(t *testing.T) {
	st := &flakyStore{
		MemoryStore: store.NewMemoryStore(),
		fail:        map[string]bool{models.SensorTemperature: true},
	}
	in := newTestIngestor(st)

	err := in.Ingest(context.Background(), testDevice,
		[]byte(`{"temperature":25,"humidity":60}`))
	require.NoError(t, err, "per-field insert errors are log-only")

	rows := readings(t, st)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SensorHumidity, rows[0].SensorType)
}
