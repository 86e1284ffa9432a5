package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

func TestRunPurgesOldReadingsOnStartup(t *testing.T) {
	st := store.NewMemoryStore()
	old := models.SensorReading{
		DeviceID: "esp32_01", SensorType: models.SensorTemperature,
		Value: 20, Unit: "°C", Timestamp: time.Now().Add(-2 * time.Hour),
	}
	fresh := old
	fresh.Timestamp = time.Now()
	require.NoError(t, st.InsertReading(context.Background(), old))
	require.NoError(t, st.InsertReading(context.Background(), fresh))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(st, time.Hour, time.Minute).Run(ctx)
		close(done)
	}()

	// The startup pass runs before the first tick.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	s, err := st.DeviceSummary(context.Background(), "esp32_01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TotalRecords)
}
