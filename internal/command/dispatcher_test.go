package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

const testDevice = "esp32_01"

// fakePublisher records publishes and can be told to fail.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishCommand(deviceID, target, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, deviceID+"/"+target+"="+value)
	return nil
}

func actionRows(t *testing.T, st store.Store) []models.DeviceAction {
	t.Helper()
	page, err := st.ListActions(context.Background(), store.ListParams{
		DeviceID: testDevice,
		Page:     1,
		Limit:    100,
		Filter:   "All",
		OrderBy:  "id",
		OrderDir: "ASC",
	})
	require.NoError(t, err)
	return page.Data
}

func newTestDispatcher(timeout time.Duration) (*Dispatcher, *store.MemoryStore, *fakePublisher) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{}
	return New(st, pub, timeout), st, pub
}

func TestDispatchConfirmedByFeedback(t *testing.T) {
	d, st, pub := newTestDispatcher(100 * time.Millisecond)

	receipt, err := d.Dispatch(context.Background(), testDevice, "fan", "on", "web")
	require.NoError(t, err)
	assert.True(t, receipt.OK)
	assert.Equal(t, "ON", receipt.Value, "value is normalized to the uppercase literal")
	assert.Equal(t, []string{testDevice + "/fan=ON"}, pub.published)

	d.HandleFeedback(testDevice, "fan", "ON")
	assert.Zero(t, d.PendingCount())

	// Wait past the timeout: the cancelled timer must not add a third row.
	time.Sleep(200 * time.Millisecond)

	rows := actionRows(t, st)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ResultPending, rows[0].Result)
	assert.Equal(t, models.ResultSuccess, rows[1].Result)
	assert.Equal(t, "web", rows[1].IssuedBy)
}

func TestDispatchTimesOutWithoutFeedback(t *testing.T) {
	d, st, _ := newTestDispatcher(50 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), testDevice, "fan", "ON", "web")
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, d.PendingCount())

	rows := actionRows(t, st)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ResultFailed, rows[1].Result)
	assert.Contains(t, rows[1].Note, "no feedback within")
}

func TestDispatchMismatchedFeedback(t *testing.T) {
	d, st, _ := newTestDispatcher(100 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), testDevice, "led", "ON", "web")
	require.NoError(t, err)

	d.HandleFeedback(testDevice, "led", "OFF")

	rows := actionRows(t, st)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ResultFailed, rows[1].Result)
	assert.Contains(t, rows[1].Note, `"ON"`)
	assert.Contains(t, rows[1].Note, `"OFF"`)
}

func TestUnsolicitedFeedbackWritesNothing(t *testing.T) {
	d, st, _ := newTestDispatcher(50 * time.Millisecond)

	d.HandleFeedback(testDevice, "led", "ON")

	assert.Empty(t, actionRows(t, st))
}

func TestFeedbackAfterResolutionIsUnsolicited(t *testing.T) {
	d, st, _ := newTestDispatcher(100 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), testDevice, "fan", "ON", "web")
	require.NoError(t, err)

	d.HandleFeedback(testDevice, "fan", "ON")
	d.HandleFeedback(testDevice, "fan", "ON") // duplicate delivery

	rows := actionRows(t, st)
	assert.Len(t, rows, 2, "a redelivered feedback adds no row")
}

func TestDispatchSupersedesPending(t *testing.T) {
	d, st, _ := newTestDispatcher(60 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), testDevice, "fan", "ON", "web")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), testDevice, "fan", "OFF", "web")
	require.NoError(t, err)
	assert.Equal(t, 1, d.PendingCount(), "latest wins at the same key")

	d.HandleFeedback(testDevice, "fan", "OFF")

	// Let the superseded entry's timer fire; it must be a no-op.
	time.Sleep(150 * time.Millisecond)

	rows := actionRows(t, st)
	require.Len(t, rows, 3, "two pending rows, one terminal row")
	assert.Equal(t, models.ResultPending, rows[0].Result)
	assert.Equal(t, models.ResultPending, rows[1].Result)
	assert.Equal(t, models.ResultSuccess, rows[2].Result)
	assert.Equal(t, "OFF", rows[2].Action)
}

func TestPublishFailureIsTerminal(t *testing.T) {
	d, st, pub := newTestDispatcher(50 * time.Millisecond)
	pub.err = errors.New("broker unreachable")

	_, err := d.Dispatch(context.Background(), testDevice, "ac", "ON", "web")
	require.Error(t, err)
	assert.Zero(t, d.PendingCount(), "no pending entry on publish failure")

	rows := actionRows(t, st)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ResultFailed, rows[0].Result)
	assert.Contains(t, rows[0].Note, "broker unreachable")

	// And nothing further after the would-be timeout.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, actionRows(t, st), 1)
}

func TestDispatchDefaultsIssuedBy(t *testing.T) {
	d, st, _ := newTestDispatcher(50 * time.Millisecond)

	receipt, err := d.Dispatch(context.Background(), testDevice, "fan", "ON", "")
	require.NoError(t, err)
	assert.Equal(t, "api", receipt.IssuedBy)

	rows := actionRows(t, st)
	require.Len(t, rows, 1)
	assert.Equal(t, "api", rows[0].IssuedBy)
}
