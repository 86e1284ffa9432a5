// Package command publishes actuator commands and correlates them with the
// asynchronous feedback a device sends after acting.
//
// Per command the states are:
//
//	DISPATCHED → PUBLISH_FAILED                    (broker rejected the publish)
//	DISPATCHED → AWAITING_FEEDBACK → CONFIRMED     (feedback equals expectation)
//	                               → MISMATCHED    (feedback contradicts it)
//	                               → TIMED_OUT     (no feedback in the window)
//
// Every command that reaches AWAITING_FEEDBACK resolves to exactly one
// terminal action row, unless a later dispatch to the same (device, target)
// key supersedes it first: the pending table is latest-wins.
package command

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
	"github.com/nqhuy/iot-device-service/internal/transport"
)

// DefaultTimeout is the fixed feedback window. Not caller-configurable; there
// is no cancellation API for a dispatch once accepted.
const DefaultTimeout = 10 * time.Second

// pendingCommand is one in-flight command awaiting feedback. Process-local,
// never persisted.
type pendingCommand struct {
	deviceID string
	target   string
	expected string
	issuedBy string
	issuedAt time.Time
	timer    *time.Timer
}

// Dispatcher owns the pending-command table and its timers. All map access
// goes through the mutex; feedback stops the timer before resolving so the
// two paths can never both write a terminal row for the same entry.
type Dispatcher struct {
	store   store.Store
	pub     transport.Publisher
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

func New(st store.Store, pub transport.Publisher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		store:   st,
		pub:     pub,
		timeout: timeout,
		pending: map[string]*pendingCommand{},
	}
}

func pendingKey(deviceID, target string) string {
	return deviceID + "|" + target
}

// Dispatch publishes the command and, on success, records a pending action
// row and arms the feedback timer. The returned receipt means "accepted", not
// "confirmed": the terminal outcome arrives later via feedback or timeout.
//
// A publish failure is terminal immediately: a failed action row is written
// and the error returned; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID, target, value, issuedBy string) (models.DispatchReceipt, error) {
	if issuedBy == "" {
		issuedBy = "api"
	}
	value = strings.ToUpper(value)
	now := time.Now()

	if err := d.pub.PublishCommand(deviceID, target, value); err != nil {
		d.writeAction(ctx, models.DeviceAction{
			DeviceID:  deviceID,
			Target:    target,
			Action:    value,
			IssuedBy:  issuedBy,
			Result:    models.ResultFailed,
			Note:      err.Error(),
			Timestamp: now,
		})
		return models.DispatchReceipt{}, err
	}

	d.writeAction(ctx, models.DeviceAction{
		DeviceID:  deviceID,
		Target:    target,
		Action:    value,
		IssuedBy:  issuedBy,
		Result:    models.ResultPending,
		Timestamp: now,
	})

	key := pendingKey(deviceID, target)
	entry := &pendingCommand{
		deviceID: deviceID,
		target:   target,
		expected: value,
		issuedBy: issuedBy,
		issuedAt: now,
	}

	d.mu.Lock()
	entry.timer = time.AfterFunc(d.timeout, func() { d.expire(key, entry) })
	// Latest wins: a prior in-flight entry at this key is replaced without a
	// terminal write. Its timer is left running and fires as a no-op because
	// the entry it captured is no longer in the table.
	d.pending[key] = entry
	d.mu.Unlock()

	return models.DispatchReceipt{
		OK:        true,
		Device:    deviceID,
		Target:    target,
		Value:     value,
		IssuedBy:  issuedBy,
		Timestamp: now,
	}, nil
}

// HandleFeedback reconciles an inbound status message with the pending table.
// Feedback with no matching entry (boot-time broadcasts, late echoes of an
// already-resolved command) is logged and produces no action row.
func (d *Dispatcher) HandleFeedback(deviceID, target, status string) {
	key := pendingKey(deviceID, target)

	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok {
		d.mu.Unlock()
		log.Printf("command: unsolicited feedback %s/%s = %q", deviceID, target, status)
		return
	}
	// Cancel before resolving: once the entry leaves the table under the
	// lock, a concurrently firing timer finds nothing to expire.
	entry.timer.Stop()
	delete(d.pending, key)
	d.mu.Unlock()

	ctx := context.Background()
	if status == entry.expected {
		d.writeAction(ctx, models.DeviceAction{
			DeviceID:  deviceID,
			Target:    target,
			Action:    entry.expected,
			IssuedBy:  entry.issuedBy,
			Result:    models.ResultSuccess,
			Timestamp: time.Now(),
		})
		return
	}

	d.writeAction(ctx, models.DeviceAction{
		DeviceID:  deviceID,
		Target:    target,
		Action:    entry.expected,
		IssuedBy:  entry.issuedBy,
		Result:    models.ResultFailed,
		Note:      fmt.Sprintf("feedback mismatch: expected %q, got %q", entry.expected, status),
		Timestamp: time.Now(),
	})
}

// expire runs when a feedback timer fires. The identity check makes a timer
// whose entry was resolved or superseded a no-op.
func (d *Dispatcher) expire(key string, entry *pendingCommand) {
	d.mu.Lock()
	current, ok := d.pending[key]
	if !ok || current != entry {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.writeAction(context.Background(), models.DeviceAction{
		DeviceID:  entry.deviceID,
		Target:    entry.target,
		Action:    entry.expected,
		IssuedBy:  entry.issuedBy,
		Result:    models.ResultFailed,
		Note:      fmt.Sprintf("no feedback within %s", d.timeout),
		Timestamp: time.Now(),
	})
}

// writeAction persists an action row; storage errors on this path are
// log-only since no caller waits for them.
func (d *Dispatcher) writeAction(ctx context.Context, a models.DeviceAction) {
	if err := d.store.InsertAction(ctx, a); err != nil {
		log.Printf("command: action write %s/%s result=%s failed: %v",
			a.DeviceID, a.Target, a.Result, err)
	}
}

// PendingCount reports the in-flight table size.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
