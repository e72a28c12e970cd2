package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptionControllerTruncationMath(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(1000)
	ic.BeginUtterance("a1", ic.CallerClock())
	ic.ObserveCallerClock(1350)

	cmd, ok := ic.OnBargeIn()
	require.True(t, ok)
	assert.Equal(t, "a1", cmd.ItemId)
	assert.Equal(t, 0, cmd.ContentIndex)
	assert.Equal(t, int64(350), cmd.AudioEndMs)
}

func TestInterruptionControllerClampsNegativeElapsed(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(500)
	// Clock anomaly: utterance recorded as starting in the future.
	ic.BeginUtterance("a1", 900)

	cmd, ok := ic.OnBargeIn()
	require.True(t, ok)
	assert.Equal(t, int64(0), cmd.AudioEndMs)
}

func TestInterruptionControllerNoUtterance(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(1000)

	_, ok := ic.OnBargeIn()
	assert.False(t, ok)
}

func TestInterruptionControllerSingleActiveUtterance(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(100)
	ic.BeginUtterance("a1", 100)
	ic.ObserveCallerClock(400)

	// Same item must not restart the clock.
	ic.BeginUtterance("a1", 400)
	ic.ObserveCallerClock(600)
	cmd, ok := ic.OnBargeIn()
	require.True(t, ok)
	assert.Equal(t, int64(500), cmd.AudioEndMs)

	// A different item does.
	ic.BeginUtterance("a2", 600)
	ic.ObserveCallerClock(650)
	cmd, ok = ic.OnBargeIn()
	require.True(t, ok)
	assert.Equal(t, "a2", cmd.ItemId)
	assert.Equal(t, int64(50), cmd.AudioEndMs)
}

func TestInterruptionControllerBargeInClearsUtterance(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(10)
	ic.BeginUtterance("a1", 10)

	_, ok := ic.OnBargeIn()
	require.True(t, ok)
	assert.Empty(t, ic.CurrentItem())

	_, ok = ic.OnBargeIn()
	assert.False(t, ok)
}

func TestInterruptionControllerClockMonotonic(t *testing.T) {
	ic := NewInterruptionController()
	ic.ObserveCallerClock(200)
	ic.ObserveCallerClock(150)
	assert.Equal(t, int64(200), ic.CallerClock())
}

func TestInterruptionControllerEmptyItemIgnored(t *testing.T) {
	ic := NewInterruptionController()
	ic.BeginUtterance("", 100)
	_, ok := ic.OnBargeIn()
	assert.False(t, ok)
}

func TestTruncateCommandClientEvent(t *testing.T) {
	cmd := TruncateCommand{ItemId: "a1", AudioEndMs: 350}
	ev := cmd.ClientEvent()
	assert.Equal(t, ClientEventTypeConversationItemTruncate, ev.Type)

	data, err := ev.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(
		t,
		`{"type":"conversation.item.truncate","item_id":"a1","content_index":0,"audio_end_ms":350}`,
		string(data),
	)
}
