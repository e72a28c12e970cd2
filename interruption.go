package relay

import (
	"sync"
	"sync/atomic"
)

// TruncateCommand tells the model to shorten its record of an utterance to
// the portion the caller actually heard.
type TruncateCommand struct {
	ItemId       string
	ContentIndex int
	AudioEndMs   int64
}

// ClientEvent converts the command to its wire form.
func (c TruncateCommand) ClientEvent() *ClientEvent {
	return &ClientEvent{
		Type: ClientEventTypeConversationItemTruncate,
		Param: &ClientEventParamConversationItemTruncate{
			ItemId:       c.ItemId,
			ContentIndex: c.ContentIndex,
			AudioEndMs:   c.AudioEndMs,
		},
	}
}

// InterruptionController holds the timing state needed to truncate an
// in-flight assistant utterance. The caller clock is written only by the
// inbound pump; utterance state is mutated only by the outbound pump.
//
// Elapsed playback is always derived from the caller-side media clock. The
// model emits audio faster than real time, so counting bytes or model event
// timing would overstate what the caller has heard; the caller clock is the
// only signal that advances in lockstep with audio delivery to the line.
type InterruptionController struct {
	callerClockMs atomic.Int64

	mu          sync.Mutex
	itemId      string
	startedAtMs int64
}

func NewInterruptionController() *InterruptionController {
	return &InterruptionController{}
}

// ObserveCallerClock records the caller-side media timestamp. Called on
// every inbound media frame, regardless of barge-in state. The clock is
// monotonic non-decreasing; stale values are ignored.
func (ic *InterruptionController) ObserveCallerClock(timestampMs int64) {
	if timestampMs > ic.callerClockMs.Load() {
		ic.callerClockMs.Store(timestampMs)
	}
}

// CallerClock returns the last observed caller-side media timestamp.
func (ic *InterruptionController) CallerClock() int64 {
	return ic.callerClockMs.Load()
}

// BeginUtterance starts the playback clock for a new assistant utterance.
// The model streams many deltas per utterance; only the first delta of a new
// item starts the clock, repeats with the same id are ignored.
func (ic *InterruptionController) BeginUtterance(itemId string, callerClockMs int64) {
	if itemId == "" {
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.itemId == itemId {
		return
	}
	ic.itemId = itemId
	ic.startedAtMs = callerClockMs
}

// OnBargeIn computes the truncate command for the current utterance and
// clears it. Returns false when the model is not currently speaking, which
// is a no-op rather than an error.
func (ic *InterruptionController) OnBargeIn() (TruncateCommand, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.itemId == "" {
		return TruncateCommand{}, false
	}
	elapsed := ic.callerClockMs.Load() - ic.startedAtMs
	if elapsed < 0 {
		elapsed = 0
	}
	cmd := TruncateCommand{
		ItemId:       ic.itemId,
		ContentIndex: 0,
		AudioEndMs:   elapsed,
	}
	ic.itemId = ""
	ic.startedAtMs = 0
	return cmd, true
}

// CurrentItem reports the item id of the in-flight utterance, empty when
// none.
func (ic *InterruptionController) CurrentItem() string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.itemId
}
