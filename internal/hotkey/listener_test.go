package hotkey

import (
	"testing"
	"time"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestListener(mode Mode, minHoldMs, doublePressMs int) (*Listener, *clock, *[]string) {
	cl := &clock{t: time.Unix(0, 0)}
	events := &[]string{}
	l := New(mode, minHoldMs, doublePressMs,
		func() { *events = append(*events, "start") },
		func(cancelled bool) {
			if cancelled {
				*events = append(*events, "stop-cancelled")
			} else {
				*events = append(*events, "stop")
			}
		},
	)
	l.now = cl.now
	return l, cl, events
}

func TestPushToTalkPressStartsRecording(t *testing.T) {
	l, _, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandlePress()
	if l.State() != StateRecording {
		t.Errorf("State() = %v, want StateRecording", l.State())
	}
	if len(*events) != 1 || (*events)[0] != "start" {
		t.Errorf("events = %v, want [start]", *events)
	}
}

func TestPushToTalkKeyRepeatIsDropped(t *testing.T) {
	l, _, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandlePress()
	l.HandlePress() // OS key-repeat while still held
	if len(*events) != 1 {
		t.Errorf("events = %v, want exactly one start from the repeated press", *events)
	}
}

func TestPushToTalkShortHoldCancels(t *testing.T) {
	l, cl, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandlePress()
	cl.advance(50 * time.Millisecond)
	l.HandleRelease()

	if len(*events) != 2 || (*events)[1] != "stop-cancelled" {
		t.Errorf("events = %v, want [start stop-cancelled]", *events)
	}
	if l.State() != StateIdle {
		t.Errorf("State() = %v, want StateIdle", l.State())
	}
}

func TestPushToTalkLongHoldStopsNormally(t *testing.T) {
	l, cl, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandlePress()
	cl.advance(500 * time.Millisecond)
	l.HandleRelease()

	if len(*events) != 2 || (*events)[1] != "stop" {
		t.Errorf("events = %v, want [start stop]", *events)
	}
}

func TestPushToTalkReleaseWithoutPressIsNoop(t *testing.T) {
	l, _, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandleRelease()
	if len(*events) != 0 {
		t.Errorf("events = %v, want none for a release with no prior press", *events)
	}
}

func TestToggleFirstPressArmsWithoutStarting(t *testing.T) {
	l, _, events := newTestListener(ModeToggle, 200, 300)
	l.HandlePress()
	if len(*events) != 0 {
		t.Errorf("events = %v, want none after a single isolated press", *events)
	}
	if l.State() != StateArmedForToggle {
		t.Errorf("State() = %v, want StateArmedForToggle", l.State())
	}
}

func TestToggleSecondPressWithinWindowStarts(t *testing.T) {
	l, cl, events := newTestListener(ModeToggle, 200, 300)
	l.HandlePress()
	cl.advance(100 * time.Millisecond)
	l.HandlePress()

	if len(*events) != 1 || (*events)[0] != "start" {
		t.Errorf("events = %v, want [start]", *events)
	}
	if l.State() != StateRecording {
		t.Errorf("State() = %v, want StateRecording", l.State())
	}
}

func TestToggleSecondDoublePressStops(t *testing.T) {
	l, cl, events := newTestListener(ModeToggle, 200, 300)
	l.HandlePress()
	cl.advance(100 * time.Millisecond)
	l.HandlePress() // starts
	cl.advance(100 * time.Millisecond)
	l.HandlePress() // arms again
	cl.advance(100 * time.Millisecond)
	l.HandlePress() // stops

	if len(*events) != 2 || (*events)[1] != "stop" {
		t.Errorf("events = %v, want [start stop]", *events)
	}
	if l.State() != StateIdle {
		t.Errorf("State() = %v, want StateIdle", l.State())
	}
}

func TestToggleIsolatedPressDecays(t *testing.T) {
	l, cl, events := newTestListener(ModeToggle, 200, 300)
	l.HandlePress()
	cl.advance(500 * time.Millisecond) // past the double-press window
	l.HandlePress()

	if len(*events) != 0 {
		t.Errorf("events = %v, want none, a stale arm should decay rather than toggle", *events)
	}
	if l.State() != StateArmedForToggle {
		t.Errorf("State() = %v, want re-armed by the second isolated press", l.State())
	}
}

func TestToggleIgnoresRelease(t *testing.T) {
	l, _, events := newTestListener(ModeToggle, 200, 300)
	l.HandlePress()
	l.HandleRelease()
	if len(*events) != 0 {
		t.Errorf("events = %v, want none, toggle mode ignores releases", *events)
	}
}

func TestResetClearsState(t *testing.T) {
	l, _, events := newTestListener(ModePushToTalk, 200, 300)
	l.HandlePress()
	l.Reset()
	if l.State() != StateIdle {
		t.Errorf("State() after Reset() = %v, want StateIdle", l.State())
	}
	// A release after Reset should be a no-op, not a stale-stop, since
	// Reset clears keyHeld along with state.
	before := len(*events)
	l.HandleRelease()
	if len(*events) != before {
		t.Errorf("events = %v, want no new events for a release after Reset", *events)
	}
}
