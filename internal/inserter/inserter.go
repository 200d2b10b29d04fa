// Package inserter places finalized dictation text into the
// foreground application: save clipboard, write text, synthesize a
// paste keystroke, restore the original clipboard. Grounded on
// original_source/app/input/text_inserter.py's save/set/paste/restore
// mechanism over AppKit's NSPasteboard and a synthesized Cmd+V Quartz
// event, ported to github.com/atotto/clipboard plus a pluggable
// Paster so the keystroke synthesis stays platform-specific while the
// rest of the logic is portable. The original's fixed 50/100/50ms
// delays are replaced with spec's length-adaptive delay formulas, and
// the generation-counter staleness check is modeled after the
// teacher's pkg/orchestrator/managed_stream.go sttGeneration pattern.
package inserter

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	settleDelay = 50 * time.Millisecond

	pasteBase    = 120 * time.Millisecond
	pasteSlope   = 620.0 // chars per extra second beyond pasteBreakpoint
	pasteFloor1  = 950 * time.Millisecond
	pasteFloor2  = 1450 * time.Millisecond
	pasteCeiling = 2600 * time.Millisecond

	restoreBase    = 80 * time.Millisecond
	restoreSlope   = 420.0
	restoreFloor1  = 1800 * time.Millisecond
	restoreFloor2  = 3400 * time.Millisecond
	restoreCeiling = 6000 * time.Millisecond

	delayBreakpoint  = 180
	floor1Breakpoint = 900
	floor2Breakpoint = 2200

	// detachedRestoreThreshold is the text length past which restore
	// runs on a detached timer instead of blocking the insert call.
	detachedRestoreThreshold = 420
)

// Clipboard is the narrow clipboard surface TextInserter needs.
// Satisfied by github.com/atotto/clipboard's package-level functions.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Paster synthesizes the OS-level paste keystroke (Cmd+V / Ctrl+V)
// and reports whether this process currently holds accessibility
// trust. The implementation wired at startup is cmd/dictation-daemon's
// pasterAdapter.
type Paster interface {
	AccessibilityTrusted() bool
	SimulatePaste() error
}

// TextInserter owns clipboard-mediated paste for the process. A
// single instance should be constructed at startup and shared, since
// the paste lock and generation counter only serialize correctly
// across one owner.
type TextInserter struct {
	clipboard Clipboard
	paster    Paster

	mu         sync.Mutex // serializes concurrent Insert calls
	generation int64      // bumped on every Insert to invalidate stale restores

	sleep func(time.Duration) // overridable in tests
}

// New constructs a TextInserter over the given clipboard and paster.
func New(clipboard Clipboard, paster Paster) *TextInserter {
	return &TextInserter{
		clipboard: clipboard,
		paster:    paster,
		sleep:     time.Sleep,
	}
}

// ErrAccessibilityRequired means the OS accessibility trust probe
// failed, so no keystroke was synthesized. Text remains on the
// clipboard; the caller should prompt the user to grant trust.
var ErrAccessibilityRequired = errors.New("inserter: accessibility permission required")

// Insert writes text to the clipboard, synthesizes a paste keystroke,
// and (if restoreClipboard) restores whatever was on the clipboard
// before the call. For text at or past detachedRestoreThreshold
// characters the restore runs on a background timer so Insert returns
// as soon as the paste keystroke has been sent.
func (t *TextInserter) Insert(text string, restoreClipboard bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	gen := atomic.AddInt64(&t.generation, 1)

	if !t.paster.AccessibilityTrusted() {
		_ = t.clipboard.WriteAll(text)
		return ErrAccessibilityRequired
	}

	var original string
	var haveOriginal bool
	if restoreClipboard {
		if prev, err := t.clipboard.ReadAll(); err == nil {
			original = prev
			haveOriginal = true
		}
	}

	if err := t.clipboard.WriteAll(text); err != nil {
		return err
	}

	t.sleep(settleDelay)

	if err := t.paster.SimulatePaste(); err != nil {
		return err
	}

	t.sleep(pasteDelay(len(text)))

	if !restoreClipboard || !haveOriginal {
		return nil
	}

	restore := func() {
		if atomic.LoadInt64(&t.generation) != gen {
			return
		}
		current, err := t.clipboard.ReadAll()
		if err != nil || current != text {
			return
		}
		_ = t.clipboard.WriteAll(original)
	}

	if len(text) >= detachedRestoreThreshold {
		delay := restoreDelay(len(text))
		go func() {
			time.Sleep(delay)
			restore()
		}()
		return nil
	}

	t.sleep(restoreDelay(len(text)))
	restore()
	return nil
}

// pasteDelay computes the length-adaptive pause between synthesizing
// the paste keystroke and considering the paste complete.
func pasteDelay(textLen int) time.Duration {
	d := linearDelay(textLen, pasteBase, pasteSlope)
	if textLen > floor2Breakpoint && d < pasteFloor2 {
		d = pasteFloor2
	} else if textLen > floor1Breakpoint && d < pasteFloor1 {
		d = pasteFloor1
	}
	if d > pasteCeiling {
		d = pasteCeiling
	}
	return d
}

// restoreDelay computes the length-adaptive pause before restoring
// the original clipboard contents.
func restoreDelay(textLen int) time.Duration {
	d := linearDelay(textLen, restoreBase, restoreSlope)
	if textLen > floor2Breakpoint && d < restoreFloor2 {
		d = restoreFloor2
	} else if textLen > floor1Breakpoint && d < restoreFloor1 {
		d = restoreFloor1
	}
	if d > restoreCeiling {
		d = restoreCeiling
	}
	return d
}

func linearDelay(textLen int, base time.Duration, slopeCharsPerSecond float64) time.Duration {
	if textLen <= delayBreakpoint {
		return base
	}
	extra := time.Duration(float64(textLen-delayBreakpoint) / slopeCharsPerSecond * float64(time.Second))
	return base + extra
}
