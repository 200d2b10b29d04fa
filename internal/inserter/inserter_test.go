package inserter

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClipboard struct {
	mu      sync.Mutex
	content string
}

func (f *fakeClipboard) ReadAll() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *fakeClipboard) WriteAll(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = text
	return nil
}

type fakePaster struct {
	trusted    bool
	pasteCalls int
	pasteErr   error
}

func (f *fakePaster) AccessibilityTrusted() bool {
	return f.trusted
}

func (f *fakePaster) SimulatePaste() error {
	f.pasteCalls++
	return f.pasteErr
}

func newTestInserter(trusted bool) (*TextInserter, *fakeClipboard, *fakePaster) {
	cb := &fakeClipboard{}
	pst := &fakePaster{trusted: trusted}
	ti := New(cb, pst)
	ti.sleep = func(time.Duration) {} // keep tests instant
	return ti, cb, pst
}

func TestInsertWritesTextAndSimulatesPaste(t *testing.T) {
	ti, cb, pst := newTestInserter(true)
	cb.content = "previous clipboard contents"

	if err := ti.Insert("hello world", true); err != nil {
		t.Fatalf("Insert(...) error = %v", err)
	}
	if pst.pasteCalls != 1 {
		t.Errorf("SimulatePaste called %d times, want 1", pst.pasteCalls)
	}
	got, _ := cb.ReadAll()
	if got != "previous clipboard contents" {
		t.Errorf("clipboard after Insert = %q, want original restored", got)
	}
}

func TestInsertSkipsRestoreWhenNotRequested(t *testing.T) {
	ti, cb, _ := newTestInserter(true)
	cb.content = "previous"

	if err := ti.Insert("hello", false); err != nil {
		t.Fatalf("Insert(...) error = %v", err)
	}
	got, _ := cb.ReadAll()
	if got != "hello" {
		t.Errorf("clipboard after Insert = %q, want the pasted text left in place", got)
	}
}

func TestInsertSkipsRestoreWhenClipboardChangedDuringPaste(t *testing.T) {
	ti, cb, pst := newTestInserter(true)
	cb.content = "previous"
	pst.pasteErr = nil

	// Simulate another process touching the clipboard mid-paste by
	// overwriting ti's clipboard right after Insert writes the text,
	// via a custom sleep hook that races a write in.
	ti.sleep = func(time.Duration) {
		cur, _ := cb.ReadAll()
		if cur == "hello" {
			_ = cb.WriteAll("someone else's clipboard")
		}
	}

	if err := ti.Insert("hello", true); err != nil {
		t.Fatalf("Insert(...) error = %v", err)
	}
	got, _ := cb.ReadAll()
	if got != "someone else's clipboard" {
		t.Errorf("clipboard after Insert = %q, want the interloping write left untouched", got)
	}
}

func TestInsertReturnsAccessibilityRequiredWhenUntrusted(t *testing.T) {
	ti, cb, pst := newTestInserter(false)

	err := ti.Insert("hello", true)
	if !errors.Is(err, ErrAccessibilityRequired) {
		t.Fatalf("Insert(...) error = %v, want ErrAccessibilityRequired", err)
	}
	if pst.pasteCalls != 0 {
		t.Errorf("SimulatePaste called %d times, want 0 when untrusted", pst.pasteCalls)
	}
	got, _ := cb.ReadAll()
	if got != "hello" {
		t.Errorf("clipboard = %q, want text left on clipboard when untrusted", got)
	}
}

func TestInsertDetachesRestoreForLongText(t *testing.T) {
	ti, cb, _ := newTestInserter(true)
	cb.content = "previous"
	long := strings.Repeat("a", detachedRestoreThreshold)

	done := make(chan struct{})
	go func() {
		_ = ti.Insert(long, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Insert(...) did not return promptly for long text with a detached restore")
	}
}

func TestPasteDelayBase(t *testing.T) {
	if got := pasteDelay(50); got != pasteBase {
		t.Errorf("pasteDelay(50) = %v, want base %v", got, pasteBase)
	}
}

func TestPasteDelayGrowsWithLength(t *testing.T) {
	short := pasteDelay(200)
	long := pasteDelay(1000)
	if long <= short {
		t.Errorf("pasteDelay(1000) = %v, want > pasteDelay(200) = %v", long, short)
	}
}

func TestPasteDelayFloorsAndCeiling(t *testing.T) {
	if got := pasteDelay(950); got < pasteFloor1 {
		t.Errorf("pasteDelay(950) = %v, want >= floor %v", got, pasteFloor1)
	}
	if got := pasteDelay(2300); got < pasteFloor2 {
		t.Errorf("pasteDelay(2300) = %v, want >= floor %v", got, pasteFloor2)
	}
	if got := pasteDelay(1_000_000); got > pasteCeiling {
		t.Errorf("pasteDelay(huge) = %v, want <= ceiling %v", got, pasteCeiling)
	}
}

func TestRestoreDelayBase(t *testing.T) {
	if got := restoreDelay(50); got != restoreBase {
		t.Errorf("restoreDelay(50) = %v, want base %v", got, restoreBase)
	}
}

func TestRestoreDelayFloorsAndCeiling(t *testing.T) {
	if got := restoreDelay(950); got < restoreFloor1 {
		t.Errorf("restoreDelay(950) = %v, want >= floor %v", got, restoreFloor1)
	}
	if got := restoreDelay(2300); got < restoreFloor2 {
		t.Errorf("restoreDelay(2300) = %v, want >= floor %v", got, restoreFloor2)
	}
	if got := restoreDelay(1_000_000); got > restoreCeiling {
		t.Errorf("restoreDelay(huge) = %v, want <= ceiling %v", got, restoreCeiling)
	}
}

func TestDelaysAreMonotonicInLength(t *testing.T) {
	lengths := []int{0, 180, 181, 500, 900, 901, 1500, 2200, 2201, 5000}
	for i := 1; i < len(lengths); i++ {
		if pasteDelay(lengths[i]) < pasteDelay(lengths[i-1]) {
			t.Errorf("pasteDelay not monotonic between %d and %d", lengths[i-1], lengths[i])
		}
		if restoreDelay(lengths[i]) < restoreDelay(lengths[i-1]) {
			t.Errorf("restoreDelay not monotonic between %d and %d", lengths[i-1], lengths[i])
		}
	}
}
