// Package modelmgr coordinates which single heavy model family is
// currently resident, so the daemon never keeps STT, the refiner LLM,
// and any future diarization model loaded simultaneously on
// memory-constrained hardware. Grounded on
// original_source/app/core/model_manager.py's ModelManager/ModelSlot:
// the same single-active-slot switch, with register/unload/load
// callback pairs per slot, ported from Python's GIL-protected
// threading.Lock to a sync.Mutex.
package modelmgr

import "sync"

// Slot names a model family that can occupy the active slot. Unlike
// the original's ModelSlot enum (STT/DIARIZATION/SUMMARIZER, with a
// diarization pipeline this daemon has no use for), SlotRefiner
// replaces SUMMARIZER since the refiner LLM is this daemon's only
// heavy secondary model.
type Slot int

const (
	SlotNone Slot = iota
	SlotSTT
	SlotRefiner
)

func (s Slot) String() string {
	switch s {
	case SlotSTT:
		return "stt"
	case SlotRefiner:
		return "refiner"
	default:
		return "none"
	}
}

// Hooks are the load/unload callbacks a Manager invokes when switching
// a slot in or out. Either field may be nil if that slot was never
// registered.
type Hooks struct {
	Load   func()
	Unload func()
}

// StatusNotifier receives human-readable status updates during a
// switch, mirroring AppSignals.status_changed/model_loading/model_loaded.
// Pass nil to skip notification.
type StatusNotifier interface {
	EmitStatusChanged(status string)
	EmitModelLoading(model string)
	EmitModelLoaded(model string)
}

// Manager ensures only one model slot is loaded at a time.
type Manager struct {
	notifier StatusNotifier

	mu     sync.Mutex
	active Slot
	hooks  map[Slot]Hooks
}

// New constructs a Manager. notifier may be nil.
func New(notifier StatusNotifier) *Manager {
	return &Manager{
		notifier: notifier,
		active:   SlotNone,
		hooks:    make(map[Slot]Hooks),
	}
}

// Register attaches load/unload callbacks for a slot. Call before the
// slot is ever switched to.
func (m *Manager) Register(slot Slot, hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[slot] = hooks
}

// Active reports the currently loaded slot.
func (m *Manager) Active() Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// PrepareForDictation ensures the STT slot is active.
func (m *Manager) PrepareForDictation() {
	m.switchTo(SlotSTT)
}

// PrepareForRefinement ensures the refiner slot is active.
func (m *Manager) PrepareForRefinement() {
	m.switchTo(SlotRefiner)
}

// UnloadAll releases whatever slot is active, freeing its memory.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloadCurrentLocked()
	m.active = SlotNone
}

func (m *Manager) switchTo(target Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == target {
		return
	}

	m.unloadCurrentLocked()

	if m.notifier != nil {
		m.notifier.EmitModelLoading(target.String())
	}
	if hooks, ok := m.hooks[target]; ok && hooks.Load != nil {
		hooks.Load()
	}
	m.active = target
	if m.notifier != nil {
		m.notifier.EmitModelLoaded(target.String())
	}
}

func (m *Manager) unloadCurrentLocked() {
	slot := m.active
	if slot == SlotNone {
		return
	}
	if m.notifier != nil {
		m.notifier.EmitStatusChanged("Unloading " + slot.String() + " model...")
	}
	if hooks, ok := m.hooks[slot]; ok && hooks.Unload != nil {
		hooks.Unload()
	}
}
