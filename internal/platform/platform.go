// Package platform isolates the handful of OS-specific probes the
// rest of the daemon needs: whether this process currently holds
// accessibility trust (required to synthesize keystrokes and listen
// to global hotkey events), and which application is frontmost so the
// coordinator can restore focus after a dictation and auto-switch
// transcription mode for coding tools. Per spec.md's explicit
// "external collaborators, interfaces only" framing, the per-OS
// accessibility *prompt* UI is out of scope -- only the boolean probe
// and window-query/reactivation are implemented here, and only for
// Linux: there are no separate macOS/Windows implementations, and this
// file carries no build constraint.
// Grounded on original_source/app/input/hotkey.py's accessibility-trust
// log message, spec.md section 4.9's frontmost-PID remember/
// reactivate/retry-once description, and the corpus's xdotool-based
// X11 window control (_examples/NeboLoop-nebo's desktop_linux.go),
// which shells out to the same getactivewindow/getwindowpid/
// getwindowclassname queries rather than hand-rolling the X11
// protocol.
package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// AccessibilityProbe reports whether this process currently holds the
// OS permission needed to synthesize keystrokes and observe global
// hotkey events.
type AccessibilityProbe interface {
	Trusted() bool
}

// FrontmostApp queries, tracks, and reactivates the foreground
// application.
type FrontmostApp interface {
	// ActiveWindow queries the window manager for the current
	// foreground window's process id, application/window name, and WM
	// class (the closest Linux equivalent to a macOS bundle id).
	ActiveWindow() (pid int, appName, wmClass string, err error)
	// Remember records pid as the target to reactivate later, skipping
	// pid values equal to this process's own pid.
	Remember(pid int)
	// Activate brings pid's process back to the foreground. Returns an
	// error if pid is no longer running or could not be activated.
	Activate(pid int) error
}

// ErrProcessGone means a remembered target pid is no longer running,
// so reactivation was skipped.
var ErrProcessGone = errors.New("platform: target process no longer running")

// linuxAccessibilityProbe always reports trusted: Linux has no
// macOS-style accessibility trust gate for global key listeners or
// synthesized input under a permissive X11/Wayland compositor
// configuration, which is what this daemon assumes it runs under.
type linuxAccessibilityProbe struct{}

// NewAccessibilityProbe returns the platform's accessibility trust probe.
func NewAccessibilityProbe() AccessibilityProbe {
	return linuxAccessibilityProbe{}
}

func (linuxAccessibilityProbe) Trusted() bool {
	return true
}

// linuxFrontmostApp queries the active window under X11 by shelling
// out to xdotool, the same backend-detection-and-shell-out pattern
// the corpus uses for desktop control. It uses golang.org/x/sys/unix
// to verify a remembered pid is still alive before attempting
// reactivation.
type linuxFrontmostApp struct {
	lastKnownPID int
}

// NewFrontmostApp returns the platform's frontmost-application tracker.
func NewFrontmostApp() FrontmostApp {
	return &linuxFrontmostApp{}
}

// ActiveWindow shells out to xdotool to find the id of the currently
// focused window, then queries that window's owning pid and WM class.
// Returns an error if xdotool is not on PATH or no window is focused
// (e.g. a bare Wayland session without an X11 compatibility layer).
func (f *linuxFrontmostApp) ActiveWindow() (int, string, string, error) {
	windowID, err := runXdotool("getactivewindow")
	if err != nil {
		return 0, "", "", fmt.Errorf("platform: query active window: %w", err)
	}
	pidOut, err := runXdotool("getwindowpid", windowID)
	if err != nil {
		return 0, "", "", fmt.Errorf("platform: query active window pid: %w", err)
	}
	pid, err := strconv.Atoi(pidOut)
	if err != nil {
		return 0, "", "", fmt.Errorf("platform: parse active window pid %q: %w", pidOut, err)
	}
	name, _ := runXdotool("getwindowname", windowID)
	class, _ := runXdotool("getwindowclassname", windowID)
	return pid, name, class, nil
}

func runXdotool(args ...string) (string, error) {
	out, err := exec.Command("xdotool", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Activate verifies pid is still alive (via a zero-signal kill, the
// standard liveness probe) then best-effort asks xdotool to raise and
// focus whichever window that pid owns. A missing xdotool binary or a
// pid with no mapped window is not treated as a failure: the process
// being alive is what matters for reactivation, actually raising its
// window is a nice-to-have this daemon degrades gracefully without.
func (f *linuxFrontmostApp) Activate(pid int) error {
	if pid == os.Getpid() {
		return nil
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return ErrProcessGone
	}
	_, _ = runXdotool("search", "--pid", strconv.Itoa(pid), "windowactivate")
	f.lastKnownPID = pid
	return nil
}

// Remember records pid as the last-known frontmost process, skipping
// this daemon's own pid per spec.md section 4.9's "only if it is not
// this process" guard.
func (f *linuxFrontmostApp) Remember(pid int) {
	if pid == os.Getpid() {
		return
	}
	f.lastKnownPID = pid
}
