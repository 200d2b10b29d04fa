package dictation

import (
	"strings"

	"github.com/voiceflow-go/dictation-core/internal/config"
)

// programmerBundleHints are WM classes/bundle ids known to be coding
// tools even when a user's configured programmer_apps list doesn't
// happen to mention them. Ported from the original
// _PROGRAMMER_BUNDLE_HINTS table.
var programmerBundleHints = []string{
	"terminal",
	"iterm2",
	"warp",
	"code",
	"codium",
	"jetbrains",
	"pycharm",
	"goland",
	"intellij",
	"atom",
	"claude",
	"codex",
}

// InferTranscriptionMode decides whether a dictation should auto-flip
// to programmer mode based on the frontmost window's app name and WM
// class/bundle id, checking the user's configured hint list first and
// falling back to a built-in set of well-known coding-tool hints.
func InferTranscriptionMode(appName, wmClass string, programmerApps []string) config.TranscriptionMode {
	nameL := strings.ToLower(strings.TrimSpace(appName))
	classL := strings.ToLower(strings.TrimSpace(wmClass))

	hints := make([]string, 0, len(programmerApps))
	for _, h := range programmerApps {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hints = append(hints, h)
		}
	}

	if containsAny(nameL, hints) || containsAny(classL, hints) {
		return config.ModeProgrammer
	}
	if containsAny(classL, programmerBundleHints) {
		return config.ModeProgrammer
	}
	return config.ModeNormal
}

func containsAny(s string, hints []string) bool {
	if s == "" {
		return false
	}
	for _, hint := range hints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
