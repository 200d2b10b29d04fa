// Package dictionary persists user-specific misheard-phrase corrections
// and auto-learns new ones from repeated manual edits, per
// original_source/app/dictionary.py.
package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// AutoLearnThreshold is the number of times the same correction must be
// recorded before it's promoted from correction_counts into
// auto_learned.
const AutoLearnThreshold = 3

// Dictionary maps misheard phrases (case-insensitive) to the correct
// replacement, plus an auto-learned subset and the correction counts
// that drive promotion into it.
type Dictionary struct {
	mu               sync.RWMutex
	Terms            map[string]string `json:"terms"`
	AutoLearned      map[string]string `json:"auto_learned"`
	CorrectionCounts map[string]int    `json:"correction_counts"`
	path             string
}

// New returns an empty dictionary not yet bound to a file.
func New() *Dictionary {
	return &Dictionary{
		Terms:            map[string]string{},
		AutoLearned:      map[string]string{},
		CorrectionCounts: map[string]int{},
	}
}

// LoadDefaults seeds a fresh dictionary from a YAML resource (not part
// of the original Python app, which ships no seed file; this repo
// supplements it so `terms` isn't empty on first run). Missing file is
// not an error -- it just means no seed terms.
func LoadDefaults(yamlPath string) (*Dictionary, error) {
	d := New()
	data, err := os.ReadFile(yamlPath)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dictionary: read defaults: %w", err)
	}
	var seed struct {
		Terms map[string]string `yaml:"terms"`
	}
	if err := yamlUnmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("dictionary: parse defaults: %w", err)
	}
	for k, v := range seed.Terms {
		d.Terms[strings.ToLower(k)] = v
	}
	return d, nil
}

// Load reads a dictionary JSON file at path, merging LoadDefaults
// content underneath it. A missing file yields an empty dictionary
// bound to path for future Save calls.
func Load(path, defaultsYAMLPath string) (*Dictionary, error) {
	d, err := LoadDefaults(defaultsYAMLPath)
	if err != nil {
		return nil, err
	}
	d.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dictionary: read: %w", err)
	}

	var onDisk struct {
		Terms            map[string]string `json:"terms"`
		AutoLearned      map[string]string `json:"auto_learned"`
		CorrectionCounts map[string]int    `json:"correction_counts"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		// Corrupted dictionary: keep defaults, will overwrite on next Save.
		return d, nil
	}
	for k, v := range onDisk.Terms {
		d.Terms[strings.ToLower(k)] = v
	}
	d.AutoLearned = onDisk.AutoLearned
	if d.AutoLearned == nil {
		d.AutoLearned = map[string]string{}
	}
	d.CorrectionCounts = onDisk.CorrectionCounts
	if d.CorrectionCounts == nil {
		d.CorrectionCounts = map[string]int{}
	}
	return d, nil
}

// Save writes the dictionary to its bound path atomically via a .tmp
// rename. No-op if the dictionary was never bound to a path.
func (d *Dictionary) Save() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(struct {
		Terms            map[string]string `json:"terms"`
		AutoLearned      map[string]string `json:"auto_learned"`
		CorrectionCounts map[string]int    `json:"correction_counts"`
	}{d.Terms, d.AutoLearned, d.CorrectionCounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("dictionary: marshal: %w", err)
	}
	data = append(data, '\n')
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("dictionary: write temp: %w", err)
	}
	return os.Rename(tmp, d.path)
}

// RecordCorrection records that `wrong` was manually corrected to
// `right`. Counts are kept per `wrong` phrase, not per pair: once
// `wrong` has been recorded AutoLearnThreshold times, it's promoted
// into AutoLearned, mapped to the `right` passed on that call.
//
// Before counting an exact match, RecordCorrection checks whether
// `wrong` is a close Jaro-Winkler match (>=0.92) of an existing
// correction_counts key, folding the count into the existing key
// instead of starting a fresh one -- this supplements (never replaces)
// the exact-match replacement pipeline in TextCleaner, which is never
// consulted here.
func (d *Dictionary) RecordCorrection(wrong, right string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(wrong))
	if key == "" {
		return
	}

	for existing := range d.CorrectionCounts {
		if existing == key {
			key = existing
			break
		}
		if matchr.JaroWinkler(existing, key, true) >= 0.92 {
			key = existing
			break
		}
	}

	d.CorrectionCounts[key]++
	if d.CorrectionCounts[key] >= AutoLearnThreshold {
		d.AutoLearned[key] = right
	}
}

// GetAllTerms returns the merged terms map (manual entries take
// precedence over auto-learned ones on key collision).
func (d *Dictionary) GetAllTerms() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	merged := make(map[string]string, len(d.Terms)+len(d.AutoLearned))
	for k, v := range d.AutoLearned {
		merged[k] = v
	}
	for k, v := range d.Terms {
		merged[k] = v
	}
	return merged
}

// GetWhisperContext builds a vocab-hint prompt fragment from the top 20
// unique replacement values (10 from manual terms, 10 from
// auto-learned), for use as STT initial_prompt in programmer mode.
func (d *Dictionary) GetWhisperContext() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[string]bool{}
	var values []string

	take := func(m map[string]string, limit int) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		n := 0
		for _, k := range keys {
			if n >= limit {
				break
			}
			v := m[k]
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
			n++
		}
	}

	take(d.Terms, 10)
	take(d.AutoLearned, 10)

	if len(values) == 0 {
		return ""
	}
	return strings.Join(values, ", ")
}
