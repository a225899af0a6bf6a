// Package handoff detects the trigger phrase that signals the conversation's
// goal has been reached. Matching runs only on finalized transcripts, never on
// partial deltas, to avoid false positives from mid-sentence fragments.
package handoff

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var defaultPhrases = []string{
	"pass this to an agent",
	"pass this over to an agent",
	"hand this to an agent",
	"hand this off to an agent",
	"send this to an agent",
}

// Detector matches finalized utterances against a fixed phrase family.
type Detector struct {
	phrases []string
}

// NewDetector builds a detector from the built-in phrase family plus any extra
// phrases. Empty extras are ignored.
func NewDetector(extra ...string) *Detector {
	phrases := make([]string, 0, len(defaultPhrases)+len(extra))
	for _, phrase := range append(append([]string{}, defaultPhrases...), extra...) {
		normalized := normalize(phrase)
		if normalized == "" {
			continue
		}
		phrases = append(phrases, normalized)
	}
	return &Detector{phrases: phrases}
}

// NewDetectorFromFile loads additional phrases, one per line, from an optional
// file. A missing file yields the default phrase family.
func NewDetectorFromFile(path string) (*Detector, error) {
	if strings.TrimSpace(path) == "" {
		return NewDetector(), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDetector(), nil
		}
		return nil, fmt.Errorf("failed to read handoff phrases file %q: %w", path, err)
	}

	var extra []string
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		extra = append(extra, line)
	}
	return NewDetector(extra...), nil
}

// Match reports whether the finalized text contains a handoff phrase.
func (d *Detector) Match(finalText string) bool {
	normalized := normalize(finalText)
	if normalized == "" {
		return false
	}
	for _, phrase := range d.phrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
