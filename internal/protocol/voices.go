package protocol

import "strings"

// DefaultVoice is substituted whenever a caller requests a voice outside the
// allow-list. An invalid voice never fails the session.
const DefaultVoice = "cedar"

var voiceAllowList = map[string]struct{}{
	"alloy":   {},
	"ash":     {},
	"ballad":  {},
	"cedar":   {},
	"coral":   {},
	"echo":    {},
	"marin":   {},
	"sage":    {},
	"shimmer": {},
	"verse":   {},
}

// ResolveVoice validates the requested voice against the allow-list and
// returns the voice to use plus whether a substitution happened.
func ResolveVoice(requested string) (voice string, substituted bool) {
	normalized := strings.ToLower(strings.TrimSpace(requested))
	if normalized == "" {
		return DefaultVoice, false
	}
	if _, ok := voiceAllowList[normalized]; ok {
		return normalized, false
	}
	return DefaultVoice, true
}
