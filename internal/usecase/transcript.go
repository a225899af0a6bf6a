package usecase

import (
	"strings"

	"voicelink/internal/domain"
)

// transcriptTurns accumulates streamed text fragments into per-turn
// transcripts for both speakers. Only the dispatch goroutine touches it, so
// it carries no locks.
type transcriptTurns struct {
	assistant          map[string]*strings.Builder
	assistantFinalized map[string]bool
	userFinalized      map[string]bool
}

func newTranscriptTurns() *transcriptTurns {
	return &transcriptTurns{
		assistant:          make(map[string]*strings.Builder),
		assistantFinalized: make(map[string]bool),
		userFinalized:      make(map[string]bool),
	}
}

// AppendAssistant buffers one transcript delta for the given item. Deltas
// arriving after finalization are dropped.
func (t *transcriptTurns) AppendAssistant(itemID, delta string) {
	if t.assistantFinalized[itemID] {
		return
	}
	buf, ok := t.assistant[itemID]
	if !ok {
		buf = &strings.Builder{}
		t.assistant[itemID] = buf
	}
	buf.WriteString(delta)
}

// FinalizeAssistant seals the item's transcript. The terminal event carries
// the full text; the buffered deltas are the fallback when it does not.
// Finalization is idempotent per item: replays return ok=false.
func (t *transcriptTurns) FinalizeAssistant(itemID, full string) (domain.Transcript, bool) {
	if t.assistantFinalized[itemID] {
		return domain.Transcript{}, false
	}
	t.assistantFinalized[itemID] = true

	text := strings.TrimSpace(full)
	if text == "" {
		if buf, ok := t.assistant[itemID]; ok {
			text = strings.TrimSpace(buf.String())
		}
	}
	delete(t.assistant, itemID)

	return domain.Transcript{
		ItemID:  itemID,
		Speaker: domain.SpeakerAssistant,
		Text:    text,
	}, true
}

// FinalizeUser seals one user utterance. User transcripts arrive whole, never
// as deltas.
func (t *transcriptTurns) FinalizeUser(itemID, full string) (domain.Transcript, bool) {
	if t.userFinalized[itemID] {
		return domain.Transcript{}, false
	}
	t.userFinalized[itemID] = true

	return domain.Transcript{
		ItemID:  itemID,
		Speaker: domain.SpeakerUser,
		Text:    strings.TrimSpace(full),
	}, true
}
