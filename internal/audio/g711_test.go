package audio

import (
	"encoding/binary"
	"testing"
)

func TestMuLawRoundTripIsClose(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 32000, -32000}
	for _, sample := range samples {
		decoded := DecodeMuLaw(EncodeMuLaw(sample))
		diff := int(sample) - int(decoded)
		if diff < 0 {
			diff = -diff
		}
		// mu-law is lossy; error grows with amplitude but stays within one
		// quantization step.
		limit := 32
		if sample > 4000 || sample < -4000 {
			limit = 1024
		}
		if diff > limit {
			t.Fatalf("sample %d decoded to %d (diff %d)", sample, decoded, diff)
		}
	}
}

func TestMuLawSilence(t *testing.T) {
	t.Parallel()

	if got := DecodeMuLaw(EncodeMuLaw(0)); got != 0 {
		t.Fatalf("silence should survive companding, got %d", got)
	}
}

func TestMuLawPCMBuffers(t *testing.T) {
	t.Parallel()

	samples := []int16{1200, -1200, 0, 30000}
	pcm := make([]byte, 8)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}

	companded := EncodeMuLawPCM(pcm)
	if len(companded) != 4 {
		t.Fatalf("expected 4 companded bytes, got %d", len(companded))
	}

	decoded := DecodeMuLawPCM(companded)
	if len(decoded) != 8 {
		t.Fatalf("expected 8 decoded bytes, got %d", len(decoded))
	}

	first := int16(binary.LittleEndian.Uint16(decoded[0:]))
	second := int16(binary.LittleEndian.Uint16(decoded[2:]))
	if first <= 0 || second >= 0 {
		t.Fatalf("signs lost in round trip: %d %d", first, second)
	}
}

func TestEncodeMuLawPCMIgnoresTrailingByte(t *testing.T) {
	t.Parallel()

	if got := EncodeMuLawPCM([]byte{0x01, 0x02, 0x03}); len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}
