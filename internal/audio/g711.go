package audio

import "encoding/binary"

// G.711 mu-law companding for the PCMU media track. 8 kHz, one byte per
// sample on the wire, 16-bit little-endian PCM on the application side.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// EncodeMuLaw compands one linear sample.
func EncodeMuLaw(sample int16) byte {
	value := int(sample)
	sign := byte(0)
	if value < 0 {
		value = -value
		sign = 0x80
	}
	if value > muLawClip {
		value = muLawClip
	}
	value += muLawBias

	exponent := byte(7)
	for mask := 0x4000; value&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(value>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw expands one companded sample.
func DecodeMuLaw(companded byte) int16 {
	companded = ^companded
	sign := companded & 0x80
	exponent := (companded >> 4) & 0x07
	mantissa := companded & 0x0F

	value := (int(mantissa)<<3 + muLawBias) << exponent
	value -= muLawBias
	if sign != 0 {
		value = -value
	}
	return int16(value)
}

// EncodeMuLawPCM compands a little-endian s16 PCM buffer. A trailing odd byte
// is ignored.
func EncodeMuLawPCM(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		out = append(out, EncodeMuLaw(sample))
	}
	return out
}

// DecodeMuLawPCM expands companded samples into little-endian s16 PCM.
func DecodeMuLawPCM(companded []byte) []byte {
	out := make([]byte, len(companded)*2)
	for i, b := range companded {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(DecodeMuLaw(b)))
	}
	return out
}
