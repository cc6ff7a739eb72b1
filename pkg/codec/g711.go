// Package codec provides the stateless audio transforms used by the
// telephony leg: G.711 μ-law companding, base64 payload framing and
// sample-rate conversion between the 8 kHz wire format and the 16 kHz
// pipeline format.
package codec

import (
	"encoding/base64"
	"fmt"
)

const (
	ulawBias = 0x84
	ulawClip = 32635

	// Smartflo expects outbound μ-law payloads aligned to 20 ms chunks.
	payloadAlign = 160
)

// EncodeSample compands a single 16-bit PCM sample to μ-law.
func EncodeSample(sample int16) byte {
	s := int32(sample)
	sign := byte(0)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exp := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte((s >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

// DecodeSample expands a μ-law byte back to 16-bit PCM.
func DecodeSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int32(mant)<<3 + ulawBias) << uint(exp)
	value -= ulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// MulawToPCM16 converts raw μ-law bytes to little-endian PCM16.
func MulawToPCM16(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		s := DecodeSample(b)
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(uint16(s) >> 8)
	}
	return pcm
}

// PCM16ToMulaw converts little-endian PCM16 to raw μ-law bytes.
// The input length must be even.
func PCM16ToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("codec: pcm16 buffer has odd length %d", len(pcm))
	}
	mulaw := make([]byte, len(pcm)/2)
	for i := 0; i < len(mulaw); i++ {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		mulaw[i] = EncodeSample(s)
	}
	return mulaw, nil
}

// DecodePayload decodes a base64 μ-law media payload to PCM16 at 8 kHz.
// Invalid base64 is a hard error surfaced to the caller.
func DecodePayload(payload string) ([]byte, error) {
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid base64 payload: %w", err)
	}
	return MulawToPCM16(mulaw), nil
}

// EncodePayload compands 8 kHz PCM16 to μ-law, pads to a 160-byte
// boundary with μ-law silence and returns the base64 wire payload.
func EncodePayload(pcm8k []byte) (string, error) {
	mulaw, err := PCM16ToMulaw(pcm8k)
	if err != nil {
		return "", err
	}
	if rem := len(mulaw) % payloadAlign; rem != 0 {
		pad := make([]byte, payloadAlign-rem)
		for i := range pad {
			pad[i] = 0xFF
		}
		mulaw = append(mulaw, pad...)
	}
	return base64.StdEncoding.EncodeToString(mulaw), nil
}
