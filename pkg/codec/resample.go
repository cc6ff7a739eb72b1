package codec

import "fmt"

// Downsample16kTo8k halves the sample rate of little-endian PCM16 audio
// by averaging adjacent sample pairs.
func Downsample16kTo8k(pcm16k []byte) ([]byte, error) {
	if len(pcm16k)%2 != 0 {
		return nil, fmt.Errorf("codec: pcm16 buffer has odd length %d", len(pcm16k))
	}
	samples := len(pcm16k) / 2
	out := make([]byte, (samples/2)*2)
	for i := 0; i+1 < samples; i += 2 {
		a := int32(int16(pcm16k[2*i]) | int16(pcm16k[2*i+1])<<8)
		b := int32(int16(pcm16k[2*i+2]) | int16(pcm16k[2*i+3])<<8)
		avg := int16((a + b) / 2)
		out[i] = byte(avg)
		out[i+1] = byte(uint16(avg) >> 8)
	}
	return out, nil
}

// Upsample8kTo16k doubles the sample rate of little-endian PCM16 audio
// by linear interpolation between neighbouring samples.
func Upsample8kTo16k(pcm8k []byte) ([]byte, error) {
	if len(pcm8k)%2 != 0 {
		return nil, fmt.Errorf("codec: pcm16 buffer has odd length %d", len(pcm8k))
	}
	samples := len(pcm8k) / 2
	if samples == 0 {
		return []byte{}, nil
	}
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		cur := int32(int16(pcm8k[2*i]) | int16(pcm8k[2*i+1])<<8)
		next := cur
		if i+1 < samples {
			next = int32(int16(pcm8k[2*i+2]) | int16(pcm8k[2*i+3])<<8)
		}
		mid := int16((cur + next) / 2)
		out[4*i] = byte(cur)
		out[4*i+1] = byte(uint16(int16(cur)) >> 8)
		out[4*i+2] = byte(mid)
		out[4*i+3] = byte(uint16(mid) >> 8)
	}
	return out, nil
}
