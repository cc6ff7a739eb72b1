package vad

import (
	"context"
	"math"
)

// EnergyClassifier scores frames by normalized RMS energy. It needs no
// model service and is the default classifier for both transports.
type EnergyClassifier struct {
	noiseGate float32
}

// NewEnergyClassifier creates an energy classifier with the given RMS
// noise gate (0 disables the gate).
func NewEnergyClassifier(noiseGate float32) *EnergyClassifier {
	return &EnergyClassifier{noiseGate: noiseGate}
}

// Probability implements Classifier. The score is the frame's RMS
// amplitude normalized to [0,1]; frames under the noise gate score zero.
func (e *EnergyClassifier) Probability(_ context.Context, frame []byte) (float32, error) {
	if len(frame) < 2 {
		return 0, nil
	}
	var sum float64
	count := len(frame) / 2
	for i := 0; i+1 < len(frame); i += 2 {
		s := float64(int16(frame[i]) | int16(frame[i+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(count)) / 32768.0
	if float32(rms) < e.noiseGate {
		return 0, nil
	}
	return float32(rms), nil
}
