// Package audio validates and normalizes raw PCM16 frames arriving from
// clients. The wire format is fixed: little-endian 16-bit mono at 16 kHz.
package audio

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	SampleRate     = 16000
	BytesPerSample = 2
	Channels       = 1

	// DefaultPeakTarget is the amplitude normalization aims for.
	DefaultPeakTarget = 30000
	// DefaultMaxGain caps amplification to avoid amplifying noise floors
	// into audible artifacts.
	DefaultMaxGain = 3.0
)

var ErrOddLength = errors.New("pcm16 payload has odd byte length")

// ValidatePCM16 rejects payloads that cannot be PCM16: an odd byte count
// means a torn sample. Empty frames are valid and simply carry no audio.
func ValidatePCM16(payload []byte) error {
	if len(payload)%BytesPerSample != 0 {
		return ErrOddLength
	}
	return nil
}

// Duration reports how much audio time n payload bytes represent.
func Duration(n int) time.Duration {
	samples := n / BytesPerSample / Channels
	return time.Duration(samples) * time.Second / SampleRate
}

// Normalize applies peak-based gain toward target amplitude, capped at
// maxGain, clipping to the int16 range. Gain is recomputed per frame with no
// cross-frame state, and quiet-only attenuation never happens: frames already
// at or above target pass through untouched. The input slice is modified in
// place and returned.
func Normalize(payload []byte, target int, maxGain float64) []byte {
	if len(payload) < BytesPerSample || len(payload)%BytesPerSample != 0 {
		return payload
	}
	if target <= 0 {
		target = DefaultPeakTarget
	}
	if maxGain <= 1 {
		maxGain = DefaultMaxGain
	}

	peak := 0
	for i := 0; i+1 < len(payload); i += BytesPerSample {
		s := int(int16(binary.LittleEndian.Uint16(payload[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return payload
	}

	gain := float64(target) / float64(peak)
	if gain > maxGain {
		gain = maxGain
	}
	if gain <= 1 {
		return payload
	}

	for i := 0; i+1 < len(payload); i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(payload[i:]))) * gain
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(payload[i:], uint16(int16(s)))
	}
	return payload
}
