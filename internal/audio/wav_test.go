package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	// 440Hz sine wave, 0.1 seconds at 22050 Hz
	sampleRate := 22050
	numSamples := sampleRate / 10

	samples := make([]int16, numSamples)
	for i := range samples {
		phase := 2 * math.Pi * 440 * float64(i) / float64(sampleRate)
		samples[i] = int16(16383 * math.Sin(phase))
	}

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("Missing RIFF/WAVE markers in encoded data")
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Failed to decode WAV: %v", err)
	}

	if rate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, rate)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("Sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, 22050); err == nil {
		t.Error("Expected error for empty samples, got nil")
	}

	if _, err := EncodeWAV([]int16{0, 1, 2}, 0); err == nil {
		t.Error("Expected error for zero sample rate, got nil")
	}
}

func TestDecodeWAVValidation(t *testing.T) {
	if _, _, err := DecodeWAV(make([]byte, 10)); err == nil {
		t.Error("Expected error for truncated data, got nil")
	}

	garbage := make([]byte, 64)
	if _, _, err := DecodeWAV(garbage); err == nil {
		t.Error("Expected error for non-WAV data, got nil")
	}
}
