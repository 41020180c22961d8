package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire format constants
const (
	// Spatial header layout: 1 reserved byte, 3 float32 position
	// coordinates, 1 attenuation byte, 1 float32 bearing
	ReservedSize    = 1
	PositionSize    = 12
	AttenuationSize = 1
	BearingSize     = 4

	SpatialHeaderSize = ReservedSize + PositionSize + AttenuationSize + BearingSize // 18 bytes

	// PCM-16 audio payload
	BytesPerSample = 2

	// Bearings are transmitted in [-180, 180]. Anything outside that
	// range is the sender signaling a loopback request; the true
	// bearing is recovered by cancelling the loopback offset.
	MaxBearing = 180

	loopbackBearingOffset = 307
)

// SpatialMetadata carries the per-packet spatial parameters decoded
// from the header. It has no identity beyond "most recently received";
// each headered packet fully replaces the previous value.
type SpatialMetadata struct {
	Position          [3]float32 // x, y, z world coordinates
	AttenuationRatio  float32    // [0, 1], decoded from a single byte
	Bearing           float32    // [-180, 180] after loopback correction
	LoopbackRequested bool       // derived from the raw bearing range
}

// Frame is the result of parsing one incoming packet body.
// Metadata is nil when the packet carried no spatial header, in which
// case the caller keeps whatever metadata it last received.
type Frame struct {
	Metadata *SpatialMetadata
	Audio    []byte // exactly frameSize * BytesPerSample bytes
}

// HasSpatialHeader reports whether a packet of the given length
// carries a spatial header. A packet carries metadata if and only if
// it is larger than a bare audio frame.
func HasSpatialHeader(packetLen, frameSize int) bool {
	return packetLen > frameSize*BytesPerSample
}

// ParseFrame splits an incoming packet body into its spatial header
// (if present) and audio payload. frameSize is the fixed number of
// samples per packet for the receiving buffer.
//
// The audio payload must hold at least frameSize samples after any
// header is stripped; shorter input is a caller contract violation
// and is rejected rather than zero-padded.
func ParseFrame(data []byte, frameSize int) (*Frame, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	audioBytes := frameSize * BytesPerSample
	frame := &Frame{}
	audio := data

	if HasSpatialHeader(len(data), frameSize) {
		meta, err := DecodeSpatialHeader(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode spatial header: %w", err)
		}
		frame.Metadata = meta
		audio = data[SpatialHeaderSize:]
	}

	if len(audio) < audioBytes {
		return nil, fmt.Errorf("audio payload too short: expected %d bytes, got %d", audioBytes, len(audio))
	}

	frame.Audio = audio[:audioBytes]
	return frame, nil
}

// DecodeSpatialHeader decodes the fixed 18-byte spatial header at the
// start of data. It never fails on well-formed input; the only error
// is insufficient length.
func DecodeSpatialHeader(data []byte) (*SpatialMetadata, error) {
	if len(data) < SpatialHeaderSize {
		return nil, fmt.Errorf("spatial header too short: expected %d bytes, got %d", SpatialHeaderSize, len(data))
	}

	meta := &SpatialMetadata{}
	offset := ReservedSize // skip the reserved byte

	for i := 0; i < 3; i++ {
		meta.Position[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	meta.AttenuationRatio = float32(data[offset]) / 255.0
	offset++

	rawBearing := math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
	meta.Bearing, meta.LoopbackRequested = NormalizeBearing(rawBearing)

	return meta, nil
}

// NormalizeBearing applies the loopback sideband policy to a raw
// bearing value. A bearing outside [-180, 180] means the sender wants
// its own audio looped back; the offset it added to signal that is
// cancelled here. The offset constant and sign logic must match what
// senders apply, so they are fixed.
func NormalizeBearing(raw float32) (bearing float32, loopback bool) {
	if raw > MaxBearing {
		return raw - loopbackBearingOffset, true
	}
	if raw < -MaxBearing {
		return raw + loopbackBearingOffset, true
	}
	return raw, false
}

// String returns a human-readable representation of the metadata
func (m *SpatialMetadata) String() string {
	return fmt.Sprintf("SpatialMetadata{Position:[%.2f %.2f %.2f], Attenuation:%.3f, Bearing:%.1f, Loopback:%t}",
		m.Position[0], m.Position[1], m.Position[2], m.AttenuationRatio, m.Bearing, m.LoopbackRequested)
}

// String returns a human-readable representation of the frame
func (f *Frame) String() string {
	if f.Metadata == nil {
		return fmt.Sprintf("Frame{Headerless, AudioLen:%d}", len(f.Audio))
	}
	return fmt.Sprintf("Frame{%s, AudioLen:%d}", f.Metadata, len(f.Audio))
}
