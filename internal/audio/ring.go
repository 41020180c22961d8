package audio

import (
	"fmt"
)

const bytesPerSample = 2

// RingState is the buffer's lifecycle state. A ring starts out
// Filling, becomes Ready once the consumer flips it started, and
// drops back to Filling when a write overruns the reader.
type RingState uint8

const (
	RingFilling RingState = iota
	RingReady
)

// Ring is a fixed-capacity circular store of PCM-16 samples. A
// network producer writes one frame per packet at the write cursor;
// a playback consumer drains samples from the read cursor.
//
// Ring performs no internal locking: it assumes exactly one writer
// and one reader. Callers sharing a ring across more goroutines must
// synchronize externally. A write that detects an overrun silently
// resets both cursors to the start, so the reader must re-fetch the
// read cursor every cycle and never cache it across a write.
type Ring struct {
	capacity  int // total sample slots
	frameSize int // samples per write, fixed at construction

	samples []int16

	writeCursor int // next write position; -1 until the first write
	readCursor  int // next sample to be consumed

	started   bool
	shouldMix bool
	state     RingState

	totalWrites uint64
	overruns    uint64
}

// RingStats is a snapshot of ring state for monitoring
type RingStats struct {
	Capacity    int    `json:"capacity_samples"`
	FrameSize   int    `json:"frame_size_samples"`
	Backlog     int    `json:"backlog_samples"`
	Started     bool   `json:"started"`
	ShouldMix   bool   `json:"should_mix"`
	State       string `json:"state"`
	TotalWrites uint64 `json:"total_writes"`
	Overruns    uint64 `json:"overruns"`
}

// NewRing creates a ring buffer holding capacity samples, written to
// in fixed frames of frameSize samples.
func NewRing(capacity, frameSize int) (*Ring, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if capacity < frameSize {
		return nil, fmt.Errorf("capacity (%d) must be at least one frame (%d)", capacity, frameSize)
	}

	return &Ring{
		capacity:    capacity,
		frameSize:   frameSize,
		samples:     make([]int16, capacity),
		writeCursor: -1,
		readCursor:  0,
		state:       RingFilling,
	}, nil
}

// Write copies exactly one frame of little-endian PCM-16 samples from
// payload into the ring at the write cursor and advances it by the
// frame size, wrapping at capacity. Returns the number of payload
// bytes consumed.
//
// If the pending write would push the backlog past capacity−frameSize
// the ring resets: both cursors return to the start, started flips
// false and all buffered audio is discarded. The reset is deliberate;
// stale samples never play at the cost of an audible discontinuity.
func (r *Ring) Write(payload []byte) (int, error) {
	frameBytes := r.frameSize * bytesPerSample
	if len(payload) < frameBytes {
		return 0, fmt.Errorf("payload too short: expected %d bytes, got %d", frameBytes, len(payload))
	}

	if r.writeCursor < 0 {
		r.writeCursor = 0
	} else if r.Backlog()+r.frameSize > r.capacity-r.frameSize {
		r.writeCursor = 0
		r.readCursor = 0
		r.started = false
		r.shouldMix = false
		r.state = RingFilling
		r.overruns++
	}

	pos := r.writeCursor
	for i := 0; i < r.frameSize; i++ {
		r.samples[pos] = int16(payload[2*i]) | int16(payload[2*i+1])<<8
		pos++
		if pos == r.capacity {
			pos = 0
		}
	}
	r.writeCursor = pos
	r.totalWrites++

	return frameBytes, nil
}

// Backlog returns the number of unread samples sitting between the
// write and read cursors, normalized for wraparound. It is zero
// before the first write.
func (r *Ring) Backlog() int {
	if r.writeCursor < 0 {
		return 0
	}

	diff := r.writeCursor - r.readCursor
	if diff < 0 {
		diff += r.capacity
	}

	return diff
}

// ReadCursor returns the current read position. An overrun reset may
// relocate it at any write boundary, so consumers must call this
// every cycle rather than caching the value.
func (r *Ring) ReadCursor() int {
	return r.readCursor
}

// SetReadCursor repositions the read cursor. This is the only way a
// consumer mutates ring state directly.
func (r *Ring) SetReadCursor(pos int) error {
	if pos < 0 || pos >= r.capacity {
		return fmt.Errorf("read cursor out of range: %d (capacity %d)", pos, r.capacity)
	}

	r.readCursor = pos
	return nil
}

// AdvanceReadCursor moves the read cursor forward by n samples,
// wrapping at capacity. The consumer applies the same modulo
// discipline the write cursor uses.
func (r *Ring) AdvanceReadCursor(n int) {
	r.readCursor = (r.readCursor + n%r.capacity + r.capacity) % r.capacity
}

// Peek copies up to len(dst) unread samples starting at the read
// cursor into dst without advancing it. Returns the number of samples
// copied, bounded by the current backlog.
func (r *Ring) Peek(dst []int16) int {
	n := r.Backlog()
	if n > len(dst) {
		n = len(dst)
	}

	pos := r.readCursor
	for i := 0; i < n; i++ {
		dst[i] = r.samples[pos]
		pos++
		if pos == r.capacity {
			pos = 0
		}
	}

	return n
}

// Started reports whether enough audio has been buffered for playback
// to begin. The consumer owns the flip to true; any overrun flips it
// back to false.
func (r *Ring) Started() bool {
	return r.started
}

// SetStarted marks the ring ready (or not) for playback
func (r *Ring) SetStarted(started bool) {
	r.started = started
	if started {
		r.state = RingReady
	} else {
		r.state = RingFilling
	}
}

// ShouldMix reports whether this ring currently contributes to the
// output mix. The flag is owned by the consumer.
func (r *Ring) ShouldMix() bool {
	return r.shouldMix
}

// SetShouldMix records the consumer's mix decision for this cycle
func (r *Ring) SetShouldMix(shouldMix bool) {
	r.shouldMix = shouldMix
}

// State returns the ring's lifecycle state
func (r *Ring) State() RingState {
	return r.state
}

// Capacity returns the total sample slots in the ring
func (r *Ring) Capacity() int {
	return r.capacity
}

// FrameSize returns the fixed number of samples per write
func (r *Ring) FrameSize() int {
	return r.frameSize
}

// Overruns returns how many times a write has reset the ring
func (r *Ring) Overruns() uint64 {
	return r.overruns
}

// TotalWrites returns the number of frames written over the ring's lifetime
func (r *Ring) TotalWrites() uint64 {
	return r.totalWrites
}

// Stats returns a snapshot of ring state for monitoring
func (r *Ring) Stats() RingStats {
	return RingStats{
		Capacity:    r.capacity,
		FrameSize:   r.frameSize,
		Backlog:     r.Backlog(),
		Started:     r.started,
		ShouldMix:   r.shouldMix,
		State:       r.state.String(),
		TotalWrites: r.totalWrites,
		Overruns:    r.overruns,
	}
}

// String returns a human-readable state name
func (s RingState) String() string {
	switch s {
	case RingFilling:
		return "filling"
	case RingReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}
