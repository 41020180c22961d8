package audio

import (
	"testing"
)

// frameBytes builds a frame payload of n little-endian samples, each
// sample carrying its value offset by base
func frameBytes(n int, base int16) []byte {
	payload := make([]byte, n*bytesPerSample)
	for i := 0; i < n; i++ {
		v := base + int16(i)
		payload[2*i] = byte(v)
		payload[2*i+1] = byte(v >> 8)
	}
	return payload
}

func TestNewRing(t *testing.T) {
	ring, err := NewRing(10000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if ring.Capacity() != 10000 {
		t.Errorf("Expected capacity 10000, got %d", ring.Capacity())
	}

	if ring.FrameSize() != 1000 {
		t.Errorf("Expected frame size 1000, got %d", ring.FrameSize())
	}

	if ring.ReadCursor() != 0 {
		t.Errorf("Expected read cursor at 0, got %d", ring.ReadCursor())
	}

	if ring.Backlog() != 0 {
		t.Errorf("Expected zero backlog before first write, got %d", ring.Backlog())
	}

	if ring.Started() {
		t.Error("Expected ring not started at construction")
	}

	if ring.State() != RingFilling {
		t.Errorf("Expected filling state, got %s", ring.State())
	}
}

func TestNewRingValidation(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		frameSize int
	}{
		{"zero frame size", 1000, 0},
		{"negative frame size", 1000, -1},
		{"capacity below one frame", 500, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRing(tt.capacity, tt.frameSize); err == nil {
				t.Error("Expected construction error, got nil")
			}
		})
	}
}

func TestWriteShortPayload(t *testing.T) {
	ring, err := NewRing(1000, 100)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	payload := make([]byte, 100*bytesPerSample-1)
	if _, err := ring.Write(payload); err == nil {
		t.Error("Expected error for short payload, got nil")
	}

	if ring.Backlog() != 0 {
		t.Errorf("Rejected write must not advance cursors, backlog is %d", ring.Backlog())
	}
}

func TestBacklogGrowsByFrameSize(t *testing.T) {
	ring, err := NewRing(10000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	for i := 1; i <= 9; i++ {
		n, err := ring.Write(frameBytes(1000, 0))
		if err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}

		if n != 1000*bytesPerSample {
			t.Errorf("Write %d: expected %d bytes consumed, got %d", i, 1000*bytesPerSample, n)
		}

		if ring.Backlog() != i*1000 {
			t.Errorf("After write %d: expected backlog %d, got %d", i, i*1000, ring.Backlog())
		}
	}
}

func TestOverrunReset(t *testing.T) {
	// capacity=10000, frameSize=1000: nine writes fill to a backlog of
	// 9000 without incident; the tenth would exceed capacity-frameSize
	// and must reset the ring before proceeding.
	ring, err := NewRing(10000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	for i := 0; i < 9; i++ {
		if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	ring.SetStarted(true)

	if ring.Backlog() != 9000 {
		t.Fatalf("Expected backlog 9000 after nine writes, got %d", ring.Backlog())
	}

	if ring.Overruns() != 0 {
		t.Fatalf("Expected no overruns after nine writes, got %d", ring.Overruns())
	}

	staleCursor := ring.ReadCursor()

	if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
		t.Fatalf("Tenth write failed: %v", err)
	}

	if ring.Overruns() != 1 {
		t.Errorf("Expected 1 overrun, got %d", ring.Overruns())
	}

	if ring.Started() {
		t.Error("Expected started=false after overrun reset")
	}

	if ring.State() != RingFilling {
		t.Errorf("Expected filling state after overrun, got %s", ring.State())
	}

	// The reset relocated the read cursor to the start; the value
	// fetched before the write is no longer trustworthy.
	if ring.ReadCursor() != 0 {
		t.Errorf("Expected read cursor relocated to 0, got %d", ring.ReadCursor())
	}
	_ = staleCursor

	// The tenth frame itself was written after the reset
	if ring.Backlog() != 1000 {
		t.Errorf("Expected backlog 1000 after reset write, got %d", ring.Backlog())
	}
}

func TestOverrunResetDiscardsBufferedAudio(t *testing.T) {
	ring, err := NewRing(2500, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if _, err := ring.Write(frameBytes(1000, 100)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	ring.SetStarted(true)

	// Backlog would reach 2000 > capacity-frameSize=1500: reset, then write
	if _, err := ring.Write(frameBytes(1000, 200)); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	if ring.Overruns() != 1 {
		t.Fatalf("Expected overrun on second write, got %d overruns", ring.Overruns())
	}

	// Only the post-reset frame remains readable
	dst := make([]int16, 2000)
	n := ring.Peek(dst)
	if n != 1000 {
		t.Fatalf("Expected 1000 readable samples after reset, got %d", n)
	}

	if dst[0] != 200 {
		t.Errorf("Expected post-reset frame at buffer start, got sample %d", dst[0])
	}
}

func TestWriteWrapsMidFrame(t *testing.T) {
	// capacity is not a multiple of frameSize, so a frame eventually
	// straddles the end of storage and must split across the wrap.
	ring, err := NewRing(2500, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ring.AdvanceReadCursor(1000)

	if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ring.AdvanceReadCursor(500)

	// Write cursor sits at 2000; this frame covers [2000, 2500) and
	// wraps its tail into [0, 500).
	if _, err := ring.Write(frameBytes(1000, 5000)); err != nil {
		t.Fatalf("Wrapping write failed: %v", err)
	}

	if ring.Overruns() != 0 {
		t.Fatalf("Unexpected overrun during wraparound write")
	}

	// writeCursor + frameSize - capacity = 2000 + 1000 - 2500
	if ring.Backlog() != 1500 {
		t.Errorf("Expected backlog 1500 after wrap, got %d", ring.Backlog())
	}

	if ring.samples[2499] != 5000+499 {
		t.Errorf("Expected sample %d at end of storage, got %d", 5000+499, ring.samples[2499])
	}

	if ring.samples[0] != 5000+500 {
		t.Errorf("Expected frame tail to wrap to storage start, got %d", ring.samples[0])
	}
}

func TestWriteCursorWrapsAtCapacityBoundary(t *testing.T) {
	ring, err := NewRing(2000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ring.AdvanceReadCursor(1000)

	// Lands exactly on capacity and must wrap to the start
	if _, err := ring.Write(frameBytes(1000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if ring.writeCursor != 0 {
		t.Errorf("Expected write cursor wrapped to 0, got %d", ring.writeCursor)
	}
}

func TestPeekAcrossWrap(t *testing.T) {
	ring, err := NewRing(2500, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	ring.Write(frameBytes(1000, 0))
	ring.AdvanceReadCursor(1000)
	ring.Write(frameBytes(1000, 0))
	ring.AdvanceReadCursor(1000)
	ring.Write(frameBytes(1000, 7000)) // occupies [2000,2500) and [0,500)

	dst := make([]int16, 1000)
	n := ring.Peek(dst)
	if n != 1000 {
		t.Fatalf("Expected 1000 samples peeked, got %d", n)
	}

	for i, sample := range dst {
		if sample != 7000+int16(i) {
			t.Fatalf("Sample %d: expected %d, got %d", i, 7000+int16(i), sample)
		}
	}

	// Peek must not advance the cursor
	if ring.ReadCursor() != 2000 {
		t.Errorf("Expected read cursor unchanged at 2000, got %d", ring.ReadCursor())
	}
}

func TestPeekBoundedByBacklog(t *testing.T) {
	ring, err := NewRing(1000, 100)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	ring.Write(frameBytes(100, 0))

	dst := make([]int16, 500)
	if n := ring.Peek(dst); n != 100 {
		t.Errorf("Expected peek bounded to backlog of 100, got %d", n)
	}
}

func TestAdvanceReadCursorWraps(t *testing.T) {
	ring, err := NewRing(1000, 100)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	ring.AdvanceReadCursor(900)
	ring.AdvanceReadCursor(200)

	if ring.ReadCursor() != 100 {
		t.Errorf("Expected read cursor wrapped to 100, got %d", ring.ReadCursor())
	}
}

func TestSetReadCursorBounds(t *testing.T) {
	ring, err := NewRing(1000, 100)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if err := ring.SetReadCursor(999); err != nil {
		t.Errorf("Expected in-range cursor accepted: %v", err)
	}

	if err := ring.SetReadCursor(1000); err == nil {
		t.Error("Expected error for out-of-range cursor, got nil")
	}

	if err := ring.SetReadCursor(-1); err == nil {
		t.Error("Expected error for negative cursor, got nil")
	}
}

func TestStateTransitions(t *testing.T) {
	ring, err := NewRing(10000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	if ring.State() != RingFilling {
		t.Fatalf("Expected filling at construction, got %s", ring.State())
	}

	ring.Write(frameBytes(1000, 0))
	ring.Write(frameBytes(1000, 0))
	ring.SetStarted(true)

	if ring.State() != RingReady {
		t.Errorf("Expected ready after started flip, got %s", ring.State())
	}

	for i := 0; i < 10; i++ {
		ring.Write(frameBytes(1000, 0))
	}

	if ring.State() != RingFilling {
		t.Errorf("Expected filling again after overrun, got %s", ring.State())
	}
}

func TestStats(t *testing.T) {
	ring, err := NewRing(10000, 1000)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	ring.Write(frameBytes(1000, 0))
	ring.Write(frameBytes(1000, 0))
	ring.SetStarted(true)
	ring.SetShouldMix(true)

	stats := ring.Stats()

	if stats.Backlog != 2000 {
		t.Errorf("Expected backlog 2000, got %d", stats.Backlog)
	}

	if stats.TotalWrites != 2 {
		t.Errorf("Expected 2 total writes, got %d", stats.TotalWrites)
	}

	if !stats.Started || !stats.ShouldMix {
		t.Error("Expected started and should_mix in stats")
	}

	if stats.State != "ready" {
		t.Errorf("Expected state 'ready', got %q", stats.State)
	}
}

func TestWriteStoresLittleEndianSamples(t *testing.T) {
	ring, err := NewRing(100, 2)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	payload := []byte{0x34, 0x12, 0xFF, 0xFF} // 0x1234, -1
	if _, err := ring.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	dst := make([]int16, 2)
	ring.Peek(dst)

	if dst[0] != 0x1234 {
		t.Errorf("Expected sample 0x1234, got 0x%04x", dst[0])
	}

	if dst[1] != -1 {
		t.Errorf("Expected sample -1, got %d", dst[1])
	}
}
