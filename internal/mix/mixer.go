package mix

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mkbeefcake/vircadia/internal/audio"
	"github.com/mkbeefcake/vircadia/internal/metrics"
	"github.com/mkbeefcake/vircadia/internal/stream"
)

// PacketWriter sends one mixed frame back to a client. The UDP server
// connection satisfies this.
type PacketWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Config contains mix loop configuration
type Config struct {
	SampleRate int
	FrameSize  int           // samples per mix cycle, matches the packet frame size
	Interval   time.Duration // cycle cadence; derived from FrameSize/SampleRate when zero
	RecordPath string        // optional WAV capture of the mixed output
}

// Mixer is the consumer side of every ring buffer: each cycle it
// drains one frame from every session with enough backlog, sums the
// attenuated contributions, and sends each contributor the mix. A
// contributor normally receives the mix minus its own audio; one that
// requested loopback receives the full mix, itself included.
type Mixer struct {
	config   Config
	sessions *stream.Manager
	out      PacketWriter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	recorded []int16
	cycles   uint64
	mu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// contribution is one session's frame for the current cycle, already
// scaled by its attenuation ratio
type contribution struct {
	session  *stream.Session
	scaled   []int32
	loopback bool
}

// NewMixer creates a mix loop over the given sessions. metrics may be
// nil.
func NewMixer(config Config, sessions *stream.Manager, out PacketWriter, logger *slog.Logger, m *metrics.Metrics) *Mixer {
	if config.Interval <= 0 {
		config.Interval = time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mixer{
		config:   config,
		sessions: sessions,
		out:      out,
		logger:   logger,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the mix loop
func (m *Mixer) Start() {
	m.wg.Add(1)
	go m.run()

	m.logger.Info("Mix loop started",
		slog.Int("frame_size", m.config.FrameSize),
		slog.Duration("interval", m.config.Interval),
	)
}

// Stop halts the mix loop and flushes the recording, if any
func (m *Mixer) Stop() error {
	m.cancel()
	m.wg.Wait()

	m.logger.Info("Mix loop stopped", slog.Uint64("cycles", m.Cycles()))

	return m.flushRecording()
}

func (m *Mixer) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle()
		}
	}
}

// RunCycle executes one mix cycle: pull, sum, send
func (m *Mixer) RunCycle() {
	sessions := m.sessions.All()

	contributions := make([]contribution, 0, len(sessions))
	for _, s := range sessions {
		frame := make([]int16, m.config.FrameSize)

		gain, loopback, ok := s.PullFrame(frame)
		if !ok {
			s.SetLevel(0)
			continue
		}

		scaled := make([]int32, m.config.FrameSize)
		for i, sample := range frame {
			scaled[i] = int32(float32(sample) * gain)
		}

		s.SetLevel(rmsLevel(scaled))

		contributions = append(contributions, contribution{
			session:  s,
			scaled:   scaled,
			loopback: loopback,
		})
	}

	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordMixCycle(len(contributions))
	}

	if len(contributions) == 0 {
		return
	}

	sum := make([]int32, m.config.FrameSize)
	for _, c := range contributions {
		for i, v := range c.scaled {
			sum[i] += v
		}
	}

	master := make([]int16, m.config.FrameSize)
	for i, v := range sum {
		master[i] = clampSample(v)
	}

	if m.config.RecordPath != "" {
		m.mu.Lock()
		m.recorded = append(m.recorded, master...)
		m.mu.Unlock()
	}

	for _, c := range contributions {
		frame := master
		if !c.loopback {
			// Strip the contributor's own audio from its copy of the mix
			frame = make([]int16, m.config.FrameSize)
			for i := range frame {
				frame[i] = clampSample(sum[i] - c.scaled[i])
			}
		}

		if _, err := m.out.WriteToUDP(pcmBytes(frame), c.session.Addr); err != nil {
			m.logger.Warn("Failed to send mixed frame",
				slog.String("session_id", c.session.ID),
				slog.String("remote_addr", c.session.Addr.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Cycles returns the number of mix cycles executed
func (m *Mixer) Cycles() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycles
}

// flushRecording writes the accumulated mixed output as a WAV file
func (m *Mixer) flushRecording() error {
	if m.config.RecordPath == "" {
		return nil
	}

	m.mu.RLock()
	recorded := m.recorded
	m.mu.RUnlock()

	if len(recorded) == 0 {
		return nil
	}

	data, err := audio.EncodeWAV(recorded, m.config.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode mix recording: %w", err)
	}

	if err := os.WriteFile(m.config.RecordPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write mix recording: %w", err)
	}

	m.logger.Info("Mix recording written",
		slog.String("path", m.config.RecordPath),
		slog.Int("samples", len(recorded)),
	)

	return nil
}

// clampSample saturates a 32-bit mix sum into the int16 range
func clampSample(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// pcmBytes serializes samples as little-endian PCM-16
func pcmBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[2*i] = byte(s)
		b[2*i+1] = byte(s >> 8)
	}
	return b
}

// rmsLevel computes the RMS level of a scaled frame, normalized to
// the int16 range
func rmsLevel(frame []int32) float64 {
	if len(frame) == 0 {
		return 0
	}

	var energy float64
	for _, v := range frame {
		energy += float64(v) * float64(v)
	}

	rms := math.Sqrt(energy / float64(len(frame)))

	level := rms / float64(math.MaxInt16)
	if level > 1 {
		level = 1
	}

	return level
}
