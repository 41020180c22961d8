package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkbeefcake/vircadia/internal/audio"
	"github.com/mkbeefcake/vircadia/internal/metrics"
	"github.com/mkbeefcake/vircadia/internal/protocol"
)

// Session represents one audio source: a remote sender identified by
// its UDP address, the ring buffer its frames land in, and the most
// recently received spatial state.
//
// The ring itself is unsynchronized by contract; the session mutex is
// the external synchronization layered around it so the ingest path
// and the mix loop never touch the ring concurrently.
type Session struct {
	ID           string
	Addr         *net.UDPAddr
	StartTime    time.Time
	LastActivity time.Time

	ring *audio.Ring

	// Spatial state is sticky: headerless packets leave the previous
	// value in place.
	spatial    protocol.SpatialMetadata
	hasSpatial bool
	loopback   bool

	level float64 // RMS of the last mixed frame, set by the mix loop

	packets   uint64
	truncated uint64

	mu sync.RWMutex
}

// IngestResult reports what one packet did to the session
type IngestResult struct {
	Consumed          int  // header bytes plus one frame of audio
	HadMetadata       bool // packet carried a spatial header
	LoopbackRequested bool // bearing signaled loopback
	Overrun           bool // the write reset the ring
}

// Ingest decodes one incoming packet body and writes its audio frame
// into the session's ring buffer. Truncated payloads are rejected and
// counted; the caller logs and drops the packet.
func (s *Session) Ingest(data []byte) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastActivity = time.Now()
	s.packets++

	frame, err := protocol.ParseFrame(data, s.ring.FrameSize())
	if err != nil {
		s.truncated++
		return nil, err
	}

	result := &IngestResult{}

	if frame.Metadata != nil {
		s.spatial = *frame.Metadata
		s.hasSpatial = true
		s.loopback = frame.Metadata.LoopbackRequested
		result.HadMetadata = true
		result.LoopbackRequested = frame.Metadata.LoopbackRequested
	}

	overrunsBefore := s.ring.Overruns()

	n, err := s.ring.Write(frame.Audio)
	if err != nil {
		s.truncated++
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}

	result.Consumed = n
	if result.HadMetadata {
		result.Consumed += protocol.SpatialHeaderSize
	}
	result.Overrun = s.ring.Overruns() > overrunsBefore

	return result, nil
}

// PullFrame drains one frame from the session's ring into dst, which
// must hold at least one frame of samples. It owns the consumer-side
// policy: the started flag flips once the backlog exceeds one frame,
// and shouldMix reflects whether a full frame is available this
// cycle. Returns the attenuation gain and loopback flag alongside
// whether a frame was produced.
func (s *Session) PullFrame(dst []int16) (gain float32, loopback bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frameSize := s.ring.FrameSize()

	if !s.ring.Started() && s.ring.Backlog() > frameSize {
		s.ring.SetStarted(true)
	}

	shouldMix := s.ring.Started() && s.ring.Backlog() >= frameSize
	s.ring.SetShouldMix(shouldMix)

	if !shouldMix {
		return 0, false, false
	}

	s.ring.Peek(dst[:frameSize])
	s.ring.AdvanceReadCursor(frameSize)

	gain = 1.0
	if s.hasSpatial {
		gain = s.spatial.AttenuationRatio
	}

	return gain, s.loopback, true
}

// SetLevel records the source's output level for monitoring
func (s *Session) SetLevel(level float64) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

// Spatial returns the most recently received spatial metadata and
// whether any has arrived yet
func (s *Session) Spatial() (protocol.SpatialMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spatial, s.hasSpatial
}

// Loopback reports whether the sender currently requests loopback
func (s *Session) Loopback() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopback
}

// Ring exposes the session's buffer for diagnostics. Mutating calls
// belong to Ingest and PullFrame, which hold the session lock.
func (s *Session) Ring() *audio.Ring {
	return s.ring
}

// SessionInfo represents session state for monitoring and APIs
type SessionInfo struct {
	ID           string        `json:"id"`
	RemoteAddr   string        `json:"remote_addr"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	Packets      uint64        `json:"packets"`
	Truncated    uint64        `json:"truncated_packets"`

	Buffer audio.RingStats `json:"buffer"`

	Position    [3]float32 `json:"position"`
	Attenuation float32    `json:"attenuation"`
	Bearing     float32    `json:"bearing"`
	Loopback    bool       `json:"loopback"`
	Level       float64    `json:"level"`
}

// Info returns a snapshot of the session for monitoring
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:           s.ID,
		RemoteAddr:   s.Addr.String(),
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Duration:     time.Since(s.StartTime),
		Packets:      s.packets,
		Truncated:    s.truncated,
		Buffer:       s.ring.Stats(),
		Position:     s.spatial.Position,
		Attenuation:  s.spatial.AttenuationRatio,
		Bearing:      s.spatial.Bearing,
		Loopback:     s.loopback,
		Level:        s.level,
	}
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	RingCapacity int
	FrameSize    int
	Timeout      time.Duration
	MaxStreams   int
}

// Manager owns all active sessions, keyed by the sender's UDP
// address, and tears them down after a period of inactivity.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig
	metrics  *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(logger *slog.Logger, config ManagerConfig, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		config:   config,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// GetOrCreate returns the session for a remote address, creating it
// on the first packet from that sender. created reports whether this
// call created the session.
func (m *Manager) GetOrCreate(addr *net.UDPAddr) (session *Session, created bool, err error) {
	key := addr.String()

	m.mu.RLock()
	session, exists := m.sessions[key]
	m.mu.RUnlock()

	if exists {
		return session, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock
	if session, exists = m.sessions[key]; exists {
		return session, false, nil
	}

	if len(m.sessions) >= m.config.MaxStreams {
		if m.metrics != nil {
			m.metrics.RecordStreamRejected()
		}
		return nil, false, fmt.Errorf("stream limit reached (%d), rejecting %s", m.config.MaxStreams, key)
	}

	ring, err := audio.NewRing(m.config.RingCapacity, m.config.FrameSize)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create ring buffer: %w", err)
	}

	now := time.Now()
	session = &Session{
		ID:           uuid.NewString(),
		Addr:         addr,
		StartTime:    now,
		LastActivity: now,
		ring:         ring,
	}

	m.sessions[key] = session

	if m.metrics != nil {
		m.metrics.RecordStreamCreated()
		m.metrics.SetActiveStreams(len(m.sessions))
	}

	m.logger.Info("Created new stream session",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", key),
		slog.Int("ring_capacity", m.config.RingCapacity),
		slog.Int("frame_size", m.config.FrameSize),
	)

	return session, true, nil
}

// Get retrieves a session by remote address key
func (m *Manager) Get(addrKey string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[addrKey]
	return session, exists
}

// GetByID retrieves a session by its session ID
func (m *Manager) GetByID(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.ID == id {
			return session, true
		}
	}

	return nil, false
}

// ActiveCount returns the number of currently active sessions
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of all active sessions (for the mix loop and
// monitoring)
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// Remove tears down a session and releases its buffer
func (m *Manager) Remove(addrKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[addrKey]
	if !exists {
		return false
	}

	delete(m.sessions, addrKey)

	if m.metrics != nil {
		m.metrics.RecordStreamDestroyed(time.Since(session.StartTime).Seconds())
		m.metrics.SetActiveStreams(len(m.sessions))
	}

	m.logger.Info("Stream session removed",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", addrKey),
		slog.Duration("duration", time.Since(session.StartTime)),
		slog.Uint64("packets", session.packets),
		slog.Uint64("overruns", session.ring.Overruns()),
	)

	return true
}

// Stop gracefully stops the session manager
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.cancel()
	<-m.cleanup

	m.mu.Lock()
	remaining := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.logger.Info("Session manager stopped",
		slog.Int("sessions_released", remaining),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up
// expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for
// longer than the configured timeout
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for key, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.config.Timeout {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, key := range expired {
			m.Remove(key)
		}
	}
}
