package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mkbeefcake/vircadia/internal/config"
	"github.com/mkbeefcake/vircadia/internal/metrics"
	"github.com/mkbeefcake/vircadia/internal/stream"
)

// UDPServer receives audio packets from remote senders and routes
// them into per-source ring buffers
type UDPServer struct {
	conn      *net.UDPConn
	config    *config.ServerConfig
	logger    *slog.Logger
	streamMgr *stream.Manager
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetChan chan *incomingPacket

	packetsReceived uint64
	framesIngested  uint64
	truncatedFrames uint64
	overruns        uint64
	mu              sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance. m may be nil.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, streamMgr *stream.Manager, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		streamMgr:  streamMgr,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, 1000),
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	numWorkers := 4
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Conn returns the listening socket; the mix loop sends mixed frames
// back through it. Valid only after Start.
func (s *UDPServer) Conn() *net.UDPConn {
	return s.conn
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	close(s.packetChan)

	s.wg.Wait()

	s.mu.RLock()
	packetsReceived := s.packetsReceived
	framesIngested := s.framesIngested
	truncatedFrames := s.truncatedFrames
	s.mu.RUnlock()

	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", packetsReceived),
		slog.Uint64("frames_ingested", framesIngested),
		slog.Uint64("truncated_frames", truncatedFrames),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
			// Continue to receive packets
		}

		// Read deadline lets the loop notice cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordPacketReceived()
			s.metrics.SetQueueSize(len(s.packetChan))
		}

		// The receive buffer is reused, so the packet body is copied out
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
			// Packet queued successfully
		default:
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor processes packets from the packet channel
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChan {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket routes one packet into its sender's session
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	session, created, err := s.streamMgr.GetOrCreate(packet.remoteAddr)
	if err != nil {
		s.logger.Warn("Rejected packet from new sender",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	if created {
		s.logger.Info("First packet from sender",
			slog.String("session_id", session.ID),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("worker_id", workerID),
		)
	}

	result, err := session.Ingest(packet.data)
	if err != nil {
		s.mu.Lock()
		s.truncatedFrames++
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordTruncatedFrame()
		}

		s.logger.Error("Dropped packet",
			slog.String("session_id", session.ID),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.framesIngested++
	if result.Overrun {
		s.overruns++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFrameIngested()
		if result.Overrun {
			s.metrics.RecordBufferOverrun()
		}
		if result.LoopbackRequested {
			s.metrics.RecordLoopbackRequest()
		}
	}

	if result.Overrun {
		s.logger.Warn("Ring buffer overrun, stream reset",
			slog.String("session_id", session.ID),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("worker_id", workerID),
		)
	}

	s.logger.Debug("Packet processed",
		slog.String("session_id", session.ID),
		slog.Int("consumed", result.Consumed),
		slog.Bool("had_metadata", result.HadMetadata),
		slog.Bool("loopback", result.LoopbackRequested),
		slog.Int("worker_id", workerID),
	)
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived: s.packetsReceived,
		FramesIngested:  s.framesIngested,
		TruncatedFrames: s.truncatedFrames,
		Overruns:        s.overruns,
		ActiveStreams:   uint64(s.streamMgr.ActiveCount()),
		QueueSize:       uint64(len(s.packetChan)),
		QueueCapacity:   uint64(cap(s.packetChan)),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived uint64 `json:"packets_received"`
	FramesIngested  uint64 `json:"frames_ingested"`
	TruncatedFrames uint64 `json:"truncated_frames"`
	Overruns        uint64 `json:"overruns"`
	ActiveStreams   uint64 `json:"active_streams"`
	QueueSize       uint64 `json:"queue_size"`
	QueueCapacity   uint64 `json:"queue_capacity"`
}
