package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cznic/mathutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/internal/metrics"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/responder"
)

const (
	DefaultPort        = 9999
	DefaultBindAddress = "0.0.0.0"
	DefaultBufferSize  = 4096
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	maxWorkers         = 64
)

var (
	ErrClosed         = errors.New("server is closed")
	ErrAlreadyStarted = errors.New("server is already started")
)

type State int32

const (
	StateIdle State = iota
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

type Config struct {
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`
	BufferSize  int    `json:"buffer_size"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	// DryRun builds and logs replies without sending them.
	DryRun bool `json:"dry_run"`
}

func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	c.Workers = mathutil.Clamp(c.Workers, 1, maxWorkers)
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	return nil
}

// ReplyHook observes every reply built for a poll. sent is false when
// responses are disabled or the write failed.
type ReplyHook func(addr *net.UDPAddr, reply responder.Reply, sent bool)

// RequestHook observes every datagram after classification. err is nil
// for answered polls and one of the responder sentinel errors otherwise.
type RequestHook func(addr *net.UDPAddr, err error)

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithOnReply(h ReplyHook) Option {
	return func(s *Server) { s.onReply = h }
}

func WithOnRequest(h RequestHook) Option {
	return func(s *Server) { s.onRequest = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type packet struct {
	data []byte
	addr *net.UDPAddr
}

type Server struct {
	cfg       Config
	handler   *responder.Handler
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	onReply   ReplyHook
	onRequest RequestHook
	now       func() time.Time

	mu      sync.Mutex
	state   State
	conn    *net.UDPConn
	packets chan packet
	done    chan struct{}
	stopped chan struct{}
	recvWG  sync.WaitGroup
	workWG  sync.WaitGroup

	dryRun atomic.Bool

	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	pollsAnswered   atomic.Uint64
	repliesSent     atomic.Uint64
	sendErrors      atomic.Uint64
	queueOverflows  atomic.Uint64
}

// New creates an idle server. provider is consulted once per answered poll.
func New(cfg Config, provider outlet.Provider, opts ...Option) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:      cfg,
		logger:   log.Logger,
		now:      time.Now,
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dryRun.Store(cfg.DryRun)
	s.handler = responder.NewHandler(provider,
		responder.WithLogger(s.logger),
		responder.WithClock(s.now),
	)
	return s
}

// Start binds the UDP socket and begins serving. A bind failure is returned
// as is and leaves the server idle with no socket.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateBound:
		return ErrAlreadyStarted
	case StateClosed:
		return ErrClosed
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}

	s.conn = conn
	s.packets = make(chan packet, s.cfg.QueueSize)
	s.done = make(chan struct{})
	s.state = StateBound

	for i := 0; i < s.cfg.Workers; i++ {
		s.workWG.Add(1)
		go s.worker(i)
	}
	s.recvWG.Add(1)
	go s.receiveLoop()

	s.logger.Info().
		Str("address", conn.LocalAddr().String()).
		Int("workers", s.cfg.Workers).
		Bool("dry_run", s.dryRun.Load()).
		Msg("UDP server started")
	return nil
}

// Stop shuts the listener down. Queued datagrams are finished first; once
// Stop returns nothing else is processed. Later calls wait for the first
// one to finish and return nil.
func (s *Server) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		<-s.stopped
		return nil
	case StateIdle:
		s.state = StateClosed
		close(s.stopped)
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()
	defer close(s.stopped)

	close(s.done)
	// unblock the pending read
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to set read deadline")
	}
	s.recvWG.Wait()
	close(s.packets)
	s.workWG.Wait()

	err := conn.Close()
	stats := s.Statistics()
	s.logger.Info().
		Uint64("packets_received", stats.PacketsReceived).
		Uint64("polls_answered", stats.PollsAnswered).
		Uint64("replies_sent", stats.RepliesSent).
		Msg("UDP server stopped")
	if err != nil {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	return nil
}

func (s *Server) receiveLoop() {
	defer s.recvWG.Done()

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("failed to read UDP datagram")
			continue
		}

		s.packetsReceived.Add(1)
		s.metrics.RecordPacketReceived()

		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.packets <- packet{data: data, addr: addr}:
		default:
			s.queueOverflows.Add(1)
			s.metrics.RecordQueueOverflow()
			s.logger.Warn().
				Str("remote_addr", addr.String()).
				Int("size", n).
				Msg("processing queue full, dropping datagram")
		}
	}
}

func (s *Server) worker(id int) {
	defer s.workWG.Done()
	for p := range s.packets {
		s.handlePacket(p, id)
	}
}

func (s *Server) handlePacket(p packet, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("remote_addr", p.addr.String()).
				Int("worker_id", workerID).
				Msg("recovered while handling datagram")
		}
	}()

	start := time.Now()
	replies, err := s.handler.Handle(p.data)
	if s.onRequest != nil {
		s.onRequest(p.addr, err)
	}
	if err != nil {
		s.packetsDropped.Add(1)
		s.metrics.RecordDropped(responder.Reason(err))
		s.logger.Debug().
			Err(err).
			Str("remote_addr", p.addr.String()).
			Int("size", len(p.data)).
			Msg("ignoring datagram")
		return
	}

	s.pollsAnswered.Add(1)
	s.metrics.RecordPollAnswered(len(replies), time.Since(start).Seconds())
	s.logger.Debug().
		Str("remote_addr", p.addr.String()).
		Int("outlets", len(replies)).
		Msg("discovery poll received")

	dryRun := s.dryRun.Load()
	for _, r := range replies {
		s.metrics.SetOutletPower(r.Outlet.ID, r.Outlet.Power)
		if dryRun {
			s.logger.Debug().
				Str("outlet", r.Outlet.ID).
				RawJSON("response", r.Document).
				Msg("responses disabled, not sending")
			s.notifyReply(p.addr, r, false)
			continue
		}

		_, err := s.conn.WriteToUDP(r.Payload, p.addr)
		s.metrics.RecordSend(err)
		if err != nil {
			s.sendErrors.Add(1)
			s.logger.Error().
				Err(err).
				Str("outlet", r.Outlet.ID).
				Str("remote_addr", p.addr.String()).
				Msg("failed to send reply")
			s.notifyReply(p.addr, r, false)
			continue
		}
		s.repliesSent.Add(1)
		s.logger.Debug().
			Str("outlet", r.Outlet.ID).
			RawJSON("response", r.Document).
			Msg("sent reply")
		s.notifyReply(p.addr, r, true)
	}
}

func (s *Server) notifyReply(addr *net.UDPAddr, r responder.Reply, sent bool) {
	if s.onReply != nil {
		s.onReply(addr, r, sent)
	}
}

// SetRespond turns sending replies on or off while the server runs.
func (s *Server) SetRespond(respond bool) {
	s.dryRun.Store(!respond)
}

func (s *Server) Responding() bool {
	return !s.dryRun.Load()
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound local address, or nil when the server is not bound.
func (s *Server) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBound || s.conn == nil {
		return nil
	}
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

type Statistics struct {
	State           string `json:"state"`
	Responding      bool   `json:"responding"`
	PacketsReceived uint64 `json:"packets_received"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	PollsAnswered   uint64 `json:"polls_answered"`
	RepliesSent     uint64 `json:"replies_sent"`
	SendErrors      uint64 `json:"send_errors"`
	QueueOverflows  uint64 `json:"queue_overflows"`
}

func (s *Server) Statistics() Statistics {
	return Statistics{
		State:           s.State().String(),
		Responding:      s.Responding(),
		PacketsReceived: s.packetsReceived.Load(),
		PacketsDropped:  s.packetsDropped.Load(),
		PollsAnswered:   s.pollsAnswered.Load(),
		RepliesSent:     s.repliesSent.Load(),
		SendErrors:      s.sendErrors.Load(),
		QueueOverflows:  s.queueOverflows.Load(),
	}
}
