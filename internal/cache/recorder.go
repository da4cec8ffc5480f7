package cache

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/pkg/responder"
)

// Recorder aggregates requests in memory and periodically merges them
// into a Cache, so the receive path never waits on storage.
type Recorder struct {
	cache   Cache[Requester]
	session uuid.UUID
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*Requester

	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewRecorder(c Cache[Requester], session uuid.UUID) *Recorder {
	return &Recorder{
		cache:   c,
		session: session,
		logger:  log.Logger,
		now:     time.Now,
		pending: make(map[string]*Requester),
	}
}

func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// Observe has the server.RequestHook signature.
func (r *Recorder) Observe(addr *net.UDPAddr, err error) {
	if addr == nil {
		return
	}
	host := addr.IP.String()
	key := net.JoinHostPort(host, strconv.Itoa(addr.Port))
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[key]
	if !ok {
		req = &Requester{
			Host:      host,
			Port:      addr.Port,
			Session:   r.session.String(),
			FirstSeen: now,
		}
		r.pending[key] = req
	}
	req.LastSeen = now
	if err != nil {
		req.Dropped++
		req.LastReason = responder.Reason(err)
	} else {
		req.Polls++
	}
}

// Flush writes everything observed since the last flush.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	batch := make([]Requester, 0, len(r.pending))
	for _, req := range r.pending {
		batch = append(batch, *req)
	}
	r.pending = make(map[string]*Requester)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return r.cache.Insert(batch...)
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(); err != nil {
				r.logger.Error().Err(err).Msg("failed to flush requester cache")
			}
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.logger.Error().Err(err).Msg("failed to flush requester cache")
			}
		}
	}
}

// Start runs the periodic flush in the background until Stop.
func (r *Recorder) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.stopped = make(chan struct{})
	go func() {
		defer close(r.stopped)
		r.Run(ctx, interval)
	}()
}

// Stop ends the background flush and writes whatever is still pending.
// Stop the server feeding Observe first or its last requests are lost.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.stopped
	r.cancel = nil
}
