package binlog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tamago-contrib/binlog/frame"
	"github.com/tamago-contrib/binlog/link"
)

// Handler processes a decoded payload for a registered port. It runs
// on the server's worker goroutine and must not block indefinitely
// (spec.md §4.6).
type Handler func(payload []byte)

type serverState int

const (
	stateSeekingSOF serverState = iota
	stateInFrame
)

// blockingRx is the single in-flight Rx call's wait slot.
type blockingRx struct {
	port int
	buf  []byte
	done chan int // delivers the copied length; closed/unused on cancel
}

// Server runs the RX-side state machine described in spec.md §4.6:
// de-frame, demultiplex by port, dispatch to a registered handler or
// wake a blocking Rx caller. One Server owns exactly one worker
// goroutine, started by Run.
type Server struct {
	cfg  Config
	link link.Link
	tx   *Transport // for pause/resume TX gating
	log  *zap.Logger

	watchdog    func()
	onFirstRx   func()
	firstRxSeen bool

	mu       sync.Mutex
	handlers map[int]Handler
	blocking *blockingRx

	state     serverState
	assembly  []byte
	overrun   bool
	paused    bool
}

// NewServer wires a Server to lk and (optionally) tx for idle-pause TX
// gating. logger and watchdog may be nil.
func NewServer(cfg Config, lk link.Link, tx *Transport, logger *zap.Logger, watchdog func()) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if watchdog == nil {
		watchdog = func() {}
	}
	return &Server{
		cfg:      cfg,
		link:     lk,
		tx:       tx,
		log:      logger,
		watchdog: watchdog,
		handlers: make(map[int]Handler),
	}
}

// SetOnFirstFrame installs a callback fired once, the first time any
// frame is successfully decoded from the link (spec.md §6's device-info
// trigger).
func (s *Server) SetOnFirstFrame(f func()) {
	s.mu.Lock()
	s.onFirstRx = f
	s.mu.Unlock()
}

// Register sets the handler for port. It is only safe to call before
// Run starts, or from the handler goroutine itself; the port table is
// otherwise read-only once the worker is running (spec.md §5).
func (s *Server) Register(port int, h Handler) error {
	if port < 0 || port > MaxPort {
		return ErrInvalidPort
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handlers) >= s.cfg.MaxInPorts {
		return ErrInvalidPort
	}
	s.handlers[port] = h
	return nil
}

// Rx blocks until a frame arrives on port, or ctx is done. It is an
// error (ErrBusy, the host-side stand-in for "fatal: concurrent rx") to
// call it while another Rx is outstanding.
func (s *Server) Rx(ctx context.Context, port int, buf []byte) (int, error) {
	s.mu.Lock()
	if s.blocking != nil {
		s.mu.Unlock()
		return 0, ErrBusy
	}
	slot := &blockingRx{port: port, buf: buf, done: make(chan int, 1)}
	s.blocking = slot
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.blocking == slot {
			s.blocking = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case n := <-slot.done:
		return n, nil
	}
}

// Run drives the RX worker loop until ctx is cancelled or the link
// returns a non-timeout error.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.state = stateSeekingSOF
	s.assembly = s.assembly[:0]
	s.overrun = false
	s.mu.Unlock()

	readBuf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rctx, cancel := context.WithTimeout(ctx, s.cfg.IdleTimeout)
		n, err := s.link.Read(rctx, readBuf)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.onIdleTimeout()
				continue
			}
			return err
		}

		s.onActivity()
		s.feed(readBuf[:n])
	}
}

func (s *Server) onIdleTimeout() {
	s.watchdog()
	s.mu.Lock()
	wasPaused := s.paused
	s.paused = true
	s.mu.Unlock()
	if !wasPaused && s.tx != nil {
		s.tx.Suspend()
	}
}

func (s *Server) onActivity() {
	s.mu.Lock()
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()
	if wasPaused && s.tx != nil {
		s.tx.Resume()
	}
}

// feed runs the byte-level SEEKING_SOF/IN_FRAME state machine over
// newly arrived bytes.
func (s *Server) feed(data []byte) {
	for _, b := range data {
		s.mu.Lock()
		state := s.state
		s.mu.Unlock()

		switch state {
		case stateSeekingSOF:
			if b == frame.Sentinel {
				continue
			}
			s.mu.Lock()
			s.state = stateInFrame
			s.assembly = s.assembly[:0]
			s.overrun = false
			s.mu.Unlock()
			s.appendAssembly(b)

		case stateInFrame:
			if b == frame.Sentinel {
				s.completeFrame()
				continue
			}
			s.appendAssembly(b)
		}
	}
}

func (s *Server) appendAssembly(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.assembly) >= s.cfg.MaxPacketSize {
		s.overrun = true
		return
	}
	s.assembly = append(s.assembly, b)
}

func (s *Server) completeFrame() {
	s.mu.Lock()
	stuffed := append([]byte(nil), s.assembly...)
	overrun := s.overrun
	s.assembly = s.assembly[:0]
	s.overrun = false
	s.state = stateSeekingSOF
	s.mu.Unlock()

	if overrun {
		s.log.Warn("binlog: rx assembly buffer overrun, frame dropped")
		return
	}
	if len(stuffed) == 0 {
		return // back-to-back sentinels: empty frame, not an error
	}

	payload, err := frame.Decode(stuffed)
	if err != nil {
		s.log.Warn("binlog: cobs decode failed, frame dropped", zap.Error(err))
		return
	}
	if len(payload) == 0 {
		return
	}

	s.notifyFirstFrame()

	typ := payload[0] & 0x3
	port := int(payload[0] >> 2)
	body := payload[1:]

	if typ != frameType {
		s.log.Warn("binlog: frame type is not log-protocol, dropped")
		return
	}

	s.mu.Lock()
	var waiter *blockingRx
	if s.blocking != nil && s.blocking.port == port {
		waiter = s.blocking
	}
	handler := s.handlers[port]
	s.mu.Unlock()

	switch {
	case waiter != nil:
		n := copy(waiter.buf, body)
		select {
		case waiter.done <- n:
		default:
		}
	case handler != nil:
		handler(body)
	default:
		s.log.Warn("binlog: no handler for port, dropped", zap.Int("port", port))
	}
}

func (s *Server) notifyFirstFrame() {
	s.mu.Lock()
	if s.firstRxSeen {
		s.mu.Unlock()
		return
	}
	s.firstRxSeen = true
	cb := s.onFirstRx
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}
