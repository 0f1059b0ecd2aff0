package host

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// State is the handshake lifecycle position.
type State int

const (
	Unbound State = iota
	Polling
	Ready
	TimedOut
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Polling:
		return "polling"
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

const (
	DefaultPollInterval = 300 * time.Millisecond
	DefaultPollAttempts = 15
)

// HandshakeConfig tunes the readiness poller.
type HandshakeConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

// Handshake binds the host bridge and decides whether checkout is unlocked.
type Handshake struct {
	detect Detector
	cfg    HandshakeConfig
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	bridge    Bridge
	attempts  int
	listeners []func(ready bool)
}

func NewHandshake(detect Detector, cfg HandshakeConfig) *Handshake {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if detect == nil {
		detect = func() Bridge { return nil }
	}
	return &Handshake{detect: detect, cfg: cfg, logger: logger}
}

// OnChange registers fn to be called with the readiness after each terminal
// transition.
func (h *Handshake) OnChange(fn func(ready bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Start runs the readiness poller until the session is ready or the attempt
// cap is hit, and returns the terminal state. Calling Start again from
// TimedOut is the manual retry.
func (h *Handshake) Start(ctx context.Context) State {
	h.mu.Lock()
	if h.state == Ready || h.state == Polling {
		st := h.state
		h.mu.Unlock()
		return st
	}
	h.state = Polling
	h.attempts = 0
	h.mu.Unlock()

	h.logger.Info("host handshake polling",
		zap.Duration("interval", h.cfg.Interval),
		zap.Int("max_attempts", h.cfg.MaxAttempts),
	)

	poller := Poller{Interval: h.cfg.Interval, MaxAttempts: h.cfg.MaxAttempts, Clock: h.cfg.Clock}
	attempts, ok := poller.Run(ctx, func() bool {
		return h.evaluate().Ready()
	})

	h.mu.Lock()
	h.attempts = attempts
	if ok {
		h.state = Ready
	} else {
		h.state = TimedOut
	}
	st := h.state
	listeners := append([]func(bool){}, h.listeners...)
	h.mu.Unlock()

	h.logger.Info("host handshake finished",
		zap.Stringer("state", st),
		zap.Int("attempts", attempts),
		zap.Bool("host_present", h.Bridge() != nil),
	)
	for _, fn := range listeners {
		fn(st == Ready)
	}
	return st
}

// IsReady gates checkout: the poller reached Ready and the bridge still reports
// a non-empty init data token.
func (h *Handshake) IsReady() bool {
	h.mu.Lock()
	st, b := h.state, h.bridge
	h.mu.Unlock()
	return st == Ready && ContextOf(b).Ready()
}

func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attempts is the number of re-evaluations made by the last poll.
func (h *Handshake) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Bridge returns the bound bridge, or nil.
func (h *Handshake) Bridge() Bridge {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge
}

// Context returns what is currently known about the session.
func (h *Handshake) Context() SessionContext {
	return ContextOf(h.Bridge())
}

// AwaitFullContext polls until bridge, init data, session id and user are all
// present or timeout elapses, then returns whatever is available. The result
// may be incomplete and must be validated by the caller.
func (h *Handshake) AwaitFullContext(ctx context.Context, timeout time.Duration) SessionContext {
	if timeout <= 0 {
		h.evaluate()
		return h.Context()
	}
	poller := Poller{Interval: h.cfg.Interval, Timeout: timeout, Clock: h.cfg.Clock}
	_, ok := poller.Run(ctx, func() bool {
		return h.evaluate().Complete()
	})
	sc := h.Context()
	if !ok {
		h.logger.Warn("host session context incomplete",
			zap.Bool("host_present", sc.HostPresent),
			zap.Bool("init_data", sc.InitData != ""),
			zap.Bool("session_id", sc.SessionID != ""),
			zap.Bool("user", sc.User != nil),
		)
	}
	return sc
}

// evaluate binds the bridge on first detection and reads the session context.
func (h *Handshake) evaluate() SessionContext {
	h.mu.Lock()
	b := h.bridge
	h.mu.Unlock()

	if b == nil {
		b = h.detect()
		if b == nil {
			return SessionContext{}
		}
		b.Ready()
		b.Expand()
		h.mu.Lock()
		h.bridge = b
		h.mu.Unlock()
		h.logger.Info("host bridge detected")
	}
	return ContextOf(b)
}
