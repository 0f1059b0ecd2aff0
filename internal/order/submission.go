package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/host"
)

// State is the submission lifecycle position.
type State int

const (
	Idle State = iota
	Validating
	AwaitingContext
	Sending
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case AwaitingContext:
		return "awaiting_context"
	case Sending:
		return "sending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) inFlight() bool {
	return s == Validating || s == AwaitingContext || s == Sending
}

const (
	DefaultContextTimeout = 3 * time.Second
	DefaultCloseDelay     = 1200 * time.Millisecond
	DefaultApp            = "minishop"
)

// User-facing texts shown through the host.
const (
	msgSuccessTitle = "✅ Готово"
	msgSuccess      = "Заказ отправлен администратору. Скоро с вами свяжутся."
	msgTooLarge     = "Заказ слишком большой. Уберите часть товаров из корзины и попробуйте снова."
	msgRetry        = "Не удалось отправить заказ. Попробуйте ещё раз."
)

// Session is the host handshake as seen by the submission.
type Session interface {
	IsReady() bool
	Bridge() host.Bridge
	AwaitFullContext(ctx context.Context, timeout time.Duration) host.SessionContext
}

// Config tunes a Submission. Zero values take the defaults.
type Config struct {
	ContextTimeout  time.Duration
	MaxPayloadChars int
	CloseDelay      time.Duration
	App             string
	Clock           clockwork.Clock
	Logger          *zap.Logger
	IDGenerator     func() string
}

// Result describes a completed submission.
type Result struct {
	OrderID string
	Payload Payload
	Size    int
	// RelayErr is set when the relay copy failed. The order still counts as sent.
	RelayErr error
}

// Submission validates, assembles and transmits an order.
type Submission struct {
	ledger  *cart.Ledger
	session Session
	relay   Relay
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	lastErr error
}

// New creates a Submission. relay may be nil.
func New(ledger *cart.Ledger, session Session, relay Relay, cfg Config) *Submission {
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = DefaultContextTimeout
	}
	if cfg.MaxPayloadChars <= 0 {
		cfg.MaxPayloadChars = DefaultMaxPayloadChars
	}
	if cfg.CloseDelay < 0 {
		cfg.CloseDelay = 0
	}
	if cfg.App == "" {
		cfg.App = DefaultApp
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return ulid.Make().String() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if rc, ok := relay.(*RelayClient); ok && rc == nil {
		relay = nil
	}
	return &Submission{ledger: ledger, session: session, relay: relay, cfg: cfg, logger: logger}
}

func (s *Submission) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the error that put the submission into Failed.
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Check returns why the order cannot be submitted right now, or nil.
func (s *Submission) Check(c Contact) error {
	if !s.session.IsReady() {
		if s.session.Bridge() == nil {
			return ErrNotInHostEnvironment
		}
		return ErrSessionContextTimeout
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if s.ledger.IsEmpty() {
		return &ValidationError{Field: FieldEmptyCart}
	}
	return nil
}

// CanSubmit reports whether the submit control should be enabled.
func (s *Submission) CanSubmit(c Contact) bool {
	return s.Check(c) == nil
}

// Reset returns a settled submission to Idle, e.g. when the order form closes.
func (s *Submission) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.inFlight() {
		s.state = Idle
		s.lastErr = nil
	}
}

// Submit sends the cart as an order through the host bridge.
//
// The bridge send has no acknowledgement: returning without error is taken as
// delivery. The relay copy, when configured, is best effort and its outcome is
// reported in Result.RelayErr without affecting success.
func (s *Submission) Submit(ctx context.Context, c Contact) (Result, error) {
	s.mu.Lock()
	if s.state.inFlight() {
		s.mu.Unlock()
		return Result{}, ErrInFlight
	}
	s.state = Validating
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.Check(c); err != nil {
		s.setState(Idle)
		return Result{}, err
	}

	s.setState(AwaitingContext)
	sc := s.session.AwaitFullContext(ctx, s.cfg.ContextTimeout)
	if err := ctx.Err(); err != nil {
		s.setState(Idle)
		return Result{}, err
	}

	bridge := s.session.Bridge()
	if !sc.HostPresent || bridge == nil {
		return Result{}, s.fail(ErrNotInHostEnvironment)
	}
	if sc.InitData == "" {
		return Result{}, s.fail(ErrSessionContextTimeout)
	}

	payload := BuildPayload(s.cfg.IDGenerator(), s.cfg.Clock.Now().Unix(), c, s.ledger.Entries(), sc, s.cfg.App)
	data, err := Encode(payload, s.cfg.MaxPayloadChars)
	if err != nil {
		var tooLarge *PayloadTooLargeError
		if errors.As(err, &tooLarge) {
			bridge.ShowAlert(msgTooLarge)
		}
		return Result{}, s.fail(err)
	}

	s.setState(Sending)
	if err := bridge.SendData(data); err != nil {
		host.Notify(bridge, "error")
		bridge.ShowAlert(msgRetry)
		return Result{}, s.fail(&TransportError{Leg: LegBridge, Err: err})
	}

	res := Result{OrderID: payload.OrderID, Payload: payload, Size: Length(data)}
	if s.relay != nil {
		if err := s.relay.Forward(ctx, payload); err != nil {
			res.RelayErr = &TransportError{Leg: LegRelay, Err: err}
			s.logger.Error("order relay failed", zap.String("order_id", payload.OrderID), zap.Error(err))
		}
	}

	s.ledger.Clear()
	s.setState(Succeeded)
	s.logger.Info("order sent",
		zap.String("order_id", payload.OrderID),
		zap.Int("items", len(payload.Items)),
		zap.Int64("total", payload.Total),
		zap.Int("size", res.Size),
		zap.Bool("degraded_context", !sc.Complete()),
	)

	host.Notify(bridge, "success")
	bridge.ShowPopup(msgSuccessTitle, msgSuccess)

	select {
	case <-ctx.Done():
	case <-s.cfg.Clock.After(s.cfg.CloseDelay):
		bridge.Close()
	}
	return res, nil
}

func (s *Submission) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Submission) fail(err error) error {
	s.mu.Lock()
	s.state = Failed
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Warn("order submission failed", zap.Error(err))
	return err
}
