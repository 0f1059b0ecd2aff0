// Package intake accepts orders arriving at the server, stores them once and
// tells the shop admin.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/db"
	"github.com/susu3304/minishop/internal/order"
)

// Order sources.
const (
	SourceBridge = "bridge"
	SourceRelay  = "relay"
)

var ErrInvalidOrder = errors.New("intake: invalid order")

// Store is the order log.
type Store interface {
	SaveOrder(ctx context.Context, o db.Order) (bool, error)
	MarkNotified(ctx context.Context, orderID string, at time.Time) error
	PendingNotifications(ctx context.Context, now time.Time, limit int) ([]db.Order, error)
	DelayNotification(ctx context.Context, orderID string, next time.Time) error
}

// Notifier delivers an order to the shop admin.
type Notifier interface {
	NotifyOrder(ctx context.Context, p order.Payload) error
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func New(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Accept stores p and notifies the admin. It reports whether p was new; a
// repeated order id is accepted without a second notification. A failed
// notification does not fail the order, the redelivery worker picks it up.
// Orders from older web apps carry no id and get one here.
func (s *Service) Accept(ctx context.Context, source string, p order.Payload) (bool, error) {
	if p.OrderID == "" {
		p.OrderID = s.newID()
	}
	if err := Validate(p); err != nil {
		return false, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	rec := db.Order{
		OrderID:     p.OrderID,
		Source:      source,
		Total:       p.Total,
		Payload:     raw,
		NotifyAfter: s.now().Add(redeliverBackoff),
	}
	if p.TgUser != nil {
		id := p.TgUser.ID
		rec.UserID = &id
	}

	inserted, err := s.store.SaveOrder(ctx, rec)
	if err != nil {
		return false, err
	}
	log := s.logger.With(zap.String("order_id", p.OrderID), zap.String("source", source))
	if !inserted {
		log.Info("duplicate order ignored")
		return false, nil
	}
	log.Info("order accepted", zap.Int("items", len(p.Items)), zap.Int64("total", p.Total))
	if computed := p.ComputedTotal(); computed != p.Total {
		log.Warn("order total does not match its lines", zap.Int64("computed", computed))
	}

	if s.notifier == nil {
		return true, nil
	}
	if err := s.notifier.NotifyOrder(ctx, p); err != nil {
		log.Error("admin notification failed", zap.Error(err))
		return true, nil
	}
	if err := s.store.MarkNotified(ctx, p.OrderID, s.now()); err != nil {
		log.Error("failed to mark order notified", zap.Error(err))
	}
	return true, nil
}

// Validate checks the parts of an order the admin message relies on.
func Validate(p order.Payload) error {
	switch {
	case p.OrderID == "":
		return fmt.Errorf("%w: order_id is required", ErrInvalidOrder)
	case len(p.Items) == 0:
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	case p.Total < 0:
		return fmt.Errorf("%w: negative total", ErrInvalidOrder)
	}
	for _, it := range p.Items {
		if it.Qty <= 0 {
			return fmt.Errorf("%w: item %s has qty %d", ErrInvalidOrder, it.ID, it.Qty)
		}
	}
	return nil
}
