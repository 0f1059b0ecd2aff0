package intake

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/order"
)

const (
	redeliverBatch   = 20
	redeliverBackoff = 2 * time.Minute
)

// Redeliverer periodically retries admin notifications that failed on intake.
type Redeliverer struct {
	svc      *Service
	interval time.Duration
	stopChan chan struct{}
	ticker   *time.Ticker
}

func NewRedeliverer(svc *Service, interval time.Duration) *Redeliverer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Redeliverer{svc: svc, interval: interval, stopChan: make(chan struct{})}
}

func (r *Redeliverer) Start() {
	if r == nil || r.svc.notifier == nil {
		return
	}
	r.ticker = time.NewTicker(r.interval)
	go r.loop()
}

func (r *Redeliverer) Stop() {
	if r == nil || r.ticker == nil {
		return
	}
	close(r.stopChan)
	r.ticker.Stop()
}

func (r *Redeliverer) loop() {
	ctx := context.Background()
	for {
		select {
		case <-r.ticker.C:
			r.Tick(ctx)
		case <-r.stopChan:
			return
		}
	}
}

// Tick runs one redelivery pass.
func (r *Redeliverer) Tick(ctx context.Context) {
	s := r.svc
	now := s.now()
	pending, err := s.store.PendingNotifications(ctx, now, redeliverBatch)
	if err != nil {
		s.logger.Error("redeliver: failed to load pending orders", zap.Error(err))
		return
	}

	for _, rec := range pending {
		log := s.logger.With(zap.String("order_id", rec.OrderID))
		p, err := order.Decode(rec.Payload)
		if err != nil {
			log.Error("redeliver: stored payload unreadable", zap.Error(err))
			if derr := s.store.MarkNotified(ctx, rec.OrderID, now); derr != nil {
				log.Error("redeliver: failed to skip order", zap.Error(derr))
			}
			continue
		}
		if err := s.notifier.NotifyOrder(ctx, p); err != nil {
			log.Warn("redeliver: admin notification failed", zap.Error(err))
			if derr := s.store.DelayNotification(ctx, rec.OrderID, now.Add(redeliverBackoff)); derr != nil {
				log.Error("redeliver: failed to delay order", zap.Error(derr))
			}
			continue
		}
		if err := s.store.MarkNotified(ctx, rec.OrderID, now); err != nil {
			log.Error("redeliver: failed to mark order notified", zap.Error(err))
		}
	}
}
