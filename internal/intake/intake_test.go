package intake

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/susu3304/minishop/internal/db"
	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/order"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]*db.Order
	err    error
}

func newMemStore() *memStore { return &memStore{orders: map[string]*db.Order{}} }

func (s *memStore) SaveOrder(_ context.Context, o db.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.orders[o.OrderID]; ok {
		return false, nil
	}
	s.orders[o.OrderID] = &o
	return true, nil
}

func (s *memStore) MarkNotified(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return db.ErrOrderNotFound
	}
	o.NotifiedAt = &at
	return nil
}

func (s *memStore) PendingNotifications(_ context.Context, now time.Time, limit int) ([]db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Order
	for _, o := range s.orders {
		if o.NotifiedAt == nil && !o.NotifyAfter.After(now) && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) DelayNotification(_ context.Context, id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id].NotifyAfter = next
	return nil
}

type fakeNotifier struct {
	err  error
	sent []string
}

func (n *fakeNotifier) NotifyOrder(_ context.Context, p order.Payload) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, p.OrderID)
	return nil
}

func samplePayload(id string) order.Payload {
	return order.Payload{
		OrderID: id,
		TS:      1714564800,
		Contact: order.Contact{Name: "Ivan", Phone: "+79161234567"},
		Items:   []order.Item{{ID: "p1", Title: "iPhone 15", Price: 50000, Qty: 2}},
		Total:   100000,
		TgUser:  &host.User{ID: 42},
	}
}

func TestAccept(t *testing.T) {
	store := newMemStore()
	notifier := &fakeNotifier{}
	svc := New(store, notifier, nil)

	inserted, err := svc.Accept(context.Background(), SourceRelay, samplePayload("o1"))
	require.NoError(t, err)
	require.True(t, inserted)

	rec := store.orders["o1"]
	require.Equal(t, SourceRelay, rec.Source)
	require.Equal(t, int64(42), *rec.UserID)
	require.NotNil(t, rec.NotifiedAt)
	var stored order.Payload
	require.NoError(t, json.Unmarshal(rec.Payload, &stored))
	require.Equal(t, samplePayload("o1"), stored)

	inserted, err = svc.Accept(context.Background(), SourceBridge, samplePayload("o1"))
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, []string{"o1"}, notifier.sent)
	require.Equal(t, SourceRelay, store.orders["o1"].Source)
}

func TestAcceptRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *order.Payload)
	}{
		{name: "no items", mutate: func(p *order.Payload) { p.Items = nil }},
		{name: "zero qty", mutate: func(p *order.Payload) { p.Items[0].Qty = 0 }},
		{name: "negative total", mutate: func(p *order.Payload) { p.Total = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload("o1")
			tt.mutate(&p)
			_, err := New(newMemStore(), nil, nil).Accept(context.Background(), SourceRelay, p)
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestAcceptAssignsMissingID(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil)
	svc.newID = func() string { return "01GENERATED" }

	p := samplePayload("")
	inserted, err := svc.Accept(context.Background(), SourceBridge, p)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Contains(t, store.orders, "01GENERATED")

	var stored order.Payload
	require.NoError(t, json.Unmarshal(store.orders["01GENERATED"].Payload, &stored))
	require.Equal(t, "01GENERATED", stored.OrderID)
}

func TestAcceptStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	_, err := New(store, &fakeNotifier{}, nil).Accept(context.Background(), SourceRelay, samplePayload("o1"))
	require.EqualError(t, err, "db down")
}

func TestAcceptNotificationFailureIsRedelivered(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := newMemStore()
	notifier := &fakeNotifier{err: errors.New("telegram timeout")}
	svc := New(store, notifier, zap.New(core))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	inserted, err := svc.Accept(context.Background(), SourceBridge, samplePayload("o1"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Nil(t, store.orders["o1"].NotifiedAt)
	require.Equal(t, 1, logs.FilterMessage("admin notification failed").Len())

	r := NewRedeliverer(svc, time.Minute)

	r.Tick(context.Background())
	require.Empty(t, notifier.sent)

	now = now.Add(redeliverBackoff)
	r.Tick(context.Background())
	require.Nil(t, store.orders["o1"].NotifiedAt)
	require.Equal(t, now.Add(redeliverBackoff), store.orders["o1"].NotifyAfter)

	notifier.err = nil
	now = now.Add(redeliverBackoff)
	r.Tick(context.Background())
	require.Equal(t, []string{"o1"}, notifier.sent)
	require.NotNil(t, store.orders["o1"].NotifiedAt)
}

func TestAcceptWarnsOnTotalMismatch(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := samplePayload("o1")
	p.Total = 1
	_, err := New(newMemStore(), nil, zap.New(core)).Accept(context.Background(), SourceRelay, p)
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("order total does not match its lines").Len())
}
