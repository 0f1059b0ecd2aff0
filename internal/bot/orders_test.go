package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/db"
	"github.com/susu3304/minishop/internal/order"
)

type fakeOrderLog struct {
	orders []db.Order
	err    error
	limit  int
}

func (f *fakeOrderLog) ListRecentOrders(_ context.Context, limit int) ([]db.Order, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.orders) > limit {
		return f.orders[:limit], nil
	}
	return f.orders, nil
}

func (f *fakeOrderLog) GetOrder(_ context.Context, id string) (*db.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range f.orders {
		if o.OrderID == id {
			return &o, nil
		}
	}
	return nil, db.ErrOrderNotFound
}

func storedOrder(t *testing.T, id string, total int64, notified bool) db.Order {
	t.Helper()
	raw, err := json.Marshal(order.Payload{
		OrderID: id,
		Contact: order.Contact{Name: "Ivan", Phone: "+79161234567"},
		Items:   []order.Item{{Title: "iPhone 15", Price: total, Qty: 1}},
		Total:   total,
	})
	require.NoError(t, err)
	o := db.Order{
		OrderID:   id,
		Source:    "bridge",
		Total:     total,
		Payload:   raw,
		CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
	if notified {
		at := o.CreatedAt
		o.NotifiedAt = &at
	}
	return o
}

func TestRecentOrdersText(t *testing.T) {
	log := &fakeOrderLog{orders: []db.Order{
		storedOrder(t, "o2", 80000, false),
		storedOrder(t, "o1", 70000, true),
	}}
	b := &Bot{orderLog: log, adminChatID: 42, logger: zap.NewNop()}

	text := b.recentOrdersText(context.Background())
	require.Equal(t, recentOrdersLimit, log.limit)
	require.Less(t, strings.Index(text, "Заказ o2"), strings.Index(text, "Заказ o1"))
	require.Contains(t, text, "🕒 01.05.2024 12:30 · bridge · не доставлен администратору")
	require.Contains(t, text, FormatOrder(order.Payload{
		OrderID: "o1",
		Contact: order.Contact{Name: "Ivan", Phone: "+79161234567"},
		Items:   []order.Item{{Title: "iPhone 15", Price: 70000, Qty: 1}},
		Total:   70000,
	}))
	require.Equal(t, 1, strings.Count(text, "не доставлен"))
}

func TestRecentOrdersTextEdgeCases(t *testing.T) {
	b := &Bot{logger: zap.NewNop()}
	require.Equal(t, msgNoOrderLog, b.recentOrdersText(context.Background()))

	b.orderLog = &fakeOrderLog{}
	require.Equal(t, msgNoOrders, b.recentOrdersText(context.Background()))

	b.orderLog = &fakeOrderLog{err: errors.New("pool closed")}
	require.Equal(t, msgOrderLogFailed, b.recentOrdersText(context.Background()))

	broken := db.Order{OrderID: "o9", Source: "relay", Total: 1500, Payload: []byte("{"), CreatedAt: time.Unix(0, 0).UTC(), NotifiedAt: new(time.Time)}
	b.orderLog = &fakeOrderLog{orders: []db.Order{broken}}
	text := b.recentOrdersText(context.Background())
	require.Contains(t, text, "🧾 Заказ o9")
	require.Contains(t, text, "Итого: 1 500 ₽")
}

func TestRecentOrdersTextFitsOneMessage(t *testing.T) {
	var orders []db.Order
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		o := storedOrder(t, id, 100, true)
		p, err := order.Decode(o.Payload)
		require.NoError(t, err)
		p.Contact.Comment = strings.Repeat("я", 1500)
		o.Payload, err = json.Marshal(p)
		require.NoError(t, err)
		orders = append(orders, o)
	}
	b := &Bot{orderLog: &fakeOrderLog{orders: orders}, logger: zap.NewNop()}

	text := b.recentOrdersText(context.Background())
	require.LessOrEqual(t, len([]rune(text)), maxMessageRunes)
	require.Contains(t, text, "Заказ a")
	require.NotContains(t, text, "Заказ e")
}

func TestOrderText(t *testing.T) {
	log := &fakeOrderLog{orders: []db.Order{storedOrder(t, "o1", 70000, true)}}
	b := &Bot{orderLog: log, logger: zap.NewNop()}
	ctx := context.Background()

	require.Equal(t, msgOrderUsage, b.orderText(ctx, "  "))
	require.Contains(t, b.orderText(ctx, " o1 "), "🧾 Заказ o1")
	require.Equal(t, "Заказ nope не найден.", b.orderText(ctx, "nope"))

	log.err = errors.New("pool closed")
	require.Equal(t, msgOrderLogFailed, b.orderText(ctx, "o1"))
}

func TestIsAdmin(t *testing.T) {
	require.False(t, (&Bot{}).isAdmin(0))
	require.False(t, (&Bot{adminChatID: 42}).isAdmin(7))
	require.True(t, (&Bot{adminChatID: 42}).isAdmin(42))
}
