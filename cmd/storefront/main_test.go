package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/host/hosttest"
	"github.com/susu3304/minishop/internal/order"
	"github.com/susu3304/minishop/internal/storefront"
)

type staticCatalog []catalog.Product

func (s staticCatalog) LoadOrEmpty(context.Context) []catalog.Product { return s }

func newREPL(t *testing.T) (*repl, *bytes.Buffer, *hosttest.Bridge) {
	t.Helper()
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	hs := host.NewHandshake(hosttest.DetectAfter(bridge, 1), host.HandshakeConfig{Clock: clock})
	hs.Start(context.Background())

	ledger := cart.Open(cart.NewMemoryStore(), nil)
	ctrl := storefront.New(storefront.Deps{
		Catalog:    staticCatalog{{ID: "p1", Title: "Смартфон Apple iPhone 15", Price: 70000}},
		Ledger:     ledger,
		Handshake:  hs,
		Submission: order.New(ledger, hs, nil, order.Config{Clock: clock}),
	})
	ctrl.LoadCatalog(context.Background())

	buf := &bytes.Buffer{}
	return &repl{ctx: context.Background(), ctrl: ctrl, handshake: hs, out: &terminal{w: buf}, logger: zap.NewNop()}, buf, bridge
}

func TestREPLCheckoutFlow(t *testing.T) {
	r, buf, bridge := newREPL(t)

	require.True(t, r.exec("list"))
	require.Contains(t, buf.String(), "iPhone 15 — 70 000 ₽")

	require.True(t, r.exec("add p1"))
	require.True(t, r.exec("qty p1 2"))
	require.Contains(t, buf.String(), "Итого: 140 000 ₽ (2 шт.)")

	buf.Reset()
	require.True(t, r.exec("checkout"))
	require.Contains(t, buf.String(), "Укажите имя")
	require.Zero(t, bridge.SentCount())

	require.True(t, r.exec("name Иван"))
	require.True(t, r.exec("phone +7 916 123 45 67"))
	require.True(t, r.exec("comment позвонить заранее"))
	buf.Reset()
	require.True(t, r.exec("checkout"))
	require.Contains(t, buf.String(), "отправлен")
	require.Equal(t, 1, bridge.SentCount())
	require.True(t, r.ctrl.Cart().Empty())
	require.Equal(t, 1, bridge.Closed)
}

func TestREPLCommands(t *testing.T) {
	r, buf, _ := newREPL(t)

	require.True(t, r.exec("add nope"))
	require.Contains(t, buf.String(), "Нет такого товара: nope")

	require.True(t, r.exec("qty p1"))
	require.Contains(t, buf.String(), "Использование: qty <id> <n>")

	require.True(t, r.exec("find pixel"))
	require.Contains(t, buf.String(), "Ничего не найдено.")

	require.True(t, r.exec("bogus"))
	require.Contains(t, buf.String(), "Неизвестная команда")

	require.False(t, r.exec("quit"))
}

func TestREPLStepAndFilters(t *testing.T) {
	r, buf, _ := newREPL(t)

	require.True(t, r.exec("add p1"))
	require.True(t, r.exec("+ p1"))
	require.Contains(t, buf.String(), "Итого: 140 000 ₽ (2 шт.)")

	require.True(t, r.exec("- p1"))
	require.True(t, r.exec("- p1"))
	require.True(t, r.ctrl.Cart().Empty())

	buf.Reset()
	require.True(t, r.exec("list"))
	require.NotContains(t, buf.String(), "Фильтр:")

	require.True(t, r.exec("find iphone"))
	require.Contains(t, buf.String(), `Фильтр: поиск "iphone", модель "", сортировка ""`)
}

func TestREPLCancelAfterFailedCheckout(t *testing.T) {
	r, buf, bridge := newREPL(t)
	bridge.SendErr = errors.New("webview gone")

	require.True(t, r.exec("add p1"))
	require.True(t, r.exec("name Иван"))
	require.True(t, r.exec("phone +79161234567"))
	require.True(t, r.exec("checkout"))
	require.Contains(t, buf.String(), "Не удалось отправить заказ")

	require.True(t, r.exec("cancel"))
	require.Contains(t, buf.String(), "Оформление закрыто")
	require.False(t, r.ctrl.Cart().Empty())

	bridge.SendErr = nil
	buf.Reset()
	require.True(t, r.exec("checkout"))
	require.Contains(t, buf.String(), "отправлен")
}

func TestREPLGreetsWhenConnected(t *testing.T) {
	r, buf, _ := newREPL(t)

	r.hostChanged(true)
	require.Contains(t, buf.String(), "✓ Подключено к Telegram.")
	require.Contains(t, buf.String(), "Привет, Ivan!")

	buf.Reset()
	r.hostChanged(false)
	require.Contains(t, buf.String(), "команда retry")
	require.NotContains(t, buf.String(), "Привет")
}
