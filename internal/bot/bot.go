package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/susu3304/minishop/internal/intake"
	"github.com/susu3304/minishop/internal/order"
)

const (
	shopButton     = "Открыть магазин"
	msgStart       = "Открой витрину кнопкой ниже. Собери корзину и нажми «Оформить» — заказ прилетит администратору."
	msgShop        = "Магазин:"
	msgNoWebApp    = "WEBAPP_URL не задан"
	msgOrderSent   = "Заказ отправлен. Спасибо!"
	msgOrderUnread = "Ошибка: не удалось прочитать заказ."
	msgOrderFailed = "Не удалось принять заказ. Попробуйте ещё раз."
)

// Acceptor takes orders received through the chat.
type Acceptor interface {
	Accept(ctx context.Context, source string, p order.Payload) (bool, error)
}

type Bot struct {
	bot       *tele.Bot
	notifier  *Notifier
	acceptor  Acceptor
	orderLog  OrderLog
	webAppURL string
	logger    *zap.Logger

	adminChatID int64
}

func New(token string, adminChatID int64, webAppURL string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error("telegram handler failed", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b := &Bot{
		bot:       tb,
		notifier:  newNotifier(tb, adminChatID, logger),
		webAppURL: webAppURL,
		logger:    logger,

		adminChatID: adminChatID,
	}

	tb.Handle("/start", b.onStart)
	tb.Handle("/shop", b.onShop)
	tb.Handle("/id", b.onID)
	tb.Handle("/orders", b.onOrders)
	tb.Handle("/order", b.onOrder)
	tb.Handle(tele.OnWebApp, b.onWebApp)

	return b, nil
}

// Notifier returns the admin notifier backed by this bot.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// SetAcceptor wires the order intake used for web-app data messages.
func (b *Bot) SetAcceptor(a Acceptor) {
	b.acceptor = a
}

func (b *Bot) Start() error {
	go b.bot.Start()
	b.logger.Info("telegram bot is running", zap.String("username", b.bot.Me.Username))
	return nil
}

func (b *Bot) Stop() error {
	b.bot.Stop()
	return nil
}

func (b *Bot) onStart(c tele.Context) error {
	if b.webAppURL == "" {
		return c.Send(msgNoWebApp)
	}
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(m.Row(b.webAppButton()))
	return c.Send(msgStart, m)
}

func (b *Bot) onShop(c tele.Context) error {
	if b.webAppURL == "" {
		return c.Send(msgNoWebApp)
	}
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(b.webAppButton()))
	return c.Send(msgShop, m)
}

func (b *Bot) webAppButton() tele.Btn {
	return tele.Btn{Text: shopButton, WebApp: &tele.WebApp{URL: b.webAppURL}}
}

func (b *Bot) onID(c tele.Context) error {
	return c.Send(fmt.Sprintf("Ваш chat id: %d", c.Chat().ID))
}

func (b *Bot) onWebApp(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.WebAppData == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.Send(b.handleWebAppData(ctx, msg.WebAppData.Data))
}

// handleWebAppData accepts an order sent from the mini app and returns the
// reply for the customer.
func (b *Bot) handleWebAppData(ctx context.Context, data string) string {
	p, err := order.Decode([]byte(data))
	if err != nil {
		b.logger.Warn("web app data unreadable", zap.String("data", preview(data)), zap.Error(err))
		return msgOrderUnread
	}
	if b.acceptor == nil {
		if err := b.notifier.NotifyOrder(ctx, p); err != nil {
			b.logger.Error("admin notification failed", zap.String("order_id", p.OrderID), zap.Error(err))
		}
		return msgOrderSent
	}
	if _, err := b.acceptor.Accept(ctx, intake.SourceBridge, p); err != nil {
		if errors.Is(err, intake.ErrInvalidOrder) {
			b.logger.Warn("web app order rejected", zap.Error(err))
			return msgOrderUnread
		}
		b.logger.Error("web app order not stored", zap.String("order_id", p.OrderID), zap.Error(err))
		return msgOrderFailed
	}
	return msgOrderSent
}

func preview(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 64 {
		return string(r[:64]) + "…"
	}
	return string(r)
}
