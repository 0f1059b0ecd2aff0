package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/db"
	"github.com/susu3304/minishop/internal/order"
)

const (
	recentOrdersLimit = 5
	maxMessageRunes   = 4096

	msgAdminOnly      = "Команда доступна только администратору."
	msgNoOrderLog     = "История заказов недоступна."
	msgNoOrders       = "Заказов пока нет."
	msgOrderUsage     = "Использование: /order <id>"
	msgOrderLogFailed = "Не удалось загрузить заказы."
)

// OrderLog reads stored orders for the admin commands.
type OrderLog interface {
	ListRecentOrders(ctx context.Context, limit int) ([]db.Order, error)
	GetOrder(ctx context.Context, orderID string) (*db.Order, error)
}

// SetOrderLog enables /orders and /order for the admin chat.
func (b *Bot) SetOrderLog(l OrderLog) {
	b.orderLog = l
}

func (b *Bot) isAdmin(chatID int64) bool {
	return b.adminChatID != 0 && chatID == b.adminChatID
}

func (b *Bot) onOrders(c tele.Context) error {
	if c.Chat() == nil || !b.isAdmin(c.Chat().ID) {
		return c.Send(msgAdminOnly)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Send(b.recentOrdersText(ctx))
}

func (b *Bot) onOrder(c tele.Context) error {
	if c.Chat() == nil || !b.isAdmin(c.Chat().ID) {
		return c.Send(msgAdminOnly)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Send(b.orderText(ctx, c.Message().Payload))
}

// recentOrdersText lists the newest stored orders, newest first, as long as
// they fit into one message.
func (b *Bot) recentOrdersText(ctx context.Context) string {
	if b.orderLog == nil {
		return msgNoOrderLog
	}
	orders, err := b.orderLog.ListRecentOrders(ctx, recentOrdersLimit)
	if err != nil {
		b.logger.Error("failed to list orders", zap.Error(err))
		return msgOrderLogFailed
	}
	if len(orders) == 0 {
		return msgNoOrders
	}

	var blocks []string
	size := 0
	for _, o := range orders {
		block := b.describeOrder(o)
		n := len([]rune(block)) + 2
		if size+n > maxMessageRunes && len(blocks) > 0 {
			break
		}
		blocks = append(blocks, block)
		size += n
	}
	return strings.Join(blocks, "\n\n")
}

func (b *Bot) orderText(ctx context.Context, orderID string) string {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return msgOrderUsage
	}
	if b.orderLog == nil {
		return msgNoOrderLog
	}
	o, err := b.orderLog.GetOrder(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return fmt.Sprintf("Заказ %s не найден.", orderID)
	}
	if err != nil {
		b.logger.Error("failed to load order", zap.String("order_id", orderID), zap.Error(err))
		return msgOrderLogFailed
	}
	return b.describeOrder(*o)
}

func (b *Bot) describeOrder(o db.Order) string {
	head := fmt.Sprintf("🕒 %s · %s", o.CreatedAt.Format("02.01.2006 15:04"), o.Source)
	if o.NotifiedAt == nil {
		head += " · не доставлен администратору"
	}
	p, err := order.Decode(o.Payload)
	if err != nil {
		b.logger.Warn("stored order unreadable", zap.String("order_id", o.OrderID), zap.Error(err))
		return head + "\n🧾 Заказ " + o.OrderID + "\nИтого: " + catalog.FormatPrice(o.Total) + " ₽"
	}
	if p.OrderID == "" {
		p.OrderID = o.OrderID
	}
	return head + "\n" + FormatOrder(p)
}
