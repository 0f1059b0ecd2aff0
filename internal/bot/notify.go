package bot

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/susu3304/minishop/internal/order"
)

var ErrNoAdminChat = errors.New("bot: admin chat is not configured")

// Minimal bot interface for sending chat messages.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier posts orders to the admin chat.
type Notifier struct {
	sender sender
	chatID int64
	logger *zap.Logger
	pause  func(time.Duration)
}

func newNotifier(s sender, chatID int64, logger *zap.Logger) *Notifier {
	return &Notifier{sender: s, chatID: chatID, logger: logger, pause: time.Sleep}
}

// NotifyOrder sends the formatted order to the admin chat, retrying once on
// transient failures.
func (n *Notifier) NotifyOrder(ctx context.Context, p order.Payload) error {
	if n.chatID == 0 {
		return ErrNoAdminChat
	}
	return n.sendWithRetry(ctx, tele.ChatID(n.chatID), FormatOrder(p))
}

func (n *Notifier) sendWithRetry(ctx context.Context, to tele.Recipient, content string) error {
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := n.sender.Send(to, content, &tele.SendOptions{DisableWebPagePreview: true})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		n.logger.Warn("admin send failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		n.pause(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	var flood tele.FloodError
	var floodRef *tele.FloodError
	if errors.As(err, &flood) || errors.As(err, &floodRef) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
