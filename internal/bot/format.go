package bot

import (
	"fmt"
	"strings"

	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/order"
)

// FormatOrder renders the admin notification for an order.
func FormatOrder(p order.Payload) string {
	var lines []string
	if p.OrderID != "" {
		lines = append(lines, "🧾 Заказ "+p.OrderID)
	}
	if who := contactLine(p); who != "" {
		lines = append(lines, "👤 "+who)
	}
	if c := strings.TrimSpace(p.Contact.Comment); c != "" {
		lines = append(lines, "💬 "+c)
	}
	if p.TgUser != nil {
		u := fmt.Sprintf("id %d", p.TgUser.ID)
		if p.TgUser.Username != "" {
			u = "@" + p.TgUser.Username + " (" + u + ")"
		}
		lines = append(lines, "🔗 "+u)
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}

	lines = append(lines, "📦 Позиции")
	for i, it := range p.Items {
		title := it.Title
		if title == "" {
			title = "Item"
		}
		qty := it.Qty
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %s ₽ × %d", i+1, title, catalog.FormatPrice(it.Price), qty))
	}
	lines = append(lines, "", "Итого: "+catalog.FormatPrice(p.Total)+" ₽")
	return strings.Join(lines, "\n")
}

func contactLine(p order.Payload) string {
	var parts []string
	for _, s := range []string{p.Contact.Name, p.Contact.Phone} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
