package order

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/host"
)

// DefaultMaxPayloadChars is the host's limit on a single sendData string.
const DefaultMaxPayloadChars = 3800

// Item is one order line.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
	Qty   int    `json:"qty"`
}

// Source describes where the order was placed. Unknown values are null.
type Source struct {
	App         string  `json:"app"`
	QueryID     *string `json:"query_id"`
	HasInitData bool    `json:"has_init_data"`
	Channel     string  `json:"channel,omitempty"`
}

// Payload is the order document sent through the bridge and the relay.
type Payload struct {
	OrderID string     `json:"order_id"`
	TS      int64      `json:"ts"`
	Contact Contact    `json:"contact"`
	Items   []Item     `json:"items"`
	Total   int64      `json:"total"`
	Source  Source     `json:"source"`
	TgUser  *host.User `json:"tg_user"`
}

// BuildPayload assembles an order from the ledger and whatever session
// context is available.
func BuildPayload(orderID string, ts int64, contact Contact, entries []cart.Entry, sc host.SessionContext, app string) Payload {
	items := make([]Item, 0, len(entries))
	var total int64
	for _, e := range entries {
		items = append(items, Item{ID: e.ID, Title: e.Title, Price: e.Price, Qty: e.Qty})
		total += e.Price * int64(e.Qty)
	}

	var queryID *string
	if sc.SessionID != "" {
		id := sc.SessionID
		queryID = &id
	}

	return Payload{
		OrderID: orderID,
		TS:      ts,
		Contact: contact.Normalized(),
		Items:   items,
		Total:   total,
		Source: Source{
			App:         app,
			QueryID:     queryID,
			HasInitData: sc.InitData != "",
		},
		TgUser: sc.User,
	}
}

// Encode serializes p and enforces the size ceiling, measured in UTF-16 code
// units as the host counts string length.
func Encode(p Payload, limit int) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("order: encode payload: %w", err)
	}
	s := string(data)
	if limit > 0 {
		if n := Length(s); n > limit {
			return "", &PayloadTooLargeError{Size: n, Limit: limit}
		}
	}
	return s, nil
}

// Length is the string length in UTF-16 code units.
func Length(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Decode parses an order document received from the bridge or the relay.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("order: decode payload: %w", err)
	}
	return p, nil
}

// ComputedTotal recomputes the total from the order lines.
func (p Payload) ComputedTotal() int64 {
	var total int64
	for _, it := range p.Items {
		total += it.Price * int64(it.Qty)
	}
	return total
}
