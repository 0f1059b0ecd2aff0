package cart

import (
	"sort"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/catalog"
)

// Entry is a cart line. Title, price, image and meta line are copied from the
// product when it is first added and never refreshed from the catalog.
type Entry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
	Qty   int    `json:"qty"`
	Image string `json:"image"`
	Meta  string `json:"meta"`
}

// Ledger maps product id to cart entry and persists itself after every change.
// It has a single writer and no internal locking.
type Ledger struct {
	entries map[string]Entry
	store   Store
	logger  *zap.Logger
}

// Open loads the ledger from store. Unreadable or malformed state yields an
// empty ledger.
func Open(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{
		entries: make(map[string]Entry),
		store:   store,
		logger:  logger,
	}

	loaded, err := store.Load()
	if err != nil {
		logger.Warn("cart state unreadable, starting empty", zap.Error(err))
		return l
	}
	for id, e := range loaded {
		if id == "" || e.Qty <= 0 {
			continue
		}
		e.ID = id
		l.entries[id] = e
	}
	return l
}

// Add increments the quantity of an existing entry, or inserts the product with
// qty 1 and a snapshot of its display data.
func (l *Ledger) Add(p catalog.Product) {
	if p.ID == "" {
		return
	}
	if e, ok := l.entries[p.ID]; ok {
		e.Qty++
		l.entries[p.ID] = e
	} else {
		l.entries[p.ID] = Entry{
			ID:    p.ID,
			Title: catalog.CleanTitle(p.Title),
			Price: p.Price,
			Qty:   1,
			Image: p.Image,
			Meta:  catalog.MetaLine(p),
		}
	}
	l.persist()
}

// SetQty overwrites the quantity of an entry; qty <= 0 removes it. Unknown ids
// are ignored.
func (l *Ledger) SetQty(id string, qty int) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if qty <= 0 {
		delete(l.entries, id)
	} else {
		e.Qty = qty
		l.entries[id] = e
	}
	l.persist()
}

// Clear removes every entry.
func (l *Ledger) Clear() {
	l.entries = make(map[string]Entry)
	l.persist()
}

// Total is the sum of price*qty over the snapshotted prices.
func (l *Ledger) Total() int64 {
	var total int64
	for _, e := range l.entries {
		total += e.Price * int64(e.Qty)
	}
	return total
}

// Count is the number of units in the cart.
func (l *Ledger) Count() int {
	n := 0
	for _, e := range l.entries {
		n += e.Qty
	}
	return n
}

func (l *Ledger) Len() int { return len(l.entries) }

func (l *Ledger) IsEmpty() bool { return len(l.entries) == 0 }

// Get returns the entry for id.
func (l *Ledger) Get(id string) (Entry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// Entries returns a copy of the entries ordered by id.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of the id -> entry mapping.
func (l *Ledger) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(l.entries))
	for id, e := range l.entries {
		out[id] = e
	}
	return out
}

// persist writes synchronously. Failures are logged and never surface: the
// in-memory ledger stays authoritative for the session.
func (l *Ledger) persist() {
	if err := l.store.Save(l.Snapshot()); err != nil {
		l.logger.Warn("cart persistence failed", zap.Error(err), zap.Int("entries", len(l.entries)))
	}
}
