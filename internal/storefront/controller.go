package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/order"
)

var ErrUnknownProduct = errors.New("storefront: unknown product")

const (
	noticeConnecting = "Подключаемся к Telegram…"
	noticeLocked     = "Оформление заказа доступно только внутри Telegram. Откройте магазин через бота."
)

// CatalogSource provides the product list; failures degrade to empty.
type CatalogSource interface {
	LoadOrEmpty(ctx context.Context) []catalog.Product
}

// Deps are the collaborators a Controller owns.
type Deps struct {
	Catalog    CatalogSource
	Ledger     *cart.Ledger
	Handshake  *host.Handshake
	Submission *order.Submission
	Logger     *zap.Logger
}

// Controller holds all storefront state for one session.
type Controller struct {
	source     CatalogSource
	ledger     *cart.Ledger
	handshake  *host.Handshake
	submission *order.Submission
	logger     *zap.Logger

	products []catalog.Product
	byID     map[string]catalog.Product
	query    string
	model    string
	sort     catalog.SortMode
	contact  order.Contact
}

func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		source:     deps.Catalog,
		ledger:     deps.Ledger,
		handshake:  deps.Handshake,
		submission: deps.Submission,
		logger:     logger,
		byID:       map[string]catalog.Product{},
	}
}

// LoadCatalog replaces the product set wholesale and returns its size.
func (c *Controller) LoadCatalog(ctx context.Context) int {
	var products []catalog.Product
	if c.source != nil {
		products = c.source.LoadOrEmpty(ctx)
	}
	c.products = products
	c.byID = make(map[string]catalog.Product, len(products))
	for _, p := range products {
		c.byID[p.ID] = p
	}
	if c.model != "" {
		if _, ok := c.modelSet()[c.model]; !ok {
			c.model = ""
		}
	}
	c.logger.Info("catalog loaded", zap.Int("products", len(products)))
	return len(products)
}

func (c *Controller) modelSet() map[string]struct{} {
	set := map[string]struct{}{}
	for _, m := range catalog.Models(c.products) {
		set[m] = struct{}{}
	}
	return set
}

func (c *Controller) SetQuery(q string) { c.query = q }

func (c *Controller) SetModel(m string) { c.model = strings.TrimSpace(m) }

func (c *Controller) SetSort(mode catalog.SortMode) { c.sort = mode }

// Filters returns the current query, model facet and sort mode.
func (c *Controller) Filters() (string, string, catalog.SortMode) {
	return c.query, c.model, c.sort
}

// Models lists the facet options.
func (c *Controller) Models() []string {
	return catalog.Models(c.products)
}

// Products runs the search over the current catalog.
func (c *Controller) Products() []ProductView {
	found := catalog.Search(c.products, c.query, c.model, c.sort)
	views := make([]ProductView, 0, len(found))
	for _, p := range found {
		inCart := 0
		if e, ok := c.ledger.Get(p.ID); ok {
			inCart = e.Qty
		}
		views = append(views, ProductView{
			ID:        p.ID,
			Title:     catalog.CleanTitle(p.Title),
			Meta:      catalog.MetaLine(p),
			Price:     p.Price,
			PriceText: money(p.Price),
			Image:     p.Image,
			InCart:    inCart,
		})
	}
	return views
}

// Add puts one unit of a catalog product into the cart.
func (c *Controller) Add(id string) error {
	p, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}
	c.ledger.Add(p)
	if b := c.handshake.Bridge(); b != nil {
		host.Impact(b, "light")
	}
	return nil
}

// SetQty changes a cart line; qty <= 0 removes it.
func (c *Controller) SetQty(id string, qty int) {
	c.ledger.SetQty(id, qty)
}

// Step changes a cart line by delta.
func (c *Controller) Step(id string, delta int) {
	if e, ok := c.ledger.Get(id); ok {
		c.ledger.SetQty(id, e.Qty+delta)
	}
}

func (c *Controller) ClearCart() { c.ledger.Clear() }

// Cart renders the cart drawer from the snapshotted entries.
func (c *Controller) Cart() CartView {
	entries := c.ledger.Entries()
	lines := make([]CartLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, CartLine{
			ID:        e.ID,
			Title:     e.Title,
			Meta:      e.Meta,
			Image:     e.Image,
			Qty:       e.Qty,
			Price:     e.Price,
			PriceText: money(e.Price),
			LineTotal: e.Price * int64(e.Qty),
		})
	}
	total := c.ledger.Total()
	return CartView{Lines: lines, Count: c.ledger.Count(), Total: total, TotalText: money(total)}
}

// Contact returns the order form draft.
func (c *Controller) Contact() order.Contact { return c.contact }

// SetContact replaces the order form draft.
func (c *Controller) SetContact(ct order.Contact) { c.contact = ct }

// Checkout describes the state of the order form.
func (c *Controller) Checkout() CheckoutView {
	v := CheckoutView{HostReady: c.handshake.IsReady()}
	if !v.HostReady {
		v.Notice = noticeLocked
		if c.handshake.State() == host.Polling || c.handshake.State() == host.Unbound {
			v.Notice = noticeConnecting
		}
	}
	if err := c.submission.Check(c.contact); err != nil {
		v.Reason = reason(err)
	} else {
		v.Enabled = true
	}
	return v
}

// Submit sends the current cart with the drafted contact. A success clears the
// draft comment along with the cart.
func (c *Controller) Submit(ctx context.Context) (order.Result, error) {
	res, err := c.submission.Submit(ctx, c.contact)
	if err == nil {
		c.contact.Comment = ""
	}
	return res, err
}

// CloseCheckout abandons the order form. A failed or finished submission goes
// back to Idle; one still in flight is left alone.
func (c *Controller) CloseCheckout() {
	c.submission.Reset()
	c.logger.Debug("checkout closed", zap.Stringer("state", c.submission.State()))
}

// Greeting addresses the host user by first name when known.
func (c *Controller) Greeting() string {
	u := c.handshake.Context().User
	if u == nil {
		return ""
	}
	name := u.FirstName
	if name == "" {
		name = "друг"
	}
	return "Привет, " + name + "!"
}

// Message turns a submission error into text for the user.
func Message(err error) string {
	return reason(err)
}

func reason(err error) string {
	var verr *order.ValidationError
	var tooLarge *order.PayloadTooLargeError
	var terr *order.TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		switch verr.Field {
		case order.FieldName:
			return "Укажите имя (минимум 2 символа)."
		case order.FieldPhone:
			return "Укажите телефон (минимум 10 цифр)."
		case order.FieldEmptyCart:
			return "Корзина пустая."
		}
		return "Проверьте данные заказа."
	case errors.Is(err, order.ErrNotInHostEnvironment):
		return "Откройте магазин внутри Telegram (Mini App)."
	case errors.Is(err, order.ErrSessionContextTimeout):
		return "Telegram не передал данные сессии. Попробуйте ещё раз."
	case errors.As(err, &tooLarge):
		return "Заказ слишком большой. Уберите часть товаров из корзины."
	case errors.As(err, &terr):
		return "Не удалось отправить заказ. Попробуйте ещё раз."
	case errors.Is(err, order.ErrInFlight):
		return "Заказ уже отправляется."
	default:
		return "Что-то пошло не так. Попробуйте ещё раз."
	}
}
