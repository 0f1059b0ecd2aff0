package storefront

import "github.com/susu3304/minishop/internal/catalog"

// ProductView is a catalog card.
type ProductView struct {
	ID        string
	Title     string
	Meta      string
	Price     int64
	PriceText string
	Image     string
	InCart    int
}

// CartLine is one row of the cart drawer.
type CartLine struct {
	ID        string
	Title     string
	Meta      string
	Image     string
	Qty       int
	Price     int64
	PriceText string
	LineTotal int64
}

// CartView is the cart drawer.
type CartView struct {
	Lines     []CartLine
	Count     int
	Total     int64
	TotalText string
}

func (v CartView) Empty() bool { return len(v.Lines) == 0 }

// CheckoutView tells the presentation layer whether the order form can submit
// and which persistent notice to show.
type CheckoutView struct {
	HostReady bool
	Enabled   bool
	Notice    string
	Reason    string
}

func money(v int64) string {
	return catalog.FormatPrice(v) + " ₽"
}
