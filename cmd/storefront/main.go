package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/config"
	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/host/remote"
	"github.com/susu3304/minishop/internal/logging"
	"github.com/susu3304/minishop/internal/order"
	"github.com/susu3304/minishop/internal/storefront"
)

const help = `Команды:
  list                       каталог
  find <текст>               поиск
  model <модель|->           фильтр по модели
  sort <cheap|expensive|new|memory|->
  add <id>                   в корзину
  qty <id> <n>               количество (0 удаляет)
  + <id> | - <id>            на одну штуку больше или меньше
  cart                       корзина
  clear                      очистить корзину
  name|phone|comment <...>   данные заказа
  checkout                   оформить заказ
  cancel                     закрыть форму заказа
  retry                      переподключиться к Telegram
  quit`

func main() {
	cfg, err := config.LoadStorefront()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := &terminal{w: os.Stdout}
	bridge := remote.New(remote.Config{
		Context:   ctx,
		BaseURL:   cfg.ShopURL,
		InitData:  cfg.InitData,
		Presenter: out,
		Logger:    logger.Named("bridge"),
	})
	handshake := host.NewHandshake(remote.Detector(ctx, bridge), host.HandshakeConfig{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollAttempts,
		Logger:      logger.Named("handshake"),
	})
	ledger := cart.Open(cart.NewFileStore(cfg.CartPath), logger.Named("cart"))
	submission := order.New(ledger, handshake, order.NewRelayClient(cfg.RelayURL, cfg.RelayToken), order.Config{
		ContextTimeout:  cfg.ContextTimeout,
		MaxPayloadChars: cfg.MaxPayloadChars,
		CloseDelay:      cfg.CloseDelay,
		Logger:          logger.Named("order"),
	})
	ctrl := storefront.New(storefront.Deps{
		Catalog:    catalog.NewSource(strings.TrimRight(cfg.ShopURL, "/")+"/products.json", logger.Named("catalog")),
		Ledger:     ledger,
		Handshake:  handshake,
		Submission: submission,
		Logger:     logger.Named("storefront"),
	})

	r := &repl{ctx: ctx, ctrl: ctrl, handshake: handshake, out: out, logger: logger}
	handshake.OnChange(r.hostChanged)

	go handshake.Start(ctx)
	n := ctrl.LoadCatalog(ctx)
	out.printf("Товаров в каталоге: %d\n", n)
	out.println(help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for !out.closed.Load() {
		out.prompt()
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !r.exec(line) {
				return
			}
		}
	}
}

type terminal struct {
	w      io.Writer
	closed atomic.Bool
}

func (t *terminal) println(s string) { fmt.Fprintln(t.w, s) }

func (t *terminal) printf(format string, args ...any) { fmt.Fprintf(t.w, format, args...) }

func (t *terminal) prompt() { fmt.Fprint(t.w, "> ") }

func (t *terminal) Popup(title, message string) { t.printf("\n[%s] %s\n", title, message) }

func (t *terminal) Alert(message string) { t.printf("\n[!] %s\n", message) }

func (t *terminal) Haptic(string) {}

func (t *terminal) Close() {
	t.println("Магазин закрыт.")
	t.closed.Store(true)
}

type repl struct {
	ctx       context.Context
	ctrl      *storefront.Controller
	handshake *host.Handshake
	out       *terminal
	logger    *zap.Logger
}

func (r *repl) hostChanged(ready bool) {
	if !ready {
		r.out.println("Telegram недоступен. Оформление заказа заблокировано (команда retry).")
		return
	}
	r.out.println("✓ Подключено к Telegram.")
	if g := r.ctrl.Greeting(); g != "" {
		r.out.println(g)
	}
}

// exec runs one command line and reports whether to keep reading.
func (r *repl) exec(line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	cmd, rest = strings.ToLower(cmd), strings.TrimSpace(rest)
	c := r.ctrl

	switch cmd {
	case "":
	case "help":
		r.out.println(help)
	case "list":
		r.list()
	case "find":
		c.SetQuery(rest)
		r.list()
	case "model":
		if rest == "-" {
			rest = ""
		}
		c.SetModel(rest)
		r.list()
	case "models":
		r.out.println(strings.Join(c.Models(), "\n"))
	case "sort":
		c.SetSort(catalog.ParseSortMode(strings.TrimPrefix(rest, "-")))
		r.list()
	case "add":
		if err := c.Add(rest); err != nil {
			r.out.println("Нет такого товара: " + rest)
			return true
		}
		r.out.printf("Добавлено. В корзине: %d\n", c.Cart().Count)
	case "qty":
		id, n, ok := strings.Cut(rest, " ")
		qty, err := strconv.Atoi(strings.TrimSpace(n))
		if !ok || err != nil {
			r.out.println("Использование: qty <id> <n>")
			return true
		}
		c.SetQty(id, qty)
		r.cart()
	case "+", "-":
		delta := 1
		if cmd == "-" {
			delta = -1
		}
		c.Step(rest, delta)
		r.cart()
	case "cart":
		r.cart()
	case "clear":
		c.ClearCart()
		r.out.println("Корзина очищена.")
	case "name", "phone", "comment":
		ct := c.Contact()
		switch cmd {
		case "name":
			ct.Name = rest
		case "phone":
			ct.Phone = rest
		default:
			ct.Comment = rest
		}
		c.SetContact(ct)
		r.checkoutState()
	case "checkout":
		r.checkout()
	case "cancel":
		c.CloseCheckout()
		r.out.println("Оформление закрыто, корзина сохранена.")
	case "retry":
		go r.handshake.Start(r.ctx)
		r.out.println("Подключаемся к Telegram…")
	case "quit", "exit":
		return false
	default:
		r.out.println("Неизвестная команда. help — список команд.")
	}
	return true
}

func (r *repl) list() {
	if query, model, mode := r.ctrl.Filters(); query != "" || model != "" || mode != catalog.SortNone {
		r.out.printf("Фильтр: поиск %q, модель %q, сортировка %q\n", query, model, string(mode))
	}
	views := r.ctrl.Products()
	if len(views) == 0 {
		r.out.println("Ничего не найдено.")
		return
	}
	for _, p := range views {
		line := fmt.Sprintf("%-12s %s — %s", p.ID, p.Title, p.PriceText)
		if p.Meta != "" {
			line += " (" + p.Meta + ")"
		}
		if p.InCart > 0 {
			line += fmt.Sprintf(" [в корзине: %d]", p.InCart)
		}
		r.out.println(line)
	}
}

func (r *repl) cart() {
	v := r.ctrl.Cart()
	if v.Empty() {
		r.out.println("Корзина пустая.")
		return
	}
	for _, l := range v.Lines {
		r.out.printf("%-12s %s × %d = %s ₽\n", l.ID, l.Title, l.Qty, catalog.FormatPrice(l.LineTotal))
	}
	r.out.printf("Итого: %s (%d шт.)\n", v.TotalText, v.Count)
}

func (r *repl) checkoutState() {
	v := r.ctrl.Checkout()
	if v.Notice != "" {
		r.out.println(v.Notice)
	}
	if v.Reason != "" {
		r.out.println(v.Reason)
	}
}

func (r *repl) checkout() {
	v := r.ctrl.Checkout()
	if !v.Enabled {
		r.checkoutState()
		return
	}
	res, err := r.ctrl.Submit(r.ctx)
	if err != nil {
		r.logger.Debug("checkout failed", zap.Error(err))
		r.out.println(storefront.Message(err))
		return
	}
	r.out.printf("Заказ %s отправлен.\n", res.OrderID)
	if res.RelayErr != nil {
		r.out.println("Копия заказа не доставлена на сервер, администратор получит его через Telegram.")
	}
}
