package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/susu3304/minishop/internal/cart"
	"github.com/susu3304/minishop/internal/catalog"
	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/host/hosttest"
)

type stubSession struct {
	ready  bool
	bridge host.Bridge
	sc     host.SessionContext
	waits  int
	lastTO time.Duration
}

func (s *stubSession) IsReady() bool       { return s.ready }
func (s *stubSession) Bridge() host.Bridge { return s.bridge }
func (s *stubSession) AwaitFullContext(_ context.Context, timeout time.Duration) host.SessionContext {
	s.waits++
	s.lastTO = timeout
	return s.sc
}

type stubRelay struct {
	err  error
	sent []Payload
}

func (r *stubRelay) Forward(_ context.Context, p Payload) error {
	r.sent = append(r.sent, p)
	return r.err
}

var validContact = Contact{Name: "Ivan", Phone: "+7 916 123-45-67", Comment: " позвоните после 18 "}

func readyHandshake(t *testing.T, bridge *hosttest.Bridge, clock *hosttest.Clock) *host.Handshake {
	t.Helper()
	h := host.NewHandshake(hosttest.DetectAfter(bridge, 1), host.HandshakeConfig{Clock: clock})
	require.Equal(t, host.Ready, h.Start(context.Background()))
	return h
}

func ledgerWith(t *testing.T, products ...catalog.Product) *cart.Ledger {
	t.Helper()
	l := cart.Open(cart.NewMemoryStore(), nil)
	for _, p := range products {
		l.Add(p)
	}
	return l
}

func fixedID() string { return "01HXORDER" }

func TestSubmitScenarioA(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	h := readyHandshake(t, bridge, clock)
	p1 := catalog.Product{ID: "p1", Title: "iPhone 15", Price: 50000}
	ledger := ledgerWith(t, p1, p1)
	relay := &stubRelay{}

	sub := New(ledger, h, relay, Config{Clock: clock, IDGenerator: fixedID})
	require.Equal(t, 11, len(PhoneDigits(validContact.Phone)))
	require.True(t, sub.CanSubmit(validContact))

	res, err := sub.Submit(context.Background(), validContact)
	require.NoError(t, err)
	require.NoError(t, res.RelayErr)
	require.Equal(t, Succeeded, sub.State())
	require.Equal(t, "01HXORDER", res.OrderID)

	require.Len(t, bridge.Sent, 1)
	var sent Payload
	require.NoError(t, json.Unmarshal([]byte(bridge.Sent[0]), &sent))
	require.Equal(t, int64(100000), sent.Total)
	require.Equal(t, []Item{{ID: "p1", Title: "iPhone 15", Price: 50000, Qty: 2}}, sent.Items)
	require.Equal(t, "позвоните после 18", sent.Contact.Comment)
	require.Equal(t, int64(42), sent.TgUser.ID)
	require.Equal(t, "AAH", *sent.Source.QueryID)
	require.Equal(t, clock.Now().Add(-DefaultCloseDelay).Unix(), sent.TS)

	require.Len(t, relay.sent, 1)
	require.Equal(t, sent.OrderID, relay.sent[0].OrderID)

	require.True(t, ledger.IsEmpty())
	require.Equal(t, []string{"success"}, bridge.Notices)
	require.Len(t, bridge.Popups, 1)
	require.Equal(t, 1, bridge.Closed)
}

func TestCanSubmitScenarioB(t *testing.T) {
	clock := hosttest.NewClock()
	h := readyHandshake(t, hosttest.NewBridge(), clock)
	sub := New(ledgerWith(t, catalog.Product{ID: "p1", Price: 1}), h, nil, Config{Clock: clock})

	c := validContact
	c.Name = "A"
	require.False(t, sub.CanSubmit(c))
	var verr *ValidationError
	require.ErrorAs(t, sub.Check(c), &verr)
	require.Equal(t, FieldName, verr.Field)

	c.Name = "  Б "
	require.False(t, sub.CanSubmit(c))
}

func TestCheck(t *testing.T) {
	clock := hosttest.NewClock()
	h := readyHandshake(t, hosttest.NewBridge(), clock)

	tests := []struct {
		name    string
		contact Contact
		empty   bool
		field   Field
	}{
		{name: "short phone", contact: Contact{Name: "Ivan", Phone: "916-123-45"}, field: FieldPhone},
		{name: "phone letters ignored", contact: Contact{Name: "Ivan", Phone: "tel: 123456789x"}, field: FieldPhone},
		{name: "empty cart", contact: validContact, empty: true, field: FieldEmptyCart},
		{name: "two letter name ok", contact: Contact{Name: "Ян", Phone: "8 (916) 123 45 67"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := ledgerWith(t)
			if !tt.empty {
				ledger.Add(catalog.Product{ID: "p1", Price: 1})
			}
			err := New(ledger, h, nil, Config{Clock: clock}).Check(tt.contact)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCheckRequiresReadyHost(t *testing.T) {
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 1})

	sub := New(ledger, &stubSession{}, nil, Config{})
	require.ErrorIs(t, sub.Check(validContact), ErrNotInHostEnvironment)

	sub = New(ledger, &stubSession{bridge: hosttest.NewBridge()}, nil, Config{})
	require.ErrorIs(t, sub.Check(validContact), ErrSessionContextTimeout)
}

func TestSubmitAbortsWhenNoLongerSubmittable(t *testing.T) {
	session := &stubSession{ready: true, bridge: hosttest.NewBridge()}
	sub := New(ledgerWith(t), session, nil, Config{Clock: hosttest.NewClock()})

	_, err := sub.Submit(context.Background(), validContact)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, Idle, sub.State())
	require.Zero(t, session.waits)
}

func TestSubmitPayloadTooLargeScenarioC(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	h := readyHandshake(t, bridge, clock)

	ledger := ledgerWith(t)
	for i := 0; i < 60; i++ {
		ledger.Add(catalog.Product{ID: fmt.Sprintf("p%02d", i), Title: "iPhone 15 Pro Max 1TB Natural Titanium eSIM", Price: 150000})
	}
	before := ledger.Snapshot()

	sub := New(ledger, h, nil, Config{Clock: clock})
	_, err := sub.Submit(context.Background(), validContact)

	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Greater(t, tooLarge.Size, DefaultMaxPayloadChars)
	require.Equal(t, DefaultMaxPayloadChars, tooLarge.Limit)
	require.False(t, IsRetryable(err))
	require.Equal(t, Failed, sub.State())
	require.Equal(t, before, ledger.Snapshot())
	require.Empty(t, bridge.Sent)
	require.Len(t, bridge.Alerts, 1)
}

func TestSubmitSessionContextTimeoutScenarioD(t *testing.T) {
	bridge := hosttest.NewBridge()
	session := &stubSession{
		ready:  true,
		bridge: bridge,
		sc:     host.SessionContext{HostPresent: true},
	}
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	sub := New(ledger, session, nil, Config{ContextTimeout: 2 * time.Second})

	_, err := sub.Submit(context.Background(), validContact)
	require.ErrorIs(t, err, ErrSessionContextTimeout)
	require.Equal(t, Failed, sub.State())
	require.Equal(t, 1, session.waits)
	require.Equal(t, 2*time.Second, session.lastTO)
	require.False(t, ledger.IsEmpty())
	require.True(t, IsRetryable(err))

	_, err = sub.Submit(context.Background(), validContact)
	require.ErrorIs(t, err, ErrSessionContextTimeout)
	require.Equal(t, 2, session.waits)
	require.Empty(t, bridge.Sent)
}

func TestSubmitBridgeVanished(t *testing.T) {
	session := &stubSession{ready: true, bridge: hosttest.NewBridge(), sc: host.SessionContext{}}
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	sub := New(ledger, session, nil, Config{})

	_, err := sub.Submit(context.Background(), validContact)
	require.ErrorIs(t, err, ErrNotInHostEnvironment)
	require.False(t, ledger.IsEmpty())
}

func TestSubmitDegradedContextStillSends(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	bridge.Unsafe = host.InitDataUnsafe{}
	h := readyHandshake(t, bridge, clock)
	sub := New(ledgerWith(t, catalog.Product{ID: "p1", Price: 10}), h, nil, Config{Clock: clock})

	res, err := sub.Submit(context.Background(), validContact)
	require.NoError(t, err)
	require.Nil(t, res.Payload.TgUser)
	require.Nil(t, res.Payload.Source.QueryID)
	require.Contains(t, bridge.Sent[0], `"tg_user":null`)
	require.Contains(t, bridge.Sent[0], `"query_id":null`)
}

func TestSubmitBridgeFailureKeepsCart(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	bridge.SendErr = errors.New("WebAppDataInvalid")
	h := readyHandshake(t, bridge, clock)
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	relay := &stubRelay{}
	sub := New(ledger, h, relay, Config{Clock: clock})

	_, err := sub.Submit(context.Background(), validContact)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, LegBridge, terr.Leg)
	require.Equal(t, Failed, sub.State())
	require.Equal(t, err, sub.Err())
	require.False(t, ledger.IsEmpty())
	require.Empty(t, relay.sent)
	require.Equal(t, []string{"error"}, bridge.Notices)
	require.Zero(t, bridge.Closed)

	// Retry after the host recovers.
	bridge.SendErr = nil
	_, err = sub.Submit(context.Background(), validContact)
	require.NoError(t, err)
	require.Equal(t, Succeeded, sub.State())
	require.True(t, ledger.IsEmpty())
}

func TestSubmitRelayFailureDoesNotRollBack(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	h := readyHandshake(t, bridge, clock)
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	sub := New(ledger, h, &stubRelay{err: errors.New("502")}, Config{Clock: clock})

	res, err := sub.Submit(context.Background(), validContact)
	require.NoError(t, err)
	var terr *TransportError
	require.ErrorAs(t, res.RelayErr, &terr)
	require.Equal(t, LegRelay, terr.Leg)
	require.Len(t, bridge.Sent, 1)
	require.True(t, ledger.IsEmpty())
	require.Equal(t, Succeeded, sub.State())
}

func TestSubmitRejectsConcurrentSubmit(t *testing.T) {
	clock := hosttest.NewClock()
	bridge := hosttest.NewBridge()
	h := readyHandshake(t, bridge, clock)
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	sub := New(ledger, h, nil, Config{Clock: clock})

	var nested error
	bridge.OnSend = func(string) {
		_, nested = sub.Submit(context.Background(), validContact)
	}

	_, err := sub.Submit(context.Background(), validContact)
	require.NoError(t, err)
	require.ErrorIs(t, nested, ErrInFlight)
	require.Len(t, bridge.Sent, 1)
}

func TestSubmitCancelledWhileAwaitingContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &stubSession{ready: true, bridge: hosttest.NewBridge(), sc: host.SessionContext{HostPresent: true, InitData: "x"}}
	ledger := ledgerWith(t, catalog.Product{ID: "p1", Price: 10})
	sub := New(ledger, session, nil, Config{})

	_, err := sub.Submit(ctx, validContact)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Idle, sub.State())
	require.False(t, ledger.IsEmpty())
}

func TestEncodeCountsUTF16(t *testing.T) {
	require.Equal(t, 2, Length("😀"))
	require.Equal(t, 6, Length("привет"))

	p := Payload{Contact: Contact{Name: strings.Repeat("я", 50)}}
	_, err := Encode(p, 50)
	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)

	s, err := Encode(p, 0)
	require.NoError(t, err)
	require.NotEmpty(t, s)
}
