// Package hosttest provides an in-memory host bridge and a simulated clock.
package hosttest

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/susu3304/minishop/internal/host"
)

// Clock is a fake clock that advances only when something waits on it.
type Clock struct {
	clockwork.FakeClock

	mu     sync.Mutex
	waited []time.Duration
}

func NewClock() *Clock {
	return &Clock{FakeClock: clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))}
}

// After moves the clock forward by d and returns an already fired channel.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waited = append(c.waited, d)
	c.mu.Unlock()
	c.FakeClock.Advance(d)

	ch := make(chan time.Time, 1)
	ch <- c.FakeClock.Now()
	return ch
}

// Elapsed is the total simulated time spent waiting.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.waited {
		total += d
	}
	return total
}

// Waits returns every duration passed to After.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waited...)
}

// Bridge records every call made on it.
type Bridge struct {
	mu sync.Mutex

	Init    string
	Unsafe  host.InitDataUnsafe
	SendErr error

	// OnSend runs before SendData returns; it may mutate the bridge.
	OnSend func(data string)

	ReadyCalls  int
	ExpandCalls int
	Sent        []string
	Popups      []string
	Alerts      []string
	Impacts     []string
	Notices     []string
	Closed      int
}

var (
	_ host.Bridge  = (*Bridge)(nil)
	_ host.Haptics = (*Bridge)(nil)
)

// NewBridge returns a bridge carrying a complete session.
func NewBridge() *Bridge {
	return &Bridge{
		Init: "query_id=AAH&user=%7B%22id%22%3A42%7D&auth_date=1714564800&hash=00",
		Unsafe: host.InitDataUnsafe{
			QueryID:  "AAH",
			User:     &host.User{ID: 42, Username: "ivan", FirstName: "Ivan"},
			AuthDate: 1714564800,
		},
	}
}

func (b *Bridge) Ready()  { b.mu.Lock(); b.ReadyCalls++; b.mu.Unlock() }
func (b *Bridge) Expand() { b.mu.Lock(); b.ExpandCalls++; b.mu.Unlock() }

func (b *Bridge) InitData() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Init
}

func (b *Bridge) InitDataUnsafe() host.InitDataUnsafe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Unsafe
}

func (b *Bridge) SendData(data string) error {
	b.mu.Lock()
	hook, err := b.OnSend, b.SendErr
	b.mu.Unlock()
	if hook != nil {
		hook(data)
	}
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.Sent = append(b.Sent, data)
	b.mu.Unlock()
	return nil
}

func (b *Bridge) ShowPopup(title, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Popups = append(b.Popups, title+": "+message)
}

func (b *Bridge) ShowAlert(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Alerts = append(b.Alerts, message)
}

func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed++
}

func (b *Bridge) ImpactOccurred(style string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Impacts = append(b.Impacts, style)
}

func (b *Bridge) NotificationOccurred(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Notices = append(b.Notices, kind)
}

// SetInitData replaces the init data token.
func (b *Bridge) SetInitData(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Init = raw
}

// SentCount is the number of successful SendData calls.
func (b *Bridge) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

// DetectAfter returns a detector that finds b only from the n-th probe on.
// n <= 1 finds it immediately; a nil b is never found.
func DetectAfter(b host.Bridge, n int) host.Detector {
	probes := 0
	return func() host.Bridge {
		probes++
		if b == nil || probes < n {
			return nil
		}
		return b
	}
}
