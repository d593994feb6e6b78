// Package collector implements bounded-lifetime subscriptions to filtered
// inbound platform events. A collector emits a collect notification for every
// matching event until it closes via absolute TTL, idle timeout, or an
// explicit Stop, and fires exactly one end notification.
package collector

import (
	"sync"
	"time"

	"github.com/nia-ops/warden/internal/platform"
)

// EndReason describes why a collector closed.
type EndReason string

const (
	// ReasonTTL means the absolute time-to-live elapsed.
	ReasonTTL EndReason = "ttl"

	// ReasonIdle means no qualifying event arrived within the idle window.
	ReasonIdle EndReason = "idle"

	// ReasonStopped means Stop was called.
	ReasonStopped EndReason = "stopped"
)

// Config configures a collector. At least one of TTL or Idle should be set;
// a collector with neither runs until stopped.
type Config struct {
	// TTL closes the collector once this duration has elapsed from open
	// time, regardless of activity. Zero disables it.
	TTL time.Duration

	// Idle closes the collector once this duration has elapsed with no
	// qualifying event. Every collect refreshes the window. Zero disables it.
	Idle time.Duration

	// Filter selects qualifying events. A nil filter matches everything.
	Filter func(platform.Event) bool

	// OnCollect is invoked for every qualifying event while open.
	OnCollect func(platform.Event)

	// OnEnd is invoked exactly once when the collector closes, with the
	// number of collected events and the close reason.
	OnEnd func(collected int, reason EndReason)
}

// Collector is a live handle. Obtain one via Open.
type Collector struct {
	cfg Config

	mu        sync.Mutex
	collected int
	closed    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	activity chan struct{}
	done     chan struct{}
	detach   func()
}

// Open starts a collector and registers it on the dispatcher. The collector
// detaches itself from the dispatcher when it closes.
func Open(d *platform.Dispatcher, cfg Config) *Collector {
	c := &Collector{
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		activity: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if d != nil {
		c.detach = d.Register(c.Handle)
	}
	go c.run()
	return c
}

// Handle offers an event to the collector. It returns true when the event
// qualified and the collector was still open.
func (c *Collector) Handle(ev platform.Event) bool {
	c.mu.Lock()
	if c.closed || (c.cfg.Filter != nil && !c.cfg.Filter(ev)) {
		c.mu.Unlock()
		return false
	}
	c.collected++
	c.mu.Unlock()

	// Refresh the idle window. A dropped signal is fine: one is already
	// pending and the refresh it triggers covers this event too.
	select {
	case c.activity <- struct{}{}:
	default:
	}

	if c.cfg.OnCollect != nil {
		c.cfg.OnCollect(ev)
	}
	return true
}

// Stop closes the collector immediately. Stopping an already-closed
// collector is a no-op; the end notification still fires exactly once.
// Safe to call from within another handler, including OnCollect.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed after the end notification has fired.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Collected returns the number of qualifying events seen so far.
func (c *Collector) Collected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collected
}

func (c *Collector) run() {
	var ttlC <-chan time.Time
	if c.cfg.TTL > 0 {
		t := time.NewTimer(c.cfg.TTL)
		defer t.Stop()
		ttlC = t.C
	}

	var idle *time.Timer
	var idleC <-chan time.Time
	if c.cfg.Idle > 0 {
		idle = time.NewTimer(c.cfg.Idle)
		defer idle.Stop()
		idleC = idle.C
	}

	reason := ReasonStopped
loop:
	for {
		select {
		case <-c.stopCh:
			reason = ReasonStopped
			break loop
		case <-ttlC:
			reason = ReasonTTL
			break loop
		case <-idleC:
			reason = ReasonIdle
			break loop
		case <-c.activity:
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(c.cfg.Idle)
			}
		}
	}

	c.mu.Lock()
	c.closed = true
	n := c.collected
	c.mu.Unlock()

	if c.detach != nil {
		c.detach()
	}
	if c.cfg.OnEnd != nil {
		c.cfg.OnEnd(n, reason)
	}
	close(c.done)
}
