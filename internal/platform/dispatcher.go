package platform

import "sync"

// EventHandler consumes an inbound event. It returns true when the event
// matched the handler's filter and was acted upon.
type EventHandler func(Event) bool

// Dispatcher fans inbound platform events out to registered handlers.
// Registration order is preserved so that, for a given key, events reach
// handlers in a stable order.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[int64]EventHandler
	order    []int64
	nextID   int64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[int64]EventHandler)}
}

// Register adds a handler and returns a function that removes it.
// The returned function is idempotent.
func (d *Dispatcher) Register(h EventHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.handlers[id] = h
	d.order = append(d.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.handlers, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers ev to every registered handler and returns how many
// consumed it. Handlers run synchronously on the caller's goroutine, which
// preserves arrival order for events on the same key.
func (d *Dispatcher) Dispatch(ev Event) int {
	d.mu.Lock()
	ids := make([]int64, len(d.order))
	copy(ids, d.order)
	handlers := make(map[int64]EventHandler, len(d.handlers))
	for id, h := range d.handlers {
		handlers[id] = h
	}
	d.mu.Unlock()

	consumed := 0
	for _, id := range ids {
		h, ok := handlers[id]
		if !ok {
			continue
		}
		if h(ev) {
			consumed++
		}
	}
	return consumed
}
