// Package session maintains the client-side session fact: who is signed in
// right now, with what verified privileges, and whether that answer is still
// being resolved. The fact is held in a watchable cell written by a single
// goroutine, so every observer sees the same ordered sequence of states.
package session

import "sync"

// Principal describes the signed-in user as far as the session layer has
// verified it. Admin is true only when a verified channel said so.
type Principal struct {
	ID            string
	Email         string
	DisplayName   string
	EmailVerified bool
	Admin         bool
}

// Snapshot is one observation of the session fact. Loading is true only
// before the first identity event has been fully resolved; afterwards the
// fact is always settled, signed-in or not.
type Snapshot struct {
	Principal *Principal
	Loading   bool
}

const watchBuffer = 16

// Cell holds the current Snapshot and fans out every write, in order, to
// all watchers. Writes come from exactly one goroutine; reads and watch
// registration may come from anywhere.
type Cell struct {
	mu       sync.Mutex
	current  Snapshot
	watchers map[chan Snapshot]struct{}
	closed   bool
}

// NewCell starts in the loading state with no principal.
func NewCell() *Cell {
	return &Cell{
		current:  Snapshot{Principal: nil, Loading: true},
		watchers: map[chan Snapshot]struct{}{},
	}
}

// Get returns the current snapshot.
func (c *Cell) Get() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Watch registers a watcher. The channel first delivers the current
// snapshot, then every subsequent write in order. The cancel function
// unregisters and closes the channel.
func (c *Cell) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, watchBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- c.current
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[ch]; ok {
			delete(c.watchers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Set publishes a new snapshot. A watcher that has fallen watchBuffer
// states behind loses its oldest pending state, never the newest.
func (c *Cell) Set(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.current = snapshot
	for ch := range c.watchers {
		for {
			select {
			case ch <- snapshot:
			default:
				select {
				case <-ch:
					continue
				default:
				}
			}
			break
		}
	}
}

// Close closes all watcher channels. The last written snapshot remains
// readable through Get.
func (c *Cell) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for ch := range c.watchers {
		close(ch)
	}
	c.watchers = map[chan Snapshot]struct{}{}
}
