// Copyright 2024 The lessync Authors
// This file is part of the lessync library.
//
// The lessync library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The lessync library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the lessync library. If not, see <http://www.gnu.org/licenses/>.

package lessync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// correlator issues request IDs, parks one-shot waiters keyed by that
// ID, and delivers matching replies. It lets any number of outbound
// requests be in flight concurrently against a single connection while
// keeping each caller's wait scoped to its own reply.
//
// Request IDs are issued monotonically for the lifetime of a
// correlator; uniqueness within the live set is all that's required,
// and monotonic IDs keep tests and logs deterministic.
type correlator struct {
	nextID uint64 // atomic

	mu      sync.Mutex
	pending map[uint64]chan interface{}
	closed  bool

	timeout time.Duration
}

func newCorrelator(timeout time.Duration) *correlator {
	return &correlator{
		pending: make(map[uint64]chan interface{}),
		timeout: timeout,
	}
}

// nextRequestID returns the next request ID. Exposed separately from
// sendAndWait in case a future caller needs the ID before building its
// request; sendAndWait is the only current caller.
func (c *correlator) nextRequestID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// sendAndWait issues a request ID, registers a one-shot delivery slot,
// invokes build(reqID) to dispatch the request, and suspends until
// either the slot is fulfilled, the correlator's timeout elapses, or
// the service is stopped.
func (c *correlator) sendAndWait(stop <-chan struct{}, build func(reqID uint64) error) (interface{}, error) {
	reqID := c.nextRequestID()

	ch := make(chan interface{}, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCancelled
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	if err := build(reqID); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrCancelled
		}
		return reply, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, ErrTimeout
	case <-stop:
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, ErrCancelled
	}
}

// deliver matches an incoming reply to its waiter by request ID. A
// reply for an unknown ID (already timed out, or never registered) is
// logged and discarded without side effect.
func (c *correlator) deliver(reqID uint64, payload interface{}) {
	c.mu.Lock()
	ch, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
	}
	c.mu.Unlock()

	if !ok {
		log.Debug("Discarding reply for unknown or expired request", "reqID", reqID)
		return
	}
	// Buffered with capacity 1, so this never blocks even if the
	// waiter already gave up between the lock release above and here.
	ch <- payload
}

// stop prevents any new request from being registered and resumes
// every currently suspended waiter with ErrCancelled.
func (c *correlator) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}
