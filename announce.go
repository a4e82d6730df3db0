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

	"github.com/ethereum/go-ethereum/log"
)

// peerAnnouncement is one (peer, head) pair waiting to be processed by
// the synchronizer.
type peerAnnouncement struct {
	peer Peer
	head HeadInfo
}

// announcementQueue is the FIFO of pending (peer, head) announcements
// waiting for the synchronizer. It is unbounded by default (limit ==
// 0); a positive limit bounds the queue with drop-oldest semantics, so
// a noisy or hostile peer flooding announcements cannot grow the queue
// without bound.
type announcementQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []peerAnnouncement
	limit int
	closed bool
}

func newAnnouncementQueue(limit int) *announcementQueue {
	q := &announcementQueue{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends an announcement, waking exactly one waiting consumer.
// When the queue has a positive limit and is full, the oldest entry is
// dropped to make room and a warning is logged.
func (q *announcementQueue) push(a peerAnnouncement) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		log.Warn("Announcement queue full, dropping oldest entry", "limit", q.limit)
		q.items = q.items[1:]
	}
	q.items = append(q.items, a)
	q.cond.Signal()
}

// pop blocks until an announcement is available or the queue is
// closed, in which case ok is false.
func (q *announcementQueue) pop() (peerAnnouncement, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 && q.closed {
		return peerAnnouncement{}, false
	}
	a := q.items[0]
	q.items = q.items[1:]
	return a, true
}

// close wakes every blocked consumer; subsequent pop calls return
// immediately with ok == false.
func (q *announcementQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
