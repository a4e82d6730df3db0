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
	"github.com/liudaoqiangtj/lessync/protocol"
)

// multiplexer demultiplexes each connected peer's inbound message
// stream into announcements (pushed onto the announcement queue) and
// reply dispatches (handed to the correlator).
type multiplexer struct {
	peers  *PeerSet
	corr   *correlator
	queue  *announcementQueue
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newMultiplexer(peers *PeerSet, corr *correlator, queue *announcementQueue) *multiplexer {
	return &multiplexer{
		peers:  peers,
		corr:   corr,
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// start subscribes to peer lifecycle events and spawns one pump
// goroutine per currently- and newly-connected peer.
func (m *multiplexer) start() {
	events := make(chan PeerEvent, 64)
	sub := m.peers.Subscribe(events)

	for _, p := range m.peers.All() {
		m.onConnect(p)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				switch ev.Kind {
				case PeerConnected:
					m.onConnect(ev.Peer)
				case PeerDisconnected:
					m.onDisconnect(ev.Peer)
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// onConnect synthetically enqueues the peer's current head so the
// synchronizer attempts to align with it immediately, then starts the
// per-peer pump goroutine.
func (m *multiplexer) onConnect(p Peer) {
	m.queue.push(peerAnnouncement{peer: p, head: p.HeadInfo()})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pump(p)
	}()
}

// onDisconnect is a no-op hook kept for symmetry with onConnect.
// LastProcessedAnnouncements bookkeeping lives on the synchronizer, not
// the multiplexer; whoever owns that map registers its own listener via
// Subscribe instead of going through the multiplexer.
func (m *multiplexer) onDisconnect(p Peer) {}

// pump reads one peer's inbound stream until it closes (disconnect) or
// the multiplexer is stopped, classifying each message as it arrives.
func (m *multiplexer) pump(p Peer) {
	msgs := p.Messages()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			m.dispatch(p, msg)
		case <-m.stopCh:
			return
		}
	}
}

func (m *multiplexer) dispatch(p Peer, msg protocol.InboundMessage) {
	switch v := msg.(type) {
	case protocol.Announce:
		head := HeadInfo{Hash: v.Hash, Number: v.Number, TotalDifficulty: v.TotalDifficulty, ReorgDepth: v.ReorgDepth}
		p.SetHeadInfo(head)
		m.queue.push(peerAnnouncement{peer: p, head: head})
	case protocol.Reply:
		m.corr.deliver(v.RequestID, v.Payload)
	default:
		log.Warn("Unexpected message from peer", "peer", p.ID())
	}
}

// stop signals every pump and the event-subscription goroutine to
// exit, then waits for them.
func (m *multiplexer) stop() {
	close(m.stopCh)
	m.wg.Wait()
}
