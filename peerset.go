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

	"github.com/ethereum/go-ethereum/event"
)

// PeerEventKind distinguishes a peer connecting from disconnecting.
type PeerEventKind int

const (
	PeerConnected PeerEventKind = iota
	PeerDisconnected
)

// PeerEvent is broadcast on PeerSet's feed for every connect/disconnect.
type PeerEvent struct {
	Kind PeerEventKind
	Peer Peer
}

// PeerSet is the registry of currently connected peers. It owns the
// connect/disconnect feed the multiplexer subscribes to.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]Peer
	feed  event.Feed
}

// NewPeerSet creates an empty peer registry.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[string]Peer)}
}

// Register adds a newly connected peer and broadcasts PeerConnected.
func (s *PeerSet) Register(p Peer) {
	s.mu.Lock()
	s.peers[p.ID()] = p
	s.mu.Unlock()
	s.feed.Send(PeerEvent{Kind: PeerConnected, Peer: p})
}

// Unregister removes a disconnected peer and broadcasts
// PeerDisconnected.
func (s *PeerSet) Unregister(id string) {
	s.mu.Lock()
	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
	}
	s.mu.Unlock()
	if ok {
		s.feed.Send(PeerEvent{Kind: PeerDisconnected, Peer: p})
	}
}

// Subscribe registers ch to receive every future PeerEvent.
func (s *PeerSet) Subscribe(ch chan<- PeerEvent) event.Subscription {
	return s.feed.Subscribe(ch)
}

// All returns a snapshot slice of currently connected peers.
func (s *PeerSet) All() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// BestPeer returns the connected peer currently advertising the
// greatest total difficulty, or nil if no peers are connected. This is
// the entirety of the core's peer selection policy: no load balancing,
// no failover, just the peer most likely to have the data.
func (s *PeerSet) BestPeer() Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best Peer
	for _, p := range s.peers {
		if best == nil || p.TotalDifficulty().Cmp(best.TotalDifficulty()) > 0 {
			best = p
		}
	}
	return best
}
