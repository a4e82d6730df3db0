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
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/liudaoqiangtj/lessync/headerdb"
	"github.com/liudaoqiangtj/lessync/protocol"
)

func newGenesis() *types.Header {
	return newTestHeader(0, common.Hash{}, 0)
}

// driveHeaderRequests answers every GetBlockHeadersByNumber request on
// peer with headers taken from chain (chain[0] is block 1). It runs
// until stop is closed.
func driveHeaderRequests(t *testing.T, peer *fakePeer, chain []*types.Header, stop <-chan struct{}) {
	t.Helper()
	byNumber := make(map[uint64]*types.Header, len(chain))
	for _, h := range chain {
		byNumber[h.Number.Uint64()] = h
	}
	go func() {
		for {
			select {
			case req := <-peer.sub.requests:
				if req.kind != "headersByNumber" {
					continue
				}
				var headers []*types.Header
				for n := req.start; n < req.start+req.max; n++ {
					if h, ok := byNumber[n]; ok {
						headers = append(headers, h)
					}
				}
				peer.reply(req.reqID, &protocol.BlockHeadersReply{Headers: headers})
			case <-stop:
				return
			}
		}
	}()
}

func newTestService(t *testing.T, db headerdb.Database) (*Service, *PeerSet) {
	t.Helper()
	peers := NewPeerSet()
	cfg := DefaultConfig()
	cfg.ReplyTimeout = 2 * time.Second
	cfg.FetchRetryBackoff = 10 * time.Millisecond
	svc := New(peers, db, noopValidate, cfg)
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc, peers
}

// Scenario 1: fresh sync from genesis.
func TestSyncFreshFromGenesis(t *testing.T) {
	genesis := newGenesis()
	db := headerdb.NewMemory(genesis)
	chain := buildChain(genesis, 5)

	svc, peers := newTestService(t, db)

	done := make(chan struct{})
	svc.syncDone = func() { close(done) }

	stop := make(chan struct{})
	defer close(stop)

	tip := chain[len(chain)-1]
	peer := newFakePeer("p1", HeadInfo{Hash: tip.Hash(), Number: 5, TotalDifficulty: big.NewInt(5)}, 192)
	driveHeaderRequests(t, peer, chain, stop)
	peers.Register(peer)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("sync did not complete in time")
	}

	for _, h := range chain {
		ok, err := db.HeaderExists(context.Background(), h.Hash())
		if err != nil || !ok {
			t.Fatalf("expected header #%d to be persisted", h.Number.Uint64())
		}
	}
	if peer.wasDisconnectedWith(DisconnectSubprotocolError) || peer.wasDisconnectedWith(DisconnectTimeout) {
		t.Fatal("peer should not have been disconnected")
	}
}

// Scenario 2: incremental sync re-fetches the last synced block.
func TestSyncIncrementalRefetchesLastBlock(t *testing.T) {
	genesis := newGenesis()
	db := headerdb.NewMemory(genesis)
	chain := buildChain(genesis, 7)
	for _, h := range chain[:5] {
		if err := db.PersistHeader(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	svc, peers := newTestService(t, db)
	svc.lastProcessed.set("p1", HeadInfo{Hash: chain[4].Hash(), Number: 5})

	done := make(chan struct{})
	svc.syncDone = func() { close(done) }

	stop := make(chan struct{})
	defer close(stop)

	tip := chain[6]
	peer := newFakePeer("p1", HeadInfo{Hash: tip.Hash(), Number: 7}, 192)

	var sawRefetch bool
	go func() {
		for {
			select {
			case req := <-peer.sub.requests:
				if req.kind == "headersByNumber" {
					if req.start == 5 {
						sawRefetch = true
					}
					var headers []*types.Header
					for _, h := range chain {
						if h.Number.Uint64() >= req.start && h.Number.Uint64() < req.start+req.max {
							headers = append(headers, h)
						}
					}
					peer.reply(req.reqID, &protocol.BlockHeadersReply{Headers: headers})
				}
			case <-stop:
				return
			}
		}
	}()
	peers.Register(peer)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("sync did not complete in time")
	}

	if !sawRefetch {
		t.Fatal("expected the synchronizer to re-fetch starting at the last synced block (5)")
	}
	ok, _ := db.HeaderExists(context.Background(), chain[6].Hash())
	if !ok {
		t.Fatal("expected header #7 to be persisted")
	}
}

// Scenario 4: all fetch attempts time out, peer is disconnected with
// reason timeout and then cancelled.
func TestSyncTimeoutDisconnects(t *testing.T) {
	genesis := newGenesis()
	db := headerdb.NewMemory(genesis)

	cfg := DefaultConfig()
	cfg.ReplyTimeout = 50 * time.Millisecond
	cfg.FetchRetryBackoff = time.Millisecond
	cfg.MaxConsecutiveTimeouts = 3

	peers := NewPeerSet()
	svc := New(peers, db, noopValidate, cfg)
	svc.Start()
	defer svc.Stop()

	peer := newFakePeer("p1", HeadInfo{Hash: common.Hash{1}, Number: 5, TotalDifficulty: big.NewInt(5)}, 192)
	svc.lastProcessed.set("p1", HeadInfo{Hash: common.Hash{}, Number: 1})
	// Never reply to any request: every fetch attempt times out.
	peers.Register(peer)

	deadline := time.After(2 * time.Second)
	for {
		if peer.wasDisconnectedWith(DisconnectTimeout) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected peer to be disconnected with reason timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !peer.isCancelled() {
		t.Fatal("expected peer to be cancelled after timeout disconnect")
	}
}

// Scenario 3: a reorg announcement rewinds the start block by
// ReorgDepth instead of resuming at last_processed.
func TestSyncReorgAnnouncementRewindsStart(t *testing.T) {
	genesis := newGenesis()
	db := headerdb.NewMemory(genesis)
	chain := buildChain(genesis, 7)
	for _, h := range chain {
		if err := db.PersistHeader(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	svc, peers := newTestService(t, db)
	svc.lastProcessed.set("p1", HeadInfo{Hash: chain[6].Hash(), Number: 7})

	done := make(chan struct{})
	svc.syncDone = func() { close(done) }

	stop := make(chan struct{})
	defer close(stop)

	reorged := buildChain(chain[3], 4) // fork off block 4, new blocks 5..8
	tip := reorged[len(reorged)-1]

	// The peer's head already carries ReorgDepth at connect time, so the
	// multiplexer's synthetic on-connect announcement is itself the
	// reorg announcement under test; no separate announce is needed.
	peer := newFakePeer("p1", HeadInfo{Hash: tip.Hash(), Number: 8, ReorgDepth: 3}, 192)

	var sawRewind bool
	go func() {
		for {
			select {
			case req := <-peer.sub.requests:
				if req.kind != "headersByNumber" {
					continue
				}
				if req.start == 4 {
					sawRewind = true
				}
				var headers []*types.Header
				for _, h := range reorged {
					if h.Number.Uint64() >= req.start && h.Number.Uint64() < req.start+req.max {
						headers = append(headers, h)
					}
				}
				peer.reply(req.reqID, &protocol.BlockHeadersReply{Headers: headers})
			case <-stop:
				return
			}
		}
	}()
	peers.Register(peer)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("sync did not complete in time")
	}

	if !sawRewind {
		t.Fatal("expected the synchronizer to rewind to block 4 (7 - reorg_depth 3)")
	}
	ok, _ := db.HeaderExists(context.Background(), tip.Hash())
	if !ok {
		t.Fatal("expected the reorged tip to be persisted")
	}
}

// getSyncStartBlock must clamp an oversized reorg depth to the
// genesis+1 floor instead of underflowing.
func TestGetSyncStartBlockClampsReorgUnderflow(t *testing.T) {
	genesis := newGenesis()
	db := headerdb.NewMemory(genesis)
	for _, h := range buildChain(genesis, 3) {
		if err := db.PersistHeader(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	corr := newCorrelator(time.Second)
	lp := newLastProcessedMap()
	lp.set("p1", HeadInfo{Number: 2})
	s := newSynchronizer(db, noopValidate, corr, DefaultConfig(), nil, lp)

	peer := newFakePeer("p1", HeadInfo{}, 192)
	start, err := s.getSyncStartBlock(context.Background(), peer, HeadInfo{Number: 10, ReorgDepth: 50})
	if err != nil {
		t.Fatal(err)
	}
	if start != 1 {
		t.Fatalf("expected start to clamp to 1, got %d", start)
	}
}
