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
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/liudaoqiangtj/lessync/protocol"
)

// newTestHeader builds a minimal, fully-formed header at the given
// number with the given parent hash, suitable for RLP-hashing.
func newTestHeader(number uint64, parent common.Hash, extra byte) *types.Header {
	return &types.Header{
		ParentHash: parent,
		Number:     big.NewInt(int64(number)),
		Difficulty: big.NewInt(1),
		GasLimit:   8000000,
		Extra:      []byte{extra},
		Root:       common.Hash{},
	}
}

// buildChain constructs n headers on top of genesis, each parented on
// the previous one's hash, returned in ascending order.
func buildChain(genesis *types.Header, n int) []*types.Header {
	headers := make([]*types.Header, 0, n)
	parent := genesis
	for i := 1; i <= n; i++ {
		h := newTestHeader(parent.Number.Uint64()+1, parent.Hash(), byte(i))
		headers = append(headers, h)
		parent = h
	}
	return headers
}

// noopValidate accepts every header whose parent hash matches, which is
// already guaranteed by validateHeader's own lookup; it stands in for
// the out-of-scope EVM consensus rules.
func noopValidate(header, parent *types.Header) error {
	return nil
}

// fakeSubProto is an in-memory SubProtocolSender whose Send* methods
// just enqueue a description of the request onto a channel a test
// driver goroutine consumes, deciding how (and whether) to reply.
type fakeSubProto struct {
	mu       sync.Mutex
	requests chan fakeRequest
}

type fakeRequest struct {
	kind  string
	reqID uint64

	start    uint64
	hash     common.Hash
	max      uint64
	reverse  bool
	hashes   []common.Hash
	key      []byte
	fromLvl  uint
}

func newFakeSubProto() *fakeSubProto {
	return &fakeSubProto{requests: make(chan fakeRequest, 256)}
}

func (f *fakeSubProto) SendGetBlockHeadersByNumber(start uint64, max uint64, reqID uint64, reverse bool) error {
	f.requests <- fakeRequest{kind: "headersByNumber", reqID: reqID, start: start, max: max, reverse: reverse}
	return nil
}

func (f *fakeSubProto) SendGetBlockHeadersByHash(hash common.Hash, max uint64, reqID uint64) error {
	f.requests <- fakeRequest{kind: "headersByHash", reqID: reqID, hash: hash, max: max}
	return nil
}

func (f *fakeSubProto) SendGetBlockBodies(hashes []common.Hash, reqID uint64) error {
	f.requests <- fakeRequest{kind: "bodies", reqID: reqID, hashes: hashes}
	return nil
}

func (f *fakeSubProto) SendGetReceipts(hash common.Hash, reqID uint64) error {
	f.requests <- fakeRequest{kind: "receipts", reqID: reqID, hash: hash}
	return nil
}

func (f *fakeSubProto) SendGetProof(blockHash common.Hash, accountKey, key []byte, fromLevel uint, reqID uint64) error {
	f.requests <- fakeRequest{kind: "proof", reqID: reqID, hash: blockHash, key: key, fromLvl: fromLevel}
	return nil
}

func (f *fakeSubProto) SendGetContractCode(blockHash common.Hash, key []byte, reqID uint64) error {
	f.requests <- fakeRequest{kind: "code", reqID: reqID, hash: blockHash, key: key}
	return nil
}

// fakePeer is a minimal in-memory Peer used by every test in this
// package. Its Messages() channel is fed directly by the test, playing
// the role the p2p transport plays in production.
type fakePeer struct {
	id string

	mu   sync.RWMutex
	head HeadInfo

	maxFetch uint64
	sub      *fakeSubProto
	msgs     chan protocol.InboundMessage

	disconnectedWith []DisconnectReason
	cancelled        bool
}

func newFakePeer(id string, head HeadInfo, maxFetch uint64) *fakePeer {
	return &fakePeer{
		id:       id,
		head:     head,
		maxFetch: maxFetch,
		sub:      newFakeSubProto(),
		msgs:     make(chan protocol.InboundMessage, 256),
	}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) HeadInfo() HeadInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.head
}

func (p *fakePeer) SetHeadInfo(h HeadInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = h
}

func (p *fakePeer) TotalDifficulty() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.head.TotalDifficulty == nil {
		return big.NewInt(0)
	}
	return p.head.TotalDifficulty
}

func (p *fakePeer) MaxHeadersFetch() uint64 { return p.maxFetch }

func (p *fakePeer) SubProto() SubProtocolSender { return p.sub }

func (p *fakePeer) Messages() <-chan protocol.InboundMessage { return p.msgs }

func (p *fakePeer) Disconnect(reason DisconnectReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectedWith = append(p.disconnectedWith, reason)
}

func (p *fakePeer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
}

func (p *fakePeer) wasDisconnectedWith(reason DisconnectReason) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.disconnectedWith {
		if r == reason {
			return true
		}
	}
	return false
}

func (p *fakePeer) isCancelled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cancelled
}

// reply pushes a Reply message onto the peer's inbound stream as if
// the remote had answered request reqID.
func (p *fakePeer) reply(reqID uint64, payload interface{}) {
	p.msgs <- protocol.Reply{RequestID: reqID, Payload: payload}
}

// announce pushes an Announce message onto the peer's inbound stream.
func (p *fakePeer) announce(head HeadInfo) {
	p.msgs <- protocol.Announce{Hash: head.Hash, Number: head.Number, TotalDifficulty: head.TotalDifficulty, ReorgDepth: head.ReorgDepth}
}
