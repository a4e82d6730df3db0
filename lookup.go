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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/liudaoqiangtj/lessync/protocol"
)

// ErrNoPeers is returned by any lookup when no peer is currently
// connected to select from.
var ErrNoPeers = errors.New("lessync: no peers available")

type accountKey struct {
	block common.Hash
	addr  common.Address
}

type codeKey struct {
	block common.Hash
	key   string
}

// Lookups is the on-demand lookup API: header-by-hash, body-by-hash,
// receipts, account, and contract code, each proxied through the
// highest-total-difficulty peer and each memoized in its own LRU with
// single-flight protected fills. Headers are hash-verified and accounts
// proof-verified; bodies, receipts and code are returned as the peer
// sent them.
type Lookups struct {
	peers  *PeerSet
	corr   *correlator
	stopCh <-chan struct{}

	headers  *memoizedFetcher
	bodies   *memoizedFetcher
	receipts *memoizedFetcher
	accounts *memoizedFetcher
	code     *memoizedFetcher
}

func newLookups(peers *PeerSet, corr *correlator, stopCh <-chan struct{}, cacheCapacity int) *Lookups {
	return &Lookups{
		peers:    peers,
		corr:     corr,
		stopCh:   stopCh,
		headers:  newMemoizedFetcher(cacheCapacity),
		bodies:   newMemoizedFetcher(cacheCapacity),
		receipts: newMemoizedFetcher(cacheCapacity),
		accounts: newMemoizedFetcher(cacheCapacity),
		code:     newMemoizedFetcher(cacheCapacity),
	}
}

func (l *Lookups) selectPeer() (Peer, error) {
	p := l.peers.BestPeer()
	if p == nil {
		return nil, ErrNoPeers
	}
	return p, nil
}

// GetBlockHeaderByHash fetches and hash-verifies a single header by
// its block hash.
func (l *Lookups) GetBlockHeaderByHash(hash common.Hash) (*types.Header, error) {
	v, err := l.headers.getOrFetch(hash, func() (interface{}, error) {
		peer, err := l.selectPeer()
		if err != nil {
			return nil, err
		}
		return l.fetchHeaderByHash(peer, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Header), nil
}

func (l *Lookups) fetchHeaderByHash(peer Peer, hash common.Hash) (*types.Header, error) {
	log.Debug("Fetching header", "hash", hash, "peer", peer.ID())
	reply, err := l.corr.sendAndWait(l.stopCh, func(reqID uint64) error {
		return peer.SubProto().SendGetBlockHeadersByHash(hash, 1, reqID)
	})
	if err != nil {
		return nil, err
	}
	payload, ok := reply.(*protocol.BlockHeadersReply)
	if !ok || len(payload.Headers) == 0 {
		return nil, headerNotFound(peer.ID(), hash)
	}
	header := payload.Headers[0]
	if header.Hash() != hash {
		return nil, &BadLESResponseError{Detail: fmt.Sprintf("received header hash %s does not match requested %s", header.Hash(), hash)}
	}
	return header, nil
}

// GetBlockBodyByHash fetches a block body by its block hash. The peer
// is trusted: the core does not verify the body against the header's
// transactions root. A future revision could add that check.
func (l *Lookups) GetBlockBodyByHash(hash common.Hash) (*types.Body, error) {
	v, err := l.bodies.getOrFetch(hash, func() (interface{}, error) {
		peer, err := l.selectPeer()
		if err != nil {
			return nil, err
		}
		log.Debug("Fetching block body", "hash", hash, "peer", peer.ID())
		reply, err := l.corr.sendAndWait(l.stopCh, func(reqID uint64) error {
			return peer.SubProto().SendGetBlockBodies([]common.Hash{hash}, reqID)
		})
		if err != nil {
			return nil, err
		}
		payload, ok := reply.(*protocol.BlockBodiesReply)
		if !ok || len(payload.Bodies) == 0 {
			return nil, blockNotFound(peer.ID(), hash)
		}
		return payload.Bodies[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Body), nil
}

// GetReceipts fetches the receipts for a single block by its hash.
//
// Note: the wire reply's receipts field is a list of per-block receipt
// lists; this indexes element 0 and returns it as the receipts of this
// block, which conflates "receipts of the first requested block" with
// "the full reply". Since callers only ever request a single hash this
// is harmless in practice, but it is flagged here rather than silently
// generalized to multi-hash requests.
func (l *Lookups) GetReceipts(hash common.Hash) (types.Receipts, error) {
	v, err := l.receipts.getOrFetch(hash, func() (interface{}, error) {
		peer, err := l.selectPeer()
		if err != nil {
			return nil, err
		}
		log.Debug("Fetching receipts", "hash", hash, "peer", peer.ID())
		reply, err := l.corr.sendAndWait(l.stopCh, func(reqID uint64) error {
			return peer.SubProto().SendGetReceipts(hash, reqID)
		})
		if err != nil {
			return nil, err
		}
		payload, ok := reply.(*protocol.ReceiptsReply)
		if !ok || len(payload.Receipts) == 0 {
			return nil, blockNotFound(peer.ID(), hash)
		}
		return payload.Receipts[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.Receipts), nil
}

// GetAccount composes a header-by-hash lookup (to obtain the trusted
// state root) with a GetProofs round trip, then verifies the proof
// locally against that state root before decoding the RLP account leaf.
func (l *Lookups) GetAccount(blockHash common.Hash, address common.Address) (*protocol.Account, error) {
	v, err := l.accounts.getOrFetch(accountKey{blockHash, address}, func() (interface{}, error) {
		peer, err := l.selectPeer()
		if err != nil {
			return nil, err
		}
		header, err := l.fetchHeaderByHash(peer, blockHash)
		if err != nil {
			return nil, err
		}
		key := crypto.Keccak256(address.Bytes())

		reply, err := l.corr.sendAndWait(l.stopCh, func(reqID uint64) error {
			return peer.SubProto().SendGetProof(blockHash, nil, key, 0, reqID)
		})
		if err != nil {
			return nil, err
		}
		payload, ok := reply.(*protocol.ProofReply)
		if !ok {
			return nil, &BadLESResponseError{Detail: "malformed proof reply"}
		}

		value, err := trie.VerifyProof(header.Root, key, newProofDB(payload.Proof))
		if err != nil {
			return nil, &BadLESResponseError{Detail: fmt.Sprintf("proof verification failed: %v", err)}
		}
		acc, err := protocol.DecodeAccount(value)
		if err != nil {
			return nil, &BadLESResponseError{Detail: fmt.Sprintf("malformed account RLP: %v", err)}
		}
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*protocol.Account), nil
}

// GetContractCode fetches contract code by its trie key. A reply
// lacking code is treated as "empty code", not an error.
func (l *Lookups) GetContractCode(blockHash common.Hash, key []byte) ([]byte, error) {
	v, err := l.code.getOrFetch(codeKey{blockHash, string(key)}, func() (interface{}, error) {
		peer, err := l.selectPeer()
		if err != nil {
			return nil, err
		}
		reply, err := l.corr.sendAndWait(l.stopCh, func(reqID uint64) error {
			return peer.SubProto().SendGetContractCode(blockHash, key, reqID)
		})
		if err != nil {
			return nil, err
		}
		payload, ok := reply.(*protocol.CodeReply)
		if !ok || len(payload.Codes) == 0 {
			return []byte{}, nil
		}
		return payload.Codes[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
