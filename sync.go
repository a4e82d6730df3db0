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
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/liudaoqiangtj/lessync/headerdb"
	"github.com/liudaoqiangtj/lessync/protocol"
)

// HeaderValidator validates a child header against its already-persisted
// parent, selecting the rule set by the child's block number. It is
// supplied by the embedder; EVM consensus rules are out of scope here.
type HeaderValidator func(header, parent *types.Header) error

// synchronizer drives header synchronization against a single peer at
// a time. One instance serves every peer; announcements are processed
// strictly sequentially by the single caller (the announcement-processing
// worker in service.go), so synchronizer itself needs no internal
// locking beyond what lastProcessed requires against the service's
// disconnect listener, which removes entries concurrently.
type synchronizer struct {
	db        headerdb.Database
	validate  HeaderValidator
	corr      *correlator
	cfg       Config
	stopCh    <-chan struct{}

	lastProcessed *lastProcessedMap
}

func newSynchronizer(db headerdb.Database, validate HeaderValidator, corr *correlator, cfg Config, stopCh <-chan struct{}, lastProcessed *lastProcessedMap) *synchronizer {
	return &synchronizer{db: db, validate: validate, corr: corr, cfg: cfg, stopCh: stopCh, lastProcessed: lastProcessed}
}

// processAnnouncement is the entry point of the header synchronizer:
// given a peer's newly announced head, it brings the local chain into
// alignment by fetching and importing headers in batches.
func (s *synchronizer) processAnnouncement(ctx context.Context, peer Peer, head HeadInfo) error {
	known, err := s.db.HeaderExists(ctx, head.Hash)
	if err != nil {
		return err
	}
	if known {
		log.Debug("Skipping already-known announcement", "peer", peer.ID(), "head", head.Hash)
		return nil
	}

	start, err := s.getSyncStartBlock(ctx, peer, head)
	if err != nil {
		return err
	}

	for start < head.Number {
		// Deliberately re-fetch the last already-synced block instead of
		// "start+1": documented workaround for a known remote
		// implementation quirk that drops the first header of a batch
		// unless the batch starts at an already-known block. Do not
		// "optimize" this.
		batch, err := s.fetchHeaders(ctx, peer, start)
		if err != nil {
			return err
		}
		start, err = s.importHeaders(ctx, peer, batch)
		if err != nil {
			return err
		}
		log.Info("Synced headers", "peer", peer.ID(), "up_to", start)
	}
	return nil
}

// getSyncStartBlock picks the block number to resume fetching from,
// depending on whether this peer has been synced with before and
// whether its announcement carries a reorg.
func (s *synchronizer) getSyncStartBlock(ctx context.Context, peer Peer, head HeadInfo) (uint64, error) {
	chainHead, err := s.db.CanonicalHead(ctx)
	if err != nil {
		return 0, err
	}
	chainHeadNumber := chainHead.Number.Uint64()

	var start uint64
	switch {
	case isGenesisNumber(chainHeadNumber):
		start = 1

	case !s.lastProcessed.has(peer.ID()):
		// First time hearing from this peer: we may be on a different
		// fork. Fetch headers prior to our head and persist any missing
		// ones, making our canonical chain identical to the peer's up to
		// chainHeadNumber.
		maxFetch := peer.MaxHeadersFetch()
		if maxFetch == 0 {
			maxFetch = 1
		}
		oldest := uint64(1)
		if chainHeadNumber+1 > maxFetch {
			oldest = chainHeadNumber - maxFetch + 1
		}
		if oldest < 1 {
			oldest = 1
		}
		headers, err := s.fetchHeaders(ctx, peer, oldest)
		if err != nil {
			if _, ok := err.(*EmptyReplyError); ok {
				return 0, newAnnouncementError(peer.ID(), "no common ancestors found with peer")
			}
			return 0, err
		}
		for _, h := range headers {
			if err := s.db.PersistHeader(ctx, h); err != nil {
				return 0, err
			}
		}
		start = chainHeadNumber

	default:
		last := s.lastProcessed.get(peer.ID())
		if head.ReorgDepth > last.Number {
			start = 0
		} else {
			start = last.Number - head.ReorgDepth
		}
	}

	if start < 1 {
		start = 1
	}
	return start, nil
}

// fetchHeaders makes up to cfg.MaxConsecutiveTimeouts attempts at the
// batch fetch, sleeping cfg.FetchRetryBackoff after each timed-out one,
// before giving up on the peer.
func (s *synchronizer) fetchHeaders(ctx context.Context, peer Peer, start uint64) ([]*types.Header, error) {
	if isGenesisNumber(start) {
		return nil, fmt.Errorf("lessync: must not attempt to download genesis header")
	}
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxConsecutiveTimeouts; attempt++ {
		headers, err := s.fetchHeadersOnce(ctx, peer, start)
		if err == nil {
			return headers, nil
		}
		if err == ErrTimeout {
			lastErr = err
			log.Info("Timeout fetching headers", "peer", peer.ID(), "attempt", attempt+1, "of", s.cfg.MaxConsecutiveTimeouts)
			select {
			case <-time.After(s.cfg.FetchRetryBackoff):
			case <-s.stopCh:
				return nil, ErrCancelled
			}
			continue
		}
		return nil, err
	}
	return nil, &TooManyTimeoutsError{Peer: peer.ID(), LastErr: lastErr}
}

// fetchHeadersOnce issues one GetBlockHeaders(start, max=peer.MaxHeadersFetch, reverse=false)
// request and awaits the correlated reply.
func (s *synchronizer) fetchHeadersOnce(ctx context.Context, peer Peer, start uint64) ([]*types.Header, error) {
	reply, err := s.corr.sendAndWait(s.stopCh, func(reqID uint64) error {
		return peer.SubProto().SendGetBlockHeadersByNumber(start, peer.MaxHeadersFetch(), reqID, false)
	})
	if err != nil {
		return nil, err
	}
	payload, ok := reply.(*protocol.BlockHeadersReply)
	if !ok || len(payload.Headers) == 0 {
		return nil, &EmptyReplyError{StartBlock: start}
	}
	log.Debug("Fetched headers", "from", payload.Headers[0].Number, "to", payload.Headers[len(payload.Headers)-1].Number)
	return payload.Headers, nil
}

// importHeaders validates then persists each header in ascending order,
// returning the block number of the new tip.
func (s *synchronizer) importHeaders(ctx context.Context, peer Peer, headers []*types.Header) (uint64, error) {
	var newTip uint64
	for _, h := range headers {
		if err := s.validateHeader(ctx, h); err != nil {
			return 0, newAnnouncementError(peer.ID(), "invalid header %s: %v", h.Hash(), err)
		}
		if err := s.db.PersistHeader(ctx, h); err != nil {
			return 0, err
		}
		newTip = h.Number.Uint64()
	}
	return newTip, nil
}

// validateHeader looks up the header's already-persisted parent and
// runs the configured validation rule against the pair.
func (s *synchronizer) validateHeader(ctx context.Context, header *types.Header) error {
	if isGenesisNumber(header.Number.Uint64()) {
		return fmt.Errorf("peer sent a genesis header that we didn't ask for")
	}
	parent, err := s.db.HeaderByHash(ctx, header.ParentHash)
	if err != nil {
		return fmt.Errorf("parent header %s not found: %w", header.ParentHash, err)
	}
	return s.validate(header, parent)
}
