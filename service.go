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
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/liudaoqiangtj/lessync/headerdb"
)

// Service is the long-running light-client chain synchronizer: the
// composition of the five cooperating components (peer set, request
// correlator, announcement queue, message multiplexer, and header
// synchronizer). Construct one with New, call Start, and Stop when
// done; the five Lookups methods and the lifecycle methods are the
// entire public surface.
type Service struct {
	*Lookups

	peers *PeerSet
	corr  *correlator
	queue *announcementQueue
	mux   *multiplexer
	sync  *synchronizer

	lastProcessed *lastProcessedMap

	cfg    Config
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// syncDone is a test hook invoked after every successfully
	// processed announcement.
	syncDone func()
}

// New wires up a Service against the given peer set, header database
// and header validator. cfg should usually be DefaultConfig(); callers
// that want a bounded, drop-oldest announcement queue instead of an
// unbounded one set cfg.AnnouncementQueueLimit > 0.
func New(peers *PeerSet, db headerdb.Database, validate HeaderValidator, cfg Config) *Service {
	stopCh := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	corr := newCorrelator(cfg.ReplyTimeout)
	queue := newAnnouncementQueue(cfg.AnnouncementQueueLimit)
	lastProcessed := newLastProcessedMap()

	s := &Service{
		Lookups:       newLookups(peers, corr, stopCh, cfg.LookupCacheCapacity),
		peers:         peers,
		corr:          corr,
		queue:         queue,
		mux:           newMultiplexer(peers, corr, queue),
		sync:          newSynchronizer(db, validate, corr, cfg, stopCh, lastProcessed),
		lastProcessed: lastProcessed,
		cfg:           cfg,
		stopCh:        stopCh,
		ctx:           ctx,
		cancel:        cancel,
	}
	return s
}

// Start subscribes to peer lifecycle events and launches the
// announcement-processing worker.
func (s *Service) Start() {
	s.mux.start()

	// Clean up LastProcessedAnnouncements no later than the peer's
	// cancellation completing, so a disconnected peer never lingers in
	// the bookkeeping a new connection from the same identity would see.
	disconnects := make(chan PeerEvent, 64)
	sub := s.peers.Subscribe(disconnects)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-disconnects:
				if ev.Kind == PeerDisconnected {
					s.lastProcessed.remove(ev.Peer.ID())
				}
			case <-s.stopCh:
				return
			}
		}
	}()

	s.wg.Add(1)
	go s.processAnnouncements()
}

// processAnnouncements is the single worker that dequeues
// announcements strictly sequentially and reacts to the errors they
// produce.
func (s *Service) processAnnouncements() {
	defer s.wg.Done()
	for {
		a, ok := s.queue.pop()
		if !ok {
			log.Debug("Announcement worker stopping")
			return
		}

		err := s.sync.processAnnouncement(s.ctx, a.peer, a.head)
		switch {
		case err == nil:
			s.lastProcessed.set(a.peer.ID(), a.head)
			if s.syncDone != nil {
				s.syncDone()
			}

		case err == ErrCancelled:
			log.Debug("Announcement processing cancelled")
			return

		default:
			s.handleAnnouncementError(a.peer, err)
		}

		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

// handleAnnouncementError inspects the error processAnnouncement
// returned and decides how to react to the offending peer.
func (s *Service) handleAnnouncementError(peer Peer, err error) {
	switch err.(type) {
	case *AnnouncementProcessingError:
		log.Warn("Disconnecting peer after protocol violation", "peer", peer.ID(), "err", err)
		s.disconnectPeer(peer, DisconnectSubprotocolError)

	case *TooManyTimeoutsError:
		log.Warn("Disconnecting peer after too many timeouts", "peer", peer.ID(), "err", err)
		s.disconnectPeer(peer, DisconnectTimeout)

	default:
		log.Error("Unexpected error processing announcement, dropping peer", "peer", peer.ID(), "err", err)
		s.dropPeer(peer)
	}
}

// disconnectPeer asks the transport to drop the peer with a reason,
// then runs the same cleanup as a silent drop.
func (s *Service) disconnectPeer(peer Peer, reason DisconnectReason) {
	peer.Disconnect(reason)
	s.dropPeer(peer)
}

// dropPeer removes bookkeeping and cancels the peer. Disconnect and
// silent "unexpected error" drops both end here: any error that isn't
// a protocol violation or a timeout budget exhaustion is logged and
// the peer is dropped without broadcasting a disconnect reason.
func (s *Service) dropPeer(peer Peer) {
	s.lastProcessed.remove(peer.ID())
	peer.Cancel()
}

// Stop releases the announcement queue, cancels every suspended
// request/reply waiter, and waits for the multiplexer and worker to
// exit. No new work is accepted once Stop returns (more precisely,
// once Stop is called).
func (s *Service) Stop() {
	close(s.stopCh)
	s.cancel()
	s.queue.close()
	s.corr.stop()
	s.mux.stop()
	s.wg.Wait()
}
