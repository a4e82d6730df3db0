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
)

// Sentinel errors for not-found, cancellation and timeout conditions.
// The lookup caches never memoize them. The only transparent retry is
// the header synchronizer's batch fetch, which retries ErrTimeout.
var (
	// ErrHeaderNotFound is returned when a peer has no header for a
	// requested hash.
	ErrHeaderNotFound = errors.New("lessync: header not found")

	// ErrBlockNotFound is returned when a peer has no body or receipts
	// for a requested block hash.
	ErrBlockNotFound = errors.New("lessync: block not found")

	// ErrCancelled is returned to any suspended waiter when the service
	// is stopped.
	ErrCancelled = errors.New("lessync: operation cancelled")

	// ErrTimeout is returned when a single request/reply round trip
	// exceeds the configured reply timeout.
	ErrTimeout = errors.New("lessync: reply timeout")

	// ErrNoCommonAncestor names the case where the first fetch for a
	// never-before-seen peer comes back empty. The header synchronizer
	// reports that case as an *AnnouncementProcessingError with the same
	// reason text, not as this sentinel, so errors.Is does not match it.
	ErrNoCommonAncestor = errors.New("lessync: no common ancestors found with peer")
)

// AnnouncementProcessingError wraps a protocol violation observed while
// processing one peer's announcement (bad header, validation failure,
// malformed reply). The announcement processor reacts to it by
// disconnecting the offending peer with reason subprotocol_error.
type AnnouncementProcessingError struct {
	Peer   string
	Reason string
}

func (e *AnnouncementProcessingError) Error() string {
	return fmt.Sprintf("lessync: peer %s: %s", e.Peer, e.Reason)
}

// newAnnouncementError builds an AnnouncementProcessingError with a
// formatted reason.
func newAnnouncementError(peer string, format string, args ...interface{}) *AnnouncementProcessingError {
	return &AnnouncementProcessingError{Peer: peer, Reason: fmt.Sprintf(format, args...)}
}

// TooManyTimeoutsError is raised once a fetch has been retried the
// configured maximum number of times without success. The processor
// converts it into a disconnect with reason timeout.
type TooManyTimeoutsError struct {
	Peer string
	// LastErr is the error from the final timed-out attempt, for
	// logging context; it is always ErrTimeout in practice.
	LastErr error
}

func (e *TooManyTimeoutsError) Error() string {
	return fmt.Sprintf("lessync: peer %s: too many consecutive timeouts: %v", e.Peer, e.LastErr)
}

func (e *TooManyTimeoutsError) Unwrap() error { return e.LastErr }

// EmptyReplyError signals that a batch header fetch came back with zero
// headers, distinct from a timeout.
type EmptyReplyError struct {
	StartBlock uint64
}

func (e *EmptyReplyError) Error() string {
	return fmt.Sprintf("lessync: empty GetBlockHeaders reply for start=%d", e.StartBlock)
}

// BadLESResponseError indicates a peer reply failed a cryptographic or
// structural check (e.g. hash mismatch, proof verification failure).
type BadLESResponseError struct {
	Detail string
}

func (e *BadLESResponseError) Error() string {
	return fmt.Sprintf("lessync: bad LES response: %s", e.Detail)
}

// headerNotFound/blockNotFound helpers attach context to the sentinel
// not-found errors without losing errors.Is compatibility.
type wrappedNotFound struct {
	sentinel error
	detail   string
}

func (w *wrappedNotFound) Error() string { return fmt.Sprintf("%s: %s", w.sentinel, w.detail) }
func (w *wrappedNotFound) Unwrap() error { return w.sentinel }

func headerNotFound(peer string, hash common.Hash) error {
	return &wrappedNotFound{sentinel: ErrHeaderNotFound, detail: fmt.Sprintf("peer %s has no header %s", peer, hash)}
}

func blockNotFound(peer string, hash common.Hash) error {
	return &wrappedNotFound{sentinel: ErrBlockNotFound, detail: fmt.Sprintf("peer %s has no block %s", peer, hash)}
}
