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

	"github.com/ethereum/go-ethereum/common"
	"github.com/liudaoqiangtj/lessync/protocol"
)

// DisconnectReason identifies why the synchronizer asked a peer to be
// dropped. Only the two reasons the core ever emits are defined here;
// the transport may know about more (handshake errors, etc.) but those
// never originate from this package.
type DisconnectReason string

const (
	DisconnectSubprotocolError DisconnectReason = "subprotocol_error"
	DisconnectTimeout          DisconnectReason = "timeout"
)

// SubProtocolSender is the outbound half of the LES wire protocol the
// transport must expose per peer. Every method dispatches one LES
// request tagged with reqID; replies arrive asynchronously on the
// peer's inbound message stream and are correlated by the requester.
type SubProtocolSender interface {
	SendGetBlockHeadersByNumber(start uint64, max uint64, reqID uint64, reverse bool) error
	SendGetBlockHeadersByHash(hash common.Hash, max uint64, reqID uint64) error
	SendGetBlockBodies(hashes []common.Hash, reqID uint64) error
	SendGetReceipts(hash common.Hash, reqID uint64) error
	SendGetProof(blockHash common.Hash, accountKey, key []byte, fromLevel uint, reqID uint64) error
	SendGetContractCode(blockHash common.Hash, key []byte, reqID uint64) error
}

// Peer is the core's view of a connected remote LES node. The p2p
// transport (out of scope for this package) is responsible for
// constructing one of these per live connection.
type Peer interface {
	// ID is a stable per-connection identity, used as the map key for
	// LastProcessedAnnouncements and for logging.
	ID() string

	// HeadInfo returns the most recently observed announced head.
	HeadInfo() HeadInfo

	// SetHeadInfo updates the peer's locally cached head, called by the
	// multiplexer when an Announce message arrives.
	SetHeadInfo(HeadInfo)

	// TotalDifficulty is a convenience accessor equivalent to
	// HeadInfo().TotalDifficulty, used by peer selection.
	TotalDifficulty() *big.Int

	// MaxHeadersFetch is the upper bound on headers this peer will
	// return in a single GetBlockHeaders reply.
	MaxHeadersFetch() uint64

	// SubProto returns the sender used to dispatch outbound requests.
	SubProto() SubProtocolSender

	// Messages returns the peer's inbound decoded-message stream. The
	// channel is closed when the peer disconnects.
	Messages() <-chan protocol.InboundMessage

	// Disconnect asks the transport to drop the peer with the given
	// reason. It does not block on teardown completing.
	Disconnect(reason DisconnectReason)

	// Cancel releases any resources the core itself is holding for this
	// peer. It does not tear down the transport connection; that is the
	// peer pool's responsibility.
	Cancel()
}
