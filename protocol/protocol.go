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

// Package protocol models the subset of LES v2 wire messages the
// synchronizer core needs to recognize: the unsolicited head
// announcement, and the five correlated reply payloads. Framing,
// RLPx encryption and handshake belong to the transport and are not
// modeled here; only the decoded command shapes are.
package protocol

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// InboundMessage is the decoded form of one message arriving on a
// peer's message stream. It is exactly one of Announce, Reply or
// Other; the multiplexer type-switches on it.
type InboundMessage interface {
	isInboundMessage()
}

// Announce carries a new head announcement. ReorgDepth is the number
// of blocks the announcing peer says it rolled back since its last
// announcement.
type Announce struct {
	Hash            common.Hash
	Number          uint64
	TotalDifficulty *big.Int
	ReorgDepth      uint64
}

func (Announce) isInboundMessage() {}

// Reply wraps any of the five correlated reply payloads below, keyed
// by the request ID the original request was issued with.
type Reply struct {
	RequestID uint64
	Payload   interface{} // one of *BlockHeadersReply, *BlockBodiesReply, *ReceiptsReply, *ProofReply, *CodeReply
}

func (Reply) isInboundMessage() {}

// Other is any recognized-but-uninteresting or unrecognized message;
// the multiplexer logs and drops it.
type Other struct {
	Code uint64
}

func (Other) isInboundMessage() {}

// BlockHeadersReply is the payload of a GetBlockHeaders reply. Headers
// are in ascending block-number order per the LES v2 wire contract for
// non-reverse requests.
type BlockHeadersReply struct {
	Headers []*types.Header
}

// BlockBodiesReply is the payload of a GetBlockBodies reply.
type BlockBodiesReply struct {
	Bodies []*types.Body
}

// ReceiptsReply is the payload of a GetReceipts reply. Note the shape:
// each outer entry is the list of receipts for one requested block, so
// a single-hash request yields Receipts[0] as that block's receipts.
type ReceiptsReply struct {
	Receipts []types.Receipts
}

// ProofReply is the payload of a GetProofs (les/2 ProofsV2) reply: a
// flat list of RLP-encoded trie nodes sufficient to verify one or more
// requested keys against a known state root.
type ProofReply struct {
	Proof [][]byte
}

// CodeReply is the payload of a GetContractCode reply.
type CodeReply struct {
	Codes [][]byte
}
