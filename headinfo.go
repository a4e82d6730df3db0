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
)

// HeadInfo is a peer-announced chain tip, decoded from an LES Announce
// message (or synthesized at connect time from the peer's handshake
// state).
type HeadInfo struct {
	Hash            common.Hash
	Number          uint64
	TotalDifficulty *big.Int

	// ReorgDepth is the number of blocks that, according to the
	// announcing peer, have been rolled back since its previous
	// announcement.
	ReorgDepth uint64
}

func (h HeadInfo) String() string {
	return "HeadInfo{hash=" + h.Hash.Hex() + "}"
}

// isGenesisNumber reports whether a block number denotes the genesis
// block. Kept as a named helper (rather than an inline == 0 check)
// because several call sites in the synchronizer reason about "is this
// the genesis" explicitly, matching the original's header.is_genesis.
func isGenesisNumber(n uint64) bool {
	return n == 0
}
