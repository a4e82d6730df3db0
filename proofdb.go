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
	"github.com/ethereum/go-ethereum/crypto"
)

// proofDB adapts a flat list of RLP-encoded trie nodes, as received in
// a GetProofs reply, into the ethdb.KeyValueReader trie.VerifyProof
// expects: each node is stored keyed by its own Keccak256 hash, exactly
// how a Merkle-Patricia trie addresses its nodes.
type proofDB struct {
	nodes map[string][]byte
}

func newProofDB(nodes [][]byte) *proofDB {
	db := &proofDB{nodes: make(map[string][]byte, len(nodes))}
	for _, n := range nodes {
		db.nodes[string(crypto.Keccak256(n))] = n
	}
	return db
}

func (db *proofDB) Has(key []byte) (bool, error) {
	_, ok := db.nodes[string(key)]
	return ok, nil
}

func (db *proofDB) Get(key []byte) ([]byte, error) {
	v, ok := db.nodes[string(key)]
	if !ok {
		return nil, errProofNodeMissing
	}
	return v, nil
}

var errProofNodeMissing = proofDBError("lessync: proof node missing")

type proofDBError string

func (e proofDBError) Error() string { return string(e) }
