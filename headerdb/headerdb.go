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

// Package headerdb defines the async key/value header store contract
// the synchronizer core consumes, plus a minimal in-memory
// implementation suitable for tests and simple embedders. Persistent,
// production-grade storage (LevelDB/Pebble-backed) is out of scope for
// this package.
package headerdb

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrHeaderNotFound is returned by HeaderByHash when no header with the
// given hash has been persisted.
var ErrHeaderNotFound = errors.New("headerdb: header not found")

// Database is the header database contract the synchronizer core
// depends on. Implementations must make PersistHeader idempotent and
// must handle reorgs: persisting a header that supersedes the current
// canonical header at its number must update the canonical mapping.
type Database interface {
	// CanonicalHead returns the current canonical chain head. The
	// genesis header must already be present before the synchronizer
	// starts.
	CanonicalHead(ctx context.Context) (*types.Header, error)

	// HeaderExists reports whether a header with the given hash has
	// been persisted, canonical or not.
	HeaderExists(ctx context.Context, hash common.Hash) (bool, error)

	// HeaderByHash looks up a header by its hash. Returns
	// ErrHeaderNotFound if absent.
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)

	// PersistHeader stores a header, updating the canonical chain if
	// this header (or the chain it roots) carries greater total
	// difficulty / length than the current canonical chain at its
	// number. Persisting an already-known header is a no-op.
	PersistHeader(ctx context.Context, header *types.Header) error
}

// Memory is a simple, non-persistent Database backed by two maps,
// guarded by a mutex so it stays safe if an embedder ever drives more
// than one synchronizer against it concurrently. Its PersistHeader does
// not compare total difficulty or chain length: the header persisted
// last at a number becomes canonical at that number, even when it was
// already known.
type Memory struct {
	mu        sync.RWMutex
	byHash    map[common.Hash]*types.Header
	byNumber  map[uint64]common.Hash
	canonical uint64
}

// NewMemory creates an empty Memory database seeded with a genesis
// header. The genesis header must be supplied by the embedder; this
// package does not invent one (header validation/genesis construction
// is out of scope here).
func NewMemory(genesis *types.Header) *Memory {
	m := &Memory{
		byHash:   make(map[common.Hash]*types.Header),
		byNumber: make(map[uint64]common.Hash),
	}
	hash := genesis.Hash()
	m.byHash[hash] = genesis
	m.byNumber[genesis.Number.Uint64()] = hash
	m.canonical = genesis.Number.Uint64()
	return m
}

func (m *Memory) CanonicalHead(ctx context.Context) (*types.Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.byNumber[m.canonical]
	if !ok {
		return nil, ErrHeaderNotFound
	}
	return m.byHash[hash], nil
}

func (m *Memory) HeaderExists(ctx context.Context, hash common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHash[hash]
	return ok, nil
}

func (m *Memory) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byHash[hash]
	if !ok {
		return nil, ErrHeaderNotFound
	}
	return h, nil
}

func (m *Memory) PersistHeader(ctx context.Context, header *types.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := header.Hash()
	m.byHash[hash] = header
	number := header.Number.Uint64()

	// Persisting a header always overwrites whatever was canonical at
	// its number; the persist layer is responsible for reorg accounting.
	// Advancing the canonical pointer only happens when the new header
	// reaches at least as far as the current tip.
	m.byNumber[number] = hash
	if number >= m.canonical {
		m.canonical = number
	}
	return nil
}
