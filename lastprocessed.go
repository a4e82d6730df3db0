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

import "sync"

// lastProcessedMap tracks the most recent announcement fully processed
// for each peer, keyed by peer identity. An entry is removed no later
// than the peer's cancellation completing.
type lastProcessedMap struct {
	mu sync.RWMutex
	m  map[string]HeadInfo
}

func newLastProcessedMap() *lastProcessedMap {
	return &lastProcessedMap{m: make(map[string]HeadInfo)}
}

func (l *lastProcessedMap) has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.m[id]
	return ok
}

func (l *lastProcessedMap) get(id string) HeadInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m[id]
}

func (l *lastProcessedMap) set(id string, head HeadInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[id] = head
}

func (l *lastProcessedMap) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, id)
}
