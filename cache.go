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
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// memoizedFetcher is a content-addressed LRU cache of the given capacity,
// fronted by a singleflight group so that concurrent callers for the
// same key share a single upstream fetch instead of each issuing a
// redundant request. Failures are never cached.
type memoizedFetcher struct {
	cache *lru.Cache
	group singleflight.Group
}

func newMemoizedFetcher(capacity int) *memoizedFetcher {
	c, err := lru.New(capacity)
	if err != nil {
		// lru.New only fails for a non-positive size, so a Config with
		// LookupCacheCapacity <= 0 panics here.
		panic(err)
	}
	return &memoizedFetcher{cache: c}
}

// getOrFetch returns the cached value for key if present; otherwise it
// calls fetch at most once among all concurrent callers for this key,
// memoizes the result on success, and never memoizes an error.
func (m *memoizedFetcher) getOrFetch(key interface{}, fetch func() (interface{}, error)) (interface{}, error) {
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}

	strKey := fmt.Sprintf("%v", key)
	v, err, _ := m.group.Do(strKey, func() (interface{}, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache while we waited to become the leader.
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		m.cache.Add(key, v)
		return v, nil
	})
	return v, err
}
