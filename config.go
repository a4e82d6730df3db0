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

import "time"

const (
	// defaultReplyTimeout bounds how long sendAndWait suspends for a
	// correlated reply before failing with ErrTimeout.
	defaultReplyTimeout = 5 * time.Second

	// maxConsecutiveTimeouts is the number of attempts a single header
	// batch fetch gets before the synchronizer gives up on the peer.
	maxConsecutiveTimeouts = 5

	// fetchRetryBackoff is the delay between consecutive timed-out
	// fetch attempts.
	fetchRetryBackoff = 500 * time.Millisecond

	// lookupCacheCapacity is the per-cache LRU size for each of the five
	// on-demand lookup caches.
	lookupCacheCapacity = 1024

	// defaultAnnouncementQueueLimit bounds the announcement queue with
	// drop-oldest semantics. Zero means unbounded.
	defaultAnnouncementQueueLimit = 0
)

// Config collects the tunables of the synchronizer. All fields have
// sane defaults; the zero value of Config is not directly usable, use
// DefaultConfig.
type Config struct {
	// ReplyTimeout bounds a single request/reply round trip.
	ReplyTimeout time.Duration

	// MaxConsecutiveTimeouts is the number of timed-out attempts a batch
	// header fetch makes before TooManyTimeoutsError is raised.
	MaxConsecutiveTimeouts int

	// FetchRetryBackoff is the sleep between retried fetch attempts.
	FetchRetryBackoff time.Duration

	// LookupCacheCapacity is the LRU size of each lookup cache.
	LookupCacheCapacity int

	// AnnouncementQueueLimit bounds the announcement queue; 0 means
	// unbounded. A positive value makes the queue drop its oldest entry
	// once full instead of growing without bound.
	AnnouncementQueueLimit int
}

// DefaultConfig returns Config populated with this package's defaults.
func DefaultConfig() Config {
	return Config{
		ReplyTimeout:           defaultReplyTimeout,
		MaxConsecutiveTimeouts: maxConsecutiveTimeouts,
		FetchRetryBackoff:      fetchRetryBackoff,
		LookupCacheCapacity:    lookupCacheCapacity,
		AnnouncementQueueLimit: defaultAnnouncementQueueLimit,
	}
}
