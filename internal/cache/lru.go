// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package cache holds in-process caches in front of the DuckDB read model.
package cache

import (
	"sync"
	"time"
)

type dateEntry struct {
	key       string
	value     time.Time
	prev      *dateEntry
	next      *dateEntry
	expiresAt time.Time
}

// DateCache is a thread-safe LRU of per-preprint timestamps with TTL.
//
// The dispatcher keeps the newest date_updated SHARE accepted for each
// preprint here so the regression check does not query the sync log on
// every push. Values only move forward: Advance never replaces a later
// timestamp with an earlier one.
type DateCache struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*dateEntry

	// head.next is the most recently used, tail.prev the least.
	head *dateEntry
	tail *dateEntry

	hits   int64
	misses int64
}

// NewDateCache creates a cache. Non-positive arguments select 10000
// entries and a 1h TTL.
func NewDateCache(capacity int, ttl time.Duration) *DateCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	c := &DateCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*dateEntry),
		head:     &dateEntry{},
		tail:     &dateEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached timestamp for key. Expired entries are dropped.
func (c *DateCache) Get(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return time.Time{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.misses++
		return time.Time{}, false
	}

	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// Advance records t for key unless a later timestamp is already cached.
// The entry's TTL is refreshed either way.
func (c *DateCache) Advance(key string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.items[key]; ok {
		if now.After(entry.expiresAt) || t.After(entry.value) {
			entry.value = t
		}
		entry.expiresAt = now.Add(c.ttl)
		c.moveToFront(entry)
		return
	}

	entry := &dateEntry{key: key, value: t, expiresAt: now.Add(c.ttl)}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove drops key.
func (c *DateCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		c.removeEntry(entry)
	}
}

// Len returns the number of entries, expired ones included.
func (c *DateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counts.
func (c *DateCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// List helpers; callers hold c.mu.

func (c *DateCache) addToFront(entry *dateEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *DateCache) moveToFront(entry *dateEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *DateCache) removeEntry(entry *dateEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *DateCache) evictOldest() {
	if oldest := c.tail.prev; oldest != c.head {
		c.removeEntry(oldest)
	}
}
