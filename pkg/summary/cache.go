package summary

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache is an in-memory LRU cache of graph summaries with optional disk
// persistence. Keys come from Key; values are immutable once stored.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	head    *cacheItem // most recently used
	tail    *cacheItem
	size    int
	maxSize int
	hits    int64
	misses  int64
}

type cacheItem struct {
	entry cacheEntry
	prev  *cacheItem
	next  *cacheItem
}

type cacheEntry struct {
	Key        string        `msgpack:"key"`
	Summary    *GraphSummary `msgpack:"summary"`
	AccessedAt time.Time     `msgpack:"accessed_at"`
}

// NewCache creates a cache holding at most maxSize summaries; 0 means
// unlimited.
func NewCache(maxSize int) *Cache {
	return &Cache{
		items:   make(map[string]*cacheItem),
		maxSize: maxSize,
	}
}

// Get retrieves a summary and marks it recently used.
func (c *Cache) Get(key string) (*GraphSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	item.entry.AccessedAt = time.Now()
	c.moveToFront(item)
	return item.entry.Summary, true
}

// Set stores a summary, evicting the least recently used entries when the
// cache is full.
func (c *Cache) Set(key string, s *GraphSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.entry.Summary = s
		item.entry.AccessedAt = time.Now()
		c.moveToFront(item)
		return
	}

	item := &cacheItem{entry: cacheEntry{
		Key:        key,
		Summary:    s,
		AccessedAt: time.Now(),
	}}
	c.items[key] = item
	c.pushFront(item)
	c.size++

	for c.maxSize > 0 && c.size > c.maxSize {
		c.evictBack()
	}
}

// Len returns the number of cached summaries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
	c.head, c.tail = nil, nil
	c.size = 0
}

// Stats reports hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *Cache) moveToFront(item *cacheItem) {
	if item == c.head {
		return
	}
	c.unlink(item)
	c.pushFront(item)
}

func (c *Cache) pushFront(item *cacheItem) {
	item.prev = nil
	item.next = c.head
	if c.head != nil {
		c.head.prev = item
	}
	c.head = item
	if c.tail == nil {
		c.tail = item
	}
}

func (c *Cache) unlink(item *cacheItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
}

func (c *Cache) evictBack() {
	item := c.tail
	if item == nil {
		return
	}
	c.unlink(item)
	delete(c.items, item.entry.Key)
	c.size--
}

// Save writes the cache contents as msgpack, most recently used first.
func (c *Cache) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]cacheEntry, 0, c.size)
	for item := c.head; item != nil; item = item.next {
		entries = append(entries, item.entry)
	}
	return msgpack.NewEncoder(w).Encode(entries)
}

// Load replaces the cache contents with a previously saved snapshot.
func (c *Cache) Load(r io.Reader) error {
	var entries []cacheEntry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("decoding summary cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem, len(entries))
	c.head, c.tail = nil, nil
	c.size = 0
	for i := len(entries) - 1; i >= 0; i-- {
		item := &cacheItem{entry: entries[i]}
		c.items[item.entry.Key] = item
		c.pushFront(item)
		c.size++
	}
	return nil
}

// SaveFile persists the cache to path.
func (c *Cache) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFile restores the cache from path. A missing file leaves the cache
// empty and is not an error.
func (c *Cache) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening summary cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
