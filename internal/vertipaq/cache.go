package vertipaq

import (
	"bytes"
	"container/list"
	"io"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/ulikunitz/xz"
)

// highwayKey is a fixed, zero key: the cache only needs a stable,
// collision-resistant digest to detect byte-identical slices across
// decodes, not a keyed MAC against an adversary.
var highwayKey = make([]byte, 32)

// fileCache is the façade's file-slice cache: an LRU ring of hot,
// uncompressed slices backed by a cold tier that keeps large, evicted
// slices around XZ-compressed instead of dropping them outright. Smaller
// evicted slices are dropped; the Extractor re-reads them from its
// FileSource (the ABF index, whose decompressed buffer stays referenced for
// the Extractor's lifetime) on the next miss.
//
// Modeled on the host application's LRU + generic cache pair
// (application/app/cache/lru.go, cache.go): an intrusive doubly-linked
// list for O(1) move-to-front plus a map index, guarded by one mutex.
type fileCache struct {
	mu sync.Mutex

	maxSize          int64
	coldThreshold    int64
	currentSize      int64

	ll    *list.List
	index map[string]*list.Element

	cold map[string][]byte // basename -> xz-compressed bytes

	digests map[string]uint64 // basename -> content digest, for stats/dedup
}

type cacheEntry struct {
	name string
	data []byte
}

func newFileCache(maxSize, coldThreshold int64) *fileCache {
	return &fileCache{
		maxSize:       maxSize,
		coldThreshold: coldThreshold,
		ll:            list.New(),
		index:         make(map[string]*list.Element),
		cold:          make(map[string][]byte),
		digests:       make(map[string]uint64),
	}
}

// put stores name's data, owned independently of whatever buffer the
// caller read it from (the caller must pass an already-copied slice).
func (c *fileCache) put(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[name]; ok {
		c.currentSize -= int64(len(el.Value.(*cacheEntry).data))
		c.ll.Remove(el)
		delete(c.index, name)
	}
	delete(c.cold, name)

	c.digests[name] = highwayhash.Sum64(data, highwayKey)

	el := c.ll.PushFront(&cacheEntry{name: name, data: data})
	c.index[name] = el
	c.currentSize += int64(len(data))

	c.evictToFit()
}

// get returns name's bytes, checking the hot ring then the cold tier.
func (c *fileCache) get(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[name]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*cacheEntry).data, true
	}

	if compressed, ok := c.cold[name]; ok {
		data, err := decompressXZ(compressed)
		if err != nil {
			return nil, false
		}
		// Rewarm: move back into the hot ring.
		el := c.ll.PushFront(&cacheEntry{name: name, data: data})
		c.index[name] = el
		c.currentSize += int64(len(data))
		delete(c.cold, name)
		c.evictToFit()
		return data, true
	}

	return nil, false
}

// evictToFit drops least-recently-used hot entries until currentSize fits
// maxSize, demoting large entries to the cold tier instead of discarding
// them when they're at or above coldThreshold.
func (c *fileCache) evictToFit() {
	for c.currentSize > c.maxSize {
		back := c.ll.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.ll.Remove(back)
		delete(c.index, entry.name)
		c.currentSize -= int64(len(entry.data))

		if int64(len(entry.data)) >= c.coldThreshold {
			if compressed, err := compressXZ(entry.data); err == nil {
				c.cold[entry.name] = compressed
				continue
			}
		}
		delete(c.digests, entry.name)
	}
}

// CacheStats summarizes a fileCache's occupancy for diagnostics.
type CacheStats struct {
	HotEntries        int
	ColdEntries       int
	CurrentSizeBytes  int64
	DuplicateDigests  int // distinct names sharing a digest with another cached name
}

func (c *fileCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[uint64]int, len(c.digests))
	for _, d := range c.digests {
		seen[d]++
	}
	dup := 0
	for _, n := range seen {
		if n > 1 {
			dup += n
		}
	}

	return CacheStats{
		HotEntries:       c.ll.Len(),
		ColdEntries:      len(c.cold),
		CurrentSizeBytes: c.currentSize,
		DuplicateDigests: dup,
	}
}

func compressXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressXZ(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
