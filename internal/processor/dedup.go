package processor

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// dedupCache is a bounded LRU of recently seen event keys. Transports retry
// deliveries, and a redelivered check-in must not double-count a strike.
type dedupCache struct {
	mu    sync.Mutex
	cap   int
	keys  map[string]*list.Element
	order *list.List
}

func newDedupCache(capacity int) *dedupCache {
	if capacity <= 0 {
		capacity = 4096
	}
	return &dedupCache{
		cap:   capacity,
		keys:  make(map[string]*list.Element),
		order: list.New(),
	}
}

// eventKey is the de-duplication key: hash of sender, body, and timestamp.
func eventKey(sender, body, timestamp string) string {
	sum := sha256.Sum256([]byte(sender + "|" + body + "|" + timestamp))
	return hex.EncodeToString(sum[:])
}

// seen records the key and reports whether it was already present.
func (c *dedupCache) seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.keys[key]; ok {
		c.order.MoveToFront(el)
		return true
	}

	c.keys[key] = c.order.PushFront(key)
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.keys, oldest.Value.(string))
	}
	return false
}
