package processor

import (
	"hash/fnv"
	"sync"
)

// keyLock serializes event processing per worker or contact key while
// letting unrelated keys proceed in parallel. Striping bounds memory: two
// distinct keys may share a stripe, which over-serializes but never
// under-serializes.
type keyLock struct {
	stripes [64]sync.Mutex
}

func (k *keyLock) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	mu.Lock()
	return mu
}
