package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 16

// dateLocks serializes reconciliation per calendar date while letting
// unrelated dates proceed in parallel. Shard collisions only cost extra
// serialization, never correctness.
type dateLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *dateLocks) lock(date string) func() {
	h := fnv.New32a()
	h.Write([]byte(date))
	mu := &l.shards[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}
