package combat

import (
	"github.com/cespare/xxhash/v2"
	"github.com/sasha-s/go-deadlock"
)

const numShards = 32

type registryShard struct {
	mutex   deadlock.RWMutex
	members map[string]struct{}
}

// Registry is the process-wide set of entities currently in combat. It
// only holds identifiers. Each shard has its own lock so membership checks
// for different entities do not contend.
type Registry struct {
	shards [numShards]registryShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].members = make(map[string]struct{})
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	return &r.shards[xxhash.Sum64String(id)%numShards]
}

func (r *Registry) Add(id string) {
	shard := r.shard(id)
	shard.mutex.Lock()
	shard.members[id] = struct{}{}
	shard.mutex.Unlock()
}

func (r *Registry) Remove(id string) {
	shard := r.shard(id)
	shard.mutex.Lock()
	delete(shard.members, id)
	shard.mutex.Unlock()
}

func (r *Registry) Contains(id string) bool {
	shard := r.shard(id)
	shard.mutex.RLock()
	_, ok := shard.members[id]
	shard.mutex.RUnlock()
	return ok
}

func (r *Registry) Len() (count int) {
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mutex.RLock()
		count += len(shard.members)
		shard.mutex.RUnlock()
	}
	return
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0)
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mutex.RLock()
		for id := range shard.members {
			ids = append(ids, id)
		}
		shard.mutex.RUnlock()
	}
	return ids
}
