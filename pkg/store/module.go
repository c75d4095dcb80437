// Package store persists per-entity preferences, currently whether
// knockback compensation is disabled for an entity.
package store

import (
	"context"
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

type Store interface {
	Disabled(ctx context.Context, id string) (bool, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	Close() error
}

type Type string

const (
	TypeMemory Type = "memory"
	TypeSQLite Type = "sqlite"
	TypeRedis  Type = "redis"
)

type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

type Settings struct {
	Type  Type
	Path  string
	Redis RedisSettings
}

func Open(settings Settings) (Store, error) {
	switch settings.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeSQLite:
		return NewSQLStore(settings.Path)
	case TypeRedis:
		return NewRedisStore(settings.Redis), nil
	}

	return nil, fmt.Errorf("unknown store type %q", settings.Type)
}

type MemoryStore struct {
	mutex    deadlock.RWMutex
	disabled map[string]bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disabled: make(map[string]bool),
	}
}

func (m *MemoryStore) Disabled(ctx context.Context, id string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.disabled[id], nil
}

func (m *MemoryStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if disabled {
		m.disabled[id] = true
	} else {
		delete(m.disabled, id)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
