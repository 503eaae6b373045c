package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// FieldCache stores the registry's definitions per axis.
type FieldCache interface {
	Get(ctx context.Context, axis domain.Axis) ([]domain.CustomFieldDefinition, bool)
	Set(ctx context.Context, axis domain.Axis, defs []domain.CustomFieldDefinition)
	Invalidate(ctx context.Context, axis domain.Axis)
}

type memoryFieldCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[domain.Axis]memoryFieldEntry
}

type memoryFieldEntry struct {
	defs      []domain.CustomFieldDefinition
	expiresAt time.Time
}

func NewMemoryFieldCache(ttl time.Duration) FieldCache {
	return &memoryFieldCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.Axis]memoryFieldEntry),
	}
}

func (c *memoryFieldCache) Get(_ context.Context, axis domain.Axis) ([]domain.CustomFieldDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[axis]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().After(e.expiresAt) {
		return nil, false
	}
	return append([]domain.CustomFieldDefinition(nil), e.defs...), true
}

func (c *memoryFieldCache) Set(_ context.Context, axis domain.Axis, defs []domain.CustomFieldDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[axis] = memoryFieldEntry{
		defs:      append([]domain.CustomFieldDefinition(nil), defs...),
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *memoryFieldCache) Invalidate(_ context.Context, axis domain.Axis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, axis)
}

type redisFieldCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisFieldCache shares definitions between server replicas.
func NewRedisFieldCache(client *redis.Client, prefix string, ttl time.Duration) FieldCache {
	if prefix == "" {
		prefix = "hierarchy:custom_fields:v1"
	}
	return &redisFieldCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *redisFieldCache) key(axis domain.Axis) string {
	return c.prefix + ":" + axis.String()
}

func (c *redisFieldCache) Get(ctx context.Context, axis domain.Axis) ([]domain.CustomFieldDefinition, bool) {
	raw, err := c.client.Get(ctx, c.key(axis)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logWithFields(ctx, logrus.WarnLevel, "custom field cache read failed", logrus.Fields{"axis": axis, "error": err.Error()})
		}
		return nil, false
	}
	var defs []domain.CustomFieldDefinition
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, false
	}
	return defs, true
}

func (c *redisFieldCache) Set(ctx context.Context, axis domain.Axis, defs []domain.CustomFieldDefinition) {
	b, err := json.Marshal(defs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(axis), b, c.ttl).Err(); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "custom field cache write failed", logrus.Fields{"axis": axis, "error": err.Error()})
	}
}

func (c *redisFieldCache) Invalidate(ctx context.Context, axis domain.Axis) {
	_ = c.client.Del(ctx, c.key(axis)).Err()
}
