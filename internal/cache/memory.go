package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	val     []byte
	list    [][]byte
	count   int64
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is an in-process Cache used when no Redis is configured.
type Memory struct {
	mu  sync.Mutex
	m   map[string]*entry
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]*entry), now: time.Now}
}

// lookup returns the live entry for key, dropping it if expired.
func (c *Memory) lookup(key string) *entry {
	e, ok := c.m[key]
	if !ok {
		return nil
	}
	if e.expired(c.now()) {
		delete(c.m, key)
		return nil
	}
	return e
}

func (c *Memory) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	e := &entry{val: b}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Memory) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	e := c.lookup(key)
	var b []byte
	if e != nil {
		b = e.val
	}
	c.mu.Unlock()

	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

func (c *Memory) PushJSON(_ context.Context, key string, v any, maxLen int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e == nil {
		e = &entry{}
		c.m[key] = e
	}
	e.list = append([][]byte{b}, e.list...)
	if maxLen > 0 && len(e.list) > maxLen {
		e.list = e.list[:maxLen]
	}
	return nil
}

// ListJSON mirrors Redis.ListJSON.
func (c *Memory) ListJSON(_ context.Context, key string, limit int, decode func([]byte) error) error {
	c.mu.Lock()
	var items [][]byte
	if e := c.lookup(key); e != nil {
		items = append(items, e.list...)
	}
	c.mu.Unlock()

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for _, b := range items {
		if err := decode(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e == nil {
		e = &entry{}
		if window > 0 {
			e.expires = c.now().Add(window)
		}
		c.m[key] = e
	}
	e.count++
	return e.count, nil
}
