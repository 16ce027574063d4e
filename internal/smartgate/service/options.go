package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// Options carries the collaborators every service shares.
type Options struct {
	// Now is the clock. Defaults to time.Now in UTC.
	Now    func() time.Time
	Logger *slog.Logger
	// Locks must be shared by every service working on the same store.
	Locks *Locks
	// Currency labels ledger activity and payments. Defaults to MYR.
	Currency string
	// ProcessorTimeout bounds each external payment call. Defaults to 15s.
	ProcessorTimeout time.Duration
	// CacheTTL applies to read models written to the cache. Defaults to 10m.
	CacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Locks == nil {
		o.Locks = NewLocks()
	}
	if o.Currency == "" {
		o.Currency = "MYR"
	}
	if o.ProcessorTimeout <= 0 {
		o.ProcessorTimeout = 15 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 10 * time.Minute
	}
	return o
}

func (o Options) now() time.Time { return o.Now().UTC() }

// Locks serialises work per plate and per user. When both are needed the
// plate is taken first.
type Locks struct {
	plates keyedMutex
	users  keyedMutex
}

func NewLocks() *Locks { return &Locks{} }

func (l *Locks) Plate(plate string) (unlock func()) { return l.plates.lock(plate) }

func (l *Locks) User(userID string) (unlock func()) { return l.users.lock(userID) }

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until key is free. Entries are dropped once the last holder
// or waiter releases them.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// notify appends a notification for userID inside tx.
func notify(ctx context.Context, tx store.Tx, userID, message string, now time.Time) error {
	return tx.Notifications().Insert(ctx, types.Notification{
		ID:        types.NewID("NTF"),
		UserID:    userID,
		Message:   message,
		CreatedAt: now,
	})
}
