package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/akolanti/docsync/internal/domain/taskModel"
)

type lockEntry struct {
	held chan struct{}
	refs int
}

// InMemoryDocumentLock is a keyed mutex for a single process.
type InMemoryDocumentLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewInMemoryDocumentLock() *InMemoryDocumentLock {
	return &InMemoryDocumentLock{entries: make(map[string]*lockEntry)}
}

func (l *InMemoryDocumentLock) Lock(ctx context.Context, documentKey string) (func(context.Context) error, error) {
	l.mu.Lock()
	entry, ok := l.entries[documentKey]
	if !ok {
		entry = &lockEntry{held: make(chan struct{}, 1)}
		l.entries[documentKey] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		l.drop(documentKey, entry)
		return nil, fmt.Errorf("%w: %s: %w", taskModel.ErrLockNotAcquired, documentKey, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.held
			l.drop(documentKey, entry)
		})
		return nil
	}, nil
}

func (l *InMemoryDocumentLock) drop(documentKey string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, documentKey)
	}
}
