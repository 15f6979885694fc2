package beacon

import (
	"context"
	"strconv"
	"sync"
)

// fakeBackend is an in-memory Backend used by root-package tests. It is not
// exported; etcdqueue and rediskv have their own backend-specific tests.
type fakeBackend struct {
	mu       sync.Mutex
	entries  []RetryEntry
	token    int
	failNext bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) Push(_ context.Context, entry RetryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		return ErrNoEntries
	}
	b.entries = append(b.entries, entry)

	return nil
}

func (b *fakeBackend) Shift(_ context.Context) (RetryEntry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		return RetryEntry{}, false, ErrNoEntries
	}
	if len(b.entries) == 0 {
		return RetryEntry{}, false, nil
	}
	entry := b.entries[0]
	b.entries = b.entries[1:]

	return entry, true, nil
}

func (b *fakeBackend) PushIfNotClearing(_ context.Context, entry RetryEntry, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if token != strconv.Itoa(b.token) {
		return nil
	}
	b.entries = append([]RetryEntry{entry}, b.entries...)

	return nil
}

func (b *fakeBackend) ClearToken(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strconv.Itoa(b.token), nil
}

func (b *fakeBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.token++

	return nil
}

func (b *fakeBackend) Peek(_ context.Context, count int) ([]RetryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count > len(b.entries) {
		count = len(b.entries)
	}
	out := make([]RetryEntry, count)
	copy(out, b.entries[:count])

	return out, nil
}

func (b *fakeBackend) PeekBack(_ context.Context, count int) ([]RetryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count > len(b.entries) {
		count = len(b.entries)
	}
	out := make([]RetryEntry, count)
	copy(out, b.entries[len(b.entries)-count:])

	return out, nil
}
