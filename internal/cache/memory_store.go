package cache

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"
)

// NewMemoryStore 返回进程内存储，适用于测试以及不需要跨重启保留缓存的部署。
func NewMemoryStore() Store {
	return &memoryStore{stores: make(map[string]map[string]memoryEntry)}
}

type memoryEntry struct {
	entry Entry
	body  []byte
}

type memoryStore struct {
	mu     sync.RWMutex
	stores map[string]map[string]memoryEntry
}

func (s *memoryStore) Open(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[name]; !ok {
		s.stores[name] = make(map[string]memoryEntry)
	}
	return nil
}

func (s *memoryStore) Has(ctx context.Context, name string) (bool, error) {
	if err := ValidateStoreName(name); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stores[name]
	return ok, nil
}

func (s *memoryStore) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) Drop(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, name)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	item, ok := s.stores[locator.Store][locator.Identity]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	entry := item.entry
	entry.Header = entry.Header.Clone()
	return &ReadResult{
		Entry:  entry,
		Reader: readSeekNopCloser{bytes.NewReader(item.body)},
	}, nil
}

func (s *memoryStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := copyWithContext(ctx, &buf, body); err != nil {
		return nil, err
	}
	payload := buf.Bytes()

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	entry := Entry{
		Locator:   locator,
		Status:    opts.Status,
		Header:    opts.Header.Clone(),
		SizeBytes: int64(len(payload)),
		ModTime:   modTime,
		Digest:    Digest(payload),
	}

	s.mu.Lock()
	store, ok := s.stores[locator.Store]
	if !ok {
		store = make(map[string]memoryEntry)
		s.stores[locator.Store] = store
	}
	store[locator.Identity] = memoryEntry{entry: entry, body: payload}
	s.mu.Unlock()

	out := entry
	out.Header = entry.Header.Clone()
	return &out, nil
}

func (s *memoryStore) Remove(ctx context.Context, locator Locator) error {
	if err := validateLocator(locator); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores[locator.Store], locator.Identity)
	return nil
}

func (s *memoryStore) Entries(ctx context.Context, name string) ([]Entry, error) {
	if err := ValidateStoreName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.stores[name]
	if !ok {
		return nil, ErrStoreNotFound
	}
	entries := make([]Entry, 0, len(store))
	for _, item := range store {
		entry := item.entry
		entry.Header = entry.Header.Clone()
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Locator.Identity < entries[j].Locator.Identity
	})
	return entries, nil
}

func (s *memoryStore) Close() error {
	return nil
}
