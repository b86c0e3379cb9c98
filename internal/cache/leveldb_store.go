package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// leveldb 键布局：
//
//	s:<store>                 存储标记（空值）
//	m:<store>\x00<identity>   gob(levelMeta)，Entries 只读这一前缀
//	e:<store>\x00<identity>   正文，Compressed 时为 zstd 帧
const (
	storePrefix = "s:"
	metaPrefix  = "m:"
	bodyPrefix  = "e:"
	keySep      = "\x00"
)

type levelMeta struct {
	Identity   string
	Status     int
	Header     http.Header
	Size       int64
	ModTime    time.Time
	Digest     string
	Compressed bool
}

// NewLevelDBStore 打开（或创建）path 下的 leveldb 数据库。compress 为 true 时正文以
// zstd 压缩存放，压缩无收益的正文仍按原样保存。
func NewLevelDBStore(path string, compress bool) (Store, error) {
	if path == "" {
		return nil, errors.New("storage path required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &levelStore{db: db, compress: compress}, nil
}

type levelStore struct {
	db       *leveldb.DB
	compress bool

	// Drop 需要遍历前缀后批量删除，写锁保证期间没有 Put/Remove 的批次与之交错。
	mu sync.RWMutex
}

func (s *levelStore) Open(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Put([]byte(storePrefix+name), nil, nil)
}

func (s *levelStore) Has(ctx context.Context, name string) (bool, error) {
	if err := ValidateStoreName(name); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.db.Has([]byte(storePrefix+name), nil)
}

func (s *levelStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(storePrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(storePrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *levelStore) Drop(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	batch.Delete([]byte(storePrefix + name))
	for _, prefix := range []string{metaPrefix, bodyPrefix} {
		it := s.db.NewIterator(util.BytesPrefix([]byte(prefix+name+keySep)), nil)
		for it.Next() {
			batch.Delete(append([]byte(nil), it.Key()...))
		}
		it.Release()
		if err := it.Error(); err != nil {
			return err
		}
	}
	return s.db.Write(batch, nil)
}

func (s *levelStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 快照保证 meta 与正文来自同一次写入。
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	rawMeta, err := snap.Get(entryKey(metaPrefix, locator), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta levelMeta
	if err := decodeGob(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}
	body, err := snap.Get(entryKey(bodyPrefix, locator), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if meta.Compressed {
		if body, err = decompressBody(body, meta.Size); err != nil {
			return nil, err
		}
	}

	return &ReadResult{
		Entry:  meta.entry(locator.Store),
		Reader: readSeekNopCloser{bytes.NewReader(body)},
	}, nil
}

func (s *levelStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
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
	meta := levelMeta{
		Identity: locator.Identity,
		Status:   opts.Status,
		Header:   opts.Header.Clone(),
		Size:     int64(len(payload)),
		ModTime:  modTime,
		Digest:   Digest(payload),
	}
	stored := payload
	if s.compress {
		if compressed, err := compressBody(payload); err == nil {
			stored = compressed
			meta.Compressed = true
		}
	}
	rawMeta, err := encodeGob(meta)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := new(leveldb.Batch)
	batch.Put([]byte(storePrefix+locator.Store), nil)
	batch.Put(entryKey(metaPrefix, locator), rawMeta)
	batch.Put(entryKey(bodyPrefix, locator), stored)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}

	entry := meta.entry(locator.Store)
	return &entry, nil
}

func (s *levelStore) Remove(ctx context.Context, locator Locator) error {
	if err := validateLocator(locator); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := new(leveldb.Batch)
	batch.Delete(entryKey(metaPrefix, locator))
	batch.Delete(entryKey(bodyPrefix, locator))
	return s.db.Write(batch, nil)
}

func (s *levelStore) Entries(ctx context.Context, name string) ([]Entry, error) {
	ok, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoreNotFound
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(metaPrefix+name+keySep)), nil)
	defer it.Release()

	var entries []Entry
	for it.Next() {
		var meta levelMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		entries = append(entries, meta.entry(name))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Locator.Identity < entries[j].Locator.Identity
	})
	return entries, nil
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

func (m levelMeta) entry(store string) Entry {
	return Entry{
		Locator:   Locator{Store: store, Identity: m.Identity},
		Status:    m.Status,
		Header:    m.Header,
		SizeBytes: m.Size,
		ModTime:   m.ModTime,
		Digest:    m.Digest,
	}
}

func entryKey(prefix string, locator Locator) []byte {
	return []byte(prefix + locator.Store + keySep + locator.Identity)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
