package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

const (
	entrySuffix    = ".entry"
	tempPrefix     = ".cache-"
	dropPrefix     = ".drop-"
	maxHeaderBytes = 1 << 20
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 Locator 并发写入；dirMu 让 Drop 与写入互斥，
// 保证被删除的存储不会被半途写入的条目“复活”。
type fileStore struct {
	basePath string

	dirMu sync.RWMutex

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// fileHeader 是 .entry 文件的第一行，其后紧跟原始正文。
type fileHeader struct {
	Identity string      `json:"identity"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Size     int64       `json:"size"`
	ModTime  time.Time   `json:"mod_time"`
	Digest   string      `json:"digest"`
}

func (s *fileStore) Open(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	return os.MkdirAll(s.storeDir(name), 0o755)
}

func (s *fileStore) Has(ctx context.Context, name string) (bool, error) {
	if err := ValidateStoreName(name); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.storeDir(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *fileStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		names = append(names, item.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Drop 先将目录重命名为隐藏名再删除，Names 不会看到删除到一半的存储。
func (s *fileStore) Drop(ctx context.Context, name string) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	dir := s.storeDir(name)
	trash, err := os.MkdirTemp(s.basePath, dropPrefix)
	if err != nil {
		return err
	}
	target := filepath.Join(trash, name)
	if err := os.Rename(dir, target); err != nil {
		os.Remove(trash)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(trash)
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	header, offset, err := readFileHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read cache entry %s: %w", filePath, err)
	}
	if header.Identity != locator.Identity {
		// 摘要碰撞或被外部改写，视为未命中。
		f.Close()
		return nil, ErrNotFound
	}
	if offset+header.Size != info.Size() {
		f.Close()
		return nil, fmt.Errorf("read cache entry %s: truncated body", filePath)
	}

	return &ReadResult{
		Entry: header.entry(locator.Store),
		Reader: &sectionReadCloser{
			SectionReader: io.NewSectionReader(f, offset, header.Size),
			Closer:        f,
		},
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}

	unlock, err := s.lockEntry(locator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 正文先落入内存以计算大小与摘要，头部必须先于正文写出。
	var buf bytes.Buffer
	hasher := blake3.New(32, nil)
	written, err := copyWithContext(ctx, io.MultiWriter(&buf, hasher), body)
	if err != nil {
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	header := fileHeader{
		Identity: locator.Identity,
		Status:   opts.Status,
		Header:   opts.Header.Clone(),
		Size:     written,
		ModTime:  modTime,
		Digest:   fmt.Sprintf("%x", hasher.Sum(nil)),
	}
	line, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	s.dirMu.RLock()
	defer s.dirMu.RUnlock()

	filePath, _ := s.entryPath(locator)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), tempPrefix+"*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(append(line, '\n'))
	if err == nil {
		_, err = buf.WriteTo(tempFile)
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := header.entry(locator.Store)
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := s.lockEntry(locator)
	if err != nil {
		return err
	}
	defer unlock()

	filePath, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Entries(ctx context.Context, name string) ([]Entry, error) {
	if err := ValidateStoreName(name); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.storeDir(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.IsDir() || !strings.HasSuffix(item.Name(), entrySuffix) {
			continue
		}
		header, err := s.statEntry(filepath.Join(s.storeDir(name), item.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		entries = append(entries, header.entry(name))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Locator.Identity < entries[j].Locator.Identity
	})
	return entries, nil
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) statEntry(filePath string) (fileHeader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return fileHeader{}, err
	}
	defer f.Close()
	header, _, err := readFileHeader(f)
	return header, err
}

func (s *fileStore) lockEntry(locator Locator) (func(), error) {
	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}, nil
}

func (s *fileStore) storeDir(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	if err := validateLocator(locator); err != nil {
		return "", err
	}
	return filepath.Join(s.storeDir(locator.Store), identityFileName(locator.Identity)), nil
}

func readFileHeader(f *os.File) (fileHeader, int64, error) {
	reader := bufio.NewReader(io.LimitReader(f, maxHeaderBytes))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fileHeader{}, 0, fmt.Errorf("missing entry header: %w", err)
	}
	var header fileHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return fileHeader{}, 0, fmt.Errorf("decode entry header: %w", err)
	}
	return header, int64(len(line)), nil
}

func (h fileHeader) entry(store string) Entry {
	return Entry{
		Locator:   Locator{Store: store, Identity: h.Identity},
		Status:    h.Status,
		Header:    h.Header,
		SizeBytes: h.Size,
		ModTime:   h.ModTime,
		Digest:    h.Digest,
	}
}

type sectionReadCloser struct {
	*io.SectionReader
	io.Closer
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Store + "::" + locator.Identity
}
