package cache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Store: "currency-converter-v1", Identity: "GET https://converter.local/index.html"}

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("<html>converter</html>")
	header := http.Header{"Content-Type": []string{"text/html"}}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{Status: 200, Header: header, ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
	if result.Entry.Header.Get("Content-Type") != "text/html" || result.Entry.Status != 200 {
		t.Fatalf("metadata mismatch: %+v", result.Entry)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Store: "currency-runtime-v1", Identity: "GET https://api.frankfurter.dev/missing"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Store: "currency-runtime-v1", Identity: "GET https://api.frankfurter.dev/v1/latest"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{Status: 200}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Store: "currency-converter-v1", Identity: "GET https://converter.local/"}

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	filePath, err := fs.entryPath(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreRejectsTruncatedEntry(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Store: "currency-converter-v1", Identity: "GET https://converter.local/app.js"}
	if _, err := store.Put(context.Background(), locator, strings.NewReader("console.log(1)"), PutOptions{Status: 200}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	filePath, _ := store.(*fileStore).entryPath(locator)
	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if err := os.Truncate(filePath, info.Size()-3); err != nil {
		t.Fatalf("truncate error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err == ErrNotFound {
		t.Fatalf("expected corruption error, got %v", err)
	}
}

func TestStoreNamesSkipHiddenDirectories(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Open(context.Background(), "currency-runtime-v1"); err != nil {
		t.Fatalf("open error: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, ".drop-123", "old"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	names, err := store.Names(context.Background())
	if err != nil {
		t.Fatalf("names error: %v", err)
	}
	if len(names) != 1 || names[0] != "currency-runtime-v1" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestStoreConcurrentPutSameIdentity(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Store: "currency-runtime-v1", Identity: "GET https://api.frankfurter.dev/v1/latest?base=USD"}

	var wg sync.WaitGroup
	bodies := []string{strings.Repeat("a", 4096), strings.Repeat("b", 8192)}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			if _, err := store.Put(context.Background(), locator, strings.NewReader(body), PutOptions{Status: 200}); err != nil {
				t.Errorf("put error: %v", err)
			}
		}(bodies[i%2])
	}
	wg.Wait()

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	if string(body) != bodies[0] && string(body) != bodies[1] {
		t.Fatalf("observed a torn write of %d bytes", len(body))
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
