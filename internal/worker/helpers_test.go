package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/currency-hub/currency-hub/internal/cache"
)

var errOffline = errors.New("dial tcp: network is unreachable")

const (
	shellOrigin = "https://converter.example.com"
	rateOrigin  = "https://api.frankfurter.dev"
)

// fakeNetwork 是可切换离线状态的内存上游。未登记的 URL 返回 404。
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*Response
	failures  map[string]bool
	offline   bool
	calls     map[string]int
	gate      chan struct{}
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		responses: make(map[string]*Response),
		failures:  make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	key := req.URL.String()
	n.mu.Lock()
	n.calls[key]++
	offline := n.offline || n.failures[key]
	resp := n.responses[key]
	gate := n.gate
	n.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if offline {
		return nil, errOffline
	}
	if resp == nil {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return resp.Clone(), nil
}

func (n *fakeNetwork) set(rawURL string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[rawURL] = &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) fail(rawURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[rawURL] = true
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) setGate(gate chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gate = gate
}

func (n *fakeNetwork) callCount(rawURL string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[rawURL]
}

// withShell 登记默认清单的三项资源。
func (n *fakeNetwork) withShell(version string) *fakeNetwork {
	n.set(shellOrigin+"/index.html", http.StatusOK, "<html>"+version+"</html>")
	n.set(shellOrigin+"/app.js", http.StatusOK, "app-"+version)
	n.set(shellOrigin+"/styles.css", http.StatusOK, "css-"+version)
	return n
}

func testOptions(version string) Options {
	origin, _ := url.Parse(shellOrigin)
	return Options{
		Version:          version,
		ShellStore:       "currency-converter-" + version,
		RuntimeStore:     "currency-runtime-" + version,
		ShellOrigin:      origin,
		Manifest:         []string{"/index.html", "/app.js", "/styles.css"},
		RateAPIHosts:     []string{"api.frankfurter.dev"},
		FallbackDocument: "/index.html",
	}
}

func newTestWorker(t *testing.T, store cache.Store, net Fetcher, opts Options) *Worker {
	t.Helper()
	w, err := New(opts, store, net, nil)
	require.NoError(t, err)
	return w
}

func activeWorker(t *testing.T, store cache.Store, net Fetcher, opts Options) *Worker {
	t.Helper()
	w := newTestWorker(t, store, net, opts)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	return w
}

func getRequest(t *testing.T, rawURL string, header http.Header) *Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return NewRequest(http.MethodGet, u, header)
}

func documentHeader() http.Header {
	return http.Header{"Sec-Fetch-Dest": []string{"document"}}
}

func readStored(t *testing.T, store cache.Store, name, identity string) (string, bool) {
	t.Helper()
	result, err := store.Get(context.Background(), cache.Locator{Store: name, Identity: identity})
	if errors.Is(err, cache.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	defer result.Reader.Close()
	body, err := io.ReadAll(result.Reader)
	require.NoError(t, err)
	return string(body), true
}

func putStored(t *testing.T, store cache.Store, name, identity, body string) {
	t.Helper()
	_, err := cache.NewWriter(store, 0).Put(context.Background(), cache.Locator{Store: name, Identity: identity}, []byte(body), cache.PutOptions{Status: http.StatusOK})
	require.NoError(t, err)
}

// failingStore 在写入指定 identity 时失败，用于验证安装回滚。
type failingStore struct {
	cache.Store
	failIdentity string
}

func (s failingStore) Put(ctx context.Context, locator cache.Locator, body io.Reader, opts cache.PutOptions) (*cache.Entry, error) {
	if locator.Identity == s.failIdentity {
		return nil, errors.New("disk full")
	}
	return s.Store.Put(ctx, locator, body, opts)
}
