package download

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-modpackinstaller/pkg/cache"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fileServer serves fixed payloads and counts requests per path
type fileServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
	// failFirst makes the first request for a path answer 503
	failFirst map[string]bool
}

func newFileServer(t *testing.T, files map[string][]byte) *fileServer {
	fs := &fileServer{files: files, hits: map[string]int{}, failFirst: map[string]bool{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		n := fs.hits[r.URL.Path]
		body, ok := fs.files[r.URL.Path]
		flaky := fs.failFirst[r.URL.Path]
		fs.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		if flaky && n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fileServer) hitCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

func (fs *fileServer) totalHits() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	total := 0
	for _, n := range fs.hits {
		total += n
	}
	return total
}

func newTestCoordinator(t *testing.T, opts Options) *Coordinator {
	if opts.StagingRoot == "" {
		opts.StagingRoot = t.TempDir()
	}
	return NewCoordinator(NewClient(utils.NewDiscardLogger(), nil), utils.NewDiscardLogger(), opts)
}

func runWithTimeout(t *testing.T, c *Coordinator) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Run(ctx)
}

func TestThreeFilesSucceed(t *testing.T) {
	files := map[string][]byte{
		"/a": bytes.Repeat([]byte("a"), 10),
		"/b": bytes.Repeat([]byte("b"), 20),
		"/c": bytes.Repeat([]byte("c"), 30),
	}
	srv := newFileServer(t, files)
	dir := t.TempDir()

	var successes, failures int32
	var lastProgress atomic.Value
	c := newTestCoordinator(t, Options{Workers: 2, Observer: func(p Progress) { lastProgress.Store(p) }})
	c.OnSuccess(func() { atomic.AddInt32(&successes, 1) })
	c.OnError(func(error) { atomic.AddInt32(&failures, 1) })

	for path, body := range files {
		_, err := c.Enqueue(srv.URL+path, int64(len(body)), sha1Hex(body), filepath.Join(dir, path[1:]+".jar"), path)
		require.NoError(t, err)
	}

	require.NoError(t, runWithTimeout(t, c))
	assert.Equal(t, int32(1), atomic.LoadInt32(&successes))
	assert.Equal(t, int32(0), atomic.LoadInt32(&failures))

	p := c.Progress()
	assert.Equal(t, int64(60), p.CompletedUnits)
	assert.Equal(t, int64(60), p.TotalUnits)
	assert.Equal(t, 1.0, p.Fraction())
	assert.Equal(t, int64(60), lastProgress.Load().(Progress).CompletedUnits)

	for _, task := range c.Tasks() {
		assert.Equal(t, TaskDone, task.State())
		assert.Equal(t, task.Size, task.BytesReceived())
		assert.FileExists(t, task.Destination)
		assert.NoFileExists(t, task.Destination+".part")
	}
}

func TestChecksumMismatchFailsBatch(t *testing.T) {
	files := map[string][]byte{
		"/good": []byte("good file"),
		"/bad":  []byte("bad file"),
	}
	srv := newFileServer(t, files)
	dir := t.TempDir()

	var successes, failures int32
	c := newTestCoordinator(t, Options{})
	c.OnSuccess(func() { atomic.AddInt32(&successes, 1) })
	c.OnError(func(error) { atomic.AddInt32(&failures, 1) })

	_, err := c.Enqueue(srv.URL+"/good", 9, sha1Hex(files["/good"]), filepath.Join(dir, "good"), "")
	require.NoError(t, err)
	bad, err := c.Enqueue(srv.URL+"/bad", 8, sha1Hex([]byte("something else")), filepath.Join(dir, "bad"), "")
	require.NoError(t, err)

	result := c.Start(context.Background())
	err = result.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, errdefs.KindIntegrity, errdefs.KindOf(err))
	assert.Equal(t, err, result.Err())
	assert.Equal(t, int32(0), atomic.LoadInt32(&successes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures))

	assert.Equal(t, TaskFailed, bad.State())
	assert.Equal(t, 1, srv.hitCount("/bad"), "integrity failures are not retried")
	assert.NoFileExists(t, filepath.Join(dir, "bad"))
	assert.NoFileExists(t, filepath.Join(dir, "bad.part"))
}

func TestFailFastStopsRemainingTasks(t *testing.T) {
	files := map[string][]byte{
		"/first":  []byte("first"),
		"/second": []byte("second"),
		"/third":  []byte("third"),
	}
	srv := newFileServer(t, files)
	dir := t.TempDir()

	c := newTestCoordinator(t, Options{Workers: 1})
	_, err := c.Enqueue(srv.URL+"/first", 5, sha1Hex([]byte("wrong")), filepath.Join(dir, "first"), "")
	require.NoError(t, err)
	second, err := c.Enqueue(srv.URL+"/second", 6, "", filepath.Join(dir, "second"), "")
	require.NoError(t, err)
	third, err := c.Enqueue(srv.URL+"/third", 5, "", filepath.Join(dir, "third"), "")
	require.NoError(t, err)

	err = runWithTimeout(t, c)
	assert.Equal(t, errdefs.KindIntegrity, errdefs.KindOf(err))

	for _, task := range []*Task{second, third} {
		assert.Equal(t, TaskFailed, task.State())
		assert.Equal(t, errdefs.KindCanceled, errdefs.KindOf(task.Err()))
	}
	assert.Equal(t, 0, srv.hitCount("/second"))
	assert.Equal(t, 0, srv.hitCount("/third"))
}

func TestTransientErrorIsRetried(t *testing.T) {
	body := []byte("eventually")
	srv := newFileServer(t, map[string][]byte{"/flaky": body})
	srv.failFirst["/flaky"] = true

	c := newTestCoordinator(t, Options{MaxRetries: 2})
	task, err := c.Enqueue(srv.URL+"/flaky", int64(len(body)), sha1Hex(body), filepath.Join(t.TempDir(), "flaky"), "")
	require.NoError(t, err)

	require.NoError(t, runWithTimeout(t, c))
	assert.Equal(t, TaskDone, task.State())
	assert.Equal(t, 2, srv.hitCount("/flaky"))
	assert.Equal(t, int64(len(body)), c.Progress().CompletedUnits)
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestCoordinator(t, Options{MaxRetries: 1})
	_, err := c.Enqueue(srv.URL+"/x", 0, "", filepath.Join(t.TempDir(), "x"), "")
	require.NoError(t, err)

	err = runWithTimeout(t, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRetriesExhausted)
	assert.Equal(t, errdefs.KindNetwork, errdefs.KindOf(err))
}

func TestKeepPartialFiles(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"/bad": []byte("bytes")})
	dir := t.TempDir()

	c := newTestCoordinator(t, Options{KeepPartialFiles: true})
	_, err := c.Enqueue(srv.URL+"/bad", 0, sha1Hex([]byte("nope")), filepath.Join(dir, "bad"), "")
	require.NoError(t, err)

	require.Error(t, runWithTimeout(t, c))
	assert.FileExists(t, filepath.Join(dir, "bad.part"))
	assert.NoFileExists(t, filepath.Join(dir, "bad"))
}

func TestEmptyBatchSucceeds(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	fired := 0
	c.OnSuccess(func() { fired++ })
	require.NoError(t, runWithTimeout(t, c))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0.0, c.Progress().Fraction())
}

func TestStartTwiceReturnsSameResult(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	r1 := c.Start(context.Background())
	r2 := c.Start(context.Background())
	assert.Same(t, r1, r2)
	require.NoError(t, r1.Wait(context.Background()))

	_, err := c.Enqueue("https://example.com/late", 0, "", filepath.Join(t.TempDir(), "late"), "")
	assert.Error(t, err, "enqueue after start is rejected")
}

func TestEnqueueDuplicates(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	dest := filepath.Join(t.TempDir(), "a.jar")

	first, err := c.Enqueue("https://example.com/a.jar", 1, "", dest, "")
	require.NoError(t, err)
	again, err := c.Enqueue("https://example.com/a.jar", 1, "", dest, "")
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = c.Enqueue("https://example.com/b.jar", 1, "", dest, "")
	assert.Error(t, err)

	_, err = c.Enqueue("https://example.com/c.jar", 1, "xyz", dest+"2", "")
	assert.Equal(t, errdefs.KindParse, errdefs.KindOf(err))
}

func TestDeferredHookEnqueuesNextStage(t *testing.T) {
	files := map[string][]byte{
		"/pack":  []byte("index"),
		"/inner": []byte("inner file"),
	}
	srv := newFileServer(t, files)
	dir := t.TempDir()

	var successes int32
	c := newTestCoordinator(t, Options{})
	c.OnSuccess(func() { atomic.AddInt32(&successes, 1) })

	staged := c.StagingPath("pack.bin")
	_, err := c.Enqueue(srv.URL+"/pack", 5, "", staged, "pack")
	require.NoError(t, err)

	hookRuns := 0
	c.Defer(func(ctx context.Context) error {
		hookRuns++
		data, err := os.ReadFile(staged)
		if err != nil {
			return err
		}
		assert.Equal(t, "index", string(data))
		_, err = c.Enqueue(srv.URL+"/inner", 10, sha1Hex(files["/inner"]), filepath.Join(dir, "inner"), "inner")
		return err
	})

	require.NoError(t, runWithTimeout(t, c))
	assert.Equal(t, 1, hookRuns)
	assert.Equal(t, int32(1), atomic.LoadInt32(&successes))
	assert.FileExists(t, filepath.Join(dir, "inner"))
	assert.Equal(t, int64(15), c.Progress().TotalUnits)
	assert.NoDirExists(t, filepath.Dir(staged), "staging directory is removed")
}

func TestDeferredHookFailureFailsBatch(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	var got error
	c.OnError(func(err error) { got = err })
	c.Defer(func(ctx context.Context) error {
		return errdefs.New(errdefs.KindParse, "manifest.json", "bad")
	})

	err := runWithTimeout(t, c)
	assert.Equal(t, errdefs.KindParse, errdefs.KindOf(err))
	assert.Equal(t, err, got)
}

func TestTaskSuccessHook(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"/a": []byte("a")})
	c := newTestCoordinator(t, Options{})

	var seen string
	task, err := c.Enqueue(srv.URL+"/a", 1, sha1Hex([]byte("a")), filepath.Join(t.TempDir(), "a"), "")
	require.NoError(t, err)
	task.OnSuccess(func(tk *Task) error {
		data, err := os.ReadFile(tk.Destination)
		seen = string(data)
		return err
	})

	require.NoError(t, runWithTimeout(t, c))
	assert.Equal(t, "a", seen)
}

func TestCanceledContext(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"/a": []byte("a")})
	c := newTestCoordinator(t, Options{})
	_, err := c.Enqueue(srv.URL+"/a", 1, "", filepath.Join(t.TempDir(), "a"), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := c.Start(ctx)
	<-result.Done()
	assert.Equal(t, errdefs.KindCanceled, errdefs.KindOf(result.Err()))
	assert.Equal(t, 0, srv.totalHits())
}

func TestDownloadVersionIsIdempotent(t *testing.T) {
	files := map[string][]byte{
		"/client.jar":  []byte("client jar bytes"),
		"/lib/a.jar":   []byte("library a"),
		"/assets/x.js": []byte("asset"),
	}
	srv := newFileServer(t, files)
	root := t.TempDir()

	manifest := &config.Manifest{ID: "1.20.1"}
	for path, body := range files {
		manifest.Files = append(manifest.Files, config.ManifestEntry{
			URL:      srv.URL + path,
			Size:     int64(len(body)),
			Checksum: strings.ToUpper(sha1Hex(body)),
			Path:     strings.TrimPrefix(path, "/"),
		})
	}

	first := newTestCoordinator(t, Options{})
	queued, err := first.DownloadVersion(manifest, root)
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	require.NoError(t, runWithTimeout(t, first))
	assert.Equal(t, 3, srv.totalHits())

	second := newTestCoordinator(t, Options{})
	queued, err = second.DownloadVersion(manifest, root)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
	require.NoError(t, runWithTimeout(t, second))
	assert.Equal(t, 3, srv.totalHits(), "no network operations on resume")

	// a damaged file is fetched again
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "a.jar"), []byte("corrupt!!"), 0644))
	third := newTestCoordinator(t, Options{})
	queued, err = third.DownloadVersion(manifest, root)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestCacheAvoidsNetwork(t *testing.T) {
	body := []byte("shared library")
	srv := newFileServer(t, map[string][]byte{"/lib.jar": body})
	ctx := context.Background()

	artifacts, err := cache.Open(ctx, "mem://", utils.NewDiscardLogger())
	require.NoError(t, err)
	defer artifacts.Close()

	first := newTestCoordinator(t, Options{Cache: artifacts})
	_, err = first.Enqueue(srv.URL+"/lib.jar", int64(len(body)), sha1Hex(body), filepath.Join(t.TempDir(), "lib.jar"), "")
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, first))
	assert.True(t, artifacts.Has(ctx, sha1Hex(body)))

	second := newTestCoordinator(t, Options{Cache: artifacts})
	dest := filepath.Join(t.TempDir(), "other", "lib.jar")
	_, err = second.Enqueue(srv.URL+"/lib.jar", int64(len(body)), sha1Hex(body), dest, "")
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, second))

	assert.Equal(t, 1, srv.hitCount("/lib.jar"))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestStalePartDoesNotReplaceVerifiedFile(t *testing.T) {
	body := []byte("verified-content")
	srv := newFileServer(t, map[string][]byte{"/x.jar": body})
	dest := filepath.Join(t.TempDir(), "mods", "x.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0755))
	require.NoError(t, os.WriteFile(dest, body, 0644))
	require.NoError(t, os.WriteFile(dest+".part", []byte("garbage from an interrupted run"), 0644))

	c := newTestCoordinator(t, Options{})
	task, err := c.Enqueue(srv.URL+"/x.jar", int64(len(body)), sha1Hex(body), dest, "x.jar")
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, c))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, data)
	assert.NoFileExists(t, dest+".part")
	assert.Equal(t, TaskDone, task.State())
	assert.Equal(t, 0, srv.totalHits())
}

func TestRunWaitsForBatchAfterCancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write(bytes.Repeat([]byte("x"), 10))
		w.(http.Flusher).Flush()
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "slow.jar")
	c := newTestCoordinator(t, Options{})
	_, err := c.Enqueue(srv.URL+"/slow.jar", 100, "", dest, "slow.jar")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-started:
		case <-time.After(10 * time.Second):
		}
		cancel()
	}()

	require.Error(t, c.Run(ctx))
	select {
	case <-c.result.Done():
	default:
		t.Fatal("Run returned while the batch was still running")
	}
	assert.NoFileExists(t, dest+".part")
	assert.NoFileExists(t, dest)
}
