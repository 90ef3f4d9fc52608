package download

import (
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/go-modpackinstaller/pkg/cache"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Options configures a Coordinator
type Options struct {
	Workers          int
	MaxRetries       int
	RetryDelay       time.Duration
	KeepPartialFiles bool
	StagingRoot      string       // parent of per-batch staging directories; os.TempDir() when empty
	Cache            *cache.Cache // optional
	Observer         Observer
}

// OptionsFromConfig maps configuration onto coordinator options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:          cfg.DownloadMaxConcurrency,
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelayDuration(),
		KeepPartialFiles: cfg.KeepPartialFiles,
	}
}

// HookFunc is deferred work run after every task of the batch succeeded.
type HookFunc func(ctx context.Context) error

// Coordinator owns one batch of transfers. It is single-use: Start runs the
// batch once and every later Start returns the same Result.
type Coordinator struct {
	id      string
	fetcher Fetcher
	logger  *utils.Logger
	opts    Options
	cleanup *CleanupTracker
	agg     *aggregator

	mu         sync.Mutex
	tasks      []*Task
	byDest     map[string]*Task
	pending    []*Task
	hooks      []HookFunc
	successFns []func()
	errorFns   []func(error)
	started    bool
	finalizing bool
	aborted    bool
	firstErr   error
	result     *Result
}

// NewCoordinator creates an empty batch
func NewCoordinator(fetcher Fetcher, logger *utils.Logger, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.StagingRoot == "" {
		opts.StagingRoot = filepath.Join(os.TempDir(), "modpackinstaller")
	}
	id := uuid.NewString()
	return &Coordinator{
		id:      id,
		fetcher: fetcher,
		logger:  logger.With("batch", id[:8]),
		opts:    opts,
		cleanup: NewCleanupTracker(logger),
		agg:     newAggregator(opts.Observer),
		byDest:  make(map[string]*Task),
		result:  newResult(),
	}
}

// ID identifies the batch in logs and staging paths
func (c *Coordinator) ID() string { return c.id }

// Enqueue registers a transfer without touching the network. Enqueueing the
// same URL for the same destination returns the existing task. After Start,
// only deferred hooks may enqueue; their tasks form the batch's next stage.
func (c *Coordinator) Enqueue(url string, size int64, checksum, dest, label string) (*Task, error) {
	if url == "" {
		return nil, fmt.Errorf("enqueue %s: url is required", dest)
	}
	if dest == "" {
		return nil, fmt.Errorf("enqueue %s: destination is required", url)
	}
	if checksum != "" {
		if _, err := utils.NewHasher(checksum); err != nil {
			return nil, errdefs.Wrap(errdefs.KindParse, url, err)
		}
	}
	dest = filepath.Clean(dest)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && !c.finalizing {
		return nil, fmt.Errorf("enqueue %s: batch already started", url)
	}
	if existing, ok := c.byDest[dest]; ok {
		if existing.URL == url {
			return existing, nil
		}
		return nil, fmt.Errorf("enqueue %s: destination %s already claimed by %s", url, dest, existing.URL)
	}

	task := newTask(c, url, size, checksum, dest, label)
	c.tasks = append(c.tasks, task)
	c.byDest[dest] = task
	c.pending = append(c.pending, task)
	return task, nil
}

// Defer registers work for finalizeDownloads. Hooks run in registration order
// once all tasks enqueued before them have succeeded.
func (c *Coordinator) Defer(hook HookFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// StagingPath returns a path inside this batch's staging directory. The
// directory is removed when the batch finishes.
func (c *Coordinator) StagingPath(name string) string {
	return filepath.Join(c.stagingDir(), name)
}

func (c *Coordinator) stagingDir() string {
	return filepath.Join(c.opts.StagingRoot, "batch-"+c.id)
}

// OnSuccess registers a callback fired once when the whole batch succeeded
func (c *Coordinator) OnSuccess(fn func()) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successFns = append(c.successFns, fn)
	return c
}

// OnError registers a callback fired once with the batch's first failure
func (c *Coordinator) OnError(fn func(error)) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorFns = append(c.errorFns, fn)
	return c
}

// Tasks returns every task registered so far
func (c *Coordinator) Tasks() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Task(nil), c.tasks...)
}

// Progress returns the current aggregate snapshot
func (c *Coordinator) Progress() Progress {
	return c.agg.snapshot()
}

// Start runs the batch in the background and returns its one-shot Result.
func (c *Coordinator) Start(ctx context.Context) *Result {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return c.result
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	return c.result
}

// Run starts the batch and waits for it. When ctx ends first, Run still
// waits for the batch to stop its workers and clean up partial files.
func (c *Coordinator) Run(ctx context.Context) error {
	result := c.Start(ctx)
	if err := result.Wait(ctx); ctx.Err() == nil {
		return err
	}
	<-result.Done()
	return result.Err()
}

func (c *Coordinator) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go c.agg.loop()

	c.mu.Lock()
	tasks := c.takePending()
	c.mu.Unlock()

	c.logger.Info("📥 Starting batch of %d transfers (%d workers)", len(tasks), c.opts.Workers)
	err := c.runTasks(ctx, tasks)
	if err == nil {
		err = c.finalizeDownloads(ctx)
	}
	c.mu.Lock()
	c.finalizing = false
	c.mu.Unlock()
	c.agg.close()

	if err != nil {
		c.discardPartials()
	}
	if !(err != nil && c.opts.KeepPartialFiles) {
		if rmErr := os.RemoveAll(c.stagingDir()); rmErr != nil {
			c.logger.Warn("Failed to remove staging directory: %v", rmErr)
		}
	}
	c.finish(err)
}

// takePending moves the pending queue out. Caller holds c.mu.
func (c *Coordinator) takePending() []*Task {
	tasks := c.pending
	c.pending = nil
	return tasks
}

// runTasks runs one stage under the bounded pool. The first failure cancels
// the stage; tasks that have not begun are failed without running.
func (c *Coordinator) runTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	var total int64
	for _, t := range tasks {
		total += t.units()
	}
	c.agg.addTotal(total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if !c.begin(gctx, t) {
				return nil
			}
			if err := c.process(gctx, t); err != nil {
				c.fail(t, err)
				return err
			}
			return nil
		})
	}
	g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstErr
}

// begin moves t to running unless the batch already aborted
func (c *Coordinator) begin(ctx context.Context, t *Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || ctx.Err() != nil {
		t.state = TaskFailed
		t.err = errdefs.New(errdefs.KindCanceled, t.URL, "batch aborted before transfer started")
		if !c.aborted {
			c.aborted = true
			c.firstErr = errdefs.Wrap(errdefs.KindCanceled, t.URL, ctx.Err())
		}
		return false
	}
	t.state = TaskRunning
	return true
}

// fail records a task failure; the first one aborts the batch
func (c *Coordinator) fail(t *Task, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.state = TaskFailed
	t.err = err
	if !c.aborted {
		c.aborted = true
		c.firstErr = err
		c.logger.Error("❌ %s failed, aborting batch: %v", t.Label, err)
	}
}

func (c *Coordinator) setState(t *Task, state TaskState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.state = state
}

func (c *Coordinator) addReceived(t *Task, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.received += n
}

// process takes one task from running to done
func (c *Coordinator) process(ctx context.Context, t *Task) error {
	c.agg.setLabel(t.Label)

	if t.Checksum != "" || t.Size > 0 {
		if utils.FileMatches(t.Destination, t.Size, t.Checksum) {
			c.logger.Debug("⏭️  %s already present and verified", t.Label)
			// a leftover .part holds unverified bytes and must not replace the file
			if err := os.Remove(t.partPath()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale %s: %w", t.partPath(), err)
			}
			c.setState(t, TaskVerifying)
			c.addReceived(t, t.Size)
			c.agg.addCompleted(t.units())
			return c.complete(ctx, t, false)
		}
	}

	if err := utils.EnsureDirForFile(t.Destination); err != nil {
		return err
	}
	part := t.partPath()
	c.cleanup.TrackFile(part)

	if c.fromCache(ctx, t, part) {
		return c.complete(ctx, t, false)
	}

	_, err := utils.Retry(ctx, func(ctx context.Context) error {
		return c.transfer(ctx, t, part)
	}, c.opts.MaxRetries, c.opts.RetryDelay, "download "+t.URL, c.logger)
	if err != nil {
		return err
	}
	return c.complete(ctx, t, true)
}

// transfer performs one attempt, verifying the received bytes
func (c *Coordinator) transfer(ctx context.Context, t *Task, part string) error {
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}

	var hasher hash.Hash
	var w io.Writer = f
	if t.Checksum != "" {
		hasher, _ = utils.NewHasher(t.Checksum)
		w = io.MultiWriter(f, hasher)
	}

	var attemptBytes int64
	n, err := c.fetcher.Fetch(ctx, t.URL, w, func(n int64) {
		attemptBytes += n
		c.addReceived(t, n)
		if t.Size > 0 {
			c.agg.addCompleted(n)
		}
	})
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write %s: %w", part, closeErr)
	}
	if err != nil {
		c.rollback(t, attemptBytes)
		return err
	}

	c.setState(t, TaskVerifying)
	if err := c.verify(t, n, hasher); err != nil {
		c.rollback(t, attemptBytes)
		return err
	}
	if t.Size <= 0 {
		c.agg.addCompleted(1)
	}
	return nil
}

// rollback withdraws a failed attempt's bytes from the progress counters
func (c *Coordinator) rollback(t *Task, attemptBytes int64) {
	c.mu.Lock()
	t.received -= attemptBytes
	if t.state == TaskVerifying {
		t.state = TaskRunning
	}
	c.mu.Unlock()
	if t.Size > 0 {
		c.agg.addCompleted(-attemptBytes)
	}
}

func (c *Coordinator) verify(t *Task, n int64, hasher hash.Hash) error {
	if t.Size > 0 && n != t.Size {
		return errdefs.New(errdefs.KindIntegrity, t.URL, "size mismatch: expected %d, got %d", t.Size, n)
	}
	if hasher == nil {
		return nil
	}
	return compareDigest(t.URL, t.Checksum, fmt.Sprintf("%x", hasher.Sum(nil)))
}

// fromCache satisfies t from the artifact cache. Any cache problem is a miss.
func (c *Coordinator) fromCache(ctx context.Context, t *Task, part string) bool {
	if c.opts.Cache == nil || t.Checksum == "" {
		return false
	}
	f, err := os.Create(part)
	if err != nil {
		return false
	}
	hasher, _ := utils.NewHasher(t.Checksum)
	n, found, err := c.opts.Cache.Get(ctx, t.Checksum, io.MultiWriter(f, hasher))
	f.Close()
	if err != nil || !found {
		os.Remove(part)
		return false
	}
	if err := c.verify(t, n, hasher); err != nil {
		c.logger.Warn("Discarding cached copy of %s: %v", t.Label, err)
		os.Remove(part)
		return false
	}
	c.addReceived(t, n)
	c.agg.addCompleted(t.units())
	return true
}

// complete moves verified bytes into place and runs per-task hooks
func (c *Coordinator) complete(ctx context.Context, t *Task, fromNetwork bool) error {
	part := t.partPath()
	if utils.FileExists(part) {
		if err := os.Rename(part, t.Destination); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", t.Destination, err)
		}
	}
	c.cleanup.MarkSuccess(part)

	if fromNetwork && c.opts.Cache != nil && t.Checksum != "" {
		if err := c.opts.Cache.Put(ctx, t.Checksum, t.Destination); err != nil {
			c.logger.Warn("Failed to cache %s: %v", t.Label, err)
		}
	}

	c.mu.Lock()
	hooks := append([]func(*Task) error(nil), t.onSuccess...)
	c.mu.Unlock()
	for _, hook := range hooks {
		if err := hook(t); err != nil {
			return fmt.Errorf("success hook for %s: %w", t.Label, err)
		}
	}

	c.setState(t, TaskDone)
	c.logger.Verbose("✅ %s", t.Label)
	return nil
}

// finalizeDownloads runs once after every task succeeded. Deferred hooks run
// in order; tasks they enqueue run as the next stage, followed by any hooks
// registered meanwhile, until nothing is left.
func (c *Coordinator) finalizeDownloads(ctx context.Context) error {
	c.mu.Lock()
	c.finalizing = true
	c.mu.Unlock()

	for stage := 1; ; stage++ {
		c.mu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.mu.Unlock()

		for _, hook := range hooks {
			if err := ctx.Err(); err != nil {
				return errdefs.Wrap(errdefs.KindCanceled, "finalize", err)
			}
			if err := hook(ctx); err != nil {
				c.mu.Lock()
				c.aborted = true
				c.firstErr = err
				c.mu.Unlock()
				return err
			}
		}

		c.mu.Lock()
		tasks := c.takePending()
		more := len(c.hooks) > 0
		c.mu.Unlock()

		if len(tasks) == 0 && !more {
			return nil
		}
		if len(tasks) > 0 {
			c.logger.Info("📥 Stage %d: %d follow-up transfers", stage, len(tasks))
			if err := c.runTasks(ctx, tasks); err != nil {
				return err
			}
		}
	}
}

// discardPartials removes bytes of unfinished transfers unless configured to keep them
func (c *Coordinator) discardPartials() {
	if c.opts.KeepPartialFiles {
		c.logger.Info("Keeping partial files: %v", c.cleanup.Pending())
		return
	}
	if err := c.cleanup.Cleanup(); err != nil {
		c.logger.Warn("Cleanup incomplete: %v", err)
	}
}

// finish completes the Result and fires the matching callbacks exactly once
func (c *Coordinator) finish(err error) {
	c.mu.Lock()
	successFns := c.successFns
	errorFns := c.errorFns
	c.mu.Unlock()

	c.result.complete(err, func() {
		if err != nil {
			c.logger.Error("Batch failed: %v", err)
			for _, fn := range errorFns {
				fn(err)
			}
			return
		}

		p := c.agg.snapshot()
		c.logger.Info("✅ Batch complete (%d/%d units)", p.CompletedUnits, p.TotalUnits)
		for _, fn := range successFns {
			fn()
		}
	})
}
