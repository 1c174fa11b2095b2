// reconciler.go: Completing or discarding interrupted search engine installs
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	// Extension given to the temporary copy of a known engine's descriptor
	RecognizedExtension string

	// Options forwarded to every AddEngine call
	Install InstallOptions

	// Metrics sink; nil disables metrics
	Metrics MetricsCollector
}

// DefaultReconcilerOptions returns the options used by the browser host.
func DefaultReconcilerOptions() ReconcilerOptions {
	return ReconcilerOptions{
		RecognizedExtension: DefaultRecognizedExtension,
		Install: InstallOptions{
			Type: EngineTypeMozSearch,
		},
	}
}

// ReconcileEventHandler receives one report per processed orphan.
type ReconcileEventHandler func(report ReconciliationReport)

// Reconciler repairs orphaned plugin descriptors one at a time.
//
// Orphans are queued with Enqueue and processed by a single worker goroutine
// in FIFO order. Each orphan is carried through its install completion before
// the next one starts, so two orphans never race against the same registry
// entry. Reconcile runs one orphan synchronously and is what the worker calls.
//
// For every orphan the reconciler:
//  1. looks for a registry engine backed by the same file
//  2. known engine: installs a copy with a recognized extension, moves the
//     active pointer to the new engine if needed, removes the old entry
//  3. unknown engine: installs the orphan and drops the result again when a
//     behaviourally identical engine already exists
//  4. removes the orphan once the install succeeded
//
// The engine removed in step 2 is the one backed by the orphan's file, not
// whichever engine happens to be active; the active pointer only follows it
// when that engine was the active one. A registry failure after the install
// rolls the new engine back so the old entry stays the only one.
//
// The temporary copy is removed on every exit path, and a copy left over by
// an earlier abandoned attempt is removed before copying. A failed install
// leaves the orphan in place for the next activation.
type Reconciler struct {
	registry SearchEngineRegistry
	fs       FileSystem
	matcher  *EngineMatcher
	logger   Logger
	metrics  MetricsCollector
	options  ReconcilerOptions

	queue *reconcileQueue

	mu       sync.RWMutex
	handlers []ReconcileEventHandler

	started   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewReconciler creates a reconciler. Call Start to begin processing queued
// orphans.
func NewReconciler(registry SearchEngineRegistry, fs FileSystem, options ReconcilerOptions, logger Logger) *Reconciler {
	if options.RecognizedExtension == "" {
		options.RecognizedExtension = DefaultRecognizedExtension
	}
	internalLogger := NewLogger(logger)

	var metrics MetricsCollector = noOpMetrics{}
	if options.Metrics != nil {
		metrics = options.Metrics
	}

	return &Reconciler{
		registry: registry,
		fs:       fs,
		matcher:  NewEngineMatcher(registry, fs, internalLogger),
		logger:   internalLogger,
		metrics:  metrics,
		options:  options,
		queue:    newReconcileQueue(),
	}
}

// Matcher returns the engine matcher used by the reconciler.
func (r *Reconciler) Matcher() *EngineMatcher {
	return r.matcher
}

// AddEventHandler registers a handler for reconciliation reports. Handlers
// run on their own goroutine.
func (r *Reconciler) AddEventHandler(handler ReconcileEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Start launches the worker. Calling Start more than once has no effect.
func (r *Reconciler) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(workerCtx)
}

// Enqueue schedules file for reconciliation.
func (r *Reconciler) Enqueue(file PluginFile) error {
	if !r.queue.push(file) {
		return NewReconcilerClosedError()
	}
	r.metrics.IncrementCounter(MetricOrphansFound, nil, 1)
	return nil
}

// Wait blocks until every orphan enqueued so far has been processed or ctx
// is done.
func (r *Reconciler) Wait(ctx context.Context) error {
	select {
	case <-r.queue.idleChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued or in-flight orphans.
func (r *Reconciler) Pending() int {
	return r.queue.outstandingCount()
}

// Close stops the worker. An install still waiting for its completion is
// abandoned after its cleanup ran; queued orphans are dropped and will be
// found again by the next scan.
func (r *Reconciler) Close() error {
	r.closeOnce.Do(func() {
		// the queue closes first so the worker cannot pick up another orphan
		// once the in-flight one is abandoned
		if dropped := r.queue.close(); dropped > 0 {
			r.logger.Warn("Dropped queued search plugin reconciliations", "count", dropped)
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
	return nil
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()
	defer withStackRecover(r.logger)()

	for {
		file, ok := r.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-r.queue.signal:
				continue
			}
		}

		r.Reconcile(ctx, file)
		r.queue.done()
	}
}

// Reconcile repairs a single orphan and returns what happened. Faults are
// reported in the returned report and never abort the caller.
func (r *Reconciler) Reconcile(ctx context.Context, file PluginFile) (report ReconciliationReport) {
	report = ReconciliationReport{
		ID:        uuid.NewString(),
		File:      file,
		StartedAt: timecache.CachedTime(),
	}
	logger := r.logger.With("reconciliation_id", report.ID, "path", file.Path)

	defer func() {
		report.FinishedAt = timecache.CachedTime()
		r.record(logger, report)
	}()
	defer recoverInto(logger, "reconcile", &report.Err)()

	if err := ctx.Err(); err != nil {
		report.Err = NewInstallAbandonedError(file.Path, err)
		return report
	}

	logger.Info("Reconciling orphaned search plugin")

	if existing := r.matcher.ByFileIdentity(file.Path); existing != nil {
		report.KnownEngine = existing.Name()
		r.recreateKnownEngine(ctx, logger, file, existing, &report)
	} else {
		r.installNewEngine(ctx, logger, file, &report)
	}

	return report
}

// recreateKnownEngine reinstalls an engine whose descriptor lost its
// extension, keeping the user's active engine choice.
func (r *Reconciler) recreateKnownEngine(ctx context.Context, logger Logger, file PluginFile, existing Engine, report *ReconciliationReport) {
	copyName := file.Name + "." + r.options.RecognizedExtension
	dir := filepath.Dir(file.Path)

	// a copy left by an abandoned attempt would block the exclusive create
	r.removeTemporaryCopy(logger, filepath.Join(dir, copyName))

	copyPath, err := r.fs.Copy(file.Path, dir, copyName)
	if err != nil {
		report.Err = err
		return
	}
	defer r.removeTemporaryCopy(logger, copyPath)

	newEngine, err := r.install(ctx, fileURI(copyPath))
	if err != nil {
		report.Err = err
		logger.Warn("Reinstall of known search engine failed, orphan kept",
			"engine", existing.Name(),
			"error", err)
		return
	}
	report.Installed = newEngine.Name()

	// the active pointer moves before the old entry goes away
	if SameEngine(r.registry.ActiveEngine(), existing) {
		logger.Info("Setting current engine to recreated engine", "engine", newEngine.Name())
		if err := r.registry.SetActiveEngine(newEngine); err != nil {
			report.Err = NewRegistryMutationError("set_active", newEngine.Name(), err)
			r.rollbackInstall(logger, newEngine)
			return
		}
		report.ActiveChanged = true
	}

	if err := r.registry.RemoveEngine(existing); err != nil {
		report.Err = NewRegistryMutationError("remove", existing.Name(), err)
		if report.ActiveChanged {
			if err := r.registry.SetActiveEngine(existing); err != nil {
				logger.Error("Failed to restore current engine",
					"engine", existing.Name(),
					"error", err)
			} else {
				report.ActiveChanged = false
			}
		}
		r.rollbackInstall(logger, newEngine)
		return
	}
	report.Removed = existing.Name()
	report.Outcome = OutcomeRecreatedKnownEngine

	if err := r.removeOrphan(file); err != nil {
		report.Err = err
		return
	}
	report.OrphanRemoved = true
	logger.Info("Orphaned search engine re-created and removed", "engine", newEngine.Name())
}

// installNewEngine installs an orphan no registry entry knows about and
// discards the result if it duplicates an existing engine.
func (r *Reconciler) installNewEngine(ctx context.Context, logger Logger, file PluginFile, report *ReconciliationReport) {
	newEngine, err := r.install(ctx, fileURI(file.Path))
	if err != nil {
		report.Err = err
		logger.Warn("Install of orphaned search plugin failed, orphan kept", "error", err)
		return
	}
	report.Installed = newEngine.Name()

	duplicate, err := r.matcher.FindDuplicate(newEngine)
	if err != nil {
		report.Err = err
		return
	}

	if duplicate != nil {
		if err := r.registry.RemoveEngine(newEngine); err != nil {
			report.Err = NewRegistryMutationError("remove", newEngine.Name(), err)
			return
		}
		report.Removed = newEngine.Name()
		report.Outcome = OutcomeDeduplicatedNewEngine
		logger.Info("Removed newly created duplicate engine",
			"engine", newEngine.Name(),
			"duplicate_of", duplicate.Name())
	} else {
		report.Outcome = OutcomeAcceptedNewEngine
	}

	if err := r.removeOrphan(file); err != nil {
		report.Err = err
		return
	}
	report.OrphanRemoved = true
	logger.Info("Orphaned search plugin file removed")
}

// install calls AddEngine and waits for its single completion.
func (r *Reconciler) install(ctx context.Context, spec string) (Engine, error) {
	completion := newInstallCompletion()
	r.registry.AddEngine(spec, r.options.Install, completion)

	select {
	case result := <-completion.results:
		return result.unpack(spec)
	case <-ctx.Done():
		if completion.abandon() {
			return nil, NewInstallAbandonedError(spec, ctx.Err())
		}
		// the completion won the race
		result := <-completion.results
		return result.unpack(spec)
	}
}

func (r *Reconciler) rollbackInstall(logger Logger, engine Engine) {
	if err := r.registry.RemoveEngine(engine); err != nil {
		logger.Error("Failed to roll back recreated engine",
			"engine", engine.Name(),
			"error", err)
	}
}

func (r *Reconciler) removeTemporaryCopy(logger Logger, path string) {
	exists, err := r.fs.Exists(path)
	if err != nil {
		logger.Error("Failed to inspect temporary search plugin copy", "copy", path, "error", err)
		return
	}
	if !exists {
		return
	}
	if err := r.fs.Remove(path); err != nil {
		logger.Error("Failed to remove temporary search plugin copy", "copy", path, "error", err)
	}
}

// removeOrphan tolerates the registry having deleted the file already.
func (r *Reconciler) removeOrphan(file PluginFile) error {
	exists, err := r.fs.Exists(file.Path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return r.fs.Remove(file.Path)
}

func (r *Reconciler) record(logger Logger, report ReconciliationReport) {
	r.metrics.IncrementCounter(MetricReconciliations,
		map[string]string{"outcome": report.Outcome.String()}, 1)
	r.metrics.RecordHistogram(MetricReconcileDurationMs, nil,
		float64(report.Duration().Milliseconds()))

	if report.Err != nil {
		code := string(ErrorCodeOf(report.Err))
		if code == "" {
			code = "unknown"
		}
		r.metrics.IncrementCounter(MetricReconcileErrors, map[string]string{"code": code}, 1)
		logger.Error("Search plugin reconciliation failed",
			"outcome", report.Outcome.String(),
			"error", report.Err)
	} else {
		logger.Info("Search plugin reconciliation completed",
			"outcome", report.Outcome.String(),
			"installed", report.Installed,
			"removed", report.Removed,
			"active_changed", report.ActiveChanged)
	}

	r.mu.RLock()
	handlers := make([]ReconcileEventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		SafeGo(r.logger, func() { h(report) })
	}
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// installCompletion adapts the registry callback to a channel. Only the first
// of OnSuccess, OnError or abandon takes effect.
type installCompletion struct {
	once    sync.Once
	results chan installResult
}

type installResult struct {
	engine Engine
	err    error
}

func newInstallCompletion() *installCompletion {
	return &installCompletion{results: make(chan installResult, 1)}
}

// OnSuccess implements InstallCallback.
func (c *installCompletion) OnSuccess(engine Engine) {
	c.once.Do(func() { c.results <- installResult{engine: engine} })
}

// OnError implements InstallCallback.
func (c *installCompletion) OnError(err error) {
	c.once.Do(func() { c.results <- installResult{err: err} })
}

// abandon reports whether it won against a completion.
func (c *installCompletion) abandon() bool {
	won := false
	c.once.Do(func() { won = true })
	return won
}

func (res installResult) unpack(spec string) (Engine, error) {
	if res.err != nil {
		return nil, NewInstallFailedError(spec, res.err)
	}
	if res.engine == nil {
		return nil, NewInstallFailedError(spec, nil)
	}
	return res.engine, nil
}

// reconcileQueue is an unbounded FIFO of orphans with idle tracking.
type reconcileQueue struct {
	mu          sync.Mutex
	items       []PluginFile
	outstanding int
	idle        chan struct{} // closed while outstanding == 0
	closed      bool
	signal      chan struct{} // buffered, size 1
}

func newReconcileQueue() *reconcileQueue {
	idle := make(chan struct{})
	close(idle)
	return &reconcileQueue{
		items:  make([]PluginFile, 0, 16),
		idle:   idle,
		signal: make(chan struct{}, 1),
	}
}

func (q *reconcileQueue) push(file PluginFile) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, file)
	q.outstanding++
	if q.outstanding == 1 {
		q.idle = make(chan struct{})
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *reconcileQueue) pop() (PluginFile, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return PluginFile{}, false
	}
	file := q.items[0]
	q.items = q.items[1:]
	return file, true
}

func (q *reconcileQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.release(1)
}

// release must be called with mu held.
func (q *reconcileQueue) release(n int) {
	if n <= 0 || q.outstanding == 0 {
		return
	}
	q.outstanding -= n
	if q.outstanding <= 0 {
		q.outstanding = 0
		close(q.idle)
	}
}

func (q *reconcileQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	dropped := len(q.items)
	q.items = nil
	q.release(dropped)
	return dropped
}

func (q *reconcileQueue) idleChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

func (q *reconcileQueue) outstandingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}
