package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/small-frappuccino/eventcore/pkg/log"
)

// TaskHandler is a function that processes a task payload.
type TaskHandler func(ctx context.Context, payload any) error

// TaskOptions configures how a task should be dispatched and executed.
type TaskOptions struct {
	// GroupKey ensures serialized execution for tasks that share the same group.
	// Use this to guarantee order per entity or per event name. If empty, tasks use a global group.
	GroupKey string

	// MaxAttempts controls how many times the task may be retried on handler error.
	// If 0, router uses RouterConfig.DefaultMaxAttempts.
	MaxAttempts int

	// InitialBackoff sets the initial backoff used for retries. If 0, router uses RouterConfig.InitialBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff. If 0, router uses RouterConfig.MaxBackoff.
	MaxBackoff time.Duration

	// Ordered retries a failed task in place, holding back the rest of its
	// group, instead of re-enqueueing it behind tasks dispatched later.
	Ordered bool
}

// Task encapsulates the work to be executed by the router.
type Task struct {
	Type    string
	Payload any
	Options TaskOptions
}

// RouterConfig configures the TaskRouter behavior.
type RouterConfig struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration

	// GroupBuffer controls the buffered channel size for each group worker.
	GroupBuffer int

	// GroupIdleTTL after which an idle group worker will be stopped.
	GroupIdleTTL time.Duration

	// CleanupInterval controls how often idle groups are reaped and periodic jobs run.
	CleanupInterval time.Duration
}

// Defaults returns a RouterConfig with sensible defaults.
func Defaults() RouterConfig {
	return RouterConfig{
		DefaultMaxAttempts: 3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		GroupBuffer:        256,
		GroupIdleTTL:       2 * time.Minute,
		CleanupInterval:    30 * time.Second,
	}
}

// Errors returned by the router.
var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrQueueFull       = errors.New("task group queue is full")
)

const globalGroup = "_global"

// TaskRouter is an in-memory dispatcher with per-group serialization and
// retry with exponential backoff. Dispatch never blocks: a full group queue
// is reported as ErrQueueFull.
type TaskRouter struct {
	mu        sync.RWMutex
	handlers  map[string]TaskHandler
	groups    map[string]*groupWorker
	closed    bool
	cfg       RouterConfig
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	randMutex sync.Mutex

	cronMu   sync.Mutex
	cronJobs []*cronJob
}

type groupWorker struct {
	key        string
	ch         chan *enqueuedTask
	lastActive time.Time
	pending    int // running tasks plus retries waiting on a backoff timer
	stopping   bool
}

type enqueuedTask struct {
	task    Task
	attempt int
}

type cronJob struct {
	interval time.Duration
	task     Task
	lastRun  time.Time
	stopped  bool
}

// NewRouter creates a new TaskRouter with the provided configuration.
func NewRouter(cfg RouterConfig) *TaskRouter {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	tr := &TaskRouter{
		handlers: make(map[string]TaskHandler),
		groups:   make(map[string]*groupWorker),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
	tr.wg.Add(1)
	go tr.backgroundLoop()
	return tr
}

// RegisterHandler registers a handler for the given task type.
func (tr *TaskRouter) RegisterHandler(taskType string, handler TaskHandler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[taskType] = handler
}

// Dispatch enqueues a task on its group without blocking.
func (tr *TaskRouter) Dispatch(t Task) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return ErrRouterClosed
	}
	if h, ok := tr.handlers[t.Type]; !ok || h == nil {
		return ErrUnknownTaskType
	}

	groupKey := t.Options.GroupKey
	if groupKey == "" {
		groupKey = globalGroup
	}
	gw := tr.ensureGroupLocked(groupKey)
	gw.lastActive = time.Now()

	select {
	case gw.ch <- &enqueuedTask{task: t, attempt: 1}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the router and waits for workers to drain their queues.
// Retries still waiting on a backoff timer are dropped.
func (tr *TaskRouter) Close() {
	tr.stopOnce.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		for _, gw := range tr.groups {
			if !gw.stopping {
				gw.stopping = true
				close(gw.ch)
			}
		}
		tr.mu.Unlock()
		close(tr.stopCh)
		tr.wg.Wait()
	})
}

// Stats provides a snapshot with counts useful for debugging/monitoring.
type Stats struct {
	GroupsCount     int
	QueuedCount     int
	RouterClosed    bool
	RegisteredTypes int
}

func (tr *TaskRouter) Stats() Stats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	queued := 0
	for _, gw := range tr.groups {
		queued += len(gw.ch)
	}
	return Stats{
		GroupsCount:     len(tr.groups),
		QueuedCount:     queued,
		RouterClosed:    tr.closed,
		RegisteredTypes: len(tr.handlers),
	}
}

// ScheduleEvery dispatches t every interval, checked on the cleanup tick.
// Returns a cancel function.
func (tr *TaskRouter) ScheduleEvery(interval time.Duration, t Task) func() {
	job := &cronJob{interval: interval, task: t}
	tr.cronMu.Lock()
	tr.cronJobs = append(tr.cronJobs, job)
	tr.cronMu.Unlock()

	return func() {
		tr.cronMu.Lock()
		job.stopped = true
		tr.cronMu.Unlock()
	}
}

// --- Internals ---

func (tr *TaskRouter) effectiveOptions(opt TaskOptions) TaskOptions {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if opt.InitialBackoff <= 0 {
		opt.InitialBackoff = tr.cfg.InitialBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = tr.cfg.MaxBackoff
	}
	return opt
}

func (tr *TaskRouter) ensureGroupLocked(key string) *groupWorker {
	if gw, ok := tr.groups[key]; ok {
		return gw
	}
	gw := &groupWorker{
		key:        key,
		ch:         make(chan *enqueuedTask, tr.cfg.GroupBuffer),
		lastActive: time.Now(),
	}
	tr.groups[key] = gw
	tr.wg.Add(1)
	go tr.groupLoop(gw)
	return gw
}

func (tr *TaskRouter) groupLoop(gw *groupWorker) {
	defer tr.wg.Done()
	for enq := range gw.ch {
		tr.runOne(gw, enq)
	}
}

func (tr *TaskRouter) runOne(gw *groupWorker, enq *enqueuedTask) {
	tr.mu.Lock()
	handler := tr.handlers[enq.task.Type]
	eff := tr.effectiveOptions(enq.task.Options)
	gw.pending++
	tr.mu.Unlock()
	defer func() {
		tr.mu.Lock()
		gw.pending--
		gw.lastActive = time.Now()
		tr.mu.Unlock()
	}()

	if handler == nil {
		log.ApplicationLogger().Warn("Task dropped (handler not registered)", "type", enq.task.Type, "group", gw.key)
		return
	}

	if eff.Ordered {
		tr.runInPlace(gw, enq, handler, eff)
		return
	}

	err := handler(context.Background(), enq.task.Payload)
	if err == nil {
		return
	}
	if enq.attempt >= eff.MaxAttempts {
		tr.logGaveUp(gw, enq.task, enq.attempt, err)
		return
	}

	delay := tr.computeBackoff(eff.InitialBackoff, eff.MaxBackoff, enq.attempt)
	tr.logRetry(gw, enq.task, enq.attempt+1, eff.MaxAttempts, delay, err)
	tr.scheduleRetry(gw, &enqueuedTask{task: enq.task, attempt: enq.attempt + 1}, delay)
}

// runInPlace retries on the group worker itself, so nothing queued behind the
// task runs before it succeeds or gives up. A backoff interrupted by Close
// drops the task.
func (tr *TaskRouter) runInPlace(gw *groupWorker, enq *enqueuedTask, handler TaskHandler, eff TaskOptions) {
	for attempt := enq.attempt; ; attempt++ {
		err := handler(context.Background(), enq.task.Payload)
		if err == nil {
			return
		}
		if attempt >= eff.MaxAttempts {
			tr.logGaveUp(gw, enq.task, attempt, err)
			return
		}

		delay := tr.computeBackoff(eff.InitialBackoff, eff.MaxBackoff, attempt)
		tr.logRetry(gw, enq.task, attempt+1, eff.MaxAttempts, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-tr.stopCh:
			timer.Stop()
			log.ErrorLoggerRaw().Error("Task retry dropped (router closed)", "type", enq.task.Type, "group", gw.key)
			return
		}
	}
}

func (tr *TaskRouter) logGaveUp(gw *groupWorker, t Task, attempts int, err error) {
	log.ErrorLoggerRaw().Error("Task failed; max attempts reached",
		"type", t.Type,
		"group", gw.key,
		"attempts", attempts,
		"err", err,
	)
}

func (tr *TaskRouter) logRetry(gw *groupWorker, t Task, attempt, maxAttempts int, delay time.Duration, err error) {
	log.ApplicationLogger().Warn("Task failed, scheduling retry",
		"type", t.Type,
		"group", gw.key,
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"backoff", delay.String(),
		"err", err,
	)
}

// scheduleRetry re-enqueues et on gw after d. The group is pinned while the
// timer runs so the idle reaper does not close its channel underneath.
func (tr *TaskRouter) scheduleRetry(gw *groupWorker, et *enqueuedTask, d time.Duration) {
	tr.mu.Lock()
	gw.pending++
	tr.mu.Unlock()

	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-tr.stopCh:
		}

		tr.mu.Lock()
		defer tr.mu.Unlock()
		gw.pending--
		if gw.stopping {
			return
		}
		select {
		case gw.ch <- et:
		default:
			log.ErrorLoggerRaw().Error("Task retry dropped (queue full)", "type", et.task.Type, "group", gw.key)
		}
	}()
}

func (tr *TaskRouter) computeBackoff(initial, max time.Duration, attempt int) time.Duration {
	// Exponential backoff with jitter: initial * 2^(attempt-1)
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			backoff = max
			break
		}
	}
	return clampDuration(backoff+tr.jitter(backoff, 0.1), initial, max)
}

func (tr *TaskRouter) jitter(d time.Duration, ratio float64) time.Duration {
	tr.randMutex.Lock()
	defer tr.randMutex.Unlock()
	delta := int64(float64(d) * ratio)
	if delta <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(2*delta+1) - delta)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(min(v, hi), lo)
}

func (tr *TaskRouter) backgroundLoop() {
	defer tr.wg.Done()
	t := time.NewTicker(tr.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-tr.stopCh:
			return
		case <-t.C:
			tr.cleanupOnce()
			tr.runCronOnce()
		}
	}
}

func (tr *TaskRouter) cleanupOnce() {
	now := time.Now()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for key, gw := range tr.groups {
		if gw.stopping || gw.pending > 0 {
			continue
		}
		if now.Sub(gw.lastActive) >= tr.cfg.GroupIdleTTL && len(gw.ch) == 0 {
			gw.stopping = true
			close(gw.ch)
			delete(tr.groups, key)
		}
	}
}

func (tr *TaskRouter) runCronOnce() {
	now := time.Now()
	tr.cronMu.Lock()
	defer tr.cronMu.Unlock()
	live := tr.cronJobs[:0]
	for _, job := range tr.cronJobs {
		if job.stopped {
			continue
		}
		live = append(live, job)
		if job.lastRun.IsZero() || now.Sub(job.lastRun) >= job.interval {
			if err := tr.Dispatch(job.task); err != nil {
				log.ApplicationLogger().Warn("Scheduled task not dispatched", "type", job.task.Type, "err", err)
			}
			job.lastRun = now
		}
	}
	tr.cronJobs = live
}
