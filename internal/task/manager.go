// Package task owns the asynchronous task lifecycle: an in-process registry,
// a bounded pending queue drained by a fixed worker pool, per-task timeouts
// and terminal-state callbacks. Tasks move pending -> running -> one of
// completed/failed/canceled and never leave a terminal state.
package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/reconciler"
	"reconciliation-task-service/internal/reporter"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"

	"github.com/google/uuid"
)

// Config controls the manager's concurrency and persistence behavior.
type Config struct {
	// MaxConcurrentTasks is the worker pool size.
	MaxConcurrentTasks int
	// TaskTimeout bounds a single pipeline run.
	TaskTimeout time.Duration
	// ResultsDir is where result artifacts are written.
	ResultsDir string
	// QueueSize bounds the pending queue. Zero means 4x the pool size.
	QueueSize int
	// CallbackRetryDelays is the wait before each delivery attempt.
	CallbackRetryDelays []time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks:  5,
		TaskTimeout:         3600 * time.Second,
		ResultsDir:          "./results",
		CallbackRetryDelays: []time.Duration{0, 5 * time.Second, 30 * time.Second},
	}
}

// Task is one registry entry. All fields are guarded by the manager's mutex
// except ID, CreatedAt, Schema, Files and CallbackURL, which are set once at
// creation and never change.
type Task struct {
	ID          string
	Status      models.TaskStatus
	Progress    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Schema      *schema.Schema
	Files       []string
	CallbackURL string
	Error       string
	Result      *models.Result

	cancel context.CancelFunc
}

// Snapshot is the externally visible view of a task, as returned by Status
// and List.
type Snapshot struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Progress  string    `json:"progress,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Manager runs reconciliation tasks asynchronously.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string

	queue    chan *Task
	cfg      Config
	reporter *reporter.Reporter
	callback *callbackClient
	log      logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager and starts its worker pool.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxConcurrentTasks * 4
	}
	if cfg.CallbackRetryDelays == nil {
		cfg.CallbackRetryDelays = DefaultConfig().CallbackRetryDelays
	}

	m := &Manager{
		tasks:    make(map[string]*Task),
		queue:    make(chan *Task, cfg.QueueSize),
		cfg:      cfg,
		reporter: reporter.New(cfg.ResultsDir),
		callback: newCallbackClient(cfg.CallbackRetryDelays, log),
		log:      log.WithComponent("task"),
		stop:     make(chan struct{}),
	}
	for i := 0; i < cfg.MaxConcurrentTasks; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Create registers a new pending task and enqueues it. The schema must
// already be validated. A full queue rejects the task with task_queue_full.
func (m *Manager) Create(s *schema.Schema, files []string, callbackURL string) (string, error) {
	now := time.Now()
	t := &Task{
		ID:          NewTaskID(),
		Status:      models.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Schema:      s,
		Files:       files,
		CallbackURL: callbackURL,
	}

	m.mu.Lock()
	select {
	case m.queue <- t:
		m.tasks[t.ID] = t
		m.order = append(m.order, t.ID)
	default:
		m.mu.Unlock()
		return "", errors.TaskError(errors.CodeTaskQueueFull, t.ID, nil)
	}
	m.mu.Unlock()

	m.log.WithFields(logger.Fields{"task_id": t.ID, "files": len(files)}).Info("Task queued")
	return t.ID, nil
}

// Status returns the task's current snapshot.
func (m *Manager) Status(taskID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Snapshot{}, errors.TaskError(errors.CodeTaskNotFound, taskID, nil)
	}
	return snapshotLocked(t), nil
}

// Result returns the artifact for a completed task. Unfinished tasks get
// task_incomplete; failed and canceled tasks get their terminal error.
func (m *Manager) Result(taskID string) (*models.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, errors.TaskError(errors.CodeTaskNotFound, taskID, nil)
	}
	if t.Result == nil || t.Status != models.TaskCompleted {
		return nil, errors.TaskError(errors.CodeTaskIncomplete, taskID, nil)
	}
	return t.Result, nil
}

// List returns snapshots of every known task in creation order.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, snapshotLocked(m.tasks[id]))
	}
	return out
}

// Cancel requests cancellation. Pending tasks become canceled immediately;
// running tasks get their context canceled and the worker finalizes them at
// the next phase boundary. Canceling a terminal task is a no-op.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return errors.TaskError(errors.CodeTaskNotFound, taskID, nil)
	}

	switch t.Status {
	case models.TaskPending:
		t.Status = models.TaskCanceled
		t.Error = "task canceled before it started"
		t.UpdatedAt = time.Now()
		m.mu.Unlock()
		m.persistTerminal(t, nil)
		return nil
	case models.TaskRunning:
		cancel := t.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		m.mu.Unlock()
		return nil
	}
}

// Shutdown stops the workers and waits for in-flight tasks, up to the
// context's deadline. Queued tasks that never started stay pending.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case t := <-m.queue:
			m.run(t)
		}
	}
}

// run executes one task's pipeline and finalizes its state.
func (m *Manager) run(t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TaskTimeout)
	defer cancel()

	m.mu.Lock()
	if t.Status != models.TaskPending {
		// Canceled while queued.
		m.mu.Unlock()
		return
	}
	t.Status = models.TaskRunning
	t.UpdatedAt = time.Now()
	t.cancel = cancel
	m.mu.Unlock()

	pipeline := reconciler.New(t.Schema, t.ID, m.log)
	pipeline.OnProgress(func(phase string, percent float64) {
		m.mu.Lock()
		t.Progress = phase
		t.UpdatedAt = time.Now()
		m.mu.Unlock()
	})

	result, err := pipeline.Run(ctx, t.Files)
	m.finalize(ctx, t, result, err)
}

// finalize records the terminal state, writes the artifact and fires the
// callback. Timeouts count as cancellations with a distinct error message.
func (m *Manager) finalize(ctx context.Context, t *Task, result *models.Result, err error) {
	status := models.TaskCompleted
	errMsg := ""
	switch {
	case err == nil:
	case ctx.Err() == context.DeadlineExceeded:
		status = models.TaskCanceled
		errMsg = errors.TaskError(errors.CodeTaskTimeout, t.ID, nil).Message
	case ctx.Err() == context.Canceled:
		status = models.TaskCanceled
		errMsg = "task canceled"
	default:
		status = models.TaskFailed
		errMsg = err.Error()
	}

	m.mu.Lock()
	t.Status = status
	t.Error = errMsg
	t.UpdatedAt = time.Now()
	t.cancel = nil
	if status == models.TaskCompleted {
		t.Result = result
		t.Progress = ""
	}
	m.mu.Unlock()

	if status == models.TaskCompleted {
		m.persistTerminal(t, result)
	} else {
		m.persistTerminal(t, nil)
	}
}

// persistTerminal writes the artifact and delivers the callback. Both run
// outside the registry lock; artifact write failures degrade to a log line,
// the task keeps its terminal state.
func (m *Manager) persistTerminal(t *Task, result *models.Result) {
	m.mu.Lock()
	status := t.Status
	errMsg := t.Error
	callbackURL := t.CallbackURL
	m.mu.Unlock()

	artifact := result
	if artifact == nil {
		artifact = models.NewResult(t.ID, status)
		artifact.Error = errMsg
	}
	if _, err := m.reporter.Write(artifact); err != nil {
		m.log.WithError(err).WithField("task_id", t.ID).Error("Failed to write result artifact")
	}

	m.log.WithFields(logger.Fields{"task_id": t.ID, "status": status}).Info("Task finished")

	if callbackURL == "" {
		return
	}
	envelope := models.CallbackEnvelope{TaskID: t.ID, Status: status, Error: errMsg}
	if status == models.TaskCompleted && result != nil {
		envelope.Summary = &result.Summary
	}
	m.callback.Deliver(callbackURL, envelope)
}

func snapshotLocked(t *Task) Snapshot {
	return Snapshot{
		TaskID:    t.ID,
		Status:    string(t.Status),
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Error:     t.Error,
	}
}
