package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/machine"
	"github.com/hikari-danmu/server/pkg/metrics"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/storage"
)

// ErrActiveTaskExists is returned by Submit when a non-empty unique key
// already has a pending, running, or paused task.
var ErrActiveTaskExists = errors.New("tasks: an active task already exists for this unique key")

// ErrTitleBusy is returned by Submit when a task for the same title is
// already pending or running — the coarse title-level dedup, separate
// from the stricter unique-key conflict check.
var ErrTitleBusy = errors.New("tasks: a task for this title is already pending or running")

// RecoveryFactory rebuilds a Factory from a crash-recovered task's stored
// parameters. Only task types registered here are eligible for
// pending-recoverable resubmission on startup; Recover marks the other
// pending tasks failed.
type RecoveryFactory func(params json.RawMessage) (Factory, error)

type runningTask struct {
	task    storage.Task
	factory Factory
}

// Manager owns the three FIFO queues, their suture-supervised workers, the
// paused-task monitor, and the in-memory bookkeeping (gates, cancel funcs,
// title dedup) that a persisted Task row alone can't carry. Grounded on
// the teacher's pkg/manager.Scheduler, generalized from one polling loop
// over due jobs into three push-driven queues with pause/resume/abort.
type Manager struct {
	store  storage.Storage
	logger *zap.Logger

	// Limiter, if set, gates the download queue's worker on the global
	// quota. Nil means no global gating (e.g. rate limiting disabled
	// entirely).
	Limiter ratelimit.Limiter

	recoverable map[string]RecoveryFactory

	queues map[storage.QueueType]chan runningTask
	sup    *suture.Supervisor

	mu             sync.Mutex
	pendingTitles  map[string]int
	gates          map[string]*pauseGate
	cancels        map[string]context.CancelFunc
	cancelledWait  map[string]bool
	pausedResumeAt map[string]time.Time
}

const queueBuffer = 256

// New builds a Manager. Call Start to launch the worker/monitor
// supervision tree; call RegisterRecovery for every task type that should
// be resubmitted (rather than left pending) after a crash, then call
// Recover once storage is ready.
func New(store storage.Storage, logger *zap.Logger) *Manager {
	m := &Manager{
		store:          store,
		logger:         logger,
		recoverable:    make(map[string]RecoveryFactory),
		queues:         make(map[storage.QueueType]chan runningTask),
		pendingTitles:  make(map[string]int),
		gates:          make(map[string]*pauseGate),
		cancels:        make(map[string]context.CancelFunc),
		cancelledWait:  make(map[string]bool),
		pausedResumeAt: make(map[string]time.Time),
	}
	for _, q := range []storage.QueueType{storage.QueueDownload, storage.QueueManagement, storage.QueueFallback} {
		m.queues[q] = make(chan runningTask, queueBuffer)
	}
	m.sup = suture.New("tasks", suture.Spec{})
	for _, q := range []storage.QueueType{storage.QueueDownload, storage.QueueManagement, storage.QueueFallback} {
		m.sup.Add(&worker{queue: q, ch: m.queues[q], manager: m})
	}
	m.sup.Add(&pausedMonitor{manager: m})
	return m
}

// RegisterRecovery makes taskType eligible for pending-recoverable
// resubmission on Recover.
func (m *Manager) RegisterRecovery(taskType string, rf RecoveryFactory) {
	m.recoverable[taskType] = rf
}

// Start launches the supervision tree and blocks until ctx is cancelled.
// Run it in its own goroutine.
func (m *Manager) Start(ctx context.Context) error {
	return m.sup.Serve(ctx)
}

// Submit enqueues a new task. taskType selects the queue (see queue.go)
// and, on a future crash, whether the task is eligible for automatic
// resubmission. uniqueKey may be empty to skip the active-conflict check.
func (m *Manager) Submit(ctx context.Context, title, taskType, uniqueKey string, params json.RawMessage, factory Factory) (string, error) {
	if uniqueKey != "" {
		if existing, ok, err := m.store.FindActiveTaskByUniqueKey(ctx, uniqueKey); err != nil {
			return "", fmt.Errorf("tasks: checking unique key conflict: %w", err)
		} else if ok {
			metrics.RecordTaskSubmitted(taskType, "conflict")
			return "", fmt.Errorf("%w: existing task %s", ErrActiveTaskExists, existing.TaskID)
		}
	}

	m.mu.Lock()
	if m.pendingTitles[title] > 0 {
		m.mu.Unlock()
		metrics.RecordTaskSubmitted(taskType, "title_busy")
		return "", ErrTitleBusy
	}
	m.pendingTitles[title]++
	m.mu.Unlock()

	taskID := uuid.NewString()
	now := time.Now()
	task := storage.Task{
		TaskID:         taskID,
		Title:          title,
		Status:         storage.TaskStatusPending,
		QueueType:      queueFor(taskType),
		UniqueKey:      uniqueKey,
		TaskType:       taskType,
		TaskParameters: params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.CreateTask(ctx, task); err != nil {
		m.mu.Lock()
		m.pendingTitles[title]--
		m.mu.Unlock()
		metrics.RecordTaskSubmitted(taskType, "error")
		return "", fmt.Errorf("tasks: creating task row: %w", err)
	}

	metrics.RecordTaskSubmitted(taskType, "accepted")
	m.queues[task.QueueType] <- runningTask{task: task, factory: factory}
	metrics.SetQueueDepth(string(task.QueueType), len(m.queues[task.QueueType]))
	return taskID, nil
}

// CancelPending aborts a task that has not started running yet. Returns
// false only while the task is running (use Abort for that); otherwise it
// marks the id cancelled and returns true, even for an id that is already
// finished or unknown.
func (m *Manager) CancelPending(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[taskID]; running {
		return false
	}
	m.cancelledWait[taskID] = true
	return true
}

// Abort cancels a running task's context, causing its Factory to observe
// ctx.Done() and return context.Canceled.
func (m *Manager) Abort(taskID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Pause closes a running task's progress gate so its next ProgressFunc
// call blocks until Resume.
func (m *Manager) Pause(taskID string) bool {
	m.mu.Lock()
	gate, ok := m.gates[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	gate.Pause()
	return true
}

// Resume reopens a running task's progress gate, or — for a task parked
// by a rate-limit PauseError — requeues it immediately instead of waiting
// for its retry-after to elapse.
func (m *Manager) Resume(ctx context.Context, taskID string) bool {
	m.mu.Lock()
	if gate, ok := m.gates[taskID]; ok {
		m.mu.Unlock()
		gate.Resume()
		return true
	}
	_, parked := m.pausedResumeAt[taskID]
	if parked {
		delete(m.pausedResumeAt, taskID)
	}
	m.mu.Unlock()
	if !parked {
		return false
	}
	return m.requeueParked(ctx, taskID)
}

func (m *Manager) requeueParked(ctx context.Context, taskID string) bool {
	task, ok, err := m.store.GetTask(ctx, taskID)
	if err != nil || !ok {
		return false
	}
	if err := machine.New(task.Status, taskTransitions...).ToState(storage.TaskStatusPending); err != nil {
		m.logger.Error("tasks: invalid transition to pending", zap.String("task_id", taskID), zap.String("from", string(task.Status)), zap.Error(err))
		return false
	}
	task.Status = storage.TaskStatusPending
	task.UpdatedAt = time.Now()
	if err := m.store.UpdateTask(ctx, task); err != nil {
		m.logger.Error("tasks: failed to requeue parked task", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	factory, ok := m.recoveryFactoryFor(task)
	if !ok {
		m.logger.Warn("tasks: parked task has no recovery factory, cannot requeue", zap.String("task_id", taskID))
		return false
	}
	m.mu.Lock()
	m.pendingTitles[task.Title]++
	m.mu.Unlock()
	m.queues[task.QueueType] <- runningTask{task: task, factory: factory}
	return true
}

func (m *Manager) recoveryFactoryFor(task storage.Task) (Factory, bool) {
	rf, ok := m.recoverable[task.TaskType]
	if !ok {
		return nil, false
	}
	factory, err := rf(task.TaskParameters)
	if err != nil {
		return nil, false
	}
	return factory, true
}

// Recover runs crash recovery: any task left Running from a prior process
// is marked Failed (its worker goroutine died with the process, so it
// cannot still be making progress); any task left Pending whose task type
// is registered for recovery is rebuilt and resubmitted, since its
// in-memory Factory closure did not survive the restart.
func (m *Manager) Recover(ctx context.Context) error {
	running, err := m.store.ListTasksByStatus(ctx, storage.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("tasks: listing running tasks: %w", err)
	}
	for _, t := range running {
		t.Status = storage.TaskStatusFailed
		t.Description = "任务因进程重启而中断"
		finishedAt := time.Now()
		t.FinishedAt = &finishedAt
		t.UpdatedAt = finishedAt
		if err := m.store.UpdateTask(ctx, t); err != nil {
			m.logger.Error("tasks: failed to fail stale running task", zap.String("task_id", t.TaskID), zap.Error(err))
		}
	}

	types := make([]string, 0, len(m.recoverable))
	for t := range m.recoverable {
		types = append(types, t)
	}
	recoverable, err := m.store.ListRecoverableTasks(ctx, types)
	if err != nil {
		return fmt.Errorf("tasks: listing recoverable tasks: %w", err)
	}
	for _, t := range recoverable {
		factory, ok := m.recoveryFactoryFor(t)
		if !ok {
			continue
		}
		m.mu.Lock()
		m.pendingTitles[t.Title]++
		m.mu.Unlock()
		m.queues[t.QueueType] <- runningTask{task: t, factory: factory}
	}

	// Any other pending task — one whose task_type was never registered
	// with RegisterRecovery — has no Factory to rebuild it with, so it can
	// never be picked up by a worker. Leaving it pending would hide it
	// forever instead of surfacing the failure to an operator.
	pending, err := m.store.ListTasksByStatus(ctx, storage.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("tasks: listing pending tasks: %w", err)
	}
	for _, t := range pending {
		if _, ok := m.recoverable[t.TaskType]; ok {
			continue
		}
		t.Status = storage.TaskStatusFailed
		t.Description = "无法恢复而取消"
		finishedAt := time.Now()
		t.FinishedAt = &finishedAt
		t.UpdatedAt = finishedAt
		if err := m.store.UpdateTask(ctx, t); err != nil {
			m.logger.Error("tasks: failed to fail unrecoverable pending task", zap.String("task_id", t.TaskID), zap.Error(err))
		}
	}
	return nil
}
