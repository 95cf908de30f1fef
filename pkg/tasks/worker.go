package tasks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/machine"
	"github.com/hikari-danmu/server/pkg/metrics"
	"github.com/hikari-danmu/server/pkg/storage"
)

// taskTransitions is the closed set of moves a Task's Status can make.
// Checked before every write so a bug in the worker loop fails loud
// instead of silently corrupting a task's history.
var taskTransitions = []machine.Allowable[storage.TaskStatus]{
	machine.From(storage.TaskStatusPending).To(storage.TaskStatusRunning, storage.TaskStatusFailed),
	machine.From(storage.TaskStatusRunning).To(storage.TaskStatusCompleted, storage.TaskStatusFailed, storage.TaskStatusPaused),
	machine.From(storage.TaskStatusPaused).To(storage.TaskStatusPending, storage.TaskStatusRunning),
}

// worker drains one queue's channel, one task at a time, and runs each
// task's Factory to completion, pause, or failure. It implements
// suture.Service so a crash in one queue's worker restarts only that
// worker, not the other two.
type worker struct {
	queue   storage.QueueType
	ch      chan runningTask
	manager *Manager
}

func (w *worker) String() string { return "tasks.worker." + string(w.queue) }

func (w *worker) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rt := <-w.ch:
			metrics.SetQueueDepth(string(w.queue), len(w.ch))
			w.run(ctx, rt)
		}
	}
}

func (w *worker) run(ctx context.Context, rt runningTask) {
	task := rt.task
	m := w.manager

	m.mu.Lock()
	cancelled := m.cancelledWait[task.TaskID]
	delete(m.cancelledWait, task.TaskID)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.pendingTitles[task.Title]--
		if m.pendingTitles[task.Title] <= 0 {
			delete(m.pendingTitles, task.Title)
		}
		delete(m.gates, task.TaskID)
		delete(m.cancels, task.TaskID)
		m.mu.Unlock()
	}()

	if cancelled {
		w.finish(ctx, task, storage.TaskStatusFailed, "任务在运行前被取消", 0)
		return
	}

	if err := w.waitForGlobalLimit(ctx); err != nil {
		w.finish(ctx, task, storage.TaskStatusFailed, "任务在运行前被取消", 0)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gate := newPauseGate()
	startedAt := time.Now()

	m.mu.Lock()
	m.gates[task.TaskID] = gate
	m.cancels[task.TaskID] = cancel
	m.mu.Unlock()

	if err := machine.New(task.Status, taskTransitions...).ToState(storage.TaskStatusRunning); err != nil {
		m.logger.Error("tasks: invalid transition to running", zap.String("task_id", task.TaskID), zap.String("from", string(task.Status)), zap.Error(err))
	}
	task.Status = storage.TaskStatusRunning
	task.UpdatedAt = time.Now()
	if err := m.store.UpdateTask(ctx, task); err != nil {
		m.logger.Error("tasks: failed to mark task running", zap.String("task_id", task.TaskID), zap.Error(err))
	}

	var lastProgress int
	progress := func(progressCtx context.Context, percent int, description string) error {
		if err := gate.Wait(progressCtx); err != nil {
			return err
		}
		lastProgress = percent
		task.Progress = percent
		task.Description = description
		task.UpdatedAt = time.Now()
		return m.store.UpdateTask(progressCtx, task)
	}

	err := rt.factory(runCtx, progress)
	elapsed := time.Since(startedAt)

	switch {
	case err == nil:
		metrics.RecordTaskFinished(task.TaskType, "success", elapsed)
		w.finish(ctx, task, storage.TaskStatusCompleted, "任务成功完成", lastProgress)
	case isSuccess(err):
		metrics.RecordTaskFinished(task.TaskType, "success", elapsed)
		w.finish(ctx, task, storage.TaskStatusCompleted, err.Error(), lastProgress)
	case isPause(err):
		metrics.RecordTaskFinished(task.TaskType, "paused", elapsed)
		w.park(ctx, task, err.(*PauseError))
	case errors.Is(err, context.Canceled):
		metrics.RecordTaskFinished(task.TaskType, "cancelled", elapsed)
		w.finish(ctx, task, storage.TaskStatusFailed, "任务已被用户取消", lastProgress)
	default:
		metrics.RecordTaskFinished(task.TaskType, "failed", elapsed)
		w.finish(ctx, task, storage.TaskStatusFailed, err.Error(), lastProgress)
	}
}

// waitForGlobalLimit naps the download queue's worker while the global
// rate-limit counter is exhausted. Other queues never touch global quota
// and return immediately.
func (w *worker) waitForGlobalLimit(ctx context.Context) error {
	if w.queue != storage.QueueDownload || w.manager.Limiter == nil {
		return nil
	}
	for {
		limited, wait, err := w.manager.Limiter.GetGlobalLimitStatus(ctx)
		if err != nil {
			w.manager.logger.Error("tasks: checking global rate limit", zap.Error(err))
			return nil
		}
		if !limited {
			return nil
		}
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func isSuccess(err error) bool {
	var s *SuccessError
	return errors.As(err, &s)
}

func isPause(err error) bool {
	var p *PauseError
	return errors.As(err, &p)
}

func (w *worker) finish(ctx context.Context, task storage.Task, status storage.TaskStatus, description string, progress int) {
	if err := machine.New(task.Status, taskTransitions...).ToState(status); err != nil {
		w.manager.logger.Error("tasks: invalid status transition", zap.String("task_id", task.TaskID), zap.String("from", string(task.Status)), zap.String("to", string(status)), zap.Error(err))
	}
	task.Status = status
	task.Description = description
	task.Progress = progress
	finishedAt := time.Now()
	task.FinishedAt = &finishedAt
	task.UpdatedAt = finishedAt
	if err := w.manager.store.UpdateTask(ctx, task); err != nil {
		w.manager.logger.Error("tasks: failed to record task outcome", zap.String("task_id", task.TaskID), zap.Error(err))
	}
}

func (w *worker) park(ctx context.Context, task storage.Task, pause *PauseError) {
	if err := machine.New(task.Status, taskTransitions...).ToState(storage.TaskStatusPaused); err != nil {
		w.manager.logger.Error("tasks: invalid transition to paused", zap.String("task_id", task.TaskID), zap.String("from", string(task.Status)), zap.Error(err))
	}
	task.Status = storage.TaskStatusPaused
	task.Description = pause.Msg
	task.UpdatedAt = time.Now()
	if err := w.manager.store.UpdateTask(ctx, task); err != nil {
		w.manager.logger.Error("tasks: failed to record task pause", zap.String("task_id", task.TaskID), zap.Error(err))
	}
	resumeAt := time.Now().Add(pause.RetryAfter)
	w.manager.mu.Lock()
	w.manager.pausedResumeAt[task.TaskID] = resumeAt
	w.manager.mu.Unlock()
}
