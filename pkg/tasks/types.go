// Package tasks implements the three-queue task manager: submit/dedup,
// FIFO workers per queue under suture supervision, a paused-task monitor,
// pause/resume/abort, and crash recovery — grounded on the teacher's
// pkg/manager.Scheduler (job lifecycle, running-job cancellation map) and
// generalized from one polling scheduler into three push-driven queues per
// SPEC_FULL.md §4.5.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProgressFunc reports percent/description to the task's history row. It
// blocks on the task's pause gate on every call, so a paused task stalls
// at its next progress report rather than mid-statement.
type ProgressFunc func(ctx context.Context, percent int, description string) error

// Factory builds and runs one task body. A nil return means success with
// the default message; return a *SuccessError, *PauseError, or any other
// error for the other terminal outcomes described in SPEC_FULL.md §4.5.
type Factory func(ctx context.Context, progress ProgressFunc) error

// SuccessError carries a custom completion message — raised instead of
// returned nil when a task body has something more specific to report
// than "任务成功完成" (e.g. "导入完成，新增 12 条").
type SuccessError struct {
	Msg string
}

func (e *SuccessError) Error() string { return e.Msg }

// Success builds a *SuccessError.
func Success(format string, args ...any) error {
	return &SuccessError{Msg: fmt.Sprintf(format, args...)}
}

// PauseError signals that the task hit a rate limit and should be parked
// with status paused (its resume time kept in Manager.pausedResumeAt)
// until RetryAfter elapses, rather than treated as a failure.
type PauseError struct {
	Provider   string
	RetryAfter time.Duration
	Msg        string
}

func (e *PauseError) Error() string { return e.Msg }

// PauseForRateLimit builds a *PauseError.
func PauseForRateLimit(provider string, retryAfter time.Duration, msg string) error {
	return &PauseError{Provider: provider, RetryAfter: retryAfter, Msg: msg}
}

// pauseGate is the edge-triggered gate a running task's ProgressFunc waits
// on. Open means "running", and a gate from newPauseGate starts open; Pause
// closes it until the next Resume.
type pauseGate struct {
	mu       sync.Mutex
	resumeCh chan struct{}
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{resumeCh: ch}
}

func (g *pauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resumeCh:
		g.resumeCh = make(chan struct{})
	default:
		// already paused
	}
}

func (g *pauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resumeCh:
		// already open
	default:
		close(g.resumeCh)
	}
}

func (g *pauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resumeCh
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
