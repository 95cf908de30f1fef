package tasks

import (
	"context"
	"time"
)

// pausedMonitor scans for rate-limit-paused tasks whose retry-after has
// elapsed and requeues them. It implements suture.Service so a panic here
// doesn't take the queue workers down with it.
type pausedMonitor struct {
	manager *Manager
}

func (p *pausedMonitor) String() string { return "tasks.pausedMonitor" }

const pausedScanInterval = time.Second

func (p *pausedMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(pausedScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

func (p *pausedMonitor) scan(ctx context.Context) {
	now := time.Now()
	var due []string
	p.manager.mu.Lock()
	for taskID, resumeAt := range p.manager.pausedResumeAt {
		if !now.Before(resumeAt) {
			due = append(due, taskID)
		}
	}
	for _, taskID := range due {
		delete(p.manager.pausedResumeAt, taskID)
	}
	p.manager.mu.Unlock()

	for _, taskID := range due {
		p.manager.requeueParked(ctx, taskID)
	}
}
