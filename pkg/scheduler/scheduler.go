package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler 固定间隔任务，Stop 等待所有任务退出
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every 每隔 d 运行一次 job，d <= 0 时忽略
func (s *Scheduler) Every(d time.Duration, job Job) {
	if d <= 0 {
		return
	}
	s.wg.Add(1)
	go s.loopEvery(d, job)
}

func (s *Scheduler) loopEvery(d time.Duration, job Job) {
	defer s.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			job.Run(s.ctx)
		}
	}
}
