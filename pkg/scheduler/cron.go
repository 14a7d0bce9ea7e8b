package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron 基于 cron 表达式的任务，支持 "@every 30s" 这类描述符
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop 停止调度并等待正在运行的任务结束
func (cr *Cron) Stop() {
	cr.cancel()
	ctx := cr.c.Stop()
	<-ctx.Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) AddWithCtx(expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(expr, FuncJob(fn))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
