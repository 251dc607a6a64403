package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "threadq/pkg/logx"
)

const pruneTimeout = time.Minute

// Pruner deletes records past the retention window on a cron schedule.
type Pruner struct {
	store     Store
	log       logx.Logger
	retention time.Duration
	spec      string

	mu sync.Mutex
	c  *cron.Cron
}

// NewPruner validates the schedule. It returns (nil, nil) when retention is
// disabled.
func NewPruner(store Store, cfg Config, log logx.Logger) (*Pruner, error) {
	retention := cfg.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	if retention < 0 || store == nil {
		return nil, nil
	}
	spec := strings.TrimSpace(cfg.PruneSchedule)
	if spec == "" {
		spec = DefaultPruneSchedule
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("storage.prune_schedule %q: %w", spec, err)
	}
	return &Pruner{store: store, log: log.With(logx.String("comp", "storage.prune")), retention: retention, spec: spec}, nil
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(p.spec, func() { p.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.c = c
	p.log.Info("outcome pruning scheduled", logx.String("schedule", p.spec), logx.Duration("retention", p.retention))
	return nil
}

// Stop halts the schedule and waits for a running prune.
func (p *Pruner) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()
	cutoff := time.Now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.log.Warn("outcome prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		p.log.Info("outcomes pruned", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	}
}
