// Package refresh keeps the local task snapshot in step with the dispatcher.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"dispatch-watch/internal/enrich"
	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
	"dispatch-watch/internal/snapshot"
)

// Source lists the dispatcher's current tasks for a site.
type Source interface {
	FetchTasks(ctx context.Context, site string) ([]models.RawTask, error)
}

// Publisher broadcasts a fresh snapshot to viewers.
type Publisher interface {
	Publish(snapshot []models.Task)
}

// Evaluator inspects each fresh snapshot for overdue tasks.
type Evaluator interface {
	Evaluate(ctx context.Context, tasks []models.Task)
}

type Options struct {
	Site     string
	Timeout  time.Duration // bound on a single dispatcher fetch
	Interval time.Duration // poll period for Run; zero disables polling
}

const refreshKey = "refresh"

// Coordinator fetches, enriches and installs snapshots. It owns the store:
// nothing else calls Replace.
type Coordinator struct {
	source    Source
	store     *snapshot.Store
	publisher Publisher
	evaluator Evaluator
	logger    *logging.Logger
	opts      Options

	group singleflight.Group
}

func New(source Source, store *snapshot.Store, publisher Publisher, evaluator Evaluator, logger *logging.Logger, opts Options) *Coordinator {
	return &Coordinator{
		source:    source,
		store:     store,
		publisher: publisher,
		evaluator: evaluator,
		logger:    logger,
		opts:      opts,
	}
}

// Refresh pulls the dispatcher task list and installs it as the snapshot.
// Calls made while a fetch is in flight share its result; a call made after
// it finished starts a new fetch. If ctx ends first Refresh returns early but
// the shared fetch keeps running for the other callers. The returned slice
// is shared and must not be modified.
func (c *Coordinator) Refresh(ctx context.Context) ([]models.Task, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Task), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TriggerAsync starts a refresh without waiting for it.
func (c *Coordinator) TriggerAsync(reason string) {
	go func() {
		if _, err := c.Refresh(context.Background()); err != nil {
			c.logger.Warnf("Refresh after %s failed: %v", reason, err)
		}
	}()
}

// Snapshot returns the current snapshot.
func (c *Coordinator) Snapshot() []models.Task {
	return c.store.Get()
}

func (c *Coordinator) refresh(ctx context.Context) ([]models.Task, error) {
	start := time.Now()

	fetchCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	raw, err := c.source.FetchTasks(fetchCtx, c.opts.Site)
	if err != nil {
		if !errors.Is(err, models.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
		}
		c.logger.Errorf("Error fetching data: %v", err)
		return nil, err
	}

	now := time.Now()
	tasks := make([]models.Task, 0, len(raw))
	malformed := 0
	for _, r := range raw {
		t, err := enrich.Task(r, now)
		if err != nil {
			malformed++
			c.logger.Warnf("Keeping degraded record: %v", err)
		}
		tasks = append(tasks, t)
	}

	c.store.Replace(tasks, now)
	snap := c.store.Get()
	c.publisher.Publish(snap)
	c.evaluator.Evaluate(ctx, snap)

	c.logger.WithField("malformed", malformed).
		Infof("Refreshed %d tasks for site %s in %v", len(snap), c.opts.Site, time.Since(start))
	return snap, nil
}

// Run refreshes once, then every Interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	if c.opts.Interval <= 0 {
		c.logger.Infof("Polling disabled")
		return
	}
	c.logger.Infof("Polling dispatcher every %v", c.opts.Interval)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warnf("Scheduled refresh failed: %v", err)
		}
		select {
		case <-ctx.Done():
			c.logger.Infof("Polling stopped")
			return
		case <-ticker.C:
		}
	}
}
