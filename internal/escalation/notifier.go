// Package escalation tracks overdue dispatcher tasks and drives the
// stage-1/2/3 alert schedule.
//
// Every overdue task is alerted once. Tasks that cross the threshold in the
// same evaluation share one message and one pair of reminder timers. A task
// seen COMPLETE leaves tracking at once and is excluded from any later
// reminder; a batch whose tasks have all cleared has its timers stopped.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

// Transport delivers an escalation message.
type Transport interface {
	Send(ctx context.Context, n models.Notification) error
}

// Options configures the escalation schedule and recipients.
type Options struct {
	Threshold   time.Duration
	Stage2Delay time.Duration
	Stage3Delay time.Duration
	To          []string
	CC          []string // copied on stage 3 only
	Subject     string
	SendTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Threshold == 0 {
		o.Threshold = 6 * time.Hour
	}
	if o.Stage2Delay == 0 {
		o.Stage2Delay = 30 * time.Minute
	}
	if o.Stage3Delay == 0 {
		o.Stage3Delay = 60 * time.Minute
	}
	if o.Subject == "" {
		o.Subject = "Urgent: Pending Dispatcher Tasks Alert"
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = 30 * time.Second
	}
}

// Tracking is a read-only view of one tracked task.
type Tracking struct {
	TaskID       string       `json:"task_id"`
	Stage        models.Stage `json:"stage"`
	BatchID      uuid.UUID    `json:"batch_id"`
	NextReminder *time.Time   `json:"next_reminder,omitempty"`
}

type entry struct {
	stage models.Stage
	batch *batch
}

// batch is the set of tasks alerted together at stage 1.
type batch struct {
	id    uuid.UUID
	tasks []models.Task // as captured at stage 1
	live  map[string]bool

	stage2, stage3 *time.Timer
	due2, due3     time.Time
}

func (b *batch) stop() {
	if b.stage2 != nil {
		b.stage2.Stop()
		b.stage2 = nil
	}
	if b.stage3 != nil {
		b.stage3.Stop()
		b.stage3 = nil
	}
}

func (b *batch) nextReminder() *time.Time {
	switch {
	case b.stage2 != nil:
		return &b.due2
	case b.stage3 != nil:
		return &b.due3
	}
	return nil
}

// Notifier owns the notification tracking table.
type Notifier struct {
	mu        sync.Mutex
	opts      Options
	transport Transport
	logger    *logging.Logger

	entries map[string]*entry
	batches map[uuid.UUID]*batch

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Notifier. A nil transport logs alerts without sending.
func New(transport Transport, logger *logging.Logger, opts Options) *Notifier {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		opts:      opts,
		transport: transport,
		logger:    logger,
		entries:   map[string]*entry{},
		batches:   map[uuid.UUID]*batch{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Overdue reports whether t is unresolved and older than threshold.
func Overdue(t models.Task, threshold time.Duration) bool {
	return !t.Complete() && t.AgeSeconds > int64(threshold/time.Second)
}

// Evaluate reconciles the tracking table with a fresh snapshot: newly overdue
// tasks are alerted in one batch, completed tasks are cleared. Tracked tasks
// missing from the snapshot are left as they are.
func (n *Notifier) Evaluate(ctx context.Context, tasks []models.Task) {
	n.mu.Lock()
	var fresh *batch
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		e, tracked := n.entries[t.ID]
		if t.Complete() {
			if tracked {
				n.clearLocked(t.ID, e)
			}
			continue
		}
		if tracked || !Overdue(t, n.opts.Threshold) {
			continue
		}
		if fresh == nil {
			fresh = &batch{id: uuid.New(), live: map[string]bool{}}
		}
		fresh.tasks = append(fresh.tasks, t)
		fresh.live[t.ID] = true
		n.entries[t.ID] = &entry{stage: models.Stage1, batch: fresh}
	}
	if fresh != nil {
		n.scheduleLocked(fresh)
	}
	n.mu.Unlock()

	if fresh != nil {
		n.send(ctx, fresh.id, models.Stage1, fresh.tasks)
	}
}

func (n *Notifier) scheduleLocked(b *batch) {
	now := time.Now()
	b.due2 = now.Add(n.opts.Stage2Delay)
	b.due3 = now.Add(n.opts.Stage3Delay)
	b.stage2 = time.AfterFunc(n.opts.Stage2Delay, func() { n.remind(b, models.Stage2) })
	b.stage3 = time.AfterFunc(n.opts.Stage3Delay, func() { n.remind(b, models.Stage3) })
	n.batches[b.id] = b
}

func (n *Notifier) clearLocked(id string, e *entry) {
	delete(n.entries, id)
	b := e.batch
	delete(b.live, id)
	n.logger.Infof("Escalation cleared for task %s at %s (batch %s)", id, e.stage, b.id)
	if len(b.live) == 0 {
		b.stop()
		delete(n.batches, b.id)
	}
}

// remind fires a stage-2 or stage-3 reminder for the tasks of b that are
// still tracked.
func (n *Notifier) remind(b *batch, stage models.Stage) {
	n.mu.Lock()
	if _, ok := n.batches[b.id]; !ok {
		n.mu.Unlock()
		return
	}
	if stage == models.Stage2 {
		b.stage2 = nil
	} else {
		b.stage3 = nil
	}
	if b.stage2 == nil && b.stage3 == nil {
		delete(n.batches, b.id)
	}

	var pending []models.Task
	for _, t := range b.tasks {
		if !b.live[t.ID] {
			continue
		}
		if e, ok := n.entries[t.ID]; ok && e.batch == b && e.stage < stage {
			e.stage = stage
			pending = append(pending, t)
		}
	}
	n.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	n.send(n.ctx, b.id, stage, pending)
}

func (n *Notifier) send(ctx context.Context, batchID uuid.UUID, stage models.Stage, tasks []models.Task) {
	notif := models.Notification{
		ID:        uuid.New(),
		BatchID:   batchID,
		Stage:     stage,
		CreatedAt: time.Now(),
		To:        n.opts.To,
		Subject:   n.opts.Subject,
		Tasks:     tasks,
	}
	if stage == models.Stage3 {
		notif.CC = n.opts.CC
	}

	if n.transport == nil {
		n.logger.Warnf("No transport configured, %s alert for %d tasks not sent (batch %s)", stage, len(tasks), batchID)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.SendTimeout)
	defer cancel()
	if err := n.transport.Send(ctx, notif); err != nil {
		err = fmt.Errorf("%w: %s batch %s: %w", models.ErrNotifyFailure, stage, batchID, err)
		if errors.Is(err, context.Canceled) {
			n.logger.Warnf("Escalation send aborted: %v", err)
			return
		}
		n.logger.Errorf("Escalation send failed: %v", err)
		return
	}
	n.logger.Infof("Escalation %s sent for %d tasks (batch %s)", stage, len(tasks), batchID)
}

// Tracked returns the tracking table ordered by task id.
func (n *Notifier) Tracked() []Tracking {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Tracking, 0, len(n.entries))
	for id, e := range n.entries {
		tr := Tracking{TaskID: id, Stage: e.stage, BatchID: e.batch.id}
		if next := e.batch.nextReminder(); next != nil {
			due := *next
			tr.NextReminder = &due
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Pending returns the number of batches with a reminder still scheduled.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

// Stop cancels every scheduled reminder and aborts in-flight reminder sends.
func (n *Notifier) Stop() {
	n.mu.Lock()
	for id, b := range n.batches {
		b.stop()
		delete(n.batches, id)
	}
	n.mu.Unlock()
	n.cancel()
}
