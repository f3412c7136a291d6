// Package actions forwards operator bulk actions to the dispatcher.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
	"dispatch-watch/internal/snapshot"
)

// Sink executes an action against the dispatcher.
type Sink interface {
	SubmitAction(ctx context.Context, site string, kind models.ActionKind, ids []string) (models.ActionResult, error)
}

// Refresher schedules a snapshot refresh without blocking.
type Refresher interface {
	TriggerAsync(reason string)
}

type Relay struct {
	sink      Sink
	store     *snapshot.Store
	refresher Refresher
	logger    *logging.Logger
	site      string
	timeout   time.Duration
}

func New(sink Sink, store *snapshot.Store, refresher Refresher, logger *logging.Logger, site string, timeout time.Duration) *Relay {
	return &Relay{
		sink:      sink,
		store:     store,
		refresher: refresher,
		logger:    logger,
		site:      site,
		timeout:   timeout,
	}
}

// Perform validates and forwards an action. On success a refresh is started
// in the background; on failure the snapshot is left alone. Every call that
// reaches the sink writes one audit entry.
func (r *Relay) Perform(ctx context.Context, kind models.ActionKind, ids []string) (models.ActionResult, error) {
	if _, err := models.ParseActionKind(string(kind)); err != nil {
		return models.ActionResult{}, err
	}
	ids = compact(ids)
	if len(ids) == 0 {
		return models.ActionResult{}, fmt.Errorf("%w: no task ids for %s", models.ErrInvalidRequest, kind)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.sink.SubmitAction(ctx, r.site, kind, ids)
	if err != nil {
		var sinkErr *models.SinkError
		if !errors.As(err, &sinkErr) {
			sinkErr = &models.SinkError{Action: kind, Status: res.Status, IDs: ids, Err: err}
		}
		r.audit(kind, ids, sinkErr.Status).WithError(err).Error("Action failed")
		return res, sinkErr
	}

	r.audit(kind, ids, res.Status).Info("Action succeeded")
	r.refresher.TriggerAsync(string(kind))
	return res, nil
}

func (r *Relay) audit(kind models.ActionKind, ids []string, status int) *logrus.Entry {
	return r.logger.WithFields(logrus.Fields{
		"action":         string(kind),
		"taskIds":        strings.Join(ids, ", "),
		"primaryObjects": r.targets(ids),
		"status":         status,
		"site":           r.site,
	})
}

// targets resolves the part numbers of ids from the current snapshot.
func (r *Relay) targets(ids []string) string {
	var objs []string
	for _, t := range r.store.FilterByIDs(ids) {
		if t.PrimaryObjects == "" {
			objs = append(objs, "N/A")
			continue
		}
		objs = append(objs, t.PrimaryObjects)
	}
	if len(objs) == 0 {
		return "N/A"
	}
	return strings.Join(objs, ", ")
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
