// Package providers holds the escalation delivery channels.
package providers

import (
	"context"
	"errors"

	"dispatch-watch/internal/models"
)

// Transport is a single delivery channel.
type Transport interface {
	Send(ctx context.Context, n models.Notification) error
}

// Multi sends each alert on every channel and joins the failures.
type Multi []Transport

func (m Multi) Send(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
