package payflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	errPollTimeout   = errors.New("payment still pending after max poll attempts")
	errPaymentFailed = errors.New("payment failed")
)

// awaitCompletion polls the backend until p leaves PENDING. It performs at
// most MaxPollAttempts polls with PollInterval between them.
func (o *Orchestrator) awaitCompletion(ctx context.Context, p *Payment) (*Payment, error) {
	switch p.Status {
	case StatusSuccess:
		return p, nil
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", errPaymentFailed, p.FailureReason)
	}

	for attempt := 1; attempt <= o.opts.MaxPollAttempts; attempt++ {
		cur, err := o.backend.PollPayment(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("poll payment %s: %w", p.ID, err)
		}

		switch cur.Status {
		case StatusSuccess:
			return cur, nil
		case StatusFailed:
			return nil, fmt.Errorf("%w: %s", errPaymentFailed, cur.FailureReason)
		}

		if attempt == o.opts.MaxPollAttempts {
			break
		}
		if err := o.sleep(ctx, o.opts.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (%d attempts)", errPollTimeout, o.opts.MaxPollAttempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
