package telegram

import (
	"context"
	"log/slog"
	"time"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 15 * time.Second
)

// UpdateSource is the long-polling side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
}

// RunPoller feeds updates to handle until ctx is cancelled. Failed polls are
// retried with exponential backoff.
func RunPoller(ctx context.Context, src UpdateSource, timeoutSec int, handle func(context.Context, Update)) error {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	slog.Info("telegram poller started", "timeout_sec", timeoutSec)

	var offset int64
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			slog.Info("telegram poller stopped")
			return nil
		}
		updates, err := src.GetUpdates(ctx, offset, timeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Warn("getUpdates failed", "err", err, "retry_in", backoff)
			if sleepOrCancel(ctx, backoff) != nil {
				continue
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(ctx, upd)
		}
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
