package bot

import (
	"context"
	"log/slog"
	"sync"

	"inspection-bot/internal/integrations/telegram"
)

// UpdateHandler processes a single update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Dispatcher runs updates in the background. Updates of one chat run in
// arrival order; different chats run concurrently.
type Dispatcher struct {
	ctx     context.Context
	handler UpdateHandler

	mu     sync.Mutex
	queues map[int64][]telegram.Update
	wg     sync.WaitGroup
}

// NewDispatcher returns a dispatcher whose work runs under ctx.
func NewDispatcher(ctx context.Context, h UpdateHandler) *Dispatcher {
	return &Dispatcher{
		ctx:     context.WithoutCancel(ctx),
		handler: h,
		queues:  make(map[int64][]telegram.Update),
	}
}

// Submit queues an update and returns immediately.
func (d *Dispatcher) Submit(u telegram.Update) {
	chatID := u.ChatID()
	d.mu.Lock()
	defer d.mu.Unlock()

	q, running := d.queues[chatID]
	d.queues[chatID] = append(q, u)
	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(chatID)
}

// Pending returns the number of chats with queued or running work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every submitted update has been handled or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) drain(chatID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[chatID]
		if len(q) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		u := q[0]
		d.queues[chatID] = q[1:]
		d.mu.Unlock()

		d.run(u)
	}
}

func (d *Dispatcher) run(u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic handling update", "update_id", u.UpdateID, "chat_id", u.ChatID(), "panic", r)
		}
	}()
	if err := d.handler.HandleUpdate(d.ctx, u); err != nil {
		slog.Error("update handling failed", "update_id", u.UpdateID, "chat_id", u.ChatID(), "err", err)
	}
}
