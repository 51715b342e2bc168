// Package trigger turns chat log appends into reply pipeline invocations.
package trigger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/responder"
)

// Handler runs the reply pipeline for one entry.
type Handler interface {
	Handle(ctx context.Context, entry *chatlog.Entry) (responder.Result, error)
}

// Dispatcher starts one independent invocation per appended entry.
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	group  errgroup.Group
}

// New returns a Dispatcher whose invocations outlive the request that caused
// the append. logger may be nil.
func New(handler Handler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		logger:  logger.Named("trigger"),
		base:    base,
		cancel:  cancel,
	}
}

// OnAppend is a chatlog.Listener. It never blocks the appending goroutine.
func (d *Dispatcher) OnAppend(entry chatlog.Entry) {
	d.Dispatch(entry)
}

// Dispatch schedules entry and reports whether it was accepted. Entries
// arriving after Close are dropped.
func (d *Dispatcher) Dispatch(entry chatlog.Entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping entry", zap.String("entryID", entry.ID))
		return false
	}

	d.group.Go(func() error {
		// Failures are logged by the handler; one bad invocation must not
		// affect the others, so nothing is returned to the group.
		result, _ := d.handler.Handle(d.base, &entry)
		d.logger.Debug("invocation finished", zap.String("entryID", entry.ID), zap.String("result", string(result)))
		return nil
	})
	return true
}

// Close stops accepting entries and waits for in-flight invocations. When ctx
// ends first, their context is cancelled and Close still waits for them to
// return before reporting ctx's error.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
