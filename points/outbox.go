package points

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// OUTBOX - Notifications raised inside a transaction wait for its commit
// =============================================================================

type outboxKey struct{}

type outbox struct {
	mu      sync.Mutex
	pending []Notification
}

func (o *outbox) add(n Notification) {
	o.mu.Lock()
	o.pending = append(o.pending, n)
	o.mu.Unlock()
}

func (o *outbox) drain() []Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

// Atomically runs fn inside one store transaction. Notifications raised with
// Notify during fn are delivered after the transaction commits and dropped if
// it rolls back. Nested calls join the outermost transaction and outbox.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return l.store.WithTx(ctx, fn)
	}

	box := &outbox{}
	txCtx := context.WithValue(ctx, outboxKey{}, box)
	if err := l.store.WithTx(txCtx, fn); err != nil {
		return err
	}
	l.deliver(ctx, box.drain())
	return nil
}

// Notify hands n to the sink, or queues it when called inside Atomically.
// Delivery errors are logged and never returned.
func (l *Ledger) Notify(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = l.Now()
	}
	if box, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		box.add(n)
		return
	}
	l.deliver(ctx, []Notification{n})
}

func (l *Ledger) deliver(ctx context.Context, ns []Notification) {
	// Delivery outlives a caller that hung up right after commit.
	ctx = context.WithoutCancel(ctx)
	for _, n := range ns {
		if err := l.sink.Send(ctx, n); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{
				"user_id": n.UserID,
				"kind":    n.Kind,
			}).Warn("notification delivery failed")
		}
	}
}
