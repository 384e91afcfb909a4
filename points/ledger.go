/*
ledger.go - The Wallet Ledger

PURPOSE:
  The Ledger is the single mutation point for wallet fields. Recognition,
  redemption, achievement and distribution flows all route point changes
  through it. Every successful movement:
    1. Applies an atomic delta (or a set, for allocation refills)
    2. Appends a Transaction to the wallet log in the same store transaction
    3. Raises one POINTS_AWARDED / POINTS_DEDUCTED notification

AWARD SEMANTICS:
  AwardAllocation  → SET allocation to amount (periodic refill)
  AwardPersonal    → personal += amount
  AwardRecognition → personal += amount
  AwardAchievement → personal += amount

CROSS-USER ATOMICITY:
  Transfer and Atomically run inside one store transaction. Either every
  write commits or none does, so a failed credit never leaves a debit
  applied. Notifications raised inside Atomically are buffered and only
  delivered after commit.

EXAMPLE:
  err := ledger.Atomically(ctx, func(ctx context.Context) error {
      if err := store.CreateRecognition(ctx, rec); err != nil {
          return err
      }
      return ledger.Transfer(ctx, rec.SenderID, rec.RecipientID, rec.Points,
          points.WithReference(string(rec.ID)))
  })

SEE ALSO:
  - store.go: WalletStore primitives
  - outbox.go: Post-commit notification delivery
*/
package points

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
	sink  NotificationSink
	log   logrus.FieldLogger
	now   func() time.Time
}

type LedgerOption func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, sink NotificationSink, log logrus.FieldLogger, opts ...LedgerOption) *Ledger {
	if sink == nil {
		sink = NotificationSinkFunc(func(context.Context, Notification) error { return nil })
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Ledger{
		store: store,
		sink:  sink,
		log:   log.WithField("component", "ledger"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Now() time.Time { return l.now().UTC() }

// =============================================================================
// ENTRY OPTIONS - Annotate the Transaction written for a movement
// =============================================================================

type entry struct {
	txType    TransactionType
	reference string
	reason    string
	silent    bool
}

type EntryOption func(*entry)

func WithReference(id string) EntryOption { return func(e *entry) { e.reference = id } }
func WithReason(reason string) EntryOption { return func(e *entry) { e.reason = reason } }
func WithType(t TransactionType) EntryOption { return func(e *entry) { e.txType = t } }

// Silently suppresses the POINTS_AWARDED / POINTS_DEDUCTED notification.
// Used when the caller raises a richer notification of its own.
func Silently() EntryOption { return func(e *entry) { e.silent = true } }

func buildEntry(defaultType TransactionType, opts []EntryOption) entry {
	e := entry{txType: defaultType}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the user's two-pool wallet.
func (l *Ledger) GetBalance(ctx context.Context, user UserID) (Balance, error) {
	u, err := l.store.GetUser(ctx, user)
	if err != nil {
		return Balance{}, err
	}
	return u.Wallet, nil
}

// History returns the user's wallet movements, newest first.
func (l *Ledger) History(ctx context.Context, user UserID, limit int) ([]Transaction, error) {
	if _, err := l.store.GetUser(ctx, user); err != nil {
		return nil, err
	}
	return l.store.ListTransactions(ctx, user, limit)
}

// =============================================================================
// WRITES
// =============================================================================

// AwardPoints credits amount to the pool selected by kind.
// AwardAllocation sets the allocation pool; every other kind is additive.
func (l *Ledger) AwardPoints(ctx context.Context, user UserID, amount int64, kind AwardKind, opts ...EntryOption) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, Invalid("amount", "must be non-negative, got %d", amount)
	}
	if !kind.Valid() {
		return Transaction{}, Invalid("kind", "unknown award kind %q", kind)
	}

	e := buildEntry(defaultAwardType(kind), opts)
	pool := kind.Pool()

	var tx Transaction
	err := l.Atomically(ctx, func(ctx context.Context) error {
		var after, delta int64
		if kind == AwardAllocation {
			prev, err := l.store.SetPool(ctx, user, pool, amount)
			if err != nil {
				return err
			}
			after, delta = amount, amount-prev
		} else {
			if amount == 0 {
				if _, err := l.store.GetUser(ctx, user); err != nil {
					return err
				}
				tx = Transaction{UserID: user, Pool: pool, Type: e.txType}
				return nil
			}
			v, err := l.store.AdjustPool(ctx, user, pool, amount)
			if err != nil {
				return err
			}
			after, delta = v, amount
		}

		var err error
		tx, err = l.record(ctx, user, pool, delta, after, e)
		if err != nil {
			return err
		}
		if !e.silent {
			l.Notify(ctx, Notification{
				UserID:  user,
				Kind:    NotifyPointsAwarded,
				Title:   "Points Awarded",
				Message: awardMessage(kind, amount),
				Data: map[string]any{
					"pool":    string(pool),
					"amount":  amount,
					"balance": after,
					"kind":    string(kind),
				},
			})
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// DeductPoints subtracts amount from pool. Fails with InsufficientPoints,
// changing nothing, if the pool holds less than amount.
func (l *Ledger) DeductPoints(ctx context.Context, user UserID, amount int64, pool Pool, opts ...EntryOption) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, Invalid("amount", "must be non-negative, got %d", amount)
	}
	if !pool.Valid() {
		return Transaction{}, Invalid("pool", "unknown pool %q", pool)
	}

	e := buildEntry(TxDebit, opts)
	if amount == 0 {
		if _, err := l.store.GetUser(ctx, user); err != nil {
			return Transaction{}, err
		}
		return Transaction{UserID: user, Pool: pool, Type: e.txType}, nil
	}

	var tx Transaction
	err := l.Atomically(ctx, func(ctx context.Context) error {
		after, err := l.store.AdjustPool(ctx, user, pool, -amount)
		if err != nil {
			return err
		}
		tx, err = l.record(ctx, user, pool, -amount, after, e)
		if err != nil {
			return err
		}
		if !e.silent {
			l.Notify(ctx, Notification{
				UserID:  user,
				Kind:    NotifyPointsDeducted,
				Title:   "Points Deducted",
				Message: fmt.Sprintf("%d points were deducted from your %s balance", amount, pool),
				Data: map[string]any{
					"pool":    string(pool),
					"amount":  amount,
					"balance": after,
				},
			})
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Transfer moves amount from the sender's allocation pool to the recipient's
// personal pool in one store transaction.
func (l *Ledger) Transfer(ctx context.Context, from, to UserID, amount int64, opts ...EntryOption) error {
	if amount <= 0 {
		return Invalid("amount", "transfer amount must be positive, got %d", amount)
	}
	err := l.Atomically(ctx, func(ctx context.Context) error {
		if _, err := l.DeductPoints(ctx, from, amount, PoolAllocation, append([]EntryOption{WithType(TxRecognitionSent)}, opts...)...); err != nil {
			return err
		}
		if _, err := l.AwardPoints(ctx, to, amount, AwardRecognition, append([]EntryOption{WithType(TxRecognitionReceived)}, opts...)...); err != nil {
			return err
		}
		return nil
	})
	if err != nil && !IsClientError(err) {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return err
}

func (l *Ledger) record(ctx context.Context, user UserID, pool Pool, delta, after int64, e entry) (Transaction, error) {
	tx := Transaction{
		ID:           TransactionID(uuid.NewString()),
		UserID:       user,
		Pool:         pool,
		Type:         e.txType,
		Delta:        delta,
		BalanceAfter: after,
		ReferenceID:  e.reference,
		Reason:       e.reason,
		CreatedAt:    l.Now(),
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("append wallet transaction: %w", err)
	}
	return tx, nil
}

func defaultAwardType(kind AwardKind) TransactionType {
	switch kind {
	case AwardAllocation:
		return TxMonthlyAllocation
	case AwardRecognition:
		return TxRecognitionReceived
	case AwardAchievement:
		return TxAchievement
	}
	return TxCredit
}

func awardMessage(kind AwardKind, amount int64) string {
	switch kind {
	case AwardAllocation:
		return fmt.Sprintf("Your monthly allocation has been set to %d points", amount)
	case AwardRecognition:
		return fmt.Sprintf("You received %d points from a recognition", amount)
	case AwardAchievement:
		return fmt.Sprintf("You earned %d points from an achievement", amount)
	}
	return fmt.Sprintf("You received %d points", amount)
}
