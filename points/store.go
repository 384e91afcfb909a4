/*
store.go - Persistence contracts for users, organizations and wallets

PURPOSE:
  Defines the interface between the ledger and the database. Every domain
  package declares the narrow store it needs; a concrete backend
  (memory, SQLite, PostgreSQL) implements all of them on one handle so a
  single transaction can span wallets, recognitions, rewards and
  achievements.

KEY INTERFACES:
  Transactor:        Runs a function inside one store transaction
  UserStore:         User profiles and organization membership
  OrganizationStore: Organization records
  WalletStore:       Atomic pool deltas plus the wallet transaction log

ATOMIC DELTAS:
  AdjustPool applies a signed delta inside the database in one statement
  and refuses decrements that would take the pool below zero. Callers
  never read a balance, compute, and write it back.

TRANSACTIONS IN CONTEXT:
  WithTx passes the transaction to fn through the context. Every store
  method called with that context joins the transaction; nested WithTx
  calls join the outer one instead of opening a new one.

IMPLEMENTATIONS:
  - store/memory: In-memory with undo-log rollback
  - store/sqlite: database/sql + go-sqlite3
  - store/postgres: gorm

SEE ALSO:
  - ledger.go: The only caller of the WalletStore write methods
*/
package points

import "context"

// =============================================================================
// TRANSACTOR - Atomic multi-entity writes
// =============================================================================

// Transactor runs fn within a store transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
// A WithTx issued with a context that already carries a transaction joins it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// =============================================================================
// USERS & ORGANIZATIONS
// =============================================================================

type UserStore interface {
	// GetUser returns ErrNotFound (wrapped) if the user does not exist.
	GetUser(ctx context.Context, id UserID) (User, error)

	// UpsertUser creates the user with an empty wallet or updates its
	// profile fields and role. The wallet is never written here.
	UpsertUser(ctx context.Context, u User) (User, error)

	ListUsersByOrganization(ctx context.Context, org OrgID) ([]User, error)
	CountUsersByOrganization(ctx context.Context, org OrgID) (int64, error)
}

type OrganizationStore interface {
	GetOrganization(ctx context.Context, id OrgID) (Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error)
	CreateOrganization(ctx context.Context, o Organization) error
	ListOrganizations(ctx context.Context) ([]Organization, error)
}

// =============================================================================
// WALLET
// =============================================================================

type WalletStore interface {
	// AdjustPool adds delta to the pool and returns the new value.
	// A negative delta that would leave the pool below zero changes nothing
	// and returns an *InsufficientPointsError.
	AdjustPool(ctx context.Context, user UserID, pool Pool, delta int64) (int64, error)

	// SetPool overwrites the pool and returns the previous value.
	SetPool(ctx context.Context, user UserID, pool Pool, value int64) (int64, error)

	AppendTransaction(ctx context.Context, tx Transaction) error

	// ListTransactions returns the user's wallet movements, newest first.
	// limit <= 0 means no limit.
	ListTransactions(ctx context.Context, user UserID, limit int) ([]Transaction, error)
}

// Store is everything the Ledger needs from persistence.
type Store interface {
	Transactor
	UserStore
	OrganizationStore
	WalletStore
}

// =============================================================================
// NOTIFICATION SINK
// =============================================================================

// NotificationSink receives fire-and-forget events. Send errors are logged by
// the caller and never roll back the operation that raised them.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, n Notification) error

func (f NotificationSinkFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
