/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface (points.Store, budget.Store,
  recognition.Store, rewards.Store, achievements.Store, notify.Store) on a
  single database handle, so one transaction can span wallets,
  recognitions, reward inventory and achievements.

KEY TABLES:
  users:                Profile, role and the two wallet pools
  wallet_transactions:  Immutable log of every pool movement
  configurations:       One row per organization (yearly budget)
  category_settings:    Per-organization category table
  role_allocations:     Per-organization role table
  recognitions:         Recognitions; recognition_kudos holds endorsers
  rewards:              Catalog; organization_rewards links global items
  redemptions:          Append-only redemption audit trail
  reward_suggestions:   Suggestion box; suggestion_votes holds voters
  achievements:         Definitions; user_achievements holds progress
  notifications:        User inbox

ATOMIC DELTAS:
  Pools and reward inventory change through single conditional UPDATE
  statements with RETURNING:

    UPDATE users SET personal_points = personal_points + ?
    WHERE id = ? AND personal_points + ? >= 0
    RETURNING personal_points

  No row returned means the guard failed and nothing was written.

TRANSACTIONS:
  WithTx opens BEGIN IMMEDIATE (via _txlock=immediate) and carries the
  *sql.Tx in the context; every method picks it up through q(ctx). The
  pool is capped at one connection so writers serialize in the database
  instead of behind an application mutex.

USAGE:
  store, err := sqlite.New("./data/recognition.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - points/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ points.Store       = (*Store)(nil)
	_ budget.Store       = (*Store)(nil)
	_ recognition.Store  = (*Store)(nil)
	_ rewards.Store      = (*Store)(nil)
	_ achievements.Store = (*Store)(nil)
	_ notify.Store       = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		allocation_points INTEGER NOT NULL DEFAULT 0 CHECK (allocation_points >= 0),
		personal_points INTEGER NOT NULL DEFAULT 0 CHECK (personal_points >= 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_organization ON users(organization_id);

	-- Wallet log (append-only)
	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		pool TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		delta INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reference_id TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user ON wallet_transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_reference
		ON wallet_transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Budget configuration
	CREATE TABLE IF NOT EXISTS configurations (
		organization_id TEXT PRIMARY KEY,
		yearly_budget TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS category_settings (
		organization_id TEXT NOT NULL REFERENCES configurations(organization_id),
		category TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		default_points INTEGER NOT NULL DEFAULT 0,
		max_points INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, category)
	);

	CREATE TABLE IF NOT EXISTS role_allocations (
		organization_id TEXT NOT NULL REFERENCES configurations(organization_id),
		role TEXT NOT NULL,
		points_per_month INTEGER NOT NULL DEFAULT 0,
		max_points_per_recognition INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, role)
	);

	-- Recognitions
	CREATE TABLE IF NOT EXISTS recognitions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		message TEXT NOT NULL,
		category TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points >= 0),
		pinned_until TEXT,
		created_at TEXT NOT NULL,
		CHECK (sender_id <> recipient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_recognitions_organization ON recognitions(organization_id);
	CREATE INDEX IF NOT EXISTS idx_recognitions_recipient ON recognitions(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_recognitions_sender ON recognitions(sender_id);

	CREATE TABLE IF NOT EXISTS recognition_kudos (
		recognition_id TEXT NOT NULL REFERENCES recognitions(id),
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (recognition_id, user_id)
	);

	-- Rewards
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		points_cost INTEGER NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		is_global BOOLEAN NOT NULL DEFAULT FALSE,
		organization_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		redemption_count INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_organization ON rewards(organization_id);

	CREATE TABLE IF NOT EXISTS organization_rewards (
		organization_id TEXT NOT NULL,
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		custom_points_cost INTEGER,
		custom_quantity INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (organization_id, reward_id)
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		user_id TEXT NOT NULL,
		points_cost INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_organization_date ON redemptions(organization_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_redemptions_user ON redemptions(user_id);

	CREATE TABLE IF NOT EXISTS reward_suggestions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		suggested_points_cost INTEGER NOT NULL CHECK (suggested_points_cost >= 0),
		suggested_by TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		admin_feedback TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NOT NULL DEFAULT '',
		reward_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reward_suggestions_organization ON reward_suggestions(organization_id);

	CREATE TABLE IF NOT EXISTS suggestion_votes (
		suggestion_id TEXT NOT NULL REFERENCES reward_suggestions(id),
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (suggestion_id, user_id)
	);

	-- Achievements
	CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		threshold INTEGER NOT NULL CHECK (threshold > 0),
		points INTEGER NOT NULL DEFAULT 0,
		organization_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_achievements_org_type ON achievements(organization_id, type);

	CREATE TABLE IF NOT EXISTS user_achievements (
		user_id TEXT NOT NULL,
		achievement_id TEXT NOT NULL REFERENCES achievements(id),
		progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		earned_at TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, achievement_id)
	);

	-- Notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		data_json TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type txKey struct{}

type scopedTx struct {
	owner *Store
	tx    *sql.Tx
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) txFrom(ctx context.Context) *sql.Tx {
	if st, ok := ctx.Value(txKey{}).(*scopedTx); ok && st.owner == s {
		return st.tx
	}
	return nil
}

// q returns the transaction carried by ctx, or the database.
func (s *Store) q(ctx context.Context) executor {
	if tx := s.txFrom(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx executes fn within a database transaction. Nested calls join the
// transaction already in ctx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, &scopedTx{owner: s, tx: sqlTx})); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func now() string { return formatTime(time.Now()) }

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// insertErr maps a duplicate key to InvalidInput.
func insertErr(entity string, id any, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return points.Invalid(entity, "%v already exists", id)
	}
	return fmt.Errorf("failed to insert %s: %w", entity, err)
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, table := range []string{
			"notifications", "user_achievements", "achievements",
			"suggestion_votes", "reward_suggestions", "redemptions",
			"organization_rewards", "rewards", "recognition_kudos", "recognitions",
			"role_allocations", "category_settings", "configurations",
			"wallet_transactions", "users", "organizations",
		} {
			if _, err := s.q(ctx).ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}
