/*
Package postgres provides a PostgreSQL implementation of the storage
interfaces on top of GORM.

PURPOSE:
  Production deployments that outgrow a single SQLite file point DB_DSN at
  PostgreSQL. The package implements the same interfaces as store/sqlite,
  so services are unaware of which backend they run on.

ROW LOCKING:
  Pool and inventory changes read the row with SELECT ... FOR UPDATE,
  check the guard, then write a relative update:

    UPDATE users SET personal_points = personal_points + $1 WHERE id = $2

  The lock keeps concurrent redeemers of the last unit from both passing
  the guard.

INSERTION ORDER:
  Tables that need "first seen" ordering carry a bigserial seq column.

SEE ALSO:
  - store/sqlite: Same contract on SQLite
  - store/storetest: Shared behavior suite
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

type Store struct {
	db *gorm.DB
}

var (
	_ points.Store       = (*Store)(nil)
	_ budget.Store       = (*Store)(nil)
	_ recognition.Store  = (*Store)(nil)
	_ rewards.Store      = (*Store)(nil)
	_ achievements.Store = (*Store)(nil)
	_ notify.Store       = (*Store)(nil)
)

// New connects to dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Reset deletes all data. Used by integration tests.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for i := len(allModels) - 1; i >= 0; i-- {
			if err := s.conn(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(allModels[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type txKey struct{}

type scopedTx struct {
	owner *Store
	tx    *gorm.DB
}

// conn returns the transaction carried by ctx, or the pool.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if st, ok := ctx.Value(txKey{}).(*scopedTx); ok && st.owner == s {
		return st.tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// WithTx runs fn in a transaction. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if st, ok := ctx.Value(txKey{}).(*scopedTx); ok && st.owner == s {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, &scopedTx{owner: s, tx: tx}))
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func notFound(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.NotFound(entity, id)
	}
	return err
}

func insertErr(entity string, id any, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return points.Invalid(entity, "%v already exists", id)
	}
	return fmt.Errorf("failed to insert %s: %w", entity, err)
}

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// =============================================================================
// MODELS
// =============================================================================

var allModels = []any{
	&organizationRow{}, &userRow{}, &walletTxRow{},
	&configurationRow{}, &categorySettingRow{}, &roleAllocationRow{},
	&recognitionRow{}, &kudosRow{},
	&rewardRow{}, &orgRewardRow{}, &redemptionRow{},
	&suggestionRow{}, &suggestionVoteRow{},
	&achievementRow{}, &userAchievementRow{},
	&notificationRow{},
}

type organizationRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Slug      string `gorm:"not null;uniqueIndex"`
	Seq       int64  `gorm:"autoIncrement;not null"`
	CreatedAt time.Time
}

func (organizationRow) TableName() string { return "organizations" }

type userRow struct {
	ID               string `gorm:"primaryKey"`
	OrganizationID   string `gorm:"not null;index"`
	Email            string `gorm:"not null"`
	FirstName        string `gorm:"not null"`
	LastName         string `gorm:"not null"`
	Department       string `gorm:"not null"`
	Role             string `gorm:"not null"`
	AllocationPoints int64  `gorm:"not null;default:0;check:allocation_points >= 0"`
	PersonalPoints   int64  `gorm:"not null;default:0;check:personal_points >= 0"`
	Seq              int64  `gorm:"autoIncrement;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (userRow) TableName() string { return "users" }

type walletTxRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Pool         string `gorm:"not null"`
	TxType       string `gorm:"not null"`
	Delta        int64  `gorm:"not null"`
	BalanceAfter int64  `gorm:"not null"`
	ReferenceID  string `gorm:"index"`
	Reason       string
	Seq          int64 `gorm:"autoIncrement;not null"`
	CreatedAt    time.Time
}

func (walletTxRow) TableName() string { return "wallet_transactions" }

type configurationRow struct {
	OrganizationID string          `gorm:"primaryKey"`
	YearlyBudget   decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	UpdatedAt      time.Time
}

func (configurationRow) TableName() string { return "configurations" }

type categorySettingRow struct {
	OrganizationID string `gorm:"primaryKey"`
	Category       string `gorm:"primaryKey"`
	IsActive       bool   `gorm:"not null;default:false"`
	DefaultPoints  int64  `gorm:"not null;default:0"`
	MaxPoints      int64  `gorm:"not null;default:0"`
}

func (categorySettingRow) TableName() string { return "category_settings" }

type roleAllocationRow struct {
	OrganizationID          string `gorm:"primaryKey"`
	Role                    string `gorm:"primaryKey"`
	PointsPerMonth          int64  `gorm:"not null;default:0"`
	MaxPointsPerRecognition int64  `gorm:"not null;default:0"`
}

func (roleAllocationRow) TableName() string { return "role_allocations" }

type recognitionRow struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"not null;index"`
	SenderID       string `gorm:"not null;index"`
	RecipientID    string `gorm:"not null;index"`
	Message        string `gorm:"not null"`
	Category       string `gorm:"not null"`
	Points         int64  `gorm:"not null;check:points >= 0"`
	PinnedUntil    *time.Time
	Seq            int64 `gorm:"autoIncrement;not null"`
	CreatedAt      time.Time
}

func (recognitionRow) TableName() string { return "recognitions" }

type kudosRow struct {
	RecognitionID string `gorm:"primaryKey"`
	UserID        string `gorm:"primaryKey"`
	Seq           int64  `gorm:"autoIncrement;not null"`
	CreatedAt     time.Time
}

func (kudosRow) TableName() string { return "recognition_kudos" }

type rewardRow struct {
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	Description     string `gorm:"not null"`
	Category        string `gorm:"not null"`
	PointsCost      int64  `gorm:"not null"`
	Quantity        int64  `gorm:"not null;check:quantity >= 0"`
	IsGlobal        bool   `gorm:"not null;default:false"`
	OrganizationID  string `gorm:"not null;index"`
	IsActive        bool   `gorm:"not null;default:false"`
	RedemptionCount int64  `gorm:"not null;default:0"`
	CreatedBy       string `gorm:"not null"`
	Seq             int64  `gorm:"autoIncrement;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (rewardRow) TableName() string { return "rewards" }

type orgRewardRow struct {
	OrganizationID   string `gorm:"primaryKey"`
	RewardID         string `gorm:"primaryKey"`
	CustomPointsCost *int64
	CustomQuantity   *int64
	IsActive         bool  `gorm:"not null;default:false"`
	Seq              int64 `gorm:"autoIncrement;not null"`
	CreatedAt        time.Time
}

func (orgRewardRow) TableName() string { return "organization_rewards" }

type redemptionRow struct {
	ID             string    `gorm:"primaryKey"`
	OrganizationID string    `gorm:"not null;index:idx_redemptions_org_date"`
	RewardID       string    `gorm:"not null"`
	UserID         string    `gorm:"not null;index"`
	PointsCost     int64     `gorm:"not null"`
	Seq            int64     `gorm:"autoIncrement;not null"`
	CreatedAt      time.Time `gorm:"index:idx_redemptions_org_date"`
}

func (redemptionRow) TableName() string { return "redemptions" }

type suggestionRow struct {
	ID                  string `gorm:"primaryKey"`
	OrganizationID      string `gorm:"not null;index"`
	Name                string `gorm:"not null"`
	Description         string `gorm:"not null"`
	Category            string `gorm:"not null"`
	SuggestedPointsCost int64  `gorm:"not null;check:suggested_points_cost >= 0"`
	SuggestedBy         string `gorm:"not null"`
	Status              string `gorm:"not null;default:PENDING"`
	AdminFeedback       string `gorm:"not null"`
	ReviewedBy          string `gorm:"not null"`
	RewardID            string `gorm:"not null"`
	Seq                 int64  `gorm:"autoIncrement;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (suggestionRow) TableName() string { return "reward_suggestions" }

type suggestionVoteRow struct {
	SuggestionID string `gorm:"primaryKey"`
	UserID       string `gorm:"primaryKey"`
	Seq          int64  `gorm:"autoIncrement;not null"`
	CreatedAt    time.Time
}

func (suggestionVoteRow) TableName() string { return "suggestion_votes" }

type achievementRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Description    string `gorm:"not null"`
	Icon           string `gorm:"not null"`
	Type           string `gorm:"not null;index"`
	Threshold      int64  `gorm:"not null;check:threshold > 0"`
	Points         int64  `gorm:"not null"`
	OrganizationID string `gorm:"not null;index"`
	CreatedBy      string `gorm:"not null"`
	Seq            int64  `gorm:"autoIncrement;not null"`
	CreatedAt      time.Time
}

func (achievementRow) TableName() string { return "achievements" }

type userAchievementRow struct {
	UserID        string `gorm:"primaryKey"`
	AchievementID string `gorm:"primaryKey"`
	Progress      int    `gorm:"not null;default:0"`
	EarnedAt      *time.Time
	Seq           int64 `gorm:"autoIncrement;not null"`
	UpdatedAt     time.Time
}

func (userAchievementRow) TableName() string { return "user_achievements" }

type notificationRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Kind      string `gorm:"not null"`
	Title     string `gorm:"not null"`
	Message   string `gorm:"not null"`
	DataJSON  string `gorm:"column:data_json;type:text"`
	IsRead    bool   `gorm:"not null;default:false"`
	Seq       int64  `gorm:"autoIncrement;not null"`
	CreatedAt time.Time
}

func (notificationRow) TableName() string { return "notifications" }
