/*
Package points provides the core points ledger engine.

PURPOSE:
  This package owns every balance field in the system. Users carry a
  two-pool wallet: allocation points they may give away this period and
  personal points they received and may redeem. Recognition, redemption
  and achievement flows never touch those fields directly; they route
  every change through the Ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - UserID / OrgID: Type-safe identifiers
  - Role: Closed set of organization roles with precedence
  - Pool: Which half of the wallet a movement touches
  - Balance: The two-pool wallet embedded in a User
  - Transaction: Immutable audit entry for every wallet movement

DESIGN PRINCIPLES:
  1. Atomic deltas: pools change through store-side increments, never
     through caller-side read-modify-write
  2. Non-negative: neither pool can go below zero
  3. Auditability: every movement leaves a Transaction with its reference
  4. Single mutation point: only Ledger writes wallet fields

SEE ALSO:
  - ledger.go: The Wallet Ledger
  - store.go: Persistence contracts
  - errors.go: Error taxonomy shared by every domain package
*/
package points

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type OrgID string
type TransactionID string

// =============================================================================
// ROLE - Closed set, ordered by precedence
// =============================================================================

// Role is an organization role. Higher values outrank lower ones.
type Role uint8

const (
	RoleUser Role = iota
	RoleEmployee
	RoleSupervisor
	RoleManager
	RoleAdmin

	roleCount
)

// RoleCount is the number of defined roles; tables keyed by Role use it as length.
const RoleCount = int(roleCount)

var roleNames = [roleCount]string{"USER", "EMPLOYEE", "SUPERVISOR", "MANAGER", "ADMIN"}

// Roles lists every role from lowest to highest precedence.
func Roles() []Role {
	out := make([]Role, 0, RoleCount)
	for r := RoleUser; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}

func (r Role) String() string {
	if r.Valid() {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) Valid() bool { return r < roleCount }

// AtLeast reports whether r outranks or equals min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ParseRole accepts role names case-insensitively ("admin", "ADMIN").
func ParseRole(s string) (Role, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range roleNames {
		if name == upper {
			return Role(i), nil
		}
	}
	return 0, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// =============================================================================
// POOL - Which wallet field a movement touches
// =============================================================================

type Pool string

const (
	PoolAllocation Pool = "allocation"
	PoolPersonal   Pool = "personal"
)

func (p Pool) Valid() bool { return p == PoolAllocation || p == PoolPersonal }

// AwardKind says why points are being awarded. Allocation awards SET the
// allocation pool (periodic refill); every other kind is an additive credit
// to the personal pool.
type AwardKind string

const (
	AwardAllocation  AwardKind = "MONTHLY_ALLOCATION"
	AwardPersonal    AwardKind = "PERSONAL"
	AwardRecognition AwardKind = "RECOGNITION"
	AwardAchievement AwardKind = "ACHIEVEMENT"
)

func (k AwardKind) Valid() bool {
	switch k {
	case AwardAllocation, AwardPersonal, AwardRecognition, AwardAchievement:
		return true
	}
	return false
}

// Pool returns the wallet field this kind of award targets.
func (k AwardKind) Pool() Pool {
	if k == AwardAllocation {
		return PoolAllocation
	}
	return PoolPersonal
}

// =============================================================================
// BALANCE - Two-pool wallet
// =============================================================================

type Balance struct {
	Allocation int64 `json:"allocation"`
	Personal   int64 `json:"personal"`
}

// Of returns the value of the given pool.
func (b Balance) Of(p Pool) int64 {
	if p == PoolAllocation {
		return b.Allocation
	}
	return b.Personal
}

// Total is allocation + personal; used by conservation checks.
func (b Balance) Total() int64 { return b.Allocation + b.Personal }

// =============================================================================
// USER / ORGANIZATION
// =============================================================================

type User struct {
	ID             UserID    `json:"id"`
	OrganizationID OrgID     `json:"organization_id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Department     string    `json:"department,omitempty"`
	Role           Role      `json:"role"`
	Wallet         Balance   `json:"wallet"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Organization struct {
	ID        OrgID     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// TRANSACTION - Immutable record of a wallet movement
// =============================================================================

type TransactionType string

const (
	TxMonthlyAllocation   TransactionType = "monthly_allocation"
	TxRecognitionSent     TransactionType = "recognition_sent"
	TxRecognitionReceived TransactionType = "recognition_received"
	TxAchievement         TransactionType = "achievement"
	TxRedemption          TransactionType = "redemption"
	TxCredit              TransactionType = "credit"
	TxDebit               TransactionType = "debit"
)

type Transaction struct {
	ID           TransactionID   `json:"id"`
	UserID       UserID          `json:"user_id"`
	Pool         Pool            `json:"pool"`
	Type         TransactionType `json:"type"`
	Delta        int64           `json:"delta"`
	BalanceAfter int64           `json:"balance_after"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// =============================================================================
// NOTIFICATION - Fire-and-forget event for a user
// =============================================================================

type NotificationKind string

const (
	NotifyPointsAwarded       NotificationKind = "POINTS_AWARDED"
	NotifyPointsDeducted      NotificationKind = "POINTS_DEDUCTED"
	NotifyRecognitionReceived NotificationKind = "RECOGNITION_RECEIVED"
	NotifyAchievementUnlocked NotificationKind = "ACHIEVEMENT_UNLOCKED"
	NotifyProgressMilestone   NotificationKind = "PROGRESS_MILESTONE"
	NotifyRewardRedeemed      NotificationKind = "REWARD_REDEEMED"
	NotifySuggestionReviewed  NotificationKind = "SUGGESTION_REVIEWED"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    UserID           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// DataJSON encodes Data for stores that keep it as a text column.
func (n Notification) DataJSON() string {
	if len(n.Data) == 0 {
		return ""
	}
	b, err := json.Marshal(n.Data)
	if err != nil {
		return ""
	}
	return string(b)
}
