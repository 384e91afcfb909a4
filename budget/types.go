/*
Package budget holds per-organization recognition budget configuration.

PURPOSE:
  Each organization owns exactly one Configuration: which recognition
  categories are active (and their default/max points), how many points
  each role receives per month and may give per recognition, and a yearly
  budget ceiling used for capacity planning.

FIXED TABLES:
  Categories and roles are closed sets known at compile time, so the
  configuration keeps them in arrays indexed by the enum instead of
  string-keyed maps. An unconfigured entry is the zero value: an inactive
  category, a role with no monthly points.

SEE ALSO:
  - service.go: Validation, projection and monthly distribution
  - points/types.go: Role
*/
package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// CATEGORY - Closed set of recognition categories
// =============================================================================

type Category uint8

const (
	CategoryTeamwork Category = iota
	CategoryInnovation
	CategoryLeadership
	CategoryExcellence
	CategoryCoreValues

	categoryCount
)

const CategoryCount = int(categoryCount)

var categoryNames = [categoryCount]string{"TEAMWORK", "INNOVATION", "LEADERSHIP", "EXCELLENCE", "CORE_VALUES"}

// builtinDefaultPoints applies when a category setting leaves DefaultPoints at 0.
var builtinDefaultPoints = [categoryCount]int64{10, 15, 20, 15, 10}

func Categories() []Category {
	out := make([]Category, 0, CategoryCount)
	for c := CategoryTeamwork; c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

func (c Category) Valid() bool { return c < categoryCount }

func (c Category) String() string {
	if c.Valid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// BuiltinDefaultPoints is the category's default when no organization
// override is configured.
func (c Category) BuiltinDefaultPoints() int64 {
	if !c.Valid() {
		return 0
	}
	return builtinDefaultPoints[c]
}

func ParseCategory(s string) (Category, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == upper {
			return Category(i), nil
		}
	}
	return 0, points.Invalid("category", "unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

type CategorySetting struct {
	IsActive bool `json:"is_active" yaml:"is_active"`
	// DefaultPoints is used when a recognition carries no explicit points.
	// Zero means "not configured" and resolves to the category's builtin
	// default, so a zero default cannot be configured; a sender who wants a
	// zero-point recognition passes 0 explicitly.
	DefaultPoints int64 `json:"default_points" yaml:"default_points"`
	// MaxPoints caps a single recognition in this category. Zero means no cap.
	MaxPoints int64 `json:"max_points" yaml:"max_points"`
}

type RoleAllocation struct {
	PointsPerMonth          int64 `json:"points_per_month" yaml:"points_per_month"`
	MaxPointsPerRecognition int64 `json:"max_points_per_recognition" yaml:"max_points_per_recognition"`
}

type Configuration struct {
	OrganizationID     points.OrgID
	CategorySettings   [categoryCount]CategorySetting
	MonthlyAllocations [points.RoleCount]RoleAllocation
	YearlyBudget       decimal.Decimal
	UpdatedAt          time.Time
}

// Category returns the setting for c.
func (cfg Configuration) Category(c Category) CategorySetting {
	if !c.Valid() {
		return CategorySetting{}
	}
	return cfg.CategorySettings[c]
}

// Allocation returns the monthly allocation for r.
func (cfg Configuration) Allocation(r points.Role) RoleAllocation {
	if !r.Valid() {
		return RoleAllocation{}
	}
	return cfg.MonthlyAllocations[r]
}

// DefaultPoints resolves the points a recognition in c carries when the
// sender does not specify any. A configured value of zero is treated as
// unset and yields c.BuiltinDefaultPoints().
func (cfg Configuration) DefaultPoints(c Category) int64 {
	if d := cfg.Category(c).DefaultPoints; d > 0 {
		return d
	}
	return c.BuiltinDefaultPoints()
}

// NewConfiguration is the lazily created record: nothing active, no
// allocations, zero budget.
func NewConfiguration(org points.OrgID) Configuration {
	return Configuration{OrganizationID: org, YearlyBudget: decimal.Zero}
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// GetConfiguration returns the organization's configuration, creating
	// the empty record on first access.
	GetConfiguration(ctx context.Context, org points.OrgID) (Configuration, error)

	UpdateCategorySetting(ctx context.Context, org points.OrgID, c Category, s CategorySetting) error
	UpdateRoleAllocation(ctx context.Context, org points.OrgID, r points.Role, a RoleAllocation) error
	UpdateYearlyBudget(ctx context.Context, org points.OrgID, amount decimal.Decimal) error
}
