package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord is an immutable ledger row. OwnerID is the collaborator the
// sale is credited to.
type SalesRecord struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	OwnerID    string          `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
	ExternalID string          `json:"external_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SaleCreateRequest struct {
	StoreID    string          `json:"store_id"`
	OwnerID    string          `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
}

type SaleResponse struct {
	Sale      SalesRecord `json:"sale"`
	Duplicate bool        `json:"duplicate"`
}

type SaleListResponse struct {
	Sales []SalesRecord     `json:"sales"`
	Total decimal.Decimal   `json:"total"`
	Count int               `json:"count"`
	Range map[string]string `json:"range"`
}

// MonthlyGoal is scoped to a store and optionally to one owner. An empty
// OwnerID is the store-wide goal.
type MonthlyGoal struct {
	ID            string              `json:"id"`
	StoreID       string              `json:"store_id"`
	OwnerID       string              `json:"owner_id"`
	Year          int                 `json:"year"`
	Month         int                 `json:"month"`
	TargetAmount  decimal.Decimal     `json:"target_amount"`
	StretchAmount decimal.NullDecimal `json:"stretch_amount"`
	DailyWeights  map[string]float64  `json:"daily_weights"`
	UpdatedBy     string              `json:"updated_by"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type MonthlyGoalRequest struct {
	StoreID       string              `json:"store_id"`
	OwnerID       string              `json:"owner_id"`
	Month         string              `json:"month"`
	TargetAmount  decimal.Decimal     `json:"target_amount"`
	StretchAmount decimal.NullDecimal `json:"stretch_amount"`
	DailyWeights  map[string]float64  `json:"daily_weights"`
}

type WeeklyBonusGoal struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	OwnerID       string          `json:"owner_id"`
	WeekRef       string          `json:"week_ref"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	StretchAmount decimal.Decimal `json:"stretch_amount"`
	UpdatedBy     string          `json:"updated_by"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type WeeklyBonusGoalRequest struct {
	StoreID       string          `json:"store_id"`
	OwnerID       string          `json:"owner_id"`
	WeekRef       string          `json:"week_ref"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	StretchAmount decimal.Decimal `json:"stretch_amount"`
}

type WeekRefMigrationEntry struct {
	GoalID string `json:"goal_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Error  string `json:"error,omitempty"`
}

type WeekRefMigrationResponse struct {
	Scanned  int                     `json:"scanned"`
	Migrated int                     `json:"migrated"`
	Failed   int                     `json:"failed"`
	Skipped  int                     `json:"skipped"`
	Entries  []WeekRefMigrationEntry `json:"entries"`
}

type WeekResponse struct {
	WeekRef string `json:"week_ref"`
	Week    int    `json:"week"`
	Year    int    `json:"year"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// WeeklyProgressResponse is the wire form of a weekly progress report. Money
// is rounded to cents, percentages to two decimals.
type WeeklyProgressResponse struct {
	StoreID                    string           `json:"store_id"`
	OwnerID                    string           `json:"owner_id"`
	WeekRef                    string           `json:"week_ref"`
	WeekStart                  string           `json:"week_start"`
	WeekEnd                    string           `json:"week_end"`
	Today                      string           `json:"today"`
	RequiredWeeklyTarget       decimal.Decimal  `json:"required_weekly_target"`
	StretchWeeklyTarget        decimal.Decimal  `json:"stretch_weekly_target"`
	BonusWeeklyTarget          *decimal.Decimal `json:"bonus_weekly_target"`
	BonusStretchTarget         *decimal.Decimal `json:"bonus_stretch_target"`
	EffectiveTarget            decimal.Decimal  `json:"effective_target"`
	EffectiveStretch           decimal.Decimal  `json:"effective_stretch"`
	Realized                   decimal.Decimal  `json:"realized"`
	ProgressPct                decimal.Decimal  `json:"progress_pct"`
	StretchProgressPct         decimal.Decimal  `json:"stretch_progress_pct"`
	DaysElapsed                int              `json:"days_elapsed"`
	DaysRemaining              int              `json:"days_remaining"`
	DailyAverage               decimal.Decimal  `json:"daily_average"`
	ProjectedEndOfWeek         decimal.Decimal  `json:"projected_end_of_week"`
	ExpectedByToday            decimal.Decimal  `json:"expected_by_today"`
	Status                     string           `json:"status"`
	StatusByToday              string           `json:"status_by_today"`
	Deficit                    decimal.Decimal  `json:"deficit"`
	Surplus                    decimal.Decimal  `json:"surplus"`
	RequiredDailyPaceToCatchUp decimal.Decimal  `json:"required_daily_pace_to_catch_up"`
	HasMonthlyGoal             bool             `json:"has_monthly_goal"`
	HasWeeklyBonus             bool             `json:"has_weekly_bonus"`
	SalesCount                 int              `json:"sales_count"`
}

type MonthlyProgressResponse struct {
	StoreID                    string          `json:"store_id"`
	OwnerID                    string          `json:"owner_id"`
	Month                      string          `json:"month"`
	Today                      string          `json:"today"`
	TargetAmount               decimal.Decimal `json:"target_amount"`
	StretchAmount              decimal.Decimal `json:"stretch_amount"`
	WeightsTotal               decimal.Decimal `json:"weights_total"`
	Realized                   decimal.Decimal `json:"realized"`
	ProgressPct                decimal.Decimal `json:"progress_pct"`
	StretchProgressPct         decimal.Decimal `json:"stretch_progress_pct"`
	DaysElapsed                int             `json:"days_elapsed"`
	DaysRemaining              int             `json:"days_remaining"`
	DailyAverage               decimal.Decimal `json:"daily_average"`
	ProjectedEndOfMonth        decimal.Decimal `json:"projected_end_of_month"`
	ExpectedByToday            decimal.Decimal `json:"expected_by_today"`
	Status                     string          `json:"status"`
	StatusByToday              string          `json:"status_by_today"`
	Deficit                    decimal.Decimal `json:"deficit"`
	Surplus                    decimal.Decimal `json:"surplus"`
	RequiredDailyPaceToCatchUp decimal.Decimal `json:"required_daily_pace_to_catch_up"`
	HasMonthlyGoal             bool            `json:"has_monthly_goal"`
	SalesCount                 int             `json:"sales_count"`
}

type TeamProgressResponse struct {
	StoreID string                   `json:"store_id"`
	WeekRef string                   `json:"week_ref"`
	Today   string                   `json:"today"`
	Members []WeeklyProgressResponse `json:"members"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
