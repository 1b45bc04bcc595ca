package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storegoals/internal/cache"
	"storegoals/internal/domain"
	"storegoals/internal/goals"
	"storegoals/internal/store"
)

const monthLayout = "2006-01"

// weightSumTolerance is how far a weight map may drift from 100 before a
// warning is logged. Maps off by more are still accepted.
const weightSumTolerance = 0.01

// maxDayWeight caps a single day's share of the month, in percent.
const maxDayWeight = 100

func (s *Service) UpsertMonthlyGoal(ctx context.Context, req domain.MonthlyGoalRequest) (domain.MonthlyGoal, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.MonthlyGoal{}, err
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)

	year, month, err := parseMonth(req.Month)
	if err != nil {
		return domain.MonthlyGoal{}, err
	}
	if err := validateAmount("target_amount", req.TargetAmount); err != nil {
		return domain.MonthlyGoal{}, err
	}
	if req.StretchAmount.Valid {
		if err := validateAmount("stretch_amount", req.StretchAmount.Decimal); err != nil {
			return domain.MonthlyGoal{}, err
		}
	}
	if req.StretchAmount.Valid && req.StretchAmount.Decimal.LessThan(req.TargetAmount) {
		return domain.MonthlyGoal{}, fmt.Errorf("%w: stretch_amount must not be below target_amount", store.ErrInvalidInput)
	}

	weights, err := validateWeights(year, month, req.DailyWeights)
	if err != nil {
		return domain.MonthlyGoal{}, err
	}
	if len(weights) > 0 {
		sum := goals.DailyWeightMap(weights).Sum(goals.MonthRange(year, month))
		if math.Abs(sum-100) > weightSumTolerance {
			s.log.Warn("daily weights do not sum to 100", "store_id", req.StoreID, "owner_id", req.OwnerID, "month", req.Month, "sum", sum)
		}
	}

	stretch := req.StretchAmount
	if stretch.Valid {
		stretch.Decimal = stretch.Decimal.Round(2)
	}
	key := cache.MonthlyGoalKey(req.StoreID, req.OwnerID, year, int(month))
	s.invalidateGoal(ctx, key)

	actor, _ := ActorFromContext(ctx)
	saved, err := s.repo.UpsertMonthlyGoal(ctx, domain.MonthlyGoal{
		StoreID:       req.StoreID,
		OwnerID:       req.OwnerID,
		Year:          year,
		Month:         int(month),
		TargetAmount:  req.TargetAmount.Round(2),
		StretchAmount: stretch,
		DailyWeights:  weights,
		UpdatedBy:     actor.Username,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.MonthlyGoal{}, err
	}

	// A read racing the write may have cached the old row again.
	s.invalidateGoal(ctx, key)
	s.logAudit(ctx, saved.StoreID, "monthly_goal_upsert", "monthly_goal", saved.ID,
		fmt.Sprintf("owner=%s,month=%s,target=%s,stretch=%s,weights=%d", saved.OwnerID, req.Month, saved.TargetAmount, formatNullDecimal(saved.StretchAmount), len(weights)))

	return *saved, nil
}

func (s *Service) invalidateGoal(ctx context.Context, key string) {
	if err := s.goalCache.Delete(ctx, key); err != nil {
		s.log.Warn("failed to invalidate goal cache", "key", key, "error", err)
	}
}

func (s *Service) GetMonthlyGoal(ctx context.Context, storeID string, ownerID string, month string) (domain.MonthlyGoal, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	year, m, err := parseMonth(month)
	if err != nil {
		return domain.MonthlyGoal{}, err
	}

	goal, err := s.monthlyGoal(ctx, storeID, strings.TrimSpace(ownerID), year, m)
	if err != nil {
		return domain.MonthlyGoal{}, err
	}
	if goal == nil {
		return domain.MonthlyGoal{}, store.ErrNotFound
	}
	return *goal, nil
}

// monthlyGoal reads through the goal cache. A missing goal is (nil, nil).
func (s *Service) monthlyGoal(ctx context.Context, storeID string, ownerID string, year int, month time.Month) (*domain.MonthlyGoal, error) {
	key := cache.MonthlyGoalKey(storeID, ownerID, year, int(month))
	cached, ok, err := s.goalCache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.GoalCache("error")
		s.log.Warn("goal cache read failed", "key", key, "error", err)
	case ok:
		s.metrics.GoalCache("hit")
		return cached, nil
	default:
		s.metrics.GoalCache("miss")
	}

	goal, err := s.repo.GetMonthlyGoal(ctx, storeID, ownerID, year, int(month))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.goalCache.Set(ctx, key, goal, s.goalCacheTTL); err != nil {
		s.log.Warn("goal cache write failed", "key", key, "error", err)
	}
	return goal, nil
}

func (s *Service) UpsertWeeklyBonusGoal(ctx context.Context, req domain.WeeklyBonusGoalRequest) (domain.WeeklyBonusGoal, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.WeeklyBonusGoal{}, err
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)

	ref, err := goals.ParseCanonicalWeekRef(strings.TrimSpace(req.WeekRef))
	if err != nil {
		return domain.WeeklyBonusGoal{}, err
	}
	if err := validateAmount("target_amount", req.TargetAmount); err != nil {
		return domain.WeeklyBonusGoal{}, err
	}
	if err := validateAmount("stretch_amount", req.StretchAmount); err != nil {
		return domain.WeeklyBonusGoal{}, err
	}
	stretch := req.StretchAmount
	if stretch.IsZero() {
		stretch = req.TargetAmount
	}
	if stretch.LessThan(req.TargetAmount) {
		return domain.WeeklyBonusGoal{}, fmt.Errorf("%w: stretch_amount must not be below target_amount", store.ErrInvalidInput)
	}

	actor, _ := ActorFromContext(ctx)
	saved, err := s.repo.UpsertWeeklyBonusGoal(ctx, domain.WeeklyBonusGoal{
		StoreID:       req.StoreID,
		OwnerID:       req.OwnerID,
		WeekRef:       ref.String(),
		TargetAmount:  req.TargetAmount.Round(2),
		StretchAmount: stretch.Round(2),
		UpdatedBy:     actor.Username,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.WeeklyBonusGoal{}, err
	}

	s.logAudit(ctx, saved.StoreID, "weekly_bonus_upsert", "weekly_bonus_goal", saved.ID,
		fmt.Sprintf("owner=%s,week=%s,target=%s,stretch=%s", saved.OwnerID, saved.WeekRef, saved.TargetAmount, saved.StretchAmount))
	return *saved, nil
}

func (s *Service) GetWeeklyBonusGoal(ctx context.Context, storeID string, ownerID string, weekRef string) (domain.WeeklyBonusGoal, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	ref, err := goals.ParsePreferCanonical(strings.TrimSpace(weekRef))
	if err != nil {
		return domain.WeeklyBonusGoal{}, err
	}

	goal, err := s.weeklyBonus(ctx, storeID, strings.TrimSpace(ownerID), ref)
	if err != nil {
		return domain.WeeklyBonusGoal{}, err
	}
	if goal == nil {
		return domain.WeeklyBonusGoal{}, store.ErrNotFound
	}
	return *goal, nil
}

// weeklyBonus looks the goal up under its canonical ref, then under the
// legacy encoding for rows not migrated yet. A missing goal is (nil, nil).
func (s *Service) weeklyBonus(ctx context.Context, storeID string, ownerID string, ref goals.WeekRef) (*domain.WeeklyBonusGoal, error) {
	for _, key := range []string{ref.String(), ref.LegacyString()} {
		goal, err := s.repo.GetWeeklyBonusGoal(ctx, storeID, ownerID, key)
		if err == nil {
			return goal, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// MigrateLegacyWeekRefs rewrites stored bonus goals whose week reference is
// not in canonical WWYYYY form. References that read as valid in both
// encodings are left untouched and reported as skipped.
func (s *Service) MigrateLegacyWeekRefs(ctx context.Context) (domain.WeekRefMigrationResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.WeekRefMigrationResponse{}, err
	}

	all, err := s.repo.ListWeeklyBonusGoals(ctx)
	if err != nil {
		return domain.WeekRefMigrationResponse{}, err
	}

	resp := domain.WeekRefMigrationResponse{Scanned: len(all), Entries: make([]domain.WeekRefMigrationEntry, 0)}
	for _, goal := range all {
		canonical, canonicalErr := goals.ParseCanonicalWeekRef(goal.WeekRef)
		decoded, decodeErr := goals.ParseWeekRef(goal.WeekRef)

		switch {
		case canonicalErr == nil && (decodeErr != nil || decoded == canonical):
			continue
		case canonicalErr == nil:
			resp.Skipped++
			resp.Entries = append(resp.Entries, domain.WeekRefMigrationEntry{
				GoalID: goal.ID,
				From:   goal.WeekRef,
				Error:  fmt.Sprintf("ambiguous: week %d of %d or week %d of %d", canonical.Week, canonical.Year, decoded.Week, decoded.Year),
			})
			continue
		case decodeErr != nil:
			resp.Failed++
			resp.Entries = append(resp.Entries, domain.WeekRefMigrationEntry{GoalID: goal.ID, From: goal.WeekRef, Error: decodeErr.Error()})
			continue
		}

		to := decoded.String()
		entry := domain.WeekRefMigrationEntry{GoalID: goal.ID, From: goal.WeekRef, To: to}
		if err := s.repo.UpdateWeeklyBonusWeekRef(ctx, goal.ID, to); err != nil {
			if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrNotFound) {
				return resp, err
			}
			resp.Failed++
			entry.Error = err.Error()
			resp.Entries = append(resp.Entries, entry)
			continue
		}
		resp.Migrated++
		resp.Entries = append(resp.Entries, entry)
		s.logAudit(ctx, goal.StoreID, "weekly_bonus_week_ref_migrate", "weekly_bonus_goal", goal.ID, fmt.Sprintf("from=%s,to=%s", goal.WeekRef, to))
	}

	s.log.Info("week ref migration finished", "scanned", resp.Scanned, "migrated", resp.Migrated, "failed", resp.Failed, "skipped", resp.Skipped)
	return resp, nil
}

func parseMonth(value string) (int, time.Month, error) {
	parsed, err := time.Parse(monthLayout, strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month must be YYYY-MM", store.ErrInvalidInput)
	}
	return parsed.Year(), parsed.Month(), nil
}

func validateWeights(year int, month time.Month, weights map[string]float64) (map[string]float64, error) {
	if len(weights) == 0 {
		return nil, nil
	}
	r := goals.MonthRange(year, month)
	clean := make(map[string]float64, len(weights))
	for key, value := range weights {
		day, err := goals.ParseDate(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: weight key %q is not a YYYY-MM-DD date", store.ErrInvalidInput, key)
		}
		if !r.Contains(day) {
			return nil, fmt.Errorf("%w: weight key %s is outside %04d-%02d", store.ErrInvalidInput, key, year, int(month))
		}
		if math.IsNaN(value) || value < 0 || value > maxDayWeight {
			return nil, fmt.Errorf("%w: weight for %s must be between 0 and %g", store.ErrInvalidInput, key, float64(maxDayWeight))
		}
		clean[goals.FormatDate(day)] = value
	}
	return clean, nil
}

func formatNullDecimal(value decimal.NullDecimal) string {
	if !value.Valid {
		return "none"
	}
	return value.Decimal.String()
}
