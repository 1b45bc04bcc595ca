package service

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storegoals/internal/domain"
	"storegoals/internal/goals"
)

func (s *Service) CurrentWeek(today time.Time) domain.WeekResponse {
	ref := goals.CurrentWeekReference(s.localDay(today))
	return toWeekResponse(ref, ref.Range())
}

// ResolveWeek accepts both encodings, canonical first, so every ref returned
// by CurrentWeek resolves back to the same week.
func (s *Service) ResolveWeek(weekRef string) (domain.WeekResponse, error) {
	ref, err := goals.ParsePreferCanonical(strings.TrimSpace(weekRef))
	if err != nil {
		return domain.WeekResponse{}, err
	}
	return toWeekResponse(ref, ref.Range()), nil
}

// WeeklyProgress evaluates one owner (or the whole store when ownerID is
// empty) against the monthly goal of the month the week starts in and the
// week's bonus goal. An empty weekRef selects the week containing today.
func (s *Service) WeeklyProgress(ctx context.Context, storeID string, ownerID string, weekRef string, today time.Time) (domain.WeeklyProgressResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	ownerID = strings.TrimSpace(ownerID)
	localToday := s.localDay(today)

	ref, err := s.weekRefOrCurrent(weekRef, localToday)
	if err != nil {
		return domain.WeeklyProgressResponse{}, err
	}

	resp, err := s.weeklyProgress(ctx, storeID, ownerID, ref, localToday)
	if err != nil {
		return domain.WeeklyProgressResponse{}, err
	}
	s.metrics.ProgressReport("weekly")
	return resp, nil
}

func (s *Service) weeklyProgress(ctx context.Context, storeID string, ownerID string, ref goals.WeekRef, localToday time.Time) (domain.WeeklyProgressResponse, error) {
	week := ref.Range()

	monthly, err := s.monthlyGoal(ctx, storeID, ownerID, week.Start.Year(), week.Start.Month())
	if err != nil {
		return domain.WeeklyProgressResponse{}, err
	}
	bonus, err := s.weeklyBonus(ctx, storeID, ownerID, ref)
	if err != nil {
		return domain.WeeklyProgressResponse{}, err
	}
	sales, err := s.salesBetween(ctx, storeID, ownerID, week)
	if err != nil {
		return domain.WeeklyProgressResponse{}, err
	}

	report := goals.EvaluateWeek(goals.WeekInput{
		MonthlyGoal: toMonthlyInput(monthly),
		WeeklyBonus: toBonusInput(bonus),
		SalesInWeek: saleAmounts(sales),
		WeekRef:     ref,
		Week:        week,
		Today:       localToday,
	})

	resp := toWeeklyResponse(report)
	resp.StoreID = storeID
	resp.OwnerID = ownerID
	resp.Today = goals.FormatDate(localToday)
	resp.HasMonthlyGoal = monthly != nil
	resp.HasWeeklyBonus = bonus != nil
	resp.SalesCount = len(sales)
	return resp, nil
}

// MonthlyProgress evaluates a calendar month; an empty month selects the
// month containing today.
func (s *Service) MonthlyProgress(ctx context.Context, storeID string, ownerID string, month string, today time.Time) (domain.MonthlyProgressResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	ownerID = strings.TrimSpace(ownerID)
	localToday := s.localDay(today)

	year, m := localToday.Year(), localToday.Month()
	if strings.TrimSpace(month) != "" {
		var err error
		year, m, err = parseMonth(month)
		if err != nil {
			return domain.MonthlyProgressResponse{}, err
		}
	}

	goal, err := s.monthlyGoal(ctx, storeID, ownerID, year, m)
	if err != nil {
		return domain.MonthlyProgressResponse{}, err
	}
	sales, err := s.salesBetween(ctx, storeID, ownerID, goals.MonthRange(year, m))
	if err != nil {
		return domain.MonthlyProgressResponse{}, err
	}

	report := goals.EvaluateMonth(goals.MonthInput{
		MonthlyGoal: toMonthlyInput(goal),
		Sales:       saleAmounts(sales),
		Year:        year,
		Month:       m,
		Today:       localToday,
	})
	s.metrics.ProgressReport("monthly")

	return domain.MonthlyProgressResponse{
		StoreID:                    storeID,
		OwnerID:                    ownerID,
		Month:                      report.Month,
		Today:                      goals.FormatDate(localToday),
		TargetAmount:               round2(report.TargetAmount),
		StretchAmount:              round2(report.StretchAmount),
		WeightsTotal:               round2(report.WeightsTotal),
		Realized:                   round2(report.Realized),
		ProgressPct:                round2(report.ProgressPct),
		StretchProgressPct:         round2(report.StretchProgressPct),
		DaysElapsed:                report.DaysElapsed,
		DaysRemaining:              report.DaysRemaining,
		DailyAverage:               round2(report.DailyAverage),
		ProjectedEndOfMonth:        round2(report.ProjectedEndOfMonth),
		ExpectedByToday:            round2(report.ExpectedByToday),
		Status:                     string(report.Status),
		StatusByToday:              string(report.StatusByToday),
		Deficit:                    round2(report.Deficit),
		Surplus:                    round2(report.Surplus),
		RequiredDailyPaceToCatchUp: round2(report.RequiredDailyPaceToCatchUp),
		HasMonthlyGoal:             goal != nil,
		SalesCount:                 len(sales),
	}, nil
}

// TeamProgress builds the weekly report of every owner holding a monthly
// goal for the month the week starts in, best progress first.
func (s *Service) TeamProgress(ctx context.Context, storeID string, weekRef string, today time.Time) (domain.TeamProgressResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	localToday := s.localDay(today)

	ref, err := s.weekRefOrCurrent(weekRef, localToday)
	if err != nil {
		return domain.TeamProgressResponse{}, err
	}
	weekStart := ref.Range().Start

	monthlyGoals, err := s.repo.ListMonthlyGoals(ctx, storeID, weekStart.Year(), int(weekStart.Month()))
	if err != nil {
		return domain.TeamProgressResponse{}, err
	}
	owners := make([]string, 0, len(monthlyGoals))
	for _, goal := range monthlyGoals {
		if goal.OwnerID != "" {
			owners = append(owners, goal.OwnerID)
		}
	}

	members := make([]domain.WeeklyProgressResponse, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.teamConcurrency)
	for i, owner := range owners {
		g.Go(func() error {
			resp, err := s.weeklyProgress(gctx, storeID, owner, ref, localToday)
			if err != nil {
				return err
			}
			members[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.TeamProgressResponse{}, err
	}

	slices.SortStableFunc(members, func(a, b domain.WeeklyProgressResponse) int {
		if c := b.ProgressPct.Cmp(a.ProgressPct); c != 0 {
			return c
		}
		return cmp.Compare(a.OwnerID, b.OwnerID)
	})
	s.metrics.ProgressReport("team")

	return domain.TeamProgressResponse{
		StoreID: storeID,
		WeekRef: ref.String(),
		Today:   goals.FormatDate(localToday),
		Members: members,
	}, nil
}

func (s *Service) weekRefOrCurrent(weekRef string, localToday time.Time) (goals.WeekRef, error) {
	weekRef = strings.TrimSpace(weekRef)
	if weekRef == "" {
		return goals.CurrentWeekReference(localToday), nil
	}
	return goals.ParsePreferCanonical(weekRef)
}

func toMonthlyInput(goal *domain.MonthlyGoal) *goals.MonthlyGoal {
	if goal == nil {
		return nil
	}
	in := &goals.MonthlyGoal{
		TargetAmount: goal.TargetAmount.InexactFloat64(),
		DailyWeights: goals.DailyWeightMap(goal.DailyWeights),
	}
	if goal.StretchAmount.Valid {
		in.StretchAmount = goal.StretchAmount.Decimal.InexactFloat64()
	}
	return in
}

func toBonusInput(goal *domain.WeeklyBonusGoal) *goals.WeeklyBonusGoal {
	if goal == nil {
		return nil
	}
	return &goals.WeeklyBonusGoal{
		TargetAmount:  goal.TargetAmount.InexactFloat64(),
		StretchAmount: goal.StretchAmount.InexactFloat64(),
	}
}

func toWeekResponse(ref goals.WeekRef, r goals.DateRange) domain.WeekResponse {
	return domain.WeekResponse{
		WeekRef: ref.String(),
		Week:    ref.Week,
		Year:    ref.Year,
		Start:   goals.FormatDate(r.Start),
		End:     goals.FormatDate(r.End),
	}
}

func toWeeklyResponse(report goals.ProgressReport) domain.WeeklyProgressResponse {
	return domain.WeeklyProgressResponse{
		WeekRef:                    report.WeekRef,
		WeekStart:                  goals.FormatDate(report.Week.Start),
		WeekEnd:                    goals.FormatDate(report.Week.End),
		RequiredWeeklyTarget:       round2(report.RequiredWeeklyTarget),
		StretchWeeklyTarget:        round2(report.StretchWeeklyTarget),
		BonusWeeklyTarget:          optionalRound2(report.BonusWeeklyTarget),
		BonusStretchTarget:         optionalRound2(report.BonusStretchTarget),
		EffectiveTarget:            round2(report.EffectiveTarget),
		EffectiveStretch:           round2(report.EffectiveStretch),
		Realized:                   round2(report.Realized),
		ProgressPct:                round2(report.ProgressPct),
		StretchProgressPct:         round2(report.StretchProgressPct),
		DaysElapsed:                report.DaysElapsed,
		DaysRemaining:              report.DaysRemaining,
		DailyAverage:               round2(report.DailyAverage),
		ProjectedEndOfWeek:         round2(report.ProjectedEndOfWeek),
		ExpectedByToday:            round2(report.ExpectedByToday),
		Status:                     string(report.Status),
		StatusByToday:              string(report.StatusByToday),
		Deficit:                    round2(report.Deficit),
		Surplus:                    round2(report.Surplus),
		RequiredDailyPaceToCatchUp: round2(report.RequiredDailyPaceToCatchUp),
	}
}

// round2 rounds a computed amount or percentage to two decimal places for
// the wire. Non-finite values become zero.
func round2(value float64) decimal.Decimal {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(value).Round(2)
}

func optionalRound2(value *float64) *decimal.Decimal {
	if value == nil {
		return nil
	}
	rounded := round2(*value)
	return &rounded
}
