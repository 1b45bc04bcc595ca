package goals

import (
	"math"
	"time"
)

type Status string

const (
	StatusAhead   Status = "ahead"
	StatusOnTrack Status = "on-track"
	StatusBehind  Status = "behind"
)

const (
	aheadFactor  = 1.1
	behindFactor = 0.9
)

// Classify compares actual against expected with a 10% band on either side.
// A non-positive expectation cannot be judged and reports StatusOnTrack.
func Classify(actual float64, expected float64) Status {
	if expected <= 0 {
		return StatusOnTrack
	}
	switch {
	case actual >= expected*aheadFactor:
		return StatusAhead
	case actual < expected*behindFactor:
		return StatusBehind
	default:
		return StatusOnTrack
	}
}

type MonthlyGoal struct {
	TargetAmount  float64
	StretchAmount float64
	DailyWeights  DailyWeightMap
}

type WeeklyBonusGoal struct {
	TargetAmount  float64
	StretchAmount float64
}

type WeekInput struct {
	MonthlyGoal *MonthlyGoal
	WeeklyBonus *WeeklyBonusGoal
	SalesInWeek []float64
	WeekRef     WeekRef
	Week        DateRange
	Today       time.Time
}

type ProgressReport struct {
	WeekRef                    string    `json:"week_ref"`
	Week                       DateRange `json:"week"`
	RequiredWeeklyTarget       float64   `json:"required_weekly_target"`
	StretchWeeklyTarget        float64   `json:"stretch_weekly_target"`
	BonusWeeklyTarget          *float64  `json:"bonus_weekly_target"`
	BonusStretchTarget         *float64  `json:"bonus_stretch_target"`
	EffectiveTarget            float64   `json:"effective_target"`
	EffectiveStretch           float64   `json:"effective_stretch"`
	Realized                   float64   `json:"realized"`
	ProgressPct                float64   `json:"progress_pct"`
	StretchProgressPct         float64   `json:"stretch_progress_pct"`
	DaysElapsed                int       `json:"days_elapsed"`
	DaysRemaining              int       `json:"days_remaining"`
	DailyAverage               float64   `json:"daily_average"`
	ProjectedEndOfWeek         float64   `json:"projected_end_of_week"`
	ExpectedByToday            float64   `json:"expected_by_today"`
	Status                     Status    `json:"status"`
	StatusByToday              Status    `json:"status_by_today"`
	Deficit                    float64   `json:"deficit"`
	Surplus                    float64   `json:"surplus"`
	RequiredDailyPaceToCatchUp float64   `json:"required_daily_pace_to_catch_up"`
}

// EvaluateWeek builds the weekly progress report. Missing goals and empty
// ledgers produce zero amounts rather than errors.
func EvaluateWeek(in WeekInput) ProgressReport {
	week := DateRange{Start: civilDate(in.Week.Start), End: civilDate(in.Week.End)}
	today := civilDate(in.Today)
	weekDays := week.Days()

	elapsed := clampInt(daysBetween(week.Start, today)+1, 0, weekDays)

	report := ProgressReport{
		WeekRef:       in.WeekRef.String(),
		Week:          week,
		DaysElapsed:   elapsed,
		DaysRemaining: weekDays - elapsed,
	}

	var weights DailyWeightMap
	var monthlyTarget float64
	if in.MonthlyGoal != nil {
		weights = in.MonthlyGoal.DailyWeights
		monthlyTarget = in.MonthlyGoal.TargetAmount
		report.RequiredWeeklyTarget = Distribute(monthlyTarget, weights, week)
		report.StretchWeeklyTarget = Distribute(in.MonthlyGoal.StretchAmount, weights, week)
	}

	report.EffectiveTarget = report.RequiredWeeklyTarget
	report.EffectiveStretch = report.StretchWeeklyTarget
	if in.WeeklyBonus != nil {
		target, stretch := in.WeeklyBonus.TargetAmount, in.WeeklyBonus.StretchAmount
		report.BonusWeeklyTarget = &target
		report.BonusStretchTarget = &stretch
		report.EffectiveTarget = math.Max(report.EffectiveTarget, target)
		report.EffectiveStretch = math.Max(report.EffectiveStretch, stretch)
	}

	for _, amount := range in.SalesInWeek {
		report.Realized += amount
	}

	if in.MonthlyGoal != nil {
		soFar := DateRange{Start: week.Start, End: minTime(today, week.End)}
		report.ExpectedByToday = Distribute(monthlyTarget, weights, soFar)
	}

	if elapsed > 0 {
		report.DailyAverage = report.Realized / float64(elapsed)
	}
	report.ProjectedEndOfWeek = report.DailyAverage * float64(weekDays)

	report.ProgressPct = percent(report.Realized, report.RequiredWeeklyTarget)
	report.StretchProgressPct = percent(report.Realized, report.StretchWeeklyTarget)

	report.StatusByToday = Classify(report.Realized, report.ExpectedByToday)
	report.Status = Classify(report.ProjectedEndOfWeek, report.EffectiveTarget)

	report.Deficit = math.Max(0, report.EffectiveTarget-report.Realized)
	report.Surplus = math.Max(0, report.Realized-report.EffectiveTarget)
	if report.DaysRemaining > 0 {
		report.RequiredDailyPaceToCatchUp = report.Deficit / float64(report.DaysRemaining)
	}
	return report
}

type MonthInput struct {
	MonthlyGoal *MonthlyGoal
	Sales       []float64
	Year        int
	Month       time.Month
	Today       time.Time
}

type MonthProgressReport struct {
	Month                      string    `json:"month"`
	Period                     DateRange `json:"period"`
	TargetAmount               float64   `json:"target_amount"`
	StretchAmount              float64   `json:"stretch_amount"`
	WeightsTotal               float64   `json:"weights_total"`
	Realized                   float64   `json:"realized"`
	ProgressPct                float64   `json:"progress_pct"`
	StretchProgressPct         float64   `json:"stretch_progress_pct"`
	DaysElapsed                int       `json:"days_elapsed"`
	DaysRemaining              int       `json:"days_remaining"`
	DailyAverage               float64   `json:"daily_average"`
	ProjectedEndOfMonth        float64   `json:"projected_end_of_month"`
	ExpectedByToday            float64   `json:"expected_by_today"`
	Status                     Status    `json:"status"`
	StatusByToday              Status    `json:"status_by_today"`
	Deficit                    float64   `json:"deficit"`
	Surplus                    float64   `json:"surplus"`
	RequiredDailyPaceToCatchUp float64   `json:"required_daily_pace_to_catch_up"`
}

// EvaluateMonth is the month-level counterpart of EvaluateWeek, projecting the
// running daily average over the whole month.
func EvaluateMonth(in MonthInput) MonthProgressReport {
	period := MonthRange(in.Year, in.Month)
	today := civilDate(in.Today)
	monthDays := period.Days()
	elapsed := clampInt(daysBetween(period.Start, today)+1, 0, monthDays)

	report := MonthProgressReport{
		Month:         period.Start.Format("2006-01"),
		Period:        period,
		DaysElapsed:   elapsed,
		DaysRemaining: monthDays - elapsed,
	}

	if in.MonthlyGoal != nil {
		report.TargetAmount = in.MonthlyGoal.TargetAmount
		report.StretchAmount = in.MonthlyGoal.StretchAmount
		report.WeightsTotal = in.MonthlyGoal.DailyWeights.Sum(period)
		soFar := DateRange{Start: period.Start, End: minTime(today, period.End)}
		report.ExpectedByToday = Distribute(report.TargetAmount, in.MonthlyGoal.DailyWeights, soFar)
	}

	for _, amount := range in.Sales {
		report.Realized += amount
	}
	if elapsed > 0 {
		report.DailyAverage = report.Realized / float64(elapsed)
	}
	report.ProjectedEndOfMonth = report.DailyAverage * float64(monthDays)

	report.ProgressPct = percent(report.Realized, report.TargetAmount)
	report.StretchProgressPct = percent(report.Realized, report.StretchAmount)
	report.StatusByToday = Classify(report.Realized, report.ExpectedByToday)
	report.Status = Classify(report.ProjectedEndOfMonth, report.TargetAmount)

	report.Deficit = math.Max(0, report.TargetAmount-report.Realized)
	report.Surplus = math.Max(0, report.Realized-report.TargetAmount)
	if report.DaysRemaining > 0 {
		report.RequiredDailyPaceToCatchUp = report.Deficit / float64(report.DaysRemaining)
	}
	return report
}

func percent(value float64, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return value / base * 100
}

func clampInt(val int, minVal int, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func minTime(a time.Time, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
