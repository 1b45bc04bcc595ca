package goals

// DailyWeightMap maps a YYYY-MM-DD date to its percentage share of a monthly
// target. An empty map means a uniform split across the month.
type DailyWeightMap map[string]float64

// Sum returns the total weight of the dates that fall inside r.
func (w DailyWeightMap) Sum(r DateRange) float64 {
	total := 0.0
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		total += w[FormatDate(day)]
	}
	return total
}

// Distribute returns the part of monthlyAmount that belongs to the days of r.
//
// With weights present every day contributes monthlyAmount*weight/100 and days
// missing from the map contribute nothing. Without weights the amount is split
// evenly over the days of r.Start's month, also for ranges that run into the
// next month.
func Distribute(monthlyAmount float64, weights DailyWeightMap, r DateRange) float64 {
	r = DateRange{Start: civilDate(r.Start), End: civilDate(r.End)}
	days := r.Days()
	if days == 0 || monthlyAmount == 0 {
		return 0
	}

	if len(weights) == 0 {
		daily := monthlyAmount / float64(DaysInMonth(r.Start.Year(), r.Start.Month()))
		return daily * float64(days)
	}

	total := 0.0
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		total += monthlyAmount * weights[FormatDate(day)] / 100
	}
	return total
}
