package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storegoals/internal/cache"
	"storegoals/internal/domain"
	"storegoals/internal/goals"
	"storegoals/internal/store"
	"storegoals/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	return New(repo, cache.NewMemoryGoalCache(), Config{DefaultStoreID: "main-store"}), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "ana", Role: domain.RoleStaff})
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func expectAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", name, want, got)
	}
}

func recordSale(t *testing.T, svc *Service, owner string, amount string, when string) {
	t.Helper()
	occurred := at(t, when)
	if _, err := svc.RecordSale(staffCtx(), domain.SaleCreateRequest{OwnerID: owner, Amount: dec(amount), OccurredAt: &occurred}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
}

func upsertMonthly(t *testing.T, svc *Service, owner string, month string, target string) {
	t.Helper()
	if _, err := svc.UpsertMonthlyGoal(adminCtx(), domain.MonthlyGoalRequest{OwnerID: owner, Month: month, TargetAmount: dec(target)}); err != nil {
		t.Fatalf("upsert monthly goal: %v", err)
	}
}

func TestWeeklyProgressEndToEnd(t *testing.T) {
	svc, _ := newTestService(t)
	upsertMonthly(t, svc, "ana", "2025-06", "30000")

	recordSale(t, svc, "ana", "1500", "2025-06-09T12:00:00Z")
	recordSale(t, svc, "ana", "2000", "2025-06-10T12:00:00Z")
	recordSale(t, svc, "ana", "1000", "2025-06-11T12:00:00Z")
	recordSale(t, svc, "ana", "2000", "2025-06-12T12:00:00Z")
	recordSale(t, svc, "bruno", "9000", "2025-06-12T12:00:00Z")
	recordSale(t, svc, "ana", "9000", "2025-06-16T12:00:00Z")

	resp, err := svc.WeeklyProgress(context.Background(), "", "ana", "242025", at(t, "2025-06-12T15:00:00Z"))
	if err != nil {
		t.Fatalf("weekly progress: %v", err)
	}

	if resp.WeekStart != "2025-06-09" || resp.WeekEnd != "2025-06-15" {
		t.Fatalf("unexpected week %s..%s", resp.WeekStart, resp.WeekEnd)
	}
	expectAmount(t, "required", resp.RequiredWeeklyTarget, "7000")
	expectAmount(t, "realized", resp.Realized, "6500")
	expectAmount(t, "expected by today", resp.ExpectedByToday, "4000")
	expectAmount(t, "projected", resp.ProjectedEndOfWeek, "11375")
	expectAmount(t, "progress", resp.ProgressPct, "92.86")
	expectAmount(t, "deficit", resp.Deficit, "500")
	expectAmount(t, "pace", resp.RequiredDailyPaceToCatchUp, "166.67")
	if resp.Status != "ahead" || resp.StatusByToday != "ahead" {
		t.Fatalf("expected ahead/ahead, got %s/%s", resp.Status, resp.StatusByToday)
	}
	if resp.SalesCount != 4 || !resp.HasMonthlyGoal || resp.HasWeeklyBonus {
		t.Fatalf("unexpected flags %+v", resp)
	}
	if resp.BonusWeeklyTarget != nil {
		t.Fatalf("expected no bonus target")
	}
}

func TestWeeklyProgressBucketsSalesInStoreTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	repo := memory.New()
	svc := New(repo, nil, Config{DefaultStoreID: "main-store", Location: loc})

	// 2025-06-16T01:00Z is still Sunday 2025-06-15 in Sao Paulo (UTC-3).
	recordSale(t, svc, "ana", "300", "2025-06-16T01:00:00Z")
	// 2025-06-09T02:00Z is Sunday 2025-06-08 locally, the previous week.
	recordSale(t, svc, "ana", "700", "2025-06-09T02:00:00Z")

	resp, err := svc.WeeklyProgress(context.Background(), "", "ana", "", at(t, "2025-06-16T01:30:00Z"))
	if err != nil {
		t.Fatalf("weekly progress: %v", err)
	}
	if resp.WeekRef != "242025" {
		t.Fatalf("expected local week 242025, got %s", resp.WeekRef)
	}
	expectAmount(t, "realized", resp.Realized, "300")
	if resp.Today != "2025-06-15" || resp.DaysElapsed != 7 {
		t.Fatalf("expected local today 2025-06-15 with 7 days elapsed, got %s/%d", resp.Today, resp.DaysElapsed)
	}
}

func TestWeeklyProgressWithoutGoals(t *testing.T) {
	svc, _ := newTestService(t)
	recordSale(t, svc, "ana", "250", "2025-06-10T10:00:00Z")

	resp, err := svc.WeeklyProgress(context.Background(), "", "ana", "242025", at(t, "2025-06-10T18:00:00Z"))
	if err != nil {
		t.Fatalf("weekly progress: %v", err)
	}
	expectAmount(t, "required", resp.RequiredWeeklyTarget, "0")
	expectAmount(t, "surplus", resp.Surplus, "250")
	if resp.Status != "on-track" || resp.StatusByToday != "on-track" {
		t.Fatalf("expected on-track defaults, got %s/%s", resp.Status, resp.StatusByToday)
	}
	if resp.HasMonthlyGoal || resp.HasWeeklyBonus {
		t.Fatalf("expected no goals, got %+v", resp)
	}
}

func TestWeeklyProgressUsesBonusAsFloor(t *testing.T) {
	svc, _ := newTestService(t)
	upsertMonthly(t, svc, "ana", "2025-06", "30000")
	_, err := svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{
		OwnerID:       "ana",
		WeekRef:       "242025",
		TargetAmount:  dec("9000"),
		StretchAmount: dec("9500"),
	})
	if err != nil {
		t.Fatalf("upsert bonus: %v", err)
	}

	resp, err := svc.WeeklyProgress(context.Background(), "", "ana", "242025", at(t, "2025-06-15T12:00:00Z"))
	if err != nil {
		t.Fatalf("weekly progress: %v", err)
	}
	expectAmount(t, "effective target", resp.EffectiveTarget, "9000")
	expectAmount(t, "effective stretch", resp.EffectiveStretch, "9500")
	if resp.BonusWeeklyTarget == nil || !resp.BonusWeeklyTarget.Equal(dec("9000")) {
		t.Fatalf("expected bonus target 9000, got %v", resp.BonusWeeklyTarget)
	}
	if !resp.HasWeeklyBonus {
		t.Fatalf("expected bonus flag")
	}
}

func TestWeeklyProgressRejectsMalformedWeek(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.WeeklyProgress(context.Background(), "", "ana", "992025", time.Now())
	var formatErr *goals.InvalidFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected InvalidFormatError, got %v", err)
	}
}

func TestUpsertMonthlyGoalValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name string
		ctx  context.Context
		req  domain.MonthlyGoalRequest
		want error
	}{
		{
			name: "staff is forbidden",
			ctx:  staffCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100")},
			want: ErrForbidden,
		},
		{
			name: "bad month",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "06-2025", TargetAmount: dec("100")},
			want: store.ErrInvalidInput,
		},
		{
			name: "negative target",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("-1")},
			want: store.ErrInvalidInput,
		},
		{
			name: "stretch below target",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100"), StretchAmount: decimal.NewNullDecimal(dec("99"))},
			want: store.ErrInvalidInput,
		},
		{
			name: "weight outside month",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100"), DailyWeights: map[string]float64{"2025-07-01": 100}},
			want: store.ErrInvalidInput,
		},
		{
			name: "negative weight",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100"), DailyWeights: map[string]float64{"2025-06-01": -5}},
			want: store.ErrInvalidInput,
		},
		{
			name: "weight above 100",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100"), DailyWeights: map[string]float64{"2025-06-01": 1e300}},
			want: store.ErrInvalidInput,
		},
		{
			name: "target beyond ledger range",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("1e400")},
			want: store.ErrInvalidInput,
		},
		{
			name: "stretch beyond ledger range",
			ctx:  adminCtx(),
			req:  domain.MonthlyGoalRequest{Month: "2025-06", TargetAmount: dec("100"), StretchAmount: decimal.NewNullDecimal(dec("100000000000000"))},
			want: store.ErrInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertMonthlyGoal(tc.ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpsertMonthlyGoalInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	upsertMonthly(t, svc, "ana", "2025-06", "30000")

	first, err := svc.GetMonthlyGoal(context.Background(), "", "ana", "2025-06")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	expectAmount(t, "first target", first.TargetAmount, "30000")

	upsertMonthly(t, svc, "ana", "2025-06", "45000")
	second, err := svc.GetMonthlyGoal(context.Background(), "", "ana", "2025-06")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	expectAmount(t, "second target", second.TargetAmount, "45000")
	if first.ID != second.ID {
		t.Fatalf("expected upsert to keep id")
	}

	if _, err := svc.GetMonthlyGoal(context.Background(), "", "ana", "2025-07"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unset month, got %v", err)
	}
}

func TestUpsertWeeklyBonusGoalRequiresCanonicalRef(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{OwnerID: "ana", WeekRef: "202505", TargetAmount: dec("100")})
	var formatErr *goals.InvalidFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected legacy ref to be rejected on write, got %v", err)
	}

	saved, err := svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{OwnerID: "ana", WeekRef: "202025", TargetAmount: dec("100")})
	if err != nil {
		t.Fatalf("upsert bonus: %v", err)
	}
	if saved.WeekRef != "202025" {
		t.Fatalf("expected canonical week 20 ref, got %s", saved.WeekRef)
	}
	expectAmount(t, "stretch defaults to target", saved.StretchAmount, "100")

	_, err = svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{OwnerID: "ana", WeekRef: "012025", TargetAmount: dec("100"), StretchAmount: dec("50")})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected stretch below target to fail, got %v", err)
	}
}

func TestRecordSaleIdempotentByExternalID(t *testing.T) {
	svc, _ := newTestService(t)
	req := domain.SaleCreateRequest{OwnerID: "ana", Amount: dec("120.456"), ExternalID: "pos-77"}

	first, err := svc.RecordSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}
	expectAmount(t, "rounded amount", first.Sale.Amount, "120.46")

	second, err := svc.RecordSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("record duplicate: %v", err)
	}
	if !second.Duplicate || second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Sale.ID, second)
	}

	if _, err := svc.RecordSale(staffCtx(), domain.SaleCreateRequest{OwnerID: "ana", Amount: dec("-1")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative amount to fail, got %v", err)
	}
	if _, err := svc.RecordSale(staffCtx(), domain.SaleCreateRequest{Amount: dec("1")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected missing owner to fail, got %v", err)
	}
	if _, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{OwnerID: "ana", Amount: dec("1")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous sale to be forbidden, got %v", err)
	}
}

func TestListSalesTotals(t *testing.T) {
	svc, _ := newTestService(t)
	recordSale(t, svc, "ana", "10.10", "2025-06-09T08:00:00Z")
	recordSale(t, svc, "ana", "20.20", "2025-06-10T08:00:00Z")
	recordSale(t, svc, "bruno", "5", "2025-06-10T09:00:00Z")

	resp, err := svc.ListSales(context.Background(), "", "ana", "2025-06-09", "2025-06-10", time.Now())
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 sales, got %d", resp.Count)
	}
	expectAmount(t, "total", resp.Total, "30.30")

	if _, err := svc.ListSales(context.Background(), "", "", "2025-06-10", "2025-06-09", time.Now()); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inverted range to fail, got %v", err)
	}
}

func TestMonthlyProgress(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UpsertMonthlyGoal(adminCtx(), domain.MonthlyGoalRequest{
		OwnerID:       "ana",
		Month:         "2025-06",
		TargetAmount:  dec("30000"),
		StretchAmount: decimal.NewNullDecimal(dec("36000")),
	})
	if err != nil {
		t.Fatalf("upsert goal: %v", err)
	}
	recordSale(t, svc, "ana", "5000", "2025-06-02T12:00:00Z")
	recordSale(t, svc, "ana", "7000", "2025-06-05T12:00:00Z")

	resp, err := svc.MonthlyProgress(context.Background(), "", "ana", "2025-06", at(t, "2025-06-10T18:00:00Z"))
	if err != nil {
		t.Fatalf("monthly progress: %v", err)
	}
	expectAmount(t, "expected", resp.ExpectedByToday, "10000")
	expectAmount(t, "realized", resp.Realized, "12000")
	expectAmount(t, "projected", resp.ProjectedEndOfMonth, "36000")
	expectAmount(t, "pace", resp.RequiredDailyPaceToCatchUp, "900")
	if resp.Status != "ahead" || resp.DaysElapsed != 10 || resp.SalesCount != 2 {
		t.Fatalf("unexpected report %+v", resp)
	}
}

func TestTeamProgressSortedByProgress(t *testing.T) {
	svc, _ := newTestService(t)
	upsertMonthly(t, svc, "ana", "2025-06", "30000")
	upsertMonthly(t, svc, "bruno", "2025-06", "30000")
	upsertMonthly(t, svc, "carla", "2025-06", "30000")
	upsertMonthly(t, svc, "", "2025-06", "90000")

	recordSale(t, svc, "bruno", "7000", "2025-06-10T12:00:00Z")
	recordSale(t, svc, "ana", "3500", "2025-06-11T12:00:00Z")

	resp, err := svc.TeamProgress(context.Background(), "", "242025", at(t, "2025-06-15T20:00:00Z"))
	if err != nil {
		t.Fatalf("team progress: %v", err)
	}
	if len(resp.Members) != 3 {
		t.Fatalf("expected 3 owners, got %d", len(resp.Members))
	}
	order := []string{resp.Members[0].OwnerID, resp.Members[1].OwnerID, resp.Members[2].OwnerID}
	if order[0] != "bruno" || order[1] != "ana" || order[2] != "carla" {
		t.Fatalf("unexpected order %v", order)
	}
	expectAmount(t, "bruno progress", resp.Members[0].ProgressPct, "100")
	expectAmount(t, "ana progress", resp.Members[1].ProgressPct, "50")
}

func TestMigrateLegacyWeekRefs(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	for _, goal := range []domain.WeeklyBonusGoal{
		{StoreID: "main-store", OwnerID: "ana", WeekRef: "202505", TargetAmount: dec("1500"), StretchAmount: dec("2000")},
		{StoreID: "main-store", OwnerID: "bruno", WeekRef: "052025", TargetAmount: dec("1000"), StretchAmount: dec("1000")},
		{StoreID: "main-store", OwnerID: "carla", WeekRef: "202025", TargetAmount: dec("1000"), StretchAmount: dec("1000")},
		{StoreID: "main-store", OwnerID: "dani", WeekRef: "209999", TargetAmount: dec("1000"), StretchAmount: dec("1000")},
	} {
		if _, err := repo.UpsertWeeklyBonusGoal(ctx, goal); err != nil {
			t.Fatalf("seed bonus: %v", err)
		}
	}

	// The legacy row is already visible to reads before migration.
	before, err := svc.GetWeeklyBonusGoal(ctx, "", "ana", "052025")
	if err != nil || before.WeekRef != "202505" {
		t.Fatalf("expected legacy fallback lookup, got %+v err=%v", before, err)
	}

	if _, err := svc.MigrateLegacyWeekRefs(staffCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff to be forbidden, got %v", err)
	}

	resp, err := svc.MigrateLegacyWeekRefs(adminCtx())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if resp.Scanned != 4 || resp.Migrated != 1 || resp.Skipped != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected migration summary %+v", resp)
	}

	after, err := repo.GetWeeklyBonusGoal(ctx, "main-store", "ana", "052025")
	if err != nil {
		t.Fatalf("expected canonical row after migration: %v", err)
	}
	if after.ID != before.ID {
		t.Fatalf("expected the same goal to be re-keyed")
	}

	again, err := svc.MigrateLegacyWeekRefs(adminCtx())
	if err != nil {
		t.Fatalf("second migration: %v", err)
	}
	if again.Migrated != 0 {
		t.Fatalf("expected migration to be idempotent, got %+v", again)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "", "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "weekly_bonus_week_ref_migrate" {
		t.Fatalf("expected one migration audit entry, got %+v", logs)
	}
}

func TestCurrentAndResolveWeek(t *testing.T) {
	svc, _ := newTestService(t)

	current := svc.CurrentWeek(at(t, "2024-12-30T09:00:00Z"))
	if current.WeekRef != "012025" || current.Start != "2024-12-30" || current.End != "2025-01-05" {
		t.Fatalf("unexpected current week %+v", current)
	}

	legacy, err := svc.ResolveWeek("202405")
	if err != nil {
		t.Fatalf("resolve legacy: %v", err)
	}
	if legacy.WeekRef != "052024" || legacy.Start != "2024-01-29" {
		t.Fatalf("unexpected legacy resolution %+v", legacy)
	}

	if _, err := svc.ResolveWeek("54"); err == nil {
		t.Fatalf("expected short ref to fail")
	}
}

func TestResolveWeekRoundTripsCurrentWeek(t *testing.T) {
	svc, _ := newTestService(t)

	resolved, err := svc.ResolveWeek("202025")
	if err != nil {
		t.Fatalf("resolve 202025: %v", err)
	}
	if resolved.Week != 20 || resolved.Year != 2025 || resolved.Start != "2025-05-12" {
		t.Fatalf("expected week 20 of 2025, got %+v", resolved)
	}

	for day := at(t, "2000-01-03T12:00:00Z"); day.Year() < 2100; day = day.AddDate(0, 0, 7) {
		current := svc.CurrentWeek(day)
		back, err := svc.ResolveWeek(current.WeekRef)
		if err != nil {
			t.Fatalf("resolve %s: %v", current.WeekRef, err)
		}
		if back.Start != current.Start || back.End != current.End {
			t.Fatalf("ref %s: current week %s..%s resolved to %s..%s", current.WeekRef, current.Start, current.End, back.Start, back.End)
		}
	}
}

func TestRecordSaleRejectsAmountBeyondLedgerRange(t *testing.T) {
	svc, _ := newTestService(t)

	for _, amount := range []string{"1e400", "100000000000000"} {
		_, err := svc.RecordSale(staffCtx(), domain.SaleCreateRequest{OwnerID: "ana", Amount: dec(amount)})
		if !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("amount %s: expected invalid input, got %v", amount, err)
		}
	}

	if _, err := svc.RecordSale(staffCtx(), domain.SaleCreateRequest{OwnerID: "ana", Amount: MaxAmount}); err != nil {
		t.Fatalf("largest storable amount should be accepted: %v", err)
	}
}

func TestUpsertWeeklyBonusGoalRejectsAmountBeyondLedgerRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{OwnerID: "ana", WeekRef: "242025", TargetAmount: dec("1e400")})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for target, got %v", err)
	}
	_, err = svc.UpsertWeeklyBonusGoal(adminCtx(), domain.WeeklyBonusGoalRequest{OwnerID: "ana", WeekRef: "242025", TargetAmount: dec("10"), StretchAmount: dec("1e20")})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for stretch, got %v", err)
	}
}

func TestProgressSurvivesOutOfRangeStoredValues(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := repo.UpsertMonthlyGoal(ctx, domain.MonthlyGoal{
		StoreID:      "main-store",
		OwnerID:      "ana",
		Year:         2025,
		Month:        6,
		TargetAmount: dec("1e400"),
		DailyWeights: map[string]float64{"2025-06-09": 1e300},
	}); err != nil {
		t.Fatalf("seed goal: %v", err)
	}
	if _, err := repo.CreateSale(ctx, domain.SalesRecord{
		StoreID:    "main-store",
		OwnerID:    "ana",
		Amount:     dec("1e400"),
		OccurredAt: at(t, "2025-06-10T12:00:00Z"),
	}); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	today := at(t, "2025-06-12T12:00:00Z")
	weekly, err := svc.WeeklyProgress(ctx, "", "ana", "242025", today)
	if err != nil {
		t.Fatalf("weekly progress: %v", err)
	}
	if !weekly.RequiredWeeklyTarget.IsZero() {
		t.Fatalf("expected non-finite target to render as zero, got %s", weekly.RequiredWeeklyTarget)
	}

	team, err := svc.TeamProgress(ctx, "", "242025", today)
	if err != nil {
		t.Fatalf("team progress: %v", err)
	}
	if len(team.Members) != 1 {
		t.Fatalf("expected one member, got %d", len(team.Members))
	}

	if _, err := svc.MonthlyProgress(ctx, "", "ana", "2025-06", today); err != nil {
		t.Fatalf("monthly progress: %v", err)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{in: 92.857142, want: "92.86"},
		{in: math.Inf(1), want: "0"},
		{in: math.Inf(-1), want: "0"},
		{in: math.NaN(), want: "0"},
	}
	for _, tc := range cases {
		if got := round2(tc.in); !got.Equal(dec(tc.want)) {
			t.Fatalf("round2(%v): expected %s, got %s", tc.in, tc.want, got)
		}
	}
	if optionalRound2(nil) != nil {
		t.Fatalf("expected nil for a missing value")
	}
}

// orderedGoalCache records cache deletes alongside repository writes.
type orderedGoalCache struct {
	*cache.MemoryGoalCache
	events *[]string
}

func (c orderedGoalCache) Delete(ctx context.Context, key string) error {
	*c.events = append(*c.events, "delete")
	return c.MemoryGoalCache.Delete(ctx, key)
}

type orderedRepo struct {
	*memory.Store
	events *[]string
}

func (r orderedRepo) UpsertMonthlyGoal(ctx context.Context, goal domain.MonthlyGoal) (*domain.MonthlyGoal, error) {
	*r.events = append(*r.events, "write")
	return r.Store.UpsertMonthlyGoal(ctx, goal)
}

func TestUpsertMonthlyGoalInvalidatesAroundWrite(t *testing.T) {
	var events []string
	repo := orderedRepo{Store: memory.New(), events: &events}
	svc := New(repo, orderedGoalCache{MemoryGoalCache: cache.NewMemoryGoalCache(), events: &events}, Config{DefaultStoreID: "main-store"})

	upsertMonthly(t, svc, "ana", "2025-06", "1000")
	if got := strings.Join(events, ","); got != "delete,write,delete" {
		t.Fatalf("expected delete,write,delete, got %s", got)
	}
}

func TestListAuditLogsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ListAuditLogs(staffCtx(), "", "", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
