package store

import (
	"context"
	"errors"
	"time"

	"storegoals/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// SalesLedger is the append-only sales store. Ranges are [from, to).
type SalesLedger interface {
	CreateSale(ctx context.Context, sale domain.SalesRecord) (*domain.SalesRecord, error)
	FindSaleByExternalID(ctx context.Context, storeID string, externalID string) (*domain.SalesRecord, error)
	ListSales(ctx context.Context, storeID string, ownerID string, from time.Time, to time.Time) ([]domain.SalesRecord, error)
}

type GoalStore interface {
	UpsertMonthlyGoal(ctx context.Context, goal domain.MonthlyGoal) (*domain.MonthlyGoal, error)
	GetMonthlyGoal(ctx context.Context, storeID string, ownerID string, year int, month int) (*domain.MonthlyGoal, error)
	ListMonthlyGoals(ctx context.Context, storeID string, year int, month int) ([]domain.MonthlyGoal, error)
	UpsertWeeklyBonusGoal(ctx context.Context, goal domain.WeeklyBonusGoal) (*domain.WeeklyBonusGoal, error)
	GetWeeklyBonusGoal(ctx context.Context, storeID string, ownerID string, weekRef string) (*domain.WeeklyBonusGoal, error)
	ListWeeklyBonusGoals(ctx context.Context) ([]domain.WeeklyBonusGoal, error)
	UpdateWeeklyBonusWeekRef(ctx context.Context, goalID string, weekRef string) error
}

type Repository interface {
	SalesLedger
	GoalStore
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
