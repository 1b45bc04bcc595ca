package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storegoals/internal/domain"
	"storegoals/internal/store"
	"storegoals/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.SalesRecord) (*domain.SalesRecord, error) {
	if strings.TrimSpace(sale.StoreID) == "" || strings.TrimSpace(sale.OwnerID) == "" || sale.Amount.IsNegative() || sale.OccurredAt.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_records (id, store_id, owner_id, amount, occurred_at, external_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.StoreID, sale.OwnerID, sale.Amount, sale.OccurredAt.UTC(), nullIfEmpty(sale.ExternalID), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) FindSaleByExternalID(ctx context.Context, storeID string, externalID string) (*domain.SalesRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, owner_id, amount, occurred_at, COALESCE(external_id, ''), created_at
		FROM sales_records
		WHERE store_id = $1 AND external_id = $2
	`, storeID, externalID)

	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID string, ownerID string, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, owner_id, amount, occurred_at, COALESCE(external_id, ''), created_at
		FROM sales_records
		WHERE store_id = $1
			AND ($2 = '' OR owner_id = $2)
			AND occurred_at >= $3
			AND occurred_at < $4
		ORDER BY occurred_at ASC, id ASC
	`, storeID, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SalesRecord, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) UpsertMonthlyGoal(ctx context.Context, goal domain.MonthlyGoal) (*domain.MonthlyGoal, error) {
	if strings.TrimSpace(goal.StoreID) == "" || goal.Month < 1 || goal.Month > 12 || goal.Year < 1 {
		return nil, store.ErrInvalidInput
	}
	if goal.ID == "" {
		goal.ID = xid.New("goal")
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = time.Now().UTC()
	}
	weights, err := encodeWeights(goal.DailyWeights)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO monthly_goals (
			id, store_id, owner_id, year, month, target_amount, stretch_amount, daily_weights, updated_by, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)
		ON CONFLICT (store_id, owner_id, year, month)
		DO UPDATE SET
			target_amount = EXCLUDED.target_amount,
			stretch_amount = EXCLUDED.stretch_amount,
			daily_weights = EXCLUDED.daily_weights,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, store_id, owner_id, year, month, target_amount, stretch_amount, daily_weights, updated_by, updated_at
	`, goal.ID, goal.StoreID, goal.OwnerID, goal.Year, goal.Month, goal.TargetAmount, goal.StretchAmount, weights, goal.UpdatedBy, goal.UpdatedAt)

	return scanMonthlyGoal(row)
}

func (s *Store) GetMonthlyGoal(ctx context.Context, storeID string, ownerID string, year int, month int) (*domain.MonthlyGoal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, owner_id, year, month, target_amount, stretch_amount, daily_weights, updated_by, updated_at
		FROM monthly_goals
		WHERE store_id = $1 AND owner_id = $2 AND year = $3 AND month = $4
	`, storeID, ownerID, year, month)

	goal, err := scanMonthlyGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return goal, nil
}

func (s *Store) ListMonthlyGoals(ctx context.Context, storeID string, year int, month int) ([]domain.MonthlyGoal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, owner_id, year, month, target_amount, stretch_amount, daily_weights, updated_by, updated_at
		FROM monthly_goals
		WHERE store_id = $1 AND year = $2 AND month = $3
		ORDER BY owner_id ASC
	`, storeID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]domain.MonthlyGoal, 0, 16)
	for rows.Next() {
		goal, err := scanMonthlyGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}

func (s *Store) UpsertWeeklyBonusGoal(ctx context.Context, goal domain.WeeklyBonusGoal) (*domain.WeeklyBonusGoal, error) {
	if strings.TrimSpace(goal.StoreID) == "" || strings.TrimSpace(goal.WeekRef) == "" {
		return nil, store.ErrInvalidInput
	}
	if goal.ID == "" {
		goal.ID = xid.New("bonus")
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO weekly_bonus_goals (
			id, store_id, owner_id, week_ref, target_amount, stretch_amount, updated_by, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (store_id, owner_id, week_ref)
		DO UPDATE SET
			target_amount = EXCLUDED.target_amount,
			stretch_amount = EXCLUDED.stretch_amount,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, store_id, owner_id, week_ref, target_amount, stretch_amount, updated_by, updated_at
	`, goal.ID, goal.StoreID, goal.OwnerID, goal.WeekRef, goal.TargetAmount, goal.StretchAmount, goal.UpdatedBy, goal.UpdatedAt)

	return scanWeeklyBonusGoal(row)
}

func (s *Store) GetWeeklyBonusGoal(ctx context.Context, storeID string, ownerID string, weekRef string) (*domain.WeeklyBonusGoal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, owner_id, week_ref, target_amount, stretch_amount, updated_by, updated_at
		FROM weekly_bonus_goals
		WHERE store_id = $1 AND owner_id = $2 AND week_ref = $3
	`, storeID, ownerID, weekRef)

	goal, err := scanWeeklyBonusGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return goal, nil
}

func (s *Store) ListWeeklyBonusGoals(ctx context.Context) ([]domain.WeeklyBonusGoal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, owner_id, week_ref, target_amount, stretch_amount, updated_by, updated_at
		FROM weekly_bonus_goals
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]domain.WeeklyBonusGoal, 0, 64)
	for rows.Next() {
		goal, err := scanWeeklyBonusGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}

func (s *Store) UpdateWeeklyBonusWeekRef(ctx context.Context, goalID string, weekRef string) error {
	if strings.TrimSpace(weekRef) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE weekly_bonus_goals
		SET week_ref = $2, updated_at = now()
		WHERE id = $1
	`, goalID, weekRef)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.SalesRecord, error) {
	var sale domain.SalesRecord
	if err := row.Scan(&sale.ID, &sale.StoreID, &sale.OwnerID, &sale.Amount, &sale.OccurredAt, &sale.ExternalID, &sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.OccurredAt = sale.OccurredAt.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func scanMonthlyGoal(row rowScanner) (*domain.MonthlyGoal, error) {
	var (
		goal    domain.MonthlyGoal
		weights []byte
	)
	if err := row.Scan(&goal.ID, &goal.StoreID, &goal.OwnerID, &goal.Year, &goal.Month, &goal.TargetAmount, &goal.StretchAmount, &weights, &goal.UpdatedBy, &goal.UpdatedAt); err != nil {
		return nil, err
	}
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &goal.DailyWeights); err != nil {
			return nil, fmt.Errorf("decode daily weights for goal %s: %w", goal.ID, err)
		}
	}
	goal.UpdatedAt = goal.UpdatedAt.UTC()
	return &goal, nil
}

func scanWeeklyBonusGoal(row rowScanner) (*domain.WeeklyBonusGoal, error) {
	var goal domain.WeeklyBonusGoal
	if err := row.Scan(&goal.ID, &goal.StoreID, &goal.OwnerID, &goal.WeekRef, &goal.TargetAmount, &goal.StretchAmount, &goal.UpdatedBy, &goal.UpdatedAt); err != nil {
		return nil, err
	}
	goal.WeekRef = strings.TrimSpace(goal.WeekRef)
	goal.UpdatedAt = goal.UpdatedAt.UTC()
	return &goal, nil
}

func encodeWeights(weights map[string]float64) (string, error) {
	if len(weights) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(weights)
	if err != nil {
		return "", fmt.Errorf("encode daily weights: %w", err)
	}
	return string(raw), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
