package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storegoals/internal/domain"
	"storegoals/internal/logger"
	"storegoals/internal/store"
	"storegoals/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	salesByID        map[string]domain.SalesRecord
	salesByExternal  map[string]string
	monthlyGoals     map[string]domain.MonthlyGoal
	weeklyBonusGoals map[string]domain.WeeklyBonusGoal
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// values fall back to dev defaults with a warning. Production runs on
// PostgreSQL when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	log := logger.Component("memory-store")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("hash seed password", "username", u.username, "error", err)
			continue
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		salesByID:        make(map[string]domain.SalesRecord),
		salesByExternal:  make(map[string]string),
		monthlyGoals:     make(map[string]domain.MonthlyGoal),
		weeklyBonusGoals: make(map[string]domain.WeeklyBonusGoal),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns an empty ledger with the seed admin and staff accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) CreateSale(_ context.Context, sale domain.SalesRecord) (*domain.SalesRecord, error) {
	if strings.TrimSpace(sale.StoreID) == "" || strings.TrimSpace(sale.OwnerID) == "" || sale.Amount.IsNegative() || sale.OccurredAt.IsZero() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ExternalID != "" {
		if _, exists := s.salesByExternal[externalKey(sale.StoreID, sale.ExternalID)]; exists {
			return nil, store.ErrConflict
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.salesByID[sale.ID] = sale
	if sale.ExternalID != "" {
		s.salesByExternal[externalKey(sale.StoreID, sale.ExternalID)] = sale.ID
	}
	created := sale
	return &created, nil
}

func (s *Store) FindSaleByExternalID(_ context.Context, storeID string, externalID string) (*domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.salesByExternal[externalKey(storeID, externalID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale := s.salesByID[id]
	return &sale, nil
}

// ListSales returns sales with OccurredAt in [from, to). An empty ownerID
// matches every owner.
func (s *Store) ListSales(_ context.Context, storeID string, ownerID string, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesRecord, 0, 32)
	for _, sale := range s.salesByID {
		if sale.StoreID != storeID {
			continue
		}
		if ownerID != "" && sale.OwnerID != ownerID {
			continue
		}
		if sale.OccurredAt.Before(from) || !sale.OccurredAt.Before(to) {
			continue
		}
		result = append(result, sale)
	}

	slices.SortFunc(result, func(a, b domain.SalesRecord) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) UpsertMonthlyGoal(_ context.Context, goal domain.MonthlyGoal) (*domain.MonthlyGoal, error) {
	if strings.TrimSpace(goal.StoreID) == "" || goal.Month < 1 || goal.Month > 12 || goal.Year < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := monthlyKey(goal.StoreID, goal.OwnerID, goal.Year, goal.Month)
	if existing, exists := s.monthlyGoals[key]; exists {
		goal.ID = existing.ID
	} else if goal.ID == "" {
		goal.ID = xid.New("goal")
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = time.Now().UTC()
	}
	goal.DailyWeights = cloneWeights(goal.DailyWeights)
	s.monthlyGoals[key] = goal

	saved := goal
	saved.DailyWeights = cloneWeights(goal.DailyWeights)
	return &saved, nil
}

func (s *Store) GetMonthlyGoal(_ context.Context, storeID string, ownerID string, year int, month int) (*domain.MonthlyGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, exists := s.monthlyGoals[monthlyKey(storeID, ownerID, year, month)]
	if !exists {
		return nil, store.ErrNotFound
	}
	goal.DailyWeights = cloneWeights(goal.DailyWeights)
	return &goal, nil
}

func (s *Store) ListMonthlyGoals(_ context.Context, storeID string, year int, month int) ([]domain.MonthlyGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MonthlyGoal, 0, 8)
	for _, goal := range s.monthlyGoals {
		if goal.StoreID != storeID || goal.Year != year || goal.Month != month {
			continue
		}
		goal.DailyWeights = cloneWeights(goal.DailyWeights)
		result = append(result, goal)
	}
	slices.SortFunc(result, func(a, b domain.MonthlyGoal) int {
		return strings.Compare(a.OwnerID, b.OwnerID)
	})
	return result, nil
}

func (s *Store) UpsertWeeklyBonusGoal(_ context.Context, goal domain.WeeklyBonusGoal) (*domain.WeeklyBonusGoal, error) {
	if strings.TrimSpace(goal.StoreID) == "" || strings.TrimSpace(goal.WeekRef) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := weeklyKey(goal.StoreID, goal.OwnerID, goal.WeekRef)
	if existing, exists := s.weeklyBonusGoals[key]; exists {
		goal.ID = existing.ID
	} else if goal.ID == "" {
		goal.ID = xid.New("bonus")
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = time.Now().UTC()
	}
	s.weeklyBonusGoals[key] = goal
	saved := goal
	return &saved, nil
}

func (s *Store) GetWeeklyBonusGoal(_ context.Context, storeID string, ownerID string, weekRef string) (*domain.WeeklyBonusGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, exists := s.weeklyBonusGoals[weeklyKey(storeID, ownerID, weekRef)]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &goal, nil
}

func (s *Store) ListWeeklyBonusGoals(_ context.Context) ([]domain.WeeklyBonusGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WeeklyBonusGoal, 0, len(s.weeklyBonusGoals))
	for _, goal := range s.weeklyBonusGoals {
		result = append(result, goal)
	}
	slices.SortFunc(result, func(a, b domain.WeeklyBonusGoal) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

// UpdateWeeklyBonusWeekRef re-keys a stored bonus goal. It fails with
// ErrConflict when the target reference is already taken for the same
// store and owner.
func (s *Store) UpdateWeeklyBonusWeekRef(_ context.Context, goalID string, weekRef string) error {
	if strings.TrimSpace(weekRef) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, goal := range s.weeklyBonusGoals {
		if goal.ID != goalID {
			continue
		}
		if goal.WeekRef == weekRef {
			return nil
		}
		newKey := weeklyKey(goal.StoreID, goal.OwnerID, weekRef)
		if _, taken := s.weeklyBonusGoals[newKey]; taken {
			return store.ErrConflict
		}
		delete(s.weeklyBonusGoals, key)
		goal.WeekRef = weekRef
		goal.UpdatedAt = time.Now().UTC()
		s.weeklyBonusGoals[newKey] = goal
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func externalKey(storeID string, externalID string) string {
	return storeID + "::" + externalID
}

func monthlyKey(storeID string, ownerID string, year int, month int) string {
	return storeID + "::" + ownerID + "::" + time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func weeklyKey(storeID string, ownerID string, weekRef string) string {
	return storeID + "::" + ownerID + "::" + weekRef
}

func cloneWeights(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
