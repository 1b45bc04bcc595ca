package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storegoals/internal/cache"
	"storegoals/internal/domain"
	"storegoals/internal/goals"
	"storegoals/internal/logger"
	"storegoals/internal/metrics"
	"storegoals/internal/store"
	"storegoals/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SystemActor is used for writes that do not come from a logged-in user,
// such as broker ingestion.
var SystemActor = domain.Actor{Username: "system", Role: "system"}

type Config struct {
	DefaultStoreID string
	// Location is the store's zone; sale timestamps are bucketed into
	// calendar days here. Defaults to UTC.
	Location     *time.Location
	GoalCacheTTL time.Duration
	Metrics      *metrics.Metrics
	// TeamConcurrency bounds the per-owner fan-out of TeamProgress.
	TeamConcurrency int
}

type Service struct {
	repo            store.Repository
	goalCache       cache.GoalCache
	goalCacheTTL    time.Duration
	metrics         *metrics.Metrics
	location        *time.Location
	defaultStoreID  string
	teamConcurrency int
	log             *slog.Logger
	audit           *slog.Logger
}

func New(repo store.Repository, goalCache cache.GoalCache, cfg Config) *Service {
	if cfg.DefaultStoreID == "" {
		cfg.DefaultStoreID = "main-store"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.GoalCacheTTL <= 0 {
		cfg.GoalCacheTTL = 5 * time.Minute
	}
	if cfg.TeamConcurrency < 1 {
		cfg.TeamConcurrency = 8
	}
	if goalCache == nil {
		goalCache = cache.NoopGoalCache{}
	}

	return &Service{
		repo:            repo,
		goalCache:       goalCache,
		goalCacheTTL:    cfg.GoalCacheTTL,
		metrics:         cfg.Metrics,
		location:        cfg.Location,
		defaultStoreID:  cfg.DefaultStoreID,
		teamConcurrency: cfg.TeamConcurrency,
		log:             logger.Component("service"),
		audit:           logger.Component("audit"),
	}
}

func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}

func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		day, err := goals.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = s.localMidnight(day)
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = SystemActor
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.audit.Warn("failed to write audit log", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// MaxAmount is the largest amount a NUMERIC(16,2) column stores.
var MaxAmount = decimal.RequireFromString("99999999999999.99")

// validateAmount rejects negative amounts and amounts that do not fit the
// ledger columns once rounded to cents.
func validateAmount(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", store.ErrInvalidInput, field)
	}
	if value.Round(2).GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s must not exceed %s", store.ErrInvalidInput, field, MaxAmount)
	}
	return nil
}

// localMidnight maps a civil date to the instant it starts in the store zone.
func (s *Service) localMidnight(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

// localDay returns the civil date of t observed in the store zone.
func (s *Service) localDay(t time.Time) time.Time {
	y, m, d := t.In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
