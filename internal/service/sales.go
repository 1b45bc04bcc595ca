package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storegoals/internal/domain"
	"storegoals/internal/goals"
	"storegoals/internal/store"
)

// RecordSale appends a sale to the ledger. A request carrying an external id
// that was already recorded for the store returns the stored sale with
// Duplicate set instead of failing.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SaleResponse{}, fmt.Errorf("%w: authenticated actor required", ErrForbidden)
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.ExternalID = strings.TrimSpace(req.ExternalID)

	if req.OwnerID == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: owner_id is required", store.ErrInvalidInput)
	}
	if err := validateAmount("amount", req.Amount); err != nil {
		return domain.SaleResponse{}, err
	}

	if req.ExternalID != "" {
		existing, err := s.repo.FindSaleByExternalID(ctx, req.StoreID, req.ExternalID)
		if err == nil {
			return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SaleResponse{}, err
		}
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = req.OccurredAt.UTC()
	}

	created, err := s.repo.CreateSale(ctx, domain.SalesRecord{
		StoreID:    req.StoreID,
		OwnerID:    req.OwnerID,
		Amount:     req.Amount.Round(2),
		OccurredAt: occurredAt,
		ExternalID: req.ExternalID,
		CreatedAt:  time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) && req.ExternalID != "" {
		// Lost a race with a concurrent delivery of the same event.
		existing, findErr := s.repo.FindSaleByExternalID(ctx, req.StoreID, req.ExternalID)
		if findErr != nil {
			return domain.SaleResponse{}, findErr
		}
		return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
	}
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.metrics.SaleRecorded(saleSource(ctx))
	return domain.SaleResponse{Sale: *created}, nil
}

// ListSales returns the sales between two inclusive civil dates in the store
// zone. Missing bounds default to the current week.
func (s *Service) ListSales(ctx context.Context, storeID string, ownerID string, from string, to string, today time.Time) (domain.SaleListResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	week := goals.CurrentWeekReference(s.localDay(today)).Range()
	fromDay, toDay := week.Start, week.End
	if strings.TrimSpace(from) != "" {
		parsed, err := goals.ParseDate(from)
		if err != nil {
			return domain.SaleListResponse{}, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		fromDay = parsed
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := goals.ParseDate(to)
		if err != nil {
			return domain.SaleListResponse{}, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		toDay = parsed
	}
	if toDay.Before(fromDay) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: to must not be before from", store.ErrInvalidInput)
	}

	sales, err := s.salesBetween(ctx, storeID, ownerID, goals.DateRange{Start: fromDay, End: toDay})
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Amount)
	}
	return domain.SaleListResponse{
		Sales: sales,
		Total: total,
		Count: len(sales),
		Range: map[string]string{
			"from": goals.FormatDate(fromDay),
			"to":   goals.FormatDate(toDay),
		},
	}, nil
}

// salesBetween loads sales whose local calendar day falls inside r.
func (s *Service) salesBetween(ctx context.Context, storeID string, ownerID string, r goals.DateRange) ([]domain.SalesRecord, error) {
	from := s.localMidnight(r.Start)
	to := s.localMidnight(r.End.AddDate(0, 0, 1))
	return s.repo.ListSales(ctx, storeID, ownerID, from, to)
}

func saleSource(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if ok && actor.Role == SystemActor.Role {
		return "ingest"
	}
	return "api"
}

func saleAmounts(sales []domain.SalesRecord) []float64 {
	amounts := make([]float64, 0, len(sales))
	for _, sale := range sales {
		amounts = append(amounts, sale.Amount.InexactFloat64())
	}
	return amounts
}
