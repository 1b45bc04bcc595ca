package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"storegoals/internal/domain"
	"storegoals/internal/metrics"
	"storegoals/internal/service"
	"storegoals/internal/store/memory"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.messages) {
		msg := r.messages[r.next]
		r.next++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type flakyRecorder struct {
	failures int
	calls    int
}

func (f *flakyRecorder) RecordSale(_ context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.SaleResponse{}, errors.New("database unavailable")
	}
	return domain.SaleResponse{Sale: domain.SalesRecord{OwnerID: req.OwnerID}}, nil
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "store-sales", Partition: 0, Offset: offset, Value: []byte(value)}
}

func TestDecodeSaleEvent(t *testing.T) {
	req, err := decodeSaleEvent(message(7, `{"event_id":"pos-1","owner_id":" ana ","amount":"125.50","occurred_at":"2025-06-10T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.OwnerID != "ana" || req.ExternalID != "pos-1" || req.Amount.String() != "125.5" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.OccurredAt == nil || !req.OccurredAt.Equal(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected occurred_at %v", req.OccurredAt)
	}

	numeric, err := decodeSaleEvent(message(8, `{"owner_id":"ana","amount":99}`))
	if err != nil {
		t.Fatalf("decode numeric amount: %v", err)
	}
	if numeric.ExternalID != "kafka:store-sales:0:8" {
		t.Fatalf("expected position based id, got %q", numeric.ExternalID)
	}

	for _, payload := range []string{
		`not json`,
		`{"amount":"10"}`,
		`{"owner_id":"ana","amount":"-5"}`,
	} {
		if _, err := decodeSaleEvent(message(9, payload)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected invalid event for %s, got %v", payload, err)
		}
	}
}

func TestConsumerRecordsAndCommits(t *testing.T) {
	repo := memory.New()
	m := metrics.New()
	svc := service.New(repo, nil, service.Config{DefaultStoreID: "main-store", Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			message(1, `{"event_id":"pos-1","owner_id":"ana","amount":"100","occurred_at":"2025-06-10T12:00:00Z"}`),
			message(2, `{"event_id":"pos-1","owner_id":"ana","amount":"100","occurred_at":"2025-06-10T12:00:00Z"}`),
			message(3, `{"owner_id":"","amount":"100"}`),
			message(4, `{"event_id":"pos-2","owner_id":"bruno","amount":"40.25","occurred_at":"2025-06-11T09:00:00Z"}`),
		},
	}

	if err := NewConsumer(reader, svc, m).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(reader.committed) != 4 {
		t.Fatalf("expected every message committed, got %v", reader.committed)
	}
	sales, err := repo.ListSales(context.Background(), "main-store", "", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 recorded sales, got %d", len(sales))
	}

	if got := testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("recorded")); got != 2 {
		t.Fatalf("expected 2 recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("duplicate")); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("expected 1 invalid, got %v", got)
	}
	if got := testutil.ToFloat64(m.SalesRecordedTotal.WithLabelValues("ingest")); got != 2 {
		t.Fatalf("expected ingest source on sales metric, got %v", got)
	}
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, messages: []kafka.Message{message(1, `{"owner_id":"ana","amount":"5"}`)}}
	recorder := &flakyRecorder{failures: 2}

	consumer := NewConsumer(reader, recorder, nil)
	var waits []time.Duration
	consumer.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recorder.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", recorder.calls)
	}
	if len(waits) != 2 || waits[0] != initialBackoff || waits[1] != 2*initialBackoff {
		t.Fatalf("unexpected backoff sequence %v", waits)
	}
	if len(reader.committed) != 1 {
		t.Fatalf("expected message committed after success")
	}
}

func TestConsumerGivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, messages: []kafka.Message{message(1, `{"owner_id":"ana","amount":"5"}`)}}
	recorder := &flakyRecorder{failures: 100}

	consumer := NewConsumer(reader, recorder, nil)
	consumer.sleep = func(context.Context, time.Duration) error { return nil }

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recorder.calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, recorder.calls)
	}
}
