package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

type inlineTx struct{ calls int }

func (r *inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

type mockStore struct {
	records   []Record
	published map[int64]bool
	fetchErr  error
}

func (s *mockStore) FetchUnpublished(_ context.Context, limit int) ([]Record, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []Record
	for _, r := range s.records {
		if !s.published[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *mockStore) MarkPublished(_ context.Context, ids []int64) error {
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed++
	return nil
}

func newStore(n int) *mockStore {
	s := &mockStore{published: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		s.records = append(s.records, Record{
			ID:          int64(i),
			EventID:     uuid.New(),
			TenantID:    "clinic-a",
			AggregateID: "agg-1",
			EventType:   AppointmentCreated,
			Payload:     []byte(`{"ok":true}`),
		})
	}
	return s
}

func TestPublisher_PublishBatch(t *testing.T) {
	_, _ = telemetry.Setup(context.Background(), telemetry.Config{})
	store := newStore(3)
	w := &mockWriter{}
	p := NewPublisher(&inlineTx{}, store, w, zerolog.Nop(), PublisherConfig{BatchSize: 2})

	n, err := p.PublishBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(w.msgs) != 2 {
		t.Fatalf("expected 2 published, got n=%d msgs=%d", n, len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != AppointmentCreated || string(m.Key) != "agg-1" {
		t.Errorf("unexpected message %+v", m)
	}
	if telemetry.HeaderValue(m.Headers, "event_type") != AppointmentCreated ||
		telemetry.HeaderValue(m.Headers, "tenant_id") != "clinic-a" ||
		telemetry.HeaderValue(m.Headers, "event_id") == "" {
		t.Errorf("missing headers: %v", m.Headers)
	}

	n, _ = p.PublishBatch(context.Background())
	if n != 1 {
		t.Errorf("second batch should publish the remaining event, got %d", n)
	}
	n, _ = p.PublishBatch(context.Background())
	if n != 0 {
		t.Errorf("nothing left to publish, got %d", n)
	}
}

func TestPublisher_WriteFailureLeavesRowsPending(t *testing.T) {
	store := newStore(2)
	w := &mockWriter{err: errors.New("broker down")}
	p := NewPublisher(&inlineTx{}, store, w, zerolog.Nop(), PublisherConfig{})

	if _, err := p.PublishBatch(context.Background()); err == nil {
		t.Fatal("expected write error")
	}
	if len(store.published) != 0 {
		t.Errorf("rows must stay unpublished after a failed write, got %v", store.published)
	}
}

func TestPublisher_FetchError(t *testing.T) {
	store := &mockStore{fetchErr: errors.New("db gone"), published: map[int64]bool{}}
	p := NewPublisher(&inlineTx{}, store, &mockWriter{}, zerolog.Nop(), PublisherConfig{})
	if _, err := p.PublishBatch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestPublisher_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &mockWriter{}
	p := NewPublisher(&inlineTx{}, newStore(0), writer, zerolog.Nop(), PublisherConfig{})
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if writer.closed != 0 {
		t.Errorf("Run must leave the writer to its owner, got %d closes", writer.closed)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Error("empty input should yield no brokers")
	}
}
