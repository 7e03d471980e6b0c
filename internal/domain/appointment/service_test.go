package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicsuite/agenda/internal/domain/professional"
	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/outbox"
	"github.com/clinicsuite/agenda/pkg/timeofday"
)

// -- Mocks --

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Appointment
	calls int
	locks []uuid.UUID
}

func newMockRepo() *mockRepo { return &mockRepo{store: make(map[uuid.UUID]*Appointment)} }

func (m *mockRepo) touch() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockRepo) Create(ctx context.Context, a *Appointment) error {
	m.touch()
	a.ID = uuid.New()
	a.TenantID = db.TenantFromContext(ctx)
	a.CreatedAt = time.Now()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.touch()
	a, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	m.touch()
	var out []*Appointment
	for _, a := range m.store {
		if f.ProfessionalID != nil && a.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListBooked(_ context.Context, ids []uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	m.touch()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*Appointment
	for _, a := range m.store {
		if want[a.ProfessionalID] && a.Status != StatusCancelled && timeofday.OverlapsTime(a.StartDatetime, a.EndDatetime, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) LockProfessional(_ context.Context, id uuid.UUID) error {
	m.touch()
	m.locks = append(m.locks, id)
	return nil
}

func (m *mockRepo) HasOverlap(_ context.Context, professionalID uuid.UUID, start, end time.Time) (bool, error) {
	m.touch()
	for _, a := range m.store {
		if a.ProfessionalID == professionalID && a.Status != StatusCancelled &&
			timeofday.OverlapsTime(a.StartDatetime, a.EndDatetime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.touch()
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRecorder struct {
	events []outbox.Event
}

func (r *mockRecorder) Record(_ context.Context, evt outbox.Event) error {
	r.events = append(r.events, evt)
	return nil
}

// stubProfessionals treats every id as an active professional unless it is
// listed as missing or inactive.
type stubProfessionals struct {
	missing  map[uuid.UUID]bool
	inactive map[uuid.UUID]bool
}

func (s *stubProfessionals) Get(_ context.Context, id uuid.UUID) (*professional.Professional, error) {
	if s.missing[id] {
		return nil, fmt.Errorf("get %s: %w", id, professional.ErrNotFound)
	}
	return &professional.Professional{ID: id, Name: "Dr. " + id.String()[:4], Active: !s.inactive[id]}, nil
}

func newTestService() (*Service, *mockRepo, *mockRecorder) {
	svc, repo, rec, _ := newTestServiceWithProfessionals()
	return svc, repo, rec
}

func newTestServiceWithProfessionals() (*Service, *mockRepo, *mockRecorder, *stubProfessionals) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	profs := &stubProfessionals{missing: map[uuid.UUID]bool{}, inactive: map[uuid.UUID]bool{}}
	return NewService(repo, profs, inlineTx{}, rec, time.UTC), repo, rec, profs
}

func tenantCtx() context.Context {
	return db.WithTenant(context.Background(), "clinic-a")
}

func validRequest() Request {
	return Request{
		PatientID:      uuid.New(),
		ProfessionalID: uuid.New(),
		Date:           "2024-03-04",
		StartTime:      "09:00",
		EndTime:        "10:00",
	}
}

// -- Tests --

func TestService_Schedule(t *testing.T) {
	svc, repo, rec := newTestService()
	req := validRequest()

	a, err := svc.Schedule(tenantCtx(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if !a.StartDatetime.Equal(want) || !a.EndDatetime.Equal(want.Add(time.Hour)) {
		t.Errorf("unexpected range %v - %v", a.StartDatetime, a.EndDatetime)
	}
	if a.Status != StatusScheduled || a.TenantID != "clinic-a" {
		t.Errorf("unexpected appointment %+v", a)
	}
	if len(repo.locks) != 1 || repo.locks[0] != req.ProfessionalID {
		t.Errorf("expected the professional lock to be taken, got %v", repo.locks)
	}
	if len(rec.events) != 1 || rec.events[0].EventType != outbox.AppointmentCreated {
		t.Errorf("expected appointment.created event, got %v", rec.events)
	}
}

func TestService_Schedule_RejectsStartNotBeforeEnd(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"equal", "10:00", "10:00"},
		{"reversed", "11:00", "10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			req := validRequest()
			req.StartTime, req.EndTime = tt.start, tt.end

			_, err := svc.Schedule(tenantCtx(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if repo.calls != 0 {
				t.Errorf("store must not be touched, got %d calls", repo.calls)
			}
		})
	}
}

func TestService_Schedule_RequiredFields(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.Schedule(tenantCtx(), Request{Date: "2024-03-04"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if repo.calls != 0 {
		t.Errorf("store must not be touched, got %d calls", repo.calls)
	}
}

func TestService_Schedule_RejectsUnknownOrInactiveProfessional(t *testing.T) {
	tests := []struct {
		name     string
		missing  bool
		inactive bool
	}{
		{"unknown", true, false},
		{"inactive", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, rec, profs := newTestServiceWithProfessionals()
			req := validRequest()
			profs.missing[req.ProfessionalID] = tt.missing
			profs.inactive[req.ProfessionalID] = tt.inactive

			_, err := svc.Schedule(tenantCtx(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(repo.locks) != 0 || repo.calls != 0 {
				t.Errorf("no lock or store call expected, got locks=%v calls=%d", repo.locks, repo.calls)
			}
			if len(rec.events) != 0 {
				t.Errorf("expected no events, got %v", rec.events)
			}
		})
	}
}

func TestService_Schedule_Conflict(t *testing.T) {
	svc, _, _ := newTestService()
	req := validRequest()
	if _, err := svc.Schedule(tenantCtx(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overlapping := req
	overlapping.PatientID = uuid.New()
	overlapping.StartTime, overlapping.EndTime = "09:30", "10:30"
	if _, err := svc.Schedule(tenantCtx(), overlapping); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	adjacent := req
	adjacent.StartTime, adjacent.EndTime = "10:00", "11:00"
	if _, err := svc.Schedule(tenantCtx(), adjacent); err != nil {
		t.Errorf("adjacent booking should succeed, got %v", err)
	}
}

func TestService_Schedule_CancelledFreesSlot(t *testing.T) {
	svc, _, _ := newTestService()
	req := validRequest()
	a, _ := svc.Schedule(tenantCtx(), req)
	if _, err := svc.UpdateStatus(tenantCtx(), a.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Schedule(tenantCtx(), req); err != nil {
		t.Errorf("slot should be free after cancellation, got %v", err)
	}
}

func TestService_UpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		path    []string
		wantErr error
	}{
		{"confirm", []string{StatusConfirmed}, nil},
		{"confirm then complete", []string{StatusConfirmed, StatusCompleted}, nil},
		{"cancel", []string{StatusCancelled}, nil},
		{"reopen cancelled", []string{StatusCancelled, StatusScheduled}, ErrInvalidTransition},
		{"complete then cancel", []string{StatusCompleted, StatusCancelled}, ErrInvalidTransition},
		{"unknown status", []string{"no-show"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			a, err := svc.Schedule(tenantCtx(), validRequest())
			if err != nil {
				t.Fatalf("schedule: %v", err)
			}
			var last error
			for _, st := range tt.path {
				_, last = svc.UpdateStatus(tenantCtx(), a.ID, st)
			}
			if tt.wantErr == nil && last != nil {
				t.Errorf("unexpected error: %v", last)
			}
			if tt.wantErr != nil && !errors.Is(last, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, last)
			}
		})
	}
}

func TestService_UpdateStatus_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateStatus(tenantCtx(), uuid.New(), StatusConfirmed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRequest_Validate_UsesClinicTimezone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	start, _, err := validRequest().Validate(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.UTC().Hour() != 12 {
		t.Errorf("09:00 BRT should be 12:00 UTC, got %v", start.UTC())
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusScheduled, StatusConfirmed) {
		t.Error("scheduled -> confirmed should be allowed")
	}
	if CanTransition(StatusCompleted, StatusScheduled) {
		t.Error("completed is terminal")
	}
}
