package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicsuite/agenda/internal/domain/appointment"
	"github.com/clinicsuite/agenda/internal/domain/professional"
	"github.com/clinicsuite/agenda/internal/domain/settings"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
	"github.com/clinicsuite/agenda/pkg/timeofday"
)

var (
	ErrValidation = errors.New("invalid slot search")
	ErrNotFound   = errors.New("professional not found")
)

const (
	DefaultDaysAhead = 7
	MaxDaysAhead     = 30
	DefaultDuration  = 60
	MinDuration      = 5
	MaxDuration      = 480
)

// SearchParams describes a slot search. Preferences only mark slots; they
// never filter them.
type SearchParams struct {
	ProfessionalID     *uuid.UUID
	PreferredDate      *time.Time
	PreferredTimeStart *string
	PreferredTimeEnd   *string
	DurationMinutes    int
	DaysAhead          int
}

// Normalize applies defaults and rejects out-of-range values.
func (p *SearchParams) Normalize() error {
	switch {
	case p.DaysAhead == 0:
		p.DaysAhead = DefaultDaysAhead
	case p.DaysAhead < 1:
		p.DaysAhead = 1
	case p.DaysAhead > MaxDaysAhead:
		p.DaysAhead = MaxDaysAhead
	}

	if p.DurationMinutes == 0 {
		p.DurationMinutes = DefaultDuration
	}
	if p.DurationMinutes < MinDuration || p.DurationMinutes > MaxDuration || p.DurationMinutes%5 != 0 {
		return fmt.Errorf("%w: duration_minutes must be a multiple of 5 between %d and %d",
			ErrValidation, MinDuration, MaxDuration)
	}

	var ws, we timeofday.Minutes
	var err error
	if p.PreferredTimeStart != nil {
		if ws, err = timeofday.Parse(*p.PreferredTimeStart); err != nil {
			return fmt.Errorf("%w: preferred_time_start: %v", ErrValidation, err)
		}
	}
	if p.PreferredTimeEnd != nil {
		if we, err = timeofday.Parse(*p.PreferredTimeEnd); err != nil {
			return fmt.Errorf("%w: preferred_time_end: %v", ErrValidation, err)
		}
	}
	if p.PreferredTimeStart != nil && p.PreferredTimeEnd != nil && ws >= we {
		return fmt.Errorf("%w: preferred_time_start must be before preferred_time_end", ErrValidation)
	}
	return nil
}

// AvailableSlot is a free, bookable range. It is computed on demand and never
// stored.
type AvailableSlot struct {
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	ProfessionalID   uuid.UUID `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	Preferred        bool      `json:"preferred"`
}

// SettingsSource, ProfessionalSource and BookingSource are satisfied by the
// settings, professional and appointment services.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type ProfessionalSource interface {
	Get(ctx context.Context, id uuid.UUID) (*professional.Professional, error)
	Active(ctx context.Context) ([]*professional.Professional, error)
}

type BookingSource interface {
	ListBooked(ctx context.Context, professionalIDs []uuid.UUID, from, to time.Time) ([]*appointment.Appointment, error)
}

type Finder struct {
	settings      SettingsSource
	professionals ProfessionalSource
	bookings      BookingSource
	loc           *time.Location
	now           func() time.Time
}

func NewFinder(s SettingsSource, p ProfessionalSource, b BookingSource, loc *time.Location) *Finder {
	if loc == nil {
		loc = time.UTC
	}
	return &Finder{settings: s, professionals: p, bookings: b, loc: loc, now: time.Now}
}

// Location is the clinic timezone "today" is computed in.
func (f *Finder) Location() *time.Location { return f.loc }

// SearchSlots returns every free slot in the search horizon ordered by date,
// start time and professional name.
func (f *Finder) SearchSlots(ctx context.Context, p SearchParams) ([]AvailableSlot, error) {
	if err := p.Normalize(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "availability.SearchSlots")
	defer span.End()
	span.SetAttributes(attribute.Int("days_ahead", p.DaysAhead), attribute.Int("duration_minutes", p.DurationMinutes))

	st, err := f.settings.Get(ctx)
	if err != nil {
		return nil, telemetry.RecordError(span, err)
	}

	var profs []*professional.Professional
	if p.ProfessionalID != nil {
		prof, err := f.professionals.Get(ctx, *p.ProfessionalID)
		if errors.Is(err, professional.ErrNotFound) || (err == nil && !prof.Active) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p.ProfessionalID)
		}
		if err != nil {
			return nil, telemetry.RecordError(span, err)
		}
		profs = []*professional.Professional{prof}
	} else if profs, err = f.professionals.Active(ctx); err != nil {
		return nil, telemetry.RecordError(span, err)
	}
	if len(profs) == 0 {
		return []AvailableSlot{}, nil
	}

	now := f.now().In(f.loc)
	from := startOfDay(now)
	to := from.AddDate(0, 0, p.DaysAhead)

	ids := make([]uuid.UUID, len(profs))
	for i, pr := range profs {
		ids[i] = pr.ID
	}
	booked, err := f.bookings.ListBooked(ctx, ids, from, to)
	if err != nil {
		return nil, telemetry.RecordError(span, err)
	}

	slots := FindSlots(NewCalendar(st), profs, booked, p, now)
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FindSlots is the pure part of SearchSlots. p must be normalised; now fixes
// both "today" and the location slots are built in.
func FindSlots(cal *Calendar, profs []*professional.Professional, booked []*appointment.Appointment, p SearchParams, now time.Time) []AvailableSlot {
	loc := now.Location()
	today := startOfDay(now)
	duration := timeofday.Minutes(p.DurationMinutes)

	busy := make(map[uuid.UUID][]*appointment.Appointment, len(profs))
	for _, a := range booked {
		if a.Status == appointment.StatusCancelled {
			continue
		}
		busy[a.ProfessionalID] = append(busy[a.ProfessionalID], a)
	}

	pref := newPreference(p)
	slots := []AvailableSlot{}
	for i := 0; i < p.DaysAhead; i++ {
		date := today.AddDate(0, 0, i)
		ranges := cal.Slots(date, duration)
		for _, prof := range profs {
			for _, r := range ranges {
				start, end := r.Start, r.End
				startAt, endAt := start.On(date, loc), end.On(date, loc)
				if !startAt.After(now) {
					continue
				}
				if overlapsAny(busy[prof.ID], startAt, endAt) {
					continue
				}
				slots = append(slots, AvailableSlot{
					Date:             date.Format("2006-01-02"),
					StartTime:        start.String(),
					EndTime:          end.String(),
					ProfessionalID:   prof.ID,
					ProfessionalName: prof.Name,
					Preferred:        pref.matches(date, start, end),
				})
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.ProfessionalName != b.ProfessionalName {
			return a.ProfessionalName < b.ProfessionalName
		}
		return a.ProfessionalID.String() < b.ProfessionalID.String()
	})
	return slots
}

func overlapsAny(appts []*appointment.Appointment, start, end time.Time) bool {
	for _, a := range appts {
		if timeofday.OverlapsTime(a.StartDatetime, a.EndDatetime, start, end) {
			return true
		}
	}
	return false
}

type preference struct {
	date           string
	hasWindowStart bool
	hasWindowEnd   bool
	windowStart    timeofday.Minutes
	windowEnd      timeofday.Minutes
}

func newPreference(p SearchParams) preference {
	var pr preference
	if p.PreferredDate != nil {
		pr.date = p.PreferredDate.Format("2006-01-02")
	}
	if p.PreferredTimeStart != nil {
		pr.windowStart, _ = timeofday.Parse(*p.PreferredTimeStart)
		pr.hasWindowStart = true
	}
	if p.PreferredTimeEnd != nil {
		pr.windowEnd, _ = timeofday.Parse(*p.PreferredTimeEnd)
		pr.hasWindowEnd = true
	}
	return pr
}

// matches is true when the slot is on the preferred date or inside the
// preferred time window. Either criterion alone is enough.
func (pr preference) matches(date time.Time, start, end timeofday.Minutes) bool {
	if pr.date != "" && date.Format("2006-01-02") == pr.date {
		return true
	}
	if !pr.hasWindowStart && !pr.hasWindowEnd {
		return false
	}
	if pr.hasWindowStart && start < pr.windowStart {
		return false
	}
	if pr.hasWindowEnd && end > pr.windowEnd {
		return false
	}
	return true
}

// Classify splits slots into preferred and alternative groups, keeping order.
func Classify(slots []AvailableSlot) (preferred, alternative []AvailableSlot) {
	preferred, alternative = []AvailableSlot{}, []AvailableSlot{}
	for _, s := range slots {
		if s.Preferred {
			preferred = append(preferred, s)
		} else {
			alternative = append(alternative, s)
		}
	}
	return preferred, alternative
}
