package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recurrence controls how a day's slot template is projected onto future dates.
type Recurrence string

const (
	RecurrenceNone   Recurrence = "none"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// Sentinel errors for the scheduling domain.
var (
	ErrValidation        = errors.New("invalid schedule input")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
)

const (
	dayLayout   = "2006-01-02"
	clockLayout = "15:04"
)

// Slot is a bookable interval on one professional's calendar day.
// Slots are owned by the professional's schedule and never shared.
type Slot struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	Day            string    `json:"date"`
	Start          string    `json:"start_time"`
	End            string    `json:"end_time"`
	IsBooked       bool      `json:"is_booked"`
}

// SlotInput is the caller-supplied interval for SetAvailability.
type SlotInput struct {
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// Reservation is the handle returned by Reserve and accepted by Release.
type Reservation struct {
	SlotID         uuid.UUID
	ProfessionalID string
	Day            string
	Start          string
}

// ParseRecurrence normalizes a recurrence string, treating empty as none.
func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case "", RecurrenceNone:
		return RecurrenceNone, nil
	case RecurrenceDaily:
		return RecurrenceDaily, nil
	case RecurrenceWeekly:
		return RecurrenceWeekly, nil
	default:
		return "", fmt.Errorf("%w: unknown recurrence %q", ErrValidation, s)
	}
}

func parseDay(day string) (time.Time, error) {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return t, nil
}

// clockMinutes converts "15:04" to minutes since midnight.
func clockMinutes(clock string) (int, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("%w: time must be HH:MM", ErrValidation)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// validateSlots checks every interval is well-formed and that no two overlap.
// Intervals are half-open: [start, end).
func validateSlots(inputs []SlotInput) error {
	type interval struct{ start, end int }
	intervals := make([]interval, 0, len(inputs))
	for _, in := range inputs {
		start, err := clockMinutes(in.Start)
		if err != nil {
			return err
		}
		end, err := clockMinutes(in.End)
		if err != nil {
			return err
		}
		if start >= end {
			return fmt.Errorf("%w: start %s must be before end %s", ErrValidation, in.Start, in.End)
		}
		intervals = append(intervals, interval{start, end})
	}
	for i := range intervals {
		for j := i + 1; j < len(intervals); j++ {
			a, b := intervals[i], intervals[j]
			if a.start < b.end && b.start < a.end {
				return fmt.Errorf("%w: slots %s-%s and %s-%s overlap",
					ErrValidation, inputs[i].Start, inputs[i].End, inputs[j].Start, inputs[j].End)
			}
		}
	}
	return nil
}
