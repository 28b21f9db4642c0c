package domain

import "time"

// RSVP is a member's answer to an event
type RSVP struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
}

// ScheduledEvent is an event or plain reminder keyed by its title
type ScheduledEvent struct {
	Title    string `json:"title"`
	Owner    string `json:"owner"`
	Reminder bool   `json:"reminder,omitempty"` // plain reminder addressed to Owner

	At           time.Time     `json:"at"`
	RemindAt     time.Time     `json:"remind_at,omitempty"`
	RemindBefore time.Duration `json:"remind_before,omitempty"`
	Every        time.Duration `json:"every,omitempty"`

	Going    []RSVP `json:"going,omitempty"`
	NotGoing []RSVP `json:"not_going,omitempty"`
}

// Clone returns a deep copy of the event
func (e *ScheduledEvent) Clone() *ScheduledEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Going = append([]RSVP(nil), e.Going...)
	c.NotGoing = append([]RSVP(nil), e.NotGoing...)
	return &c
}

// BoundaryKind identifies which time boundary of an event was crossed
type BoundaryKind int

const (
	BoundaryNone BoundaryKind = iota
	BoundaryEarly
	BoundaryFire
)

// Boundary is a crossed event boundary
type Boundary struct {
	Kind BoundaryKind
	At   time.Time
}

// Late reports whether the boundary was crossed more than threshold ago
func (b Boundary) Late(now time.Time, threshold time.Duration) bool {
	return now.Sub(b.At) > threshold
}

// Due returns the earliest unfired boundary that has been reached.
// An early reminder counts only while it is still set and precedes the main firing.
func (e *ScheduledEvent) Due(now time.Time) Boundary {
	if !e.RemindAt.IsZero() && e.RemindAt.Before(e.At) && !now.Before(e.RemindAt) {
		return Boundary{Kind: BoundaryEarly, At: e.RemindAt}
	}
	if !now.Before(e.At) {
		return Boundary{Kind: BoundaryFire, At: e.At}
	}
	return Boundary{Kind: BoundaryNone}
}

// Settle applies the bookkeeping for a crossed boundary and reports whether
// the event should be kept. Early reminders only clear the reminder time;
// repeating events move forward one interval and recompute the reminder;
// everything else is done.
func (e *ScheduledEvent) Settle(b Boundary) (keep bool) {
	switch b.Kind {
	case BoundaryEarly:
		e.RemindAt = time.Time{}
		return true
	case BoundaryFire:
		if e.Reminder || e.Every <= 0 {
			return false
		}
		e.At = e.At.Add(e.Every)
		if e.RemindBefore > 0 {
			e.RemindAt = e.At.Add(-e.RemindBefore)
		}
		return true
	}
	return true
}

// SetRSVP records a member's answer, moving them between lists
func (e *ScheduledEvent) SetRSVP(member RSVP, going bool) {
	e.Going = removeRSVP(e.Going, member.UserID)
	e.NotGoing = removeRSVP(e.NotGoing, member.UserID)
	if going {
		e.Going = append(e.Going, member)
	} else {
		e.NotGoing = append(e.NotGoing, member)
	}
}

func removeRSVP(list []RSVP, userID string) []RSVP {
	out := list[:0]
	for _, r := range list {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return out
}
