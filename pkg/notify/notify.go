// Package notify decides who hears about generated sessions and published
// results. Delivery belongs to a Sink.
package notify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/timetable"
)

// Recipient kinds.
const (
	ToInstructor = "instructor"
	ToStudent    = "student"
)

// Notice is one message to one recipient.
type Notice struct {
	RecipientKind string                `json:"recipient_kind"`
	RecipientID   string                `json:"recipient_id"`
	Subject       string                `json:"subject"`
	Body          string                `json:"body"`
	Sessions      []timetable.Session   `json:"sessions,omitempty"`
	Result        *results.PeriodResult `json:"result,omitempty"`
}

// Sink delivers notices.
type Sink interface {
	Send(ctx context.Context, notices ...Notice) error
}

// PlanSessionNotices groups newly created sessions per instructor, one
// notice each, ordered by instructor id.
func PlanSessionNotices(created []timetable.Session) []Notice {
	byInstructor := make(map[string][]timetable.Session)
	for _, s := range created {
		if s.InstructorID == "" {
			continue
		}
		byInstructor[s.InstructorID] = append(byInstructor[s.InstructorID], s)
	}

	ids := make([]string, 0, len(byInstructor))
	for id := range byInstructor {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	notices := make([]Notice, 0, len(ids))
	for _, id := range ids {
		sessions := byInstructor[id]
		sort.SliceStable(sessions, func(i, j int) bool {
			if !sessions[i].Date.Equal(sessions[j].Date) {
				return sessions[i].Date.Before(sessions[j].Date)
			}
			return sessions[i].Start < sessions[j].Start
		})
		var b strings.Builder
		for _, s := range sessions {
			fmt.Fprintf(&b, "%s %s-%s %s room %s\n", s.Date.Format(time.DateOnly), s.Start, s.End, s.ElementID, s.RoomID)
		}
		notices = append(notices, Notice{
			RecipientKind: ToInstructor,
			RecipientID:   id,
			Subject:       fmt.Sprintf("%d new sessions scheduled", len(sessions)),
			Body:          b.String(),
			Sessions:      sessions,
		})
	}
	return notices
}

// PlanResultNotices returns one notice per student once the deliberation
// is published, and nothing before.
func PlanResultNotices(d *results.Deliberation) []Notice {
	if d == nil || d.State != results.DeliberationPublished {
		return nil
	}
	out := make([]Notice, 0, len(d.Lines))
	for _, r := range d.Results() {
		out = append(out, Notice{
			RecipientKind: ToStudent,
			RecipientID:   r.StudentID,
			Subject:       fmt.Sprintf("Results %s published", r.Period),
			Body: fmt.Sprintf("Average %.2f, %d/%d credits, decision %s, rank %d.",
				r.WeightedAverage, r.EarnedCredits, r.TotalCredits, r.Decision, r.Rank),
			Result: &r,
		})
	}
	return out
}

// ConsoleSink writes notices to w and keeps a copy of each.
type ConsoleSink struct {
	w      io.Writer
	prefix string

	mu   sync.Mutex
	sent []Notice
}

var _ Sink = (*ConsoleSink)(nil)

// NewConsoleSink returns a sink printing to w. A nil w only records.
func NewConsoleSink(w io.Writer, prefix string) *ConsoleSink {
	return &ConsoleSink{w: w, prefix: prefix}
}

func (c *ConsoleSink) Send(ctx context.Context, notices ...Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range notices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.w != nil {
			if _, err := fmt.Fprintf(c.w, "To: %s %s\r\nSubject: %s%s\r\n\r\n%s\r\n", n.RecipientKind, n.RecipientID, c.prefix, n.Subject, n.Body); err != nil {
				return fmt.Errorf("writing notice to %s: %w", n.RecipientID, err)
			}
		}
		c.sent = append(c.sent, n)
	}
	return nil
}

// Sent returns the notices delivered so far.
func (c *ConsoleSink) Sent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.sent...)
}
