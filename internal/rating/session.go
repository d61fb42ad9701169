// Package rating holds the resumable judgement session: an explicit state
// machine over one rater's assignment, with the answer store as the single
// source of resume position. The interactive surface (terminal UI) drives
// the machine; the machine owns ordering and durability, the UI owns pixels.
package rating

import (
	"context"
	"fmt"
	"time"

	"pemstudy/internal/types"
)

// State is one node of the session machine.
type State string

const (
	StateAwaitingItem       State = "awaiting-item"
	StatePresentingItem     State = "presenting-item"
	StateCollectingResponse State = "collecting-response"
	StatePersisting         State = "persisting"
	StatePaused             State = "paused"
	StateComplete           State = "complete"
)

// AnswerWriter persists one judgement durably. The session never advances
// past an item until the writer returns nil.
type AnswerWriter interface {
	Put(ctx context.Context, a types.RaterAnswer) error
}

// Response is one validated judgement for the current item.
type Response struct {
	Score   int
	Comment string
}

// Session walks a rater through their remaining assignment items in order.
// It is single-threaded: callers drive it one transition at a time.
type Session struct {
	rater  string
	writer AnswerWriter

	items []types.AssignmentItem // remaining, in presentation order
	pos   int
	state State

	answered int // persisted this session
}

// NewSession builds a session over the rater's assignment, skipping every
// item whose key already has a persisted answer. Order of the remaining
// items is the assignment's presentation order, untouched: terminating and
// restarting resumes at exactly the first unanswered item.
func NewSession(rater string, assignment []types.AssignmentItem, answered map[types.AnswerKey]bool, writer AnswerWriter) (*Session, error) {
	if rater == "" {
		return nil, fmt.Errorf("rater is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("answer writer is required")
	}

	var remaining []types.AssignmentItem
	for _, item := range assignment {
		key := types.AnswerKey{Rater: rater, Unit: item.Unit, Variant: item.Variant}
		if answered[key] {
			continue
		}
		remaining = append(remaining, item)
	}

	s := &Session{
		rater:  rater,
		writer: writer,
		items:  remaining,
		state:  StateAwaitingItem,
	}
	if len(remaining) == 0 {
		s.state = StateComplete
	}
	return s, nil
}

// State returns the machine's current state.
func (s *Session) State() State { return s.state }

// Remaining reports how many items are left, including the current one.
func (s *Session) Remaining() int { return len(s.items) - s.pos }

// Answered reports how many judgements this session has persisted.
func (s *Session) Answered() int { return s.answered }

// Current returns the item under presentation or collection.
func (s *Session) Current() (types.AssignmentItem, bool) {
	if s.pos >= len(s.items) {
		return types.AssignmentItem{}, false
	}
	return s.items[s.pos], true
}

// Next moves AwaitingItem to PresentingItem and returns the item to render.
func (s *Session) Next() (types.AssignmentItem, error) {
	if s.state != StateAwaitingItem {
		return types.AssignmentItem{}, fmt.Errorf("cannot present from state %q", s.state)
	}
	item, ok := s.Current()
	if !ok {
		s.state = StateComplete
		return types.AssignmentItem{}, fmt.Errorf("no items remain")
	}
	s.state = StatePresentingItem
	return item, nil
}

// Presented acknowledges the render and opens response collection.
func (s *Session) Presented() error {
	if s.state != StatePresentingItem {
		return fmt.Errorf("cannot collect from state %q", s.state)
	}
	s.state = StateCollectingResponse
	return nil
}

// Submit validates the response, persists it, and advances. An invalid
// response leaves the machine collecting; a write failure leaves it
// persisting so the same response can be retried. Only a successful write
// moves past the item.
func (s *Session) Submit(ctx context.Context, resp Response) error {
	switch s.state {
	case StateCollectingResponse:
		if !types.ValidScore(resp.Score) {
			return fmt.Errorf("score must be between %d and %d", types.MinScore, types.MaxScore)
		}
		s.state = StatePersisting
	case StatePersisting:
		// Retrying a failed write.
	default:
		return fmt.Errorf("cannot submit from state %q", s.state)
	}

	item := s.items[s.pos]
	answer := types.RaterAnswer{
		Rater:      s.rater,
		Unit:       item.Unit,
		Variant:    item.Variant,
		Category:   item.Category,
		Score:      resp.Score,
		Comment:    resp.Comment,
		AnsweredAt: time.Now().UTC(),
	}
	if err := s.writer.Put(ctx, answer); err != nil {
		return fmt.Errorf("failed to persist answer for %s: %w", answer.Key(), err)
	}

	s.answered++
	s.pos++
	if s.pos >= len(s.items) {
		s.state = StateComplete
	} else {
		s.state = StateAwaitingItem
	}
	return nil
}

// Pause suspends the session from any live state.
func (s *Session) Pause() error {
	if s.state == StatePaused {
		return nil
	}
	if s.state == StateComplete {
		return fmt.Errorf("session is complete")
	}
	s.state = StatePaused
	return nil
}

// Resume returns a paused session to AwaitingItem. A pause taken mid-item
// re-presents that item from the top; nothing persisted is repeated and
// nothing pending is skipped.
func (s *Session) Resume() error {
	if s.state != StatePaused {
		return fmt.Errorf("cannot resume from state %q", s.state)
	}
	s.state = StateAwaitingItem
	return nil
}
