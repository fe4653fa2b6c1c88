package engagement

import (
	"context"
	"errors"
	"sync"
)

// ErrUpdateInFlight is returned by Begin while a previous update awaits confirmation
var ErrUpdateInFlight = errors.New("update already in flight")

// Phase of an optimistic update
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseApplied
	PhaseConfirmed
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseApplied:
		return "applied"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Optimistic holds a locally displayed value that is updated before the server answers.
// Begin applies the local change and keeps a snapshot; Confirm adopts the server's value;
// Rollback restores the exact snapshot. One update may be in flight at a time.
type Optimistic[T any] struct {
	mu       sync.Mutex
	value    T
	snapshot T
	phase    Phase
}

// NewOptimistic creates an idle model holding initial
func NewOptimistic[T any](initial T) *Optimistic[T] {
	return &Optimistic[T]{value: initial}
}

// Value returns the value to display
func (o *Optimistic[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Phase returns the current phase
func (o *Optimistic[T]) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Begin applies fn to the current value
func (o *Optimistic[T]) Begin(fn func(T) T) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseApplied {
		return ErrUpdateInFlight
	}
	o.snapshot = o.value
	o.value = fn(o.value)
	o.phase = PhaseApplied
	return nil
}

// Confirm replaces the optimistic value with the server's truth
func (o *Optimistic[T]) Confirm(server T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseApplied {
		return
	}
	o.value = server
	o.phase = PhaseConfirmed
}

// Rollback restores the value captured by Begin
func (o *Optimistic[T]) Rollback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseApplied {
		return
	}
	o.value = o.snapshot
	o.phase = PhaseRolledBack
}

// Mutate runs one optimistic round trip: apply locally, call the server, then confirm or roll back.
func Mutate[T any](ctx context.Context, o *Optimistic[T], apply func(T) T, call func(ctx context.Context) (T, error)) (T, error) {
	if err := o.Begin(apply); err != nil {
		return o.Value(), err
	}
	server, err := call(ctx)
	if err != nil {
		o.Rollback()
		return o.Value(), err
	}
	o.Confirm(server)
	return o.Value(), nil
}

// LikeView is the displayed like state of one target
type LikeView struct {
	Liked bool
	Count int64
}

// Toggled returns the view after flipping the like
func (v LikeView) Toggled() LikeView {
	if v.Liked {
		n := v.Count - 1
		if n < 0 {
			n = 0
		}
		return LikeView{Liked: false, Count: n}
	}
	return LikeView{Liked: true, Count: v.Count + 1}
}

// ReactionView is the displayed reaction state of one target. Emoji is "" when the viewer has none.
type ReactionView struct {
	Emoji  string
	Counts map[string]int64
}

// WithReaction returns the view after the viewer taps emoji: the same emoji clears it,
// a different one replaces it.
func (v ReactionView) WithReaction(emoji string) ReactionView {
	counts := make(map[string]int64, len(v.Counts)+1)
	for k, n := range v.Counts {
		counts[k] = n
	}

	dec := func(e string) {
		if counts[e] > 1 {
			counts[e]--
		} else {
			delete(counts, e)
		}
	}

	if v.Emoji == emoji {
		dec(emoji)
		return ReactionView{Counts: counts}
	}
	if v.Emoji != "" {
		dec(v.Emoji)
	}
	counts[emoji]++
	return ReactionView{Emoji: emoji, Counts: counts}
}
