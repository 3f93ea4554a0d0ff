package scheduler

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	day = 24 * time.Hour
)

// State is the SM-2 scheduling record owned by one flashcard.
type State struct {
	EaseFactor   float64    `json:"easeFactor"`
	Interval     int        `json:"interval"`
	Repetitions  int        `json:"repetitions"`
	NextReview   time.Time  `json:"nextReview"`
	LastReviewed *time.Time `json:"lastReviewed"`
}

// NewState returns the state of a card that has never been reviewed and is due at now.
func NewState(now time.Time) State {
	return State{EaseFactor: DefaultEaseFactor, NextReview: now}
}

// Review applies one SM-2 rating at time now and returns the new state. s is not modified.
func Review(s State, q Quality, now time.Time) (State, error) {
	if !q.IsValid() {
		return s, fmt.Errorf("%w: %d", ErrInvalidQuality, q)
	}

	next := s
	if q >= passing {
		switch next.Repetitions {
		case 0:
			next.Interval = 1
		case 1:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(s.Interval) * s.EaseFactor))
		}
		next.Repetitions++
	} else {
		next.Repetitions = 0
		next.Interval = 1
	}

	// The ease update always uses the pre-review ease and the raw quality.
	miss := float64(MaxQuality - q)
	next.EaseFactor = math.Max(MinEaseFactor, s.EaseFactor+(0.1-miss*(0.08+miss*0.02)))

	reviewed := now
	next.NextReview = now.Add(time.Duration(next.Interval) * day)
	next.LastReviewed = &reviewed
	return next, nil
}

// Rate is Review driven by a button.
func Rate(s State, r Rating, now time.Time) (State, error) {
	q := r.Quality()
	if q < 0 {
		return s, fmt.Errorf("%w: %q", ErrInvalidRating, string(r))
	}
	return Review(s, q, now)
}

// Preview returns the state each button would produce.
func Preview(s State, now time.Time) map[Rating]State {
	out := make(map[Rating]State, len(Ratings))
	for _, r := range Ratings {
		next, _ := Rate(s, r, now)
		out[r] = next
	}
	return out
}

func (s State) IsNew() bool { return s.Repetitions == 0 }

func (s State) IsDue(now time.Time) bool { return !s.NextReview.After(now) }

// IsMastered reports at least three successful reviews with a healthy ease and a week-long interval.
func (s State) IsMastered() bool {
	return s.Repetitions >= 3 && s.EaseFactor >= DefaultEaseFactor && s.Interval >= 7
}
