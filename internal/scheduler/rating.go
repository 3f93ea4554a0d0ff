package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuality = errors.New("scheduler: quality out of range 0-5")
	ErrInvalidRating  = errors.New("scheduler: invalid rating")
)

// Quality is the SM-2 recall signal, 0 (blackout) to 5 (perfect).
type Quality int

const (
	MinQuality Quality = 0
	MaxQuality Quality = 5

	// passing is the lowest quality that counts as a successful recall.
	passing Quality = 3
)

func (q Quality) IsValid() bool { return q >= MinQuality && q <= MaxQuality }

// Rating is one of the four review buttons.
type Rating string

const (
	Again Rating = "again"
	Hard  Rating = "hard"
	Good  Rating = "good"
	Easy  Rating = "easy"
)

var ratingQuality = map[Rating]Quality{
	Again: 0,
	Hard:  3,
	Good:  4,
	Easy:  5,
}

// Ratings lists the buttons in display order.
var Ratings = []Rating{Again, Hard, Good, Easy}

// ParseRating accepts a button name in any case.
func ParseRating(s string) (Rating, error) {
	r := Rating(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := ratingQuality[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return r, nil
}

// Quality maps the button to its SM-2 quality. Unknown ratings map to -1.
func (r Rating) Quality() Quality {
	q, ok := ratingQuality[r]
	if !ok {
		return -1
	}
	return q
}

func (r Rating) String() string { return string(r) }
