package model

import (
	"fmt"
	"math"
)

const (
	ratingScale = 10000
	ratingMax   = 5 * ratingScale
)

// Rating is a 0-5 star value stored as an integer scaled by 10000
type Rating uint32

// NewRating rounds value to four decimals. Values outside 0..5 are rejected.
func NewRating(value float64) (Rating, error) {
	if math.IsNaN(value) || value < 0 || value > 5 {
		return 0, fmt.Errorf("rating %v out of range 0..5", value)
	}
	scaled := math.Round(value * ratingScale)
	if scaled > ratingMax {
		return 0, fmt.Errorf("rating %v out of range 0..5", value)
	}
	return Rating(scaled), nil
}

// RatingFromScaled rebuilds a rating from its stored form
func RatingFromScaled(v uint32) (Rating, error) {
	if v > ratingMax {
		return 0, fmt.Errorf("scaled rating %d exceeds %d", v, ratingMax)
	}
	return Rating(v), nil
}

// Float returns the star value
func (r Rating) Float() float64 {
	return float64(r) / ratingScale
}

// Scaled returns the stored integer form
func (r Rating) Scaled() uint32 {
	return uint32(r)
}

func (r Rating) String() string {
	return fmt.Sprintf("%.2f", r.Float())
}

// AvgRating is either unrated or carries a rating
type AvgRating struct {
	Rating Rating
	Rated  bool
}

// Unrated is the zero AvgRating
var Unrated = AvgRating{}

// Rated wraps r as a present average rating
func Rated(r Rating) AvgRating {
	return AvgRating{Rating: r, Rated: true}
}

func (a AvgRating) String() string {
	if !a.Rated {
		return "unrated"
	}
	return a.Rating.String()
}

// ParseTagRating interprets the common rating tag scales: FMPS 0-1,
// stars 0-5, percent 0-100 and ID3 POPM 0-255.
func ParseTagRating(value float64) (Rating, error) {
	switch {
	case value < 0:
		return 0, fmt.Errorf("negative rating %v", value)
	case value <= 1 && value != math.Trunc(value):
		return NewRating(value * 5)
	case value <= 5:
		return NewRating(value)
	case value <= 100:
		return NewRating(value / 20)
	case value <= 255:
		return NewRating(value / 51)
	}
	return 0, fmt.Errorf("rating %v out of any known scale", value)
}
