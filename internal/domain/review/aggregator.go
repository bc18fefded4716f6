package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MeanRating is the mean of ratings rounded to two decimals, half away from
// zero. Rounding is done in integer hundredths so .xx5 means are exact.
// With no ratings it falls back to submitted.
func MeanRating(ratings []int, submitted int) float64 {
	if len(ratings) == 0 {
		return float64(submitted)
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	n := len(ratings)
	cents := (200*sum + n) / (2 * n)
	return float64(cents) / 100
}

// Aggregator keeps DoctorProfile.rating equal to the mean of the doctor's
// reviews.
type Aggregator struct {
	reviews Repository
	doctors DoctorStore
}

func NewAggregator(reviews Repository, doctors DoctorStore) *Aggregator {
	return &Aggregator{reviews: reviews, doctors: doctors}
}

// RecomputeRating re-reads every rating of doctorID and stores the mean. Run
// it in the same transaction as the review insert.
func (a *Aggregator) RecomputeRating(ctx context.Context, doctorID uuid.UUID, submitted int) (float64, error) {
	ratings, err := a.reviews.ListRatingsForDoctor(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("read ratings: %w", err)
	}
	rating := MeanRating(ratings, submitted)
	if err := a.doctors.UpdateRating(ctx, doctorID, rating); err != nil {
		return 0, fmt.Errorf("update rating: %w", err)
	}
	return rating, nil
}
