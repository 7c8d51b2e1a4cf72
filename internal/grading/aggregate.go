package grading

import (
	"fmt"
	"math"
)

// Status is the qualitative label attached to a percentage.
type Status string

const (
	StatusExcellent Status = "Excellent"
	StatusGood      Status = "Good"
	StatusAverage   Status = "Average"
	StatusPoor      Status = "Poor"
)

// BandStep maps a minimum correct-answer count to a band score.
type BandStep struct {
	MinCorrect int
	Band       float64
}

// DefaultBandTable is the half-point scale shared by every module, highest step first.
var DefaultBandTable = []BandStep{
	{MinCorrect: 39, Band: 9},
	{MinCorrect: 37, Band: 8.5},
	{MinCorrect: 35, Band: 8},
	{MinCorrect: 33, Band: 7.5},
	{MinCorrect: 30, Band: 7},
	{MinCorrect: 27, Band: 6.5},
	{MinCorrect: 23, Band: 6},
	{MinCorrect: 19, Band: 5.5},
	{MinCorrect: 15, Band: 5},
	{MinCorrect: 12, Band: 4.5},
	{MinCorrect: 9, Band: 4},
	{MinCorrect: 6, Band: 3.5},
	{MinCorrect: 3, Band: 3},
	{MinCorrect: 0, Band: 2.5},
}

// Summary is the reporting view over a set of answer records.
type Summary struct {
	TotalQuestions int
	CorrectAnswers int
	WrongAnswers   int
	Percentage     int
	Status         Status
	BandScore      float64
}

// ScoreAggregator derives percentage, status and band score from correct counts.
type ScoreAggregator struct {
	bands []BandStep
}

// NewScoreAggregator uses the provided table, falling back to DefaultBandTable.
// Steps must be ordered from the highest MinCorrect down.
func NewScoreAggregator(bands []BandStep) ScoreAggregator {
	if len(bands) == 0 {
		bands = DefaultBandTable
	}
	return ScoreAggregator{bands: bands}
}

// Aggregate summarises correct answers out of totalQuestions. A zero total is
// a caller error, not a zero score.
func (a ScoreAggregator) Aggregate(correct, totalQuestions int) (Summary, error) {
	if totalQuestions <= 0 {
		return Summary{}, fmt.Errorf("aggregate %d correct: %w", correct, ErrNoQuestions)
	}

	if correct < 0 {
		correct = 0
	}
	if correct > totalQuestions {
		correct = totalQuestions
	}

	percentage := int(math.Round(100 * float64(correct) / float64(totalQuestions)))

	return Summary{
		TotalQuestions: totalQuestions,
		CorrectAnswers: correct,
		WrongAnswers:   totalQuestions - correct,
		Percentage:     percentage,
		Status:         StatusFor(percentage),
		BandScore:      a.BandScore(correct),
	}, nil
}

// BandScore walks the table and never returns less than its floor.
func (a ScoreAggregator) BandScore(correct int) float64 {
	for _, step := range a.bands {
		if correct >= step.MinCorrect {
			return step.Band
		}
	}
	return a.bands[len(a.bands)-1].Band
}

// StatusFor buckets a percentage into the four-tier status.
func StatusFor(percentage int) Status {
	switch {
	case percentage >= 80:
		return StatusExcellent
	case percentage >= 60:
		return StatusGood
	case percentage >= 40:
		return StatusAverage
	default:
		return StatusPoor
	}
}
