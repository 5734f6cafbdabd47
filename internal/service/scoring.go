package service

import (
	"math"
	"time"

	"devmemory-be/internal/entity"
)

// ScoreInput is everything a productivity scorer may look at.
type ScoreInput struct {
	Counters    entity.Counters
	TokenInput  int64
	TokenOutput int64
	Elapsed     time.Duration
}

// Scorer turns a session's activity into a score in [0, 100].
type Scorer interface {
	Name() string
	Score(in ScoreInput) float64
}

// WeightedActivityScorer sums weighted activity points, divides by elapsed
// hours and maps the rate through rate/(rate+HalfSaturation). A session
// producing HalfSaturation points per hour scores 50.
type WeightedActivityScorer struct {
	ContextWeight       float64
	DecisionWeight      float64
	TaskCreatedWeight   float64
	TaskCompletedWeight float64
	// PerThousandTokens is the weight of each 1000 tokens exchanged.
	PerThousandTokens float64
	HalfSaturation    float64
	// MinElapsed keeps very short sessions from producing huge rates.
	MinElapsed time.Duration
}

func NewWeightedActivityScorer() *WeightedActivityScorer {
	return &WeightedActivityScorer{
		ContextWeight:       1,
		DecisionWeight:      2,
		TaskCreatedWeight:   1,
		TaskCompletedWeight: 3,
		PerThousandTokens:   0.1,
		HalfSaturation:      10,
		MinElapsed:          10 * time.Minute,
	}
}

func (w *WeightedActivityScorer) Name() string { return "weighted_activity" }

func (w *WeightedActivityScorer) Score(in ScoreInput) float64 {
	points := w.ContextWeight*float64(in.Counters.ContextsCreated) +
		w.DecisionWeight*float64(in.Counters.DecisionsCreated) +
		w.TaskCreatedWeight*float64(in.Counters.TasksCreated) +
		w.TaskCompletedWeight*float64(in.Counters.TasksCompleted) +
		w.PerThousandTokens*float64(in.TokenInput+in.TokenOutput)/1000
	if points <= 0 || math.IsNaN(points) {
		return 0
	}

	elapsed := in.Elapsed
	if elapsed < w.MinElapsed {
		elapsed = w.MinElapsed
	}
	if elapsed <= 0 {
		elapsed = time.Minute
	}
	rate := points / elapsed.Hours()

	half := w.HalfSaturation
	if half <= 0 {
		half = 1
	}
	score := 100 * rate / (rate + half)
	return math.Round(math.Min(100, math.Max(0, score))*100) / 100
}
