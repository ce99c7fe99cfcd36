package policy

import (
	"log"
	"math/rand"

	"theta_trading/internal/models"
)

// ArmStats are the running statistics for one strategy arm. They bias
// future selection and are updated only after a position fully closes.
type ArmStats struct {
	Count       int     `json:"count"`
	Wins        int     `json:"wins"`
	TotalReward float64 `json:"total_reward"`
}

// Mean returns the average realized reward for the arm.
func (s ArmStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalReward / float64(s.Count)
}

// WinRate returns the fraction of closes with positive reward.
func (s ArmStats) WinRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Count)
}

// Allocator is an epsilon-greedy policy over a fixed arm set. Selection
// never fails: on a stale or malformed snapshot, or any internal problem,
// it degrades to uniform-random exploration and logs a warning.
//
// RecordOutcome has a single mutator (the risk loop); SelectArm is called
// from the decision loop only. The scheduler's serialization covers both,
// so no internal locking is carried here.
type Allocator struct {
	arms    []ArmStats
	epsilon float64
	rng     *rand.Rand
}

// NewAllocator creates a policy over n arms with the given exploration
// rate. rng may be nil for a time-seeded source.
func NewAllocator(n int, epsilon float64, rng *rand.Rand) *Allocator {
	if n < 1 {
		n = 1
	}
	if epsilon < 0 {
		epsilon = 0
	}
	if epsilon > 1 {
		epsilon = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Allocator{
		arms:    make([]ArmStats, n),
		epsilon: epsilon,
		rng:     rng,
	}
}

// SelectArm maps a snapshot to an arm index in [0, N). Before any reward
// signal exists, and whenever the snapshot cannot be trusted, it explores
// uniformly at random; this is the documented pre-training behavior, not
// an error path.
func (a *Allocator) SelectArm(snap *models.MarketSnapshot) int {
	if !snap.Valid() {
		log.Printf("[policy] snapshot invalid or stale, selecting uniform-random arm")
		return a.rng.Intn(len(a.arms))
	}

	if a.rng.Float64() < a.epsilon {
		return a.rng.Intn(len(a.arms))
	}

	best, bestMean, observed := 0, 0.0, false
	for i, s := range a.arms {
		if s.Count == 0 {
			continue
		}
		if m := s.Mean(); !observed || m > bestMean {
			best, bestMean, observed = i, m, true
		}
	}
	if !observed {
		return a.rng.Intn(len(a.arms))
	}
	return best
}

// RecordOutcome folds a realized reward into the arm's statistics.
// Out-of-range arms are logged and dropped rather than panicking the
// risk loop.
func (a *Allocator) RecordOutcome(arm int, reward float64) {
	if arm < 0 || arm >= len(a.arms) {
		log.Printf("[policy] dropping outcome for out-of-range arm %d", arm)
		return
	}
	s := &a.arms[arm]
	s.Count++
	s.TotalReward += reward
	if reward > 0 {
		s.Wins++
	}
}

// Arms returns the number of arms in the action space.
func (a *Allocator) Arms() int { return len(a.arms) }

// Stats returns a copy of the per-arm statistics for reporting.
func (a *Allocator) Stats() []ArmStats {
	out := make([]ArmStats, len(a.arms))
	copy(out, a.arms)
	return out
}
