// Package reputation tracks per-source calling accuracy: hit rate, average
// return, speed, composite trust, and flagging of unreliable sources.
package reputation

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/signal-tracker/pkg/config"
)

const (
	defaultTrust  = 50.0
	maxReturnsLog = 200
)

type sourceStats struct {
	mu sync.Mutex

	id         string
	name       string
	sourceType string

	totalCalls      int
	successfulCalls int
	failedCalls     int
	lastCall        time.Time

	// Rolling means; a single running sum drifts on long streams.
	returns     []float64 // capped log of recent outcomes
	avgReturn   float64
	outcomeN    int
	avgMoveSec  float64
	moveSamples int

	hitRate    float64
	speedScore float64
	trustScore float64

	isFlagged  bool
	flagReason string
}

// StatsSnapshot is the exported, immutable view of one source's record.
type StatsSnapshot struct {
	SourceID        string    `json:"source_id"`
	Name            string    `json:"name"`
	SourceType      string    `json:"source_type"`
	TotalCalls      int       `json:"total_calls"`
	SuccessfulCalls int       `json:"successful_calls"`
	FailedCalls     int       `json:"failed_calls"`
	LastCall        time.Time `json:"last_call"`
	HitRate         float64   `json:"hit_rate"`
	AvgReturn       float64   `json:"avg_return"`
	SpeedScore      float64   `json:"speed_score"`
	TrustScore      float64   `json:"trust_score"`
	IsFlagged       bool      `json:"is_flagged"`
	FlagReason      string    `json:"flag_reason,omitempty"`
}

// Tracker holds one stats record per source. Records are created on first
// observed call and never destroyed within the process lifetime.
type Tracker struct {
	mu         sync.RWMutex
	sources    map[string]*sourceStats
	thresholds config.ReputationThresholds
}

func NewTracker(thresholds config.ReputationThresholds) *Tracker {
	return &Tracker{
		sources:    make(map[string]*sourceStats),
		thresholds: thresholds,
	}
}

func (t *Tracker) get(sourceID string) *sourceStats {
	t.mu.RLock()
	s, ok := t.sources[sourceID]
	t.mu.RUnlock()
	if ok {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.sources[sourceID]; ok {
		return s
	}
	s = &sourceStats{id: sourceID, trustScore: defaultTrust}
	t.sources[sourceID] = s
	return s
}

// OnCall records that a source made a call.
func (t *Tracker) OnCall(sourceID, name, sourceType string, at time.Time) {
	s := t.get(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.name = name
	}
	if sourceType != "" {
		s.sourceType = sourceType
	}
	s.totalCalls++
	s.lastCall = at
}

// RecordOutcome feeds a 1-hour return (and optionally the time the token
// took to move, timeToMove < 0 meaning unknown) back into the source's
// record, then recomputes the derived scores and flag state.
func (t *Tracker) RecordOutcome(sourceID string, ret float64, timeToMove time.Duration) {
	s := t.get(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.returns = append(s.returns, ret)
	if len(s.returns) > maxReturnsLog {
		s.returns = s.returns[len(s.returns)-maxReturnsLog:]
	}
	s.outcomeN++
	s.avgReturn += (ret - s.avgReturn) / float64(s.outcomeN)

	if timeToMove >= 0 {
		s.moveSamples++
		s.avgMoveSec += (timeToMove.Seconds() - s.avgMoveSec) / float64(s.moveSamples)
	}

	if ret >= t.thresholds.SuccessReturn {
		s.successfulCalls++
	}
	if ret <= t.thresholds.FailureReturn {
		s.failedCalls++
	}

	s.recomputeLocked(t.thresholds)
}

func (s *sourceStats) recomputeLocked(th config.ReputationThresholds) {
	if s.totalCalls > 0 {
		s.hitRate = float64(s.successfulCalls) / float64(s.totalCalls)
	}
	if s.moveSamples > 0 {
		s.speedScore = clamp(100-s.avgMoveSec/36, 0, 100)
	}

	if s.totalCalls >= th.MinCallsForTrust {
		trust := 40*s.hitRate +
			30*math.Min(s.avgReturn/5, 1) +
			0.2*s.speedScore +
			10*math.Min(float64(s.totalCalls)/50, 1)
		s.trustScore = clamp(trust, 0, 100)
	} else {
		s.trustScore = defaultTrust
	}

	// Flags are sticky: once raised they never clear on their own. The
	// ratio rules run over graded outcomes, not total calls: outcomes lag
	// calls by about an hour, so totalCalls overstates the denominator for
	// a fresh source, and a source can collect outcomes without any
	// classified call at all.
	if s.outcomeN == 0 {
		return
	}
	gradedHitRate := float64(s.successfulCalls) / float64(s.outcomeN)
	switch {
	case s.failedCalls >= 5 && float64(s.failedCalls)/float64(s.outcomeN) > 0.5:
		s.isFlagged = true
		s.flagReason = fmt.Sprintf("high failure rate: %d of %d graded calls failed", s.failedCalls, s.outcomeN)
	case s.outcomeN >= 10 && gradedHitRate < 0.15:
		s.isFlagged = true
		s.flagReason = fmt.Sprintf("hit rate %.0f%% over %d graded calls", gradedHitRate*100, s.outcomeN)
	case s.outcomeN >= 5 && s.avgReturn < -0.2:
		s.isFlagged = true
		s.flagReason = fmt.Sprintf("average return %.2f over %d graded calls", s.avgReturn, s.outcomeN)
	}
}

// AverageTrust averages trust across the given sources, counting unknown
// sources as 50. Satisfies cluster.TrustProvider.
func (t *Tracker) AverageTrust(sourceIDs []string) float64 {
	if len(sourceIDs) == 0 {
		return defaultTrust
	}
	sum := 0.0
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range sourceIDs {
		if s, ok := t.sources[id]; ok {
			s.mu.Lock()
			sum += s.trustScore
			s.mu.Unlock()
		} else {
			sum += defaultTrust
		}
	}
	return sum / float64(len(sourceIDs))
}

// IsFlagged reports the flag state for a source id.
func (t *Tracker) IsFlagged(sourceID string) bool {
	t.mu.RLock()
	s, ok := t.sources[sourceID]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isFlagged
}

// Snapshot returns the source's current record, or false if unknown.
func (t *Tracker) Snapshot(sourceID string) (StatsSnapshot, bool) {
	t.mu.RLock()
	s, ok := t.sources[sourceID]
	t.mu.RUnlock()
	if !ok {
		return StatsSnapshot{}, false
	}
	return s.snapshot(), true
}

// Snapshots returns every source record, unordered.
func (t *Tracker) Snapshots() []StatsSnapshot {
	t.mu.RLock()
	all := make([]*sourceStats, 0, len(t.sources))
	for _, s := range t.sources {
		all = append(all, s)
	}
	t.mu.RUnlock()

	out := make([]StatsSnapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.snapshot())
	}
	return out
}

// Leaderboard filters sources by minimum calls, optionally excludes flagged
// ones, and returns the top n by trust, descending.
func (t *Tracker) Leaderboard(minCalls int, excludeFlagged bool, n int) []StatsSnapshot {
	var out []StatsSnapshot
	for _, s := range t.Snapshots() {
		if s.TotalCalls < minCalls {
			continue
		}
		if excludeFlagged && s.IsFlagged {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrustScore > out[j].TrustScore })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *sourceStats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		SourceID:        s.id,
		Name:            s.name,
		SourceType:      s.sourceType,
		TotalCalls:      s.totalCalls,
		SuccessfulCalls: s.successfulCalls,
		FailedCalls:     s.failedCalls,
		LastCall:        s.lastCall,
		HitRate:         s.hitRate,
		AvgReturn:       s.avgReturn,
		SpeedScore:      s.speedScore,
		TrustScore:      s.trustScore,
		IsFlagged:       s.isFlagged,
		FlagReason:      s.flagReason,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
