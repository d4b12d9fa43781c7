// Package dedup suppresses repeated messages inside a sliding window using
// an exact content fingerprint plus embedding-based semantic similarity.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/signal-tracker/pkg/embed"
	"github.com/signal-tracker/pkg/extractor"
	"github.com/signal-tracker/pkg/metrics"
	"github.com/signal-tracker/pkg/types"
)

const (
	// Texts shorter than this skip the embedding path; they are too short
	// for cosine similarity to mean anything.
	minSemanticLen = 20
	defaultMaxVecs = 1000
)

type vecEntry struct {
	fingerprint string
	vector      []float64
	seenAt      time.Time
}

// Deduplicator keeps a fingerprint set and a bounded embedding list over a
// shared sliding window. Safe for concurrent use.
type Deduplicator struct {
	mu           sync.Mutex
	window       time.Duration
	threshold    float64
	maxVectors   int
	fingerprints map[string]time.Time
	vectors      []vecEntry

	oracle   embed.Oracle // nil means fingerprint-only
	warnRate *rate.Limiter
	now      func() time.Time
}

func New(window time.Duration, threshold float64, oracle embed.Oracle) *Deduplicator {
	return &Deduplicator{
		window:       window,
		threshold:    threshold,
		maxVectors:   defaultMaxVecs,
		fingerprints: make(map[string]time.Time),
		oracle:       oracle,
		warnRate:     rate.NewLimiter(rate.Every(time.Minute), 1),
		now:          time.Now,
	}
}

// IsDuplicate reports whether text repeats something seen inside the window,
// returning the fingerprint of the match. The exact-hash path is checked
// first; the embedding path only runs for texts longer than minSemanticLen.
func (d *Deduplicator) IsDuplicate(ctx context.Context, text string) (bool, string) {
	fp := extractor.Fingerprint(text)

	d.mu.Lock()
	now := d.now()
	d.pruneLocked(now)
	if _, ok := d.fingerprints[fp]; ok {
		d.mu.Unlock()
		return true, fp
	}
	d.mu.Unlock()

	if d.oracle == nil || len(text) <= minSemanticLen {
		return false, ""
	}

	vec, err := d.oracle.Embed(ctx, text)
	if err != nil {
		metrics.OracleFailures.WithLabelValues("embedding").Inc()
		if d.warnRate.Allow() {
			log.Warn().Err(err).Msg("embedding oracle unavailable, fingerprint-only dedup")
		}
		return false, ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.vectors {
		if embed.Cosine(vec, e.vector) >= d.threshold {
			return true, e.fingerprint
		}
	}
	return false, ""
}

// MarkSeen records the text's fingerprint, and its embedding when the
// oracle is reachable. Oldest vectors are evicted past the cap.
func (d *Deduplicator) MarkSeen(ctx context.Context, text string) {
	fp := extractor.Fingerprint(text)

	var vec []float64
	if d.oracle != nil && len(text) > minSemanticLen {
		v, err := d.oracle.Embed(ctx, text)
		if err == nil {
			vec = v
		} else {
			metrics.OracleFailures.WithLabelValues("embedding").Inc()
			if d.warnRate.Allow() {
				log.Warn().Err(err).Msg("embedding oracle unavailable, fingerprint-only dedup")
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.pruneLocked(now)
	d.fingerprints[fp] = now
	if vec != nil {
		d.vectors = append(d.vectors, vecEntry{fingerprint: fp, vector: vec, seenAt: now})
		if len(d.vectors) > d.maxVectors {
			d.vectors = d.vectors[len(d.vectors)-d.maxVectors:]
		}
	}
}

// DedupeBatch returns the first occurrence of each fingerprint, preserving
// input order. It does not touch the sliding window.
func (d *Deduplicator) DedupeBatch(msgs []types.RawMessage) []types.RawMessage {
	seen := map[string]bool{}
	out := make([]types.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		fp := extractor.Fingerprint(m.Text)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, m)
	}
	return out
}

// GroupBySimilarity partitions texts into semantic groups with a greedy
// single pass: each text joins the first group whose representative is at
// least threshold similar, else opens a new group. Returned indices refer
// to the input slice. Without an oracle every text is its own group.
func (d *Deduplicator) GroupBySimilarity(ctx context.Context, texts []string) [][]int {
	var groups [][]int
	var reps [][]float64

	for i, t := range texts {
		var vec []float64
		if d.oracle != nil && len(t) > minSemanticLen {
			v, err := d.oracle.Embed(ctx, t)
			if err == nil {
				vec = v
			} else {
				metrics.OracleFailures.WithLabelValues("embedding").Inc()
				if d.warnRate.Allow() {
					log.Warn().Err(err).Msg("embedding oracle unavailable during grouping")
				}
			}
		}

		joined := false
		if vec != nil {
			for gi, rep := range reps {
				if rep != nil && embed.Cosine(vec, rep) >= d.threshold {
					groups[gi] = append(groups[gi], i)
					joined = true
					break
				}
			}
		}
		if !joined {
			groups = append(groups, []int{i})
			reps = append(reps, vec)
		}
	}
	return groups
}

func (d *Deduplicator) pruneLocked(now time.Time) {
	cutoff := now.Add(-d.window)
	for fp, t := range d.fingerprints {
		if t.Before(cutoff) {
			delete(d.fingerprints, fp)
		}
	}
	keep := d.vectors[:0]
	for _, e := range d.vectors {
		if !e.seenAt.Before(cutoff) {
			keep = append(keep, e)
		}
	}
	d.vectors = keep
}
