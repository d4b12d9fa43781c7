// Package jobs runs the engine's periodic work: price refresh, call-outcome
// evaluation, reputation persistence, and stale-cluster retirement.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/db"
	"github.com/signal-tracker/pkg/market"
	"github.com/signal-tracker/pkg/reputation"
)

// Outcomes are evaluated once per cluster, in the narrow age band just past
// one hour. The band is wider than the job period so a cluster cannot slip
// through between runs.
const (
	outcomeMinAge = time.Hour
	outcomeMaxAge = time.Hour + 6*time.Minute
)

type Runner struct {
	cron     *cron.Cron
	cfg      *config.Config
	clusters *cluster.Engine
	tracker  *reputation.Tracker
	market   market.Oracle
	store    *db.Store

	// Cluster ids whose outcome has already been recorded. Guarded by mu;
	// cron triggers can overlap when a run takes longer than the period.
	mu        sync.Mutex
	evaluated map[string]bool
}

func NewRunner(cfg *config.Config, clusters *cluster.Engine, tracker *reputation.Tracker, marketOracle market.Oracle, store *db.Store) *Runner {
	return &Runner{
		cron:      cron.New(),
		cfg:       cfg,
		clusters:  clusters,
		tracker:   tracker,
		market:    marketOracle,
		store:     store,
		evaluated: make(map[string]bool),
	}
}

// Start registers and launches the schedules. Stop with Stop.
func (r *Runner) Start(ctx context.Context) error {
	schedules := []struct {
		every time.Duration
		name  string
		fn    func(context.Context)
	}{
		{r.cfg.PriceRefreshInterval, "price refresh", r.refreshPrices},
		{r.cfg.OutcomeInterval, "outcome evaluation", r.evaluateOutcomes},
		{r.cfg.SnapshotInterval, "reputation persistence", r.persistStats},
		{r.cfg.RetireInterval, "cluster retirement", r.retireStale},
	}
	for _, s := range schedules {
		s := s
		spec := fmt.Sprintf("@every %s", s.every)
		if _, err := r.cron.AddFunc(spec, func() { s.fn(ctx) }); err != nil {
			return fmt.Errorf("schedule %s: %w", s.name, err)
		}
		log.Info().Str("job", s.name).Str("every", s.every.String()).Msg("⏰ job scheduled")
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// refreshPrices pulls current prices for every token with an active cluster.
func (r *Runner) refreshPrices(ctx context.Context) {
	if r.market == nil {
		return
	}
	addrs := r.clusters.ActiveTokenAddresses()
	if len(addrs) == 0 {
		return
	}
	for addr, md := range market.LookupBatch(ctx, r.market, addrs) {
		r.clusters.SetCurrentPrice(addr, md.PriceUSD)
	}
	log.Debug().Int("tokens", len(addrs)).Msg("prices refreshed")
}

// evaluateOutcomes grades hour-old clusters: the 1h return feeds every
// source that mentioned the token, along with how long the token took to hit
// peak activity.
func (r *Runner) evaluateOutcomes(ctx context.Context) {
	snaps := r.clusters.SnapshotsAged(outcomeMinAge, outcomeMaxAge)
	graded := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return
		}
		if r.evaluated[snap.ID] {
			continue
		}
		if snap.PriceAtFirstMention <= 0 || snap.PriceCurrent <= 0 {
			continue // no price trail, nothing to grade
		}
		r.evaluated[snap.ID] = true

		ret := (snap.PriceCurrent - snap.PriceAtFirstMention) / snap.PriceAtFirstMention
		timeToMove := time.Duration(-1)
		if !snap.PeakActivityTime.IsZero() {
			timeToMove = snap.PeakActivityTime.Sub(snap.FirstSeen)
		}
		for _, sourceID := range snap.SourceIDs {
			r.tracker.RecordOutcome(sourceID, ret, timeToMove)
		}
		graded++
	}
	if graded > 0 {
		log.Info().Int("clusters", graded).Msg("📊 call outcomes recorded")
	}

	// The evaluated set only needs to cover clusters still inside the band.
	if len(r.evaluated) > 10000 {
		live := map[string]bool{}
		for _, snap := range snaps {
			if r.evaluated[snap.ID] {
				live[snap.ID] = true
			}
		}
		r.evaluated = live
	}
}

func (r *Runner) persistStats(ctx context.Context) {
	if r.store == nil {
		return
	}
	stats := r.tracker.Snapshots()
	if len(stats) == 0 {
		return
	}
	if err := r.store.SaveSourceStats(stats); err != nil {
		log.Error().Err(err).Msg("reputation persistence failed")
		return
	}
	log.Debug().Int("sources", len(stats)).Msg("reputation persisted")
}

func (r *Runner) retireStale(ctx context.Context) {
	r.clusters.RetireStale()
}
