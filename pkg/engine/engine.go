// Package engine wires ingest, extraction, dedup, clustering, and reputation
// into the streaming hot path, and fans updated cluster snapshots out to
// push subscribers.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/dedup"
	"github.com/signal-tracker/pkg/extractor"
	"github.com/signal-tracker/pkg/metrics"
	"github.com/signal-tracker/pkg/patterns"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/types"
)

// Dropping a subscriber after this many consecutive missed sends keeps one
// stuck websocket from silently losing the whole stream forever.
const maxSubscriberMisses = 64

type subscriber struct {
	ch     chan cluster.Snapshot
	misses int
}

// Engine is the streaming pipeline. Messages enter through Enqueue and come
// out as updated cluster snapshots on subscriber channels.
type Engine struct {
	cfg      *config.Config
	dedup    *dedup.Deduplicator
	clusters *cluster.Engine
	tracker  *reputation.Tracker

	inMu   sync.Mutex
	in     chan types.RawMessage
	closed bool

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

func New(cfg *config.Config, dd *dedup.Deduplicator, clusters *cluster.Engine, tracker *reputation.Tracker) *Engine {
	return &Engine{
		cfg:      cfg,
		dedup:    dd,
		clusters: clusters,
		tracker:  tracker,
		in:       make(chan types.RawMessage, cfg.QueueCapacity),
		subs:     make(map[int]*subscriber),
	}
}

// hasTokenSignal is the cheap pre-check that decides queue priority: a
// message with any token-shaped content survives high water, chatter does
// not. Full extraction happens later in the workers.
func hasTokenSignal(text string) bool {
	return patterns.SymbolRe.MatchString(text) ||
		patterns.SolanaAddrRe.MatchString(text) ||
		patterns.EVMAddrRe.MatchString(text) ||
		patterns.PumpFunRe.MatchString(text) ||
		patterns.DexScreenerRe.MatchString(text)
}

// Enqueue admits a raw message to the pipeline. Past high water, messages
// without token-shaped content are shed first; a full queue sheds anything.
// After shutdown everything is shed. Never blocks.
func (e *Engine) Enqueue(msg types.RawMessage) {
	e.inMu.Lock()
	defer e.inMu.Unlock()
	if e.closed {
		metrics.QueueDropped.Inc()
		return
	}
	if len(e.in) >= e.cfg.QueueHighWater && !hasTokenSignal(msg.Text) {
		metrics.QueueDropped.Inc()
		return
	}
	select {
	case e.in <- msg:
	default:
		metrics.QueueDropped.Inc()
	}
}

// Run processes until ctx is cancelled, then drains what is already queued.
func (e *Engine) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		// Producers may still be inside Enqueue; flip the flag under the
		// same lock before closing so none can send on a closed channel.
		e.inMu.Lock()
		if !e.closed {
			e.closed = true
			close(e.in)
		}
		e.inMu.Unlock()
	}()

	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < e.cfg.ProcessorWorkers; i++ {
		g.Go(func() error {
			e.worker(gctx)
			return nil
		})
	}
	err := g.Wait()

	e.subMu.Lock()
	for id, s := range e.subs {
		close(s.ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()

	log.Info().Msg("pipeline stopped")
	return err
}

// worker drains the ingest queue in batches: up to BatchSize messages or
// whatever arrived within BatchInterval, whichever fills first.
func (e *Engine) worker(ctx context.Context) {
	for {
		batch, open := e.nextBatch()
		if len(batch) > 0 {
			for _, msg := range e.dedup.DedupeBatch(batch) {
				e.handleOne(ctx, msg)
			}
		}
		if !open {
			return
		}
	}
}

func (e *Engine) nextBatch() ([]types.RawMessage, bool) {
	msg, ok := <-e.in
	if !ok {
		return nil, false
	}
	batch := []types.RawMessage{msg}
	timer := time.NewTimer(e.cfg.BatchInterval)
	defer timer.Stop()

	for len(batch) < e.cfg.BatchSize {
		select {
		case m, open := <-e.in:
			if !open {
				return batch, false
			}
			batch = append(batch, m)
		case <-timer.C:
			return batch, true
		}
	}
	return batch, true
}

func (e *Engine) handleOne(ctx context.Context, msg types.RawMessage) {
	if strings.TrimSpace(msg.Text) == "" || msg.Timestamp.IsZero() {
		metrics.MalformedDropped.Inc()
		return
	}
	pm := extractor.Extract(msg)

	if dup, _ := e.dedup.IsDuplicate(ctx, pm.OriginalText); dup {
		metrics.DuplicatesSuppressed.Inc()
		return
	}
	e.dedup.MarkSeen(ctx, pm.OriginalText)

	if pm.Classification == types.ClassCall && len(pm.Tokens) > 0 {
		e.tracker.OnCall(pm.SourceID, pm.SourceName, "chat", pm.Timestamp)
	}

	for _, snap := range e.clusters.Add(pm) {
		e.publish(snap)
	}
	metrics.MessagesProcessed.Inc()
}

// Subscribe registers a push consumer. The returned cancel func is safe to
// call more than once.
func (e *Engine) Subscribe(buffer int) (<-chan cluster.Snapshot, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	s := &subscriber{ch: make(chan cluster.Snapshot, buffer)}
	e.subs[id] = s
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			if cur, ok := e.subs[id]; ok && cur == s {
				delete(e.subs, id)
				close(s.ch)
			}
			e.subMu.Unlock()
		})
	}
	return s.ch, cancel
}

// publish fans a snapshot out without blocking. A subscriber that misses too
// many sends in a row is dropped.
func (e *Engine) publish(snap cluster.Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, s := range e.subs {
		select {
		case s.ch <- snap:
			s.misses = 0
		default:
			s.misses++
			if s.misses >= maxSubscriberMisses {
				delete(e.subs, id)
				close(s.ch)
				metrics.SubscribersDropped.Inc()
				log.Warn().Int("subscriber", id).Msg("dropped slow push subscriber")
			}
		}
	}
}

// QueueDepth reports the current ingest backlog.
func (e *Engine) QueueDepth() int { return len(e.in) }
