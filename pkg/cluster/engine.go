// Package cluster maintains per-token rolling aggregates of recent messages
// with minute-bucket velocity tracking and composite scoring.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/metrics"
	"github.com/signal-tracker/pkg/types"
)

// TrustProvider reports average source trust for score computation.
// Unknown sources count as 50.
type TrustProvider interface {
	AverageTrust(sourceIDs []string) float64
}

// SpamScorer rates a cluster's message set in [0,1].
type SpamScorer interface {
	ScoreTexts(texts []string, uniqueSources int) float64
}

// Sink receives retired cluster snapshots.
type Sink interface {
	Persist(snap Snapshot) error
}

// Cluster is the in-memory rolling aggregate for one token on one chain.
// All mutation goes through its lock; readers take snapshots.
type Cluster struct {
	mu sync.Mutex

	id           string
	key          string
	tokenAddress string
	tokenSymbol  string
	chain        config.Chain

	firstSeen    time.Time
	lastSeen     time.Time
	peakActivity time.Time

	messages    []*types.ProcessedMessage
	sourceIDs   map[string]bool
	sourceNames map[string]bool
	wallets     map[string]bool

	totalMentions     int
	mentionsPerMinute float64
	peakPerMinute     int

	sentBullish int
	sentBearish int
	sentNeutral int

	urgency    float64
	novelty    float64
	confidence float64
	priority   float64

	priceFirst   float64
	pricePeak    float64
	priceCurrent float64

	ring        minuteRing
	quarantined bool
}

// Snapshot is an immutable copy of a cluster's state. Message pointers are
// shared; ProcessedMessages are never mutated after creation.
type Snapshot struct {
	ID                    string                  `json:"id"`
	Key                   string                  `json:"key"`
	TokenAddress          string                  `json:"token_address,omitempty"`
	TokenSymbol           string                  `json:"token_symbol,omitempty"`
	Chain                 config.Chain            `json:"chain"`
	FirstSeen             time.Time               `json:"first_seen"`
	LastSeen              time.Time               `json:"last_seen"`
	PeakActivityTime      time.Time               `json:"peak_activity_time"`
	SourceIDs             []string                `json:"source_ids"`
	SourceNames           []string                `json:"source_names"`
	WalletAddresses       []string                `json:"wallet_addresses"`
	TotalMentions         int                     `json:"total_mentions"`
	MentionsPerMinute     float64                 `json:"mentions_per_minute"`
	PeakMentionsPerMinute int                     `json:"peak_mentions_per_minute"`
	SentimentBullish      int                     `json:"sentiment_bullish"`
	SentimentBearish      int                     `json:"sentiment_bearish"`
	SentimentNeutral      int                     `json:"sentiment_neutral"`
	UrgencyScore          float64                 `json:"urgency_score"`
	NoveltyScore          float64                 `json:"novelty_score"`
	ConfidenceScore       float64                 `json:"confidence_score"`
	PriorityScore         float64                 `json:"priority_score"`
	PriceAtFirstMention   float64                 `json:"price_at_first_mention"`
	PriceAtPeak           float64                 `json:"price_at_peak"`
	PriceCurrent          float64                 `json:"price_current"`
	Messages              []*types.ProcessedMessage `json:"-"`
}

// Engine owns the active-cluster map. One active cluster per key at a time.
type Engine struct {
	mu     sync.RWMutex
	active map[string]*Cluster

	window  time.Duration
	weights config.ScoringWeights
	trust   TrustProvider
	spam    SpamScorer
	sink    Sink
	now     func() time.Time
}

func NewEngine(window time.Duration, weights config.ScoringWeights, trust TrustProvider, spam SpamScorer, sink Sink) *Engine {
	return &Engine{
		active:  make(map[string]*Cluster),
		window:  window,
		weights: weights,
		trust:   trust,
		spam:    spam,
		sink:    sink,
		now:     time.Now,
	}
}

// Key selects the active cluster for a token reference.
func Key(ref types.TokenRef) string {
	if ref.Address != "" {
		return fmt.Sprintf("%s:%s", ref.Address, ref.Chain)
	}
	if ref.Symbol != "" {
		return fmt.Sprintf("$%s:%s", ref.Symbol, ref.Chain)
	}
	return fmt.Sprintf("unknown:%s:%s", ref.Chain, uuid.NewString())
}

// Add routes the message into one cluster per token reference and returns
// the updated snapshots, in token order.
func (e *Engine) Add(pm *types.ProcessedMessage) []Snapshot {
	now := e.now()
	var updated []Snapshot
	for _, ref := range pm.Tokens {
		key := Key(ref)
		c := e.getOrCreate(key, ref, now)
		snap, ok := c.add(e, pm, ref, now)
		if !ok {
			// Invariant violation: quarantine by retiring immediately.
			e.remove(key, c)
			e.emit(snap)
			metrics.QuarantinedClusters.Inc()
			continue
		}
		updated = append(updated, snap)
	}
	return updated
}

func (e *Engine) getOrCreate(key string, ref types.TokenRef, now time.Time) *Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.active[key]; ok {
		c.mu.Lock()
		stale := now.Sub(c.lastSeen) > e.window
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if !stale {
			return c
		}
		delete(e.active, key)
		e.emit(snap)
	}

	c := &Cluster{
		id:           uuid.NewString(),
		key:          key,
		tokenAddress: ref.Address,
		tokenSymbol:  ref.Symbol,
		chain:        ref.Chain,
		firstSeen:    now,
		lastSeen:     now,
		sourceIDs:    map[string]bool{},
		sourceNames:  map[string]bool{},
		wallets:      map[string]bool{},
		novelty:      100,
	}
	e.active[key] = c
	return c
}

func (c *Cluster) add(e *Engine, pm *types.ProcessedMessage, ref types.TokenRef, now time.Time) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, pm)
	c.lastSeen = now
	c.totalMentions++
	if c.tokenSymbol == "" && ref.Symbol != "" {
		c.tokenSymbol = ref.Symbol
	}
	if c.tokenAddress == "" && ref.Address != "" {
		c.tokenAddress = ref.Address
	}
	c.sourceIDs[pm.SourceID] = true
	if pm.SourceName != "" {
		c.sourceNames[pm.SourceName] = true
	}
	for _, w := range pm.Wallets {
		c.wallets[w.Address] = true
	}

	switch pm.Sentiment.Polarity {
	case types.Bullish:
		c.sentBullish++
	case types.Bearish:
		c.sentBearish++
	default:
		c.sentNeutral++
	}

	minute := now.Unix() / 60
	count := c.ring.bump(minute)
	if count > c.peakPerMinute {
		c.peakPerMinute = count
		c.peakActivity = time.Unix(minute*60, 0).UTC()
		if c.priceCurrent > 0 {
			c.pricePeak = c.priceCurrent
		}
	}
	c.mentionsPerMinute = c.ring.velocity(minute)

	c.recomputeScoresLocked(e, now)

	if c.sentBullish+c.sentBearish+c.sentNeutral != c.totalMentions {
		log.Error().Str("cluster", c.id).
			Int("bullish", c.sentBullish).Int("bearish", c.sentBearish).
			Int("neutral", c.sentNeutral).Int("total", c.totalMentions).
			Msg("sentiment counters drifted from total, quarantining cluster")
		c.quarantined = true
		return c.snapshotLocked(), false
	}
	return c.snapshotLocked(), true
}

func (c *Cluster) recomputeScoresLocked(e *Engine, now time.Time) {
	w := e.weights
	ageSec := now.Sub(c.firstSeen).Seconds()
	s := float64(len(c.sourceIDs))
	v := c.mentionsPerMinute
	wallets := float64(len(c.wallets))

	avgTrust := 50.0
	if e.trust != nil {
		avgTrust = e.trust.AverageTrust(keys(c.sourceIDs))
	}
	spam := 0.0
	if e.spam != nil {
		texts := make([]string, len(c.messages))
		for i, m := range c.messages {
			texts[i] = m.OriginalText
		}
		spam = e.spam.ScoreTexts(texts, len(c.sourceIDs))
	}

	sourceDiversity := math.Min(s/5, 1) * w.SourceDiversity
	recency := math.Max(0, 1-ageSec/3600) * w.Recency
	velocityComp := math.Min(v/5, 1) * w.Velocity
	walletActivity := math.Min(wallets/3, 1) * w.WalletActivity
	sourceQuality := (avgTrust / 100) * w.SourceQuality

	c.confidence = math.Min(s*15, 100)
	c.urgency = math.Min((velocityComp+recency)*1.5, 100)
	c.novelty = math.Max(0, 100-ageSec/60)
	c.priority = clamp(sourceDiversity+recency+velocityComp+walletActivity+sourceQuality+w.SpamPenalty*spam, 0, 100)
}

func (c *Cluster) snapshotLocked() Snapshot {
	msgs := make([]*types.ProcessedMessage, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		ID:                    c.id,
		Key:                   c.key,
		TokenAddress:          c.tokenAddress,
		TokenSymbol:           c.tokenSymbol,
		Chain:                 c.chain,
		FirstSeen:             c.firstSeen,
		LastSeen:              c.lastSeen,
		PeakActivityTime:      c.peakActivity,
		SourceIDs:             keys(c.sourceIDs),
		SourceNames:           keys(c.sourceNames),
		WalletAddresses:       keys(c.wallets),
		TotalMentions:         c.totalMentions,
		MentionsPerMinute:     c.mentionsPerMinute,
		PeakMentionsPerMinute: c.peakPerMinute,
		SentimentBullish:      c.sentBullish,
		SentimentBearish:      c.sentBearish,
		SentimentNeutral:      c.sentNeutral,
		UrgencyScore:          c.urgency,
		NoveltyScore:          c.novelty,
		ConfidenceScore:       c.confidence,
		PriorityScore:         c.priority,
		PriceAtFirstMention:   c.priceFirst,
		PriceAtPeak:           c.pricePeak,
		PriceCurrent:          c.priceCurrent,
		Messages:              msgs,
	}
}

// Snapshots returns copies of every active cluster, novelty and priority
// recomputed against the current clock.
func (e *Engine) Snapshots() []Snapshot {
	now := e.now()
	e.mu.RLock()
	clusters := make([]*Cluster, 0, len(e.active))
	for _, c := range e.active {
		clusters = append(clusters, c)
	}
	e.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(clusters))
	for _, c := range clusters {
		c.mu.Lock()
		c.mentionsPerMinute = c.ring.velocity(now.Unix() / 60)
		c.recomputeScoresLocked(e, now)
		snaps = append(snaps, c.snapshotLocked())
		c.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].LastSeen.After(snaps[j].LastSeen) })
	return snaps
}

// SnapshotsAged returns active clusters whose age falls inside [min, max].
func (e *Engine) SnapshotsAged(min, max time.Duration) []Snapshot {
	now := e.now()
	var out []Snapshot
	for _, snap := range e.Snapshots() {
		age := now.Sub(snap.FirstSeen)
		if age >= min && age <= max {
			out = append(out, snap)
		}
	}
	return out
}

// ActiveTokenAddresses lists unique token addresses across active clusters.
func (e *Engine) ActiveTokenAddresses() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range e.active {
		c.mu.Lock()
		addr := c.tokenAddress
		c.mu.Unlock()
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// SetCurrentPrice updates every active cluster holding the address. The
// first observed price doubles as the at-first-mention price.
func (e *Engine) SetCurrentPrice(address string, price float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.active {
		c.mu.Lock()
		if c.tokenAddress == address {
			c.priceCurrent = price
			if c.priceFirst == 0 {
				c.priceFirst = price
			}
		}
		c.mu.Unlock()
	}
}

// RetireStale retires every cluster idle past the window, handing each to
// the sink. Safe to run alongside lazy retirement in getOrCreate.
func (e *Engine) RetireStale() int {
	now := e.now()
	e.mu.Lock()
	var retired []Snapshot
	for key, c := range e.active {
		c.mu.Lock()
		stale := now.Sub(c.lastSeen) > e.window
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if stale {
			delete(e.active, key)
			retired = append(retired, snap)
		}
	}
	e.mu.Unlock()

	for _, snap := range retired {
		e.emit(snap)
	}
	if len(retired) > 0 {
		log.Info().Int("count", len(retired)).Msg("🧹 retired stale clusters")
	}
	return len(retired)
}

// ActiveCount is the number of live clusters.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

func (e *Engine) remove(key string, c *Cluster) {
	e.mu.Lock()
	if e.active[key] == c {
		delete(e.active, key)
	}
	e.mu.Unlock()
}

func (e *Engine) emit(snap Snapshot) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Persist(snap); err != nil {
		log.Error().Err(err).Str("cluster", snap.ID).Msg("cluster sink persist failed")
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
