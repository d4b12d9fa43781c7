// Package ranking filters and orders cluster snapshots into the consumer
// feed: spam scoring, threshold filters, stable priority ordering, and
// representative-message selection.
package ranking

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/types"
)

// ---- Spam detection ----

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

var spamTable = []weightedPattern{
	{regexp.MustCompile(`(?i)\bgiveaway\b`), 0.3},
	{regexp.MustCompile(`(?i)\bairdrop\b`), 0.2},
	{regexp.MustCompile(`(?i)free\s+tokens?\b`), 0.3},
	{regexp.MustCompile(`(?i)click\s+here`), 0.2},
	{regexp.MustCompile(`(?i)(verify|connect)\s+(your\s+)?wallet`), 0.4},
	{regexp.MustCompile(`(?i)\bdm\s+me\b`), 0.2},
	{regexp.MustCompile(`(?i)join\s+(now|fast)`), 0.2},
	{regexp.MustCompile(`(?i)100%\s*(guaranteed|profit)`), 0.3},
}

// SpamDetector rates a cluster's message set in [0,1]. It satisfies
// cluster.SpamScorer.
type SpamDetector struct{}

func NewSpamDetector() *SpamDetector { return &SpamDetector{} }

// ScoreTexts sums pattern weights (each pattern counted once across the
// set), adds bot-behavior and single-source penalties, and caps at 1.
func (d *SpamDetector) ScoreTexts(texts []string, uniqueSources int) float64 {
	score := 0.0
	for _, wp := range spamTable {
		for _, t := range texts {
			if wp.re.MatchString(t) {
				score += wp.weight
				break
			}
		}
	}

	total := len(texts)
	if total > 3 {
		unique := map[string]bool{}
		for _, t := range texts {
			unique[strings.Join(strings.Fields(strings.ToLower(t)), " ")] = true
		}
		if float64(len(unique))/float64(total) < 0.5 {
			score += 0.3 // bot repetition
		}
	}
	if uniqueSources == 1 && total > 10 {
		score += 0.2 // single-source flood
	}

	if score > 1 {
		score = 1
	}
	return score
}

// ---- Filtering and ordering ----

type FilterOptions struct {
	MaxAgeMinutes  int
	MinScore       float64
	MinSources     int
	MinMentions    int
	Chains         []config.Chain
	ExcludeFlagged bool
	// FlaggedFn reports whether a source id is flagged. Required when
	// ExcludeFlagged is set.
	FlaggedFn func(sourceID string) bool
	Now       time.Time
}

// Filter applies the feed filters in spec order. A multi-source cluster is
// kept even when one of its sources is flagged; only clusters whose sole
// source is flagged are dropped.
func Filter(snaps []cluster.Snapshot, opts FilterOptions) []cluster.Snapshot {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	chainSet := map[config.Chain]bool{}
	for _, c := range opts.Chains {
		chainSet[c] = true
	}

	var out []cluster.Snapshot
	for _, s := range snaps {
		if opts.MaxAgeMinutes > 0 && now.Sub(s.FirstSeen) > time.Duration(opts.MaxAgeMinutes)*time.Minute {
			continue
		}
		if s.PriorityScore < opts.MinScore {
			continue
		}
		if len(s.SourceIDs) < opts.MinSources {
			continue
		}
		if s.TotalMentions < opts.MinMentions {
			continue
		}
		if len(chainSet) > 0 && !chainSet[s.Chain] {
			continue
		}
		if opts.ExcludeFlagged && opts.FlaggedFn != nil &&
			len(s.SourceIDs) == 1 && opts.FlaggedFn(s.SourceIDs[0]) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Rank sorts snapshots by priority, descending, stable.
func Rank(snaps []cluster.Snapshot) []cluster.Snapshot {
	out := make([]cluster.Snapshot, len(snaps))
	copy(out, snaps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityScore > out[j].PriorityScore
	})
	return out
}

// ---- Representative message ----

var opinionWords = map[string]bool{
	"bullish": true, "bearish": true, "ape": true, "buy": true, "sell": true,
	"moon": true, "pump": true, "dev": true, "team": true, "looks": true,
	"think": true, "feel": true, "entry": true, "target": true, "whale": true,
	"gem": true, "alpha": true, "early": true, "legit": true, "rug": true,
	"scam": true, "careful": true, "safe": true, "based": true,
}

var (
	wordRe      = regexp.MustCompile(`[a-z]+`)
	urlRe       = regexp.MustCompile(`https?://[^\s]+`)
	caPostRe    = regexp.MustCompile(`(?i)^\s*(ca|contract|address)\s*[:：]`)
	botGlyphRe  = regexp.MustCompile(`^\s*[⚡🔫🎯🤖💊🟢🔴⬆️⬇️📊/]`)
	platformRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)pump\.fun/`),
		regexp.MustCompile(`(?i)dexscreener\.com/`),
		regexp.MustCompile(`(?i)birdeye\.so/`),
		regexp.MustCompile(`(?i)jup\.ag/`),
		regexp.MustCompile(`(?i)photon-sol\.tinyastro\.io/`),
	}
)

func opinionHits(text string) int {
	n := 0
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if opinionWords[w] {
			n++
		}
	}
	return n
}

func hasPlatformURL(text string) bool {
	for _, re := range platformRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsBotScan flags messages that are scanner output rather than human
// discussion: contract-address posts, bare links, leading bot glyphs.
func IsBotScan(text string) bool {
	if caPostRe.MatchString(text) {
		return true
	}
	if botGlyphRe.MatchString(text) {
		return true
	}
	stripped := strings.TrimSpace(urlRe.ReplaceAllString(text, ""))
	return urlRe.MatchString(text) && len(stripped) < 50
}

// IsDiscussion is the inverse heuristic used by the contextual scanner: a
// message with substance beyond links and scan output.
func IsDiscussion(text string) bool {
	if IsBotScan(text) {
		return false
	}
	return opinionHits(text) >= 1 || len(text) > 100
}

func contextScore(m *types.ProcessedMessage) int {
	score := len(m.OriginalText)
	if score > 300 {
		score = 300
	}
	score += 40 * opinionHits(m.OriginalText)
	if m.Sentiment.Polarity == types.Bullish || m.Sentiment.Polarity == types.Bearish {
		score += 50
	}
	return score
}

// Representative picks the cluster's top signal. Preference order:
// a high-scoring surrounding-context message, then a recent opinionated
// in-cluster message without platform links, then the last message.
func Representative(snap cluster.Snapshot, contexts []*types.ProcessedMessage) types.FeedSignal {
	best := -1
	bestScore := 80 // tier-1 threshold
	for i, m := range contexts {
		if IsBotScan(m.OriginalText) {
			continue
		}
		if s := contextScore(m); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 {
		m := contexts[best]
		return types.FeedSignal{Text: m.OriginalText, Source: m.SourceName, IsDiscussion: true}
	}

	msgs := snap.Messages
	start := len(msgs) - 10
	if start < 0 {
		start = 0
	}
	for i := len(msgs) - 1; i >= start; i-- {
		m := msgs[i]
		if hasPlatformURL(m.OriginalText) {
			continue
		}
		if opinionHits(m.OriginalText) >= 1 || len(m.OriginalText) > 100 {
			return types.FeedSignal{Text: m.OriginalText, Source: m.SourceName, IsDiscussion: true}
		}
	}

	if len(msgs) > 0 {
		m := msgs[len(msgs)-1]
		return types.FeedSignal{Text: m.OriginalText, Source: m.SourceName, IsDiscussion: false}
	}
	return types.FeedSignal{}
}

// ---- Feed assembly ----

// BuildFeedEntry shapes one ranked snapshot into the consumer feed record.
func BuildFeedEntry(snap cluster.Snapshot, now time.Time) types.FeedEntry {
	overall := "neutral"
	switch {
	case snap.SentimentBullish > snap.SentimentBearish:
		overall = "bullish"
	case snap.SentimentBearish > snap.SentimentBullish:
		overall = "bearish"
	}
	pctBullish := 0.0
	if snap.TotalMentions > 0 {
		pctBullish = 100 * float64(snap.SentimentBullish) / float64(snap.TotalMentions)
	}

	return types.FeedEntry{
		ClusterID: snap.ID,
		Token: types.FeedToken{
			Address: snap.TokenAddress,
			Symbol:  snap.TokenSymbol,
			Chain:   snap.Chain,
		},
		Score: snap.PriorityScore,
		Metrics: types.FeedMetrics{
			UniqueSources: len(snap.SourceIDs),
			TotalMentions: snap.TotalMentions,
			UniqueWallets: len(snap.WalletAddresses),
			Velocity:      snap.MentionsPerMinute,
		},
		Sentiment: types.FeedSentiment{
			Bullish:        snap.SentimentBullish,
			Bearish:        snap.SentimentBearish,
			Neutral:        snap.SentimentNeutral,
			Overall:        overall,
			PercentBullish: pctBullish,
		},
		Timing: types.FeedTiming{
			FirstSeenISO: snap.FirstSeen.UTC().Format(time.RFC3339),
			AgeMinutes:   now.Sub(snap.FirstSeen).Minutes(),
		},
		TopSignal: Representative(snap, nil),
		Sources:   capStrings(snap.SourceNames, 5),
		Wallets:   capStrings(snap.WalletAddresses, 3),
	}
}

func capStrings(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
