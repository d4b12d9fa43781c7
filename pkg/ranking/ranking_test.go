package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/types"
)

func TestScoreTexts_Patterns(t *testing.T) {
	d := NewSpamDetector()

	assert.Zero(t, d.ScoreTexts([]string{"interesting project, watching the chart"}, 2))

	// verify wallet (0.4) + giveaway (0.3) + free tokens (0.3)
	score := d.ScoreTexts([]string{"giveaway! verify your wallet for free tokens"}, 2)
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestScoreTexts_PatternCountedOncePerSet(t *testing.T) {
	d := NewSpamDetector()
	one := d.ScoreTexts([]string{"big giveaway", "tiny giveaway", "another giveaway"}, 3)
	assert.InDelta(t, 0.3, one, 0.001)
}

func TestScoreTexts_BotRepetition(t *testing.T) {
	d := NewSpamDetector()
	texts := []string{"same text", "SAME   text", "same text", "same text"}
	// 1 unique of 4 -> repetition penalty only
	assert.InDelta(t, 0.3, d.ScoreTexts(texts, 4), 0.001)
}

func TestScoreTexts_SingleSourceFlood(t *testing.T) {
	d := NewSpamDetector()
	texts := make([]string, 11)
	for i := range texts {
		texts[i] = "unique message number " + string(rune('a'+i))
	}
	assert.InDelta(t, 0.2, d.ScoreTexts(texts, 1), 0.001)
}

func snap(id string, score float64, firstSeen time.Time, sources ...string) cluster.Snapshot {
	return cluster.Snapshot{
		ID:            id,
		Chain:         config.ChainSolana,
		FirstSeen:     firstSeen,
		PriorityScore: score,
		SourceIDs:     sources,
		TotalMentions: len(sources),
	}
}

func TestFilter(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	snaps := []cluster.Snapshot{
		snap("fresh", 50, now.Add(-10*time.Minute), "s1", "s2"),
		snap("old", 90, now.Add(-2*time.Hour), "s1", "s2"),
		snap("low", 5, now.Add(-5*time.Minute), "s1", "s2"),
	}
	out := Filter(snaps, FilterOptions{MaxAgeMinutes: 60, MinScore: 10, Now: now})
	require.Len(t, out, 1)
	assert.Equal(t, "fresh", out[0].ID)
}

func TestFilter_SoleFlaggedSourceDropped(t *testing.T) {
	now := time.Now()
	flagged := map[string]bool{"bad": true}
	snaps := []cluster.Snapshot{
		snap("solo-bad", 50, now, "bad"),
		snap("mixed", 50, now, "bad", "good"),
		snap("solo-good", 50, now, "good"),
	}
	out := Filter(snaps, FilterOptions{
		ExcludeFlagged: true,
		FlaggedFn:      func(id string) bool { return flagged[id] },
		Now:            now,
	})
	require.Len(t, out, 2)
	assert.Equal(t, "mixed", out[0].ID)
	assert.Equal(t, "solo-good", out[1].ID)
}

func TestFilter_ChainSelection(t *testing.T) {
	now := time.Now()
	a := snap("sol", 50, now, "s1")
	b := snap("base", 50, now, "s1")
	b.Chain = config.ChainBase
	out := Filter([]cluster.Snapshot{a, b}, FilterOptions{Chains: []config.Chain{config.ChainBase}, Now: now})
	require.Len(t, out, 1)
	assert.Equal(t, "base", out[0].ID)
}

func TestRank_StableDescending(t *testing.T) {
	now := time.Now()
	in := []cluster.Snapshot{
		snap("b", 70, now, "s1"),
		snap("a", 90, now, "s1"),
		snap("c", 70, now, "s1"),
	}
	out := Rank(in)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID, "ties keep input order")
	assert.Equal(t, "c", out[2].ID)
	// Input untouched
	assert.Equal(t, "b", in[0].ID)
}

func TestIsBotScan(t *testing.T) {
	assert.True(t, IsBotScan("CA: DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"))
	assert.True(t, IsBotScan("⚡ new pair detected"))
	assert.True(t, IsBotScan("https://dexscreener.com/solana/abc look"))
	assert.False(t, IsBotScan("I think this token has legs, dev is doxxed and the chart looks clean"))
}

func TestIsDiscussion(t *testing.T) {
	assert.True(t, IsDiscussion("looks like a gem, dev seems legit"))
	assert.False(t, IsDiscussion("CA: DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"))
	assert.False(t, IsDiscussion("ok"))
}

func TestRepresentative_PrefersOpinionatedRecent(t *testing.T) {
	mk := func(text string) *types.ProcessedMessage {
		return &types.ProcessedMessage{OriginalText: text, SourceName: "alpha"}
	}
	s := cluster.Snapshot{Messages: []*types.ProcessedMessage{
		mk("https://pump.fun/DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"),
		mk("dev is based, aped a small bag, looks early"),
		mk("gm"),
	}}
	sig := Representative(s, nil)
	assert.Equal(t, "dev is based, aped a small bag, looks early", sig.Text)
	assert.True(t, sig.IsDiscussion)
}

func TestRepresentative_FallsBackToLastMessage(t *testing.T) {
	mk := func(text string) *types.ProcessedMessage {
		return &types.ProcessedMessage{OriginalText: text, SourceName: "alpha"}
	}
	s := cluster.Snapshot{Messages: []*types.ProcessedMessage{mk("gm"), mk("gn")}}
	sig := Representative(s, nil)
	assert.Equal(t, "gn", sig.Text)
	assert.False(t, sig.IsDiscussion)
}

func TestBuildFeedEntry(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := cluster.Snapshot{
		ID:               "c1",
		TokenAddress:     "addr1",
		TokenSymbol:      "TKN",
		Chain:            config.ChainSolana,
		FirstSeen:        now.Add(-30 * time.Minute),
		SourceIDs:        []string{"s1", "s2"},
		SourceNames:      []string{"a", "b", "c", "d", "e", "f", "g"},
		WalletAddresses:  []string{"w1", "w2", "w3", "w4"},
		TotalMentions:    4,
		SentimentBullish: 3,
		SentimentBearish: 1,
		PriorityScore:    82.5,
	}
	entry := BuildFeedEntry(s, now)

	assert.Equal(t, "c1", entry.ClusterID)
	assert.Equal(t, "TKN", entry.Token.Symbol)
	assert.Equal(t, 82.5, entry.Score)
	assert.Equal(t, "bullish", entry.Sentiment.Overall)
	assert.InDelta(t, 75.0, entry.Sentiment.PercentBullish, 0.001)
	assert.InDelta(t, 30.0, entry.Timing.AgeMinutes, 0.001)
	assert.Len(t, entry.Sources, 5)
	assert.Len(t, entry.Wallets, 3)
}
