package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/types"
)

type fakeMarket struct {
	prices map[string]float64
	calls  int
}

func (f *fakeMarket) Lookup(_ context.Context, address string) (*types.TokenMarketData, error) {
	f.calls++
	if p, ok := f.prices[address]; ok {
		return &types.TokenMarketData{Symbol: "TKN", PriceUSD: p}, nil
	}
	return nil, nil
}

func testClusters() (*cluster.Engine, *reputation.Tracker) {
	tracker := reputation.NewTracker(config.ReputationThresholds{SuccessReturn: 0.5, FailureReturn: -0.3, MinCallsForTrust: 3})
	clusters := cluster.NewEngine(2*time.Hour, config.ScoringWeights{
		SourceDiversity: 25, Recency: 20, Velocity: 20,
		WalletActivity: 15, SourceQuality: 20, SpamPenalty: -30,
	}, tracker, nil, nil)
	return clusters, tracker
}

func addTokenMessage(clusters *cluster.Engine, addr string) {
	clusters.Add(&types.ProcessedMessage{
		ID:        "m-" + addr,
		SourceID:  "s1",
		Timestamp: time.Now(),
		Sentiment: types.SentimentVerdict{Polarity: types.Neutral},
		Tokens: []types.TokenRef{{
			Address: addr, Chain: config.ChainSolana, Confidence: 0.95,
		}},
	})
}

func testConfig() *config.Config {
	return &config.Config{
		PriceRefreshInterval: time.Minute,
		OutcomeInterval:      5 * time.Minute,
		SnapshotInterval:     15 * time.Minute,
		RetireInterval:       time.Hour,
	}
}

func TestRefreshPrices(t *testing.T) {
	clusters, tracker := testClusters()
	addTokenMessage(clusters, "addr1")
	addTokenMessage(clusters, "addr2")

	mk := &fakeMarket{prices: map[string]float64{"addr1": 0.5}}
	r := NewRunner(testConfig(), clusters, tracker, mk, nil)
	r.refreshPrices(context.Background())

	assert.Equal(t, 2, mk.calls, "every active token is looked up")

	snaps := clusters.Snapshots()
	byAddr := map[string]cluster.Snapshot{}
	for _, s := range snaps {
		byAddr[s.TokenAddress] = s
	}
	assert.Equal(t, 0.5, byAddr["addr1"].PriceCurrent)
	assert.Equal(t, 0.5, byAddr["addr1"].PriceAtFirstMention)
	assert.Zero(t, byAddr["addr2"].PriceCurrent, "unknown token stays unpriced")
}

func TestRefreshPrices_NoOracle(t *testing.T) {
	clusters, tracker := testClusters()
	addTokenMessage(clusters, "addr1")
	r := NewRunner(testConfig(), clusters, tracker, nil, nil)
	// Must be a no-op, not a panic.
	r.refreshPrices(context.Background())
}

func TestEvaluateOutcomes_SkipsYoungAndUnpriced(t *testing.T) {
	clusters, tracker := testClusters()
	addTokenMessage(clusters, "addr1")
	clusters.SetCurrentPrice("addr1", 0.001)

	r := NewRunner(testConfig(), clusters, tracker, nil, nil)
	r.evaluateOutcomes(context.Background())

	// Cluster is minutes old, far outside the grading band.
	s, ok := tracker.Snapshot("s1")
	if ok {
		assert.Zero(t, s.SuccessfulCalls)
		assert.Zero(t, s.FailedCalls)
	}
	assert.Empty(t, r.evaluated)
}

func TestStartStop(t *testing.T) {
	clusters, tracker := testClusters()
	r := NewRunner(testConfig(), clusters, tracker, nil, nil)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}
