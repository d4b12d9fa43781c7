package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveCluster(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()

	err := store.SaveCluster(cluster.Snapshot{
		ID:            "c1",
		Key:           "addr1:solana",
		TokenAddress:  "addr1",
		TokenSymbol:   "TKN",
		Chain:         config.ChainSolana,
		FirstSeen:     now.Add(-time.Hour),
		LastSeen:      now,
		SourceIDs:     []string{"s1", "s2"},
		TotalMentions: 7,
		PriorityScore: 61.5,
	})
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RetiredClusters)

	// Same id upserts, not duplicates.
	require.NoError(t, store.SaveCluster(cluster.Snapshot{ID: "c1", Key: "addr1:solana", Chain: config.ChainSolana}))
	stats, _ = store.GetStats()
	assert.Equal(t, 1, stats.RetiredClusters)
}

func TestSourceStatsRoundTrip(t *testing.T) {
	store := testStore(t)

	in := []reputation.StatsSnapshot{
		{SourceID: "good", Name: "winner", TotalCalls: 10, SuccessfulCalls: 8, HitRate: 0.8, TrustScore: 71.0},
		{SourceID: "bad", Name: "rugger", TotalCalls: 6, FailedCalls: 6, TrustScore: 2.0, IsFlagged: true, FlagReason: "high failure rate: 6 of 6 calls failed"},
		{SourceID: "new", Name: "rookie", TotalCalls: 1, TrustScore: 50.0},
	}
	require.NoError(t, store.SaveSourceStats(in))

	board, err := store.LoadLeaderboard(3, 10)
	require.NoError(t, err)
	require.Len(t, board, 2, "min-calls filter applies")
	assert.Equal(t, "good", board[0].SourceID, "best trust first")
	assert.Equal(t, "bad", board[1].SourceID)
	assert.True(t, board[1].IsFlagged)
	assert.Contains(t, board[1].FlagReason, "failure")
}

func TestSaveDiscoveries(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()

	err := store.SaveDiscoveries([]types.TokenDiscussion{
		{
			Address:      "addr1",
			Chain:        config.ChainSolana,
			Market:       &types.TokenMarketData{Symbol: "BONK", MarketCap: 1e6},
			MentionCount: 3,
			Chats:        []string{"alpha"},
			FirstSeen:    now,
			LastSeen:     now,
			Summary:      "people like it",
			Sentiment:    "bullish",
		},
		{Address: "addr2", Chain: config.ChainBase, FirstSeen: now, LastSeen: now},
	})
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Discoveries)
}

func TestBufferedSink(t *testing.T) {
	store := testStore(t)
	sink := NewBufferedSink(store, 10)

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Persist(cluster.Snapshot{
			ID:    string(rune('a' + i)),
			Key:   "k",
			Chain: config.ChainSolana,
		}))
	}
	sink.Close()

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RetiredClusters)

	assert.Error(t, sink.Persist(cluster.Snapshot{ID: "late"}), "closed sink rejects writes")
}
