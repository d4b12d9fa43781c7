package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/dedup"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/types"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func testEngine(cfg *config.Config) *Engine {
	tracker := reputation.NewTracker(config.ReputationThresholds{SuccessReturn: 0.5, FailureReturn: -0.3, MinCallsForTrust: 3})
	clusters := cluster.NewEngine(30*time.Minute, config.ScoringWeights{
		SourceDiversity: 25, Recency: 20, Velocity: 20,
		WalletActivity: 15, SourceQuality: 20, SpamPenalty: -30,
	}, tracker, nil, nil)
	dd := dedup.New(5*time.Minute, 0.85, nil)
	return New(cfg, dd, clusters, tracker)
}

func smallConfig() *config.Config {
	return &config.Config{
		ProcessorWorkers: 2,
		QueueCapacity:    16,
		QueueHighWater:   8,
		BatchSize:        4,
		BatchInterval:    10 * time.Millisecond,
	}
}

func rawMsg(id, text string) types.RawMessage {
	return types.RawMessage{ID: id, SourceID: "s1", SourceName: "alpha", Timestamp: time.Now(), Text: text}
}

func TestHasTokenSignal(t *testing.T) {
	assert.True(t, hasTokenSignal("$PEPE to the moon"))
	assert.True(t, hasTokenSignal("CA "+bonkMint))
	assert.True(t, hasTokenSignal("https://pump.fun/"+bonkMint))
	assert.False(t, hasTokenSignal("gm everyone"))
}

func TestEnqueue_ShedsChatterPastHighWater(t *testing.T) {
	cfg := smallConfig()
	cfg.QueueCapacity = 4
	cfg.QueueHighWater = 2
	e := testEngine(cfg)

	e.Enqueue(rawMsg("1", "gm"))
	e.Enqueue(rawMsg("2", "gm again"))
	assert.Equal(t, 2, e.QueueDepth())

	// Past high water: chatter sheds, token content still gets in.
	e.Enqueue(rawMsg("3", "more chatter"))
	assert.Equal(t, 2, e.QueueDepth())
	e.Enqueue(rawMsg("4", "$PEPE entry now"))
	assert.Equal(t, 3, e.QueueDepth())
}

func TestHandleOne_ClustersAndDedups(t *testing.T) {
	e := testEngine(smallConfig())
	ctx := context.Background()

	e.handleOne(ctx, rawMsg("1", "aped $WIF, CA: "+bonkMint))
	assert.Equal(t, 1, e.clusters.ActiveCount())

	snap := e.clusters.Snapshots()[0]
	assert.Equal(t, 1, snap.TotalMentions)

	// Same text again inside the dedup window is suppressed.
	e.handleOne(ctx, rawMsg("2", "aped $WIF, CA: "+bonkMint))
	assert.Equal(t, 1, e.clusters.Snapshots()[0].TotalMentions)
}

func TestHandleOne_MalformedDropped(t *testing.T) {
	e := testEngine(smallConfig())
	ctx := context.Background()

	e.handleOne(ctx, rawMsg("1", "   "))
	m := rawMsg("2", "$PEPE entry")
	m.Timestamp = time.Time{}
	e.handleOne(ctx, m)

	assert.Equal(t, 0, e.clusters.ActiveCount())
}

func TestHandleOne_CallFeedsReputation(t *testing.T) {
	e := testEngine(smallConfig())
	e.handleOne(context.Background(), rawMsg("1", "aped $WIF, CA: "+bonkMint))

	s, ok := e.tracker.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, 1, s.TotalCalls)
}

func TestSubscribe_ReceivesUpdates(t *testing.T) {
	e := testEngine(smallConfig())
	updates, cancel := e.Subscribe(8)
	defer cancel()

	e.handleOne(context.Background(), rawMsg("1", "aped $WIF, CA: "+bonkMint))

	select {
	case snap := <-updates:
		assert.Equal(t, bonkMint, snap.TokenAddress)
	default:
		t.Fatal("expected a snapshot on the subscriber channel")
	}
}

func TestPublish_DropsStuckSubscriber(t *testing.T) {
	e := testEngine(smallConfig())
	updates, cancel := e.Subscribe(1)
	defer cancel()

	for i := 0; i <= maxSubscriberMisses; i++ {
		e.publish(cluster.Snapshot{ID: fmt.Sprintf("c%d", i)})
	}

	e.subMu.Lock()
	remaining := len(e.subs)
	e.subMu.Unlock()
	assert.Zero(t, remaining)

	// Channel was closed after the buffered snapshot.
	<-updates
	_, open := <-updates
	assert.False(t, open)
}

func TestEnqueue_AfterShutdownIsShed(t *testing.T) {
	e := testEngine(smallConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	// A replay source mid-handler may still call Enqueue after the
	// pipeline has stopped; the message is shed, never a panic.
	e.Enqueue(rawMsg("late", "$PEPE entry now"))
	assert.Equal(t, 0, e.QueueDepth())
}

func TestRun_DrainsOnCancel(t *testing.T) {
	e := testEngine(smallConfig())
	for i := 0; i < 5; i++ {
		e.Enqueue(rawMsg(fmt.Sprintf("m%d", i), fmt.Sprintf("aped $COIN%c, watch it", 'A'+i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	assert.Equal(t, 0, e.QueueDepth())
	assert.Equal(t, 5, e.clusters.ActiveCount())
}
