package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signal-tracker/pkg/types"
)

func TestAnalyze_Bullish(t *testing.T) {
	v := Analyze("this gem is mooning, super bullish")
	assert.Equal(t, types.Bullish, v.Polarity)
	assert.Greater(t, v.Score, 0.2)
	assert.NotEmpty(t, v.MatchedSignals)
}

func TestAnalyze_Bearish(t *testing.T) {
	v := Analyze("dev dumped, total rug, avoid")
	assert.Equal(t, types.Bearish, v.Polarity)
	assert.Less(t, v.Score, -0.2)
}

func TestAnalyze_NeutralWhenNoSignals(t *testing.T) {
	v := Analyze("gm everyone")
	assert.Equal(t, types.Neutral, v.Polarity)
	assert.Zero(t, v.Score)
	assert.Zero(t, v.Confidence)
}

func TestAnalyze_MixedStaysNeutral(t *testing.T) {
	// buy (+1.0) vs sell (-1.0): ratio 0, inside the neutral band
	v := Analyze("some buy, some sell")
	assert.Equal(t, types.Neutral, v.Polarity)
}

func TestAnalyze_RiskLowersQuality(t *testing.T) {
	v := Analyze("honeypot, lp unlocked, anon dev, sketchy")
	assert.Greater(t, v.RiskScore, 50.0)
	assert.Less(t, v.QualityScore, 50.0)
	assert.NotEmpty(t, v.RiskFactors)
}

func TestAnalyze_QualitySignals(t *testing.T) {
	v := Analyze("liquidity locked, contract audited, team doxxed")
	assert.Greater(t, v.QualityScore, 50.0)
	assert.NotEmpty(t, v.QualityFactors)
}

func TestAnalyze_Deterministic(t *testing.T) {
	text := "bullish gem, aped early, lfg, but dev is anon and lp unlocked"
	a := Analyze(text)
	b := Analyze(text)
	assert.Equal(t, a, b)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want types.Classification
	}{
		{"free tokens giveaway, click here now", types.ClassSpam},
		{"aped in at 200k mcap", types.ClassCall},
		{"warning: dev sold everything", types.ClassAlert},
		{"anyone know when the roadmap drops?", types.ClassDiscussion},
	}
	for _, tc := range cases {
		got, conf := Classify(tc.text)
		assert.Equal(t, tc.want, got, tc.text)
		assert.GreaterOrEqual(t, conf, 0.5)
		assert.LessOrEqual(t, conf, 0.95)
	}
}

func TestClassify_SingleSpamHitIsNotSpam(t *testing.T) {
	// One spam pattern alone is not enough to call it spam
	got, _ := Classify("airdrop season is coming for real projects")
	assert.NotEqual(t, types.ClassSpam, got)
}
