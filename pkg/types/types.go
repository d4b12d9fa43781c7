package types

import (
	"time"

	"github.com/signal-tracker/pkg/config"
)

// ---- Ingest ----

// RawMessage is one chat message as delivered by a source. Immutable.
type RawMessage struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Chat       string    `json:"chat,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	ReplyToID  string    `json:"reply_to_id,omitempty"`
}

// ---- Extraction ----

type MatchSource string

const (
	MatchSymbol   MatchSource = "symbol"
	MatchPumpLink MatchSource = "pump-link"
	MatchDexLink  MatchSource = "dex-link"
	MatchAddress  MatchSource = "address"
	MatchCAPrefix MatchSource = "ca-prefix"
)

type TokenRef struct {
	Symbol      string       `json:"symbol,omitempty"`
	Address     string       `json:"address,omitempty"`
	Chain       config.Chain `json:"chain"`
	Confidence  float64      `json:"confidence"`
	MatchSource MatchSource  `json:"match_source"`
}

type WalletRef struct {
	Address string       `json:"address"`
	Chain   config.Chain `json:"chain"`
	Label   string       `json:"label,omitempty"` // whale, dev, sniper, fresh, insider, kol
}

type Polarity string

const (
	Bullish Polarity = "bullish"
	Bearish Polarity = "bearish"
	Neutral Polarity = "neutral"
)

type SentimentVerdict struct {
	Polarity       Polarity `json:"polarity"`
	Score          float64  `json:"score"`      // -1..1
	Confidence     float64  `json:"confidence"` // 0..1
	RiskScore      float64  `json:"risk_score"`
	QualityScore   float64  `json:"quality_score"`
	MatchedSignals []string `json:"matched_signals,omitempty"` // capped at 10
	RiskFactors    []string `json:"risk_factors,omitempty"`    // capped at 5
	QualityFactors []string `json:"quality_factors,omitempty"` // capped at 5
}

type Classification string

const (
	ClassCall       Classification = "call"
	ClassAlert      Classification = "alert"
	ClassDiscussion Classification = "discussion"
	ClassSpam       Classification = "spam"
)

// ProcessedMessage is the extractor output. Never mutated after creation.
type ProcessedMessage struct {
	ID                       string           `json:"id"`
	SourceID                 string           `json:"source_id"`
	SourceName               string           `json:"source_name"`
	Chat                     string           `json:"chat,omitempty"`
	Timestamp                time.Time        `json:"timestamp"`
	OriginalText             string           `json:"original_text"` // truncated to 2000 chars
	ContentFingerprint       string           `json:"content_fingerprint"`
	Tokens                   []TokenRef       `json:"tokens,omitempty"`
	Wallets                  []WalletRef      `json:"wallets,omitempty"`
	PriceMentions            []string         `json:"price_mentions,omitempty"`
	Sentiment                SentimentVerdict `json:"sentiment"`
	Classification           Classification   `json:"classification"`
	ClassificationConfidence float64          `json:"classification_confidence"`
}

// ---- Feed contract (§ consumer-facing) ----

type FeedToken struct {
	Address string       `json:"address,omitempty"`
	Symbol  string       `json:"symbol,omitempty"`
	Chain   config.Chain `json:"chain"`
}

type FeedMetrics struct {
	UniqueSources int     `json:"unique_sources"`
	TotalMentions int     `json:"total_mentions"`
	UniqueWallets int     `json:"unique_wallets"`
	Velocity      float64 `json:"velocity"`
}

type FeedSentiment struct {
	Bullish        int     `json:"bullish"`
	Bearish        int     `json:"bearish"`
	Neutral        int     `json:"neutral"`
	Overall        string  `json:"overall"`
	PercentBullish float64 `json:"percent_bullish"`
}

type FeedTiming struct {
	FirstSeenISO string  `json:"first_seen_iso"`
	AgeMinutes   float64 `json:"age_minutes"`
}

type FeedSignal struct {
	Text         string `json:"text"`
	Source       string `json:"source"`
	IsDiscussion bool   `json:"is_discussion"`
}

type FeedEntry struct {
	ClusterID string        `json:"cluster_id"`
	Token     FeedToken     `json:"token"`
	Score     float64       `json:"score"`
	Metrics   FeedMetrics   `json:"metrics"`
	Sentiment FeedSentiment `json:"sentiment"`
	Timing    FeedTiming    `json:"timing"`
	TopSignal FeedSignal    `json:"top_signal"`
	Sources   []string      `json:"sources"` // capped at 5
	Wallets   []string      `json:"wallets"` // capped at 3
}

// ---- Contextual scanner output ----

type TokenMarketData struct {
	Symbol         string       `json:"symbol"`
	Name           string       `json:"name"`
	PriceUSD       float64      `json:"price_usd"`
	MarketCap      float64      `json:"market_cap"`
	LiquidityUSD   float64      `json:"liquidity_usd"`
	PriceChange1h  float64      `json:"price_change_1h"`
	PriceChange24h float64      `json:"price_change_24h"`
	Volume24h      float64      `json:"volume_24h"`
	Chain          config.Chain `json:"chain"`
	ImageURL       string       `json:"image_url,omitempty"`
	DexURL         string       `json:"dex_url,omitempty"`
}

type DiscussionWindow struct {
	Chat     string    `json:"chat"`
	Time     time.Time `json:"time"`
	Messages []string  `json:"messages"`
}

type TokenDiscussion struct {
	Address      string             `json:"address"`
	Chain        config.Chain       `json:"chain"`
	Market       *TokenMarketData   `json:"market,omitempty"`
	MentionCount int                `json:"mention_count"`
	Chats        []string           `json:"chats"`
	FirstSeen    time.Time          `json:"first_seen"`
	LastSeen     time.Time          `json:"last_seen"`
	Windows      []DiscussionWindow `json:"windows,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Sentiment    string             `json:"sentiment"` // bullish, bearish, mixed, neutral
}
