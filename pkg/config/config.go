package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

func AllChains() []Chain {
	return []Chain{ChainSolana, ChainEthereum, ChainBase, ChainBSC}
}

// ScoringWeights are the cluster priority weights. Each weight is the
// maximum contribution of its component to the composite score.
type ScoringWeights struct {
	SourceDiversity float64
	Recency         float64
	Velocity        float64
	WalletActivity  float64
	SourceQuality   float64
	SpamPenalty     float64
}

// ReputationThresholds control how call outcomes are classified.
type ReputationThresholds struct {
	SuccessReturn    float64 // 1h return at or above this is a hit
	FailureReturn    float64 // 1h return at or below this is a rug
	MinCallsForTrust int     // below this, trust stays at the default 50
}

type Config struct {
	// Pipeline windows
	ClusterWindow       time.Duration
	DedupWindow         time.Duration
	SimilarityThreshold float64
	BatchSize           int
	BatchInterval       time.Duration
	EmbeddingDimension  int

	// Worker / queue sizing
	ProcessorWorkers int
	QueueCapacity    int
	QueueHighWater   int

	Scoring    ScoringWeights
	Reputation ReputationThresholds

	// Ranking defaults for the HTTP feed
	FeedMaxAgeMinutes int
	FeedMinScore      float64
	FeedMinSources    int
	FeedMinMentions   int
	FeedChains        []Chain
	FeedLimit         int

	// Contextual scanner
	ScanTopN           int
	ScanContextWindow  time.Duration
	SummaryMaxMessages int

	// Oracle endpoints and deadlines
	EmbeddingURL     string
	EmbeddingTimeout time.Duration
	DexScreenerAPI   string
	MarketTimeout    time.Duration
	LLMTimeout       time.Duration

	// LLM summarizer (optional)
	AIProvider      string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaURL       string
	AIModel         string
	AIMaxTokens     int

	// Job periods
	PriceRefreshInterval time.Duration
	OutcomeInterval      time.Duration
	SnapshotInterval     time.Duration
	RetireInterval       time.Duration

	// Ingest
	ReplayFile string

	// Persistence / serving
	DBPath   string
	HTTPPort int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ClusterWindow:       time.Duration(envInt("CLUSTER_WINDOW_MINUTES", 30)) * time.Minute,
		DedupWindow:         time.Duration(envInt("DEDUP_WINDOW_MINUTES", 5)) * time.Minute,
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.85),
		BatchSize:           envInt("BATCH_SIZE", 100),
		BatchInterval:       time.Duration(envFloat("BATCH_INTERVAL_SECONDS", 2.0) * float64(time.Second)),
		EmbeddingDimension:  envInt("EMBEDDING_DIMENSION", 384),

		ProcessorWorkers: envInt("PROCESSOR_WORKERS", 4),
		QueueCapacity:    envInt("QUEUE_CAPACITY", 10000),
		QueueHighWater:   envInt("QUEUE_HIGH_WATER", 8000),

		Scoring: ScoringWeights{
			SourceDiversity: envFloat("SOURCE_DIVERSITY_WEIGHT", 25),
			Recency:         envFloat("RECENCY_WEIGHT", 20),
			Velocity:        envFloat("VELOCITY_WEIGHT", 20),
			WalletActivity:  envFloat("WALLET_ACTIVITY_WEIGHT", 15),
			SourceQuality:   envFloat("SOURCE_QUALITY_WEIGHT", 20),
			SpamPenalty:     envFloat("SPAM_PENALTY_WEIGHT", -30),
		},
		Reputation: ReputationThresholds{
			SuccessReturn:    envFloat("REP_SUCCESS_RETURN", 0.5),
			FailureReturn:    envFloat("REP_FAILURE_RETURN", -0.3),
			MinCallsForTrust: envInt("REP_MIN_CALLS_FOR_TRUST", 3),
		},

		FeedMaxAgeMinutes: envInt("FEED_MAX_AGE_MINUTES", 60),
		FeedMinScore:      envFloat("FEED_MIN_SCORE", 0),
		FeedMinSources:    envInt("FEED_MIN_SOURCES", 1),
		FeedMinMentions:   envInt("FEED_MIN_MENTIONS", 1),
		FeedLimit:         envInt("FEED_LIMIT", 50),

		ScanTopN:           envInt("SCAN_TOP_N", 50),
		ScanContextWindow:  time.Duration(envInt("SCAN_CONTEXT_WINDOW_MINUTES", 10)) * time.Minute,
		SummaryMaxMessages: envInt("SUMMARY_MAX_MESSAGES", 15),

		EmbeddingURL:     os.Getenv("EMBEDDING_URL"),
		EmbeddingTimeout: time.Duration(envInt("EMBEDDING_TIMEOUT_SECONDS", 10)) * time.Second,
		DexScreenerAPI:   envOr("DEXSCREENER_API", "https://api.dexscreener.com"),
		MarketTimeout:    time.Duration(envInt("MARKET_TIMEOUT_SECONDS", 30)) * time.Second,
		LLMTimeout:       time.Duration(envInt("LLM_TIMEOUT_SECONDS", 20)) * time.Second,

		AIProvider:      os.Getenv("AI_PROVIDER"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaURL:       os.Getenv("OLLAMA_URL"),
		AIModel:         os.Getenv("AI_MODEL"),
		AIMaxTokens:     envInt("AI_MAX_TOKENS", 1024),

		PriceRefreshInterval: time.Duration(envInt("PRICE_REFRESH_SECONDS", 60)) * time.Second,
		OutcomeInterval:      time.Duration(envInt("OUTCOME_INTERVAL_MINUTES", 5)) * time.Minute,
		SnapshotInterval:     time.Duration(envInt("SNAPSHOT_INTERVAL_MINUTES", 15)) * time.Minute,
		RetireInterval:       time.Duration(envInt("RETIRE_INTERVAL_MINUTES", 60)) * time.Minute,

		ReplayFile: os.Getenv("REPLAY_FILE"),

		DBPath:   envOr("DB_PATH", "signal_tracker.db"),
		HTTPPort: envInt("HTTP_PORT", 8080),
	}

	for _, c := range splitTrim(os.Getenv("FEED_CHAINS")) {
		cfg.FeedChains = append(cfg.FeedChains, Chain(c))
	}

	return cfg, nil
}

// helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
