// Package db persists retired clusters, source reputation stats, and scan
// discoveries to SQLite.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/metrics"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS clusters (
	id TEXT PRIMARY KEY,
	cluster_key TEXT NOT NULL,
	token_address TEXT,
	token_symbol TEXT,
	chain TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	peak_activity TIMESTAMP,
	total_mentions INTEGER NOT NULL,
	unique_sources INTEGER NOT NULL,
	unique_wallets INTEGER NOT NULL,
	sentiment_bullish INTEGER NOT NULL,
	sentiment_bearish INTEGER NOT NULL,
	sentiment_neutral INTEGER NOT NULL,
	peak_per_minute INTEGER NOT NULL,
	priority_score REAL NOT NULL,
	price_first REAL,
	price_peak REAL,
	price_current REAL,
	source_ids TEXT,
	retired_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clusters_token ON clusters(token_address);
CREATE INDEX IF NOT EXISTS idx_clusters_retired ON clusters(retired_at);

CREATE TABLE IF NOT EXISTS source_stats (
	source_id TEXT PRIMARY KEY,
	name TEXT,
	source_type TEXT,
	total_calls INTEGER NOT NULL,
	successful_calls INTEGER NOT NULL,
	failed_calls INTEGER NOT NULL,
	last_call TIMESTAMP,
	hit_rate REAL NOT NULL,
	avg_return REAL NOT NULL,
	speed_score REAL NOT NULL,
	trust_score REAL NOT NULL,
	is_flagged INTEGER NOT NULL DEFAULT 0,
	flag_reason TEXT,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS discoveries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT NOT NULL,
	chain TEXT NOT NULL,
	symbol TEXT,
	mention_count INTEGER NOT NULL,
	chat_count INTEGER NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	market_cap REAL,
	liquidity_usd REAL,
	price_usd REAL,
	summary TEXT,
	sentiment TEXT,
	scanned_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_discoveries_addr ON discoveries(address);
`

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info().Str("path", path).Msg("💾 database ready")
	return &Store{db: conn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveCluster writes one retired cluster snapshot.
func (s *Store) SaveCluster(snap cluster.Snapshot) error {
	sourceIDs, _ := json.Marshal(snap.SourceIDs)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO clusters (
			id, cluster_key, token_address, token_symbol, chain,
			first_seen, last_seen, peak_activity,
			total_mentions, unique_sources, unique_wallets,
			sentiment_bullish, sentiment_bearish, sentiment_neutral,
			peak_per_minute, priority_score,
			price_first, price_peak, price_current,
			source_ids, retired_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Key, snap.TokenAddress, snap.TokenSymbol, string(snap.Chain),
		snap.FirstSeen, snap.LastSeen, snap.PeakActivityTime,
		snap.TotalMentions, len(snap.SourceIDs), len(snap.WalletAddresses),
		snap.SentimentBullish, snap.SentimentBearish, snap.SentimentNeutral,
		snap.PeakMentionsPerMinute, snap.PriorityScore,
		snap.PriceAtFirstMention, snap.PriceAtPeak, snap.PriceCurrent,
		string(sourceIDs), time.Now().UTC(),
	)
	return err
}

// SaveSourceStats upserts the full reputation table in one transaction.
func (s *Store) SaveSourceStats(stats []reputation.StatsSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO source_stats (
			source_id, name, source_type,
			total_calls, successful_calls, failed_calls, last_call,
			hit_rate, avg_return, speed_score, trust_score,
			is_flagged, flag_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, st := range stats {
		if _, err := stmt.Exec(
			st.SourceID, st.Name, st.SourceType,
			st.TotalCalls, st.SuccessfulCalls, st.FailedCalls, st.LastCall,
			st.HitRate, st.AvgReturn, st.SpeedScore, st.TrustScore,
			st.IsFlagged, st.FlagReason, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveDiscoveries appends one scan run's results.
func (s *Store) SaveDiscoveries(discs []types.TokenDiscussion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO discoveries (
			address, chain, symbol, mention_count, chat_count,
			first_seen, last_seen, market_cap, liquidity_usd, price_usd,
			summary, sentiment, scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range discs {
		symbol, mcap, liq, price := "", 0.0, 0.0, 0.0
		if d.Market != nil {
			symbol, mcap, liq, price = d.Market.Symbol, d.Market.MarketCap, d.Market.LiquidityUSD, d.Market.PriceUSD
		}
		if _, err := stmt.Exec(
			d.Address, string(d.Chain), symbol, d.MentionCount, len(d.Chats),
			d.FirstSeen, d.LastSeen, mcap, liq, price,
			d.Summary, d.Sentiment, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadLeaderboard reads the persisted reputation table, best trust first.
func (s *Store) LoadLeaderboard(minCalls, limit int) ([]reputation.StatsSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT source_id, name, source_type,
		       total_calls, successful_calls, failed_calls, last_call,
		       hit_rate, avg_return, speed_score, trust_score,
		       is_flagged, flag_reason
		FROM source_stats
		WHERE total_calls >= ?
		ORDER BY trust_score DESC
		LIMIT ?`, minCalls, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reputation.StatsSnapshot
	for rows.Next() {
		var st reputation.StatsSnapshot
		var lastCall sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(
			&st.SourceID, &st.Name, &st.SourceType,
			&st.TotalCalls, &st.SuccessfulCalls, &st.FailedCalls, &lastCall,
			&st.HitRate, &st.AvgReturn, &st.SpeedScore, &st.TrustScore,
			&st.IsFlagged, &reason,
		); err != nil {
			return nil, err
		}
		st.LastCall = lastCall.Time
		st.FlagReason = reason.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats is a quick row-count summary for the /api/stats endpoint.
type Stats struct {
	RetiredClusters int `json:"retired_clusters"`
	TrackedSources  int `json:"tracked_sources"`
	Discoveries     int `json:"discoveries"`
}

func (s *Store) GetStats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clusters`).Scan(&st.RetiredClusters); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM source_stats`).Scan(&st.TrackedSources); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM discoveries`).Scan(&st.Discoveries); err != nil {
		return st, err
	}
	return st, nil
}

// ---- Buffered sink ----

// BufferedSink decouples cluster retirement from disk writes. Snapshots are
// queued in memory and flushed by a background goroutine; when the buffer is
// full the oldest entry is dropped rather than blocking the hot path.
type BufferedSink struct {
	mu     sync.Mutex
	buf    []cluster.Snapshot
	cap    int
	store  *Store
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewBufferedSink(store *Store, capacity int) *BufferedSink {
	if capacity <= 0 {
		capacity = 1000
	}
	s := &BufferedSink{
		cap:   capacity,
		store: store,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Persist queues a snapshot. Satisfies cluster.Sink. Never blocks.
func (s *BufferedSink) Persist(snap cluster.Snapshot) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("sink closed")
	}
	if len(s.buf) >= s.cap {
		s.buf = s.buf[1:]
		metrics.SinkDrops.Inc()
	}
	s.buf = append(s.buf, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *BufferedSink) flushLoop() {
	for range s.wake {
		s.flush()
	}
	s.flush()
	close(s.done)
}

func (s *BufferedSink) flush() {
	for {
		s.mu.Lock()
		if len(s.buf) == 0 {
			s.mu.Unlock()
			return
		}
		snap := s.buf[0]
		s.buf = s.buf[1:]
		s.mu.Unlock()

		if err := s.store.SaveCluster(snap); err != nil {
			log.Error().Err(err).Str("cluster", snap.ID).Msg("cluster persist failed")
		}
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *BufferedSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.wake)
	<-s.done
}
