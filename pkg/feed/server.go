// Package feed serves the ranked signal feed over HTTP and pushes live
// cluster updates over websocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/db"
	"github.com/signal-tracker/pkg/engine"
	"github.com/signal-tracker/pkg/ranking"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/scanner"
	"github.com/signal-tracker/pkg/types"
)

const recentMsgCap = 5000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type Server struct {
	cfg      *config.Config
	pipeline *engine.Engine
	clusters *cluster.Engine
	tracker  *reputation.Tracker
	scanner  *scanner.Scanner
	store    *db.Store
	srv      *http.Server

	// Rolling window of raw messages for the contextual scanner.
	msgMu   sync.Mutex
	recent  []types.RawMessage
	started time.Time
}

func NewServer(cfg *config.Config, pipeline *engine.Engine, clusters *cluster.Engine, tracker *reputation.Tracker, scn *scanner.Scanner, store *db.Store) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		clusters: clusters,
		tracker:  tracker,
		scanner:  scn,
		store:    store,
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/feed", s.handleFeed).Methods("GET")
	r.HandleFunc("/api/leaderboard", s.handleLeaderboard).Methods("GET")
	r.HandleFunc("/api/discoveries", s.handleDiscoveries).Methods("GET")
	r.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ws", s.handleWS)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Observe records a raw message into the scanner's rolling window. Wired in
// front of the pipeline by the source handler.
func (s *Server) Observe(msg types.RawMessage) {
	s.msgMu.Lock()
	s.recent = append(s.recent, msg)
	if len(s.recent) > recentMsgCap {
		s.recent = s.recent[len(s.recent)-recentMsgCap:]
	}
	s.msgMu.Unlock()
}

func (s *Server) Start() error {
	log.Info().Int("port", s.cfg.HTTPPort).Msg("🌐 feed server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ---- Handlers ----

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ranking.FilterOptions{
		MaxAgeMinutes:  queryInt(q.Get("max_age"), s.cfg.FeedMaxAgeMinutes),
		MinScore:       queryFloat(q.Get("min_score"), s.cfg.FeedMinScore),
		MinSources:     queryInt(q.Get("min_sources"), s.cfg.FeedMinSources),
		MinMentions:    queryInt(q.Get("min_mentions"), s.cfg.FeedMinMentions),
		ExcludeFlagged: q.Get("exclude_flagged") != "false",
		FlaggedFn:      s.tracker.IsFlagged,
	}
	if chains := q.Get("chains"); chains != "" {
		for _, c := range splitComma(chains) {
			opts.Chains = append(opts.Chains, config.Chain(c))
		}
	} else {
		opts.Chains = s.cfg.FeedChains
	}
	limit := queryInt(q.Get("limit"), s.cfg.FeedLimit)

	now := time.Now()
	ranked := ranking.Rank(ranking.Filter(s.clusters.Snapshots(), opts))
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entries := make([]types.FeedEntry, 0, len(ranked))
	for _, snap := range ranked {
		entries = append(entries, ranking.BuildFeedEntry(snap, now))
	}
	writeJSON(w, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minCalls := queryInt(q.Get("min_calls"), 3)
	limit := queryInt(q.Get("limit"), 25)
	excludeFlagged := q.Get("exclude_flagged") == "true"

	board := s.tracker.Leaderboard(minCalls, excludeFlagged, limit)
	writeJSON(w, map[string]interface{}{
		"count":   len(board),
		"sources": board,
	})
}

func (s *Server) handleDiscoveries(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		http.Error(w, "scanner not configured", http.StatusServiceUnavailable)
		return
	}
	topN := queryInt(r.URL.Query().Get("limit"), s.cfg.ScanTopN)

	s.msgMu.Lock()
	corpus := make([]types.RawMessage, len(s.recent))
	copy(corpus, s.recent)
	s.msgMu.Unlock()

	discs := s.scanner.Scan(r.Context(), corpus, topN)
	if s.store != nil && len(discs) > 0 {
		if err := s.store.SaveDiscoveries(discs); err != nil {
			log.Error().Err(err).Msg("discovery persistence failed")
		}
	}
	writeJSON(w, map[string]interface{}{
		"count":       len(discs),
		"discoveries": discs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{
		"active_clusters": s.clusters.ActiveCount(),
		"queue_depth":     s.pipeline.QueueDepth(),
		"uptime_seconds":  int(time.Since(s.started).Seconds()),
	}
	if s.store != nil {
		if persisted, err := s.store.GetStats(); err == nil {
			out["persisted"] = persisted
		}
	}
	writeJSON(w, out)
}

// handleWS streams ranked feed entries for every cluster update. The write
// side owns the connection; reads only service control frames.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := s.pipeline.Subscribe(64)
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket subscriber connected")
	for snap := range updates {
		entry := ranking.BuildFeedEntry(snap, time.Now())
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(entry); err != nil {
			return
		}
	}
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return fallback
}

func queryFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return fallback
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
