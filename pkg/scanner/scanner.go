// Package scanner runs batch discovery over a corpus of recent chat
// messages: surface token addresses, join them to market data, collect the
// surrounding discussion, and summarize each token per chat.
package scanner

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/market"
	"github.com/signal-tracker/pkg/patterns"
	"github.com/signal-tracker/pkg/ranking"
	"github.com/signal-tracker/pkg/sentiment"
	"github.com/signal-tracker/pkg/summarize"
	"github.com/signal-tracker/pkg/types"
)

// Addresses that show up constantly but are never the token being called.
var skipAddresses = map[string]bool{
	"So11111111111111111111111111111111111111112":  true, // wrapped SOL
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC (solana)
	"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2":   true, // WETH
	"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913":   true, // USDC (base)
}

// Base58 runs inside transaction reports are signatures, not mints.
var txCueRe = regexp.MustCompile(`(?i)\b(tx|txn|txid|signature|sig)\b|solscan\.io/tx|/tx/|explorer`)

type mention struct {
	msg   types.RawMessage
	chain config.Chain
}

// Scanner is the batch discovery engine. Market data is required per token;
// the summarizer is optional.
type Scanner struct {
	market     market.Oracle
	summarizer summarize.Oracle
	cfg        *config.Config
}

func New(cfg *config.Config, marketOracle market.Oracle, summarizer summarize.Oracle) *Scanner {
	return &Scanner{market: marketOracle, summarizer: summarizer, cfg: cfg}
}

// Scan surfaces discussed tokens from the message corpus, newest first,
// capped at topN (config default when topN <= 0). Market-data and
// summarizer failures are isolated per token.
func (s *Scanner) Scan(ctx context.Context, msgs []types.RawMessage, topN int) []types.TokenDiscussion {
	if topN <= 0 {
		topN = s.cfg.ScanTopN
	}

	// Uniform UTC clock for window math.
	for i := range msgs {
		msgs[i].Timestamp = msgs[i].Timestamp.UTC()
	}

	mentions := map[string][]mention{}
	for _, m := range msgs {
		addr, chain, ok := ExtractAddress(m.Text)
		if !ok {
			continue
		}
		mentions[addr] = append(mentions[addr], mention{msg: m, chain: chain})
	}

	var out []types.TokenDiscussion
	for addr, ms := range mentions {
		if ctx.Err() != nil {
			break
		}
		disc, err := s.buildDiscussion(ctx, addr, ms, msgs)
		if err != nil {
			log.Debug().Err(err).Str("addr", addr).Msg("token skipped during scan")
			continue
		}
		if disc != nil {
			out = append(out, *disc)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ExtractAddress pulls at most one token address from a message. Platform
// links win, then raw Solana addresses (unless the message looks like a
// transaction report), then EVM addresses. Well-known quote/stable mints
// are skipped.
func ExtractAddress(text string) (string, config.Chain, bool) {
	if links := patterns.FindLinkTokens(text); len(links) > 0 {
		lm := links[0]
		if !skipAddresses[lm.Address] {
			return lm.Address, lm.Chain, true
		}
	}

	clean := patterns.StripURLs(text)

	if !txCueRe.MatchString(text) {
		for _, cand := range patterns.SolanaAddrRe.FindAllString(clean, -1) {
			if skipAddresses[cand] || !patterns.ValidSolanaAddress(cand) {
				continue
			}
			return cand, config.ChainSolana, true
		}
	}

	for _, cand := range patterns.EVMAddrRe.FindAllString(clean, -1) {
		if skipAddresses[cand] {
			continue
		}
		return cand, patterns.ResolveChain(cand, text), true
	}
	return "", "", false
}

func (s *Scanner) buildDiscussion(ctx context.Context, addr string, ms []mention, corpus []types.RawMessage) (*types.TokenDiscussion, error) {
	md, err := s.market.Lookup(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("market data: %w", err)
	}
	if md == nil {
		// No tradable pair: almost certainly a false-positive base58 hit.
		return nil, nil
	}

	disc := &types.TokenDiscussion{
		Address:      addr,
		Chain:        ms[0].chain,
		Market:       md,
		MentionCount: len(ms),
		FirstSeen:    ms[0].msg.Timestamp,
		LastSeen:     ms[0].msg.Timestamp,
	}
	chatSet := map[string]bool{}
	for _, m := range ms {
		chatSet[m.msg.Chat] = true
		if m.msg.Timestamp.Before(disc.FirstSeen) {
			disc.FirstSeen = m.msg.Timestamp
		}
		if m.msg.Timestamp.After(disc.LastSeen) {
			disc.LastSeen = m.msg.Timestamp
		}
	}
	disc.Chats = sortedKeys(chatSet)

	disc.Windows = s.contextWindows(ms, corpus)

	discussion := discussionTexts(disc.Windows)
	disc.Summary, disc.Sentiment = s.summarize(ctx, md.Symbol, discussion, disc)
	return disc, nil
}

// contextWindows gathers, for every mention, the messages in the same chat
// within the configured window around it, deduplicated by (chat, minute).
func (s *Scanner) contextWindows(ms []mention, corpus []types.RawMessage) []types.DiscussionWindow {
	span := s.cfg.ScanContextWindow
	seen := map[string]bool{}
	var windows []types.DiscussionWindow
	for _, m := range ms {
		key := fmt.Sprintf("%s:%d", m.msg.Chat, m.msg.Timestamp.Unix()/60)
		if seen[key] {
			continue
		}
		seen[key] = true

		var texts []string
		for _, c := range corpus {
			if c.Chat != m.msg.Chat {
				continue
			}
			d := c.Timestamp.Sub(m.msg.Timestamp)
			if d < -span || d > span {
				continue
			}
			texts = append(texts, c.Text)
		}
		windows = append(windows, types.DiscussionWindow{
			Chat:     m.msg.Chat,
			Time:     m.msg.Timestamp,
			Messages: texts,
		})
	}
	return windows
}

func discussionTexts(windows []types.DiscussionWindow) []string {
	var out []string
	for _, w := range windows {
		for _, t := range w.Messages {
			if ranking.IsDiscussion(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func (s *Scanner) summarize(ctx context.Context, symbol string, discussion []string, disc *types.TokenDiscussion) (string, string) {
	if s.summarizer != nil && len(discussion) > 0 {
		recent := discussion
		if len(recent) > s.cfg.SummaryMaxMessages {
			recent = recent[len(recent)-s.cfg.SummaryMaxMessages:]
		}
		if text, err := s.summarizer.Summarize(ctx, symbol, recent); err == nil {
			return text, summarize.KeywordSentiment(text)
		}
		log.Warn().Str("token", symbol).Msg("summarizer failed, using rule-based summary")
	}

	mood := corpusMood(discussion)
	return summarize.RuleBased(symbol, disc.MentionCount, len(disc.Chats), mood), mood
}

// corpusMood aggregates per-message polarity into the discussion-level tag.
func corpusMood(texts []string) string {
	bull, bear := 0, 0
	for _, t := range texts {
		switch sentiment.Analyze(t).Polarity {
		case types.Bullish:
			bull++
		case types.Bearish:
			bear++
		}
	}
	switch {
	case bull > 0 && bear > 0:
		return "mixed"
	case bull > 0:
		return "bullish"
	case bear > 0:
		return "bearish"
	}
	return "neutral"
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
