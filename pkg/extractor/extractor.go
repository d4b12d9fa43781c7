// Package extractor turns raw chat messages into structured ProcessedMessages:
// token and wallet references, price literals, sentiment, classification, and
// a content fingerprint for dedup.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/patterns"
	"github.com/signal-tracker/pkg/sentiment"
	"github.com/signal-tracker/pkg/summarize"
	"github.com/signal-tracker/pkg/types"
)

const (
	maxTextLen = 2000
	// Maximum character distance between a $SYMBOL and an address for the
	// two to be treated as the same token.
	symbolAssocRange = 100
)

var walletLabelRe = regexp.MustCompile(`(?i)\b(whale|dev|sniper|fresh|insider|kol)\b`)

type addrCapture struct {
	addr       string
	pos        int
	source     types.MatchSource
	confidence float64
	chain      config.Chain
	chainKnown bool
	symbol     string
}

type symCapture struct {
	symbol   string
	pos      int
	consumed bool
}

// Extract is pure and total: any text yields a ProcessedMessage, possibly
// with no token references. Downstream decides what to discard.
func Extract(raw types.RawMessage) *types.ProcessedMessage {
	text := summarize.Truncate(raw.Text, maxTextLen)

	verdict := sentiment.Analyze(text)
	class, classConf := sentiment.Classify(text)

	pm := &types.ProcessedMessage{
		ID:                       raw.ID,
		SourceID:                 raw.SourceID,
		SourceName:               raw.SourceName,
		Chat:                     raw.Chat,
		Timestamp:                raw.Timestamp,
		OriginalText:             text,
		ContentFingerprint:       Fingerprint(text),
		PriceMentions:            patterns.PriceMentions(text),
		Sentiment:                verdict,
		Classification:           class,
		ClassificationConfidence: classConf,
	}

	captures := collectAddresses(text)
	symbols := collectSymbols(patterns.StripURLs(text))
	associateSymbols(captures, symbols)

	label := ""
	if m := walletLabelRe.FindString(text); m != "" {
		label = strings.ToLower(m)
	}

	tokenAddrs := map[string]bool{}
	for _, c := range captures {
		chain := c.chain
		if !c.chainKnown {
			chain = patterns.ResolveChain(c.addr, text)
		}
		// A bare address with no symbol, no CA prefix and no platform link
		// in a message that labels wallets is a wallet sighting, not a token.
		if c.source == types.MatchAddress && c.symbol == "" && label != "" {
			pm.Wallets = append(pm.Wallets, types.WalletRef{Address: c.addr, Chain: chain, Label: label})
			continue
		}
		tokenAddrs[c.addr] = true
		pm.Tokens = append(pm.Tokens, types.TokenRef{
			Symbol:      c.symbol,
			Address:     c.addr,
			Chain:       chain,
			Confidence:  c.confidence,
			MatchSource: c.source,
		})
	}

	// Symbols never tied to an address become low-confidence refs of their own.
	hint := patterns.ChainHint(text)
	if hint == "" {
		hint = config.ChainSolana
	}
	for _, s := range symbols {
		if s.consumed {
			continue
		}
		pm.Tokens = append(pm.Tokens, types.TokenRef{
			Symbol:      s.symbol,
			Chain:       hint,
			Confidence:  0.5,
			MatchSource: types.MatchSymbol,
		})
	}

	// Token addresses never double as wallets.
	kept := pm.Wallets[:0]
	for _, w := range pm.Wallets {
		if !tokenAddrs[w.Address] {
			kept = append(kept, w)
		}
	}
	pm.Wallets = kept

	return pm
}

// Fingerprint is SHA-256 over a case-folded, whitespace-collapsed copy of
// the text, hex encoded.
func Fingerprint(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func collectAddresses(text string) []*addrCapture {
	byAddr := map[string]*addrCapture{}
	add := func(c *addrCapture) {
		if prev, ok := byAddr[c.addr]; ok {
			if c.confidence > prev.confidence {
				c.symbol = prev.symbol
				byAddr[c.addr] = c
			}
			return
		}
		byAddr[c.addr] = c
	}

	// Platform links carry the strongest signal and a chain hint.
	for _, lm := range patterns.FindLinkTokens(text) {
		source := types.MatchDexLink
		if lm.Source == "pump.fun" {
			source = types.MatchPumpLink
		}
		add(&addrCapture{
			addr: lm.Address, pos: strings.Index(text, lm.Address),
			source: source, confidence: lm.Confidence,
			chain: lm.Chain, chainKnown: true,
		})
	}

	clean := patterns.StripURLs(text)

	// Explicit CA:/Contract:/Address: prefixes override plain matches.
	for _, m := range patterns.CAPrefixRe.FindAllStringSubmatchIndex(clean, -1) {
		addr := clean[m[2]:m[3]]
		if !validAddress(addr) {
			continue
		}
		add(&addrCapture{addr: addr, pos: m[2], source: types.MatchCAPrefix, confidence: 0.95})
	}

	for _, m := range patterns.EVMAddrRe.FindAllStringSubmatchIndex(clean, -1) {
		addr := clean[m[2]:m[3]]
		if _, ok := byAddr[addr]; ok {
			continue
		}
		add(&addrCapture{addr: addr, pos: m[2], source: types.MatchAddress, confidence: 0.75})
	}

	for _, m := range patterns.SolanaAddrRe.FindAllStringSubmatchIndex(clean, -1) {
		addr := clean[m[2]:m[3]]
		if _, ok := byAddr[addr]; ok {
			continue
		}
		if !patterns.ValidSolanaAddress(addr) {
			continue
		}
		// Base58 matching is noisy (tx hashes look the same), keep the
		// confidence below 1 and let downstream filters reject.
		add(&addrCapture{addr: addr, pos: m[2], source: types.MatchAddress, confidence: 0.7})
	}

	out := make([]*addrCapture, 0, len(byAddr))
	for _, c := range byAddr {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

func collectSymbols(clean string) []*symCapture {
	var out []*symCapture
	seen := map[string]bool{}
	for _, m := range patterns.SymbolRe.FindAllStringSubmatchIndex(clean, -1) {
		sym := strings.ToUpper(clean[m[2]:m[3]])
		if patterns.IsNoiseSymbol(sym) || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, &symCapture{symbol: sym, pos: m[2]})
	}
	return out
}

// associateSymbols ties each address to the closest unconsumed symbol within
// symbolAssocRange characters. A symbol is used at most once per message.
func associateSymbols(captures []*addrCapture, symbols []*symCapture) {
	for _, c := range captures {
		if c.pos < 0 {
			continue
		}
		best := -1
		bestDist := symbolAssocRange + 1
		for i, s := range symbols {
			if s.consumed {
				continue
			}
			dist := c.pos - s.pos
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best, bestDist = i, dist
			}
		}
		if best >= 0 {
			c.symbol = symbols[best].symbol
			symbols[best].consumed = true
		}
	}
}

func validAddress(addr string) bool {
	if strings.HasPrefix(addr, "0x") {
		return patterns.ValidEVMAddress(addr)
	}
	return patterns.ValidSolanaAddress(addr)
}
