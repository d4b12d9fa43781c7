package patterns

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/signal-tracker/pkg/config"
)

var (
	// Address patterns
	SolanaAddrRe = regexp.MustCompile(`\b([1-9A-HJ-NP-Za-km-z]{32,44})\b`)
	EVMAddrRe    = regexp.MustCompile(`\b(0x[a-fA-F0-9]{40})\b`)
	SymbolRe     = regexp.MustCompile(`\$([A-Za-z]{2,10})\b`)

	// Explicit contract-address prefixes
	CAPrefixRe = regexp.MustCompile(`(?i)\b(?:ca|contract|address)\s*[:：]\s*([1-9A-HJ-NP-Za-km-z]{32,44}|0x[a-fA-F0-9]{40})`)

	// Platform link patterns; the capture group is the token address
	PumpFunRe     = regexp.MustCompile(`https?://(?:www\.)?pump\.fun/(?:coin/)?([1-9A-HJ-NP-Za-km-z]{32,44})`)
	DexScreenerRe = regexp.MustCompile(`https?://(?:www\.)?dexscreener\.com/([a-z]+)/(0x[a-fA-F0-9]{40}|[1-9A-HJ-NP-Za-km-z]{32,44})`)
	BirdeyeRe     = regexp.MustCompile(`https?://(?:www\.)?birdeye\.so/token/([1-9A-HJ-NP-Za-km-z]{32,44})`)
	JupiterRe     = regexp.MustCompile(`https?://(?:www\.)?jup\.ag/swap/[A-Za-z0-9]+-([1-9A-HJ-NP-Za-km-z]{32,44})`)
	PhotonRe      = regexp.MustCompile(`https?://photon-sol\.tinyastro\.io/(?:[a-z]{2}/)?lp/([1-9A-HJ-NP-Za-km-z]{32,44})`)
	GenericURLRe  = regexp.MustCompile(`https?://[^\s\)\]]+`)

	// Price / multiplier / market-cap literals
	PriceRe      = regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d+)?\s*[kKmMbB]?\b`)
	MultiplierRe = regexp.MustCompile(`\b\d+(?:\.\d+)?[xX]\b`)
	MarketCapRe  = regexp.MustCompile(`(?i)\b(?:mc|mcap|market\s*cap)\s*:?\s*\$?\d+(?:\.\d+)?\s*[kKmMbB]?\b`)

	// Noise tickers that look like $SYMBOL but are not token calls
	noiseTickers = map[string]bool{
		"USD": true, "EUR": true, "GBP": true, "NFT": true, "DM": true,
		"RT": true, "DYOR": true, "NFA": true, "IMO": true, "TBH": true,
		"ATH": true, "ATL": true, "APY": true, "TVL": true, "CEO": true,
		"DEX": true, "CEX": true, "DCA": true, "FUD": true, "HODL": true,
		"FOMO": true, "WAGMI": true,
	}
)

// chainKeywords maps free-text cues to a chain tag. First match wins in
// the order solana, base, bsc, ethereum.
var chainKeywords = []struct {
	chain config.Chain
	words []string
}{
	{config.ChainSolana, []string{"sol ", " sol", "$sol", "pump.fun", "pumpfun", "raydium", "solana"}},
	{config.ChainBase, []string{"base ", " base", "aerodrome", "basescan"}},
	{config.ChainBSC, []string{"bsc", "bnb", "pancakeswap"}},
	{config.ChainEthereum, []string{"eth ", " eth", "$eth", "ethereum", "uniswap", "etherscan"}},
}

// LinkMatch is a token address captured from a known platform URL.
type LinkMatch struct {
	Address    string
	Chain      config.Chain
	Source     string // pump.fun, dexscreener, birdeye, jupiter, photon
	Confidence float64
}

// ValidSolanaAddress reports whether s decodes as a 32-byte base58 public key.
func ValidSolanaAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// ValidEVMAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidEVMAddress(s string) bool {
	return common.IsHexAddress(s)
}

// FindLinkTokens extracts token addresses from known platform links, with
// a chain hint and per-platform confidence.
func FindLinkTokens(text string) []LinkMatch {
	var out []LinkMatch
	seen := map[string]bool{}
	add := func(addr string, chain config.Chain, source string, conf float64) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, LinkMatch{Address: addr, Chain: chain, Source: source, Confidence: conf})
	}

	for _, m := range PumpFunRe.FindAllStringSubmatch(text, -1) {
		add(m[1], config.ChainSolana, "pump.fun", 0.95)
	}
	for _, m := range DexScreenerRe.FindAllStringSubmatch(text, -1) {
		add(m[2], dexScreenerChain(m[1], m[2]), "dexscreener", 0.9)
	}
	for _, m := range BirdeyeRe.FindAllStringSubmatch(text, -1) {
		add(m[1], config.ChainSolana, "birdeye", 0.9)
	}
	for _, m := range JupiterRe.FindAllStringSubmatch(text, -1) {
		add(m[1], config.ChainSolana, "jupiter", 0.9)
	}
	for _, m := range PhotonRe.FindAllStringSubmatch(text, -1) {
		add(m[1], config.ChainSolana, "photon", 0.9)
	}
	return out
}

func dexScreenerChain(slug, addr string) config.Chain {
	switch slug {
	case "solana":
		return config.ChainSolana
	case "base":
		return config.ChainBase
	case "bsc":
		return config.ChainBSC
	case "ethereum":
		return config.ChainEthereum
	}
	if strings.HasPrefix(addr, "0x") {
		return config.ChainBase
	}
	return config.ChainSolana
}

// ResolveChain picks a chain for an address from text cues. EVM addresses
// default to base when no keyword overrides.
func ResolveChain(addr, text string) config.Chain {
	lower := strings.ToLower(text)
	isEVM := strings.HasPrefix(addr, "0x")
	for _, ck := range chainKeywords {
		if isEVM && ck.chain == config.ChainSolana {
			continue
		}
		if !isEVM && ck.chain != config.ChainSolana {
			continue
		}
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.chain
			}
		}
	}
	if isEVM {
		return config.ChainBase
	}
	return config.ChainSolana
}

// ChainHint returns the chain keyword match for the whole message, or "".
func ChainHint(text string) config.Chain {
	lower := strings.ToLower(text)
	for _, ck := range chainKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.chain
			}
		}
	}
	return ""
}

// IsNoiseSymbol reports whether an uppercased $SYMBOL capture is a common
// non-token abbreviation.
func IsNoiseSymbol(sym string) bool {
	return noiseTickers[sym]
}

// StripURLs removes every URL from text, replacing each with a space so
// character offsets stay roughly stable for proximity checks.
func StripURLs(text string) string {
	return GenericURLRe.ReplaceAllStringFunc(text, func(u string) string {
		return strings.Repeat(" ", len(u))
	})
}

// PriceMentions collects price, multiplier, and market-cap literals.
func PriceMentions(text string) []string {
	var out []string
	out = append(out, PriceRe.FindAllString(text, -1)...)
	out = append(out, MultiplierRe.FindAllString(text, -1)...)
	out = append(out, MarketCapRe.FindAllString(text, -1)...)
	return out
}
