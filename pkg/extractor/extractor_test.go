package extractor

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/types"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	pepeAddr = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
	wsolMint = "So11111111111111111111111111111111111111112"
)

func raw(text string) types.RawMessage {
	return types.RawMessage{
		ID:         "m1",
		SourceID:   "src-1",
		SourceName: "alpha chat",
		Timestamp:  time.Now(),
		Text:       text,
	}
}

func TestExtract_SymbolWithContractAddress(t *testing.T) {
	pm := Extract(raw("$PEPE looking bullish, CA: " + pepeAddr + " on base, aping in"))

	require.Len(t, pm.Tokens, 1)
	tok := pm.Tokens[0]
	assert.Equal(t, "PEPE", tok.Symbol)
	assert.Equal(t, pepeAddr, tok.Address)
	assert.Equal(t, config.ChainBase, tok.Chain)
	assert.Equal(t, types.MatchCAPrefix, tok.MatchSource)
	assert.Equal(t, 0.95, tok.Confidence)

	assert.Equal(t, types.ClassCall, pm.Classification)
	assert.Equal(t, types.Bullish, pm.Sentiment.Polarity)
}

func TestExtract_PumpFunLink(t *testing.T) {
	pm := Extract(raw("just launched https://pump.fun/" + bonkMint + " early af"))

	require.Len(t, pm.Tokens, 1)
	tok := pm.Tokens[0]
	assert.Equal(t, bonkMint, tok.Address)
	assert.Equal(t, config.ChainSolana, tok.Chain)
	assert.Equal(t, types.MatchPumpLink, tok.MatchSource)
	assert.GreaterOrEqual(t, tok.Confidence, 0.9)
}

func TestExtract_SymbolOnly(t *testing.T) {
	pm := Extract(raw("$WIF about to break out on raydium"))

	require.Len(t, pm.Tokens, 1)
	tok := pm.Tokens[0]
	assert.Equal(t, "WIF", tok.Symbol)
	assert.Empty(t, tok.Address)
	assert.Equal(t, config.ChainSolana, tok.Chain)
	assert.Equal(t, 0.5, tok.Confidence)
	assert.Equal(t, types.MatchSymbol, tok.MatchSource)
}

func TestExtract_NoiseSymbolsIgnored(t *testing.T) {
	pm := Extract(raw("$DYOR $NFA this is not advice"))
	assert.Empty(t, pm.Tokens)
}

func TestExtract_WalletSighting(t *testing.T) {
	pm := Extract(raw("whale " + wsolMint + " moving size again"))

	assert.Empty(t, pm.Tokens)
	require.Len(t, pm.Wallets, 1)
	assert.Equal(t, wsolMint, pm.Wallets[0].Address)
	assert.Equal(t, "whale", pm.Wallets[0].Label)
}

func TestExtract_TokenAddressNeverDoublesAsWallet(t *testing.T) {
	pm := Extract(raw("dev wallet watch, CA: " + bonkMint))

	require.Len(t, pm.Tokens, 1)
	assert.Equal(t, bonkMint, pm.Tokens[0].Address)
	assert.Empty(t, pm.Wallets)
}

func TestExtract_SymbolConsumedOnce(t *testing.T) {
	// One symbol, two addresses: only the nearer address gets the symbol.
	pm := Extract(raw("$BONK CA: " + bonkMint + " also watch " + pepeAddr))

	require.Len(t, pm.Tokens, 2)
	withSymbol := 0
	for _, tok := range pm.Tokens {
		if tok.Symbol == "BONK" {
			withSymbol++
			assert.Equal(t, bonkMint, tok.Address)
		}
	}
	assert.Equal(t, 1, withSymbol)
}

func TestExtract_TruncatesLongText(t *testing.T) {
	pm := Extract(raw(strings.Repeat("a", 5000)))
	assert.Len(t, pm.OriginalText, 2000)
}

func TestExtract_TruncationKeepsRunesWhole(t *testing.T) {
	// 1998 ASCII bytes then a 4-byte emoji: a byte cut at 2000 would land
	// mid-rune and leave invalid UTF-8 at the tail.
	text := strings.Repeat("a", 1998) + "🚀🚀"
	pm := Extract(raw(text))
	assert.True(t, utf8.ValidString(pm.OriginalText))
	assert.Len(t, pm.OriginalText, 1998)
}

func TestExtract_CarriesMessageFields(t *testing.T) {
	in := raw("nothing interesting")
	pm := Extract(in)
	assert.Equal(t, in.ID, pm.ID)
	assert.Equal(t, in.SourceID, pm.SourceID)
	assert.Equal(t, in.SourceName, pm.SourceName)
	assert.Equal(t, in.Timestamp, pm.Timestamp)
	assert.NotEmpty(t, pm.ContentFingerprint)
}

func TestFingerprint_NormalizesCaseAndWhitespace(t *testing.T) {
	a := Fingerprint("BUY   $PEPE \n NOW")
	b := Fingerprint("buy $pepe now")
	assert.Equal(t, a, b)

	c := Fingerprint("buy $pepe later")
	assert.NotEqual(t, a, c)
}

func TestExtract_PriceMentions(t *testing.T) {
	pm := Extract(raw("$BONK entry $0.00002, target 5x from here"))
	assert.NotEmpty(t, pm.PriceMentions)
}
