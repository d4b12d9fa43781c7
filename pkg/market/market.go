// Package market looks up token market data. The DexScreener adapter sits
// behind a circuit breaker so a flapping upstream cannot stall the jobs
// that enrich clusters.
package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/metrics"
	"github.com/signal-tracker/pkg/types"
)

// Oracle resolves a token address to market data. A nil result with a nil
// error means the address has no tradable pair.
type Oracle interface {
	Lookup(ctx context.Context, address string) (*types.TokenMarketData, error)
}

// DexScreenerClient implements Oracle against the DexScreener public API.
type DexScreenerClient struct {
	client  *resty.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

func NewDexScreenerClient(baseURL string, timeout time.Duration) *DexScreenerClient {
	return &DexScreenerClient{
		client:  resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "dexscreener",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	URL       string `json:"url"`
	PriceUSD  string `json:"priceUsd"`
	BaseToken struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	PriceChange struct {
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Info      struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

func (c *DexScreenerClient) Lookup(ctx context.Context, address string) (*types.TokenMarketData, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var body dexResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&body).
			Get(fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, address))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("dexscreener status %d", resp.StatusCode())
		}
		return &body, nil
	})
	if err != nil {
		metrics.OracleFailures.WithLabelValues("market").Inc()
		return nil, fmt.Errorf("market lookup %s: %w", address, err)
	}

	body := out.(*dexResponse)
	if len(body.Pairs) == 0 {
		return nil, nil
	}

	// Several pairs can exist per token; the deepest one is authoritative.
	best := body.Pairs[0]
	for _, p := range body.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	price, _ := strconv.ParseFloat(best.PriceUSD, 64)
	mcap := best.MarketCap
	if mcap == 0 {
		mcap = best.FDV
	}
	return &types.TokenMarketData{
		Symbol:         best.BaseToken.Symbol,
		Name:           best.BaseToken.Name,
		PriceUSD:       price,
		MarketCap:      mcap,
		LiquidityUSD:   best.Liquidity.USD,
		PriceChange1h:  best.PriceChange.H1,
		PriceChange24h: best.PriceChange.H24,
		Volume24h:      best.Volume.H24,
		Chain:          chainFromID(best.ChainID),
		ImageURL:       best.Info.ImageURL,
		DexURL:         best.URL,
	}, nil
}

// LookupBatch resolves many addresses, skipping failures per token so one
// bad lookup never stops a refresh cycle.
func LookupBatch(ctx context.Context, o Oracle, addresses []string) map[string]*types.TokenMarketData {
	out := make(map[string]*types.TokenMarketData, len(addresses))
	for _, addr := range addresses {
		if ctx.Err() != nil {
			return out
		}
		md, err := o.Lookup(ctx, addr)
		if err != nil {
			log.Debug().Err(err).Str("addr", abbrev(addr)).Msg("market lookup failed")
			continue
		}
		if md != nil {
			out[addr] = md
		}
	}
	return out
}

func chainFromID(id string) config.Chain {
	switch id {
	case "solana":
		return config.ChainSolana
	case "base":
		return config.ChainBase
	case "bsc":
		return config.ChainBSC
	case "ethereum":
		return config.ChainEthereum
	}
	return config.Chain(id)
}

func abbrev(a string) string {
	if len(a) > 12 {
		return a[:6] + "..." + a[len(a)-4:]
	}
	return a
}
