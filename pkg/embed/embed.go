// Package embed defines the embedding oracle contract used for semantic
// dedup, plus an HTTP adapter and cosine similarity helpers.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"gonum.org/v1/gonum/floats"
)

// Oracle maps text to a fixed-dimension vector. Implementations are
// expected to tolerate roughly dimension x 1000 floats held by callers.
type Oracle interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// Cosine is the cosine similarity of u and v, 0 when either is zero-length
// or zero-norm.
func Cosine(u, v []float64) float64 {
	if len(u) == 0 || len(u) != len(v) {
		return 0
	}
	nu := floats.Norm(u, 2)
	nv := floats.Norm(v, 2)
	if nu == 0 || nv == 0 {
		return 0
	}
	return floats.Dot(u, v) / (nu * nv)
}

// HTTPOracle calls an embedding service over HTTP. The service accepts
// {"text": ...} and returns {"embedding": [...]}.
type HTTPOracle struct {
	client    *resty.Client
	url       string
	dimension int
}

func NewHTTPOracle(url string, timeout time.Duration, dimension int) *HTTPOracle {
	return &HTTPOracle{
		client:    resty.New().SetTimeout(timeout),
		url:       url,
		dimension: dimension,
	}
}

func (o *HTTPOracle) Dimension() int { return o.dimension }

func (o *HTTPOracle) Embed(ctx context.Context, text string) ([]float64, error) {
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&out).
		Post(o.url)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode())
	}
	if len(out.Embedding) != o.dimension {
		return nil, fmt.Errorf("embed request: got %d dims, want %d", len(out.Embedding), o.dimension)
	}
	return out.Embedding, nil
}
