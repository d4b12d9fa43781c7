// Package source defines where raw messages come from. Production
// deployments plug chat clients in behind ChatSource; the replay source
// feeds a recorded JSONL stream through the same path for development and
// backtesting.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/types"
)

// Handler receives each message as it arrives. Implementations must not
// block for long; the engine's ingest queue applies backpressure.
type Handler func(msg types.RawMessage)

// ChatSource is a stream of raw chat messages. Start blocks until the
// context is cancelled or the stream ends.
type ChatSource interface {
	Name() string
	Start(ctx context.Context, handler Handler) error
}

// ReplaySource reads newline-delimited JSON messages from a file. When
// Realtime is set it sleeps out the recorded inter-message gaps, which makes
// velocity and recency behave as they did live.
type ReplaySource struct {
	Path     string
	Realtime bool
}

func NewReplaySource(path string, realtime bool) *ReplaySource {
	return &ReplaySource{Path: path, Realtime: realtime}
}

func (r *ReplaySource) Name() string { return "replay:" + r.Path }

func (r *ReplaySource) Start(ctx context.Context, handler Handler) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	log.Info().Str("file", r.Path).Bool("realtime", r.Realtime).Msg("📼 replay started")

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var prev time.Time
	n, skipped := 0, 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg types.RawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			skipped++
			continue
		}

		if r.Realtime && !prev.IsZero() {
			gap := msg.Timestamp.Sub(prev)
			if gap > 0 {
				select {
				case <-time.After(gap):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		prev = msg.Timestamp

		handler(msg)
		n++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}

	log.Info().Int("delivered", n).Int("skipped", skipped).Msg("📼 replay finished")
	return nil
}
