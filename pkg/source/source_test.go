package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-tracker/pkg/types"
)

func TestReplaySource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	lines := `{"id":"1","source_id":"s1","timestamp":"2026-08-25T12:00:00Z","text":"first"}
not valid json
{"id":"2","source_id":"s1","timestamp":"2026-08-25T12:00:05Z","text":"second"}

{"id":"3","source_id":"s2","timestamp":"2026-08-25T12:00:10Z","text":"third"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	var got []types.RawMessage
	src := NewReplaySource(path, false)
	err := src.Start(context.Background(), func(msg types.RawMessage) {
		got = append(got, msg)
	})
	require.NoError(t, err)

	require.Len(t, got, 3, "bad and blank lines are skipped")
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "third", got[2].Text)
	assert.Equal(t, 2026, got[0].Timestamp.Year())
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := NewReplaySource(filepath.Join(t.TempDir(), "nope.jsonl"), false)
	err := src.Start(context.Background(), func(types.RawMessage) {})
	assert.Error(t, err)
}

func TestReplaySource_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"1","text":"x","timestamp":"2026-08-25T12:00:00Z"}`+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewReplaySource(path, false)
	err := src.Start(ctx, func(types.RawMessage) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplaySourceName(t *testing.T) {
	assert.Equal(t, "replay:feed.jsonl", NewReplaySource("feed.jsonl", false).Name())
}
