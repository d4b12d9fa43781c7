// Package summarize produces short plain-text summaries of token
// discussions. An LLM provider is optional; a rule-based fallback always
// works.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/metrics"
)

const maxSummaryLen = 500

// Oracle turns recent discussion messages into a short plain-text summary.
type Oracle interface {
	Summarize(ctx context.Context, tokenSymbol string, messages []string) (string, error)
}

// Client calls an LLM over HTTP. Providers: anthropic, openai, ollama.
type Client struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	http      *http.Client
}

// NewClient picks a provider from config; returns nil when none is
// configured, and callers fall back to rule-based summaries.
func NewClient(cfg *config.Config) *Client {
	c := &Client{
		maxTokens: cfg.AIMaxTokens,
		http:      &http.Client{Timeout: cfg.LLMTimeout},
	}
	switch {
	case cfg.AnthropicAPIKey != "" && (cfg.AIProvider == "" || cfg.AIProvider == "anthropic"):
		c.provider = "anthropic"
		c.apiKey = cfg.AnthropicAPIKey
		c.model = orDefault(cfg.AIModel, "claude-sonnet-4-20250514")
		c.baseURL = "https://api.anthropic.com/v1/messages"
	case cfg.OpenAIAPIKey != "" && (cfg.AIProvider == "" || cfg.AIProvider == "openai"):
		c.provider = "openai"
		c.apiKey = cfg.OpenAIAPIKey
		c.model = orDefault(cfg.AIModel, "gpt-4o-mini")
		c.baseURL = "https://api.openai.com/v1/chat/completions"
	case cfg.OllamaURL != "":
		c.provider = "ollama"
		c.model = orDefault(cfg.AIModel, "llama3.1")
		c.baseURL = cfg.OllamaURL + "/api/chat"
	default:
		return nil
	}
	log.Info().Str("provider", c.provider).Str("model", c.model).Msg("🤖 summarizer initialized")
	return c
}

const instruction = `Summarize what these chat messages say about the token %s.
Write 2-3 plain sentences: what people claim, the overall mood, and any
risks mentioned. No markdown, no bullet points, no headers.

MESSAGES:
%s`

func (c *Client) Summarize(ctx context.Context, tokenSymbol string, messages []string) (string, error) {
	prompt := fmt.Sprintf(instruction, tokenSymbol, strings.Join(messages, "\n---\n"))

	var text string
	var err error
	switch c.provider {
	case "anthropic":
		text, err = c.callAnthropic(ctx, prompt)
	case "openai", "ollama":
		text, err = c.callChatAPI(ctx, prompt)
	default:
		return "", fmt.Errorf("no summarizer provider")
	}
	if err != nil {
		metrics.OracleFailures.WithLabelValues("summarizer").Inc()
		return "", err
	}
	return Truncate(StripMarkdown(text), maxSummaryLen), nil
}

func (c *Client) callAnthropic(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode, truncErr(raw))
	}

	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return out.Content[0].Text, nil
}

// callChatAPI speaks the OpenAI-compatible chat shape, which Ollama also
// accepts.
func (c *Client) callChatAPI(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":    c.model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   false,
	}
	if c.provider == "openai" {
		payload["max_tokens"] = c.maxTokens
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("%s status %d: %s", c.provider, resp.StatusCode, truncErr(raw))
	}

	if c.provider == "ollama" {
		var out struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		return out.Message.Content, nil
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return out.Choices[0].Message.Content, nil
}

// ---- Rule-based fallback and helpers ----

// RuleBased builds a summary from counts alone, used whenever the LLM is
// absent or fails.
func RuleBased(tokenSymbol string, mentionCount, chatCount int, sentiment string) string {
	name := tokenSymbol
	if name == "" {
		name = "this token"
	}
	s := fmt.Sprintf("%s was mentioned %d times across %d chats. Overall tone is %s.",
		name, mentionCount, chatCount, sentiment)
	return Truncate(s, maxSummaryLen)
}

var (
	mdHeaderRe   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasisRe = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	mdCodeRe     = regexp.MustCompile("`+([^`]*)`+")
	mdBulletRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
)

// StripMarkdown flattens common markdown to plain prose.
func StripMarkdown(s string) string {
	s = mdHeaderRe.ReplaceAllString(s, "")
	s = mdEmphasisRe.ReplaceAllString(s, "$1")
	s = mdCodeRe.ReplaceAllString(s, "$1")
	s = mdBulletRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// KeywordSentiment derives a coarse mood from summary text.
func KeywordSentiment(summary string) string {
	lower := strings.ToLower(summary)
	bullish := strings.Contains(lower, "bullish") || strings.Contains(lower, "positive") ||
		strings.Contains(lower, "excited") || strings.Contains(lower, "optimistic")
	bearish := strings.Contains(lower, "bearish") || strings.Contains(lower, "negative") ||
		strings.Contains(lower, "scam") || strings.Contains(lower, "rug") ||
		strings.Contains(lower, "skeptical") || strings.Contains(lower, "cautious")
	switch {
	case bullish && bearish:
		return "mixed"
	case bullish:
		return "bullish"
	case bearish:
		return "bearish"
	}
	return "neutral"
}

// Truncate caps s at n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func truncErr(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
