package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/config"
)

// Client wraps the completion API with a fast/capable model split.
// Cheap classification work (mood, extraction, summaries, check-ins)
// goes to the fast model; user-facing replies go to the capable one.
type Client struct {
	api        anthropicsdk.Client
	model      string
	modelFast  string
	maxTokens  int
	maxRetries int
	log        zerolog.Logger
}

func New(cfg config.ClaudeConfig, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("claude: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled here with backoff, not by the SDK.
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:        anthropicsdk.NewClient(opts...),
		model:      cfg.Model,
		modelFast:  cfg.ModelFast,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		log:        logger.With().Str("component", "claude").Logger(),
	}, nil
}

// Close releases nothing today but keeps the lifecycle explicit for
// callers that own the client.
func (c *Client) Close() error { return nil }

func (c *Client) complete(ctx context.Context, model, system string, turns []Turn, maxTokens int) (*anthropicsdk.Message, error) {
	msgs := make([]anthropicsdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropicsdk.NewTextBlock(t.Content)
		if t.Role == "assistant" {
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropicsdk.NewUserMessage(block))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	op := func() (*anthropicsdk.Message, error) {
		msg, err := c.api.Messages.New(ctx, params)
		if err != nil {
			return nil, classify(err)
		}
		return msg, nil
	}
	msg, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries)))
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	return msg, nil
}

// classify maps API errors onto the retry policy: 429 honors the
// provider's retry-after, other 4xx never retry, everything else does.
func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		if apiErr.Response != nil {
			if ra := apiErr.Response.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
					return backoff.RetryAfter(secs)
				}
			}
		}
		return err
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return backoff.Permanent(err)
	}
	return err
}

func messageText(msg *anthropicsdk.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}

func messageTokens(msg *anthropicsdk.Message) int {
	return int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
}

// InferMood classifies the user's emotional state. A failed call or
// unparseable output yields (nil, nil): mood inference never blocks a
// turn.
func (c *Client) InferMood(ctx context.Context, message string, recent []Turn) (*MoodResult, error) {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Недавний диалог:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(t.Role), t.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Новое сообщение человека:\n%s", message)

	msg, err := c.complete(ctx, c.modelFast, moodSystemPrompt,
		[]Turn{{Role: "user", Content: b.String()}}, c.maxTokens)
	if err != nil {
		c.log.Warn().Err(err).Msg("mood inference failed")
		return nil, nil
	}

	var result MoodResult
	if err := parseJSONBlock(messageText(msg), &result); err != nil {
		c.log.Warn().Err(err).Msg("mood output unparseable")
		return nil, nil
	}
	if result.MoodScore < 1 || result.MoodScore > 10 {
		// A malformed score must not swallow the rest of the signal,
		// requires_attention in particular.
		c.log.Warn().Int("mood_score", result.MoodScore).Msg("mood score out of range, defaulting")
		result.MoodScore = 5
	}
	return &result, nil
}

// ExtractMemory pulls facts, persons, events and corrections out of a
// user message. Fail-open: errors yield (nil, nil).
func (c *Client) ExtractMemory(ctx context.Context, message string, window []Turn, knownFacts, knownPersons []string) (*Extraction, error) {
	var b strings.Builder
	if len(knownFacts) > 0 {
		b.WriteString("Уже известные факты:\n")
		for _, f := range knownFacts {
			b.WriteString("- " + f + "\n")
		}
		b.WriteString("\n")
	}
	if len(knownPersons) > 0 {
		b.WriteString("Уже известные люди:\n")
		for _, p := range knownPersons {
			b.WriteString("- " + p + "\n")
		}
		b.WriteString("\n")
	}
	if len(window) > 0 {
		b.WriteString("Недавний диалог:\n")
		for _, t := range window {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(t.Role), t.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Сообщение для анализа:\n%s", message)

	msg, err := c.complete(ctx, c.modelFast, extractionSystemPrompt,
		[]Turn{{Role: "user", Content: b.String()}}, c.maxTokens*2)
	if err != nil {
		c.log.Warn().Err(err).Msg("extraction failed")
		return nil, nil
	}

	var ext Extraction
	if err := parseJSONBlock(messageText(msg), &ext); err != nil {
		c.log.Warn().Err(err).Msg("extraction output unparseable")
		return nil, nil
	}
	return &ext, nil
}

// Summarize condenses a window of messages. Empty result on failure.
func (c *Client) Summarize(ctx context.Context, window []Turn) (string, error) {
	var b strings.Builder
	for _, t := range window {
		fmt.Fprintf(&b, "%s: %s\n", roleLabel(t.Role), t.Content)
	}

	msg, err := c.complete(ctx, c.modelFast, summarySystemPrompt,
		[]Turn{{Role: "user", Content: b.String()}}, c.maxTokens)
	if err != nil {
		c.log.Warn().Err(err).Msg("summarization failed")
		return "", nil
	}
	return strings.TrimSpace(messageText(msg)), nil
}

// Respond generates the companion reply on the capable model.
func (c *Client) Respond(ctx context.Context, req RespondRequest) (*Reply, error) {
	system := companionSystemPrompt
	if req.Context != "" {
		system += "\n\nЧто ты знаешь о человеке и текущем моменте:\n" + req.Context
	}

	turns := make([]Turn, 0, len(req.History)+1)
	turns = append(turns, req.History...)
	turns = append(turns, Turn{Role: "user", Content: req.Message})

	started := time.Now()
	msg, err := c.complete(ctx, c.model, system, turns, c.maxTokens)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Content:        strings.TrimSpace(messageText(msg)),
		TokensUsed:     messageTokens(msg),
		ResponseTimeMs: int(time.Since(started).Milliseconds()),
	}, nil
}

// CheckinMessage writes a proactive check-in for a quiet user.
func (c *Client) CheckinMessage(ctx context.Context, req CheckinRequest) (string, error) {
	var b strings.Builder
	if req.UserName != "" {
		fmt.Fprintf(&b, "Имя человека: %s\n", req.UserName)
	}
	fmt.Fprintf(&b, "Не писал дней: %d\n", req.DaysSinceActive)
	if req.Context != "" {
		b.WriteString("Что ты о нём знаешь:\n" + req.Context + "\n")
	}

	msg, err := c.complete(ctx, c.modelFast, checkinSystemPrompt,
		[]Turn{{Role: "user", Content: b.String()}}, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("checkin message: %w", err)
	}
	return strings.TrimSpace(messageText(msg)), nil
}

func roleLabel(role string) string {
	if role == "assistant" {
		return "Рядом"
	}
	return "Человек"
}

// parseJSONBlock tolerates markdown fences and prose around the JSON
// object the prompts demand.
func parseJSONBlock(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in output")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("parse output: %w", err)
	}
	return nil
}
