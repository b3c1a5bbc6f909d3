package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/pagesnap/guard"
)

// maxAnswerBytes caps the chat-completions response body.
const maxAnswerBytes = 1 << 20

const systemPrompt = "You are a helpful assistant that only returns the official homepage URL " +
	"for a given company, product, or service keyword. Return null if unsure."

// LLMConfig configures an OpenAI-compatible chat-completions backend.
type LLMConfig struct {
	BaseURL string // e.g. https://generativelanguage.googleapis.com/v1beta/openai/
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// LLM asks a language model for the homepage of a keyword.
type LLM struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

// NewLLM creates an LLM resolver.
func NewLLM(cfg LLMConfig) *LLM {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("content-type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &LLM{client: client, model: cfg.Model, logger: cfg.Logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func userPrompt(keyword string) string {
	return fmt.Sprintf("Give me the official website URL for: %q or try to find relevant website's URL for: %s",
		keyword, keyword)
}

// Resolve implements Resolver.
func (l *LLM) Resolve(ctx context.Context, keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", fmt.Errorf("resolver: empty keyword")
	}

	res, err := l.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetBody(chatRequest{
			Model: l.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt(keyword)},
			},
		}).
		Post("chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("resolver: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	body := res.RawBody()
	defer body.Close()

	status := res.StatusCode()
	switch {
	case status == 429:
		return "", ErrRateLimited
	case status >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case status >= 400:
		return "", fmt.Errorf("resolver: status %d", status)
	}

	data, err := guard.LimitedReadAll(body, maxAnswerBytes)
	if err != nil {
		return "", fmt.Errorf("%w: read answer: %w", ErrUnavailable, err)
	}
	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("resolver: decode answer: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrNoResult
	}

	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	u, ok := ExtractURL(answer)
	if !ok {
		l.logger.Debug("resolver: answer without url", "keyword", keyword, "answer", answer)
		return "", ErrNoResult
	}
	l.logger.Debug("resolver: resolved", "keyword", keyword, "url", u)
	return u, nil
}
