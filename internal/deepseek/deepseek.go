// Package deepseek talks to the DeepSeek chat API through its
// OpenAI-compatible endpoint. It is the default scoring and translation
// provider.
package deepseek

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"campusnews/internal/ratelimit"
	"campusnews/internal/score"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"

	scoreSystemPrompt     = "你是一个只返回数字评分的推荐系统，不要输出解释。"
	translateSystemPrompt = "你是一个精准翻译助手，只输出翻译结果。"
)

type Client struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	budget  *ratelimit.Budget
}

func NewClient(apiKey string, budget *ratelimit.Budget) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("DeepSeek API key is not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = defaultBaseURL

	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   defaultModel,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		budget:  budget,
	}, nil
}

func (c *Client) Name() string {
	return "deepseek"
}

// ScoreBatch asks the model to score every candidate in one request and
// returns scores keyed by the 1-based position in the batch.
func (c *Client) ScoreBatch(ctx context.Context, profile string, batch []score.Candidate) (map[int]int, error) {
	if len(batch) == 0 {
		return map[int]int{}, nil
	}

	text, err := c.chat(ctx, scoreSystemPrompt, score.BuildPrompt(profile, batch), 0.2)
	if err != nil {
		return nil, err
	}

	return score.ParseScores(text)
}

// Translate renders an English title into concise Chinese.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	prompt := "请把下面英文翻成自然简洁的中文：\n" + text
	return c.chat(ctx, translateSystemPrompt, prompt, 0.1)
}

func (c *Client) chat(ctx context.Context, system, user string, temperature float32) (string, error) {
	if c.budget != nil {
		if err := c.budget.UseDeepSeek(); err != nil {
			return "", err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("DeepSeek request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from DeepSeek")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
