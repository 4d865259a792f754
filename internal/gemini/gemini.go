// Package gemini is the alternative scoring and translation provider,
// backed by the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"campusnews/internal/ratelimit"
	"campusnews/internal/score"
)

const defaultModel = "gemini-1.5-flash"

type Client struct {
	client *genai.Client
	budget *ratelimit.Budget
}

func NewClient(ctx context.Context, apiKey string, budget *ratelimit.Budget) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, budget: budget}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) Name() string {
	return "gemini"
}

// ScoreBatch scores one batch of candidates and returns scores keyed by
// the 1-based position in the batch.
func (c *Client) ScoreBatch(ctx context.Context, profile string, batch []score.Candidate) (map[int]int, error) {
	if len(batch) == 0 {
		return map[int]int{}, nil
	}

	text, err := c.generate(ctx, score.BuildPrompt(profile, batch), 0.2)
	if err != nil {
		return nil, err
	}

	return score.ParseScores(text)
}

// Translate renders an English title into concise Chinese.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	prompt := "请把下面英文翻成自然简洁的中文，只输出翻译结果：\n" + text
	return c.generate(ctx, prompt, 0.1)
}

func (c *Client) generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	if c.budget != nil {
		if err := c.budget.UseGemini(); err != nil {
			return "", err
		}
	}

	model := c.client.GenerativeModel(defaultModel)
	model.SetTemperature(temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}

	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])), nil
}
