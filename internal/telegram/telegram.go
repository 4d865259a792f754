// Package telegram posts the digest to a Telegram chat or channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"campusnews/internal/retry"
)

// Telegram caps messages at 4096 chars; stay under it with headroom.
const maxMessageLen = 4000

type Sender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewSender(token, chatID string) *Sender {
	return &Sender{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Sender) Name() string {
	return "telegram"
}

// Deliver sends the digest, split into chunks on line boundaries so a
// report entry never gets cut in half.
func (s *Sender) Deliver(ctx context.Context, subject, body string) error {
	text := subject + "\n\n" + body
	chunks := SplitChunks(text, maxMessageLen)

	for i, chunk := range chunks {
		if err := s.send(ctx, chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	log.Printf("Message sent to Telegram (%d chunks)", len(chunks))
	return nil
}

func (s *Sender) send(ctx context.Context, text string) error {
	cfg := retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}
	return retry.WithRetry(ctx, cfg, func() error {
		err := s.sendOnce(ctx, text)
		if err != nil {
			log.Printf("Error send to Telegram: %v", err)
		}
		return err
	})
}

func (s *Sender) sendOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	payload := map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     text,
		"disable_web_page_preview": true, // No link preview for clean
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error make request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %v", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Printf("Warning: failed to close response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}

	return nil
}

// SplitChunks breaks text into pieces of at most limit bytes, cutting
// on line boundaries. A single oversized line is hard-cut on a rune
// boundary.
func SplitChunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line)+1 > limit {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return chunks
}
