package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// OpenAIProvider judges a batch with one chat-completions call. The prompt
// asks for a strict JSON array so a single request covers the whole batch.
type OpenAIProvider struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

const systemPrompt = `You judge livestream chat comments for a streamer's assistant.
For each numbered comment decide if it deserves a spoken reply (questions about booking, price, hours, location, menu, delivery, contact do; filler and spam do not).
Respond with ONLY a JSON array, one object per comment, in order:
[{"has_value": bool, "reply_text": "short friendly reply or empty", "confidence": 0.0-1.0}]`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Judge(ctx context.Context, items []Item) ([]Verdict, error) {
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, it.Comment.DisplayName, it.Comment.Content)
	}
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Status text feeds the retry classifier.
		return nil, fmt.Errorf("judge request failed: %s: %s", resp.Status, string(b))
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("judge response had no choices")
	}
	return parseVerdicts(cr.Choices[0].Message.Content, len(items))
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// parseVerdicts decodes the model output, tolerating prose around the JSON
// array. Short arrays are padded with no-value verdicts; long ones truncated.
func parseVerdicts(content string, want int) ([]Verdict, error) {
	raw := content
	if !json.Valid([]byte(raw)) {
		if m := jsonArrayRe.FindString(content); m != "" {
			raw = m
		}
	}
	var vs []Verdict
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil, fmt.Errorf("judge response parse: %w", err)
	}
	for len(vs) < want {
		vs = append(vs, Verdict{HasValue: false})
	}
	return vs[:want], nil
}
