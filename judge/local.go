package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// LocalProvider posts the batch to a self-hosted judgment endpoint (e.g., a
// sidecar model server) speaking a plain JSON contract.
type LocalProvider struct {
	baseURL string
	client  *http.Client
}

func NewLocalProvider(baseURL string) *LocalProvider {
	return &LocalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (p *LocalProvider) Name() string { return "local" }

type localRequest struct {
	Comments []localComment `json:"comments"`
}

type localComment struct {
	Content      string  `json:"content"`
	DisplayName  string  `json:"display_name"`
	KeywordScore float64 `json:"keyword_score"`
	Category     string  `json:"category,omitempty"`
}

type localResponse struct {
	Verdicts []Verdict `json:"verdicts"`
}

func (p *LocalProvider) Judge(ctx context.Context, items []Item) ([]Verdict, error) {
	reqBody := localRequest{Comments: make([]localComment, len(items))}
	for i, it := range items {
		reqBody.Comments[i] = localComment{
			Content:      it.Comment.Content,
			DisplayName:  it.Comment.DisplayName,
			KeywordScore: it.Score.KeywordScore,
			Category:     it.Score.Category,
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/judge", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
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
		return nil, fmt.Errorf("judge request failed: %s: %s", resp.Status, string(b))
	}
	var lr localResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, err
	}
	if len(lr.Verdicts) != len(items) {
		return nil, fmt.Errorf("judge returned %d verdicts for %d comments", len(lr.Verdicts), len(items))
	}
	return lr.Verdicts, nil
}
