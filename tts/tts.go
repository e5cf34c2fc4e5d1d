// Package tts hands reply text to an external speech-synthesis service and
// stores the returned audio on disk.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client synthesizes speech for one reply. Synthesize returns the path of the
// written audio file.
type Client interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// HTTPClient speaks a plain JSON-in, audio-out contract with a synthesis
// server (POST /synthesize).
type HTTPClient struct {
	baseURL string
	apiKey  string
	voice   string
	dataDir string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey, voice, dataDir string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		dataDir: dataDir,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize posts the text and writes the audio body under
// <dataDir>/replies. The file name is a fresh UUID.
func (c *HTTPClient) Synthesize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("synthesize: empty text")
	}
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: c.voice})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("synthesize failed: %s: %s", resp.Status, string(b))
	}

	dir := filepath.Join(c.dataDir, "replies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
