// Package insight asks an Ollama server for a free-form summary of a
// session's records.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"netscope/internal/logger"
	"netscope/internal/models"
	"netscope/internal/reporting"
	"netscope/internal/store"

	"github.com/patrickmn/go-cache"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Config selects the server and model.
type Config struct {
	URL         string
	Model       string
	Timeout     time.Duration
	RecordLimit int
	CacheTTL    time.Duration
}

// RecordFetcher reads the records a prompt is built from.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, name string, f store.Filter) ([]models.PacketRecord, error)
	Count(ctx context.Context, name string) (int, error)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Summary is one generated answer.
type Summary struct {
	Session  string `json:"session"`
	Model    string `json:"model"`
	Records  int    `json:"records"`
	Total    int    `json:"total"`
	Response string `json:"response"`
	Cached   bool   `json:"cached"`
}

// Client talks to the generate endpoint and caches answers per session.
// Keep one Client for the life of a process to benefit from the cache.
type Client struct {
	cfg   Config
	fetch RecordFetcher
	http  *http.Client
	cache *cache.Cache
	log   *logger.Logger
}

// NewClient creates a client. Zero config fields take the defaults of a
// local Ollama install.
func NewClient(cfg Config, fetch RecordFetcher, log *logger.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = 50
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		cfg:   cfg,
		fetch: fetch,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:   log,
	}
}

// Summarize builds the analyst prompt from the first records of session and
// returns the model's answer. Answers are reused until the cache entry
// expires or the session grows.
func (c *Client) Summarize(ctx context.Context, session string) (*Summary, error) {
	total, err := c.fetch.Count(ctx, session)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|%s|%d|%d", c.cfg.Model, session, c.cfg.RecordLimit, total)
	if cached, ok := c.cache.Get(key); ok {
		s := *cached.(*Summary)
		s.Cached = true
		return &s, nil
	}

	records, err := c.fetch.FetchRecords(ctx, session, store.Filter{Limit: c.cfg.RecordLimit})
	if err != nil {
		return nil, err
	}

	c.log.Info("Requesting insight for %s from %s (%d records)", session, c.cfg.Model, len(records))
	text, err := c.Generate(ctx, reporting.AnalystPrompt(records))
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Session:  session,
		Model:    c.cfg.Model,
		Records:  len(records),
		Total:    total,
		Response: text,
	}
	c.cache.Set(key, s, cache.DefaultExpiration)
	out := *s
	return &out, nil
}

// Generate sends one non-streaming prompt and returns the response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.URL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("insight request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read insight response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("insight server returned %s", resp.Status)
		}
		return "", fmt.Errorf("failed to decode insight response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("insight server returned %s: %s", resp.Status, out.Error)
		}
		return "", fmt.Errorf("insight server returned %s", resp.Status)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}
