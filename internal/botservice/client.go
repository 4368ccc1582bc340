package botservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TranscriptMessage is one entry of channel history sent to the bot
// service for summarization or indexing.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// SeedRequest asks the bot service to generate a staged conversation.
type SeedRequest struct {
	ChannelID string `json:"channel_id"`
	Prompt    string `json:"prompt"`
	NumTurns  int    `json:"num_turns"`
	Bots      []int  `json:"bots,omitempty"`
}

// SeedMessage is one generated turn, attributed to a bot number.
type SeedMessage struct {
	BotNumber int    `json:"bot_number"`
	Content   string `json:"content"`
}

// SummaryRequest asks for a summary of channel history with an optional
// focus prompt.
type SummaryRequest struct {
	ChannelID string              `json:"channel_id"`
	Prompt    string              `json:"prompt,omitempty"`
	Messages  []TranscriptMessage `json:"messages"`
}

// IndexRequest submits channel history for embedding.
type IndexRequest struct {
	ChannelID string              `json:"channel_id"`
	Messages  []TranscriptMessage `json:"messages"`
}

// Persona is one configured bot identity.
type Persona struct {
	BotNumber int    `json:"bot_number"`
	Persona   string `json:"persona"`
	Enabled   bool   `json:"enabled"`
}

// Client is the bot-service surface the command dispatcher depends on.
type Client interface {
	Seed(ctx context.Context, req SeedRequest) ([]SeedMessage, error)
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
	Index(ctx context.Context, req IndexRequest) (int, error)
	ListPersonas(ctx context.Context) ([]Persona, error)
	SetPersona(ctx context.Context, botNumber int, persona string) error
	ResetIndex(ctx context.Context, channelID string) error
	SetBotEnabled(ctx context.Context, botNumber int, enabled bool) error
}

// HTTPClient talks to the bot service over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewHTTPClient(baseURL string, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPClient) Seed(ctx context.Context, req SeedRequest) ([]SeedMessage, error) {
	var resp struct {
		Messages []SeedMessage `json:"messages"`
	}
	if err := c.post(ctx, "/seed", req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *HTTPClient) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/summary", req, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (c *HTTPClient) Index(ctx context.Context, req IndexRequest) (int, error) {
	var resp struct {
		Indexed int `json:"indexed"`
	}
	if err := c.post(ctx, "/index", req, &resp); err != nil {
		return 0, err
	}
	return resp.Indexed, nil
}

func (c *HTTPClient) ListPersonas(ctx context.Context) ([]Persona, error) {
	var resp struct {
		Personas []Persona `json:"personas"`
	}
	if err := c.get(ctx, "/personas", &resp); err != nil {
		return nil, err
	}
	return resp.Personas, nil
}

func (c *HTTPClient) SetPersona(ctx context.Context, botNumber int, persona string) error {
	body := map[string]any{"persona": persona}
	return c.post(ctx, fmt.Sprintf("/personas/%d", botNumber), body, nil)
}

func (c *HTTPClient) ResetIndex(ctx context.Context, channelID string) error {
	body := map[string]any{"channel_id": channelID}
	return c.post(ctx, "/index/reset", body, nil)
}

func (c *HTTPClient) SetBotEnabled(ctx context.Context, botNumber int, enabled bool) error {
	action := "enable"
	if !enabled {
		action = "disable"
	}
	return c.post(ctx, fmt.Sprintf("/bots/%d/%s", botNumber, action), nil, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("bot service call failed")
		return fmt.Errorf("bot service %s: status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
