// Package generation talks to the external essay-generation collaborator:
// an OpenAI-compatible chat-completions API.
//
// The collaborator's output is UNTRUSTED. Everything it returns is decoded
// into the loose Generated* types in this package and validated exhaustively
// by the service layer before anything crosses into the domain model or
// storage. Never decode a completion straight into storage types.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fredhq/companion/internal/apperror"
)

// GeneratedSection is one essay section as returned by the collaborator.
type GeneratedSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// GeneratedTidbit is one insight tag as returned by the collaborator.
// Type is a plain string here; the closed-enum check happens during
// validation, not decoding.
type GeneratedTidbit struct {
	Type           string  `json:"type"`
	Content        string  `json:"content"`
	Description    string  `json:"description"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// GeneratedContent is the full payload one generation run produces.
type GeneratedContent struct {
	Sections []GeneratedSection `json:"sections"`
	Tidbits  []GeneratedTidbit  `json:"tidbits"`
}

// Config holds the collaborator connection parameters.
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration // bound on the whole request; we fail fast past it
}

// Client is an HTTP client for the generation API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a generation client with a bounded request timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// chatRequest is the OpenAI-style completion request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat chatFormat    `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

// chatResponse is the slice of the completion response we care about.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt and decodes the collaborator's JSON reply.
//
// Failure modes all surface as ErrUpstream: non-2xx status, an empty or
// malformed completion envelope, or message content that is not valid JSON.
// Structural problems inside otherwise-valid JSON (missing keys, bad enum
// values) are NOT this layer's job; the orchestrator validates those and
// classifies them as validation errors.
func (c *Client) Complete(ctx context.Context, prompt string) (*GeneratedContent, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "system", Content: prompt}},
		Temperature: 0.7,
		// json_object mode instructs the model to emit a single JSON value.
		ResponseFormat: chatFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("generation: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperror.Upstream("generation", "request failed"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a bounded slice of the error body for the log line.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperror.Upstream("generation",
			fmt.Sprintf("status %d: %s", resp.StatusCode, detail))
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, apperror.Upstream("generation", "unparsable completion envelope")
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		return nil, apperror.Upstream("generation", "completion has no message content")
	}

	var content GeneratedContent
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &content); err != nil {
		return nil, apperror.Upstream("generation", "message content is not valid JSON")
	}

	return &content, nil
}
