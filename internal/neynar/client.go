// Package neynar is a small client for the Neynar Farcaster API.
// Only the two write calls the bot needs are implemented: liking a cast and
// publishing a threaded reply.
package neynar

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
)

const (
	DefaultBaseURL = "https://api.neynar.com"
	DefaultTimeout = 15 * time.Second

	reactionPath = "/v2/farcaster/reaction"
	castPath     = "/v2/farcaster/cast"
)

// ErrNoSigner is returned when the client has no signer to act with.
var ErrNoSigner = errors.New("neynar: signer uuid not configured")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("neynar: http %d", e.Status)
	}
	return fmt.Sprintf("neynar: http %d: %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	SignerUUID string
	BaseURL    string
	ChannelID  string // optional channel tag for replies
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client publishes reactions and casts on behalf of one signer.
type Client struct {
	apiKey     string
	signerUUID string
	baseURL    string
	channelID  string
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		apiKey:     opts.APIKey,
		signerUUID: opts.SignerUUID,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		channelID:  opts.ChannelID,
		httpClient: hc,
	}
}

type reactionRequest struct {
	SignerUUID   string `json:"signer_uuid"`
	ReactionType string `json:"reaction_type"`
	Target       string `json:"target"`
}

type castRequest struct {
	SignerUUID string `json:"signer_uuid"`
	Text       string `json:"text"`
	Parent     string `json:"parent,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`
}

type castResponse struct {
	Success bool `json:"success"`
	Cast    struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// PublishReaction likes the cast identified by target.
func (c *Client) PublishReaction(ctx context.Context, target string) error {
	if c.signerUUID == "" {
		return ErrNoSigner
	}
	req := reactionRequest{SignerUUID: c.signerUUID, ReactionType: "like", Target: target}
	return c.post(ctx, reactionPath, req, nil)
}

// PublishReply casts text as a reply to parent and returns the new cast hash.
func (c *Client) PublishReply(ctx context.Context, parent, text string) (string, error) {
	if c.signerUUID == "" {
		return "", ErrNoSigner
	}
	req := castRequest{
		SignerUUID: c.signerUUID,
		Text:       text,
		Parent:     parent,
		ChannelID:  c.channelID,
	}
	var resp castResponse
	if err := c.post(ctx, castPath, req, &resp); err != nil {
		return "", err
	}
	return resp.Cast.Hash, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("neynar: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("neynar: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("neynar: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("neynar: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("neynar: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the "message" field Neynar puts on error bodies,
// falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
