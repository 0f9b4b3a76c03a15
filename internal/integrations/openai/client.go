// Package openai calls an OpenAI-compatible chat completions endpoint. The API
// token is read from the parameter store, never from the environment.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lead-dashboard/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second
	tokenParam     = "/open-ai-token"

	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// CompletionRequest is a single chat completion call: model, prompt messages,
// token budget and temperature.
type CompletionRequest struct {
	Model       string
	Messages    []domain.ChatMessage
	MaxTokens   int
	Temperature float64
}

type completionBody struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature float64              `json:"temperature"`
}

type completionReply struct {
	Choices []struct {
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorReply struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Getter reads one decrypted parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError is returned for any non-2xx reply.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	// Message is the upstream error message when the body carried one,
	// otherwise a prefix of the raw body.
	Message string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

// Temporary reports whether retrying the same request may succeed.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	params     Getter
	tokenName  string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible server. A base
// without a /v1 suffix gets one appended.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.endpoint = completionsURL(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient returns a client that reads its token from <paramPrefix>/open-ai-token.
func NewClient(params Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if params == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		endpoint:   completionsURL(defaultBaseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		params:     params,
		tokenName:  paramPrefix + tokenParam,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/chat/completions"
}

// apiToken returns the cached token, loading it on first use. Failures are
// not cached so a token saved later is picked up without a restart.
func (c *Client) apiToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	raw, err := c.params.GetParameter(ctx, c.tokenName)
	if err != nil {
		return "", fmt.Errorf("openai: read token %s: %w", c.tokenName, err)
	}
	token, err := parseToken(raw)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// parseToken accepts either {"token": "..."} or the bare token string.
func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var v struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return "", fmt.Errorf("openai: decode token parameter: %w", err)
		}
		raw = strings.TrimSpace(v.Token)
	}
	if raw == "" {
		return "", errors.New("openai: API token is empty")
	}
	return raw, nil
}

// Complete sends one chat completion request and returns the trimmed text of
// the first choice.
func (c *Client) Complete(ctx context.Context, in CompletionRequest) (string, error) {
	if in.Model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	if len(in.Messages) == 0 {
		return "", errors.New("openai: at least one message is required")
	}

	token, err := c.apiToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(completionBody{
		Model:       in.Model,
		Messages:    in.Messages,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := c.post(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var reply completionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(reply.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	choice := reply.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" && choice.FinishReason == "content_filter" {
		return "", errors.New("openai: completion blocked by content filter")
	}
	return text, nil
}

func (c *Client) post(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Message:    errorMessage(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func errorMessage(body []byte) string {
	var reply apiErrorReply
	if err := json.Unmarshal(body, &reply); err == nil && reply.Error.Message != "" {
		return reply.Error.Message
	}
	return strings.TrimSpace(string(body))
}
