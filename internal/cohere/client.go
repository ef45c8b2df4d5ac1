// Package cohere provides the chat client for the Cohere /v1/chat endpoint.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatdeck/internal/logger"
)

// DefaultURL is the public chat endpoint.
const DefaultURL = "https://api.cohere.ai/v1/chat"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Chat history roles as the API spells them.
const (
	RoleUser    = "user"
	RoleChatbot = "chatbot"
)

// ChatTurn is one prior message in chat_history.
type ChatTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// ChatRequest is the JSON body of a chat call.
type ChatRequest struct {
	Message     string     `json:"message"`
	Model       string     `json:"model"`
	Temperature float64    `json:"temperature"`
	ChatHistory []ChatTurn `json:"chat_history"`
	Preamble    string     `json:"preamble"`
}

// ChatResponse is the part of a successful reply chatdeck uses.
type ChatResponse struct {
	Text string `json:"text"`
}

type errorBody struct {
	Message string `json:"message"`
}

// TransportError wraps failures to reach the API or read its reply.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a non-2xx status or an unusable response body.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("Cohere API error: %d - %s", e.StatusCode, msg)
}

// Client calls the chat endpoint with a bearer credential.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client for url with the given request timeout.
// An empty url selects DefaultURL.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Chat posts req and returns the reply text.
// Errors are *TransportError or *ProtocolError.
func (c *Client) Chat(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = []ChatTurn{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to encode chat request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create chat request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	logger.Debug("Starting chat request",
		"url", c.url,
		"model", req.Model,
		"history_turns", len(req.ChatHistory),
		"timeout", c.timeout.String())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Error("Chat request failed", "error", err, "url", c.url)
		return nil, &TransportError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	logger.Debug("Chat request completed",
		"status", resp.StatusCode,
		"elapsed", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read chat response", "error", err, "status", resp.StatusCode)
		return nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var out struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Message: "malformed response body: " + err.Error()}
	}
	if out.Text == nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Message: "response has no text field"}
	}

	return &ChatResponse{Text: *out.Text}, nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		logger.Warn("Failed to read error response", "error", err, "status", resp.StatusCode)
	}

	var body errorBody
	if len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	logger.Warn("Chat API returned an error", "status", resp.StatusCode, "message", body.Message)
	return &ProtocolError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(body.Message)}
}
