// Package slack provides a client for the Slack Web API, limited to the
// block-kit messaging surface the qualification reports use.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Slack operations.
type Client interface {
	// PostMessage posts a message and returns its timestamp for threading.
	PostMessage(ctx context.Context, msg *Message) (string, error)
	// Respond posts to an interaction's response URL, optionally replacing the
	// original message.
	Respond(ctx context.Context, responseURL string, payload *Response) error
}

// Message is an outgoing chat.postMessage payload.
type Message struct {
	Channel  string  `json:"channel"`
	Text     string  `json:"text"`
	Blocks   []Block `json:"blocks,omitempty"`
	ThreadTS string  `json:"thread_ts,omitempty"`
}

// Response is a payload for an interaction response URL.
type Response struct {
	Text            string  `json:"text,omitempty"`
	Blocks          []Block `json:"blocks,omitempty"`
	ReplaceOriginal bool    `json:"replace_original"`
	ResponseType    string  `json:"response_type,omitempty"`
}

// Block is a single block-kit block.
type Block struct {
	Type     string    `json:"type"`
	BlockID  string    `json:"block_id,omitempty"`
	Text     *TextObj  `json:"text,omitempty"`
	Fields   []TextObj `json:"fields,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// TextObj is a block-kit text object.
type TextObj struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Element is a block element. Buttons carry a *TextObj label; context
// elements are bare text objects, so Text is typed loosely.
type Element struct {
	Type     string `json:"type"`
	Text     any    `json:"text,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Style    string `json:"style,omitempty"`
}

// Markdown returns an mrkdwn text object.
func Markdown(text string) *TextObj {
	return &TextObj{Type: "mrkdwn", Text: text}
}

// Plain returns a plain-text text object.
func Plain(text string) *TextObj {
	return &TextObj{Type: "plain_text", Text: text}
}

// Section returns a section block with mrkdwn body.
func Section(text string) Block {
	return Block{Type: "section", Text: Markdown(text)}
}

// Header returns a header block.
func Header(text string) Block {
	return Block{Type: "header", Text: Plain(text)}
}

// Divider returns a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

// Actions returns an actions block holding the given elements.
func Actions(elements ...Element) Block {
	return Block{Type: "actions", Elements: elements}
}

// Button returns a button element.
func Button(label, actionID, value, style string) Element {
	return Element{
		Type:     "button",
		Text:     Plain(label),
		ActionID: actionID,
		Value:    value,
		Style:    style,
	}
}

// LinkButton returns a button that opens a URL instead of firing an action.
func LinkButton(label, actionID, url string) Element {
	return Element{
		Type:     "button",
		Text:     Plain(label),
		ActionID: actionID,
		URL:      url,
	}
}

// Context returns a context block of mrkdwn elements.
func Context(texts ...string) Block {
	elements := make([]Element, len(texts))
	for i, t := range texts {
		elements[i] = Element{Type: "mrkdwn", Text: t}
	}
	return Block{Type: "context", Elements: elements}
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// Option configures the Slack client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Slack client using a bot token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://slack.com/api",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) PostMessage(ctx context.Context, msg *Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", eris.Wrap(err, "slack: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "slack: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "slack: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "slack: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("slack: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result postMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "slack: unmarshal response")
	}
	// The Web API reports failures in-band with a 200.
	if !result.OK {
		return "", eris.Errorf("slack: postMessage failed: %s", result.Error)
	}
	return result.TS, nil
}

func (c *httpClient) Respond(ctx context.Context, responseURL string, payload *Response) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "slack: marshal response")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "slack: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "slack: respond failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return eris.Errorf("slack: respond status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
