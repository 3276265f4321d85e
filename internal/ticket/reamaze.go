// Package ticket is the Re:amaze ticketing collaborator: fetch one
// unresolved conversation and write triage results back (private note, tags,
// assignee). Auth is HTTP Basic with (login email, API token). Every
// mutation returns (ok, detail) instead of an error so the decision engine
// can record partial failures without aborting the run.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cancelbot/internal/config"
	"cancelbot/internal/logging"
)

// Context is the input unit for one run: identifier slug, subject line and
// the latest message body. Immutable for the duration of the run.
type Context struct {
	Slug    string
	Subject string
	Message string
}

// CombinedText returns the text handed to the classifier: subject and
// latest message, or just the subject when the message is empty.
func (c *Context) CombinedText() string {
	combined := strings.TrimSpace(c.Subject + "\n\n" + c.Message)
	if combined == "" {
		return c.Subject
	}
	return combined
}

// Client is a thin Re:amaze API client.
type Client struct {
	brand      string
	email      string
	token      string
	baseURL    string
	limitSlug  string
	httpClient *http.Client
}

// NewClient builds a Re:amaze client from configuration.
func NewClient(cfg *config.ReamazeConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		brand:      cfg.Brand,
		email:      cfg.Email,
		token:      cfg.APIToken,
		baseURL:    fmt.Sprintf("https://%s.reamaze.io/api/v1", cfg.Brand),
		limitSlug:  cfg.LimitToConvo,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// conversation mirrors the fields the pipeline consumes.
type conversation struct {
	Slug     string `json:"slug"`
	Subject  string `json:"subject"`
	Messages []struct {
		BodyText  string `json:"body_text"`
		PlainBody string `json:"plain_body"`
	} `json:"messages"`
}

func (c *Client) toContext(conv *conversation) *Context {
	tc := &Context{Slug: conv.Slug, Subject: conv.Subject}
	if len(conv.Messages) > 0 {
		last := conv.Messages[len(conv.Messages)-1]
		tc.Message = last.BodyText
		if tc.Message == "" {
			tc.Message = last.PlainBody
		}
	}
	return tc
}

// FetchOneUnresolved returns the next unresolved conversation, the pinned
// conversation when one is configured, or nil when none is found.
func (c *Client) FetchOneUnresolved(ctx context.Context) (*Context, error) {
	if c.limitSlug != "" {
		return c.fetchBySlug(ctx, c.limitSlug)
	}

	url := fmt.Sprintf("%s/conversations.json?brand=%s&state=unresolved&per_page=1", c.baseURL, c.brand)
	body, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		return nil, fmt.Errorf("403 Forbidden: ensure REAMAZE_EMAIL is the same account that generated the token and REAMAZE_BRAND matches the subdomain")
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("conversation list failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var result struct {
		Conversations []conversation `json:"conversations"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse conversation list: %w", err)
	}
	if len(result.Conversations) == 0 {
		logging.Ticket("no unresolved conversations found")
		return nil, nil
	}
	return c.toContext(&result.Conversations[0]), nil
}

func (c *Client) fetchBySlug(ctx context.Context, slug string) (*Context, error) {
	url := fmt.Sprintf("%s/conversations/%s.json", c.baseURL, slug)
	body, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("could not fetch conversation %s: status %d: %s", slug, status, strings.TrimSpace(string(body)))
	}

	var result struct {
		Conversation conversation `json:"conversation"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return c.toContext(&result.Conversation), nil
}

// PostPrivateNote adds an internal note to a conversation.
func (c *Client) PostPrivateNote(ctx context.Context, slug, text string) (bool, string) {
	url := fmt.Sprintf("%s/conversations/%s/messages.json", c.baseURL, slug)
	payload := map[string]interface{}{
		"message": map[string]interface{}{"body": text, "private": true},
	}
	return c.mutate(ctx, http.MethodPost, url, payload)
}

// AddTags applies tags to a conversation. An empty tag set is a no-op.
func (c *Client) AddTags(ctx context.Context, slug string, tags []string) (bool, string) {
	if len(tags) == 0 {
		return true, "no-op"
	}
	url := fmt.Sprintf("%s/conversations/%s/tags.json", c.baseURL, slug)
	return c.mutate(ctx, http.MethodPost, url, map[string]interface{}{"tags": tags})
}

// Assign assigns a conversation to a staff member by name. An empty
// assignee is a no-op.
func (c *Client) Assign(ctx context.Context, slug, assignee string) (bool, string) {
	if assignee == "" {
		return true, "no-op"
	}
	url := fmt.Sprintf("%s/conversations/%s.json", c.baseURL, slug)
	payload := map[string]interface{}{
		"conversation": map[string]interface{}{"assignee_name": assignee},
	}
	return c.mutate(ctx, http.MethodPut, url, payload)
}

func (c *Client) mutate(ctx context.Context, method, url string, payload interface{}) (bool, string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err.Error()
	}
	body, status, err := c.do(ctx, method, url, data)
	if err != nil {
		logging.TicketError("%s %s failed: %v", method, url, err)
		return false, err.Error()
	}
	ok := status >= 200 && status < 300
	if !ok {
		logging.TicketError("%s %s returned status %d: %s", method, url, status, string(body))
	}
	return ok, strings.TrimSpace(string(body))
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.email, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}
