package syncservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a sync server on behalf of one user.
type Client struct {
	baseURL string
	userID  string
	token   string
	http    *http.Client
}

func NewClient(baseURL, userID, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderUserID, c.userID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("sync %s %s: %w", method, path, ErrNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("sync %s %s: %w", method, path, ErrUnauthorized)
		}
		return fmt.Errorf("sync %s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sync response: %w", err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := new(Status)
	if err := c.do(ctx, http.MethodGet, "/api/sync/status", nil, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Client) PushNotebook(ctx context.Context, req NotebookRequest) (*Ack, error) {
	ack := new(Ack)
	if err := c.do(ctx, http.MethodPost, "/api/sync/notebooks", req, ack); err != nil {
		return nil, err
	}
	return ack, nil
}

func (c *Client) PullNotebooks(ctx context.Context) ([]Notebook, error) {
	var out struct {
		Notebooks []Notebook `json:"notebooks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sync/notebooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Notebooks, nil
}

func (c *Client) GetNotebook(ctx context.Context, id string) (*Notebook, error) {
	nb := new(Notebook)
	if err := c.do(ctx, http.MethodGet, "/api/sync/notebooks/"+url.PathEscape(id), nil, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (c *Client) DeleteNotebook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/notebooks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) PushConversation(ctx context.Context, req ConversationRequest) error {
	return c.do(ctx, http.MethodPost, "/api/sync/conversations", req, nil)
}

func (c *Client) PullConversations(ctx context.Context, notebookID string) ([]Conversation, error) {
	path := "/api/sync/conversations"
	if notebookID != "" {
		path += "?notebook_id=" + url.QueryEscape(notebookID)
	}
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) PutSettings(ctx context.Context, settingsJSON string) error {
	return c.do(ctx, http.MethodPut, "/api/sync/settings", SettingsRequest{SettingsJSON: settingsJSON}, nil)
}

func (c *Client) GetSettings(ctx context.Context) (string, error) {
	var st Settings
	if err := c.do(ctx, http.MethodGet, "/api/sync/settings", nil, &st); err != nil {
		return "", err
	}
	return st.SettingsJSON, nil
}
