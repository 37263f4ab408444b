// Package client provides an HTTP client for the orchestra server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/dispatch"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/jobs"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// Client talks to the orchestra server's REST and websocket endpoints.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses ORCHESTRA_SERVER_URL env var or defaults to localhost:8090.
// Timeout can be configured via ORCHESTRA_CLIENT_TIMEOUT env var (default 10m for streamed turns).
func New(baseURL, userID string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("ORCHESTRA_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("ORCHESTRA_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-User-ID", c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error: %s", errResp.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Ask sends one turn and streams the response fragments through
// onFragment. It returns the resolved conversation id, which may differ
// from the one passed in when the server assigns a fresh one.
func (c *Client) Ask(ctx context.Context, conversationID, message string, onFragment func(dispatch.Fragment) error) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"chat_id": conversationID,
		"message": message,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/ask", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-User-ID", c.userID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("server error: %s", errResp.Error)
		}
		return "", fmt.Errorf("server error: %s", resp.Status)
	}

	resolved := conversationID
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag dispatch.Fragment
		if err := json.Unmarshal(line, &frag); err != nil {
			return resolved, fmt.Errorf("unmarshal fragment: %w", err)
		}
		if frag.Kind == dispatch.FragmentConversation {
			resolved = frag.Content
		}
		if err := onFragment(frag); err != nil {
			return resolved, err
		}
	}
	if err := scanner.Err(); err != nil {
		return resolved, fmt.Errorf("read stream: %w", err)
	}
	return resolved, nil
}

// AskWS runs turns over a persistent websocket connection. Each call to
// the returned send function runs one turn; close releases the
// connection.
func (c *Client) AskWS(ctx context.Context) (send func(conversationID, message string, onFragment func(dispatch.Fragment) error) (string, error), closeFn func() error, err error) {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"X-User-ID": []string{c.userID}}
	conn, _, err := dialer.DialContext(ctx, wsURL+"/api/chat/ws", header)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket connect: %w", err)
	}

	send = func(conversationID, message string, onFragment func(dispatch.Fragment) error) (string, error) {
		err := conn.WriteJSON(map[string]string{
			"chat_id": conversationID,
			"message": message,
		})
		if err != nil {
			return conversationID, fmt.Errorf("send turn: %w", err)
		}

		resolved := conversationID
		for {
			var frame struct {
				dispatch.Fragment
				Done  bool   `json:"done"`
				Error string `json:"error"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return resolved, fmt.Errorf("read frame: %w", err)
			}
			if frame.Error != "" {
				return resolved, fmt.Errorf("server error: %s", frame.Error)
			}
			if frame.Done {
				return resolved, nil
			}
			if frame.Kind == dispatch.FragmentConversation {
				resolved = frame.Content
			}
			if err := onFragment(frame.Fragment); err != nil {
				return resolved, err
			}
		}
	}
	return send, conn.Close, nil
}

// Chats lists the caller's conversations, newest first.
func (c *Client) Chats(ctx context.Context) ([]models.ChatSummary, error) {
	var result struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat/all", nil, &result); err != nil {
		return nil, err
	}
	return result.Chats, nil
}

// History returns a conversation's messages. includeDeleted also returns
// soft-deleted messages.
func (c *Client) History(ctx context.Context, conversationID string, includeDeleted bool) ([]models.Message, error) {
	path := "/api/chat/history/" + conversationID
	if includeDeleted {
		path += "?include_deleted=true"
	}
	var result struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Delete soft-deletes a conversation.
func (c *Client) Delete(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/delete/"+conversationID, nil, nil)
}

// Jobs lists the caller's generation jobs.
func (c *Client) Jobs(ctx context.Context) ([]jobs.Info, error) {
	var result struct {
		Jobs []jobs.Info `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// Job retrieves one job by id.
func (c *Client) Job(ctx context.Context, jobID string) (*jobs.Info, error) {
	var info jobs.Info
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// JobConfig downloads the generated configuration file of a finished job.
func (c *Client) JobConfig(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/config", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("server error: %s", errResp.Error)
		}
		return "", fmt.Errorf("server error: %s", resp.Status)
	}
	return string(data), nil
}

// CancelJob aborts a running job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil, nil)
}

// UploadEnv uploads supplementary env content consulted by config
// generation.
func (c *Client) UploadEnv(ctx context.Context, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-env", bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}
	return nil
}

// Stats returns in-memory runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
