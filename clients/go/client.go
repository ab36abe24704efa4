// Package modelcache is a thin client for the modelcache HTTP API.
//
// It speaks the POST /modelcache envelope protocol and has no dependencies
// beyond the standard library, so it can be vendored into callers cheaply.
package modelcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is one turn of a conversation prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPair is one prompt/answer pair of an insert request.
type ChatPair struct {
	Query  any    `json:"query"`
	Answer string `json:"answer"`
}

// Response is the decoded response envelope. Fields not applicable to the
// request type are zero.
type Response struct {
	ErrorCode   int             `json:"errorCode"`
	ErrorDesc   string          `json:"errorDesc"`
	CacheHit    bool            `json:"cacheHit"`
	DeltaTime   string          `json:"delta_time"`
	HitQuery    json.RawMessage `json:"hit_query"`
	Answer      string          `json:"answer"`
	WriteStatus string          `json:"writeStatus"`
	Payload     json.RawMessage `json:"response"`
}

// Client calls a modelcache server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:5000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Query asks the cache for an answer to query, which may be a string or a
// []Message conversation.
func (c *Client) Query(ctx context.Context, model string, query any) (Response, error) {
	return c.send(ctx, map[string]any{
		"type":  "query",
		"scope": map[string]string{"model": model},
		"query": query,
	})
}

// Insert stores prompt/answer pairs under the model scope.
func (c *Client) Insert(ctx context.Context, model string, pairs ...ChatPair) (Response, error) {
	return c.send(ctx, map[string]any{
		"type":      "insert",
		"scope":     map[string]string{"model": model},
		"chat_info": pairs,
	})
}

// Remove deletes the given entry ids from the model scope.
func (c *Client) Remove(ctx context.Context, model string, ids ...string) (Response, error) {
	return c.send(ctx, map[string]any{
		"type":        "remove",
		"scope":       map[string]string{"model": model},
		"remove_type": "delete_by_id",
		"id_list":     ids,
	})
}

// Truncate deletes everything stored under the model scope.
func (c *Client) Truncate(ctx context.Context, model string) (Response, error) {
	return c.send(ctx, map[string]any{
		"type":        "remove",
		"scope":       map[string]string{"model": model},
		"remove_type": "truncate_by_model",
	})
}

// Register ensures the model scope's vector collection exists.
func (c *Client) Register(ctx context.Context, model string) (Response, error) {
	return c.send(ctx, map[string]any{
		"type":  "register",
		"scope": map[string]string{"model": model},
	})
}

func (c *Client) send(ctx context.Context, envelope map[string]any) (Response, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/modelcache", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
