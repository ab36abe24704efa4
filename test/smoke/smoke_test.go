// Package smoke provides smoke tests for the modelcache API.
// Expects a running modelcache server at baseURL.
package smoke

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

const (
	baseHost = "127.0.0.1"
	basePort = 5000
)

var baseURL = fmt.Sprintf("http://%s:%d", baseHost, basePort)

func TestSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	waitForServer(t)

	model := fmt.Sprintf("smoke_%d", time.Now().UnixNano())

	envelope := post(t, map[string]any{
		"type":  "register",
		"scope": map[string]string{"model": model},
	})
	if code := envelope["errorCode"].(float64); code != 0 {
		t.Fatalf("register failed: %v", envelope)
	}

	envelope = post(t, map[string]any{
		"type":  "insert",
		"scope": map[string]string{"model": model},
		"chat_info": []map[string]any{
			{"query": "what is a goroutine", "answer": "a lightweight thread"},
		},
	})
	if status := envelope["writeStatus"]; status != "success" {
		t.Fatalf("insert failed: %v", envelope)
	}

	envelope = post(t, map[string]any{
		"type":  "query",
		"scope": map[string]string{"model": model},
		"query": "what is a goroutine",
	})
	if hit, _ := envelope["cacheHit"].(bool); !hit {
		t.Fatalf("expected cache hit, got %v", envelope)
	}
	if envelope["answer"] != "a lightweight thread" {
		t.Fatalf("unexpected answer: %v", envelope["answer"])
	}

	envelope = post(t, map[string]any{
		"type":        "remove",
		"scope":       map[string]string{"model": model},
		"remove_type": "truncate_by_model",
	})
	if status := envelope["writeStatus"]; status != "success" {
		t.Fatalf("truncate failed: %v", envelope)
	}
}

func waitForServer(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/welcome")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("server at %s not reachable", baseURL)
}

func post(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()

	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}

	resp, err := http.Post(baseURL+"/modelcache", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
