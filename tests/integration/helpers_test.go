//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
)

const sampleNotes = "Photosynthesis converts light energy into chemical energy stored in glucose. Chlorophyll absorbs light in the chloroplasts."

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func baseURL() string {
	return envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
}

func makeJSONRequest(t *testing.T, method, url string, payload interface{}) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func createSession(t *testing.T, base string) string {
	t.Helper()

	resp := makeJSONRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/quiz/sessions", base), nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create session status: %d", resp.StatusCode)
	}

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode session response failed: %v", err)
	}
	if out.SessionID == "" {
		t.Fatal("empty session id")
	}
	return out.SessionID
}

type sessionView struct {
	Phase     string `json:"phase"`
	QType     string `json:"qtype"`
	HistoryID int64  `json:"history_id"`
	Questions []struct {
		Index   int      `json:"index"`
		Text    string   `json:"q"`
		Options []string `json:"options"`
	} `json:"questions"`
	Result *struct {
		Score   int    `json:"score"`
		Correct int    `json:"correct"`
		Total   int    `json:"total"`
		Source  string `json:"source"`
	} `json:"result"`
}

func decodeView(t *testing.T, resp *http.Response) sessionView {
	t.Helper()
	var v sessionView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode view failed: %v", err)
	}
	return v
}
