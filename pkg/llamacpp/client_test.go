package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/object-counter/pkg/types"
)

func TestSimpleQuery(t *testing.T) {
	var imageURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Content []ContentPart `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, part := range req.Messages[0].Content {
			if part.ImageURL != nil {
				imageURL = part.ImageURL.URL
			}
		}
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"cup_0\": [1,2,3,4]}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := c.SimpleQuery(context.Background(), "qwen2-vl", "find cups", types.ImagePart{Data: []byte("abc"), MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != `{"cup_0": [1,2,3,4]}` {
		t.Errorf("unexpected reply %q", text)
	}
	if imageURL != "data:image/png;base64,YWJj" {
		t.Errorf("unexpected image URL %q", imageURL)
	}
}

func TestSimpleQueryArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"{}"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "m", "p", types.ImagePart{})
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "{}" {
		t.Errorf("unexpected reply %q", text)
	}
}

func TestSimpleQueryErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"unavailable", http.StatusServiceUnavailable, "loading model", true},
		{"bad request", http.StatusBadRequest, "image too large", false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"invalid json", http.StatusOK, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL)
			_, err := c.SimpleQuery(context.Background(), "m", "p", types.ImagePart{})
			if !errors.Is(err, types.ErrNetwork) {
				t.Fatalf("Expected ErrNetwork, got %v", err)
			}
			if types.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", types.IsRetryable(err), tt.retryable, err)
			}
		})
	}
}

func TestSimpleQueryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := NewClient(url)
	_, err := c.SimpleQuery(context.Background(), "m", "p", types.ImagePart{})
	if !types.IsRetryable(err) {
		t.Errorf("connection failure should be retryable, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to send request") {
		t.Errorf("unexpected error %v", err)
	}
}
