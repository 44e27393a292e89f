package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := DefaultConfig("svc-user", "secret")
	cfg.RateLimit = 0
	cfg.Timeout = 5 * time.Second

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("user", "pass"),
			expectError: false,
		},
		{
			name:        "missing username",
			config:      DefaultConfig("", "pass"),
			expectError: true,
		},
		{
			name:        "zero timeout gets default",
			config:      Config{Username: "user"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config, zerolog.Nop())
			if tt.expectError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.httpClient.Timeout <= 0 {
				t.Errorf("Timeout = %v, want > 0", c.httpClient.Timeout)
			}
		})
	}
}

func TestPostJSON_Success(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"d":{"Content":[{"Nm":"A","Id":"1","Cc":0}]}}`))
	}))
	defer server.Close()

	c := newTestClient(t)

	var out struct {
		D struct {
			Content []struct {
				Nm string
				Id string
			}
		} `json:"d"`
	}
	err := c.PostJSON(context.Background(), server.URL+"/x", map[string]string{"X-RequestDigest": "digest"}, map[string]any{"guid": "abc"}, &out)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}

	if len(out.D.Content) != 1 || out.D.Content[0].Nm != "A" {
		t.Errorf("Decoded content = %+v", out.D.Content)
	}
	if gotBody["guid"] != "abc" {
		t.Errorf("Request body guid = %v, want abc", gotBody["guid"])
	}
	if gotHeader.Get("X-RequestDigest") != "digest" {
		t.Errorf("X-RequestDigest = %q, want digest", gotHeader.Get("X-RequestDigest"))
	}
	if !strings.HasPrefix(gotHeader.Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", gotHeader.Get("Content-Type"))
	}
}

func TestPost_ErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantClass ErrorClass
	}{
		{name: "not found", status: http.StatusNotFound, wantClass: ErrorClassClient},
		{name: "forbidden", status: http.StatusForbidden, wantClass: ErrorClassClient},
		{name: "server error", status: http.StatusInternalServerError, wantClass: ErrorClassServer},
		{name: "bad gateway", status: http.StatusBadGateway, wantClass: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("boom"))
			}))
			defer server.Close()

			c := newTestClient(t)
			_, err := c.Post(context.Background(), server.URL, nil, nil)

			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("Expected *TransportError, got %T (%v)", err, err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.status)
			}
			if te.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %s, want %s", te.ErrorClass, tt.wantClass)
			}
			if te.Message != "boom" {
				t.Errorf("Message = %q, want boom", te.Message)
			}
		})
	}
}

func TestPost_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t)
	_, err := c.Post(context.Background(), url, nil, nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransportError, got %T", err)
	}
	if te.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %s, want network", te.ErrorClass)
	}
	if !IsFetchError(err) {
		t.Error("IsFetchError should be true for transport errors")
	}
}

func TestPostJSON_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	c := newTestClient(t)
	var out map[string]any
	err := c.PostJSON(context.Background(), server.URL, nil, nil, &out)

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Expected *DecodeError, got %T (%v)", err, err)
	}
	if de.URL != server.URL {
		t.Errorf("URL = %q, want %q", de.URL, server.URL)
	}
}

func TestFormDigest(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDigest string
		wantErr    error
	}{
		{
			name:       "digest present",
			status:     http.StatusOK,
			body:       `<script>var _spPageContextInfo = {"formDigestValue":"0xABC,15 Oct 2026 06:00:00 -0000","x":1};</script>`,
			wantDigest: "0xABC,15 Oct 2026 06:00:00 -0000",
		},
		{
			name:    "digest missing",
			status:  http.StatusOK,
			body:    `<html>no token here</html>`,
			wantErr: ErrDigestNotFound,
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `denied`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Method = %s, want POST", r.Method)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t)
			digest, err := c.FormDigest(context.Background(), server.URL+"/_layouts/15/termstoremanager.aspx")

			if tt.wantDigest != "" {
				if err != nil {
					t.Fatalf("FormDigest() error = %v", err)
				}
				if digest != tt.wantDigest {
					t.Errorf("digest = %q, want %q", digest, tt.wantDigest)
				}
				return
			}

			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("Expected *AuthError, got %T (%v)", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected errors.Is(%v), got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPost_RateLimiterHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	cfg := DefaultConfig("user", "pass")
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// First request consumes the burst token.
	if _, err := c.Post(context.Background(), server.URL, nil, nil); err != nil {
		t.Fatalf("first Post() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Post(ctx, server.URL, nil, nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransportError from limiter, got %T (%v)", err, err)
	}
}
