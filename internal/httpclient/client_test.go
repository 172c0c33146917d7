package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPostJSONReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("expected header to be forwarded")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	resp, err := c.PostJSON(context.Background(), srv.URL, map[string]string{"X-Test": "yes"}, map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestPostJSONStreamLeavesBodyOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: hello\n\n"))
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	resp, err := c.PostJSONStream(context.Background(), srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("PostJSONStream: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("expected streamed body to contain hello, got %q", buf[:n])
	}
}

func TestHeadReturnsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	resp, err := c.Head(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestPostJSONClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(1 * time.Millisecond)
	_, err := c.PostJSON(context.Background(), srv.URL, nil, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPostJSONClassifiesNetworkError(t *testing.T) {
	c := New(2 * time.Second)
	_, err := c.PostJSON(context.Background(), "http://127.0.0.1:1", nil, nil)
	if err == nil {
		t.Fatalf("expected network error for unreachable host")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}
