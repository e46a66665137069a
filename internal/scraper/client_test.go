package scraper

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

func newTestClient() *Client {
	c := NewClient(5*time.Second, time.Millisecond, 1)
	c.retryDelay = 10 * time.Millisecond
	return c
}

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestGet_Gzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		_, _ = gw.Write([]byte("compressed payload"))
		_ = gw.Close()
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(body) != "compressed payload" {
		t.Errorf("body = %q, want decompressed payload", body)
	}
}

func TestGet_Big5(t *testing.T) {
	// 台灣 encoded as Big5
	big5, _, err := transform.Bytes(traditionalchinese.Big5.NewEncoder(), []byte("台灣"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=big5")
		_, _ = w.Write(big5)
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(body) != "台灣" {
		t.Errorf("body = %q, want %q", body, "台灣")
	}
}

func TestGet_RetriesServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestGet_NoRetryOnNotFound(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient().Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Get() = nil error, want StatusError")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (404 must not be retried)", attempts)
	}
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if ref := r.Header.Get("Referer"); ref != "https://example.com/form" {
			t.Errorf("Referer = %q", ref)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostFormValue("step"); got != "00" {
			t.Errorf("form step = %q, want %q", got, "00")
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	form := url.Values{"step": {"00"}}
	body, err := newTestClient().PostForm(context.Background(), srv.URL, form, "https://example.com/form")
	if err != nil {
		t.Fatalf("PostForm() error: %v", err)
	}
	if !strings.Contains(string(body), "data") {
		t.Errorf("body = %q", body)
	}
}

func TestGetDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>標題</h1></body></html>`))
	}))
	defer srv.Close()

	doc, err := newTestClient().GetDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetDocument() error: %v", err)
	}
	if got := doc.Find("h1").Text(); got != "標題" {
		t.Errorf("h1 = %q, want %q", got, "標題")
	}
}

func TestDecodeBig5(t *testing.T) {
	big5, _, err := transform.Bytes(traditionalchinese.Big5.NewEncoder(), []byte("股份有限公司"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	decoded, err := DecodeBig5(big5)
	if err != nil {
		t.Fatalf("DecodeBig5() error: %v", err)
	}
	if string(decoded) != "股份有限公司" {
		t.Errorf("decoded = %q", decoded)
	}
}
