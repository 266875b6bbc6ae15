package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	c := NewClient()
	resp, err := c.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "caleb-sales-agent/") {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestNewClientKeepsExplicitUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	c := NewClient(WithUserAgent("custom/1.0"))
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("User-Agent", "per-request/2.0")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "per-request/2.0" {
		t.Errorf("User-Agent = %q, want the per-request header preserved", gotUA)
	}
}

func TestWithTimeout(t *testing.T) {
	c := NewClient(WithTimeout(5 * time.Second))
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
}

func TestRetryExhaustsAgainstRefusedPort(t *testing.T) {
	// Grab a port and release it so the dial is refused.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	start := time.Now()
	c := NewClient(WithRetry(2, 50*time.Millisecond))
	_, err := c.Get(addr) //nolint:bodyclose // request never succeeds
	if err == nil {
		t.Fatal("expected error against a closed port")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("retries not attempted: finished in %v", elapsed)
	}
}

func TestReadErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer ts.Close()

	resp, err := NewClient().Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := ReadErrorBody(resp.Body, 1024); got != "upstream exploded" {
		t.Errorf("ReadErrorBody = %q", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	if isRetryableError(nil) {
		t.Error("nil must not be retryable")
	}
}
