package nettrace

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Remaining", "42")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Warm()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK() || string(resp.Body) != "hello" {
		t.Fatalf("resp = %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Metrics.Total <= 0 {
		t.Error("expected total time")
	}
	if !resp.Metrics.ConnReused {
		t.Error("expected warmed connection to be reused")
	}
	if got := FirstHeader(resp.Header, "X-Missing", "X-Remaining"); got != "42" {
		t.Errorf("FirstHeader = %q", got)
	}
	if got := FirstHeader(resp.Header, "X-Missing"); got != "?" {
		t.Errorf("FirstHeader missing = %q", got)
	}
}

func TestWarmWithoutURL(t *testing.T) {
	if d := New("").Warm(); d != 0 {
		t.Fatalf("Warm() = %v", d)
	}
}

func TestResponseOK(t *testing.T) {
	for code, want := range map[int]bool{200: true, 204: true, 302: false, 404: false, 500: false} {
		if got := (&Response{StatusCode: code}).OK(); got != want {
			t.Errorf("OK(%d) = %v", code, got)
		}
	}
}
