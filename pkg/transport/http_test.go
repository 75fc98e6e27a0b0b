package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewHTTPClient()
	defer client.Close()

	payload, err := client.Get(context.Background(), server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != `{"status":"ok"}` {
		t.Errorf("payload = %q, want %q", payload, `{"status":"ok"}`)
	}
}

func TestHTTPClient_Get_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient()
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL, 5*time.Second)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want it to mention status 500", err)
	}
}

func TestHTTPClient_Get_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient()
	defer client.Close()

	start := time.Now()
	_, err := client.Get(context.Background(), server.URL, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Errorf("Get took %v, expected it to respect the 50ms timeout", time.Since(start))
	}
}

func TestHTTPClient_Get_Unreachable(t *testing.T) {
	client := NewHTTPClient()
	defer client.Close()

	// Port 1 is virtually never listening; the connection must be refused.
	_, err := client.Get(context.Background(), "http://127.0.0.1:1", time.Second)
	if err == nil {
		t.Fatal("expected error for unreachable endpoint, got nil")
	}
}

func TestFunc_AdaptsFunction(t *testing.T) {
	var gotEndpoint string
	fn := Func(func(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error) {
		gotEndpoint = endpoint
		return []byte("data"), nil
	})

	payload, err := fn.Get(context.Background(), "http://api.example.com", time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != "data" {
		t.Errorf("payload = %q, want %q", payload, "data")
	}
	if gotEndpoint != "http://api.example.com" {
		t.Errorf("endpoint = %q, want %q", gotEndpoint, "http://api.example.com")
	}
}
