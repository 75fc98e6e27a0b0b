package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/avollmer/fetch-aggregator/internal/config"
	"github.com/avollmer/fetch-aggregator/pkg/aggregator"
)

func TestPrintSummary(t *testing.T) {
	result := &aggregator.Result{
		Successful: map[string][]byte{
			"http://api1.example.com": []byte(`{"id":1}`),
			"http://api2.example.com": []byte("plain text, not json"),
		},
		Failed: map[string]string{
			"http://api3.example.com": "timeout",
		},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	if err := printSummary(&buf, result); err != nil {
		t.Fatalf("printSummary: %v", err)
	}

	var out summary
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if string(out.Successful["http://api1.example.com"]) != `{"id":1}` {
		t.Errorf("JSON payload not embedded verbatim: %s", out.Successful["http://api1.example.com"])
	}
	if !strings.HasPrefix(string(out.Successful["http://api2.example.com"]), `"`) {
		t.Errorf("non-JSON payload not quoted: %s", out.Successful["http://api2.example.com"])
	}
	if out.Failed["http://api3.example.com"] != "timeout" {
		t.Errorf("failed reason = %q, want %q", out.Failed["http://api3.example.com"], "timeout")
	}
	if out.DurationMS != 1500 {
		t.Errorf("duration_ms = %d, want 1500", out.DurationMS)
	}
}

func TestApplyFlags_OnlyChangedOverride(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Set("rate", "42"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg := &config.Config{
		RateLimit:      10,
		RequestTimeout: 5 * time.Second,
	}
	applyFlags(cmd, cfg)

	if cfg.RateLimit != 42 {
		t.Errorf("RateLimit = %d, want 42 (flag override)", cfg.RateLimit)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want untouched 5s", cfg.RequestTimeout)
	}
}

func TestRootCmd_NoEndpoints(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error when no endpoints are given")
	}
	if !strings.Contains(err.Error(), "no endpoints") {
		t.Errorf("error = %q, want mention of missing endpoints", err.Error())
	}
}
