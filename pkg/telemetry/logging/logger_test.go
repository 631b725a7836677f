package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/pricegate/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"json", Config{Level: "info", Format: "json"}, false},
		{"text", Config{Level: "debug", Format: "text"}, false},
		{"defaults", Config{}, false},
		{"invalid level", Config{Level: "loud"}, true},
		{"invalid format", Config{Format: "xml"}, true},
		{"invalid pattern", Config{Redact: true, RedactPatterns: []config.RedactPattern{{Name: "bad", Pattern: "("}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return out
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn not written: %s", buf.String())
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithProductID(ctx, "sku-1")
	logger.With("component", "engine").InfoContext(ctx, "price applied", "rule_id", "standard")

	line := decodeLine(t, &buf)
	if line["request_id"] != "req-1" || line["product_id"] != "sku-1" {
		t.Errorf("context fields missing: %v", line)
	}
	if line["rule_id"] != "standard" || line["component"] != "engine" {
		t.Errorf("record fields missing: %v", line)
	}
}

func TestNew_ContextFieldNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithProductID(context.Background(), "sku-ctx")
	logger.InfoContext(ctx, "explicit", "product_id", "sku-explicit")

	if strings.Count(buf.String(), "product_id") != 1 {
		t.Errorf("product_id duplicated: %s", buf.String())
	}
	if line := decodeLine(t, &buf); line["product_id"] != "sku-explicit" {
		t.Errorf("product_id = %v, want the explicit value", line["product_id"])
	}
}

func TestNew_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Redact: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Error("storage unavailable",
		"dsn", "postgres://svc:hunter2@db/pricegate",
		"error", errors.New("dial postgres://svc:hunter2@db failed"),
		"header", "Bearer abc.def",
	)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "abc.def") {
		t.Errorf("secret leaked: %s", out)
	}
	line := decodeLine(t, &buf)
	if line["dsn"] != "***" {
		t.Errorf("dsn = %v, want ***", line["dsn"])
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.LoggingConfig{Level: "debug", Format: "text", Redact: true})
	if got.Level != "debug" || got.Format != "text" || !got.Redact {
		t.Errorf("FromConfig() = %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
