package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
)

func TestExportEnvFile_RoundTripsThroughGodotenv(t *testing.T) {
	mock := newMockSSMClient(map[string]string{
		"/dev/tiergate/database/url":     "postgres://u:p@db:5432/tiergate",
		"/dev/tiergate/webhook/secret":   `sec "quoted" #hash`,
		"/dev/tiergate/identity/api_key": "key_abcdefghijklmnopqrstuvwxyz",
	})
	stderr := &bytes.Buffer{}
	out := filepath.Join(t.TempDir(), ".env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:           out,
		SSM:                  newTestSSMManager(mock, "dev", nil),
		Stderr:               stderr,
		IncludeLocalDefaults: true,
	})
	if err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}

	env, err := godotenv.Read(out)
	if err != nil {
		t.Fatalf("godotenv.Read: %v", err)
	}
	if env["DATABASE_URL"] != "postgres://u:p@db:5432/tiergate" {
		t.Errorf("DATABASE_URL = %q", env["DATABASE_URL"])
	}
	if env["WEBHOOK_SECRET"] != `sec "quoted" #hash` {
		t.Errorf("WEBHOOK_SECRET = %q", env["WEBHOOK_SECRET"])
	}
	if env["APP_ENV"] != "local" {
		t.Errorf("APP_ENV = %q", env["APP_ENV"])
	}
	if _, ok := env["REDIS_URL"]; ok {
		t.Error("missing parameter exported")
	}
	if !strings.Contains(stderr.String(), "Not set, omitted: REDIS_URL") {
		t.Errorf("missing omission notice:\n%s", stderr.String())
	}
}

func TestExportEnvFile_WithoutDefaults(t *testing.T) {
	mock := newMockSSMClient(map[string]string{"/prod/tiergate/webhook/secret": "plainsecretvalue"})
	out := filepath.Join(t.TempDir(), "prod.env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath: out,
		SSM:        newTestSSMManager(mock, "prod", nil),
	})
	if err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), "APP_ENV") {
		t.Error("local defaults written without IncludeLocalDefaults")
	}
	if !strings.Contains(string(raw), "WEBHOOK_SECRET=plainsecretvalue\n") {
		t.Errorf("unexpected content:\n%s", raw)
	}
}

func TestExportEnvFile_EmptyPath(t *testing.T) {
	err := ExportEnvFile(context.Background(), ExportEnvConfig{SSM: newTestSSMManager(newMockSSMClient(nil), "dev", nil)})
	if err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFormatEnvLine(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"A", "simple", "A=simple"},
		{"B", "has space", `B="has space"`},
		{"C", `back\slash`, `C="back\\slash"`},
	}
	for _, tt := range tests {
		if got := formatEnvLine(tt.key, tt.value); got != tt.want {
			t.Errorf("formatEnvLine(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}
