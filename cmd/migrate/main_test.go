package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-driver", "sqlite", "-dsn", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "schema up to date") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), []string{"-driver", "sqlite", "-dsn", path}, &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRun_BadArgs(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-driver", "mysql", "-dsn", "x"}, &out); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if err := run(context.Background(), []string{"-driver", "sqlite", "-dsn", ""}, &out); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
