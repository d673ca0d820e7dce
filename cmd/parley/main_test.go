package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parleygate/parley/internal/config"
	"github.com/parleygate/parley/internal/defaults"
	"github.com/parleygate/parley/internal/session"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run(context.Background(), &out, &errOut, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: parley") {
		t.Errorf("usage output missing:\n%s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-nope"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("err = %v", err)
	}
}

func TestRunVersionText(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run(context.Background(), &out, &errOut, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Parley") {
		t.Errorf("version output:\n%s", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run(context.Background(), &out, &errOut, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRunVersionBadFormat(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "output format") {
		t.Errorf("err = %v", err)
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}
	if !bytes.Equal(data, defaults.ConfigYAML) {
		t.Error("config.yaml differs from embedded default")
	}
}

func TestInitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	sentinel := []byte("# sentinel, do not overwrite\n")
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, sentinel, 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, sentinel) {
		t.Error("existing config.yaml was overwritten")
	}
}

// The example config must load and validate once the placeholder
// secrets are supplied.
func TestExampleConfigValidates(t *testing.T) {
	t.Setenv("PARLEY_ORG_ID", "00Dexample")
	t.Setenv("PARLEY_DEPLOYMENT_ID", "Support_Web")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, defaults.ConfigYAML, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Chat.OrgID != "00Dexample" {
		t.Errorf("org_id = %q, env expansion failed", cfg.Chat.OrgID)
	}
	if cfg.Chat.Platform != "Web" {
		t.Errorf("platform = %q", cfg.Chat.Platform)
	}
}

// openStore must hand back a working store without blocking on the
// background janitor, or serve/stdio never reach their listeners.
func TestOpenStoreMemoryReturnsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := newLogger(io.Discard, slog.LevelError, "text")

	type opened struct {
		store   session.Store
		cleanup func()
		err     error
	}
	done := make(chan opened, 1)
	go func() {
		store, cleanup, err := openStore(ctx, config.Default(), logger)
		done <- opened{store, cleanup, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("openStore: %v", res.err)
		}
		defer res.cleanup()
		if err := res.store.Create(session.Record{SessionID: "s-1", Credential: "jwt"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := res.store.Get("s-1"); err != nil {
			t.Errorf("get: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("openStore did not return; the janitor must run on its own goroutine")
	}
}

func TestNoiseTableOverrides(t *testing.T) {
	cfg := config.Default()
	table := noiseTable(cfg)
	if len(table.Phrases) == 0 || len(table.SenderSubstrings) == 0 {
		t.Fatal("defaults missing")
	}

	cfg.Noise.Phrases = []string{"custom phrase"}
	table = noiseTable(cfg)
	if len(table.Phrases) != 1 || table.Phrases[0] != "custom phrase" {
		t.Errorf("phrases = %v", table.Phrases)
	}
	if len(table.SenderSubstrings) == 0 {
		t.Error("sender substrings default dropped")
	}
}
