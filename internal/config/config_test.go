package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-stocktwits-backup/internal/config"
	"go-stocktwits-backup/internal/model"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	t.Setenv("STOCKTWITS_USERNAME", "")
	t.Setenv("STOCKTWITS_PASSWORD", "")
	dir := t.TempDir()
	f := filepath.Join(dir, "c.yaml")
	_ = os.WriteFile(f, []byte("USERNAME: alice\nPASSWORD: secret\n"), 0o644)
	c, err := config.Load(f)
	if err != nil { t.Fatalf("load: %v", err) }
	if c.Endpoint != config.DefaultEndpoint || c.StartDate != "2009-01-01" { t.Fatalf("defaults not applied: %+v", c) }
	if c.SampleSize != 3 || c.Concurrency.Fetch != 1 || c.Concurrency.Retry != 0 { t.Fatalf("numeric defaults: %+v", c) }
	cats := c.CategoryList()
	if len(cats) != 2 || cats[0] != model.Activity || cats[1] != model.Message { t.Fatalf("categories: %v", cats) }
	if c.LogFormat == "" || c.LogLocale == "" || c.LogColor == "" { t.Fatalf("log defaults missing") }

	_ = os.WriteFile(f, []byte("SAMPLE_SIZE: -1\n"), 0o644)
	if _, err := config.Load(f); err == nil { t.Fatalf("expect error for negative SAMPLE_SIZE") }
	_ = os.WriteFile(f, []byte("CATEGORIES: [trades]\n"), 0o644)
	if _, err := config.Load(f); err == nil { t.Fatalf("expect error for unknown category") }
	_ = os.WriteFile(f, []byte("CATEGORIES: [activity, Activity]\n"), 0o644)
	if _, err := config.Load(f); err == nil { t.Fatalf("expect error for duplicate category") }
	_ = os.WriteFile(f, []byte("START_DATE: \"2020-01-02\"\nEND_DATE: \"2020-01-01\"\n"), 0o644)
	if _, err := config.Load(f); err == nil { t.Fatalf("expect error for reversed range") }
}

func TestConfig_TOMLAndEnvOverride(t *testing.T) {
	t.Setenv("STOCKTWITS_USERNAME", "env-user")
	t.Setenv("STOCKTWITS_PASSWORD", "env-pass")
	dir := t.TempDir()
	f := filepath.Join(dir, "settings.toml")
	body := "BASE_DIR = \"/tmp/st\"\nENDPOINT = \"http://example.test/\"\nUSERNAME = \"file-user\"\nSTART_DATE = \"2015-05-01\"\nEND_DATE = \"2015-05-03\"\nCATEGORIES = [\"message\"]\n\n[CONCURRENCY]\nfetch = 4\nretry = 2\n"
	_ = os.WriteFile(f, []byte(body), 0o644)
	c, err := config.Load(f)
	if err != nil { t.Fatalf("load toml: %v", err) }
	if c.Username != "env-user" || c.Password != "env-pass" { t.Fatalf("env override failed: %q/%q", c.Username, c.Password) }
	if c.Endpoint != "http://example.test" { t.Fatalf("endpoint not trimmed: %q", c.Endpoint) }
	if c.Concurrency.Fetch != 4 || c.Concurrency.Retry != 2 { t.Fatalf("concurrency: %+v", c.Concurrency) }
	r, err := c.Range(time.Now())
	if err != nil || r.Len() != 3 { t.Fatalf("range: %v len=%d", err, r.Len()) }
}

func TestConfig_RangeEndsToday(t *testing.T) {
	c := config.Default()
	now := time.Date(2024, 7, 9, 18, 0, 0, 0, time.UTC)
	r, err := c.Range(now)
	if err != nil { t.Fatalf("range: %v", err) }
	if got := r.End.Format(model.DateLayout); got != "2024-07-09" { t.Fatalf("end = %s", got) }
	if got := r.Start.Format(model.DateLayout); got != "2009-01-01" { t.Fatalf("start = %s", got) }
}

func TestConfig_PromptSkipsWithoutTerminal(t *testing.T) {
	c := &config.Config{Username: "u"}
	in, err := os.Open(os.DevNull)
	if err != nil { t.Fatalf("open devnull: %v", err) }
	defer in.Close()
	var out bytes.Buffer
	if err := c.PromptPassword(in, &out); err != nil { t.Fatalf("prompt: %v", err) }
	if c.Password != "" || out.Len() != 0 { t.Fatalf("must not prompt on non-terminal") }
}
