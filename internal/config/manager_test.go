package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "DEBUG", "console": true, "file": {"enabled": false, "path": ""}, "bus": {"enabled": true, "min_level": "WARN", "rate_per_sec": 2}},
		"scheduler": {"enabled": true, "tick": "30s", "timezone": "UTC"},
		"queue": {"resume": true},
		"storage": {"driver": "file", "path": "./store"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.Bus.Enabled {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Tick != "30s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if !cfg.Queue.Resume {
		t.Fatalf("queue = %+v", cfg.Queue)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: INFO
  console: true
scheduler:
  enabled: true
  tick: 1m
queue:
  resume: false
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "INFO" || !cfg.Scheduler.Enabled || cfg.Scheduler.Tick != "1m" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "INFO"}, "legacy_field": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "INFO"}}{"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("no config delivered")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(cfg)
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("scheduler.tick", "90s")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("d = %v, want 90s", d)
	}

	if _, err := ParseDurationField("scheduler.tick", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("scheduler.tick", "soon"); err == nil {
		t.Fatal("expected error for junk duration")
	}

	d, err = ParseDurationOrDefault("scheduler.tick", "", time.Minute)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault: %v", err)
	}
	if d != time.Minute {
		t.Fatalf("default = %v, want 1m", d)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "INFO"},
		Scheduler: SchedulerConfig{Enabled: true, Tick: "1m"},
	}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "DEBUG"},
		Scheduler: SchedulerConfig{Enabled: true, Tick: "1m"},
		Storage:   &StorageConfig{Driver: "file", Path: "./store"},
	}

	sections, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"logging", "storage"}
	if len(sections) != len(want) || sections[0] != want[0] || sections[1] != want[1] {
		t.Fatalf("sections = %v, want %v", sections, want)
	}

	sections, _ = SummarizeChange(newCfg, newCfg)
	if len(sections) != 0 {
		t.Fatalf("sections = %v, want none", sections)
	}
}
