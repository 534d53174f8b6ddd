package story

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AutoRejectOnHardFail == nil || !*cfg.AutoRejectOnHardFail {
		t.Fatal("auto reject must default on")
	}
	if cfg.MediaRetryMax != 1 {
		t.Fatalf("media retry max = %d", cfg.MediaRetryMax)
	}
	if cfg.ReviewDeadline != 72*time.Hour {
		t.Fatalf("review deadline = %v", cfg.ReviewDeadline)
	}
	if cfg.WorkerPoolSize != 8 {
		t.Fatalf("worker pool = %d", cfg.WorkerPoolSize)
	}
	if cfg.FearThresholdByAge["3-5"] != 0.3 || cfg.ViolenceThresholdByAge["9-12"] != 0.7 {
		t.Fatalf("thresholds = %+v / %+v", cfg.FearThresholdByAge, cfg.ViolenceThresholdByAge)
	}
}

func TestLoadConfigOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
auto_reject_on_hard_fail: false
media_retry_max: 2
review_deadline: 24h
fear_threshold_by_age:
  "3-5": 0.2
  "6-8": 0.3
  "9-12": 0.4
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AutoRejectOnHardFail == nil || *cfg.AutoRejectOnHardFail {
		t.Fatal("auto reject not overridden")
	}
	if cfg.MediaRetryMax != 2 || cfg.ReviewDeadline != 24*time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.FearThresholdByAge["3-5"] != 0.2 {
		t.Fatalf("fear thresholds = %+v", cfg.FearThresholdByAge)
	}

	// Keys absent from the file keep their defaults.
	if cfg.WorkerPoolSize != 8 {
		t.Fatalf("worker pool = %d, want default", cfg.WorkerPoolSize)
	}
	if cfg.ViolenceThresholdByAge["6-8"] != 0.6 {
		t.Fatalf("violence thresholds = %+v, want default", cfg.ViolenceThresholdByAge)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("media_retry_max: [not a number"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormalizedFillsZeroes(t *testing.T) {
	cfg := Config{}.normalized()
	if cfg.MediaRetryMax != 1 || cfg.WorkerPoolSize != 8 || cfg.ReviewDeadline != 72*time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.FearThresholdByAge) == 0 || len(cfg.ViolenceThresholdByAge) == 0 {
		t.Fatalf("thresholds not filled: %+v", cfg)
	}
	// A zero config must not silently run with auto-reject off.
	if cfg.AutoRejectOnHardFail == nil || !*cfg.AutoRejectOnHardFail {
		t.Fatal("auto reject must default on")
	}
	if !(Config{}).autoReject() {
		t.Fatal("unset auto reject must read as on")
	}
}

func TestThresholdsProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FearThresholdByAge = map[string]float64{"6-8": 0.9}

	th := cfg.Thresholds()
	if th.FearByAge["6-8"] != 0.9 {
		t.Fatalf("fear = %+v", th.FearByAge)
	}
	if th.ModerationFloor != 0.5 || th.ImageByCategory["weapon"] != 0.5 {
		t.Fatalf("non-configurable limits changed: %+v", th)
	}
}
