package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults: %v", err)
	}

	if cfg.APIPort != "8080" {
		t.Errorf("expected default api port 8080, got %s", cfg.APIPort)
	}
	if cfg.SearchAlpha != 0.6 {
		t.Errorf("expected default alpha 0.6, got %f", cfg.SearchAlpha)
	}
	if cfg.ConfidenceHighThreshold != 0.85 {
		t.Errorf("expected default high threshold 0.85, got %f", cfg.ConfidenceHighThreshold)
	}
	if cfg.ReviewEscalateAfter != 4*time.Hour {
		t.Errorf("expected default escalate after 4h, got %s", cfg.ReviewEscalateAfter)
	}
	if cfg.SchedulerMaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.SchedulerMaxRetries)
	}
	if cfg.CacheEmbeddingTTL != 12*time.Hour {
		t.Errorf("expected default embedding cache ttl 12h, got %s", cfg.CacheEmbeddingTTL)
	}
	if cfg.CacheQueryMaxEntries != 1024 {
		t.Errorf("expected default query cache cap 1024, got %d", cfg.CacheQueryMaxEntries)
	}
	if cfg.RetryInitialBackoff != 100*time.Millisecond {
		t.Errorf("expected default retry initial backoff 100ms, got %s", cfg.RetryInitialBackoff)
	}
	if cfg.SchedulerMaxBackoff != 5*time.Second {
		t.Errorf("expected default scheduler max backoff 5s, got %s", cfg.SchedulerMaxBackoff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("SEARCH_ALPHA", "0.3")
	t.Setenv("REVIEW_ESCALATE_AFTER", "30m")
	t.Setenv("SCHEDULER_WORKERS", "8")
	t.Setenv("CACHE_QUERY_TTL", "90s")
	t.Setenv("CACHE_SOURCE_MAX_ENTRIES", "16")
	t.Setenv("RETRY_MAX_BACKOFF", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with overrides: %v", err)
	}

	if cfg.APIPort != "9999" {
		t.Errorf("expected api port 9999, got %s", cfg.APIPort)
	}
	if cfg.SearchAlpha != 0.3 {
		t.Errorf("expected alpha 0.3, got %f", cfg.SearchAlpha)
	}
	if cfg.ReviewEscalateAfter != 30*time.Minute {
		t.Errorf("expected escalate after 30m, got %s", cfg.ReviewEscalateAfter)
	}
	if cfg.SchedulerWorkers != 8 {
		t.Errorf("expected 8 scheduler workers, got %d", cfg.SchedulerWorkers)
	}
	if cfg.CacheQueryTTL != 90*time.Second {
		t.Errorf("expected query cache ttl 90s, got %s", cfg.CacheQueryTTL)
	}
	if cfg.CacheSourceMaxEntries != 16 {
		t.Errorf("expected source cache cap 16, got %d", cfg.CacheSourceMaxEntries)
	}
	if cfg.RetryMaxBackoff != 2*time.Second {
		t.Errorf("expected retry max backoff 2s, got %s", cfg.RetryMaxBackoff)
	}
}

func TestLoadMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("REVIEW_ABANDON_AFTER", "eventually")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with malformed env: %v", err)
	}
	if cfg.ChunkSize != 900 {
		t.Errorf("expected fallback chunk size 900, got %d", cfg.ChunkSize)
	}
	if cfg.ReviewAbandonAfter != 72*time.Hour {
		t.Errorf("expected fallback abandon after 72h, got %s", cfg.ReviewAbandonAfter)
	}
}

func TestLoadFileOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := []byte("api_port: \"7070\"\nsearch_alpha: 0.5\n")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("API_PORT", "9999")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with file overlay: %v", err)
	}
	if cfg.APIPort != "7070" {
		t.Errorf("expected file value 7070 to win, got %s", cfg.APIPort)
	}
	if cfg.SearchAlpha != 0.5 {
		t.Errorf("expected file alpha 0.5, got %f", cfg.SearchAlpha)
	}
	// Keys the file does not define keep their env/default values.
	if cfg.NATSSubject != "reviews.tasks" {
		t.Errorf("expected default nats subject, got %s", cfg.NATSSubject)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha above one", func(c *Config) { c.SearchAlpha = 1.2 }},
		{"alpha negative", func(c *Config) { c.SearchAlpha = -0.1 }},
		{"floor above threshold", func(c *Config) { c.ConfidenceSafetyFloor = 0.9 }},
		{"overlap not below chunk size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"zero embed workers", func(c *Config) { c.EmbedWorkers = 0 }},
		{"zero scheduler workers", func(c *Config) { c.SchedulerWorkers = 0 }},
		{"escalate window not below abandon window", func(c *Config) { c.ReviewEscalateAfter = c.ReviewAbandonAfter }},
		{"zero source cache ttl", func(c *Config) { c.CacheSourceTTL = 0 }},
		{"zero embedding cache cap", func(c *Config) { c.CacheEmbeddingMaxEntries = 0 }},
		{"zero retry attempts", func(c *Config) { c.RetryMaxAttempts = 0 }},
		{"zero retry initial backoff", func(c *Config) { c.RetryInitialBackoff = 0 }},
		{"retry max backoff below initial", func(c *Config) { c.RetryMaxBackoff = c.RetryInitialBackoff / 2 }},
		{"retry multiplier below one", func(c *Config) { c.RetryMultiplier = 0.5 }},
		{"zero scheduler backoff", func(c *Config) { c.SchedulerInitialBackoff = 0 }},
		{"scheduler multiplier below one", func(c *Config) { c.SchedulerBackoffMultiplier = 0.9 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := fromEnv()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}
