package config

import "testing"

// Optional backends must default to unset so their fallbacks are reachable:
// an empty REDIS_URL selects the Postgres refresh-session store and an empty
// MINIO_ENDPOINT disables packet archiving.
func TestLoadOptionalBackendsDefaultUnset(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("MINIO_ENDPOINT", "")

	cfg := Load()
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty for the Postgres fallback", cfg.RedisURL)
	}
	if cfg.MinioEndpoint != "" {
		t.Errorf("MinioEndpoint = %q, want empty", cfg.MinioEndpoint)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("PORTFOLIO_ACCESS_TTL_SECONDS", "60")

	cfg := Load()
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.AccessTTL.Seconds() != 60 {
		t.Errorf("AccessTTL = %v, want 60s", cfg.AccessTTL)
	}
}
