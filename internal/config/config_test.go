package config

import "testing"

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil when no config file is present", err)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Redis.Prefix != "biomaj" {
		t.Errorf("Redis.Prefix = %q, want biomaj", cfg.Redis.Prefix)
	}
	if cfg.HTTP.Addr != ":9111" {
		t.Errorf("HTTP.Addr = %q, want :9111", cfg.HTTP.Addr)
	}
	if cfg.Worker.PoolSize != 5 {
		t.Errorf("Worker.PoolSize = %d, want 5", cfg.Worker.PoolSize)
	}
	if cfg.Consul.Enabled {
		t.Error("Consul.Enabled = true, want false by default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("BIOMAJ_DOWNLOAD_REDIS_ADDR", "redis.example.org:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Addr != "redis.example.org:6379" {
		t.Errorf("Redis.Addr = %q, want override redis.example.org:6379", cfg.Redis.Addr)
	}
}
