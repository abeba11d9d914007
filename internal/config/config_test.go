package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atelier-systems/tailor/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.2.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "tailor"
user = "tailor"
password = "tailor"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
container_name = "artifacts"
connection_string = "DefaultEndpointsProtocol=http;AccountName=tailorstore;AccountKey=key;BlobEndpoint=http://127.0.0.1:10000/tailorstore;"
max_list_size = 100

[capability]
parse_url = "http://localhost:7001/parse"
embed_url = "http://localhost:7002/embed"
retrieve_url = "http://localhost:7003/retrieve"
generate_url = "http://localhost:7004/generate"
render_url = "http://localhost:7005/render"
timeout = "60s"
top_k = 8

[pipeline]
stage_timeout = "90s"
max_attempts = 4
backoff_base = "1s"
job_timeout = "15m"
gap_fill_limit = 2
coverage_threshold = 0.75
keyword_threshold = 0.65
keywords = ["Python", "SQL"]
sweep_interval = "30s"
stuck_threshold = "5m"
artifact_ttl = "168h"
download_ttl = "1h"

[api]
base_path = "/api"
max_upload_size = "25MB"

[api.cors]
enabled = false

[api.pagination]
default_page_size = 25
max_page_size = 50
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"
`

// minimalConfig carries only the fields validation requires; defaults
// fill in the rest.
const minimalConfig = `
[database]
name = "tailor"
user = "tailor"

[storage]
connection_string = "conn"

[capability]
parse_url = "http://localhost:7001/parse"
embed_url = "http://localhost:7002/embed"
retrieve_url = "http://localhost:7003/retrieve"
generate_url = "http://localhost:7004/generate"
render_url = "http://localhost:7005/render"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "tailor" {
		t.Errorf("database name: got %s, want tailor", cfg.Database.Name)
	}
	if cfg.Storage.ContainerName != "artifacts" {
		t.Errorf("container name: got %s, want artifacts", cfg.Storage.ContainerName)
	}
	if cfg.Capability.TopK != 8 {
		t.Errorf("top_k: got %d, want 8", cfg.Capability.TopK)
	}
	if cfg.Pipeline.MaxAttempts != 4 {
		t.Errorf("max_attempts: got %d, want 4", cfg.Pipeline.MaxAttempts)
	}
	if got := cfg.Pipeline.StageTimeoutDuration(); got != 90*time.Second {
		t.Errorf("stage timeout: got %s, want 90s", got)
	}
	if cfg.Pipeline.CoverageThreshold != 0.75 {
		t.Errorf("coverage threshold: got %v, want 0.75", cfg.Pipeline.CoverageThreshold)
	}
	if len(cfg.Pipeline.Keywords) != 2 || cfg.Pipeline.Keywords[0] != "Python" {
		t.Errorf("keywords: got %v, want [Python SQL]", cfg.Pipeline.Keywords)
	}
	if cfg.API.Pagination.DefaultPageSize != 25 {
		t.Errorf("default page size: got %d, want 25", cfg.API.Pagination.DefaultPageSize)
	}
	if cfg.Version != "0.2.0" {
		t.Errorf("version: got %s, want 0.2.0", cfg.Version)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.prod.toml", overlayConfig)
	chdir(t, dir)
	t.Setenv("TAILOR_ENV", "prod")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("overlay server port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("overlay database host: got %s, want prodhost", cfg.Database.Host)
	}

	// Fields the overlay leaves alone keep their base values.
	if cfg.Database.Name != "tailor" {
		t.Errorf("database name: got %s, want tailor", cfg.Database.Name)
	}
	if cfg.Pipeline.MaxAttempts != 4 {
		t.Errorf("max_attempts: got %d, want 4", cfg.Pipeline.MaxAttempts)
	}
}

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.ContainerName != "documents" {
		t.Errorf("default container: got %s, want documents", cfg.Storage.ContainerName)
	}
	if cfg.Capability.Timeout != "90s" {
		t.Errorf("default capability timeout: got %s, want 90s", cfg.Capability.Timeout)
	}
	if cfg.Capability.TopK != 10 {
		t.Errorf("default top_k: got %d, want 10", cfg.Capability.TopK)
	}
	if cfg.Pipeline.StageTimeout != "2m" {
		t.Errorf("default stage timeout: got %s, want 2m", cfg.Pipeline.StageTimeout)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("default max_attempts: got %d, want 3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.JobTimeout != "15m" {
		t.Errorf("default job timeout: got %s, want 15m", cfg.Pipeline.JobTimeout)
	}
	if cfg.Pipeline.GapFillLimit != 2 {
		t.Errorf("default gap fill limit: got %d, want 2", cfg.Pipeline.GapFillLimit)
	}
	if cfg.Pipeline.CoverageThreshold != 0.7 {
		t.Errorf("default coverage threshold: got %v, want 0.7", cfg.Pipeline.CoverageThreshold)
	}
	if cfg.Pipeline.KeywordThreshold != 0.6 {
		t.Errorf("default keyword threshold: got %v, want 0.6", cfg.Pipeline.KeywordThreshold)
	}
	if cfg.API.BasePath != "/api" {
		t.Errorf("default base path: got %s, want /api", cfg.API.BasePath)
	}
	if cfg.ShutdownTimeout != "30s" {
		t.Errorf("default shutdown timeout: got %s, want 30s", cfg.ShutdownTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	t.Setenv("TAILOR_SERVER_PORT", "7070")
	t.Setenv("TAILOR_DB_HOST", "envhost")
	t.Setenv("TAILOR_PIPELINE_MAX_ATTEMPTS", "6")
	t.Setenv("TAILOR_PIPELINE_KEYWORDS", "Go, Postgres ,Azure")
	t.Setenv("TAILOR_CAPABILITY_API_KEY", "secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env server port: got %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("env database host: got %s, want envhost", cfg.Database.Host)
	}
	if cfg.Pipeline.MaxAttempts != 6 {
		t.Errorf("env max_attempts: got %d, want 6", cfg.Pipeline.MaxAttempts)
	}
	want := []string{"Go", "Postgres", "Azure"}
	if len(cfg.Pipeline.Keywords) != len(want) {
		t.Fatalf("env keywords: got %v, want %v", cfg.Pipeline.Keywords, want)
	}
	for i, keyword := range want {
		if cfg.Pipeline.Keywords[i] != keyword {
			t.Errorf("env keywords[%d]: got %s, want %s", i, cfg.Pipeline.Keywords[i], keyword)
		}
	}
	if cfg.Capability.APIKey != "secret" {
		t.Errorf("env api key: got %s, want secret", cfg.Capability.APIKey)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", strings.Replace(
		baseConfig, "coverage_threshold = 0.75", "coverage_threshold = 1.5", 1))
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for coverage_threshold > 1")
	} else if !strings.Contains(err.Error(), "coverage_threshold") {
		t.Errorf("error = %v, want coverage_threshold mention", err)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", strings.Replace(
		baseConfig, `stage_timeout = "90s"`, `stage_timeout = "soon"`, 1))
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for unparseable stage_timeout")
	}
}

func TestLoadRequiresCapabilityEndpoints(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", strings.Replace(
		minimalConfig, `generate_url = "http://localhost:7004/generate"`, "", 1))
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for missing generate_url")
	} else if !strings.Contains(err.Error(), "generate_url") {
		t.Errorf("error = %v, want generate_url mention", err)
	}
}
