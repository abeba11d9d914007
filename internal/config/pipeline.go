package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvPipelineStageTimeout      = "TAILOR_PIPELINE_STAGE_TIMEOUT"
	EnvPipelineMaxAttempts       = "TAILOR_PIPELINE_MAX_ATTEMPTS"
	EnvPipelineBackoffBase       = "TAILOR_PIPELINE_BACKOFF_BASE"
	EnvPipelineJobTimeout        = "TAILOR_PIPELINE_JOB_TIMEOUT"
	EnvPipelineGapFillLimit      = "TAILOR_PIPELINE_GAP_FILL_LIMIT"
	EnvPipelineCoverageThreshold = "TAILOR_PIPELINE_COVERAGE_THRESHOLD"
	EnvPipelineKeywordThreshold  = "TAILOR_PIPELINE_KEYWORD_THRESHOLD"
	EnvPipelineKeywords          = "TAILOR_PIPELINE_KEYWORDS"
	EnvPipelineSweepInterval     = "TAILOR_PIPELINE_SWEEP_INTERVAL"
	EnvPipelineStuckThreshold    = "TAILOR_PIPELINE_STUCK_THRESHOLD"
	EnvPipelineArtifactTTL       = "TAILOR_PIPELINE_ARTIFACT_TTL"
	EnvPipelineDownloadTTL       = "TAILOR_PIPELINE_DOWNLOAD_TTL"
)

// PipelineConfig holds orchestration, quality-gate, and housekeeping
// parameters.
type PipelineConfig struct {
	StageTimeout      string   `toml:"stage_timeout"`
	MaxAttempts       int      `toml:"max_attempts"`
	BackoffBase       string   `toml:"backoff_base"`
	JobTimeout        string   `toml:"job_timeout"`
	GapFillLimit      int      `toml:"gap_fill_limit"`
	CoverageThreshold float64  `toml:"coverage_threshold"`
	KeywordThreshold  float64  `toml:"keyword_threshold"`
	Keywords          []string `toml:"keywords"`
	SweepInterval     string   `toml:"sweep_interval"`
	StuckThreshold    string   `toml:"stuck_threshold"`
	ArtifactTTL       string   `toml:"artifact_ttl"`
	DownloadTTL       string   `toml:"download_ttl"`
}

// StageTimeoutDuration returns StageTimeout as a time.Duration.
func (c *PipelineConfig) StageTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StageTimeout)
	return d
}

// BackoffBaseDuration returns BackoffBase as a time.Duration.
func (c *PipelineConfig) BackoffBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffBase)
	return d
}

// JobTimeoutDuration returns JobTimeout as a time.Duration.
func (c *PipelineConfig) JobTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.JobTimeout)
	return d
}

// SweepIntervalDuration returns SweepInterval as a time.Duration.
func (c *PipelineConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// StuckThresholdDuration returns StuckThreshold as a time.Duration.
func (c *PipelineConfig) StuckThresholdDuration() time.Duration {
	d, _ := time.ParseDuration(c.StuckThreshold)
	return d
}

// ArtifactTTLDuration returns ArtifactTTL as a time.Duration.
func (c *PipelineConfig) ArtifactTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ArtifactTTL)
	return d
}

// DownloadTTLDuration returns DownloadTTL as a time.Duration.
func (c *PipelineConfig) DownloadTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.DownloadTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.StageTimeout != "" {
		c.StageTimeout = overlay.StageTimeout
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BackoffBase != "" {
		c.BackoffBase = overlay.BackoffBase
	}
	if overlay.JobTimeout != "" {
		c.JobTimeout = overlay.JobTimeout
	}
	if overlay.GapFillLimit != 0 {
		c.GapFillLimit = overlay.GapFillLimit
	}
	if overlay.CoverageThreshold != 0 {
		c.CoverageThreshold = overlay.CoverageThreshold
	}
	if overlay.KeywordThreshold != 0 {
		c.KeywordThreshold = overlay.KeywordThreshold
	}
	if len(overlay.Keywords) > 0 {
		c.Keywords = overlay.Keywords
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.StuckThreshold != "" {
		c.StuckThreshold = overlay.StuckThreshold
	}
	if overlay.ArtifactTTL != "" {
		c.ArtifactTTL = overlay.ArtifactTTL
	}
	if overlay.DownloadTTL != "" {
		c.DownloadTTL = overlay.DownloadTTL
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.StageTimeout == "" {
		c.StageTimeout = "2m"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == "" {
		c.BackoffBase = "2s"
	}
	if c.JobTimeout == "" {
		c.JobTimeout = "15m"
	}
	if c.GapFillLimit == 0 {
		c.GapFillLimit = 2
	}
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 0.7
	}
	if c.KeywordThreshold == 0 {
		c.KeywordThreshold = 0.6
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
	if c.StuckThreshold == "" {
		c.StuckThreshold = "5m"
	}
	if c.ArtifactTTL == "" {
		c.ArtifactTTL = "168h"
	}
	if c.DownloadTTL == "" {
		c.DownloadTTL = "1h"
	}
}

func (c *PipelineConfig) loadEnv() {
	durations := []struct {
		name   string
		target *string
	}{
		{EnvPipelineStageTimeout, &c.StageTimeout},
		{EnvPipelineBackoffBase, &c.BackoffBase},
		{EnvPipelineJobTimeout, &c.JobTimeout},
		{EnvPipelineSweepInterval, &c.SweepInterval},
		{EnvPipelineStuckThreshold, &c.StuckThreshold},
		{EnvPipelineArtifactTTL, &c.ArtifactTTL},
		{EnvPipelineDownloadTTL, &c.DownloadTTL},
	}
	for _, d := range durations {
		if v := os.Getenv(d.name); v != "" {
			*d.target = v
		}
	}

	if v := os.Getenv(EnvPipelineMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvPipelineGapFillLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GapFillLimit = n
		}
	}
	if v := os.Getenv(EnvPipelineCoverageThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CoverageThreshold = f
		}
	}
	if v := os.Getenv(EnvPipelineKeywordThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.KeywordThreshold = f
		}
	}
	if v := os.Getenv(EnvPipelineKeywords); v != "" {
		parts := strings.Split(v, ",")
		keywords := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				keywords = append(keywords, p)
			}
		}
		c.Keywords = keywords
	}
}

func (c *PipelineConfig) validate() error {
	durations := map[string]string{
		"stage_timeout":   c.StageTimeout,
		"backoff_base":    c.BackoffBase,
		"job_timeout":     c.JobTimeout,
		"sweep_interval":  c.SweepInterval,
		"stuck_threshold": c.StuckThreshold,
		"artifact_ttl":    c.ArtifactTTL,
		"download_ttl":    c.DownloadTTL,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.GapFillLimit < 0 {
		return fmt.Errorf("gap_fill_limit cannot be negative")
	}
	if c.CoverageThreshold < 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage_threshold must be within [0, 1]")
	}
	if c.KeywordThreshold < 0 || c.KeywordThreshold > 1 {
		return fmt.Errorf("keyword_threshold must be within [0, 1]")
	}
	return nil
}
