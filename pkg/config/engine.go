package config

import (
	"fmt"
	"strings"
	"time"
)

// Dedup modes for incident creation.
const (
	DedupBestEffort = "best_effort"
	DedupAtomic     = "atomic"
)

// Live definition policies applied when provisioning SLA definitions.
const (
	LivePolicyAllow     = "allow"
	LivePolicyReject    = "reject"
	LivePolicySupersede = "supersede"
)

// EngineConfig holds runtime configuration for the SLA and alerting engine.
type EngineConfig struct {
	Environment          string
	Addr                 string
	DatabaseURL          string
	LogLevel             string
	AdminToken           string
	EvaluationInterval   time.Duration
	EvaluationTimeout    time.Duration
	SnapshotInterval     time.Duration
	SnapshotTimeout      time.Duration
	SnapshotBackfillDays int
	SnapshotConcurrency  int
	DedupMode            string
	LiveDefinitionPolicy string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	EscalationChannel    string
	NotificationChannel  string
	NotifyRecipients     []string
	DispatchTimeout      time.Duration
	BreakerTimeout       time.Duration
	RateLimitPerMinute   int
	TrustedProxies       []string
}

var engineDefaults = map[string]any{
	"env":                      "development",
	"http.addr":                ":4100",
	"database.url":             "postgres://slaguard:slaguard@db:5432/slaguard?sslmode=disable",
	"log.level":                "info",
	"admin.token":              "",
	"evaluation.interval":      time.Minute,
	"evaluation.timeout":       45 * time.Second,
	"snapshot.interval":        time.Hour,
	"snapshot.timeout":         5 * time.Minute,
	"snapshot.backfill_days":   1,
	"snapshot.concurrency":     4,
	"dedup.mode":               DedupBestEffort,
	"sla.live_policy":          LivePolicyReject,
	"redis.addr":               "",
	"redis.password":           "",
	"redis.db":                 0,
	"dispatch.escalation":      "slaguard:escalations",
	"dispatch.notification":    "slaguard:notifications",
	"dispatch.recipients":      []string{},
	"dispatch.timeout":         5 * time.Second,
	"dispatch.breaker_timeout": 30 * time.Second,
	"http.rate_limit":          120,
	"http.trusted_proxies":     []string{},
}

// LoadEngineConfig constructs an EngineConfig from defaults, an optional file and the environment.
func LoadEngineConfig(path string) (EngineConfig, error) {
	v, err := newViper(path, engineDefaults)
	if err != nil {
		return EngineConfig{}, err
	}
	cfg := EngineConfig{
		Environment:          v.GetString("env"),
		Addr:                 v.GetString("http.addr"),
		DatabaseURL:          v.GetString("database.url"),
		LogLevel:             v.GetString("log.level"),
		AdminToken:           strings.TrimSpace(v.GetString("admin.token")),
		EvaluationInterval:   v.GetDuration("evaluation.interval"),
		EvaluationTimeout:    v.GetDuration("evaluation.timeout"),
		SnapshotInterval:     v.GetDuration("snapshot.interval"),
		SnapshotTimeout:      v.GetDuration("snapshot.timeout"),
		SnapshotBackfillDays: v.GetInt("snapshot.backfill_days"),
		SnapshotConcurrency:  v.GetInt("snapshot.concurrency"),
		DedupMode:            strings.ToLower(strings.TrimSpace(v.GetString("dedup.mode"))),
		LiveDefinitionPolicy: strings.ToLower(strings.TrimSpace(v.GetString("sla.live_policy"))),
		RedisAddr:            strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword:        v.GetString("redis.password"),
		RedisDB:              v.GetInt("redis.db"),
		EscalationChannel:    v.GetString("dispatch.escalation"),
		NotificationChannel:  v.GetString("dispatch.notification"),
		NotifyRecipients:     splitList(v, "dispatch.recipients"),
		DispatchTimeout:      v.GetDuration("dispatch.timeout"),
		BreakerTimeout:       v.GetDuration("dispatch.breaker_timeout"),
		RateLimitPerMinute:   v.GetInt("http.rate_limit"),
		TrustedProxies:       splitList(v, "http.trusted_proxies"),
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c EngineConfig) Validate() error {
	switch c.DedupMode {
	case DedupBestEffort, DedupAtomic:
	default:
		return fmt.Errorf("dedup.mode must be %q or %q, got %q", DedupBestEffort, DedupAtomic, c.DedupMode)
	}
	switch c.LiveDefinitionPolicy {
	case LivePolicyAllow, LivePolicyReject, LivePolicySupersede:
	default:
		return fmt.Errorf("sla.live_policy must be one of allow, reject, supersede, got %q", c.LiveDefinitionPolicy)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.EvaluationInterval <= 0 {
		return fmt.Errorf("evaluation.interval must be positive")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot.interval must be positive")
	}
	if c.SnapshotBackfillDays < 0 {
		return fmt.Errorf("snapshot.backfill_days must not be negative")
	}
	return nil
}
